// Package minio stores BotFS volume archives on MinIO and other
// S3-compatible servers (Ceph, Garage, SeaweedFS). It suits workshop and
// air-gapped deployments where robots back up to a local server.
//
// # Basic Usage
//
//	client, err := minio.New("backup.local:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "fleet", "robots/unit-7/")
//	err = vol.BackupTo(ctx, store, "robot/nightly.img", archive.Options{Codec: archive.LZ4})
package minio
