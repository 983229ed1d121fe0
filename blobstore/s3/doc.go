// Package s3 stores BotFS volume archives in Amazon S3 and keeps the backup
// catalog in DynamoDB.
//
// # Usage
//
//	store, err := s3.New(ctx, "fleet-backups",
//	    s3.WithPrefix("robots/unit-7/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//	catalog := s3.NewDDBCatalog(dynamodb.NewFromConfig(cfg), "botfs-backups")
//
//	name, err := vol.BackupToCatalog(ctx, store, catalog, archive.Options{Codec: archive.Zstd})
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart streaming uploads with CRC32C checksums
//   - Automatic pagination for listing
//   - Conditional DynamoDB writes so concurrent backups never share a version
package s3
