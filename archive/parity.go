package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/reedsolomon"

	"github.com/hupe1980/botfs/internal/hash"
)

const shardTrailerSize = 4

// encodeShards splits body into data shards, adds parity shards and returns
// them concatenated, each followed by its CRC32C.
func encodeShards(body []byte, dataShards, parityShards int) ([]byte, int, error) {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, 0, err
	}
	shards, err := enc.Split(body)
	if err != nil {
		return nil, 0, err
	}
	if err := enc.Encode(shards); err != nil {
		return nil, 0, err
	}

	shardSize := len(shards[0])
	out := make([]byte, 0, len(shards)*(shardSize+shardTrailerSize))
	for _, s := range shards {
		out = append(out, s...)
		out = le.AppendUint32(out, hash.CRC32C(s))
	}
	return out, shardSize, nil
}

// decodeShards reads the shard section, drops shards whose checksum does
// not match and reconstructs the body of bodyLen bytes.
func decodeShards(r io.Reader, h Header) ([]byte, int, error) {
	total := int(h.DataShards) + int(h.ParityShards)
	enc, err := reedsolomon.New(int(h.DataShards), int(h.ParityShards))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	shards := make([][]byte, total)
	damaged := 0
	for i := range shards {
		s := make([]byte, int(h.ShardSize)+shardTrailerSize)
		if _, err := io.ReadFull(r, s); err != nil {
			return nil, 0, err
		}
		data := s[:h.ShardSize]
		if hash.CRC32C(data) != le.Uint32(s[h.ShardSize:]) {
			damaged++
			continue
		}
		shards[i] = data
	}

	if damaged > 0 {
		if damaged > int(h.ParityShards) {
			return nil, damaged, fmt.Errorf("%w: %d of %d shards damaged", ErrUnrecoverable, damaged, total)
		}
		if err := enc.Reconstruct(shards); err != nil {
			return nil, damaged, fmt.Errorf("%w: %w", ErrUnrecoverable, err)
		}
	}

	var buf bytes.Buffer
	buf.Grow(int(h.BodyLen))
	if err := enc.Join(&buf, shards, int(h.BodyLen)); err != nil {
		return nil, damaged, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	return buf.Bytes(), damaged, nil
}
