package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/botfs/device"
	"github.com/hupe1980/botfs/internal/hash"
)

var (
	// ErrInvalidHeader is returned for data that is not a readable archive.
	ErrInvalidHeader = errors.New("archive: invalid header")
	// ErrChecksum is returned when the restored image does not match its checksum.
	ErrChecksum = errors.New("archive: checksum mismatch")
	// ErrUnsupportedCodec is returned for unknown codecs.
	ErrUnsupportedCodec = errors.New("archive: unsupported codec")
	// ErrUnrecoverable is returned when more shards are damaged than parity
	// shards exist.
	ErrUnrecoverable = errors.New("archive: unrecoverable damage")
)

const (
	// FormatVersion is the archive layout version written by this package.
	FormatVersion = 1

	// HeaderSize is the fixed size of the archive header.
	HeaderSize = 48

	// DefaultDataShards is used when parity is requested without a data shard count.
	DefaultDataShards = 4

	maxRawSize = 1 << 30
	maxShards  = 256

	flagStored = 1 << 0

	checkEvery = 256 // blocks between context checks
)

var magic = [8]byte{'B', 'O', 'T', 'F', 'S', 'I', 'M', 'G'}

var le = binary.LittleEndian

// BlockReader is the read side of a block device.
type BlockReader interface {
	ReadBlock(addr uint32, buf []byte) error
}

// BlockWriter is the write side of a block device.
type BlockWriter interface {
	WriteBlock(addr uint32, buf []byte) error
}

// Options configures archive creation.
type Options struct {
	Codec Codec

	// ParityShards > 0 protects the body with Reed-Solomon parity so that
	// up to ParityShards damaged shards are repaired on read.
	ParityShards int
	// DataShards defaults to DefaultDataShards when parity is enabled.
	DataShards int
}

// Header describes an archive.
type Header struct {
	Version      uint16
	Codec        Codec
	Stored       bool // body holds the raw image
	DataShards   uint8
	ParityShards uint8
	BlockSize    uint32
	Blocks       uint32
	Checksum     uint32 // CRC32C of the raw image
	BodyLen      uint64
	ShardSize    uint32

	// Repaired is the number of shards reconstructed by Read. It is not stored.
	Repaired int
}

func (h *Header) encode() []byte {
	b := make([]byte, HeaderSize)
	copy(b, magic[:])
	le.PutUint16(b[8:], h.Version)
	b[10] = byte(h.Codec)
	if h.Stored {
		b[11] |= flagStored
	}
	b[12] = h.DataShards
	b[13] = h.ParityShards
	le.PutUint32(b[16:], h.BlockSize)
	le.PutUint32(b[20:], h.Blocks)
	le.PutUint32(b[24:], h.Checksum)
	le.PutUint64(b[28:], h.BodyLen)
	le.PutUint32(b[36:], h.ShardSize)
	le.PutUint32(b[44:], hash.CRC32C(b[:44]))
	return b
}

func decodeHeader(b []byte) (Header, error) {
	if !bytes.Equal(b[:8], magic[:]) {
		return Header{}, fmt.Errorf("%w: bad magic", ErrInvalidHeader)
	}
	if hash.CRC32C(b[:44]) != le.Uint32(b[44:]) {
		return Header{}, fmt.Errorf("%w: header checksum", ErrInvalidHeader)
	}
	h := Header{
		Version:      le.Uint16(b[8:]),
		Codec:        Codec(b[10]),
		Stored:       b[11]&flagStored != 0,
		DataShards:   b[12],
		ParityShards: b[13],
		BlockSize:    le.Uint32(b[16:]),
		Blocks:       le.Uint32(b[20:]),
		Checksum:     le.Uint32(b[24:]),
		BodyLen:      le.Uint64(b[28:]),
		ShardSize:    le.Uint32(b[36:]),
	}
	switch {
	case h.Version != FormatVersion:
		return Header{}, fmt.Errorf("%w: version %d", ErrInvalidHeader, h.Version)
	case h.BlockSize != device.BlockSize:
		return Header{}, fmt.Errorf("%w: block size %d", ErrInvalidHeader, h.BlockSize)
	case uint64(h.Blocks)*uint64(h.BlockSize) > maxRawSize:
		return Header{}, fmt.Errorf("%w: %d blocks", ErrInvalidHeader, h.Blocks)
	case h.BodyLen > maxRawSize || uint64(h.ShardSize) > maxRawSize:
		return Header{}, fmt.Errorf("%w: body of %d bytes", ErrInvalidHeader, h.BodyLen)
	case h.Codec > CodecLZ4:
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedCodec, h.Codec)
	case h.ParityShards > 0 && (h.DataShards == 0 || uint64(h.ShardSize)*uint64(h.DataShards) < h.BodyLen):
		return Header{}, fmt.Errorf("%w: shard layout", ErrInvalidHeader)
	}
	return h, nil
}

// ReadHeader reads and validates the archive header from r.
func ReadHeader(r io.Reader) (Header, error) {
	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
		}
		return Header{}, err
	}
	return decodeHeader(b)
}

// Write reads blocks [0, blocks) from src and writes them to w as an archive.
func Write(ctx context.Context, w io.Writer, src BlockReader, blocks uint32, opts Options) (Header, error) {
	if uint64(blocks)*device.BlockSize > maxRawSize {
		return Header{}, fmt.Errorf("archive: image of %d blocks too large", blocks)
	}
	if opts.ParityShards < 0 || opts.DataShards < 0 {
		return Header{}, errors.New("archive: negative shard count")
	}
	if opts.ParityShards > 0 && opts.DataShards == 0 {
		opts.DataShards = DefaultDataShards
	}
	if opts.DataShards+opts.ParityShards > maxShards {
		return Header{}, fmt.Errorf("archive: %d shards exceed %d", opts.DataShards+opts.ParityShards, maxShards)
	}

	raw := make([]byte, int(blocks)*device.BlockSize)
	for b := uint32(0); b < blocks; b++ {
		if b%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Header{}, err
			}
		}
		off := int(b) * device.BlockSize
		if err := src.ReadBlock(b, raw[off:off+device.BlockSize]); err != nil {
			return Header{}, err
		}
	}

	body, stored, err := compress(opts.Codec, raw)
	if err != nil {
		return Header{}, err
	}

	h := Header{
		Version:   FormatVersion,
		Codec:     opts.Codec,
		Stored:    stored,
		BlockSize: device.BlockSize,
		Blocks:    blocks,
		Checksum:  hash.CRC32C(raw),
		BodyLen:   uint64(len(body)),
	}

	if opts.ParityShards > 0 && len(body) > 0 {
		shards, shardSize, err := encodeShards(body, opts.DataShards, opts.ParityShards)
		if err != nil {
			return Header{}, err
		}
		h.DataShards = uint8(opts.DataShards)
		h.ParityShards = uint8(opts.ParityShards)
		h.ShardSize = uint32(shardSize)
		body = shards
	}

	if err := ctx.Err(); err != nil {
		return Header{}, err
	}
	if _, err := w.Write(h.encode()); err != nil {
		return Header{}, err
	}
	if _, err := w.Write(body); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Read restores an archive from r onto dst, blocks [0, Header.Blocks).
// Nothing is written to dst unless the image checksum matches.
func Read(ctx context.Context, r io.Reader, dst BlockWriter) (Header, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Header{}, err
	}

	var body []byte
	if h.ParityShards > 0 {
		body, h.Repaired, err = decodeShards(r, h)
		if err != nil {
			return h, err
		}
	} else {
		body = make([]byte, h.BodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return h, err
		}
	}

	rawLen := int(h.Blocks) * int(h.BlockSize)
	raw := body
	if !h.Stored {
		if raw, err = decompress(h.Codec, body, rawLen); err != nil {
			return h, err
		}
	}
	if len(raw) != rawLen {
		return h, fmt.Errorf("%w: %d bytes, want %d", ErrChecksum, len(raw), rawLen)
	}
	if hash.CRC32C(raw) != h.Checksum {
		return h, ErrChecksum
	}

	for b := uint32(0); b < h.Blocks; b++ {
		if b%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return h, err
			}
		}
		off := int(b) * device.BlockSize
		if err := dst.WriteBlock(b, raw[off:off+device.BlockSize]); err != nil {
			return h, err
		}
	}
	return h, nil
}
