package archive

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the body compression of an archive.
type Codec uint8

const (
	// CodecNone stores the image as is.
	CodecNone Codec = 0
	// CodecGzip is widely readable but slow.
	CodecGzip Codec = 1
	// CodecZstd gives the best ratio for images.
	CodecZstd Codec = 2
	// CodecLZ4 is the fastest.
	CodecLZ4 Codec = 3
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecGzip:
		return "gzip"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

// ParseCodec maps a codec name to its Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none", "":
		return CodecNone, nil
	case "gzip":
		return CodecGzip, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
}

// ZSTD encoder/decoder pools
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// compress returns the encoded body. stored is set when the codec did not
// gain at least 10% and data is returned unchanged.
func compress(c Codec, data []byte) (body []byte, stored bool, err error) {
	var out []byte
	switch c {
	case CodecNone:
		return data, true, nil
	case CodecGzip:
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if err != nil {
			return nil, false, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, false, err
		}
		if err := w.Close(); err != nil {
			return nil, false, err
		}
		out = buf.Bytes()
	case CodecZstd:
		enc := getZstdEncoder()
		defer putZstdEncoder(enc)
		out = enc.EncodeAll(data, nil)
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, false, err
		}
		out = dst[:n] // n == 0: incompressible
	default:
		return nil, false, fmt.Errorf("%w: %d", ErrUnsupportedCodec, c)
	}

	if len(out) == 0 || float64(len(out)) > float64(len(data))*0.9 {
		return data, true, nil
	}
	return out, false, nil
}

// decompress reverses compress into a buffer of exactly rawLen bytes.
func decompress(c Codec, body []byte, rawLen int) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch c {
	case CodecGzip:
		var r *gzip.Reader
		if r, err = gzip.NewReader(bytes.NewReader(body)); err != nil {
			return nil, err
		}
		out = make([]byte, rawLen)
		if _, err = io.ReadFull(r, out); err != nil {
			return nil, err
		}
		err = r.Close()
	case CodecZstd:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		out, err = dec.DecodeAll(body, make([]byte, 0, rawLen))
	case CodecLZ4:
		out = make([]byte, rawLen)
		var n int
		n, err = lz4.UncompressBlock(body, out)
		out = out[:n]
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCodec, c)
	}
	if err != nil {
		return nil, err
	}
	if len(out) != rawLen {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", ErrChecksum, len(out), rawLen)
	}
	return out, nil
}
