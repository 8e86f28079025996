package checkpoint

import (
	"encoding/binary"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec applied to every page of an image.
type Compression uint8

const (
	// CompressionNone stores pages as they are.
	CompressionNone Compression = iota
	// CompressionSnappy favors speed.
	CompressionSnappy
	// CompressionLZ4 is fast with a slightly better ratio than snappy.
	CompressionLZ4
	// CompressionZstd has the best ratio and is the slowest.
	CompressionZstd
)

var compressionNames = [...]string{
	CompressionNone:   "none",
	CompressionSnappy: "snappy",
	CompressionLZ4:    "lz4",
	CompressionZstd:   "zstd",
}

func (c Compression) String() string {
	if int(c) < len(compressionNames) {
		return compressionNames[c]
	}
	return "unknown"
}

// ParseCompression parses a codec name as written in config files.
func ParseCompression(s string) (Compression, error) {
	for c, name := range compressionNames {
		if strings.EqualFold(s, name) {
			return Compression(c), nil
		}
	}
	return CompressionNone, errors.Newf("checkpoint: unknown compression %q", s)
}

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

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Block layout: [raw size u32][stored size u32][data]. A stored size of zero
// means the data is stored raw.
const blockHeaderSize = 8

// compressBlock encodes data as a block. Data that does not shrink below 90% is
// stored raw.
func compressBlock(data []byte, c Compression) ([]byte, error) {
	var compressed []byte
	switch c {
	case CompressionNone:
	case CompressionSnappy:
		compressed = snappy.Encode(nil, data)
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, errors.Wrap(err, "checkpoint: lz4")
		}
		compressed = buf[:n]
	case CompressionZstd:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, errors.AssertionFailedf("checkpoint: unknown compression %d", c)
	}

	stored := compressed
	if len(compressed) == 0 || len(compressed)*10 > len(data)*9 {
		stored = data
		compressed = nil
	}
	out := make([]byte, blockHeaderSize+len(stored))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], stored)
	return out, nil
}

// nextBlock splits the block at the start of b from the rest.
func nextBlock(b []byte) (block, rest []byte, err error) {
	if len(b) < blockHeaderSize {
		return nil, nil, errors.Wrap(ErrCorrupted, "truncated block header")
	}
	raw := binary.LittleEndian.Uint32(b[0:])
	stored := binary.LittleEndian.Uint32(b[4:])
	if stored == 0 {
		stored = raw
	}
	end := blockHeaderSize + int(stored)
	if len(b) < end {
		return nil, nil, errors.Wrap(ErrCorrupted, "truncated block")
	}
	return b[:end], b[end:], nil
}

// decompressBlock decodes a block produced by compressBlock.
func decompressBlock(block []byte, c Compression) ([]byte, error) {
	raw := binary.LittleEndian.Uint32(block[0:])
	stored := binary.LittleEndian.Uint32(block[4:])
	data := block[blockHeaderSize:]
	if stored == 0 {
		return append([]byte(nil), data...), nil
	}

	out := make([]byte, raw)
	switch c {
	case CompressionSnappy:
		n, err := snappy.DecodedLen(data)
		if err != nil || n != int(raw) {
			return nil, errors.Wrap(ErrCorrupted, "snappy length mismatch")
		}
		if _, err := snappy.Decode(out, data); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "checkpoint: decode page"), ErrCorrupted)
		}
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "checkpoint: decode page"), ErrCorrupted)
		}
		if n != int(raw) {
			return nil, errors.Wrap(ErrCorrupted, "lz4 length mismatch")
		}
	case CompressionZstd:
		dec := getZstdDecoder()
		decoded, err := dec.DecodeAll(data, out[:0])
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "checkpoint: decode page"), ErrCorrupted)
		}
		if len(decoded) != int(raw) {
			return nil, errors.Wrap(ErrCorrupted, "zstd length mismatch")
		}
		out = decoded
	default:
		return nil, errors.Wrapf(ErrCorrupted, "compressed block with codec %s", c)
	}
	return out, nil
}
