// Package codec compresses and decompresses the length-prefixed blocks that
// are typically stored inside files read through memory-map cursors.
//
// Pack-style files keep their payloads compressed on disk; a cursor gives
// zero-copy access to the raw block bytes and this package turns them back
// into payloads. Block boundaries are self-describing, so readers can walk
// a file block by block through a sliding cursor without an external index.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression defines the block compression algorithm.
type Compression uint8

const (
	// None stores blocks uncompressed.
	None Compression = 0
	// LZ4 uses LZ4 block compression (fast, good for hot data).
	LZ4 Compression = 1
	// ZSTD uses ZSTD block compression (better ratio, good for cold data).
	ZSTD Compression = 2
)

// ByName returns a compression by its stable name, as stored in
// self-describing file headers.
func ByName(name string) (Compression, bool) {
	switch name {
	case "none":
		return None, true
	case "lz4":
		return LZ4, true
	case "zstd":
		return ZSTD, true
	default:
		return 0, false
	}
}

// Name returns the stable name of the compression.
func (c Compression) Name() string {
	switch c {
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return "none"
	}
}

var (
	// ErrBlockTooShort indicates a truncated block header or body.
	ErrBlockTooShort = errors.New("codec: block too short")
	// ErrUnknownCompression indicates an unsupported compression id.
	ErrUnknownCompression = errors.New("codec: unknown compression")
)

// Block format: [UncompressedSize uint32][CompressedSize uint32][Data...],
// little endian. CompressedSize == 0 means the body is stored raw, which
// happens when compression would not have paid off.
const HeaderSize = 8

// ZSTD encoder/decoder pools for efficiency
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

// CompressBlock compresses data into a framed block. When the compressed
// body would not be at least 10% smaller than the input, the block is
// stored raw.
func CompressBlock(data []byte, c Compression) ([]byte, error) {
	var compressed []byte
	var err error

	switch c {
	case None:
	case LZ4:
		compressed, err = compressLZ4(data)
	case ZSTD:
		compressed, err = compressZSTD(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, c)
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, HeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[HeaderSize:], data)
		return out, nil
	}

	out := make([]byte, HeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[HeaderSize:], compressed)
	return out, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	compressed := make([]byte, bound)

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return compressed[:n], nil
}

func compressZSTD(data []byte) ([]byte, error) {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)
	return enc.EncodeAll(data, nil), nil
}

// DecompressBlock decodes one framed block and returns its payload and the
// number of input bytes consumed.
func DecompressBlock(block []byte, c Compression) ([]byte, int, error) {
	if len(block) < HeaderSize {
		return nil, 0, ErrBlockTooShort
	}
	uncompressedSize := binary.LittleEndian.Uint32(block[0:])
	compressedSize := binary.LittleEndian.Uint32(block[4:])

	bodySize := compressedSize
	if compressedSize == 0 {
		bodySize = uncompressedSize
	}
	if int64(len(block)) < HeaderSize+int64(bodySize) {
		return nil, 0, ErrBlockTooShort
	}
	body := block[HeaderSize : HeaderSize+bodySize]
	consumed := HeaderSize + int(bodySize)

	if compressedSize == 0 {
		out := make([]byte, uncompressedSize)
		copy(out, body)
		return out, consumed, nil
	}

	switch c {
	case LZ4:
		out := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, 0, err
		}
		return out[:n], consumed, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		out, err := dec.DecodeAll(body, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, 0, err
		}
		return out, consumed, nil
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownCompression, c)
	}
}

// ReadBlockAt reads one framed block at off from r, typically a cursor over
// a mapped file, and returns the payload and the number of file bytes the
// block occupies.
func ReadBlockAt(r io.ReaderAt, off int64, c Compression) ([]byte, int64, error) {
	var hdr [HeaderSize]byte
	if _, err := r.ReadAt(hdr[:], off); err != nil {
		return nil, 0, fmt.Errorf("codec: read block header: %w", err)
	}
	uncompressedSize := binary.LittleEndian.Uint32(hdr[0:])
	compressedSize := binary.LittleEndian.Uint32(hdr[4:])

	bodySize := compressedSize
	if compressedSize == 0 {
		bodySize = uncompressedSize
	}

	block := make([]byte, HeaderSize+bodySize)
	if _, err := r.ReadAt(block, off); err != nil {
		return nil, 0, fmt.Errorf("codec: read block body: %w", err)
	}

	payload, consumed, err := DecompressBlock(block, c)
	if err != nil {
		return nil, 0, err
	}
	return payload, int64(consumed), nil
}
