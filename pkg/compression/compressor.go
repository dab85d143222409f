// Package compression provides transparent streaming (de)compression for
// input and output files. The algorithm is chosen from the file extension.
//
// # Supported Algorithms
//
//   - Gzip (.gz): ubiquitous, moderate speed
//   - Zstd (.zst, .zstd): high ratio, fast decompression
//   - Snappy (.sz, .snappy): framed snappy stream
//   - S2 (.s2): snappy-compatible, faster
//   - LZ4 (.lz4): lz4 frame format
//
// # Basic Usage
//
//	r, err := compression.OpenReader(compression.Detect(path), file)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
// Compressed streams cannot seek, so indexed parallel reads are only
// available for uncompressed files.
package compression

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	stringpool "github.com/ajitpratap0/colstats/pkg/strings"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Best maximizes compression ratio.
	Best Level = 9
)

var extensions = map[string]Algorithm{
	".gz":     Gzip,
	".zst":    Zstd,
	".zstd":   Zstd,
	".sz":     Snappy,
	".snappy": Snappy,
	".s2":     S2,
	".lz4":    LZ4,
}

// Detect returns the algorithm implied by the extension of path, or None.
func Detect(path string) Algorithm {
	if alg, ok := extensions[stringpool.ToLower(filepath.Ext(path))]; ok {
		return alg
	}
	return None
}

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch alg := Algorithm(stringpool.ToLower(s)); alg {
	case None, Gzip, Snappy, LZ4, Zstd, S2:
		return alg, nil
	case "":
		return None, nil
	default:
		return None, fmt.Errorf("unsupported compression algorithm: %s", s)
	}
}

// OpenReader wraps src in a decompressing reader. Closing the returned
// reader releases decoder resources but does not close src.
func OpenReader(alg Algorithm, src io.Reader) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(src), nil
	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return r, nil
	case Zstd:
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return dec.IOReadCloser(), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// OpenWriter wraps dst in a compressing writer. Close flushes the stream
// but does not close dst.
func OpenWriter(alg Algorithm, level Level, dst io.Writer) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{dst}, nil
	case Gzip:
		return gzip.NewWriterLevel(dst, mapGzipLevel(level))
	case Zstd:
		return zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(level)))
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	case S2:
		return s2.NewWriter(dst), nil
	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Helper functions to map compression levels

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
