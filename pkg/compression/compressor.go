// Package compression provides transparent streaming decompression of remote
// files, selected by file extension.
//
// # Supported Algorithms
//
//   - Gzip: .gz, .gzip
//   - Zstd: .zst, .zstd
//   - Snappy (framed): .sz, .snappy
//   - S2: .s2
//   - LZ4 (frame): .lz4
//   - Bzip2: .bz2
//   - Deflate: .deflate
//
// # Usage
//
//	rc, alg, err := compression.Open("orders/2024-01-01.csv.gz", body)
//	if err != nil {
//		return err
//	}
//	defer rc.Close()
//	// rc yields the plain CSV bytes; alg == compression.Gzip
package compression

import (
	"compress/bzip2"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm
type Algorithm string

const (
	// None means the data is not compressed
	None Algorithm = "none"
	// Gzip compression
	Gzip Algorithm = "gzip"
	// Snappy compression, framed stream format
	Snappy Algorithm = "snappy"
	// LZ4 compression, frame format
	LZ4 Algorithm = "lz4"
	// Zstd compression
	Zstd Algorithm = "zstd"
	// S2 compression
	S2 Algorithm = "s2"
	// Bzip2 compression
	Bzip2 Algorithm = "bzip2"
	// Deflate compression
	Deflate Algorithm = "deflate"
)

var extensions = map[string]Algorithm{
	".gz":      Gzip,
	".gzip":    Gzip,
	".zst":     Zstd,
	".zstd":    Zstd,
	".sz":      Snappy,
	".snappy":  Snappy,
	".s2":      S2,
	".lz4":     LZ4,
	".bz2":     Bzip2,
	".deflate": Deflate,
}

// DetectAlgorithm returns the algorithm implied by the extension of name
func DetectAlgorithm(name string) Algorithm {
	if alg, ok := extensions[strings.ToLower(path.Ext(name))]; ok {
		return alg
	}
	return None
}

// TrimExtension strips a compression extension from name, so that
// "a/b.jsonl.gz" becomes "a/b.jsonl".
func TrimExtension(name string) string {
	ext := path.Ext(name)
	if _, ok := extensions[strings.ToLower(ext)]; ok {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// NewReader wraps r with a decompressing reader for alg. Closing the
// returned reader releases decoder resources but never closes r.
func NewReader(alg Algorithm, r io.Reader) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return gr, nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return dec.IOReadCloser(), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case Deflate:
		return flate.NewReader(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// Open detects the algorithm from name and wraps r accordingly
func Open(name string, r io.Reader) (io.ReadCloser, Algorithm, error) {
	alg := DetectAlgorithm(name)
	rc, err := NewReader(alg, r)
	return rc, alg, err
}
