// Package compression wraps the streaming codecs used for crawl output.
//
// # Algorithm Selection
//
//   - Snappy/S2: best for speed, moderate compression
//   - LZ4: extremely fast, decent compression
//   - Zstd: best compression ratio, good speed
//   - Gzip: wide compatibility
//
// # Basic Usage
//
//	algo, err := compression.ParseAlgorithm(cfg.String("compression", "none"))
//	w, err := compression.NewWriter(file, algo, compression.Default)
//	defer w.Close()
package compression

import (
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/kennyhitachi/hci-connectors/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None writes the stream unchanged
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy framed compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level controls the trade-off between speed and ratio.
type Level int

const (
	Fastest Level = 1
	Default Level = 5
	Better  Level = 7
	Best    Level = 9
)

var extensions = map[Algorithm]string{
	None:   "",
	Gzip:   ".gz",
	Snappy: ".sz",
	LZ4:    ".lz4",
	Zstd:   ".zst",
	S2:     ".s2",
}

// Algorithms lists the supported algorithm names.
func Algorithms() []string {
	return []string{string(None), string(Gzip), string(Zstd), string(Snappy), string(S2), string(LZ4)}
}

// ParseAlgorithm resolves a configured name; the empty string means None.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if a == "" {
		return None, nil
	}
	if _, ok := extensions[a]; !ok {
		return "", errors.Newf(errors.ErrorTypeConfig, "unsupported compression %q, expected one of %s",
			name, strings.Join(Algorithms(), ", "))
	}
	return a, nil
}

// Extension returns the conventional file suffix for a, including the dot.
func (a Algorithm) Extension() string {
	return extensions[a]
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter returns a writer compressing into w. Closing it flushes the
// codec but does not close w.
func NewWriter(w io.Writer, algo Algorithm, level Level) (io.WriteCloser, error) {
	switch algo {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		gl := int(level)
		if gl < gzip.BestSpeed || gl > gzip.BestCompression {
			gl = gzip.DefaultCompression
		}
		return gzip.NewWriterLevel(w, gl)
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevel(level)))
	case S2:
		var opts []s2.WriterOption
		switch {
		case level >= Best:
			opts = append(opts, s2.WriterBestCompression())
		case level >= Better:
			opts = append(opts, s2.WriterBetterCompression())
		}
		return s2.NewWriter(w, opts...), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		lw := lz4.NewWriter(w)
		if err := lw.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid lz4 level")
		}
		return lw, nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression %q", algo)
}

// NewReader returns a reader decompressing r.
func NewReader(r io.Reader, algo Algorithm) (io.ReadCloser, error) {
	switch algo {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Zstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression %q", algo)
}

func zstdLevel(l Level) zstd.EncoderLevel {
	switch {
	case l <= Fastest:
		return zstd.SpeedFastest
	case l >= Best:
		return zstd.SpeedBestCompression
	case l >= Better:
		return zstd.SpeedBetterCompression
	}
	return zstd.SpeedDefault
}

func lz4Level(l Level) lz4.CompressionLevel {
	switch {
	case l <= Fastest:
		return lz4.Fast
	case l >= Best:
		return lz4.Level9
	case l >= Better:
		return lz4.Level7
	}
	return lz4.Level5
}
