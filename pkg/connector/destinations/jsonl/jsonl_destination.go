// Package jsonl writes crawled records as newline delimited JSON, optionally
// compressed with any codec of pkg/compression.
package jsonl

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"os"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/pkg/compression"
	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/base"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
)

// Name is the registry name of the destination.
const Name = "jsonl"

const defaultMaxInlineBytes = 1 << 20

// Content keys added to each line.
const (
	fieldContent        = "content_base64"
	fieldContentOmitted = "content_omitted"
)

// JSONLDestination implements core.Destination over a file or writer.
type JSONLDestination struct {
	*base.BaseConnector

	path           string
	compression    compression.Algorithm
	maxInlineBytes int64

	out     io.Writer
	buf     *bufio.Writer
	encoder *json.Encoder
	written int64
}

// NewJSONLDestination creates a new JSONL destination
func NewJSONLDestination(_ *config.BaseConfig) (core.Destination, error) {
	return &JSONLDestination{
		BaseConnector: base.NewBaseConnector(Name, core.ConnectorTypeDestination, "1.0.0"),
	}, nil
}

// NewJSONLDestinationWithWriter creates a destination that writes to w
// instead of opening the path property. w is not closed.
func NewJSONLDestinationWithWriter(w io.Writer) *JSONLDestination {
	return &JSONLDestination{
		BaseConnector: base.NewBaseConnector(Name, core.ConnectorTypeDestination, "1.0.0"),
		out:           w,
	}
}

// Initialize opens the output and the compressor.
func (d *JSONLDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	var err error
	if d.compression, err = compression.ParseAlgorithm(cfg.String("compression", "")); err != nil {
		return err
	}
	level, err := cfg.Int("compression_level", int(compression.Default))
	if err != nil {
		return err
	}
	inline, err := cfg.Int("max_inline_bytes", defaultMaxInlineBytes)
	if err != nil {
		return err
	}
	d.maxInlineBytes = int64(inline)

	if d.out == nil {
		if d.path, err = cfg.RequireString("path"); err != nil {
			return err
		}
		f, err := os.Create(d.path)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create output file").
				WithDetail("path", d.path)
		}
		d.Closer().Push("file", f.Close)
		d.out = f
	}

	w, err := compression.NewWriter(d.out, d.compression, compression.Level(level))
	if err != nil {
		d.Closer().CloseAll(d.GetLogger())
		return errors.Propagate(err, errors.ErrorTypeConfig, "failed to create compressor")
	}
	d.Closer().Push(string(d.compression), w.Close)

	d.buf = bufio.NewWriterSize(w, 64*1024)
	d.Closer().Push("buffer", d.buf.Flush)
	d.encoder = json.NewEncoder(d.buf)

	d.GetLogger().Info("JSONL destination initialized",
		zap.String("path", d.path),
		zap.String("compression", string(d.compression)))
	return nil
}

// Write encodes one record as a line. Content up to max_inline_bytes is
// embedded as base64; larger content is dropped and flagged.
func (d *JSONLDestination) Write(ctx context.Context, record *core.Record, content io.Reader) error {
	if err := d.CheckOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := record.Document()
	if content != nil && d.maxInlineBytes > 0 {
		data, err := io.ReadAll(io.LimitReader(content, d.maxInlineBytes+1))
		if err != nil {
			return d.GetErrorHandler().Surface(err, errors.ErrorTypeOperationFailed,
				"failed to read content", zap.String("id", record.ID))
		}
		if int64(len(data)) > d.maxInlineBytes {
			doc[fieldContentOmitted] = true
		} else {
			doc[fieldContent] = base64.StdEncoding.EncodeToString(data)
			d.GetMetricsCollector().RecordBytes(int64(len(data)))
		}
	}

	if err := d.encoder.Encode(doc); err != nil {
		return errors.Wrap(err, errors.ErrorTypeOperationFailed, "failed to write record").
			WithDetail("id", record.ID)
	}
	d.written++
	return nil
}

// Close flushes buffered lines, finishes the codec stream and closes the
// output. Every step runs; the first failure is returned since any of them
// leaves the output incomplete.
func (d *JSONLDestination) Close(ctx context.Context) error {
	if d.IsClosed() {
		return nil
	}
	finishErr := d.Closer().CloseAll(d.GetLogger())
	if err := d.BaseConnector.Close(ctx); err != nil {
		return err
	}
	if finishErr != nil {
		return errors.Wrap(finishErr, errors.ErrorTypeOperationFailed, "failed to finish output").
			WithDetail("path", d.path).
			WithDetail("compression", string(d.compression))
	}
	return nil
}

// Metrics adds the number of lines written.
func (d *JSONLDestination) Metrics() map[string]interface{} {
	m := d.BaseConnector.Metrics()
	m["records_written"] = d.written
	return m
}
