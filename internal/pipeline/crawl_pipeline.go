// Package pipeline runs a crawl: it walks a source from its root record,
// depth-first on the calling goroutine, and hands every record and its
// content to a destination.
//
// # Basic Usage
//
//	p := pipeline.NewCrawlPipeline(source, destination, pipeline.Options{
//	    FetchContent: true,
//	}, logger)
//	stats, err := p.Run(ctx)
//
// A container or record that vanished between listing and use (NotFound) is
// logged and counted as skipped, and the crawl goes on with its siblings; any
// other error ends the crawl.
package pipeline

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	"github.com/kennyhitachi/hci-connectors/pkg/observability"
)

// Options control a crawl.
type Options struct {
	// MaxDepth limits how many container levels below the root are listed;
	// zero or less means unlimited
	MaxDepth int
	// FetchContent opens the content of every leaf record with content
	FetchContent bool
	// DryRun lists without writing to the destination
	DryRun bool
	// ProgressInterval logs the counters periodically; zero disables it
	ProgressInterval time.Duration
}

// Stats summarizes a crawl.
type Stats struct {
	Containers int64         `json:"containers"`
	Records    int64         `json:"records"`
	Bytes      int64         `json:"bytes"`
	Skipped    int64         `json:"skipped"`
	Duration   time.Duration `json:"duration"`
}

// CrawlPipeline moves records from one source to one destination.
type CrawlPipeline struct {
	source      core.Source
	destination core.Destination
	opts        Options
	logger      *zap.Logger

	listedCounter metric.Int64Counter
	bytesCounter  metric.Int64Counter
	kindAttrs     map[bool]metric.AddOption

	containers atomic.Int64
	records    atomic.Int64
	bytes      atomic.Int64
	skipped    atomic.Int64
	duration   atomic.Int64
}

// NewCrawlPipeline creates a pipeline. destination may be nil for dry runs.
func NewCrawlPipeline(source core.Source, destination core.Destination, opts Options, logger *zap.Logger) *CrawlPipeline {
	if destination == nil {
		opts.DryRun = true
	}
	connector := attribute.String("connector", source.Name())
	return &CrawlPipeline{
		source:      source,
		destination: destination,
		opts:        opts,
		logger:      logger.With(zap.String("component", "crawl_pipeline")),
		listedCounter: observability.Int64Counter("hci.crawl.records", "{record}",
			"Records emitted by crawls"),
		bytesCounter: observability.Int64Counter("hci.crawl.bytes", "By",
			"Content bytes read by crawls"),
		kindAttrs: map[bool]metric.AddOption{
			true:  metric.WithAttributes(connector, attribute.String("kind", "container")),
			false: metric.WithAttributes(connector, attribute.String("kind", "record")),
		},
	}
}

// Run crawls the source to completion or to the first unrecovered error.
// The stats gathered so far are returned in both cases.
func (p *CrawlPipeline) Run(ctx context.Context) (_ *Stats, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "pipeline.crawl", p.source.Name(),
		attribute.Bool("fetch_content", p.opts.FetchContent),
		attribute.Bool("dry_run", p.opts.DryRun))
	progress := newProgressReporter(p.logger, p.opts.ProgressInterval, p.Stats)
	progress.start()
	defer func() {
		progress.stop()
		p.duration.Store(int64(time.Since(start)))
		observability.EndSpan(span, err)
	}()

	p.logger.Info("starting crawl",
		zap.String("source", p.source.Name()),
		zap.Int("max_depth", p.opts.MaxDepth),
		zap.Bool("fetch_content", p.opts.FetchContent),
		zap.Bool("dry_run", p.opts.DryRun))

	if err = p.crawl(ctx); err != nil {
		stats := p.Stats()
		stats.Duration = time.Since(start)
		return &stats, err
	}

	stats := p.Stats()
	stats.Duration = time.Since(start)
	p.logger.Info("crawl completed",
		zap.Int64("containers", stats.Containers),
		zap.Int64("records", stats.Records),
		zap.Int64("bytes", stats.Bytes),
		zap.Int64("skipped", stats.Skipped),
		zap.Duration("duration", stats.Duration))
	return &stats, nil
}

func (p *CrawlPipeline) crawl(ctx context.Context) error {
	root, err := p.source.Root(ctx)
	if err != nil {
		return err
	}
	if err := p.emit(ctx, root); err != nil {
		return err
	}
	return p.walk(ctx, root, 1)
}

// walk lists container and descends into child containers as they appear.
func (p *CrawlPipeline) walk(ctx context.Context, container *core.Record, depth int) error {
	if p.opts.MaxDepth > 0 && depth > p.opts.MaxDepth {
		return nil
	}

	it, err := p.source.List(ctx, container)
	if err != nil {
		if errors.IsNotFound(err) {
			p.skip("container disappeared before listing", container, err)
			return nil
		}
		return err
	}
	defer it.Close()

	for it.Next(ctx) {
		rec := it.Record()
		if err := p.emit(ctx, rec); err != nil {
			return err
		}
		if rec.IsContainer {
			if err := p.walk(ctx, rec, depth+1); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		if errors.IsNotFound(err) {
			p.skip("container disappeared while listing", container, err)
			return nil
		}
		return err
	}
	return nil
}

// emit writes one record, opening its content when requested.
func (p *CrawlPipeline) emit(ctx context.Context, rec *core.Record) error {
	if rec.IsContainer {
		p.containers.Add(1)
	} else {
		p.records.Add(1)
	}
	p.listedCounter.Add(ctx, 1, p.kindAttrs[rec.IsContainer])
	if p.opts.DryRun {
		p.logger.Debug("record", zap.String("uri", rec.URI), zap.Bool("container", rec.IsContainer))
		return nil
	}

	var content io.Reader
	if p.opts.FetchContent && rec.HasContent && !rec.IsContainer {
		rc, err := p.source.Open(ctx, rec.URI)
		if err != nil {
			if errors.IsNotFound(err) {
				p.skip("content disappeared before fetch", rec, err)
				return nil
			}
			return err
		}
		defer rc.Close()
		counter := &countingReader{r: rc, n: &p.bytes}
		content = counter
		defer func() { p.bytesCounter.Add(ctx, counter.read, p.kindAttrs[false]) }()
	}

	if err := p.destination.Write(ctx, rec, content); err != nil {
		if errors.IsNotFound(err) {
			p.skip("content disappeared while writing", rec, err)
			return nil
		}
		return errors.Propagate(err, errors.ErrorTypeOperationFailed, "failed to write record")
	}
	return nil
}

func (p *CrawlPipeline) skip(reason string, rec *core.Record, err error) {
	p.skipped.Add(1)
	p.logger.Warn(reason, zap.String("uri", rec.URI), zap.Error(err))
}

// Stats returns the current counters. It may be called while Run is in
// progress; Duration is only set once a run has finished.
func (p *CrawlPipeline) Stats() Stats {
	return Stats{
		Containers: p.containers.Load(),
		Records:    p.records.Load(),
		Bytes:      p.bytes.Load(),
		Skipped:    p.skipped.Load(),
		Duration:   time.Duration(p.duration.Load()),
	}
}

type countingReader struct {
	r    io.Reader
	n    *atomic.Int64
	read int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n.Add(int64(n))
	c.read += int64(n)
	return n, err
}
