// Package batch turns paged fetches into lazy record sequences.
//
// A Pager fetches one page at a given offset. A Cursor walks the pages in
// order, requesting the next page only after the current one has been fully
// consumed, and a Lister maps the cursor's items into core records:
//
//	cursor := batch.NewCursor[row](pager, 100, batch.WithConnector("sqldb", collector))
//	lister := batch.NewLister(cursor, mapRow, nil, batch.ListerConfig{Policy: config.ItemPolicyFail})
//	defer lister.Close()
//	for lister.Next(ctx) {
//	    rec := lister.Record()
//	}
//	if err := lister.Err(); err != nil {
//	    return err
//	}
//
// Cursors and listers are single-pass and single-consumer. Once exhausted, or
// once a fetch has failed, they never fetch again.
package batch

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	"github.com/kennyhitachi/hci-connectors/pkg/metrics"
	"github.com/kennyhitachi/hci-connectors/pkg/observability"
)

// Pager fetches one page of items. limit is zero when paging is disabled, in
// which case the pager returns everything in a single call.
type Pager[T any] interface {
	FetchPage(ctx context.Context, offset, limit int) ([]T, error)
}

// PagerFunc adapts a function to the Pager interface.
type PagerFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// FetchPage calls f.
func (f PagerFunc[T]) FetchPage(ctx context.Context, offset, limit int) ([]T, error) {
	return f(ctx, offset, limit)
}

type cursorOptions struct {
	connector       string
	collector       *metrics.Collector
	stopOnShortPage bool
}

// CursorOption configures a Cursor.
type CursorOption func(*cursorOptions)

// WithConnector labels page spans and metrics with the connector name.
func WithConnector(name string, collector *metrics.Collector) CursorOption {
	return func(o *cursorOptions) {
		o.connector = name
		o.collector = collector
	}
}

// WithShortPageEnd controls whether a page shorter than the page size ends
// the sequence. It is on by default. Sources whose pages may come back short
// before the end (directory reads) turn it off and rely on the empty page.
func WithShortPageEnd(enabled bool) CursorOption {
	return func(o *cursorOptions) {
		o.stopOnShortPage = enabled
	}
}

// Cursor is the transient iteration state over a Pager.
type Cursor[T any] struct {
	pager    Pager[T]
	pageSize int
	opts     cursorOptions

	offset    int
	page      []T
	pos       int
	current   T
	exhausted bool
	err       error
	requests  int
}

// NewCursor creates a cursor. A pageSize of zero or less disables paging:
// the cursor makes exactly one request with limit 0.
func NewCursor[T any](pager Pager[T], pageSize int, opts ...CursorOption) *Cursor[T] {
	o := cursorOptions{connector: "batch", stopOnShortPage: true}
	for _, opt := range opts {
		opt(&o)
	}
	if pageSize < 0 {
		pageSize = 0
	}
	return &Cursor[T]{
		pager:    pager,
		pageSize: pageSize,
		opts:     o,
	}
}

// Next advances to the next item, fetching a page when the current one is
// drained. It returns false at the end of the sequence or after an error.
func (c *Cursor[T]) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	for c.pos >= len(c.page) {
		if c.exhausted {
			c.page = nil
			return false
		}
		if err := c.fetch(ctx); err != nil {
			c.err = err
			c.exhausted = true
			c.page = nil
			return false
		}
	}
	c.current = c.page[c.pos]
	c.pos++
	return true
}

func (c *Cursor[T]) fetch(ctx context.Context) (err error) {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeOperationFailed, "listing cancelled")
	}

	ctx, span := observability.StartSpan(ctx, "batch.fetch_page", c.opts.connector,
		attribute.Int("offset", c.offset),
		attribute.Int("limit", c.pageSize))
	defer func() { observability.EndSpan(span, err) }()

	var timer *metrics.PageTimer
	if c.opts.collector != nil {
		timer = c.opts.collector.StartPage()
	}

	items, fetchErr := c.pager.FetchPage(ctx, c.offset, c.pageSize)
	c.requests++
	if timer != nil {
		timer.Done(len(items), fetchErr)
	}
	if fetchErr != nil {
		return errors.Propagate(fetchErr, errors.ErrorTypeOperationFailed, "failed to fetch page")
	}

	span.SetAttributes(attribute.Int("items", len(items)))

	switch {
	case c.pageSize == 0, len(items) == 0:
		c.exhausted = true
	case c.opts.stopOnShortPage && len(items) < c.pageSize:
		c.exhausted = true
	}

	c.page = items
	c.pos = 0
	c.offset += c.pageSize
	return nil
}

// Item returns the item Next advanced to.
func (c *Cursor[T]) Item() T {
	return c.current
}

// Err returns the error that ended the sequence, if any.
func (c *Cursor[T]) Err() error {
	return c.err
}

// Requests returns how many page requests have been made.
func (c *Cursor[T]) Requests() int {
	return c.requests
}

// Exhausted reports whether the cursor will make no further requests.
func (c *Cursor[T]) Exhausted() bool {
	return c.exhausted
}
