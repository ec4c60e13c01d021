package batch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	"github.com/kennyhitachi/hci-connectors/pkg/logger"
	"github.com/kennyhitachi/hci-connectors/pkg/metrics"
)

// Mapper converts one raw item into a record. It must not perform I/O.
type Mapper[T any] func(item T) (*core.Record, error)

// Filter reports whether an item should be yielded.
type Filter[T any] func(item T) bool

// ListerConfig holds the non-generic Lister settings.
type ListerConfig struct {
	// Policy is config.ItemPolicyFail or config.ItemPolicySkip
	Policy    string
	Logger    *zap.Logger
	Collector *metrics.Collector
	// OnClose releases the handles backing the pager (directory handle, rows)
	OnClose func() error
}

// Lister is a core.RecordIterator over a Cursor.
type Lister[T any] struct {
	cursor *Cursor[T]
	mapper Mapper[T]
	filter Filter[T]
	cfg    ListerConfig

	record *core.Record
	err    error

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

var _ core.RecordIterator = (*Lister[int])(nil)

// NewLister creates a lister. filter may be nil.
func NewLister[T any](cursor *Cursor[T], mapper Mapper[T], filter Filter[T], cfg ListerConfig) *Lister[T] {
	if cfg.Policy == "" {
		cfg.Policy = config.ItemPolicyFail
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}
	return &Lister[T]{
		cursor: cursor,
		mapper: mapper,
		filter: filter,
		cfg:    cfg,
	}
}

// Next advances to the next record.
func (l *Lister[T]) Next(ctx context.Context) bool {
	if l.closed || l.err != nil {
		return false
	}

	for l.cursor.Next(ctx) {
		item := l.cursor.Item()
		if l.filter != nil && !l.filter(item) {
			continue
		}

		rec, err := l.mapper(item)
		if err != nil {
			if l.cfg.Policy == config.ItemPolicySkip {
				l.cfg.Logger.Warn("skipping malformed item", zap.Error(err))
				if l.cfg.Collector != nil {
					l.cfg.Collector.RecordError(string(errors.ErrorTypeData))
				}
				continue
			}
			l.err = errors.Propagate(err, errors.ErrorTypeData, "failed to map item")
			l.record = nil
			return false
		}

		l.record = rec
		if l.cfg.Collector != nil {
			l.cfg.Collector.RecordListed(rec.IsContainer)
		}
		return true
	}

	l.record = nil
	l.err = l.cursor.Err()
	return false
}

// Record returns the current record.
func (l *Lister[T]) Record() *core.Record {
	return l.record
}

// Err returns the error that ended the listing.
func (l *Lister[T]) Err() error {
	return l.err
}

// Close releases the listing's handles. It is safe to call more than once.
func (l *Lister[T]) Close() error {
	l.closeOnce.Do(func() {
		l.closed = true
		if l.cfg.OnClose != nil {
			l.closeErr = l.cfg.OnClose()
		}
	})
	return l.closeErr
}

// Requests returns how many pages the underlying cursor has requested.
func (l *Lister[T]) Requests() int {
	return l.cursor.Requests()
}
