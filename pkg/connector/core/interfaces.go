package core

import (
	"context"
	"io"

	"github.com/kennyhitachi/hci-connectors/pkg/config"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// RecordIterator is a lazy, single-pass sequence of records. Next performs
// I/O only when the current page has been drained. Once Next returns false
// the iterator is finished and Err reports why; it cannot be restarted.
//
//	it, err := src.List(ctx, root)
//	if err != nil {
//	    return err
//	}
//	defer it.Close()
//	for it.Next(ctx) {
//	    handle(it.Record())
//	}
//	return it.Err()
type RecordIterator interface {
	Next(ctx context.Context) bool
	Record() *Record
	Err() error
	Close() error
}

// RecordStream is a channel view of a RecordIterator. Errors receives at most
// one value; both channels are closed when the stream ends.
type RecordStream struct {
	Records <-chan *Record
	Errors  <-chan error
}

// Source is the interface every crawl source implements. Initialize opens the
// session the source keeps until Close; one Source serves one crawl.
type Source interface {
	Initialize(ctx context.Context, config *config.BaseConfig) error

	// Root returns the synthetic record the host starts traversal from.
	Root(ctx context.Context) (*Record, error)
	// List returns the children of a container record.
	List(ctx context.Context, container *Record) (RecordIterator, error)
	// Get re-resolves a record from its URI.
	Get(ctx context.Context, uri string) (*Record, error)
	// Open streams the content of the record addressed by uri. Closing the
	// reader releases every remote handle opened for it.
	Open(ctx context.Context, uri string) (io.ReadCloser, error)

	Close(ctx context.Context) error

	Name() string
	Metrics() map[string]interface{}
}

// Destination receives crawled records.
type Destination interface {
	Initialize(ctx context.Context, config *config.BaseConfig) error
	// Write stores one record. content is nil for containers and for crawls
	// that skip content.
	Write(ctx context.Context, record *Record, content io.Reader) error
	Close(ctx context.Context) error

	Name() string
	Metrics() map[string]interface{}
}

// Connector is the identity shared by sources and destinations.
type Connector interface {
	Name() string
	Type() ConnectorType
	Version() string
}
