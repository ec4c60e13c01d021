package batch

import (
	"context"

	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
)

// Stream drains it on a single producer goroutine into a RecordStream. The
// iterator is closed when the stream ends. Cancelling ctx stops the producer
// and delivers ctx.Err() on the error channel.
func Stream(ctx context.Context, it core.RecordIterator, buffer int) *core.RecordStream {
	if buffer < 0 {
		buffer = 0
	}
	records := make(chan *core.Record, buffer)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(records)
		defer it.Close()

		for it.Next(ctx) {
			select {
			case records <- it.Record():
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := it.Err(); err != nil {
			errs <- err
		}
	}()

	return &core.RecordStream{Records: records, Errors: errs}
}

// Drain collects every record of it and closes it. On error the records read
// so far are returned with the error.
func Drain(ctx context.Context, it core.RecordIterator) ([]*core.Record, error) {
	defer it.Close()

	var out []*core.Record
	for it.Next(ctx) {
		out = append(out, it.Record())
	}
	return out, it.Err()
}
