// Package metrics provides Prometheus instrumentation for crawls. Each
// connector owns a Collector that labels the shared vectors with its name.
//
//	collector := metrics.NewCollector("cifs")
//	timer := collector.StartPage()
//	entries, err := dir.Readdir(n)
//	timer.Done(len(entries), err)
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts page requests made against a source.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hci",
			Name:      "pages_fetched_total",
			Help:      "Total number of page requests made against a source",
		},
		[]string{"connector"},
	)

	// RecordsListed counts records yielded by listers.
	// Labels: connector, kind (container/leaf)
	RecordsListed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hci",
			Name:      "records_listed_total",
			Help:      "Total number of records yielded by listings",
		},
		[]string{"connector", "kind"},
	)

	// PageFetchDuration tracks page request latency in seconds.
	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hci",
			Name:      "page_fetch_seconds",
			Help:      "Duration of page requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"connector"},
	)

	// PageSize tracks how many items each page returned.
	PageSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hci",
			Name:      "page_items",
			Help:      "Number of items returned per page request",
			Buckets:   []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000},
		},
		[]string{"connector"},
	)

	// Errors counts surfaced failures by error type.
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hci",
			Name:      "errors_total",
			Help:      "Total number of surfaced connector errors",
		},
		[]string{"connector", "type"},
	)

	// ActiveSessions tracks open sessions per connector.
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hci",
			Name:      "active_sessions",
			Help:      "Number of open connector sessions",
		},
		[]string{"connector"},
	)

	// ContentBytes counts bytes streamed through content accessors.
	ContentBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hci",
			Name:      "content_bytes_total",
			Help:      "Total bytes read through content streams",
		},
		[]string{"connector"},
	)
)

// Collector records metrics for one connector instance and keeps local
// counters for the connector's Metrics() snapshot.
type Collector struct {
	name      string
	startTime time.Time

	pages    int64
	records  int64
	errors   int64
	bytes    int64
	mu       sync.RWMutex
	lastPage time.Duration
}

// NewCollector creates a new metrics collector for a connector.
func NewCollector(name string) *Collector {
	return &Collector{
		name:      name,
		startTime: time.Now(),
	}
}

// PageTimer measures one page request.
type PageTimer struct {
	c     *Collector
	start time.Time
}

// StartPage starts timing a page request.
func (c *Collector) StartPage() *PageTimer {
	return &PageTimer{c: c, start: time.Now()}
}

// Done finishes the page measurement. items is the page length.
func (t *PageTimer) Done(items int, err error) {
	elapsed := time.Since(t.start)
	PagesFetched.WithLabelValues(t.c.name).Inc()
	PageFetchDuration.WithLabelValues(t.c.name).Observe(elapsed.Seconds())
	PageSize.WithLabelValues(t.c.name).Observe(float64(items))
	atomic.AddInt64(&t.c.pages, 1)

	t.c.mu.Lock()
	t.c.lastPage = elapsed
	t.c.mu.Unlock()

	if err != nil {
		t.c.RecordError("page")
	}
}

// RecordListed counts one yielded record.
func (c *Collector) RecordListed(container bool) {
	kind := "leaf"
	if container {
		kind = "container"
	}
	RecordsListed.WithLabelValues(c.name, kind).Inc()
	atomic.AddInt64(&c.records, 1)
}

// RecordError counts a surfaced failure.
func (c *Collector) RecordError(errType string) {
	Errors.WithLabelValues(c.name, errType).Inc()
	atomic.AddInt64(&c.errors, 1)
}

// RecordBytes counts content bytes.
func (c *Collector) RecordBytes(n int64) {
	ContentBytes.WithLabelValues(c.name).Add(float64(n))
	atomic.AddInt64(&c.bytes, n)
}

// SessionOpened marks a session as open.
func (c *Collector) SessionOpened() {
	ActiveSessions.WithLabelValues(c.name).Inc()
}

// SessionClosed marks a session as closed.
func (c *Collector) SessionClosed() {
	ActiveSessions.WithLabelValues(c.name).Dec()
}

// StartTime returns when the collector was created
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// GetAll returns a snapshot of the local counters.
func (c *Collector) GetAll() map[string]interface{} {
	c.mu.RLock()
	lastPage := c.lastPage
	c.mu.RUnlock()

	return map[string]interface{}{
		"component":      c.name,
		"uptime":         time.Since(c.startTime).Seconds(),
		"pages_fetched":  atomic.LoadInt64(&c.pages),
		"records_listed": atomic.LoadInt64(&c.records),
		"errors":         atomic.LoadInt64(&c.errors),
		"content_bytes":  atomic.LoadInt64(&c.bytes),
		"last_page_ms":   lastPage.Milliseconds(),
	}
}
