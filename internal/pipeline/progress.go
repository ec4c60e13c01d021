package pipeline

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// progressReporter logs crawl counters on a fixed interval while a crawl runs.
type progressReporter struct {
	logger   *zap.Logger
	snapshot func() Stats
	interval time.Duration
	// proc reports this process' resource usage; nil when unavailable
	proc *process.Process

	startTime      time.Time
	lastReportTime time.Time
	lastRecords    int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newProgressReporter(logger *zap.Logger, interval time.Duration, snapshot func() Stats) *progressReporter {
	now := time.Now()
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &progressReporter{
		proc:           proc,
		logger:         logger,
		snapshot:       snapshot,
		interval:       interval,
		startTime:      now,
		lastReportTime: now,
		stopCh:         make(chan struct{}),
	}
}

// start begins periodic reporting. A non-positive interval disables it.
func (pr *progressReporter) start() {
	if pr.interval <= 0 {
		return
	}
	pr.wg.Add(1)
	go func() {
		defer pr.wg.Done()
		ticker := time.NewTicker(pr.interval)
		defer ticker.Stop()

		for {
			select {
			case <-pr.stopCh:
				return
			case <-ticker.C:
				pr.report()
			}
		}
	}()
}

// stop ends reporting and waits for the reporting goroutine. Safe to call
// when start was a no-op.
func (pr *progressReporter) stop() {
	close(pr.stopCh)
	pr.wg.Wait()
}

func (pr *progressReporter) report() {
	s := pr.snapshot()
	now := time.Now()
	interval := now.Sub(pr.lastReportTime)

	var throughput float64
	if interval > 0 {
		throughput = float64(s.Records-pr.lastRecords) / interval.Seconds()
	}

	fields := []zap.Field{
		zap.Int64("containers", s.Containers),
		zap.Int64("records", s.Records),
		zap.Int64("bytes", s.Bytes),
		zap.Int64("skipped", s.Skipped),
		zap.Float64("records_per_second", throughput),
		zap.Duration("elapsed", now.Sub(pr.startTime)),
	}
	fields = append(fields, pr.resourceFields()...)
	pr.logger.Info("progress update", fields...)

	pr.lastReportTime = now
	pr.lastRecords = s.Records
}

// resourceFields reports resident memory and CPU usage of the crawler process.
func (pr *progressReporter) resourceFields() []zap.Field {
	if pr.proc == nil {
		return nil
	}
	var fields []zap.Field
	if mem, err := pr.proc.MemoryInfo(); err == nil {
		fields = append(fields, zap.Uint64("rss_bytes", mem.RSS))
	}
	if cpu, err := pr.proc.CPUPercent(); err == nil {
		fields = append(fields, zap.Float64("cpu_percent", cpu))
	}
	return fields
}
