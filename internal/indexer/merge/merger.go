package merge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
)

// ErrClosed is returned by Schedule after Close.
var ErrClosed = errors.New("merger closed")

type Config struct {
	Dir       string
	TableSize int
	// QueueSize bounds pending tasks; Schedule blocks when it is full.
	QueueSize int
	// IOBytesPerSec throttles merge reads. Zero is unlimited.
	IOBytesPerSec float64
}

// Merger runs merge tasks one at a time in submission order. A single
// permit gate guarantees that at most one merge touches the directory.
type Merger struct {
	cfg     Config
	tasks   chan Task
	gate    *semaphore.Weighted
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger

	pending sync.WaitGroup
	done    chan struct{}

	mu       sync.Mutex
	closed   bool
	firstErr error
}

// New starts the merge worker. m may be nil.
func New(cfg Config, m *metrics.Metrics) *Merger {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	mg := &Merger{
		cfg:     cfg,
		tasks:   make(chan Task, cfg.QueueSize),
		gate:    semaphore.NewWeighted(1),
		metrics: m,
		logger:  slog.Default().With("component", "segment-merger"),
		done:    make(chan struct{}),
	}
	if cfg.IOBytesPerSec > 0 {
		burst := max(int(cfg.IOBytesPerSec), 1<<16)
		mg.limiter = rate.NewLimiter(rate.Limit(cfg.IOBytesPerSec), burst)
	}
	go mg.run()
	return mg
}

// Schedule enqueues t. The files of both parents must be durable before
// the call.
func (m *Merger) Schedule(ctx context.Context, t Task) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.pending.Add(1)
	m.mu.Unlock()

	select {
	case m.tasks <- t:
		m.logger.Debug("merge scheduled", "older", t.Older, "newer", t.Newer, "out", t.Out)
		return nil
	case <-ctx.Done():
		m.pending.Done()
		return ctx.Err()
	}
}

// Run executes t synchronously under the merge gate.
func (m *Merger) Run(ctx context.Context, t Task) (segment.Stats, error) {
	if err := m.gate.Acquire(ctx, 1); err != nil {
		return segment.Stats{}, err
	}
	defer m.gate.Release(1)

	start := time.Now()
	stats, err := Merge(ctx, m.cfg.Dir, m.cfg.TableSize, t, m.limiter)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		m.logger.Error("merge failed",
			"older", t.Older,
			"newer", t.Newer,
			"out", t.Out,
			"error", err,
		)
	} else {
		m.logger.Info("merge complete",
			"older", t.Older,
			"newer", t.Newer,
			"out", t.Out,
			"terms", stats.Terms,
			"collisions", stats.Collisions,
			"corrupt", stats.Corrupt,
			"duration", elapsed,
		)
	}
	if m.metrics != nil {
		m.metrics.SegmentMergesTotal.WithLabelValues(status).Inc()
		m.metrics.MergeDuration.Observe(elapsed.Seconds())
		if err == nil {
			m.metrics.DictCollisionsTotal.Add(float64(stats.Collisions))
			m.metrics.CorruptRecordsTotal.Add(float64(stats.Corrupt))
		}
	}
	return stats, err
}

func (m *Merger) run() {
	defer close(m.done)
	for t := range m.tasks {
		stats, err := m.Run(context.Background(), t)
		if err != nil {
			m.mu.Lock()
			if m.firstErr == nil {
				m.firstErr = err
			}
			m.mu.Unlock()
		}
		if t.Done != nil {
			t.Done(stats, err)
		}
		m.pending.Done()
	}
}

// Wait blocks until every scheduled task has finished and returns the
// first merge error seen so far.
func (m *Merger) Wait() error {
	m.pending.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firstErr
}

// Close drains the queue and stops the worker.
func (m *Merger) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return m.firstErr
	}
	m.closed = true
	m.mu.Unlock()

	m.pending.Wait()
	close(m.tasks)
	<-m.done
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firstErr
}
