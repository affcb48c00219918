// Package indexer builds the persistent inverted index. Insertions go to an
// in-memory buffer that is flushed as a new segment generation whenever it
// reaches the token budget; a background merger folds generations together,
// and Cleanup produces the canonical segment.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
)

// Summary describes a finished index build.
type Summary struct {
	Dir        string    `json:"dir"`
	Terms      int       `json:"terms"`
	Docs       int       `json:"docs"`
	Collisions int       `json:"collisions"`
	DataBytes  int64     `json:"data_bytes"`
	Flushes    int       `json:"flushes"`
	FinishedAt time.Time `json:"finished_at"`
}

// CompletionHook runs after Cleanup has produced the canonical segment.
type CompletionHook func(ctx context.Context, s Summary) error

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCompletionHook registers a hook; hooks run in registration order and
// their failures are logged without failing Cleanup.
func WithCompletionHook(h CompletionHook) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, h) }
}

// Engine is the persistent Index backend.
type Engine struct {
	cfg     config.IndexConfig
	buf     *index.MemoryIndex
	docs    *index.DocMeta
	merger  *merge.Merger
	metrics *metrics.Metrics
	hooks   []CompletionHook
	logger  *slog.Logger

	// nextGen is the next unused generation number; head is the generation
	// holding everything flushed so far, 0 before the first flush.
	nextGen int
	head    int
	flushes int

	statsMu sync.Mutex
	final   segment.Stats

	// readers holds the finalized generations still visible to queries,
	// oldest first; after Cleanup only the canonical segment.
	readerMu sync.RWMutex
	readers  []*segment.Reader
	cleaned  bool
}

// NewEngine prepares an empty index in cfg.Dir. Stale generation files of
// an interrupted build are removed.
func NewEngine(cfg config.IndexConfig, opts ...Option) (*Engine, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	docs := index.NewDocMeta()
	e := &Engine{
		cfg:     cfg,
		buf:     index.NewMemoryIndexWithDocs(docs),
		docs:    docs,
		logger:  slog.Default().With("component", "indexer", "dir", cfg.Dir),
		nextGen: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.removeStale(); err != nil {
		return nil, err
	}
	e.merger = merge.New(merge.Config{
		Dir:           cfg.Dir,
		TableSize:     cfg.TableSize,
		QueueSize:     cfg.MergeQueue,
		IOBytesPerSec: cfg.MergeIOBytesPerSec,
	}, e.metrics)
	return e, nil
}

func (e *Engine) removeStale() error {
	gens, err := segment.Generations(e.cfg.Dir)
	if err != nil {
		return err
	}
	for _, g := range gens {
		e.logger.Warn("removing stale generation", "generation", g)
		if err := segment.Remove(e.cfg.Dir, g); err != nil {
			return fmt.Errorf("removing stale generation %d: %w", g, err)
		}
	}
	return nil
}

// Insert buffers one token occurrence, flushing a generation when the token
// budget is reached.
func (e *Engine) Insert(term string, docID, offset int) error {
	if e.cleaned {
		return errors.New("insert after cleanup")
	}
	if err := e.buf.Insert(term, docID, offset); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.TokensIndexedTotal.Inc()
	}
	if e.cfg.TokenBudget > 0 && e.buf.Tokens() >= e.cfg.TokenBudget {
		e.logger.Info("token budget reached, flushing",
			"tokens", e.buf.Tokens(),
			"budget", e.cfg.TokenBudget,
		)
		return e.flush(context.Background())
	}
	return nil
}

// GetPostings combines the postings of every finalized generation with the
// write buffer. After Cleanup it reads the canonical segment alone. A
// corrupt record contributes its parseable part and the error.
func (e *Engine) GetPostings(term string) (*index.PostingsList, error) {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()

	var (
		parts   []*index.PostingsList
		corrupt []error
	)
	for _, r := range e.readers {
		l, err := r.GetPostings(term)
		if err != nil {
			if l == nil || !errors.Is(err, apperrors.ErrCorruptRecord) {
				return nil, fmt.Errorf("generation %d: %w", r.Gen(), err)
			}
			corrupt = append(corrupt, err)
		}
		if l != nil {
			parts = append(parts, l)
		}
	}
	if l, _ := e.buf.GetPostings(term); l != nil && l.Len() > 0 {
		parts = append(parts, l)
	}

	switch len(parts) {
	case 0:
		return nil, errors.Join(corrupt...)
	case 1:
		return parts[0], errors.Join(corrupt...)
	}
	out := index.NewPostingsList()
	for _, l := range parts {
		out.Merge(l)
	}
	return out, errors.Join(corrupt...)
}

func (e *Engine) Docs() *index.DocMeta {
	return e.docs
}

// flush writes the buffer as a new generation and schedules its merge with
// the head.
func (e *Engine) flush(ctx context.Context) error {
	if e.buf.NumTerms() == 0 {
		return nil
	}
	gen := e.nextGen
	e.nextGen++
	stats, err := e.writeBuffer(gen)
	if err != nil {
		e.countFlush("error")
		return err
	}
	e.countFlush("ok")
	e.flushes++
	if err := e.openLive(gen); err != nil {
		return err
	}
	e.logger.Info("generation flushed",
		"generation", gen,
		"terms", stats.Terms,
		"collisions", stats.Collisions,
	)

	if e.head == 0 {
		e.head = gen
		e.setFinal(stats)
	} else {
		out := e.nextGen
		e.nextGen++
		task := merge.Task{Older: e.head, Newer: gen, Out: out, NewerTerms: e.buf.TermSet()}
		task.Done = e.mergeDone(task)
		if err := e.merger.Schedule(ctx, task); err != nil {
			return fmt.Errorf("scheduling merge of %d and %d: %w", e.head, gen, err)
		}
		e.head = out
	}
	if e.metrics != nil {
		e.metrics.SegmentGeneration.Set(float64(e.head))
	}
	e.buf.Reset()
	return nil
}

func (e *Engine) writeBuffer(gen int) (segment.Stats, error) {
	w, err := segment.Create(e.cfg.Dir, gen, e.cfg.TableSize)
	if err != nil {
		return segment.Stats{}, err
	}
	for _, term := range e.buf.Terms() {
		l, _ := e.buf.GetPostings(term)
		if err := w.Add(term, l); err != nil {
			w.Abort()
			return segment.Stats{}, fmt.Errorf("writing generation %d: %w", gen, err)
		}
	}
	stats, err := w.Close()
	if err != nil {
		return stats, fmt.Errorf("closing generation %d: %w", gen, err)
	}
	if e.metrics != nil {
		e.metrics.DictCollisionsTotal.Add(float64(stats.Collisions))
	}
	return stats, nil
}

func (e *Engine) openLive(gen int) error {
	r, err := segment.Open(e.cfg.Dir, gen)
	if err != nil {
		return fmt.Errorf("opening generation %d: %w", gen, err)
	}
	e.readerMu.Lock()
	e.readers = append(e.readers, r)
	e.readerMu.Unlock()
	return nil
}

// mergeDone returns the completion callback of t. A merged intermediate
// generation replaces its two parents among the live readers; the parents'
// open handles stay readable until then even though their files are gone.
func (e *Engine) mergeDone(t merge.Task) func(segment.Stats, error) {
	return func(stats segment.Stats, err error) {
		if err != nil {
			return
		}
		e.setFinal(stats)
		if t.Out == segment.Canonical {
			return
		}
		merged, err := segment.Open(e.cfg.Dir, t.Out)
		if err != nil {
			e.logger.Error("opening merged generation", "generation", t.Out, "error", err)
			return
		}
		e.readerMu.Lock()
		defer e.readerMu.Unlock()
		live := e.readers[:0]
		for _, r := range e.readers {
			switch r.Gen() {
			case t.Older:
				r.Close()
				live = append(live, merged)
			case t.Newer:
				r.Close()
			default:
				live = append(live, r)
			}
		}
		e.readers = live
	}
}

func (e *Engine) setFinal(s segment.Stats) {
	e.statsMu.Lock()
	e.final = s
	e.statsMu.Unlock()
}

func (e *Engine) countFlush(status string) {
	if e.metrics != nil {
		e.metrics.SegmentFlushesTotal.WithLabelValues(status).Inc()
	}
}

// Cleanup flushes the rest of the buffer, merges it into the canonical
// segment, waits for every pending merge, and saves the document table.
func (e *Engine) Cleanup() error {
	return e.CleanupContext(context.Background())
}

func (e *Engine) CleanupContext(ctx context.Context) error {
	if e.cleaned {
		return nil
	}
	e.cleaned = true

	switch {
	case e.head == 0:
		// nothing flushed yet, the buffer becomes the canonical segment
		stats, err := e.writeBuffer(segment.Canonical)
		if err != nil {
			return err
		}
		e.setFinal(stats)
	case e.buf.NumTerms() > 0:
		gen := e.nextGen
		e.nextGen++
		if _, err := e.writeBuffer(gen); err != nil {
			return err
		}
		e.flushes++
		task := merge.Task{Older: e.head, Newer: gen, Out: segment.Canonical, NewerTerms: e.buf.TermSet()}
		task.Done = e.mergeDone(task)
		if err := e.merger.Schedule(ctx, task); err != nil {
			return fmt.Errorf("scheduling final merge: %w", err)
		}
	default:
		if err := e.merger.Wait(); err != nil {
			return fmt.Errorf("waiting for merges: %w", err)
		}
		if err := segment.Promote(e.cfg.Dir, e.head); err != nil {
			return err
		}
	}
	if err := e.merger.Close(); err != nil {
		return fmt.Errorf("waiting for merges: %w", err)
	}
	e.buf.Reset()

	if err := index.SaveDocMeta(e.cfg.Dir, e.docs); err != nil {
		return err
	}
	r, err := segment.Open(e.cfg.Dir, segment.Canonical)
	if err != nil {
		return fmt.Errorf("opening canonical segment: %w", err)
	}
	e.readerMu.Lock()
	for _, old := range e.readers {
		old.Close()
	}
	e.readers = []*segment.Reader{r}
	e.readerMu.Unlock()

	summary := e.Summary()
	e.logger.Info("index complete",
		"terms", summary.Terms,
		"docs", summary.Docs,
		"collisions", summary.Collisions,
		"flushes", summary.Flushes,
	)
	for _, h := range e.hooks {
		if err := h(ctx, summary); err != nil {
			e.logger.Error("completion hook failed", "error", err)
		}
	}
	return nil
}

// Summary reports the state of the last written head or canonical segment.
func (e *Engine) Summary() Summary {
	e.statsMu.Lock()
	s := e.final
	e.statsMu.Unlock()
	return Summary{
		Dir:        e.cfg.Dir,
		Terms:      s.Terms,
		Docs:       e.docs.Len(),
		Collisions: s.Collisions,
		DataBytes:  s.DataBytes,
		Flushes:    e.flushes,
		FinishedAt: time.Now().UTC(),
	}
}

// Close stops the merger and releases every open segment.
func (e *Engine) Close() error {
	errs := []error{e.merger.Close()}
	e.readerMu.Lock()
	for _, r := range e.readers {
		errs = append(errs, r.Close())
	}
	e.readers = nil
	e.readerMu.Unlock()
	return errors.Join(errs...)
}

// ReadOnly serves queries from an index directory written earlier.
type ReadOnly struct {
	reader *segment.Reader
	docs   *index.DocMeta
}

// Open loads the canonical segment of dir, or the newest generation when an
// interrupted build left no canonical segment.
func Open(dir string) (*ReadOnly, error) {
	gen := segment.Canonical
	if !segment.Exists(dir, gen) {
		gens, err := segment.Generations(dir)
		if err != nil {
			return nil, err
		}
		if len(gens) == 0 {
			return nil, fmt.Errorf("%w: no segment in %s", apperrors.ErrIndexNotReady, dir)
		}
		gen = gens[len(gens)-1]
		slog.Default().With("component", "indexer").Warn("canonical segment missing, using newest generation",
			"dir", dir,
			"generation", gen,
		)
	}
	r, err := segment.Open(dir, gen)
	if err != nil {
		return nil, err
	}
	docs, err := index.LoadDocMeta(dir)
	if err != nil {
		r.Close()
		return nil, err
	}
	return &ReadOnly{reader: r, docs: docs}, nil
}

func (o *ReadOnly) Insert(string, int, int) error {
	return errors.New("index is read-only")
}

func (o *ReadOnly) GetPostings(term string) (*index.PostingsList, error) {
	return o.reader.GetPostings(term)
}

func (o *ReadOnly) Docs() *index.DocMeta { return o.docs }

// Terms lists every dictionary term in slot order.
func (o *ReadOnly) Terms() ([]string, error) {
	var terms []string
	err := o.reader.Scan(func(term string, _ []byte) error {
		terms = append(terms, term)
		return nil
	})
	return terms, err
}

func (o *ReadOnly) Cleanup() error { return nil }

func (o *ReadOnly) Close() error { return o.reader.Close() }

// New returns the backend selected by cfg.Backend.
func New(cfg config.IndexConfig, opts ...Option) (index.Index, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return index.NewMemoryIndex(), nil
	case config.BackendPersistent:
		cfg.TokenBudget = 0
		return NewEngine(cfg, opts...)
	case config.BackendScalable:
		return NewEngine(cfg, opts...)
	default:
		return nil, fmt.Errorf("%w: index backend %q", apperrors.ErrInvalidInput, cfg.Backend)
	}
}
