// Package merge folds segment generations together in the background while
// indexing continues.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
)

// Task merges generation Newer into Older, writing generation Out.
type Task struct {
	Older int
	Newer int
	Out   int
	// NewerTerms is the set of terms stored in Newer. When nil it is
	// rebuilt by scanning Newer. Merge consumes the set.
	NewerTerms map[string]struct{}
	// Done, when set, receives the outcome after the parents are removed.
	Done func(segment.Stats, error)
}

// Merge runs one task synchronously: it scans Older in dictionary order,
// merging in the postings of every term also present in Newer, then appends
// the terms only Newer has. Parent generations are deleted on success.
// Corrupt records are logged and skipped, keeping whatever postings still
// parse; Stats.Corrupt counts them.
func Merge(ctx context.Context, dir string, tableSize int, t Task, limiter *rate.Limiter) (segment.Stats, error) {
	older, err := segment.Open(dir, t.Older)
	if err != nil {
		return segment.Stats{}, fmt.Errorf("opening generation %d: %w", t.Older, err)
	}
	defer older.Close()
	newer, err := segment.Open(dir, t.Newer)
	if err != nil {
		return segment.Stats{}, fmt.Errorf("opening generation %d: %w", t.Newer, err)
	}
	defer newer.Close()

	pending := t.NewerTerms
	if pending == nil {
		if pending, err = termSet(newer); err != nil {
			return segment.Stats{}, err
		}
	}

	w, err := segment.Create(dir, t.Out, tableSize)
	if err != nil {
		return segment.Stats{}, err
	}
	logger := slog.Default().With("component", "segment-merger", "out", t.Out)
	corrupt := 0
	skip := func(term string, gen int, err error) {
		corrupt++
		logger.Warn("corrupt record", "term", term, "generation", gen, "error", err)
	}

	var buf []byte
	mergeTerm := func(term string, postings []byte) error {
		if err := throttle(ctx, limiter, len(postings)); err != nil {
			return err
		}
		if _, ok := pending[term]; !ok {
			return w.AddRecord(term, postings)
		}
		delete(pending, term)
		rec, err := newer.Record(term)
		if err != nil {
			if !errors.Is(err, apperrors.ErrCorruptRecord) {
				return fmt.Errorf("reading %q from generation %d: %w", term, t.Newer, err)
			}
			skip(term, t.Newer, err)
			return w.AddRecord(term, postings)
		}
		merged, err := mergeRecords(postings, rec)
		if err != nil {
			skip(term, t.Older, err)
		}
		buf = merged.AppendEncoded(buf[:0])
		return w.AddRecord(term, buf)
	}
	fnFailed := false
	err = older.Scan(func(term string, postings []byte) error {
		if err := mergeTerm(term, postings); err != nil {
			fnFailed = true
			return err
		}
		return nil
	})
	// a scan error that is not ours only reports corrupt slots
	if err != nil && !fnFailed && errors.Is(err, apperrors.ErrCorruptRecord) {
		n := countJoined(err)
		corrupt += n
		logger.Warn("corrupt slots skipped", "generation", t.Older, "count", n, "error", err)
		err = nil
	}
	if err != nil {
		w.Abort()
		return segment.Stats{}, fmt.Errorf("merging generation %d into %d: %w", t.Newer, t.Older, err)
	}

	rest := make([]string, 0, len(pending))
	for term := range pending {
		rest = append(rest, term)
	}
	slices.Sort(rest)
	for _, term := range rest {
		rec, err := newer.Record(term)
		if errors.Is(err, apperrors.ErrCorruptRecord) {
			skip(term, t.Newer, err)
			continue
		}
		if err == nil && rec == nil {
			err = fmt.Errorf("term %q listed but missing", term)
		}
		if err == nil {
			err = throttle(ctx, limiter, len(rec))
		}
		if err == nil {
			err = w.AddRecord(term, rec)
		}
		if err != nil {
			w.Abort()
			return segment.Stats{}, fmt.Errorf("copying %q from generation %d: %w", term, t.Newer, err)
		}
	}

	stats, err := w.Close()
	if err != nil {
		return stats, err
	}
	stats.Corrupt = corrupt
	older.Close()
	newer.Close()
	if err := segment.Remove(dir, t.Older); err != nil {
		return stats, fmt.Errorf("removing generation %d: %w", t.Older, err)
	}
	if err := segment.Remove(dir, t.Newer); err != nil {
		return stats, fmt.Errorf("removing generation %d: %w", t.Newer, err)
	}
	return stats, nil
}

// mergeRecords combines two encoded postings lists. Unparseable postings
// are dropped; the error reports them while the result keeps the rest.
func mergeRecords(a, b []byte) (*index.PostingsList, error) {
	la, errA := index.ParsePostings(string(a))
	lb, errB := index.ParsePostings(string(b))
	la.Merge(lb)
	return la, errors.Join(errA, errB)
}

func countJoined(err error) int {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return len(j.Unwrap())
	}
	return 1
}

func termSet(r *segment.Reader) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	err := r.Scan(func(term string, _ []byte) error {
		set[term] = struct{}{}
		return nil
	})
	if err != nil && !errors.Is(err, apperrors.ErrCorruptRecord) {
		return nil, fmt.Errorf("listing terms of generation %d: %w", r.Gen(), err)
	}
	return set, nil
}

// throttle waits for n bytes of merge I/O budget, splitting requests larger
// than the limiter's burst.
func throttle(ctx context.Context, l *rate.Limiter, n int) error {
	if l == nil {
		return nil
	}
	for n > 0 {
		chunk := min(n, l.Burst())
		if err := l.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
