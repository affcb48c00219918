// Package archive copies a finished index directory to object storage and
// back. The dictionary and data files are zstd compressed; docInfo is
// stored as is.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/resilience"
)

type object struct {
	local    string
	name     string
	compress bool
}

func objects(dir string) []object {
	return []object{
		{local: segment.DictPath(dir, segment.Canonical), name: "dictionary.zst", compress: true},
		{local: segment.DataPath(dir, segment.Canonical), name: "data.zst", compress: true},
		{local: filepath.Join(dir, index.DocInfoFile), name: index.DocInfoFile},
	}
}

type Archiver struct {
	store  Store
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func New(store Store) *Archiver {
	return &Archiver{
		store: store,
		retry: resilience.RetryConfig{
			MaxAttempts:    4,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       10 * time.Second,
			Multiplier:     2,
			JitterFraction: 0.2,
		},
		logger: slog.Default().With("component", "archive"),
	}
}

// Upload stores the canonical segment and docInfo of dir. The three
// objects are uploaded concurrently, each with retries.
func (a *Archiver) Upload(ctx context.Context, dir string) error {
	if !segment.Exists(dir, segment.Canonical) {
		return fmt.Errorf("no canonical segment in %s", dir)
	}
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for _, obj := range objects(dir) {
		g.Go(func() error {
			return a.upload(ctx, obj)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("index archived", "dir", dir, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (a *Archiver) upload(ctx context.Context, obj object) error {
	src, err := os.Open(obj.local)
	if err != nil {
		return fmt.Errorf("opening %s: %w", obj.local, err)
	}
	defer src.Close()

	body := src
	if obj.compress {
		tmp, err := os.CreateTemp("", "archive-*.zst")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		defer func() {
			tmp.Close()
			os.Remove(tmp.Name())
		}()
		if err := compress(tmp, src); err != nil {
			return fmt.Errorf("compressing %s: %w", obj.local, err)
		}
		body = tmp
	}
	info, err := body.Stat()
	if err != nil {
		return err
	}

	return resilience.Retry(ctx, "archive-upload", a.retry, func() error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := a.store.Put(ctx, obj.name, body, info.Size()); err != nil {
			return fmt.Errorf("uploading %s: %w", obj.name, err)
		}
		a.logger.Debug("object uploaded", "object", obj.name, "bytes", info.Size())
		return nil
	})
}

// Restore downloads an archived index into dir.
func (a *Archiver) Restore(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, obj := range objects(dir) {
		g.Go(func() error {
			return a.restore(ctx, obj)
		})
	}
	return g.Wait()
}

func (a *Archiver) restore(ctx context.Context, obj object) error {
	var rc io.ReadCloser
	err := resilience.Retry(ctx, "archive-download", resilience.RetryConfig{
		MaxAttempts: a.retry.MaxAttempts,
		Retryable:   func(err error) bool { return !errors.Is(err, ErrNotFound) },
	}, func() error {
		var err error
		rc, err = a.store.Get(ctx, obj.name)
		return err
	})
	if err != nil {
		return fmt.Errorf("downloading %s: %w", obj.name, err)
	}
	defer rc.Close()

	tmp := obj.local + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if obj.compress {
		err = decompress(dst, rc)
	} else {
		_, err = io.Copy(dst, rc)
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", obj.local, err)
	}
	return os.Rename(tmp, obj.local)
}

// Hook uploads the finished index as an indexer completion hook.
func (a *Archiver) Hook() indexer.CompletionHook {
	return func(ctx context.Context, s indexer.Summary) error {
		return a.Upload(ctx, s.Dir)
	}
}

func compress(dst io.Writer, src io.Reader) error {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func decompress(dst io.Writer, src io.Reader) error {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return err
	}
	defer dec.Close()
	_, err = io.Copy(dst, dec)
	return err
}
