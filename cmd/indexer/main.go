package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/archive"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	source := flag.String("source", "dir", "document source: dir or kafka")
	corpus := flag.String("corpus", ".", "corpus directory for -source dir")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, *source, *corpus); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer stopped")
}

func run(cfg *config.Config, source, corpus string) error {
	if cfg.Index.Backend == config.BackendMemory {
		return errors.New("the memory backend keeps nothing on disk; use persistent or scalable")
	}
	if source != "dir" && source != "kafka" {
		return fmt.Errorf("unknown source %q", source)
	}
	slog.Info("starting indexer",
		"dir", cfg.Index.Dir,
		"backend", cfg.Index.Backend,
		"table_size", cfg.Index.TableSize,
		"token_budget", cfg.Index.TokenBudget,
		"source", source,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	checker := health.NewChecker()
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
			"GET /health/live":  checker.LiveHandler(),
			"GET /health/ready": checker.ReadyHandler(),
		})
		defer shutdown(context.Background())
	}

	opts := []indexer.Option{indexer.WithMetrics(m)}
	var (
		sink indexer.DocSink
		docs *index.DocMeta
	)

	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		checker.Register("postgres", health.ErrorCheck(db.Ping))
		store := docstore.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		if source == "kafka" {
			sink = store
		}
		opts = append(opts, indexer.WithCompletionHook(func(ctx context.Context, _ indexer.Summary) error {
			return store.SaveAll(ctx, docs)
		}))
	}

	if cfg.Archive.Enabled {
		store, err := archive.NewMinioStore(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		checker.RegisterOptional("minio", health.ErrorCheck(store.Ping))
		opts = append(opts, indexer.WithCompletionHook(archive.New(store).Hook()))
		slog.Info("segment archival enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		opts = append(opts, indexer.WithCompletionHook(func(ctx context.Context, s indexer.Summary) error {
			return producer.Publish(ctx, kafka.Event{Key: s.Dir, Value: s})
		}))
	}

	idx, err := indexer.New(cfg.Index, opts...)
	if err != nil {
		return err
	}
	docs = idx.Docs()
	defer func() {
		if c, ok := idx.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Error("closing index", "error", err)
			}
		}
	}()

	tok := tokenizer.New(tokenizer.Options{StopWords: cfg.Index.StopWords, Stem: cfg.Index.Stem})
	builder := indexer.NewBuilder(idx, tok, sink, m)

	start := time.Now()
	switch source {
	case "dir":
		n, err := builder.IndexDir(ctx, corpus, cfg.Index.Patterns)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		slog.Info("corpus indexed", "docs", n, "root", corpus)
	case "kafka":
		if !cfg.Kafka.Enabled {
			return errors.New("kafka source requires kafka.enabled")
		}
		ic := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, consumer.HandleMessage(builder)))
		slog.Info("consuming documents",
			"topic", cfg.Kafka.Topics.DocumentIngest,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := ic.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("consumer error", "error", err)
		}
		if err := ic.Close(); err != nil {
			slog.Error("closing consumer", "error", err)
		}
	}

	slog.Info("finalizing index")
	if err := idx.Cleanup(); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	slog.Info("index complete", "duration_ms", time.Since(start).Milliseconds())
	return nil
}
