package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/pagerank"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	signal := flag.String("signal", "", "power or montecarlo (default: search.linkSignal)")
	top := flag.Int("top", 30, "number of top-ranked nodes to print")
	out := flag.String("out", "", "scores output file (default: linkRank.scoresFile)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *signal == "" {
		*signal = cfg.Search.LinkSignal
	}
	if *out == "" {
		*out = cfg.LinkRank.ScoresFile
	}
	if err := run(cfg.LinkRank, *signal, *top, *out); err != nil {
		slog.Error("pagerank failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.LinkRankConfig, signal string, top int, out string) error {
	if cfg.LinksFile == "" {
		return fmt.Errorf("linkRank.linksFile is not set")
	}
	g, titles, err := linkrank.LoadGraph(cfg)
	if err != nil {
		return err
	}
	if g.Truncated {
		slog.Warn("link graph truncated, scores cover the loaded nodes only", "max_nodes", cfg.MaxNodes)
	}
	scores, err := linkrank.Compute(g, cfg, signal, metrics.NewUnregistered())
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)
	for i, r := range scores.Top(top) {
		fmt.Fprintf(w, "%d: %s %s %.5f\n", i+1, g.Name(r.Node), titles.Title(g.Name(r.Node)), r.Score)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if out == "" {
		return nil
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating scores file: %w", err)
	}
	if err := pagerank.WriteTitled(f, g, titles, scores); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("scores written", "file", out, "nodes", len(scores))
	return nil
}
