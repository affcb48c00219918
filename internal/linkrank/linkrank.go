// Package linkrank loads the link graph and computes the query-independent
// link signal from configuration.
package linkrank

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/graph"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/hits"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/pagerank"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
)

// Signal names accepted by Compute.
const (
	SignalPower      = "power"
	SignalMonteCarlo = "montecarlo"
)

// LoadGraph reads cfg.LinksFile and, when set, cfg.TitlesFile. Without a
// titles file every node is its own title.
func LoadGraph(cfg config.LinkRankConfig) (*graph.Graph, graph.Titles, error) {
	g, err := graph.LoadFile(cfg.LinksFile, cfg.MaxNodes)
	if err != nil {
		return nil, nil, err
	}
	titles := graph.Titles{}
	if cfg.TitlesFile != "" {
		if titles, err = graph.LoadTitlesFile(cfg.TitlesFile); err != nil {
			return nil, nil, err
		}
	}
	slog.Info("link graph loaded",
		"nodes", g.Len(),
		"edges", g.Edges(),
		"titles", len(titles),
		"truncated", g.Truncated,
		"skipped_lines", g.Skipped,
	)
	return g, titles, nil
}

// Compute runs the PageRank variant named by signal. m may be nil.
func Compute(g *graph.Graph, cfg config.LinkRankConfig, signal string, m *metrics.Metrics) (pagerank.Scores, error) {
	prCfg := pagerank.Config{
		Bored:         cfg.Bored,
		Epsilon:       cfg.Epsilon,
		MaxIterations: cfg.MaxIterations,
	}
	start := time.Now()
	switch signal {
	case SignalPower:
		res := pagerank.Compute(g, prCfg)
		if m != nil {
			m.LinkRankIterations.WithLabelValues("pagerank").Set(float64(res.Iterations))
		}
		slog.Info("pagerank computed",
			"iterations", res.Iterations,
			"converged", res.Converged,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return res.Scores, nil
	case SignalMonteCarlo:
		strategy, err := pagerank.ParseStrategy(cfg.MonteCarlo)
		if err != nil {
			return nil, err
		}
		rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
		scores := pagerank.MonteCarlo(g, prCfg, strategy, cfg.WalksPerNode, rng)
		slog.Info("monte carlo pagerank computed",
			"strategy", strategy,
			"walks_per_node", cfg.WalksPerNode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return scores, nil
	}
	return nil, fmt.Errorf("unknown link signal %q", signal)
}

// HITSConfig maps the configuration to a HITS ranker config.
func HITSConfig(cfg config.LinkRankConfig) hits.Config {
	return hits.Config{Epsilon: cfg.HITSEpsilon, MaxSteps: cfg.HITSMaxSteps}
}
