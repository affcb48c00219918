package pagerank

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/graph"
)

// Strategy selects how walks start and what they count.
type Strategy int

const (
	// EndPointRandomStart counts where walks from random nodes stop.
	EndPointRandomStart Strategy = iota
	// EndPointCyclicStart counts where walks started from every node in
	// turn stop.
	EndPointCyclicStart
	// CompletePathCyclicStart counts every visit of walks started from
	// every node in turn; walks stop at dangling nodes.
	CompletePathCyclicStart
	// CompletePathRandomStart counts every visit of walks from random
	// nodes; walks stop at dangling nodes.
	CompletePathRandomStart
)

var strategyNames = map[Strategy]string{
	EndPointRandomStart:     "end-point-random",
	EndPointCyclicStart:     "end-point-cyclic",
	CompletePathCyclicStart: "complete-path-cyclic",
	CompletePathRandomStart: "complete-path-random",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy resolves a configured name. The empty string selects
// CompletePathCyclicStart.
func ParseStrategy(name string) (Strategy, error) {
	if name == "" {
		return CompletePathCyclicStart, nil
	}
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown monte carlo strategy %q", name)
}

// MonteCarlo estimates PageRank with walksPerNode * nodes random walks.
// A walk continues with probability 1-Bored. rng makes runs reproducible.
func MonteCarlo(g *graph.Graph, cfg Config, strategy Strategy, walksPerNode int, rng *rand.Rand) Scores {
	cfg = cfg.withDefaults()
	n := g.Len()
	if n == 0 {
		return Scores{}
	}
	if walksPerNode <= 0 {
		walksPerNode = 1
	}
	w := walker{g: g, n: n, cont: 1 - cfg.Bored, rng: rng}
	counts := make([]float64, n)
	var total float64

	switch strategy {
	case EndPointRandomStart:
		for range n * walksPerNode {
			counts[w.endPoint(rng.IntN(n))]++
			total++
		}
	case EndPointCyclicStart:
		for start := range n {
			for range walksPerNode {
				counts[w.endPoint(start)]++
				total++
			}
		}
	case CompletePathCyclicStart:
		for start := range n {
			for range walksPerNode {
				total += w.path(start, counts)
			}
		}
	case CompletePathRandomStart:
		for range n * walksPerNode {
			total += w.path(rng.IntN(n), counts)
		}
	default:
		panic(fmt.Sprintf("pagerank: invalid strategy %d", int(strategy)))
	}

	for i := range counts {
		counts[i] /= total
	}
	slog.Default().With("component", "pagerank").Info("monte carlo finished",
		"nodes", n,
		"strategy", strategy.String(),
		"samples", int(total),
	)
	return counts
}

type walker struct {
	g    *graph.Graph
	n    int
	cont float64
	rng  *rand.Rand
}

// endPoint walks from start and returns where the surfer got bored.
// Dangling nodes jump uniformly.
func (w *walker) endPoint(start int) int {
	cur := start
	for w.rng.Float64() < w.cont {
		out := w.g.Out(cur)
		if len(out) == 0 {
			cur = w.rng.IntN(w.n)
		} else {
			cur = out[w.rng.IntN(len(out))]
		}
	}
	return cur
}

// path walks from start, counting every visit, and returns the number of
// visits.
func (w *walker) path(start int, counts []float64) float64 {
	cur := start
	counts[cur]++
	visits := 1.0
	for w.rng.Float64() < w.cont {
		out := w.g.Out(cur)
		if len(out) == 0 {
			break
		}
		cur = out[w.rng.IntN(len(out))]
		counts[cur]++
		visits++
	}
	return visits
}
