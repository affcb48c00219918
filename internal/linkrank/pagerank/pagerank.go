// Package pagerank computes the stationary distribution of the random
// surfer over a link graph, exactly by power iteration or approximately by
// Monte Carlo random walks.
package pagerank

import (
	"log/slog"
	"math"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/graph"
)

type Config struct {
	// Bored is the probability of a random jump instead of following a
	// link.
	Bored         float64
	Epsilon       float64
	MaxIterations int
}

func DefaultConfig() Config {
	return Config{Bored: 0.15, Epsilon: 1e-4, MaxIterations: 1000}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Bored <= 0 || c.Bored >= 1 {
		c.Bored = d.Bored
	}
	if c.Epsilon <= 0 {
		c.Epsilon = d.Epsilon
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	return c
}

// Result is the outcome of Compute.
type Result struct {
	Scores     Scores
	Iterations int
	Converged  bool
}

// Compute runs power iteration x' = xP from the start vector with all mass
// on node 0, until no coordinate moves more than Epsilon or MaxIterations
// steps were taken. P follows a link of i with probability
// (1-Bored)/outdeg(i) and jumps uniformly with probability Bored; a node
// without links always jumps uniformly. Each step costs O(nodes + edges).
func Compute(g *graph.Graph, cfg Config) Result {
	cfg = cfg.withDefaults()
	n := g.Len()
	if n == 0 {
		return Result{Converged: true}
	}
	x := make([]float64, n)
	next := make([]float64, n)
	next[0] = 1

	res := Result{}
	for res.Iterations < cfg.MaxIterations && maxDiff(x, next) > cfg.Epsilon {
		x, next = next, x
		step(g, cfg.Bored, x, next)
		res.Iterations++
	}
	res.Converged = maxDiff(x, next) <= cfg.Epsilon
	res.Scores = next

	slog.Default().With("component", "pagerank").Info("power iteration finished",
		"nodes", n,
		"iterations", res.Iterations,
		"converged", res.Converged,
	)
	return res
}

// step writes xP into next.
func step(g *graph.Graph, bored float64, x, next []float64) {
	n := float64(len(x))
	var linked, dangling float64
	for i, v := range x {
		if g.OutDegree(i) == 0 {
			dangling += v
		} else {
			linked += v
		}
	}
	base := bored*linked/n + dangling/n
	for j := range next {
		next[j] = base
	}
	for i, v := range x {
		deg := g.OutDegree(i)
		if deg == 0 || v == 0 {
			continue
		}
		share := (1 - bored) * v / float64(deg)
		for _, j := range g.Out(i) {
			next[j] += share
		}
	}
}

func maxDiff(a, b []float64) float64 {
	var d float64
	for i := range a {
		d = max(d, math.Abs(a[i]-b[i]))
	}
	return d
}
