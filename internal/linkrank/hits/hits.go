// Package hits ranks the documents of a query's base set by Kleinberg's
// hub and authority scores over the link graph.
package hits

import (
	"cmp"
	"log/slog"
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/graph"
)

type Config struct {
	Epsilon  float64
	MaxSteps int
}

func DefaultConfig() Config {
	return Config{Epsilon: 1e-3, MaxSteps: 1000}
}

// Scored is a document with its hub and authority scores. Score is their
// sum.
type Scored struct {
	DocID     int
	Hub       float64
	Authority float64
	Score     float64
}

// Ranker runs HITS on query-specific subgraphs of one link graph.
type Ranker struct {
	g      *graph.Graph
	in     [][]int
	tr     *graph.Translator
	cfg    Config
	logger *slog.Logger
}

func NewRanker(g *graph.Graph, tr *graph.Translator, cfg Config) *Ranker {
	d := DefaultConfig()
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = d.Epsilon
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = d.MaxSteps
	}
	in := make([][]int, g.Len())
	for from := range g.Len() {
		for _, to := range g.Out(from) {
			in[to] = append(in[to], from)
		}
	}
	return &Ranker{g: g, in: in, tr: tr, cfg: cfg, logger: slog.Default().With("component", "hits")}
}

// subgraph is the root set expanded by every edge touching it, with nodes
// renumbered densely.
type subgraph struct {
	nodes []int
	local map[int]int
	out   [][]int
}

func (r *Ranker) expand(root []int) *subgraph {
	sg := &subgraph{local: make(map[int]int)}
	add := func(node int) int {
		if i, ok := sg.local[node]; ok {
			return i
		}
		i := len(sg.nodes)
		sg.local[node] = i
		sg.nodes = append(sg.nodes, node)
		sg.out = append(sg.out, nil)
		return i
	}
	type edge struct{ from, to int }
	seen := make(map[edge]struct{})
	link := func(from, to int) {
		e := edge{add(from), add(to)}
		if _, dup := seen[e]; dup {
			return
		}
		seen[e] = struct{}{}
		sg.out[e.from] = append(sg.out[e.from], e.to)
	}
	for _, node := range root {
		add(node)
	}
	for _, node := range root {
		for _, to := range r.g.Out(node) {
			link(node, to)
		}
		for _, from := range r.in[node] {
			link(from, node)
		}
	}
	return sg
}

// Rank scores the documents of baseDocs and their link neighbourhood.
// Documents without a graph node are ignored, as are nodes without a
// document. The result is sorted by descending Score, ties by DocID.
func (r *Ranker) Rank(baseDocs []int) []Scored {
	root := make([]int, 0, len(baseDocs))
	for _, docID := range baseDocs {
		if node, ok := r.tr.ToNode(docID); ok {
			root = append(root, node)
		}
	}
	if len(root) == 0 {
		return nil
	}
	sg := r.expand(root)
	hub, auth, steps := iterate(sg.out, r.cfg)

	out := make([]Scored, 0, len(sg.nodes))
	for i, node := range sg.nodes {
		docID, ok := r.tr.ToDoc(node)
		if !ok {
			continue
		}
		out = append(out, Scored{DocID: docID, Hub: hub[i], Authority: auth[i], Score: hub[i] + auth[i]})
	}
	slices.SortFunc(out, func(a, b Scored) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return a.DocID - b.DocID
	})
	r.logger.Debug("hits ranked",
		"root", len(root),
		"base", len(sg.nodes),
		"steps", steps,
		"results", len(out),
	)
	return out
}

// iterate computes hub' = L·auth and auth' = Lᵗ·hub from the previous
// vectors, L2-normalizing both, until neither moves more than Epsilon. A
// vector whose norm is zero keeps its previous value.
func iterate(out [][]int, cfg Config) (hub, auth []float64, steps int) {
	n := len(out)
	hub = make([]float64, n)
	auth = make([]float64, n)
	for i := range n {
		hub[i], auth[i] = 1, 1
	}
	nextHub := make([]float64, n)
	nextAuth := make([]float64, n)
	for steps < cfg.MaxSteps {
		clear(nextHub)
		clear(nextAuth)
		for from, targets := range out {
			for _, to := range targets {
				nextHub[from] += auth[to]
				nextAuth[to] += hub[from]
			}
		}
		if !normalize(nextHub) {
			copy(nextHub, hub)
		}
		if !normalize(nextAuth) {
			copy(nextAuth, auth)
		}
		steps++
		done := maxDiff(hub, nextHub) <= cfg.Epsilon && maxDiff(auth, nextAuth) <= cfg.Epsilon
		hub, nextHub = nextHub, hub
		auth, nextAuth = nextAuth, auth
		if done {
			break
		}
	}
	return hub, auth, steps
}

// normalize scales v to unit L2 norm. It reports false for a zero vector.
func normalize(v []float64) bool {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return false
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
	return true
}

func maxDiff(a, b []float64) float64 {
	var d float64
	for i := range a {
		d = max(d, math.Abs(a[i]-b[i]))
	}
	return d
}
