// Package graph loads the document link graph used by PageRank and HITS.
//
// A links file has one line per source node:
//
//	<node>;<target>,<target>,...
//
// Node names are opaque strings; each distinct name gets a dense id in
// order of first appearance. A titles file maps node names to document
// titles, one "<node>;<title>" per line.
package graph

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/errors"
)

const maxLineBytes = 16 << 20

// Graph is a directed graph with deduplicated edges.
type Graph struct {
	names []string
	ids   map[string]int
	out   [][]int
	edges int
	limit int

	// Truncated is set when the node limit stopped loading early; links
	// after that point are missing.
	Truncated bool
	// Skipped counts malformed lines.
	Skipped int
}

// New returns an empty graph holding at most maxNodes nodes. A
// non-positive maxNodes means no limit.
func New(maxNodes int) *Graph {
	return &Graph{ids: make(map[string]int), limit: maxNodes}
}

// Node returns the id of name, adding it when absent. ok is false when the
// node limit is reached.
func (g *Graph) Node(name string) (id int, ok bool) {
	if id, ok := g.ids[name]; ok {
		return id, true
	}
	if g.limit > 0 && len(g.names) >= g.limit {
		return -1, false
	}
	id = len(g.names)
	g.ids[name] = id
	g.names = append(g.names, name)
	g.out = append(g.out, nil)
	return id, true
}

// Lookup returns the id of name without adding it.
func (g *Graph) Lookup(name string) (int, bool) {
	id, ok := g.ids[name]
	return id, ok
}

// AddEdge adds from->to once; repeated edges are ignored.
func (g *Graph) AddEdge(from, to int) {
	for _, t := range g.out[from] {
		if t == to {
			return
		}
	}
	g.out[from] = append(g.out[from], to)
	g.edges++
}

func (g *Graph) Len() int { return len(g.names) }

func (g *Graph) Edges() int { return g.edges }

func (g *Graph) Name(id int) string { return g.names[id] }

// Out returns the targets of id in insertion order.
func (g *Graph) Out(id int) []int { return g.out[id] }

func (g *Graph) OutDegree(id int) int { return len(g.out[id]) }

// Load parses a links file. Malformed lines are logged and skipped. When
// maxNodes is reached, loading stops, Truncated is set and a warning is
// logged; the partial graph is still returned.
func Load(r io.Reader, maxNodes int) (*Graph, error) {
	logger := slog.Default().With("component", "link-graph")
	g := New(maxNodes)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		src, targets, found := strings.Cut(line, ";")
		if !found || src == "" {
			g.Skipped++
			logger.Warn("skipping malformed link line",
				"line", lineNo,
				"error", apperrors.Corruptf("no source separator"),
			)
			continue
		}
		if !g.addLine(src, targets) {
			g.Truncated = true
			logger.Warn("link graph truncated",
				"line", lineNo,
				"max_nodes", maxNodes,
				"error", apperrors.ErrCapacityExceeded,
			)
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading links: %w", err)
	}
	logger.Info("link graph loaded",
		"nodes", g.Len(),
		"edges", g.Edges(),
		"skipped", g.Skipped,
		"truncated", g.Truncated,
	)
	return g, nil
}

func (g *Graph) addLine(src, targets string) bool {
	from, ok := g.Node(src)
	if !ok {
		return false
	}
	for t := range strings.SplitSeq(targets, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		to, ok := g.Node(t)
		if !ok {
			return false
		}
		g.AddEdge(from, to)
	}
	return true
}

// LoadFile opens path and calls Load.
func LoadFile(path string, maxNodes int) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening links file: %w", err)
	}
	defer f.Close()
	return Load(f, maxNodes)
}

// Titles maps node names to document titles.
type Titles map[string]string

// LoadTitles parses a titles file. Malformed lines are logged and skipped.
func LoadTitles(r io.Reader) (Titles, error) {
	logger := slog.Default().With("component", "link-graph")
	titles := make(Titles)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		node, title, found := strings.Cut(line, ";")
		if !found || node == "" || title == "" {
			logger.Warn("skipping malformed title line", "line", lineNo)
			continue
		}
		titles[node] = title
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading titles: %w", err)
	}
	return titles, nil
}

// LoadTitlesFile opens path and calls LoadTitles.
func LoadTitlesFile(path string) (Titles, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening titles file: %w", err)
	}
	defer f.Close()
	return LoadTitles(f)
}

// Title returns the title of node name, or name itself when it has none.
func (t Titles) Title(name string) string {
	if title, ok := t[name]; ok {
		return title
	}
	return name
}
