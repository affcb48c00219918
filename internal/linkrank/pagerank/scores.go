package pagerank

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/graph"
)

// Scores holds one probability per graph node.
type Scores []float64

// Ranked is a node and its score.
type Ranked struct {
	Node  int
	Score float64
}

// Of returns the score of node, or 0 for an unknown node.
func (s Scores) Of(node int) float64 {
	if node < 0 || node >= len(s) {
		return 0
	}
	return s[node]
}

// Sum is the total probability mass.
func (s Scores) Sum() float64 {
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum
}

// Top returns the n best nodes, highest score first, ties by node id.
func (s Scores) Top(n int) []Ranked {
	all := make([]Ranked, len(s))
	for i, v := range s {
		all[i] = Ranked{Node: i, Score: v}
	}
	slices.SortFunc(all, func(a, b Ranked) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return a.Node - b.Node
	})
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// Scorer looks up the score of an index document through tr.
type Scorer struct {
	scores Scores
	tr     *graph.Translator
}

func (s Scores) Scorer(tr *graph.Translator) *Scorer {
	return &Scorer{scores: s, tr: tr}
}

// Score returns 0 for documents without a graph node.
func (s *Scorer) Score(docID int) float64 {
	node, ok := s.tr.ToNode(docID)
	if !ok {
		return 0
	}
	return s.scores.Of(node)
}

// WriteTitled writes "title;score" lines in descending score order.
func WriteTitled(w io.Writer, g *graph.Graph, titles graph.Titles, s Scores) error {
	bw := bufio.NewWriter(w)
	for _, r := range s.Top(-1) {
		if _, err := fmt.Fprintf(bw, "%s;%s\n", titles.Title(g.Name(r.Node)), strconv.FormatFloat(r.Score, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// TitleScores maps document titles to scores, as read back from a file
// written by WriteTitled.
type TitleScores map[string]float64

// ReadTitled parses "title;score" lines. Malformed lines are logged and
// skipped.
func ReadTitled(r io.Reader) (TitleScores, error) {
	logger := slog.Default().With("component", "pagerank")
	out := make(TitleScores)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}
		i := strings.LastIndexByte(line, ';')
		if i <= 0 {
			logger.Warn("skipping malformed score line", "line", lineNo)
			continue
		}
		v, err := strconv.ParseFloat(line[i+1:], 64)
		if err != nil {
			logger.Warn("skipping malformed score line", "line", lineNo, "error", err)
			continue
		}
		out[line[:i]] = v
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading scores: %w", err)
	}
	return out, nil
}

// ReadTitledFile opens path and calls ReadTitled.
func ReadTitledFile(path string) (TitleScores, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scores file: %w", err)
	}
	defer f.Close()
	return ReadTitled(f)
}

// DocScorer looks up scores by the base name of each document.
type DocScorer struct {
	scores TitleScores
	docs   *index.DocMeta
}

func (t TitleScores) Scorer(docs *index.DocMeta) *DocScorer {
	return &DocScorer{scores: t, docs: docs}
}

func (s *DocScorer) Score(docID int) float64 {
	return s.scores[graph.BaseName(s.docs.Name(docID))]
}
