package pagerank

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/linkrank/graph"
)

func load(t *testing.T, links string) *graph.Graph {
	t.Helper()
	g, err := graph.Load(strings.NewReader(links), 0)
	require.NoError(t, err)
	return g
}

// sample has a hub (c) that most nodes link to and a dangling node (d).
const sample = "a;c\nb;c\nc;a\nd;\ne;c,d\nf;c\ng;c\n"

func TestTwoNodeMutualLink(t *testing.T) {
	res := Compute(load(t, "0;1\n1;0\n"), DefaultConfig())
	require.True(t, res.Converged)
	require.Len(t, res.Scores, 2)
	assert.InDelta(t, 0.5, res.Scores[0], 1e-4)
	assert.InDelta(t, 0.5, res.Scores[1], 1e-4)
}

func TestComputeIsDistribution(t *testing.T) {
	g := load(t, sample)
	res := Compute(g, DefaultConfig())
	assert.True(t, res.Converged)
	assert.InDelta(t, 1.0, res.Scores.Sum(), 1e-9)

	c, _ := g.Lookup("c")
	top := res.Scores.Top(2)
	assert.Equal(t, c, top[0].Node)
	assert.GreaterOrEqual(t, top[0].Score, top[1].Score)
}

func TestComputeSingleDanglingNode(t *testing.T) {
	res := Compute(load(t, "x;\n"), Config{})
	assert.Equal(t, Scores{1}, res.Scores)
	assert.Equal(t, 1, res.Iterations)
}

func TestComputeHonorsIterationCap(t *testing.T) {
	res := Compute(load(t, sample), Config{MaxIterations: 2})
	assert.Equal(t, 2, res.Iterations)
	assert.False(t, res.Converged)
}

func TestMonteCarloApproximatesPowerIteration(t *testing.T) {
	g := load(t, sample)
	exact := Compute(g, DefaultConfig()).Scores
	for s := EndPointRandomStart; s <= CompletePathRandomStart; s++ {
		t.Run(s.String(), func(t *testing.T) {
			est := MonteCarlo(g, DefaultConfig(), s, 4000, rand.New(rand.NewPCG(7, 7)))
			require.Len(t, est, g.Len())
			assert.InDelta(t, 1.0, est.Sum(), 1e-9)
			c, _ := g.Lookup("c")
			assert.Equal(t, c, est.Top(1)[0].Node)
			if s == EndPointRandomStart || s == EndPointCyclicStart {
				for i := range exact {
					assert.InDelta(t, exact[i], est[i], 0.02, g.Name(i))
				}
			}
		})
	}
}

func TestMonteCarloDeterministicWithSeed(t *testing.T) {
	g := load(t, sample)
	a := MonteCarlo(g, Config{}, CompletePathCyclicStart, 50, rand.New(rand.NewPCG(1, 2)))
	b := MonteCarlo(g, Config{}, CompletePathCyclicStart, 50, rand.New(rand.NewPCG(1, 2)))
	assert.Equal(t, a, b)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, CompletePathCyclicStart, s)
	s, err = ParseStrategy("end-point-random")
	require.NoError(t, err)
	assert.Equal(t, EndPointRandomStart, s)
	_, err = ParseStrategy("bogus")
	assert.Error(t, err)
}

func TestTitledRoundTripAndScorers(t *testing.T) {
	g := load(t, "1;2\n2;1,3\n3;\n")
	titles := graph.Titles{"1": "One.f", "2": "Two.f", "3": "Three.f"}
	scores := Compute(g, DefaultConfig()).Scores

	var buf bytes.Buffer
	require.NoError(t, WriteTitled(&buf, g, titles, scores))
	read, err := ReadTitled(strings.NewReader(buf.String() + "garbage\n"))
	require.NoError(t, err)
	require.Len(t, read, 3)

	docs := index.NewDocMeta()
	docs.Set(0, "wiki/Two.f", 1)
	docs.Set(1, "wiki/Missing.f", 1)

	two, _ := g.Lookup("2")
	assert.InDelta(t, scores[two], read.Scorer(docs).Score(0), 1e-12)
	assert.Zero(t, read.Scorer(docs).Score(1))

	tr := graph.NewTranslator(g, titles, docs)
	assert.InDelta(t, scores[two], scores.Scorer(tr).Score(0), 1e-12)
	assert.Zero(t, scores.Scorer(tr).Score(1))
	assert.Zero(t, scores.Of(-1))
}
