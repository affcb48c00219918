package linkrank

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T) config.LinkRankConfig {
	dir := t.TempDir()
	cfg := config.Default().LinkRank
	cfg.LinksFile = writeFile(t, dir, "links", "0;1\n1;0\n")
	cfg.TitlesFile = writeFile(t, dir, "titles", "0;Alpha.f\n1;Beta.f\n")
	return cfg
}

func TestLoadGraph(t *testing.T) {
	g, titles, err := LoadGraph(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, "Alpha.f", titles.Title("0"))

	cfg := testConfig(t)
	cfg.TitlesFile = ""
	_, titles, err = LoadGraph(cfg)
	require.NoError(t, err)
	assert.Equal(t, "0", titles.Title("0"))

	cfg.LinksFile = filepath.Join(t.TempDir(), "missing")
	_, _, err = LoadGraph(cfg)
	assert.Error(t, err)
}

func TestComputeSignals(t *testing.T) {
	cfg := testConfig(t)
	g, _, err := LoadGraph(cfg)
	require.NoError(t, err)

	for _, signal := range []string{SignalPower, SignalMonteCarlo} {
		scores, err := Compute(g, cfg, signal, metrics.NewUnregistered())
		require.NoError(t, err, signal)
		require.Len(t, scores, 2)
		assert.InDelta(t, 0.5, scores.Of(0), 0.05, signal)
		assert.InDelta(t, 1.0, scores.Sum(), 1e-9, signal)
	}

	_, err = Compute(g, cfg, "eigen", nil)
	assert.Error(t, err)

	cfg.MonteCarlo = "sideways"
	_, err = Compute(g, cfg, SignalMonteCarlo, nil)
	assert.Error(t, err)
}

func TestHITSConfig(t *testing.T) {
	c := HITSConfig(config.Default().LinkRank)
	assert.Equal(t, 1e-3, c.Epsilon)
	assert.Equal(t, 1000, c.MaxSteps)
}
