package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendScalable, cfg.Index.Backend)
	assert.Equal(t, 611953, cfg.Index.TableSize)
	assert.InDelta(t, 0.15, cfg.LinkRank.Bored, 1e-12)
	assert.InDelta(t, 1e-4, cfg.LinkRank.Epsilon, 1e-12)
	assert.Equal(t, 1000, cfg.LinkRank.MaxIterations)
	assert.InDelta(t, 1e-3, cfg.LinkRank.HITSEpsilon, 1e-12)
	assert.InDelta(t, 0.4, cfg.Search.TFIDFWeight, 1e-12)
	assert.InDelta(t, 0.6, cfg.Search.LinkWeight, 1e-12)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
index:
  backend: persistent
  tableSize: 3500000
search:
  defaultLimit: 25
linkRank:
  linksFile: links.txt
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("SP_INDEX_DIR", "/tmp/idx")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendPersistent, cfg.Index.Backend)
	assert.Equal(t, 3500000, cfg.Index.TableSize)
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
	assert.Equal(t, "links.txt", cfg.LinkRank.LinksFile)
	assert.Equal(t, "/tmp/idx", cfg.Index.Dir)
	// untouched sections keep defaults
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Index.Backend = "btree"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Index.TableSize = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.LinkRank.Bored = 1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Search.LinkSignal = "hits"
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
