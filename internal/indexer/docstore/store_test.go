package docstore

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/postgres"
)

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	db, err := postgres.New(config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "hashseg_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "hashseg"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreRoundTrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	s := NewStore(db)
	require.NoError(t, s.EnsureSchema(ctx))

	d := index.NewDocMeta()
	d.Set(0, "a.txt", 3)
	d.Set(2, "c.txt", 9)
	require.NoError(t, s.SaveAll(ctx, d))

	require.NoError(t, s.PutDoc(ctx, 2, "c2.txt", 10))
	info, ok, err := s.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, index.DocInfo{Name: "c2.txt", Length: 10}, info)

	_, ok, err = s.Get(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, loaded.IDs())
	assert.Equal(t, "a.txt", loaded.Name(0))
}
