package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/similarity"
)

func TestLoad(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "clover", cfg.AppName)
		assert.Equal(t, 7687, cfg.GraphDBPort)
		assert.Equal(t, 10*time.Second, cfg.DatabaseConnMaxLifetime)
		assert.Equal(t, similarity.DefaultConfig(), cfg.MatchConfig())
		assert.Equal(t, matching.DefaultConfig(), cfg.MatcherConfig())
		assert.InDelta(t, 0.8, cfg.GoldenMergeDiscount, 1e-9)
	})

	t.Run("should read environment overrides", func(t *testing.T) {
		t.Setenv("MATCH_MAX_COMPARISONS", "250")
		t.Setenv("MATCH_NAME_THRESHOLD", "0.9")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
		t.Setenv("REDIS_PROGRESS_TTL", "2h")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 250, cfg.MatcherConfig().MaxComparisons)
		assert.InDelta(t, 0.9, cfg.MatchConfig().NameThreshold, 1e-9)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
		assert.Equal(t, 2*time.Hour, cfg.RedisConfig().TTL)
	})

	t.Run("should load env files and ignore missing ones", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("GRAPH_DB_NAME=resolution\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("GRAPH_DB_NAME") })

		cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, "resolution", cfg.GraphConfig().Database)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		cfg.DatabaseHost = "localhost"
		cfg.DatabaseUserName = "clover"
		return cfg
	}

	t.Run("should accept a complete config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("should require audit database credentials", func(t *testing.T) {
		cfg := valid()
		cfg.DatabaseHost = ""
		cfg.DatabaseUserName = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_HOST")
		assert.Contains(t, err.Error(), "DB_USER_NAME")
	})

	t.Run("should require a graph host", func(t *testing.T) {
		cfg := valid()
		cfg.GraphDBHost = ""
		assert.ErrorContains(t, cfg.Validate(), "GRAPH_DB_HOST")
	})

	t.Run("should reject out of range matching knobs", func(t *testing.T) {
		cfg := valid()
		cfg.MatchNameThreshold = 1.5
		assert.Error(t, cfg.Validate())

		cfg = valid()
		cfg.GoldenMergeDiscount = 0
		assert.ErrorContains(t, cfg.Validate(), "GOLDEN_MERGE_DISCOUNT")
	})
}
