package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "clover", Password: "p@ss", Name: "audit"}
	assert.Equal(t, "postgres://clover:p%40ss@db:5432/audit?sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestLatestVersion(t *testing.T) {
	t.Run("should find the highest up migration", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"000001_a.up.sql", "000001_a.down.sql", "000003_c.up.sql", "000002_b.up.sql", "notes.txt"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
		}
		v, err := LatestVersion(dir)
		require.NoError(t, err)
		assert.Equal(t, 3, v)
	})

	t.Run("should fail on an empty folder", func(t *testing.T) {
		_, err := LatestVersion(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("should find the shipped audit migrations", func(t *testing.T) {
		v, err := LatestVersion("../../db/pg")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 1)
	})
}
