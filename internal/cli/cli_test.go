package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	for _, path := range [][]string{
		{"process"},
		{"serve"},
		{"migrate"},
		{"audit", "trail"},
		{"audit", "report"},
		{"audit", "quality"},
		{"audit", "export"},
		{"audit", "metrics"},
		{"golden", "list"},
		{"golden", "get"},
		{"clusters", "list"},
		{"batches", "list"},
		{"batches", "get"},
		{"progress"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestParseRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("should default to the last day", func(t *testing.T) {
		from, to, err := parseRange("", "", now)
		require.NoError(t, err)
		assert.Equal(t, now, to)
		assert.Equal(t, now.Add(-24*time.Hour), from)
	})

	t.Run("should accept dates and timestamps", func(t *testing.T) {
		from, to, err := parseRange("2026-03-01", "2026-03-02T06:00:00+02:00", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC), to)
	})

	t.Run("should reject inverted and malformed ranges", func(t *testing.T) {
		_, _, err := parseRange("2026-03-02", "2026-03-01", now)
		assert.Error(t, err)

		_, _, err = parseRange("yesterday", "", now)
		assert.ErrorContains(t, err, "--from")
	})
}

func TestValidateClusterStatus(t *testing.T) {
	assert.NoError(t, validateClusterStatus(""))
	assert.NoError(t, validateClusterStatus("pending"))
	assert.Error(t, validateClusterStatus("merged"))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"total_records": 3}))
	assert.JSONEq(t, `{"total_records": 3}`, buf.String())
}
