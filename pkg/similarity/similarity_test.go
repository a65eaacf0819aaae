package similarity

import (
	"testing"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJaro(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		a, b string
		want float64
	}{
		{"MARTHA", "MARHTA", 0.9444},
		{"DIXON", "DICKSONX", 0.7667},
		{"DWAYNE", "DUANE", 0.8222},
		{"abc", "xyz", 0.0},
		{"abc", "", 0.0},
		{"same", "same", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.Jaro(tt.a, tt.b), 0.0001)
		})
	}

	t.Run("should be symmetric", func(t *testing.T) {
		pairs := [][2]string{{"MARTHA", "MARHTA"}, {"john smith", "jon smyth"}, {"crate", "trace"}, {"ab", "ba"}}
		for _, p := range pairs {
			assert.InDelta(t, s.Jaro(p[0], p[1]), s.Jaro(p[1], p[0]), 1e-12, "%v", p)
		}
	})

	t.Run("should compare runes not bytes", func(t *testing.T) {
		assert.InDelta(t, 1.0, s.Jaro("josé", "josé"), 0)
		assert.Greater(t, s.Jaro("josé", "jose"), 0.8)
	})
}

func TestJaroWinkler(t *testing.T) {
	s := NewScorer()

	t.Run("should apply the prefix bonus", func(t *testing.T) {
		assert.InDelta(t, 0.9611, s.JaroWinkler("MARTHA", "MARHTA", DefaultWinklerScale), 0.0001)
		assert.InDelta(t, 0.8133, s.JaroWinkler("DIXON", "DICKSONX", DefaultWinklerScale), 0.0001)
		assert.InDelta(t, 0.84, s.JaroWinkler("DWAYNE", "DUANE", DefaultWinklerScale), 0.0001)
	})

	t.Run("should never be below jaro when a prefix is shared", func(t *testing.T) {
		pairs := [][2]string{{"john smith", "jonathan smith"}, {"robert", "rob"}, {"alice", "alicia"}}
		for _, p := range pairs {
			assert.GreaterOrEqual(t, s.JaroWinkler(p[0], p[1], DefaultWinklerScale), s.Jaro(p[0], p[1]))
		}
	})

	t.Run("should equal jaro when scale is zero", func(t *testing.T) {
		assert.Equal(t, s.Jaro("MARTHA", "MARHTA"), s.JaroWinkler("MARTHA", "MARHTA", 0))
	})
}

func TestWeightedScore(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 0.0, s.WeightedScore(nil, nil))
	assert.InDelta(t, 0.75, s.WeightedScore(
		map[string]float64{"a": 1.0, "b": 0.5},
		map[string]float64{"a": 1, "b": 1},
	), 1e-9)
	assert.InDelta(t, 0.8, s.WeightedScore(
		map[string]float64{"a": 1.0, "b": 0.0},
		map[string]float64{"a": 4, "b": 1},
	), 1e-9)
}

func TestConfigValidate(t *testing.T) {
	t.Run("should accept defaults", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("should reject out of range values", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.NameThreshold = 1.5
		cfg.PhoneWeight = -1
		cfg.WinklerScale = 0.5
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name_threshold")
		assert.Contains(t, err.Error(), "phone weight")
		assert.Contains(t, err.Error(), "winkler_scale")
	})

	t.Run("should reject all-zero weights", func(t *testing.T) {
		cfg := Config{WinklerScale: 0.1}
		assert.ErrorContains(t, cfg.Validate(), "at least one field weight")
	})
}

func TestShouldMerge(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("should merge on exact email regardless of other fields", func(t *testing.T) {
		got := engine.ShouldMerge(
			models.NormalizedRecord{Email: "a@x.com"},
			models.NormalizedRecord{Email: "a@x.com"},
		)
		assert.True(t, got.ShouldMerge)
		assert.Equal(t, 1.0, got.Confidence)
		assert.Equal(t, "Exact email match", got.Reason)

		got = engine.ShouldMerge(
			models.NormalizedRecord{Name: "John Smith", Email: "a@x.com", Phone: "5551112222"},
			models.NormalizedRecord{Name: "Mary Jones", Email: "a@x.com", Phone: "5553334444"},
		)
		assert.True(t, got.ShouldMerge)
		assert.Equal(t, "Exact email match", got.Reason)
	})

	t.Run("should merge on exact organization id", func(t *testing.T) {
		got := engine.ShouldMerge(
			models.NormalizedRecord{Name: "Acme", OrganizationID: "ORG-1"},
			models.NormalizedRecord{Name: "Acme Corp", OrganizationID: "org-1"},
		)
		assert.True(t, got.ShouldMerge)
		assert.Equal(t, 1.0, got.Confidence)
		assert.Equal(t, "Exact organization ID match", got.Reason)
	})

	t.Run("should merge similar names with a supporting phone", func(t *testing.T) {
		got := engine.ShouldMerge(
			models.NormalizedRecord{Name: "John Smith", Phone: "5551112222"},
			models.NormalizedRecord{Name: "Jon Smyth", Phone: "5551112222"},
		)
		assert.True(t, got.ShouldMerge)
		assert.InDelta(t, (0.4*0.917+0.15)/0.55, got.Confidence, 0.001)
		assert.Equal(t, "Name similarity 0.92 with matching phone", got.Reason)
		assert.Equal(t, []string{FieldName, FieldPhone}, got.Similarity.MatchedFields)
	})

	t.Run("should not merge similar names without support", func(t *testing.T) {
		got := engine.ShouldMerge(
			models.NormalizedRecord{Name: "John Smith"},
			models.NormalizedRecord{Name: "Jon Smyth"},
		)
		assert.False(t, got.ShouldMerge)
	})

	t.Run("should merge near-identical names alone", func(t *testing.T) {
		got := engine.ShouldMerge(
			models.NormalizedRecord{Name: "Alice Johnson"},
			models.NormalizedRecord{Name: "Alice Jonson"},
		)
		assert.True(t, got.ShouldMerge)
		assert.InDelta(t, 0.9846, got.Confidence, 0.0001)
	})

	t.Run("should not merge dissimilar names sharing a phone", func(t *testing.T) {
		got := engine.ShouldMerge(
			models.NormalizedRecord{Name: "John Smith", Phone: "5551112222"},
			models.NormalizedRecord{Name: "Mary Jones", Phone: "5551112222"},
		)
		assert.False(t, got.ShouldMerge)
	})

	t.Run("should honor a tuned threshold", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.NameOnlyThreshold = 0.9
		got := NewEngine(cfg).ShouldMerge(
			models.NormalizedRecord{Name: "John Smith"},
			models.NormalizedRecord{Name: "Jon Smyth"},
		)
		assert.True(t, got.ShouldMerge)
	})
}

func TestCompare(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("should only score fields present on both records", func(t *testing.T) {
		sim := engine.Compare(
			models.NormalizedRecord{Name: "Jane Doe", Email: "jane@x.com", Address: "1 Main ST"},
			models.NormalizedRecord{Name: "Jane Doe", Phone: "5550001111", Address: "1 Main ST"},
		)
		assert.Len(t, sim.FieldScores, 2)
		assert.Equal(t, 1.0, sim.Overall)
		assert.Equal(t, []string{FieldName, FieldAddress}, sim.MatchedFields)
		assert.Equal(t, "Matched fields: name, address", sim.Reason)
	})
}

func TestGenerateMergeSuggestions(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	records := []models.NormalizedRecord{
		{ID: "1", Name: "John Smith", Phone: "5551112222"},
		{ID: "2", Name: "Alice Johnson"},
		{ID: "3", Name: "Jon Smyth", Phone: "5551112222"},
		{ID: "4", Name: "Alice Jonson"},
		{ID: "5", Name: "Zed Zulu", Email: "z@x.com"},
		{ID: "6", Name: "Zed Zulu", Email: "z@x.com"},
	}

	got := engine.GenerateMergeSuggestions(records)
	require.Len(t, got, 3)

	assert.Equal(t, "5", got[0].PrimaryID)
	assert.Equal(t, []string{"6"}, got[0].CandidateIDs)
	assert.Equal(t, 1.0, got[0].Confidence)

	assert.Equal(t, "2", got[1].PrimaryID)
	assert.Equal(t, []string{"4"}, got[1].CandidateIDs)

	assert.Equal(t, "1", got[2].PrimaryID)
	assert.Equal(t, []string{"3"}, got[2].CandidateIDs)

	t.Run("should keep insertion order on ties", func(t *testing.T) {
		tied := []models.NormalizedRecord{
			{ID: "a", Email: "one@x.com"},
			{ID: "b", Email: "two@x.com"},
			{ID: "c", Email: "one@x.com"},
			{ID: "d", Email: "two@x.com"},
		}
		got := engine.GenerateMergeSuggestions(tied)
		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0].PrimaryID)
		assert.Equal(t, "b", got[1].PrimaryID)
	})

	t.Run("should return empty for no matches", func(t *testing.T) {
		assert.Empty(t, engine.GenerateMergeSuggestions(records[:2]))
	})
}
