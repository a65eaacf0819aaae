package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

type failingStore struct {
	MemoryStore
	err error
}

func (s *failingStore) Append(_ context.Context, _ models.AuditEntry) error {
	return s.err
}

// appendingStore accepts one more entry right after the first read of a
// batch, like a writer racing a report
type appendingStore struct {
	*MemoryStore
	onList func()
}

func (s *appendingStore) ListByBatch(ctx context.Context, batchID string) ([]models.AuditEntry, error) {
	entries, err := s.MemoryStore.ListByBatch(ctx, batchID)
	if s.onList != nil {
		fn := s.onList
		s.onList = nil
		fn()
	}
	return entries, err
}

type recordingSink struct {
	entries []models.AuditEntry
	err     error
}

func (s *recordingSink) PublishAuditEntry(_ context.Context, entry models.AuditEntry) error {
	s.entries = append(s.entries, entry)
	return s.err
}

type staticLinks struct {
	links []models.MatchLink
	err   error
}

func (s staticLinks) ListMatchLinks(_ context.Context, _ string) ([]models.MatchLink, error) {
	return s.links, s.err
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestTrail(store Store, opts ...Option) (*Trail, *clock) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	trail := NewTrail(logger, store, DefaultConfig(), opts...)
	c := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	trail.now = c.now
	return trail, c
}

func logRun(ctx context.Context, trail *Trail, batchID string, fail bool) {
	trail.LogStage(ctx, batchID, models.AuditOperationStart, "hash-1", nil, 0, nil)
	trail.LogStage(ctx, batchID, models.AuditOperationValidationComplete, "hash-1", models.Metadata{
		MetaTotalRecords:   models.Int(10),
		MetaValidRecords:   models.Int(8),
		MetaInvalidRecords: models.Int(2),
	}, 5*time.Millisecond, nil)
	if fail {
		trail.LogStage(ctx, batchID, models.AuditOperationFailed, "hash-1", nil, 0, errors.New("graph unavailable"))
		return
	}
	trail.LogStage(ctx, batchID, models.AuditOperationDeduplicationComplete, "hash-1", models.Metadata{
		MetaMatchLinks:           models.Int(3),
		MetaComparisonCapReached: models.Bool(true),
	}, 10*time.Millisecond, nil)
	trail.LogStage(ctx, batchID, models.AuditOperationComplete, "hash-1", models.Metadata{
		MetaDuplicatesFound:      models.Int(2),
		MetaClustersCreated:      models.Int(6),
		MetaGoldenRecordsCreated: models.Int(6),
	}, 4500*time.Millisecond, nil)
}

func TestTrail_LogStage(t *testing.T) {
	ctx := context.Background()

	t.Run("should append entries with ids and preserve order", func(t *testing.T) {
		store := NewMemoryStore()
		trail, _ := newTestTrail(store)

		logRun(ctx, trail, "batch-1", false)

		entries, err := trail.GetTrail(ctx, "batch-1")
		require.NoError(t, err)
		require.Len(t, entries, 4)
		assert.Equal(t, models.AuditOperationStart, entries[0].Operation)
		assert.Equal(t, models.AuditOperationComplete, entries[3].Operation)
		assert.NotEmpty(t, entries[0].ID)
		assert.NotEqual(t, entries[0].ID, entries[1].ID)
		assert.Equal(t, int64(5), entries[1].DurationMs)
		assert.Equal(t, "hash-1", entries[2].InputHash)
	})

	t.Run("should record the error message", func(t *testing.T) {
		trail, _ := newTestTrail(NewMemoryStore())
		logRun(ctx, trail, "batch-2", true)

		entries, err := trail.GetTrail(ctx, "batch-2")
		require.NoError(t, err)
		last := entries[len(entries)-1]
		require.NotNil(t, last.ErrorMessage)
		assert.Equal(t, "graph unavailable", *last.ErrorMessage)
	})

	t.Run("should swallow store failures", func(t *testing.T) {
		sink := &recordingSink{}
		trail, _ := newTestTrail(&failingStore{err: errors.New("db down")}, WithSink(sink))

		assert.NotPanics(t, func() {
			trail.LogStage(ctx, "batch-3", models.AuditOperationStart, "h", nil, 0, nil)
		})
		assert.Empty(t, sink.entries)
	})

	t.Run("should publish accepted entries and ignore sink errors", func(t *testing.T) {
		sink := &recordingSink{err: errors.New("broker down")}
		store := NewMemoryStore()
		trail, _ := newTestTrail(store, WithSink(sink))

		trail.LogStage(ctx, "batch-4", models.AuditOperationStart, "h", nil, 0, nil)

		require.Len(t, sink.entries, 1)
		entries, _ := store.ListByBatch(ctx, "batch-4")
		assert.Len(t, entries, 1)
	})

	t.Run("should write even when the caller context is cancelled", func(t *testing.T) {
		store := NewMemoryStore()
		trail, _ := newTestTrail(store)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		trail.LogStage(cancelled, "batch-5", models.AuditOperationFailed, "h", nil, 0, context.Canceled)

		entries, _ := store.ListByBatch(ctx, "batch-5")
		assert.Len(t, entries, 1)
	})

	t.Run("should not share metadata with the caller", func(t *testing.T) {
		store := NewMemoryStore()
		trail, _ := newTestTrail(store)
		md := models.Metadata{MetaTotalRecords: models.Int(1)}

		trail.LogStage(ctx, "batch-6", models.AuditOperationStart, "h", md, 0, nil)
		md[MetaTotalRecords] = models.Int(99)

		entries, _ := store.ListByBatch(ctx, "batch-6")
		n, _ := entries[0].Metadata.GetInt(MetaTotalRecords)
		assert.Equal(t, 1, n)
	})
}

func TestTrail_GenerateReport(t *testing.T) {
	ctx := context.Background()

	t.Run("should return nil when the batch has no entries", func(t *testing.T) {
		trail, _ := newTestTrail(NewMemoryStore())
		report, err := trail.GenerateReport(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, report)
	})

	t.Run("should aggregate stage metrics of a completed batch", func(t *testing.T) {
		trail, _ := newTestTrail(NewMemoryStore())
		logRun(ctx, trail, "batch-1", false)

		report, err := trail.GenerateReport(ctx, "batch-1")
		require.NoError(t, err)
		require.NotNil(t, report)

		assert.Equal(t, models.BatchAuditStatusComplete, report.Status)
		assert.Equal(t, "hash-1", report.InputHash)
		assert.Equal(t, 10, report.TotalRecords)
		assert.Equal(t, 8, report.ValidRecords)
		assert.Equal(t, 2, report.InvalidRecords)
		assert.Equal(t, 3, report.MatchLinks)
		assert.Equal(t, 2, report.DuplicatesFound)
		assert.Equal(t, 6, report.GoldenRecordsCreated)
		assert.True(t, report.ComparisonCapReached)
		assert.Len(t, report.Stages, 4)
		require.NotNil(t, report.CompletedAt)
		assert.Equal(t, int64(4500), report.TotalDurationMs)
		assert.Nil(t, report.ErrorMessage)
	})

	t.Run("should report a failed batch with its error", func(t *testing.T) {
		trail, _ := newTestTrail(NewMemoryStore())
		logRun(ctx, trail, "batch-2", true)

		report, err := trail.GenerateReport(ctx, "batch-2")
		require.NoError(t, err)
		assert.Equal(t, models.BatchAuditStatusFailed, report.Status)
		require.NotNil(t, report.ErrorMessage)
		assert.Equal(t, "graph unavailable", *report.ErrorMessage)
	})

	t.Run("should summarize only the latest run", func(t *testing.T) {
		trail, _ := newTestTrail(NewMemoryStore())
		logRun(ctx, trail, "batch-3", true)
		logRun(ctx, trail, "batch-3", false)

		report, err := trail.GenerateReport(ctx, "batch-3")
		require.NoError(t, err)
		assert.Equal(t, models.BatchAuditStatusComplete, report.Status)
		assert.Len(t, report.Stages, 4)
		assert.Nil(t, report.ErrorMessage)
	})

	t.Run("should be in progress without a terminal entry", func(t *testing.T) {
		trail, _ := newTestTrail(NewMemoryStore())
		trail.LogStage(ctx, "batch-4", models.AuditOperationStart, "h", nil, 0, nil)

		report, err := trail.GenerateReport(ctx, "batch-4")
		require.NoError(t, err)
		assert.Equal(t, models.BatchAuditStatusInProgress, report.Status)
		assert.Nil(t, report.CompletedAt)
	})

	t.Run("should refresh a cached report after a new entry", func(t *testing.T) {
		trail, _ := newTestTrail(NewMemoryStore())
		logRun(ctx, trail, "batch-5", true)

		first, err := trail.GenerateReport(ctx, "batch-5")
		require.NoError(t, err)
		assert.Equal(t, models.BatchAuditStatusFailed, first.Status)

		trail.LogStage(ctx, "batch-5", models.AuditOperationStart, "h", nil, 0, nil)

		second, err := trail.GenerateReport(ctx, "batch-5")
		require.NoError(t, err)
		assert.Equal(t, models.BatchAuditStatusInProgress, second.Status)
	})

	t.Run("should not cache a report read before a concurrent entry", func(t *testing.T) {
		store := &appendingStore{MemoryStore: NewMemoryStore()}
		trail, _ := newTestTrail(store)
		logRun(ctx, trail, "batch-6", false)
		store.onList = func() {
			trail.LogStage(ctx, "batch-6", models.AuditOperationStart, "h", nil, 0, nil)
		}

		stale, err := trail.GenerateReport(ctx, "batch-6")
		require.NoError(t, err)
		assert.Equal(t, models.BatchAuditStatusComplete, stale.Status)

		fresh, err := trail.GenerateReport(ctx, "batch-6")
		require.NoError(t, err)
		assert.Equal(t, models.BatchAuditStatusInProgress, fresh.Status)
	})

	t.Run("should hand out copies of cached reports", func(t *testing.T) {
		trail, _ := newTestTrail(NewMemoryStore())
		logRun(ctx, trail, "batch-7", true)

		first, err := trail.GenerateReport(ctx, "batch-7")
		require.NoError(t, err)
		first.TotalRecords = -1
		*first.ErrorMessage = "changed"
		first.Stages[1].Metadata[MetaTotalRecords] = models.Int(-1)

		second, err := trail.GenerateReport(ctx, "batch-7")
		require.NoError(t, err)
		assert.Equal(t, 10, second.TotalRecords)
		assert.Equal(t, "graph unavailable", *second.ErrorMessage)
		assert.NotEqual(t, models.Int(-1), second.Stages[1].Metadata[MetaTotalRecords])
	})
}

func TestTrail_AnalyzeMatchQuality(t *testing.T) {
	ctx := context.Background()

	t.Run("should require a link source", func(t *testing.T) {
		trail, _ := newTestTrail(NewMemoryStore())
		_, err := trail.AnalyzeMatchQuality(ctx, "batch-1")
		assert.ErrorIs(t, err, ErrNoLinkSource)
	})

	t.Run("should flag low-score links by risk", func(t *testing.T) {
		links := staticLinks{links: []models.MatchLink{
			{SourceID: "a", TargetID: "b", Method: models.MatchMethodExact, Score: 1},
			{SourceID: "a", TargetID: "c", Method: models.MatchMethodFuzzyName, Score: 0.9},
			{SourceID: "b", TargetID: "d", Method: models.MatchMethodFuzzyName, Score: 0.85},
			{SourceID: "c", TargetID: "e", Method: models.MatchMethodFuzzyName, Score: 0.75},
			{SourceID: "d", TargetID: "f", Method: models.MatchMethodFuzzyName, Score: 0.6},
		}}
		trail, _ := newTestTrail(NewMemoryStore(), WithLinkSource(links))

		report, err := trail.AnalyzeMatchQuality(ctx, "batch-1")
		require.NoError(t, err)

		assert.Equal(t, 5, report.TotalLinks)
		assert.InDelta(t, 0.82, report.AverageScore, 1e-9)
		require.Len(t, report.PotentialFalsePositives, 3)
		assert.Equal(t, 0.6, report.PotentialFalsePositives[0].Score)
		assert.Equal(t, models.RiskLevelHigh, report.PotentialFalsePositives[0].Risk)
		assert.Equal(t, models.RiskLevelMedium, report.PotentialFalsePositives[1].Risk)
		assert.Equal(t, models.RiskLevelLow, report.PotentialFalsePositives[2].Risk)
		assert.Equal(t, 1, report.RiskCounts[models.RiskLevelHigh])
		assert.Equal(t, 1, report.RiskCounts[models.RiskLevelMedium])
		assert.Equal(t, 1, report.RiskCounts[models.RiskLevelLow])
		assert.Equal(t, []string{KnownGapFalseNegatives}, report.KnownGaps)
	})

	t.Run("should handle a batch without links", func(t *testing.T) {
		trail, _ := newTestTrail(NewMemoryStore(), WithLinkSource(staticLinks{}))
		report, err := trail.AnalyzeMatchQuality(ctx, "batch-1")
		require.NoError(t, err)
		assert.Zero(t, report.TotalLinks)
		assert.Zero(t, report.AverageScore)
		assert.Empty(t, report.PotentialFalsePositives)
	})

	t.Run("should propagate link source errors", func(t *testing.T) {
		trail, _ := newTestTrail(NewMemoryStore(), WithLinkSource(staticLinks{err: errors.New("boom")}))
		_, err := trail.AnalyzeMatchQuality(ctx, "batch-1")
		assert.Error(t, err)
	})
}

func TestRiskFor(t *testing.T) {
	tests := []struct {
		score float64
		want  models.RiskLevel
	}{
		{0.89, models.RiskLevelLow},
		{0.8, models.RiskLevelLow},
		{0.79, models.RiskLevelMedium},
		{0.7, models.RiskLevelMedium},
		{0.69, models.RiskLevelHigh},
		{0, models.RiskLevelHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskFor(tt.score), "score %v", tt.score)
	}
}

func TestTrail_ExportRangeAndAggregate(t *testing.T) {
	ctx := context.Background()
	trail, c := newTestTrail(NewMemoryStore())
	start := c.t

	logRun(ctx, trail, "batch-1", false)
	logRun(ctx, trail, "batch-2", true)
	trail.LogStage(ctx, "batch-3", models.AuditOperationStart, "h", nil, 0, nil)
	end := c.t.Add(time.Second)

	t.Run("should reject an inverted range", func(t *testing.T) {
		_, err := trail.ExportRange(ctx, end, start)
		assert.Error(t, err)
	})

	t.Run("should export entries within the range", func(t *testing.T) {
		entries, err := trail.ExportRange(ctx, start, end)
		require.NoError(t, err)
		assert.Len(t, entries, 8)
		for i := 1; i < len(entries); i++ {
			assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
		}
	})

	t.Run("should exclude the range end", func(t *testing.T) {
		entries, err := trail.ExportRange(ctx, start, start.Add(2*time.Second))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("should aggregate batches in the range", func(t *testing.T) {
		metrics, err := trail.AggregateMetrics(ctx, start, end)
		require.NoError(t, err)

		assert.Equal(t, 3, metrics.Batches)
		assert.Equal(t, 1, metrics.Completed)
		assert.Equal(t, 1, metrics.Failed)
		assert.Equal(t, 1, metrics.InProgress)
		assert.Equal(t, 20, metrics.TotalRecords)
		assert.Equal(t, 16, metrics.ValidRecords)
		assert.Equal(t, 2, metrics.DuplicatesFound)
		assert.Equal(t, 3, metrics.OperationCounts[models.AuditOperationStart])
		assert.Equal(t, 1, metrics.OperationCounts[models.AuditOperationFailed])
		assert.Greater(t, metrics.AverageDurationMs, 0.0)
	})
}
