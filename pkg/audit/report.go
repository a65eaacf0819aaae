package audit

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Match-quality thresholds. Links scoring at or above FalsePositiveThreshold are not flagged.
const (
	FalsePositiveThreshold = 0.9
	MediumRiskThreshold    = 0.8
	HighRiskThreshold      = 0.7
)

var ErrNoLinkSource = errors.New("match quality analysis requires a link source")

// Summarize folds a batch's chronological entries into a summary of its latest run.
// A run starts at the last START entry; entries before it belong to earlier attempts.
func Summarize(batchID string, entries []models.AuditEntry) *models.BatchAuditSummary {
	if len(entries) == 0 {
		return nil
	}

	run := entries
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Operation == models.AuditOperationStart {
			run = entries[i:]
			break
		}
	}

	summary := &models.BatchAuditSummary{
		BatchID:   batchID,
		InputHash: run[0].InputHash,
		Status:    models.BatchAuditStatusInProgress,
		StartedAt: run[0].Timestamp,
		Stages:    make([]models.StageMetric, 0, len(run)),
	}

	for _, e := range run {
		if summary.InputHash == "" {
			summary.InputHash = e.InputHash
		}
		summary.Stages = append(summary.Stages, models.StageMetric{
			Operation:    e.Operation,
			Timestamp:    e.Timestamp,
			DurationMs:   e.DurationMs,
			Metadata:     e.Metadata,
			ErrorMessage: e.ErrorMessage,
		})
		applyCounts(summary, e.Metadata)

		switch e.Operation {
		case models.AuditOperationComplete:
			summary.Status = models.BatchAuditStatusComplete
		case models.AuditOperationFailed:
			summary.Status = models.BatchAuditStatusFailed
			summary.ErrorMessage = e.ErrorMessage
		}
		if e.Operation.IsTerminal() {
			ts := e.Timestamp
			summary.CompletedAt = &ts
		}
	}

	last := run[len(run)-1]
	summary.TotalDurationMs = last.Timestamp.Sub(summary.StartedAt).Milliseconds()
	if last.Operation.IsTerminal() && last.DurationMs > summary.TotalDurationMs {
		summary.TotalDurationMs = last.DurationMs
	}
	return summary
}

// applyCounts copies known counters from stage metadata; later stages win
func applyCounts(s *models.BatchAuditSummary, md models.Metadata) {
	counters := map[string]*int{
		MetaTotalRecords:         &s.TotalRecords,
		MetaValidRecords:         &s.ValidRecords,
		MetaInvalidRecords:       &s.InvalidRecords,
		MetaMatchLinks:           &s.MatchLinks,
		MetaDuplicatesFound:      &s.DuplicatesFound,
		MetaClustersCreated:      &s.ClustersCreated,
		MetaGoldenRecordsCreated: &s.GoldenRecordsCreated,
	}
	for key, dst := range counters {
		if n, ok := md.GetInt(key); ok {
			*dst = n
		}
	}
	if capped, ok := md.GetBool(MetaComparisonCapReached); ok && capped {
		s.ComparisonCapReached = true
	}
}

// RiskFor buckets a link score
func RiskFor(score float64) models.RiskLevel {
	switch {
	case score < HighRiskThreshold:
		return models.RiskLevelHigh
	case score < MediumRiskThreshold:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// AnalyzeLinks flags links scoring below FalsePositiveThreshold. Flagged links are
// ordered lowest score first.
func AnalyzeLinks(batchID string, links []models.MatchLink, now time.Time) *models.MatchQualityReport {
	report := &models.MatchQualityReport{
		BatchID:                 batchID,
		TotalLinks:              len(links),
		PotentialFalsePositives: []models.LinkRisk{},
		RiskCounts: map[models.RiskLevel]int{
			models.RiskLevelLow:    0,
			models.RiskLevelMedium: 0,
			models.RiskLevelHigh:   0,
		},
		KnownGaps:   []string{KnownGapFalseNegatives},
		GeneratedAt: now,
	}

	var total float64
	for _, link := range links {
		total += link.Score
		if link.Score >= FalsePositiveThreshold {
			continue
		}
		risk := RiskFor(link.Score)
		report.RiskCounts[risk]++
		report.PotentialFalsePositives = append(report.PotentialFalsePositives, models.LinkRisk{
			SourceID: link.SourceID,
			TargetID: link.TargetID,
			Method:   link.Method,
			Score:    link.Score,
			Risk:     risk,
		})
	}
	if len(links) > 0 {
		report.AverageScore = math.Round(total/float64(len(links))*1e6) / 1e6
	}

	sort.SliceStable(report.PotentialFalsePositives, func(i, j int) bool {
		return report.PotentialFalsePositives[i].Score < report.PotentialFalsePositives[j].Score
	})
	return report
}

// AnalyzeMatchQuality flags a batch's low-score links as potential false positives.
// Near-duplicates that were never linked are not detected and are reported as a known gap.
func (t *Trail) AnalyzeMatchQuality(ctx context.Context, batchID string) (*models.MatchQualityReport, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Trail.AnalyzeMatchQuality")
	defer span.End()

	if t.links == nil {
		return nil, ErrNoLinkSource
	}
	links, err := t.links.ListMatchLinks(ctx, batchID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return AnalyzeLinks(batchID, links, t.now().UTC()), nil
}

// AggregateMetrics summarizes every batch with audit activity in [from, to)
func (t *Trail) AggregateMetrics(ctx context.Context, from, to time.Time) (*models.AggregateMetrics, error) {
	entries, err := t.ExportRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return Aggregate(from, to, entries), nil
}

// Aggregate folds range entries into per-batch summaries and totals them
func Aggregate(from, to time.Time, entries []models.AuditEntry) *models.AggregateMetrics {
	metrics := &models.AggregateMetrics{
		From:            from,
		To:              to,
		OperationCounts: map[models.AuditOperation]int{},
	}

	byBatch := map[string][]models.AuditEntry{}
	var order []string
	for _, e := range entries {
		metrics.OperationCounts[e.Operation]++
		if _, ok := byBatch[e.BatchID]; !ok {
			order = append(order, e.BatchID)
		}
		byBatch[e.BatchID] = append(byBatch[e.BatchID], e)
	}

	var finishedDuration int64
	var finished int
	for _, batchID := range order {
		s := Summarize(batchID, byBatch[batchID])
		metrics.Batches++
		switch s.Status {
		case models.BatchAuditStatusComplete:
			metrics.Completed++
		case models.BatchAuditStatusFailed:
			metrics.Failed++
		default:
			metrics.InProgress++
		}
		if s.Status != models.BatchAuditStatusInProgress {
			finishedDuration += s.TotalDurationMs
			finished++
		}
		metrics.TotalRecords += s.TotalRecords
		metrics.ValidRecords += s.ValidRecords
		metrics.InvalidRecords += s.InvalidRecords
		metrics.DuplicatesFound += s.DuplicatesFound
		metrics.GoldenRecordsCreated += s.GoldenRecordsCreated
	}
	if finished > 0 {
		metrics.AverageDurationMs = float64(finishedDuration) / float64(finished)
	}
	return metrics
}
