package models

import "time"

// AuditOperation tags one pipeline-stage transition
type AuditOperation string

const (
	AuditOperationStart                 AuditOperation = "START"
	AuditOperationValidationComplete    AuditOperation = "VALIDATION_COMPLETE"
	AuditOperationNormalizationComplete AuditOperation = "NORMALIZATION_COMPLETE"
	AuditOperationDeduplicationComplete AuditOperation = "DEDUPLICATION_COMPLETE"
	AuditOperationClusteringComplete    AuditOperation = "CLUSTERING_COMPLETE"
	AuditOperationWritingComplete       AuditOperation = "WRITING_COMPLETE"
	AuditOperationComplete              AuditOperation = "COMPLETE"
	AuditOperationFailed                AuditOperation = "FAILED"
)

// IsTerminal reports whether the operation ends a batch
func (o AuditOperation) IsTerminal() bool {
	return o == AuditOperationComplete || o == AuditOperationFailed
}

// AuditEntry is an append-only record of one stage outcome
type AuditEntry struct {
	ID           string         `json:"id" db:"id"`
	BatchID      string         `json:"batch_id" db:"batch_id"`
	Operation    AuditOperation `json:"operation" db:"operation"`
	InputHash    string         `json:"input_hash" db:"input_hash"`
	Timestamp    time.Time      `json:"timestamp" db:"timestamp"`
	DurationMs   int64          `json:"duration_ms" db:"duration_ms"`
	Metadata     Metadata       `json:"metadata" db:"metadata"`
	ErrorMessage *string        `json:"error_message,omitempty" db:"error_message"`
}

// StageMetric is one stage's contribution to a batch summary
type StageMetric struct {
	Operation    AuditOperation `json:"operation"`
	Timestamp    time.Time      `json:"timestamp"`
	DurationMs   int64          `json:"duration_ms"`
	Metadata     Metadata       `json:"metadata,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
}

// BatchAuditStatus summarizes where a batch ended up
type BatchAuditStatus string

const (
	BatchAuditStatusInProgress BatchAuditStatus = "IN_PROGRESS"
	BatchAuditStatusComplete   BatchAuditStatus = "COMPLETE"
	BatchAuditStatusFailed     BatchAuditStatus = "FAILED"
)

// BatchAuditSummary aggregates the audit trail of one batch
type BatchAuditSummary struct {
	BatchID              string           `json:"batch_id"`
	InputHash            string           `json:"input_hash"`
	Status               BatchAuditStatus `json:"status"`
	StartedAt            time.Time        `json:"started_at"`
	CompletedAt          *time.Time       `json:"completed_at,omitempty"`
	TotalDurationMs      int64            `json:"total_duration_ms"`
	TotalRecords         int              `json:"total_records"`
	ValidRecords         int              `json:"valid_records"`
	InvalidRecords       int              `json:"invalid_records"`
	MatchLinks           int              `json:"match_links"`
	DuplicatesFound      int              `json:"duplicates_found"`
	ClustersCreated      int              `json:"clusters_created"`
	GoldenRecordsCreated int              `json:"golden_records_created"`
	ComparisonCapReached bool             `json:"comparison_cap_reached"`
	Stages               []StageMetric    `json:"stages"`
	ErrorMessage         *string          `json:"error_message,omitempty"`
}

// Clone returns a deep copy of s
func (s *BatchAuditSummary) Clone() *BatchAuditSummary {
	if s == nil {
		return nil
	}
	out := *s
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	if s.ErrorMessage != nil {
		msg := *s.ErrorMessage
		out.ErrorMessage = &msg
	}
	if s.Stages != nil {
		out.Stages = make([]StageMetric, len(s.Stages))
		for i, st := range s.Stages {
			st.Metadata = st.Metadata.Clone()
			if st.ErrorMessage != nil {
				msg := *st.ErrorMessage
				st.ErrorMessage = &msg
			}
			out.Stages[i] = st
		}
	}
	return &out
}

// RiskLevel buckets a potential false positive
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// LinkRisk flags one low-score MatchLink
type LinkRisk struct {
	SourceID string      `json:"source_id"`
	TargetID string      `json:"target_id"`
	Method   MatchMethod `json:"method"`
	Score    float64     `json:"score"`
	Risk     RiskLevel   `json:"risk"`
}

// MatchQualityReport is the post-hoc risk analysis of a batch's links
type MatchQualityReport struct {
	BatchID                 string            `json:"batch_id"`
	TotalLinks              int               `json:"total_links"`
	AverageScore            float64           `json:"average_score"`
	PotentialFalsePositives []LinkRisk        `json:"potential_false_positives"`
	RiskCounts              map[RiskLevel]int `json:"risk_counts"`
	KnownGaps               []string          `json:"known_gaps"`
	GeneratedAt             time.Time         `json:"generated_at"`
}

// AggregateMetrics summarizes every batch audited in a time range
type AggregateMetrics struct {
	From                 time.Time              `json:"from"`
	To                   time.Time              `json:"to"`
	Batches              int                    `json:"batches"`
	Completed            int                    `json:"completed"`
	Failed               int                    `json:"failed"`
	InProgress           int                    `json:"in_progress"`
	TotalRecords         int                    `json:"total_records"`
	ValidRecords         int                    `json:"valid_records"`
	InvalidRecords       int                    `json:"invalid_records"`
	DuplicatesFound      int                    `json:"duplicates_found"`
	GoldenRecordsCreated int                    `json:"golden_records_created"`
	AverageDurationMs    float64                `json:"average_duration_ms"`
	OperationCounts      map[AuditOperation]int `json:"operation_counts"`
}
