package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	// Audit events mirror every accepted audit entry
	EventTypeAuditEntry EventType = "audit.entry"

	// Resolution events
	EventTypeGoldenRecordUpserted EventType = "golden_record.upserted"
	EventTypeClusterPending       EventType = "cluster.pending"

	// Batch events
	EventTypeBatchCompleted EventType = "batch.completed"
	EventTypeBatchFailed    EventType = "batch.failed"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	BatchID       string    `json:"batch_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// AuditEntryEvent carries one audit entry
type AuditEntryEvent struct {
	BaseEvent
	Entry models.AuditEntry `json:"entry"`
}

// GoldenRecordEvent is emitted for every golden record a batch wrote
type GoldenRecordEvent struct {
	BaseEvent
	GoldenRecordID  string              `json:"golden_record_id"`
	ClusterID       string              `json:"cluster_id"`
	SourceRecordIDs []string            `json:"source_record_ids"`
	Confidence      float64             `json:"confidence"`
	Fingerprint     string              `json:"fingerprint"`
	Record          models.GoldenRecord `json:"record"`
}

// ClusterPendingEvent is emitted for multi-record clusters awaiting review
type ClusterPendingEvent struct {
	BaseEvent
	ClusterID       string                   `json:"cluster_id"`
	RecordIDs       []string                 `json:"record_ids"`
	LinkCount       int                      `json:"link_count"`
	SuggestedMerges []models.MergeSuggestion `json:"suggested_merges,omitempty"`
}

// BatchFinishedEvent is emitted once per run with the caller-visible result
type BatchFinishedEvent struct {
	BaseEvent
	Result models.BatchResult `json:"result"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType, batchID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		BatchID:       batchID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
