package models

import "time"

// BatchStatus is the lifecycle of an ingested file
type BatchStatus string

const (
	BatchStatusUploading  BatchStatus = "uploading"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// BatchStats are the processing statistics recorded on completion
type BatchStats struct {
	DuplicatesFound      int   `json:"duplicates_found"`
	ClustersCreated      int   `json:"clusters_created"`
	GoldenRecordsCreated int   `json:"golden_records_created"`
	ProcessingTimeMs     int64 `json:"processing_time_ms"`
}

// BatchMeta is the record of one ingested file. Only the orchestrator writes it.
type BatchMeta struct {
	ID             string      `json:"id"`
	Filename       string      `json:"filename"`
	Uploader       string      `json:"uploader,omitempty"`
	InputHash      string      `json:"input_hash"`
	TotalRecords   int         `json:"total_records"`
	ProcessedCount int         `json:"processed_count"`
	Status         BatchStatus `json:"status"`
	ErrorMessage   *string     `json:"error_message,omitempty"`
	Stats          BatchStats  `json:"stats"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// BatchResult is returned to the caller of ProcessBatch, even on failure
type BatchResult struct {
	BatchID              string   `json:"batch_id"`
	TotalRecords         int      `json:"total_records"`
	ValidRecords         int      `json:"valid_records"`
	InvalidRecords       int      `json:"invalid_records"`
	DuplicatesFound      int      `json:"duplicates_found"`
	ClustersCreated      int      `json:"clusters_created"`
	GoldenRecordsCreated int      `json:"golden_records_created"`
	ProcessingTimeMs     int64    `json:"processing_time_ms"`
	Errors               []string `json:"errors"`
}

// Stage is a pipeline state reported through progress callbacks
type Stage string

const (
	StageStart         Stage = "START"
	StageReading       Stage = "reading"
	StageValidating    Stage = "validating"
	StageNormalizing   Stage = "normalizing"
	StageDeduplicating Stage = "deduplicating"
	StageClustering    Stage = "clustering"
	StageWriting       Stage = "writing"
	StageComplete      Stage = "COMPLETE"
	StageFailed        Stage = "FAILED"
)

// Progress is reported after each stage begins
type Progress struct {
	BatchID   string `json:"batch_id"`
	Stage     Stage  `json:"stage"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Message   string `json:"message"`
}

// ProgressFunc receives progress updates
type ProgressFunc func(Progress)
