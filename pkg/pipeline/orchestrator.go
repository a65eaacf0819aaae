// Package pipeline sequences the resolution stages for one batch.
//
// A batch moves through START, reading, validating, normalizing,
// deduplicating, clustering and writing before ending in COMPLETE, or in
// FAILED from any stage. Every stage outcome is recorded in the audit trail.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/audit"
	"github.com/Ramsey-B/clover/pkg/clustering"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ErrCancelled is returned when a batch was cancelled between stages
var ErrCancelled = errors.New("cancelled")

// Writer is the persistence collaborator. *graph.Store implements it.
type Writer interface {
	SaveBatch(ctx context.Context, meta *models.BatchMeta) error
	SaveSourceRecords(ctx context.Context, batchID string, records []models.NormalizedRecord) error
	SaveMatchLinks(ctx context.Context, batchID string, links []models.MatchLink) error
	SaveClusters(ctx context.Context, batchID string, clusters []models.MatchCluster) error
	SaveGoldenRecords(ctx context.Context, batchID string, golden []models.GoldenRecord) error
}

// AuditLogger records stage outcomes. *audit.Trail implements it.
type AuditLogger interface {
	LogStage(ctx context.Context, batchID string, op models.AuditOperation, inputHash string, metadata models.Metadata, duration time.Duration, stageErr error)
}

// EventEmitter publishes resolution results. *events.Emitter implements it.
type EventEmitter interface {
	EmitResolution(ctx context.Context, batchID string, clusters []models.MatchCluster, golden []models.GoldenRecord) error
	EmitBatchFinished(ctx context.Context, result models.BatchResult, failed bool) error
}

// ProgressReporter wraps a caller's progress callback. *progress.RedisTracker implements it.
type ProgressReporter interface {
	Reporter(ctx context.Context, next models.ProgressFunc) models.ProgressFunc
}

// Options carries per-batch inputs beyond the file itself
type Options struct {
	Uploader   string
	Filename   string // defaults to the base name of the input path
	OnProgress models.ProgressFunc
}

// Dependencies are the stage engines and collaborators of an Orchestrator.
// Events and Progress are optional.
type Dependencies struct {
	Reader    *ingest.Reader
	Validator *ingest.Validator
	Matcher   *matching.Engine
	Clusterer *clustering.Clusterer
	Merger    *merging.Engine
	Writer    Writer
	Audit     AuditLogger
	Events    EventEmitter
	Progress  ProgressReporter
}

// Orchestrator runs batches through the pipeline. It is the only component
// that writes BatchMeta or calls the Writer.
type Orchestrator struct {
	logger ectologger.Logger
	deps   Dependencies
	now    func() time.Time
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(logger ectologger.Logger, deps Dependencies) *Orchestrator {
	return &Orchestrator{
		logger: logger,
		deps:   deps,
		now:    time.Now,
	}
}

// ProcessBatch processes the CSV file at filePath as batchID
func (o *Orchestrator) ProcessBatch(ctx context.Context, filePath, batchID string, onProgress models.ProgressFunc) (*models.BatchResult, error) {
	return o.ProcessBatchWithOptions(ctx, filePath, batchID, Options{OnProgress: onProgress})
}

// ProcessBatchWithOptions processes the CSV file at filePath as batchID. The
// returned BatchResult is never nil: on failure its counts reflect the work
// completed and its Errors include the fatal cause, which is also returned.
func (o *Orchestrator) ProcessBatchWithOptions(ctx context.Context, filePath, batchID string, opts Options) (*models.BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Orchestrator.ProcessBatch")
	defer span.End()

	if opts.Filename == "" {
		opts.Filename = filepath.Base(filePath)
	}

	data, readErr := os.ReadFile(filePath)
	b := o.newBatch(ctx, batchID, data, opts)
	if readErr != nil {
		b.start()
		err := fmt.Errorf("failed to read input file %s: %w", filePath, readErr)
		tracing.RecordError(span, err)
		return b.fail(models.StageReading, err)
	}

	result, err := b.run(data)
	if err != nil {
		tracing.RecordError(span, err)
	}
	return result, err
}

// batch is the mutable state of one run. work carries the values of ctx
// without its cancellation, so a started stage runs to completion and ctx is
// only checked between stages.
type batch struct {
	o         *Orchestrator
	ctx       context.Context
	work      context.Context
	log       ectologger.Logger
	id        string
	inputHash string
	meta      *models.BatchMeta
	result    *models.BatchResult
	report    models.ProgressFunc
	startedAt time.Time
}

func (o *Orchestrator) newBatch(ctx context.Context, batchID string, data []byte, opts Options) *batch {
	report := opts.OnProgress
	if o.deps.Progress != nil {
		report = o.deps.Progress.Reporter(context.WithoutCancel(ctx), report)
	}
	if report == nil {
		report = func(models.Progress) {}
	}

	startedAt := o.now()
	hash := ingest.HashInput(data)
	return &batch{
		o:         o,
		ctx:       ctx,
		work:      context.WithoutCancel(ctx),
		log:       o.logger.WithContext(ctx).WithFields(map[string]any{"batch_id": batchID}),
		id:        batchID,
		inputHash: hash,
		meta: &models.BatchMeta{
			ID:        batchID,
			Filename:  opts.Filename,
			Uploader:  opts.Uploader,
			InputHash: hash,
			Status:    models.BatchStatusProcessing,
			CreatedAt: startedAt.UTC(),
			UpdatedAt: startedAt.UTC(),
		},
		result:    &models.BatchResult{BatchID: batchID, Errors: []string{}},
		report:    report,
		startedAt: startedAt,
	}
}

func (b *batch) start() {
	md := models.Metadata{
		audit.MetaFilename: models.String(b.meta.Filename),
	}
	if b.meta.Uploader != "" {
		md[audit.MetaUploader] = models.String(b.meta.Uploader)
	}
	b.o.deps.Audit.LogStage(b.work, b.id, models.AuditOperationStart, b.inputHash, md, 0, nil)
	b.progress(models.StageStart, 0, 0, "Batch started")
	b.log.Info("Batch processing started")
}

func (b *batch) run(data []byte) (*models.BatchResult, error) {
	deps := b.o.deps
	b.start()

	if err := deps.Writer.SaveBatch(b.work, b.meta); err != nil {
		return b.fail(models.StageStart, fmt.Errorf("failed to save batch: %w", err))
	}

	// reading
	if err := b.checkCancelled(); err != nil {
		return b.fail(models.StageReading, err)
	}
	stageStart := b.o.now()
	b.progress(models.StageReading, 0, 0, "Reading input")
	read, err := deps.Reader.Read(b.work, bytes.NewReader(data), b.id)
	b.observe(models.StageReading, stageStart)
	if err != nil {
		return b.fail(models.StageReading, err)
	}
	b.result.TotalRecords = read.TotalRows
	b.meta.TotalRecords = read.TotalRows

	// validating
	if err := b.checkCancelled(); err != nil {
		return b.fail(models.StageValidating, err)
	}
	stageStart = b.o.now()
	b.progress(models.StageValidating, 0, read.TotalRows, "Validating records")
	valid, recErrs := deps.Validator.Validate(read.Records)
	recErrs = append(read.Errors, recErrs...)
	for _, re := range recErrs {
		b.result.Errors = append(b.result.Errors, re.Error())
	}
	b.result.ValidRecords = len(valid)
	b.result.InvalidRecords = read.TotalRows - len(valid)
	metrics.RecordsTotal.WithLabelValues("valid").Add(float64(b.result.ValidRecords))
	metrics.RecordsTotal.WithLabelValues("invalid").Add(float64(b.result.InvalidRecords))
	b.logStage(models.AuditOperationValidationComplete, models.StageValidating, stageStart, models.Metadata{
		audit.MetaTotalRecords:   models.Int(b.result.TotalRecords),
		audit.MetaValidRecords:   models.Int(b.result.ValidRecords),
		audit.MetaInvalidRecords: models.Int(b.result.InvalidRecords),
	})

	// normalizing
	if err := b.checkCancelled(); err != nil {
		return b.fail(models.StageNormalizing, err)
	}
	stageStart = b.o.now()
	b.progress(models.StageNormalizing, 0, len(valid), "Normalizing records")
	records := normalizers.NormalizeRecords(valid)
	b.meta.ProcessedCount = len(records)
	b.logStage(models.AuditOperationNormalizationComplete, models.StageNormalizing, stageStart, models.Metadata{
		audit.MetaNormalizedRecords: models.Int(len(records)),
	})

	// deduplicating
	if err := b.checkCancelled(); err != nil {
		return b.fail(models.StageDeduplicating, err)
	}
	stageStart = b.o.now()
	b.progress(models.StageDeduplicating, 0, len(records), "Finding match candidates")
	matched, err := deps.Matcher.Match(b.work, b.id, records)
	if err != nil {
		b.observe(models.StageDeduplicating, stageStart)
		return b.fail(models.StageDeduplicating, err)
	}
	recordMatchMetrics(matched)
	b.logStage(models.AuditOperationDeduplicationComplete, models.StageDeduplicating, stageStart, models.Metadata{
		audit.MetaMatchLinks:           models.Int(len(matched.Links)),
		audit.MetaExactLinks:           models.Int(matched.ExactLinks),
		audit.MetaFuzzyLinks:           models.Int(matched.FuzzyLinks),
		audit.MetaComparisons:          models.Int(matched.Comparisons),
		audit.MetaComparisonCapReached: models.Bool(matched.CapReached),
		audit.MetaSkippedPairs:         models.Int(matched.SkippedPairs),
	})

	// clustering and golden record synthesis
	if err := b.checkCancelled(); err != nil {
		return b.fail(models.StageClustering, err)
	}
	stageStart = b.o.now()
	b.progress(models.StageClustering, 0, len(records), "Clustering matches")
	clusters := deps.Clusterer.Cluster(b.work, b.id, records, matched.Links)
	golden, err := deps.Merger.Synthesize(b.work, clusters, records)
	if err != nil {
		b.observe(models.StageClustering, stageStart)
		return b.fail(models.StageClustering, err)
	}
	b.result.ClustersCreated = len(clusters)
	b.result.DuplicatesFound = DuplicatesFound(clusters)
	b.result.GoldenRecordsCreated = len(golden)
	metrics.GoldenRecordsTotal.Add(float64(len(golden)))
	b.logStage(models.AuditOperationClusteringComplete, models.StageClustering, stageStart, models.Metadata{
		audit.MetaClustersCreated:      models.Int(b.result.ClustersCreated),
		audit.MetaDuplicatesFound:      models.Int(b.result.DuplicatesFound),
		audit.MetaGoldenRecordsCreated: models.Int(b.result.GoldenRecordsCreated),
	})

	// writing
	if err := b.checkCancelled(); err != nil {
		return b.fail(models.StageWriting, err)
	}
	stageStart = b.o.now()
	b.progress(models.StageWriting, 0, len(records)+len(golden), "Writing results")
	if err := b.write(records, matched.Links, clusters, golden); err != nil {
		b.observe(models.StageWriting, stageStart)
		return b.fail(models.StageWriting, err)
	}
	b.logStage(models.AuditOperationWritingComplete, models.StageWriting, stageStart, models.Metadata{
		audit.MetaNormalizedRecords:    models.Int(len(records)),
		audit.MetaMatchLinks:           models.Int(len(matched.Links)),
		audit.MetaClustersCreated:      models.Int(len(clusters)),
		audit.MetaGoldenRecordsCreated: models.Int(len(golden)),
	})

	if deps.Events != nil {
		if err := deps.Events.EmitResolution(b.work, b.id, clusters, golden); err != nil {
			b.log.WithError(err).Warn("Failed to emit resolution events")
		}
	}

	if err := b.checkCancelled(); err != nil {
		return b.fail(models.StageWriting, err)
	}
	return b.complete()
}

func (b *batch) write(records []models.NormalizedRecord, links []models.MatchLink, clusters []models.MatchCluster, golden []models.GoldenRecord) error {
	w := b.o.deps.Writer
	if err := w.SaveSourceRecords(b.work, b.id, records); err != nil {
		return fmt.Errorf("failed to save source records: %w", err)
	}
	if err := w.SaveMatchLinks(b.work, b.id, links); err != nil {
		return fmt.Errorf("failed to save match links: %w", err)
	}
	if err := w.SaveClusters(b.work, b.id, clusters); err != nil {
		return fmt.Errorf("failed to save clusters: %w", err)
	}
	if err := w.SaveGoldenRecords(b.work, b.id, golden); err != nil {
		return fmt.Errorf("failed to save golden records: %w", err)
	}
	return nil
}

func (b *batch) complete() (*models.BatchResult, error) {
	elapsed := b.o.now().Sub(b.startedAt)
	b.result.ProcessingTimeMs = elapsed.Milliseconds()

	completedAt := b.o.now().UTC()
	b.meta.Status = models.BatchStatusCompleted
	b.meta.Stats = b.stats()
	b.meta.UpdatedAt = completedAt
	b.meta.CompletedAt = &completedAt
	if err := b.o.deps.Writer.SaveBatch(b.work, b.meta); err != nil {
		return b.fail(models.StageWriting, fmt.Errorf("failed to save batch: %w", err))
	}

	b.o.deps.Audit.LogStage(b.work, b.id, models.AuditOperationComplete, b.inputHash, b.summary(), elapsed, nil)
	b.progress(models.StageComplete, b.result.ValidRecords, b.result.TotalRecords, "Batch complete")

	metrics.BatchesTotal.WithLabelValues(string(models.BatchStatusCompleted)).Inc()
	metrics.BatchDuration.WithLabelValues(string(models.BatchStatusCompleted)).Observe(elapsed.Seconds())

	if b.o.deps.Events != nil {
		if err := b.o.deps.Events.EmitBatchFinished(b.work, *b.result, false); err != nil {
			b.log.WithError(err).Warn("Failed to emit batch completed event")
		}
	}

	b.log.WithFields(map[string]any{
		"total_records":  b.result.TotalRecords,
		"golden_records": b.result.GoldenRecordsCreated,
		"duration_ms":    b.result.ProcessingTimeMs,
	}).Info("Batch processing completed")
	return b.result, nil
}

// fail records a fatal error. Bookkeeping runs detached from cancellation so
// a cancelled batch still ends up FAILED.
func (b *batch) fail(stage models.Stage, cause error) (*models.BatchResult, error) {
	ctx := b.work
	elapsed := b.o.now().Sub(b.startedAt)
	b.result.ProcessingTimeMs = elapsed.Milliseconds()
	b.result.Errors = append(b.result.Errors, cause.Error())

	msg := cause.Error()
	now := b.o.now().UTC()
	b.meta.Status = models.BatchStatusFailed
	b.meta.ErrorMessage = &msg
	b.meta.Stats = b.stats()
	b.meta.UpdatedAt = now
	b.meta.CompletedAt = &now
	if err := b.o.deps.Writer.SaveBatch(ctx, b.meta); err != nil {
		b.log.WithError(err).Error("Failed to mark batch as failed")
	}

	md := b.summary()
	md[audit.MetaStage] = models.String(string(stage))
	b.o.deps.Audit.LogStage(ctx, b.id, models.AuditOperationFailed, b.inputHash, md, elapsed, cause)
	b.progress(models.StageFailed, b.result.ValidRecords, b.result.TotalRecords, msg)

	metrics.BatchesTotal.WithLabelValues(string(models.BatchStatusFailed)).Inc()
	metrics.BatchDuration.WithLabelValues(string(models.BatchStatusFailed)).Observe(elapsed.Seconds())

	if b.o.deps.Events != nil {
		if err := b.o.deps.Events.EmitBatchFinished(ctx, *b.result, true); err != nil {
			b.log.WithError(err).Warn("Failed to emit batch failed event")
		}
	}

	b.log.WithError(cause).WithFields(map[string]any{"stage": string(stage)}).Error("Batch processing failed")
	return b.result, cause
}

func (b *batch) checkCancelled() error {
	if b.ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

func (b *batch) logStage(op models.AuditOperation, stage models.Stage, startedAt time.Time, md models.Metadata) {
	b.o.deps.Audit.LogStage(b.work, b.id, op, b.inputHash, md, b.observe(stage, startedAt), nil)
}

func (b *batch) observe(stage models.Stage, startedAt time.Time) time.Duration {
	d := b.o.now().Sub(startedAt)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	return d
}

func (b *batch) progress(stage models.Stage, processed, total int, message string) {
	b.report(models.Progress{
		BatchID:   b.id,
		Stage:     stage,
		Processed: processed,
		Total:     total,
		Message:   message,
	})
}

func (b *batch) stats() models.BatchStats {
	return models.BatchStats{
		DuplicatesFound:      b.result.DuplicatesFound,
		ClustersCreated:      b.result.ClustersCreated,
		GoldenRecordsCreated: b.result.GoldenRecordsCreated,
		ProcessingTimeMs:     b.result.ProcessingTimeMs,
	}
}

func (b *batch) summary() models.Metadata {
	return models.Metadata{
		audit.MetaTotalRecords:         models.Int(b.result.TotalRecords),
		audit.MetaValidRecords:         models.Int(b.result.ValidRecords),
		audit.MetaInvalidRecords:       models.Int(b.result.InvalidRecords),
		audit.MetaDuplicatesFound:      models.Int(b.result.DuplicatesFound),
		audit.MetaClustersCreated:      models.Int(b.result.ClustersCreated),
		audit.MetaGoldenRecordsCreated: models.Int(b.result.GoldenRecordsCreated),
	}
}

// DuplicatesFound counts the records merged into another record's golden
// record: every cluster member beyond the first.
func DuplicatesFound(clusters []models.MatchCluster) int {
	n := 0
	for _, c := range clusters {
		if len(c.RecordIDs) > 1 {
			n += len(c.RecordIDs) - 1
		}
	}
	return n
}

func recordMatchMetrics(result *matching.MatchResult) {
	for _, link := range result.Links {
		metrics.MatchLinksTotal.WithLabelValues(string(link.Method)).Inc()
	}
	metrics.ComparisonsTotal.Add(float64(result.Comparisons))
	if result.CapReached {
		metrics.ComparisonCapHits.Inc()
	}
}
