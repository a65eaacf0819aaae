package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Metadata keys written by the pipeline and read back by reports
const (
	MetaTotalRecords         = "total_records"
	MetaValidRecords         = "valid_records"
	MetaInvalidRecords       = "invalid_records"
	MetaNormalizedRecords    = "normalized_records"
	MetaMatchLinks           = "match_links"
	MetaExactLinks           = "exact_links"
	MetaFuzzyLinks           = "fuzzy_links"
	MetaComparisons          = "comparisons"
	MetaMaxComparisons       = "max_comparisons"
	MetaComparisonCapReached = "comparison_cap_reached"
	MetaSkippedPairs         = "skipped_pairs"
	MetaClustersCreated      = "clusters_created"
	MetaDuplicatesFound      = "duplicates_found"
	MetaGoldenRecordsCreated = "golden_records_created"
	MetaFilename             = "filename"
	MetaUploader             = "uploader"
	MetaStage                = "stage"
)

// KnownGapFalseNegatives marks that unlinked near-duplicates are not detected
const KnownGapFalseNegatives = "false_negative_detection"

// Config contains configuration for the audit trail
type Config struct {
	WriteTimeout time.Duration // Per-append timeout (default: 5s)
	ReportTTL    time.Duration // How long terminal batch reports stay cached (default: 10m)
}

// DefaultConfig returns default audit configuration
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		ReportTTL:    10 * time.Minute,
	}
}

// Trail is the append-only audit emitter and its query surface
type Trail struct {
	logger  ectologger.Logger
	store   Store
	links   LinkSource
	sink    Sink
	reports *gocache.Cache
	config  Config
	now     func() time.Time

	// versions counts accepted entries per batch so a report computed from
	// older entries is never cached
	mu       sync.Mutex
	versions map[string]uint64
}

// Option configures optional Trail collaborators
type Option func(*Trail)

// WithLinkSource enables match-quality analysis
func WithLinkSource(links LinkSource) Option {
	return func(t *Trail) { t.links = links }
}

// WithSink publishes every accepted entry
func WithSink(sink Sink) Option {
	return func(t *Trail) { t.sink = sink }
}

// NewTrail creates an audit trail over store
func NewTrail(logger ectologger.Logger, store Store, config Config, opts ...Option) *Trail {
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if config.ReportTTL <= 0 {
		config.ReportTTL = DefaultConfig().ReportTTL
	}
	t := &Trail{
		logger:  logger,
		store:   store,
		reports:  gocache.New(config.ReportTTL, 2*config.ReportTTL),
		config:   config,
		now:      time.Now,
		versions: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LogStage appends one audit entry. Failures are logged and never returned:
// audit is best-effort from the pipeline's point of view.
func (t *Trail) LogStage(ctx context.Context, batchID string, op models.AuditOperation, inputHash string, metadata models.Metadata, duration time.Duration, stageErr error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Trail.LogStage")
	defer span.End()

	entry := models.AuditEntry{
		ID:         uuid.NewString(),
		BatchID:    batchID,
		Operation:  op,
		InputHash:  inputHash,
		Timestamp:  t.now().UTC(),
		DurationMs: duration.Milliseconds(),
		Metadata:   metadata.Clone(),
	}
	if stageErr != nil {
		msg := stageErr.Error()
		entry.ErrorMessage = &msg
	}

	log := t.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":  batchID,
		"operation": string(op),
		"audit_id":  entry.ID,
	})

	// Audit must land even when the batch itself was cancelled
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.config.WriteTimeout)
	defer cancel()

	if err := t.store.Append(writeCtx, entry); err != nil {
		tracing.RecordError(span, err)
		metrics.AuditWriteFailures.Inc()
		log.WithError(err).Error("Failed to append audit entry")
		return
	}
	t.invalidate(batchID)
	log.Debug("Audit entry recorded")

	if t.sink != nil {
		if err := t.sink.PublishAuditEntry(writeCtx, entry); err != nil {
			log.WithError(err).Warn("Failed to publish audit entry")
		}
	}
}

// GetTrail returns a batch's entries in chronological order
func (t *Trail) GetTrail(ctx context.Context, batchID string) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Trail.GetTrail")
	defer span.End()

	entries, err := t.store.ListByBatch(ctx, batchID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	sortChronological(entries)
	return entries, nil
}

// GenerateReport summarizes a batch's latest run, or returns nil when the batch
// has no entries. Reports of finished batches are cached until the next entry.
func (t *Trail) GenerateReport(ctx context.Context, batchID string) (*models.BatchAuditSummary, error) {
	if cached, ok := t.reports.Get(batchID); ok {
		return cached.(*models.BatchAuditSummary).Clone(), nil
	}

	version := t.version(batchID)
	entries, err := t.GetTrail(ctx, batchID)
	if err != nil {
		return nil, err
	}
	summary := Summarize(batchID, entries)
	if summary != nil && summary.Status != models.BatchAuditStatusInProgress {
		t.cache(batchID, version, summary)
	}
	return summary.Clone(), nil
}

func (t *Trail) version(batchID string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.versions[batchID]
}

func (t *Trail) invalidate(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.versions[batchID]++
	t.reports.Delete(batchID)
}

// cache stores summary unless an entry was accepted since it was read
func (t *Trail) cache(batchID string, version uint64, summary *models.BatchAuditSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.versions[batchID] == version {
		t.reports.SetDefault(batchID, summary)
	}
}

// ExportRange returns every entry with from <= timestamp < to, chronologically
func (t *Trail) ExportRange(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Trail.ExportRange")
	defer span.End()

	if !from.Before(to) {
		return nil, errors.New("export range start must be before its end")
	}
	entries, err := t.store.ListRange(ctx, from, to)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	sortChronological(entries)
	return entries, nil
}
