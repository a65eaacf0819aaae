package auditentry

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const table = "audit_entries"

var columns = []string{"id", "batch_id", "operation", "input_hash", `"timestamp"`, "duration_ms", "metadata", "error_message"}

// Repository is the Postgres-backed audit store. Rows are only ever inserted.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new audit entry repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Append inserts one entry. Re-appending an existing id is a no-op.
func (r *Repository) Append(ctx context.Context, entry models.AuditEntry) error {
	ctx, span := tracing.StartSpan(ctx, "auditentry.Repository.Append")
	defer span.End()

	if entry.Metadata == nil {
		entry.Metadata = models.Metadata{}
	}

	sb := database.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(entry.ID, entry.BatchID, entry.Operation, entry.InputHash, entry.Timestamp.UTC(), entry.DurationMs, entry.Metadata, entry.ErrorMessage)
	sb.OnConflictDoNothing()

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"audit_id": entry.ID,
			"batch_id": entry.BatchID,
		}).Error("Failed to append audit entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append audit entry")
	}

	return nil
}

// ListByBatch returns a batch's entries oldest first. seq breaks timestamp
// ties in insert order.
func (r *Repository) ListByBatch(ctx context.Context, batchID string) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "auditentry.Repository.ListByBatch")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("batch_id", batchID))
	sb.OrderBy(`"timestamp" ASC`, "seq ASC")

	query, args := sb.Build()
	entries := []models.AuditEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": batchID}).Error("Failed to list audit entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list audit entries")
	}

	return entries, nil
}

// ListRange returns entries with from <= timestamp < to, oldest first
func (r *Repository) ListRange(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "auditentry.Repository.ListRange")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.GreaterEqualThan(`"timestamp"`, from.UTC()),
		sb.LessThan(`"timestamp"`, to.UTC()),
	)
	sb.OrderBy(`"timestamp" ASC`, "seq ASC")

	query, args := sb.Build()
	entries := []models.AuditEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to export audit entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to export audit entries")
	}

	return entries, nil
}
