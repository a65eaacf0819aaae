package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeRecords struct {
	lastPage   models.Pagination
	lastSearch string
	lastStatus models.ClusterStatus
}

func (f *fakeRecords) ListGoldenRecords(_ context.Context, p models.Pagination, search string) (*models.GoldenRecordListResponse, error) {
	f.lastPage, f.lastSearch = p, search
	return &models.GoldenRecordListResponse{Items: []models.GoldenRecord{{ID: "g1"}}, TotalCount: 1, Page: p.Page, PageSize: p.PageSize}, nil
}

func (f *fakeRecords) GetGoldenRecord(_ context.Context, id string) (*models.GoldenRecord, error) {
	if id != "g1" {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "golden record "+id+" not found")
	}
	return &models.GoldenRecord{ID: "g1"}, nil
}

func (f *fakeRecords) ListClusters(_ context.Context, p models.Pagination, status models.ClusterStatus) (*models.MatchClusterListResponse, error) {
	f.lastStatus = status
	return &models.MatchClusterListResponse{Items: []models.MatchCluster{}, Page: p.Page, PageSize: p.PageSize}, nil
}

func (f *fakeRecords) ListBatches(_ context.Context, p models.Pagination) (*models.BatchMetaListResponse, error) {
	return &models.BatchMetaListResponse{Items: []models.BatchMeta{}, Page: p.Page, PageSize: p.PageSize}, nil
}

func (f *fakeRecords) GetBatch(_ context.Context, id string) (*models.BatchMeta, error) {
	return &models.BatchMeta{ID: id}, nil
}

type fakeAudit struct {
	from, to time.Time
}

func (f *fakeAudit) GetTrail(_ context.Context, batchID string) ([]models.AuditEntry, error) {
	return []models.AuditEntry{{BatchID: batchID, Operation: models.AuditOperationStart}}, nil
}

func (f *fakeAudit) GenerateReport(_ context.Context, batchID string) (*models.BatchAuditSummary, error) {
	if batchID == "unknown" {
		return nil, nil
	}
	return &models.BatchAuditSummary{BatchID: batchID, Status: models.BatchAuditStatusComplete}, nil
}

func (f *fakeAudit) AnalyzeMatchQuality(_ context.Context, batchID string) (*models.MatchQualityReport, error) {
	return &models.MatchQualityReport{BatchID: batchID}, nil
}

func (f *fakeAudit) ExportRange(_ context.Context, from, to time.Time) ([]models.AuditEntry, error) {
	f.from, f.to = from, to
	return []models.AuditEntry{}, nil
}

func (f *fakeAudit) AggregateMetrics(_ context.Context, from, to time.Time) (*models.AggregateMetrics, error) {
	return &models.AggregateMetrics{From: from, To: to}, nil
}

func setup(progress Progress) (*echo.Echo, *fakeRecords, *fakeAudit) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	records, aud := &fakeRecords{}, &fakeAudit{}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	NewHandler(records, aud, progress, logger).Register(e.Group("/api/v1"))
	return e, records, aud
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler(t *testing.T) {
	t.Run("should list golden records with paging and search", func(t *testing.T) {
		e, records, _ := setup(nil)
		rec := get(e, "/api/v1/golden-records?page=2&page_size=10&search=smith")
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, models.Pagination{Page: 2, PageSize: 10}, records.lastPage)
		assert.Equal(t, "smith", records.lastSearch)

		var res models.GoldenRecordListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, 1, res.TotalCount)
	})

	t.Run("should reject bad paging", func(t *testing.T) {
		e, _, _ := setup(nil)
		assert.Equal(t, http.StatusBadRequest, get(e, "/api/v1/batches?page=abc").Code)
	})

	t.Run("should pass through not found errors", func(t *testing.T) {
		e, _, _ := setup(nil)
		assert.Equal(t, http.StatusOK, get(e, "/api/v1/golden-records/g1").Code)
		assert.Equal(t, http.StatusNotFound, get(e, "/api/v1/golden-records/g2").Code)
	})

	t.Run("should validate cluster status", func(t *testing.T) {
		e, records, _ := setup(nil)
		assert.Equal(t, http.StatusOK, get(e, "/api/v1/clusters?status=pending").Code)
		assert.Equal(t, models.ClusterStatusPending, records.lastStatus)
		assert.Equal(t, http.StatusBadRequest, get(e, "/api/v1/clusters?status=merged").Code)
	})

	t.Run("should return 404 for batches without audit entries", func(t *testing.T) {
		e, _, _ := setup(nil)
		assert.Equal(t, http.StatusOK, get(e, "/api/v1/batches/b1/report").Code)
		assert.Equal(t, http.StatusNotFound, get(e, "/api/v1/batches/unknown/report").Code)
		assert.Equal(t, http.StatusOK, get(e, "/api/v1/batches/b1/audit").Code)
		assert.Equal(t, http.StatusOK, get(e, "/api/v1/batches/b1/quality").Code)
	})

	t.Run("should parse export ranges", func(t *testing.T) {
		e, _, aud := setup(nil)
		rec := get(e, "/api/v1/audit/export?from=2026-03-01T00:00:00Z&to=2026-03-02T00:00:00Z")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), aud.from.UTC())
		assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), aud.to.UTC())

		assert.Equal(t, http.StatusBadRequest, get(e, "/api/v1/audit/metrics?from=2026-03-02T00:00:00Z&to=2026-03-01T00:00:00Z").Code)
		assert.Equal(t, http.StatusBadRequest, get(e, "/api/v1/audit/metrics?from=yesterday").Code)
	})

	t.Run("should report progress as unavailable without a tracker", func(t *testing.T) {
		e, _, _ := setup(nil)
		assert.Equal(t, http.StatusServiceUnavailable, get(e, "/api/v1/batches/b1/progress").Code)
	})
}
