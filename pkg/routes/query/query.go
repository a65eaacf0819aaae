package query

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Records is the read side of the graph store. *graph.QueryService implements it.
type Records interface {
	ListGoldenRecords(ctx context.Context, p models.Pagination, search string) (*models.GoldenRecordListResponse, error)
	GetGoldenRecord(ctx context.Context, id string) (*models.GoldenRecord, error)
	ListClusters(ctx context.Context, p models.Pagination, status models.ClusterStatus) (*models.MatchClusterListResponse, error)
	ListBatches(ctx context.Context, p models.Pagination) (*models.BatchMetaListResponse, error)
	GetBatch(ctx context.Context, id string) (*models.BatchMeta, error)
}

// Audit is the query surface of the audit trail. *audit.Trail implements it.
type Audit interface {
	GetTrail(ctx context.Context, batchID string) ([]models.AuditEntry, error)
	GenerateReport(ctx context.Context, batchID string) (*models.BatchAuditSummary, error)
	AnalyzeMatchQuality(ctx context.Context, batchID string) (*models.MatchQualityReport, error)
	ExportRange(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error)
	AggregateMetrics(ctx context.Context, from, to time.Time) (*models.AggregateMetrics, error)
}

// Progress reads live batch progress. *progress.RedisTracker implements it.
type Progress interface {
	Get(ctx context.Context, batchID string) (*models.Progress, error)
}

// Handler serves the read-only resolution API
type Handler struct {
	records  Records
	audit    Audit
	progress Progress
	logger   ectologger.Logger
}

// NewHandler creates a new query handler. progress may be nil.
func NewHandler(records Records, audit Audit, progress Progress, logger ectologger.Logger) *Handler {
	return &Handler{
		records:  records,
		audit:    audit,
		progress: progress,
		logger:   logger,
	}
}

// Register registers the query routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/golden-records", h.ListGoldenRecords)
	g.GET("/golden-records/:id", h.GetGoldenRecord)
	g.GET("/clusters", h.ListClusters)
	g.GET("/batches", h.ListBatches)
	g.GET("/batches/:id", h.GetBatch)
	g.GET("/batches/:id/audit", h.GetTrail)
	g.GET("/batches/:id/report", h.GetReport)
	g.GET("/batches/:id/quality", h.GetMatchQuality)
	g.GET("/batches/:id/progress", h.GetProgress)
	g.GET("/audit/export", h.ExportRange)
	g.GET("/audit/metrics", h.AggregateMetrics)
}

func pagination(c echo.Context) (models.Pagination, error) {
	p := models.Pagination{Page: 1, PageSize: 50}
	if err := echo.QueryParamsBinder(c).Int("page", &p.Page).Int("page_size", &p.PageSize).BindError(); err != nil {
		return p, httperror.NewHTTPError(http.StatusBadRequest, "page and page_size must be integers")
	}
	return p.Normalize(), nil
}

func timeRange(c echo.Context) (time.Time, time.Time, error) {
	var from, to time.Time
	err := echo.QueryParamsBinder(c).
		Time("from", &from, time.RFC3339).
		Time("to", &to, time.RFC3339).
		BindError()
	if err != nil {
		return from, to, httperror.NewHTTPError(http.StatusBadRequest, "from and to must be RFC3339 timestamps")
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if !from.Before(to) {
		return from, to, httperror.NewHTTPError(http.StatusBadRequest, "from must be before to")
	}
	return from, to, nil
}

// ListGoldenRecords lists golden records
// @Summary List golden records
// @Tags Resolution
// @Produce json
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 50)"
// @Param search query string false "Name, email or natural key filter"
// @Success 200 {object} models.GoldenRecordListResponse
// @Router /api/v1/golden-records [get]
func (h *Handler) ListGoldenRecords(c echo.Context) error {
	p, err := pagination(c)
	if err != nil {
		return err
	}
	res, err := h.records.ListGoldenRecords(c.Request().Context(), p, c.QueryParam("search"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetGoldenRecord(c echo.Context) error {
	res, err := h.records.GetGoldenRecord(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// ListClusters lists match clusters, optionally filtered by status
func (h *Handler) ListClusters(c echo.Context) error {
	p, err := pagination(c)
	if err != nil {
		return err
	}
	status := models.ClusterStatus(c.QueryParam("status"))
	switch status {
	case "", models.ClusterStatusPending, models.ClusterStatusReviewed, models.ClusterStatusResolved:
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "status must be pending, reviewed or resolved")
	}
	res, err := h.records.ListClusters(c.Request().Context(), p, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListBatches(c echo.Context) error {
	p, err := pagination(c)
	if err != nil {
		return err
	}
	res, err := h.records.ListBatches(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetBatch(c echo.Context) error {
	res, err := h.records.GetBatch(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// GetTrail returns the chronological audit trail of a batch
func (h *Handler) GetTrail(c echo.Context) error {
	entries, err := h.audit.GetTrail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

// GetReport returns the audit summary of a batch's latest run
func (h *Handler) GetReport(c echo.Context) error {
	batchID := c.Param("id")
	report, err := h.audit.GenerateReport(c.Request().Context(), batchID)
	if err != nil {
		return err
	}
	if report == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "no audit entries for batch "+batchID)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) GetMatchQuality(c echo.Context) error {
	report, err := h.audit.AnalyzeMatchQuality(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) GetProgress(c echo.Context) error {
	if h.progress == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "progress tracking is not enabled")
	}
	batchID := c.Param("id")
	p, err := h.progress.Get(c.Request().Context(), batchID)
	if err != nil {
		h.logger.WithContext(c.Request().Context()).WithError(err).Error("Failed to load progress")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to load progress")
	}
	if p == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "no progress recorded for batch "+batchID)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ExportRange(c echo.Context) error {
	from, to, err := timeRange(c)
	if err != nil {
		return err
	}
	entries, err := h.audit.ExportRange(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) AggregateMetrics(c echo.Context) error {
	from, to, err := timeRange(c)
	if err != nil {
		return err
	}
	metrics, err := h.audit.AggregateMetrics(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, metrics)
}
