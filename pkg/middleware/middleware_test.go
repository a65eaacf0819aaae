package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(handler echo.HandlerFunc) *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Logger(logger))
	e.GET("/test", handler)
	return e
}

func call(t *testing.T, e *echo.Echo) (int, ErrorResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestError(t *testing.T) {
	t.Run("should render http errors with their status", func(t *testing.T) {
		e := newTestServer(func(echo.Context) error {
			return httperror.NewHTTPError(http.StatusNotFound, "golden record g1 not found")
		})
		code, body := call(t, e)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Contains(t, body.Message, "g1")
	})

	t.Run("should render echo errors", func(t *testing.T) {
		e := newTestServer(func(echo.Context) error {
			return echo.NewHTTPError(http.StatusBadRequest, "bad page")
		})
		code, body := call(t, e)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "bad page", body.Message)
	})

	t.Run("should hide plain errors behind a 500", func(t *testing.T) {
		e := newTestServer(func(echo.Context) error { return errors.New("driver exploded") })
		code, body := call(t, e)
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "Internal Server Error", body.Message)
	})
}

func TestLogger(t *testing.T) {
	var logged []ectologger.EctoLogMessage
	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		switch msg.Message {
		case "Request", "Request rejected", "Request failed", "Probe":
			logged = append(logged, msg)
		}
	})

	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Logger(logger))
	e.GET("/api/v1/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/api/v1/batches/:id/report", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/api/v1/golden-records/:id", func(echo.Context) error {
		return httperror.NewHTTPError(http.StatusNotFound, "golden record not found")
	})
	e.GET("/api/v1/clusters", func(echo.Context) error { return errors.New("graph down") })

	serve := func(path string) ectologger.EctoLogMessage {
		t.Helper()
		logged = nil
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		require.Len(t, logged, 1)
		return logged[0]
	}

	t.Run("should log probes at debug", func(t *testing.T) {
		msg := serve("/api/v1/health/live")
		assert.Equal(t, "debug", msg.Level)
		assert.Equal(t, "/api/v1/health/live", msg.Fields["route"])
	})

	t.Run("should tag batch routes with the batch id", func(t *testing.T) {
		msg := serve("/api/v1/batches/batch-9/report")
		assert.Equal(t, "info", msg.Level)
		assert.Equal(t, "batch-9", msg.Fields["batch_id"])
		assert.Equal(t, http.StatusOK, msg.Fields["status"])
	})

	t.Run("should warn on client errors", func(t *testing.T) {
		msg := serve("/api/v1/golden-records/g1")
		assert.Equal(t, "warn", msg.Level)
		assert.Equal(t, http.StatusNotFound, msg.Fields["status"])
		assert.NotContains(t, msg.Fields, "batch_id")
	})

	t.Run("should log server errors at error", func(t *testing.T) {
		msg := serve("/api/v1/clusters")
		assert.Equal(t, "error", msg.Level)
		assert.Equal(t, http.StatusInternalServerError, msg.Fields["status"])
	})
}
