package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// probeRoutes are polled by orchestrators and scrapers; they log at debug
var probeRoutes = map[string]bool{
	"/api/v1/health":       true,
	"/api/v1/health/live":  true,
	"/api/v1/health/ready": true,
	"/metrics":             true,
}

// Logger logs one line per request. Server errors log at error, client
// errors at warn, probes at debug. Batch routes carry the batch id.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
				if id == "" {
					id = uuid.New().String()
				}
			}

			route := c.Path()
			fields := map[string]any{
				"request_id":       id,
				"method":           req.Method,
				"uri":              req.RequestURI,
				"route":            route,
				"status":           res.Status,
				"remote_ip":        c.RealIP(),
				"response_time_ms": elapsed.Milliseconds(),
				"response_size":    res.Size,
			}
			if traceID := tracing.GetTraceID(req.Context()); traceID != "" {
				fields["trace_id"] = traceID
			}
			if strings.HasPrefix(route, "/api/v1/batches/:id") {
				fields["batch_id"] = c.Param("id")
			}

			log := logger.WithContext(req.Context()).WithFields(fields)
			switch {
			case res.Status >= http.StatusInternalServerError:
				log.Error("Request failed")
			case res.Status >= http.StatusBadRequest:
				log.Warn("Request rejected")
			case probeRoutes[route]:
				log.Debug("Probe")
			default:
				log.Info("Request")
			}
			return nil
		}
	}
}
