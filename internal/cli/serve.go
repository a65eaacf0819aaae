package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/routes/query"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops server (health, metrics and the read-only query API)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, stop, err := opts.start(ctx)
			if err != nil {
				return err
			}
			defer stop()

			return serve(ctx, a)
		},
	}
}

// newServer builds the ops echo server
func newServer(a *app.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.Logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(otelecho.Middleware(a.Config.AppName))
	e.Use(middleware.Logger(a.Logger))

	a.Health.RegisterRoutes(e)

	var tracker query.Progress
	if a.Tracker != nil {
		tracker = a.Tracker
	}
	query.NewHandler(a.Query, a.Trail, tracker, a.Logger).Register(e.Group("/api/v1"))
	return e
}

func serve(ctx context.Context, a *app.App) error {
	e := newServer(a)
	addr := fmt.Sprintf(":%d", a.Config.Port)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Infof("Ops server listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	a.Logger.Info("Shutting down ops server")
	return e.Shutdown(shutdownCtx)
}
