// Package cli implements the clover command line
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

type rootOptions struct {
	envFile string
	cfg     *config.Config
	logger  ectologger.Logger
	flush   func()
	stopTr  func(context.Context) error
}

// NewRootCommand builds the clover command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "clover",
		Short:         "Clover - entity resolution engine",
		Long:          "Clover ingests batches of person and organization records, links likely duplicates\nand synthesizes confidence-scored golden records with a full audit trail.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			opts.close(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file loaded before reading the environment")

	root.AddCommand(
		newProcessCommand(opts),
		newServeCommand(opts),
		newMigrateCommand(opts),
		newAuditCommand(opts),
		newListCommand(opts, "golden", "Golden records"),
		newListCommand(opts, "clusters", "Match clusters"),
		newListCommand(opts, "batches", "Ingested batches"),
		newProgressCommand(opts),
	)
	return root
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *rootOptions) init() error {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return err
	}
	logger, flush, err := logging.New(cfg.AppName, cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	o.flush = flush
	o.stopTr = tracing.Init(cfg.AppName)
	return nil
}

func (o *rootOptions) close(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.stopTr != nil {
		_ = o.stopTr(ctx)
	}
	if o.flush != nil {
		o.flush()
	}
}

// start builds and starts the App. The returned func stops it.
func (o *rootOptions) start(ctx context.Context) (*app.App, func(), error) {
	a, err := app.New(o.cfg, o.logger)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Start(ctx); err != nil {
		return nil, nil, err
	}
	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Stop(stopCtx); err != nil {
			o.logger.WithError(err).Warn("Failed to stop dependencies cleanly")
		}
	}
	return a, stop, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
