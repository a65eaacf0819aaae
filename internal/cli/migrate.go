package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the audit store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			return a.Migrate(cmd.Context())
		},
	}
}
