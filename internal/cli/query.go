package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/models"
)

func newListCommand(opts *rootOptions, resource, short string) *cobra.Command {
	var (
		page     int
		pageSize int
		search   string
		status   string
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List " + resource,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateClusterStatus(status); err != nil {
				return err
			}
			a, stop, err := opts.start(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			ctx := cmd.Context()
			p := models.Pagination{Page: page, PageSize: pageSize}.Normalize()

			var out any
			switch resource {
			case "golden":
				out, err = a.Query.ListGoldenRecords(ctx, p, search)
			case "clusters":
				out, err = a.Query.ListClusters(ctx, p, models.ClusterStatus(status))
			default:
				out, err = a.Query.ListBatches(ctx, p)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	list.Flags().IntVar(&page, "page", 1, "1-based page number")
	list.Flags().IntVar(&pageSize, "page-size", 50, "results per page (max 500)")
	switch resource {
	case "golden":
		list.Flags().StringVar(&search, "search", "", "case-insensitive name, email or natural key filter")
	case "clusters":
		list.Flags().StringVar(&status, "status", "", "filter by status: pending, reviewed or resolved")
	}

	cmd := &cobra.Command{Use: resource, Short: short}
	cmd.AddCommand(list)
	if resource != "clusters" {
		cmd.AddCommand(newGetCommand(opts, resource))
	}
	return cmd
}

func newGetCommand(opts *rootOptions, resource string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one of " + resource,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, stop, err := opts.start(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			var out any
			if resource == "golden" {
				out, err = a.Query.GetGoldenRecord(cmd.Context(), args[0])
			} else {
				out, err = a.Query.GetBatch(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newProgressCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <batch-id>",
		Short: "Show the latest recorded progress of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.cfg.RedisEnabled {
				return fmt.Errorf("progress tracking requires REDIS_ENABLED")
			}
			a, stop, err := opts.start(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			p, err := a.Tracker.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("no progress recorded for batch %s", args[0])
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
}

func validateClusterStatus(status string) error {
	switch models.ClusterStatus(status) {
	case "", models.ClusterStatusPending, models.ClusterStatusReviewed, models.ClusterStatusResolved:
		return nil
	}
	return fmt.Errorf("unknown cluster status %q", status)
}
