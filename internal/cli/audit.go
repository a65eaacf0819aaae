package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/audit"
)

func newAuditCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}

	batchCommand := func(use, short string, run func(cmd *cobra.Command, trail *audit.Trail, batchID string) (any, error)) *cobra.Command {
		var batchID string
		c := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, stop, err := opts.start(cmd.Context())
				if err != nil {
					return err
				}
				defer stop()

				out, err := run(cmd, a.Trail, batchID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			},
		}
		c.Flags().StringVar(&batchID, "batch-id", "", "batch id (required)")
		_ = c.MarkFlagRequired("batch-id")
		return c
	}

	rangeCommand := func(use, short string, run func(cmd *cobra.Command, trail *audit.Trail, from, to time.Time) (any, error)) *cobra.Command {
		var from, to string
		c := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				start, end, err := parseRange(from, to, time.Now())
				if err != nil {
					return err
				}
				a, stop, err := opts.start(cmd.Context())
				if err != nil {
					return err
				}
				defer stop()

				out, err := run(cmd, a.Trail, start, end)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			},
		}
		c.Flags().StringVar(&from, "from", "", "range start, RFC3339 or YYYY-MM-DD (default: 24h before --to)")
		c.Flags().StringVar(&to, "to", "", "range end, exclusive (default: now)")
		return c
	}

	cmd.AddCommand(
		batchCommand("trail", "Print the chronological audit trail of a batch", func(cmd *cobra.Command, trail *audit.Trail, batchID string) (any, error) {
			return trail.GetTrail(cmd.Context(), batchID)
		}),
		batchCommand("report", "Summarize the latest run of a batch", func(cmd *cobra.Command, trail *audit.Trail, batchID string) (any, error) {
			report, err := trail.GenerateReport(cmd.Context(), batchID)
			if err != nil {
				return nil, err
			}
			if report == nil {
				return nil, fmt.Errorf("no audit entries for batch %s", batchID)
			}
			return report, nil
		}),
		batchCommand("quality", "Flag potential false positive matches of a batch", func(cmd *cobra.Command, trail *audit.Trail, batchID string) (any, error) {
			return trail.AnalyzeMatchQuality(cmd.Context(), batchID)
		}),
		rangeCommand("export", "Export every audit entry in a time range", func(cmd *cobra.Command, trail *audit.Trail, from, to time.Time) (any, error) {
			return trail.ExportRange(cmd.Context(), from, to)
		}),
		rangeCommand("metrics", "Aggregate batch metrics over a time range", func(cmd *cobra.Command, trail *audit.Trail, from, to time.Time) (any, error) {
			return trail.AggregateMetrics(cmd.Context(), from, to)
		}),
	)
	return cmd
}

// parseRange resolves --from/--to. Empty to means now; empty from means 24h before to.
func parseRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC()
	if to != "" {
		t, err := parseTime(to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		end = t
	}
	start := end.Add(-24 * time.Hour)
	if from != "" {
		t, err := parseTime(from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
		start = t
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from %s must be before --to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", s)
	}
	return t.UTC(), nil
}
