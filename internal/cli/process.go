package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/pipeline"
)

func newProcessCommand(opts *rootOptions) *cobra.Command {
	var (
		batchID  string
		uploader string
	)

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Resolve one CSV batch and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, stop, err := opts.start(ctx)
			if err != nil {
				return err
			}
			defer stop()

			log := opts.logger.WithContext(ctx)
			result, procErr := a.Orchestrator.ProcessBatchWithOptions(ctx, args[0], batchID, pipeline.Options{
				Uploader: uploader,
				OnProgress: func(p models.Progress) {
					log.WithFields(map[string]any{
						"batch_id":  p.BatchID,
						"stage":     string(p.Stage),
						"processed": p.Processed,
						"total":     p.Total,
					}).Info(p.Message)
				},
			})
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if errors.Is(procErr, pipeline.ErrCancelled) {
				return fmt.Errorf("batch %s was cancelled", batchID)
			}
			return procErr
		},
	}
	cmd.Flags().StringVar(&batchID, "batch-id", "", "batch id (required)")
	cmd.Flags().StringVar(&uploader, "uploader", "", "uploader recorded on the batch")
	_ = cmd.MarkFlagRequired("batch-id")
	return cmd
}
