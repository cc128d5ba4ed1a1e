package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adnord/ownership-cli/internal/model"
	sfpkg "github.com/adnord/ownership-cli/pkg/salesforce"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process queued properties from the CRM",
	Long:  "Pulls properties with research status Queued from Salesforce and runs them through the resolution pipeline sequentially. Ctrl-C cancels cooperatively between stages.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		limit := batchLimit
		if limit <= 0 {
			limit = cfg.Workflow.BatchLimit
		}

		sfProps, err := sfpkg.FindQueuedProperties(ctx, env.Salesforce, limit)
		if err != nil {
			return eris.Wrap(err, "batch: query queued properties")
		}
		if len(sfProps) == 0 {
			zap.L().Info("batch: no queued properties")
			return nil
		}

		props := make([]model.PropertyRecord, len(sfProps))
		for i, p := range sfProps {
			props[i] = propertyFromSF(p)
		}

		zap.L().Info("batch: starting", zap.Int("properties", len(props)))
		runs := env.Orchestrator.RunBatch(ctx, props)

		var completed, failed, cancelled int
		for _, r := range runs {
			switch r.Status {
			case model.RunStatusCompleted:
				completed++
			case model.RunStatusFailed:
				failed++
			case model.RunStatusCancelled:
				cancelled++
			}
		}
		zap.L().Info("batch: finished",
			zap.Int("queued", len(props)),
			zap.Int("completed", completed),
			zap.Int("failed", failed),
			zap.Int("cancelled", cancelled),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max properties to process (default from config)")
	rootCmd.AddCommand(batchCmd)
}
