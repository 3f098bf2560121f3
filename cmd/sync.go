package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/metrics"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Extracts every source and replaces the remote table",
		Long: `Runs every configured source in order against one browser session,
normalizes the results, replaces the remote table in batches, and writes the
dated local snapshot. Missing store credentials or an unreachable store fall
back to the local snapshot only.`,
		Args: cobra.NoArgs,
		RunE: runSyncCommand,
	}
}

func runSyncCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	res, err := appInstance.Orchestrator(false).Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run sync: %w", err)
	}

	failed := 0
	for _, src := range res.Sources {
		if src.Err != nil {
			failed++
		}
	}
	logger.Info("Sync command finished.",
		zap.String("run_id", res.RunID),
		zap.Int("records", len(res.Records)),
		zap.Int("failed_sources", failed),
		zap.String("mode", string(res.Outcome.Mode)),
		zap.Int("inserted", res.Outcome.Inserted),
		zap.Int("failed_batches", res.Outcome.FailedBatches),
		zap.String("snapshot", res.Outcome.BackupURI),
	)

	m := appInstance.Config().Metrics
	if err := metrics.Push(cmd.Context(), m.PushgatewayURL, m.Job); err != nil {
		logger.Warn("Failed to push metrics", zap.Error(err))
	}
	return nil
}
