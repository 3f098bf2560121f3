package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Extracts and normalizes every source without touching the remote table",
		Long: `A dry run of sync: every source is extracted and normalized and the
result is written to the local snapshot, but the remote store, the archive
and notifications are left alone.`,
		Args: cobra.NoArgs,
		RunE: runExtractCommand,
	}
}

func runExtractCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	res, err := appInstance.Orchestrator(true).Collect(cmd.Context())
	if err != nil {
		return fmt.Errorf("run extract: %w", err)
	}
	saved, err := appInstance.Backup().Save(cmd.Context(), res.Records, res.RunID)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	logger.Info("Extract command finished.",
		zap.String("run_id", res.RunID),
		zap.Int("raw", res.RawTotal),
		zap.Int("records", len(res.Records)),
		zap.String("snapshot", saved.CoursesURI),
	)
	return nil
}
