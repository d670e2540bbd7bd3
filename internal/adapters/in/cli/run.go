package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/rotavault/internal/app"
)

// newRunCmd creates the run command, the scheduled entrypoint.
func newRunCmd() *cobra.Command {
	var (
		configPath  string
		destination string
		nowStr      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate schedules and run due backups",
		Long: `Evaluate every destination's tier schedules against the persisted
last run and rotate the due ones. This is what the systemd timer
invokes; running it by hand is equivalent.

With --destination only the named destination is evaluated and the
process-wide last-run marker is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var now time.Time
			if nowStr != "" {
				parsed, err := time.Parse(time.RFC3339, nowStr)
				if err != nil {
					return fmt.Errorf("invalid --now value, want RFC3339: %w", err)
				}
				now = parsed
			}

			summary, err := app.RunBackup(cmd.Context(), configPath, destination, now)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			if summary.Failed() {
				return fmt.Errorf("run finished with failures")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&destination, "destination", "d", "", "Run a single destination by name")
	cmd.Flags().StringVar(&nowStr, "now", "", "Evaluate against this RFC3339 instant instead of the wall clock")

	return cmd
}

// newPruneCmd creates the prune command.
func newPruneCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply retention without backing up",
		Long: `Prune every destination's tiers down to their keep counts without
transferring anything. Normal runs prune due tiers themselves; this is
for applying a tightened keep count immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := app.RunPrune(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			if summary.Failed() {
				return fmt.Errorf("prune finished with failures")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}
