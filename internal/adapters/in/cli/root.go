// Package cli implements the CLI adapter for rotavault.
// This package provides Cobra commands that delegate to the app layer.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/rotavault/pkg/version"
)

// Execute runs the CLI with build-time version info.
func Execute(v, commit, date string) {
	version.Set(v, commit, date)
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates the root command for the rotavault CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rotavault",
		Short: "rotavault - scheduled backups with tiered snapshot rotation",
		Long: `rotavault backs up local directories to one or more destinations on
cron-style schedules, keeping historical snapshots in named retention
tiers (hourly, daily, weekly, ...). When several tiers come due in the
same run, the data is transferred once and shared across tiers by
hardlink, then every tier is pruned down to its keep count.`,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newPruneCmd())
	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(newUninstallCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("rotavault %s\n", version.Version())
			cmd.Printf("Commit: %s\n", version.Commit())
			cmd.Printf("Build Date: %s\n", version.BuildDate())
		},
	}
}
