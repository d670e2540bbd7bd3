package cli

import (
	"github.com/spf13/cobra"

	"github.com/bnema/rotavault/internal/app"
)

// newInstallCmd creates the install command.
func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the systemd service and timer (root)",
		Long: `Create /etc/rotavault with a sample sources file, write the systemd
service and the minutely timer that drives schedule evaluation, enable
the timer and reload systemd.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Install(); err != nil {
				return err
			}
			cmd.Println("Installation complete. Edit /etc/rotavault/sources.yaml, then: systemctl start rotavault.timer")
			return nil
		},
	}
}

// newUninstallCmd creates the uninstall command.
func newUninstallCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the systemd service and timer (root)",
		Long: `Remove the systemd units. With --purge the configuration and data
directories (state, history) go too. Backup destinations are never
touched either way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Uninstall(purge); err != nil {
				return err
			}
			cmd.Println("Uninstallation complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Also remove configuration and data directories")

	return cmd
}
