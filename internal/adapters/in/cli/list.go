package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bnema/rotavault/internal/app"
	"github.com/bnema/rotavault/internal/domain"
)

// newListCmd creates the list command.
func newListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list <destination>",
		Short: "List a destination's snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snaps, err := app.ListSnapshots(cmd.Context(), configPath, args[0])
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Println("No snapshots found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			if _, err := fmt.Fprintln(w, "TIER\tTIMESTAMP\tKIND\tLINKED_FROM"); err != nil {
				return err
			}
			for _, snap := range snaps {
				linkedFrom := snap.LinkedFrom
				if snap.Kind == domain.SnapshotMaterialized {
					linkedFrom = "-"
				}
				if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", snap.Tier, snap.Timestamp, snap.Kind, linkedFrom); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}
