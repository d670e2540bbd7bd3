package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/rotavault/internal/app"
)

// newHistoryCmd creates the history command.
func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent run summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := app.RecentRuns(cmd.Context(), configPath, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			if _, err := fmt.Fprintln(w, "STARTED\tDESTINATION\tSTATUS\tMATERIALIZED\tLINKED\tPRUNED\tERROR"); err != nil {
				return err
			}
			for _, run := range runs {
				started := run.StartedAt.Local().Format(time.DateTime)
				for _, res := range run.Results {
					linked := "-"
					if len(res.Linked) > 0 {
						linked = fmt.Sprintf("%v", res.Linked)
					}
					materialized := res.Materialized
					if materialized == "" {
						materialized = "-"
					}
					errMsg := res.Error
					if errMsg == "" {
						errMsg = "-"
					}
					if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
						started, res.Destination, res.Status, materialized, linked, res.Pruned, errMsg); err != nil {
						return err
					}
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")

	return cmd
}
