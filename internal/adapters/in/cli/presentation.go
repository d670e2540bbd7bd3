package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/rotavault/internal/domain"
)

// printSummary renders a run summary, one line per destination.
func printSummary(cmd *cobra.Command, summary domain.RunSummary) {
	for _, res := range summary.Results {
		var detail string
		switch res.Status {
		case domain.RunStatusSuccess:
			parts := []string{}
			if res.Materialized != "" {
				parts = append(parts, "materialized "+res.Materialized)
			}
			if len(res.Linked) > 0 {
				parts = append(parts, "linked "+strings.Join(res.Linked, ","))
			}
			if res.Pruned > 0 {
				parts = append(parts, fmt.Sprintf("pruned %d", res.Pruned))
			}
			if len(parts) == 0 {
				parts = append(parts, "nothing to do")
			}
			detail = strings.Join(parts, ", ")
		case domain.RunStatusSkipped:
			detail = "skipped"
			if res.Error != "" {
				detail += " (" + res.Error + ")"
			}
		case domain.RunStatusFailed:
			detail = "failed: " + res.Error
		}
		cmd.Printf("%s: %s\n", res.Destination, detail)
	}
}
