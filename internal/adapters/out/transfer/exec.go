package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/zerowrap"
)

// runCommand executes an external transfer tool and folds its combined
// output into the returned error, since that output is usually the only
// diagnostic the tool gives.
func runCommand(ctx context.Context, log zerowrap.Logger, name string, args ...string) error {
	log.Debug().
		Str(zerowrap.FieldAdapter, "transfer."+name).
		Str("args", strings.Join(args, " ")).
		Msg("executing transfer command")

	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(output.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return nil
}
