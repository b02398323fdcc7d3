package render

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

const outputTailBytes = 400

// runCommand executes one collaborator CLI with a deadline, returning its
// combined output for diagnostics.
func runCommand(ctx context.Context, timeout time.Duration, command []string, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command[0], append(command[1:], args...)...)
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	return string(output), err
}

// outputTail trims subprocess chatter down to the part worth logging.
func outputTail(output string) string {
	output = strings.TrimSpace(output)
	if len(output) > outputTailBytes {
		return "..." + output[len(output)-outputTailBytes:]
	}
	return output
}
