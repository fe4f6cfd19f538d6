package pkgsrc

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// CommandExec is the production ExecFunc: it runs the command directly
// with a bounded timeout. A non-zero exit is reported through the exit
// code, not the error; the error is reserved for launch failures.
func CommandExec(ctx context.Context, name string, args []string, timeout time.Duration) (string, string, int, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			err = nil
		} else {
			exitCode = -1
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}
