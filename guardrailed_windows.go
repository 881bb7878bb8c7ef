//go:build windows

package pysandbox

import (
	"context"
	"os/exec"
)

// buildGuardrailedCommand on Windows applies no hard resource limits - only
// the wall-clock timeout is enforced, per spec.md §4.6. A future job-object
// adapter (CreateJobObject + SetInformationJobObject with a memory/CPU
// rate limit) could close this gap; none is implemented here.
func buildGuardrailedCommand(ctx context.Context, pythonPath, program string, limits ResourceLimits) *exec.Cmd {
	return exec.CommandContext(ctx, pythonPath, "-c", program)
}

// killProcessGroup on Windows terminates only the direct child; Go's
// os/exec does not expose job-object based group termination without cgo
// or golang.org/x/sys/windows, so grandchildren spawned by an Unrestricted
// import policy may survive a timeout. Documented as a known gap rather
// than silently handled.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	cmd.Process.Kill()
}
