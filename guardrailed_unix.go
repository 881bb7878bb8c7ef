//go:build unix

package pysandbox

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

// buildGuardrailedCommand assembles the command actually exec'd for the
// guardrailed engine on POSIX systems. Go's os/exec has no pre-exec hook
// equivalent to a libc pre_exec closure run between fork and execve, so
// RLIMIT_CPU/RLIMIT_AS/RLIMIT_NPROC are applied by wrapping the interpreter
// invocation in a shell that calls ulimit before exec'ing the interpreter
// in place - the shell process image is replaced, so the interpreter
// inherits the limits without an intervening process, functionally
// equivalent to a pre-exec hook. Setpgid(0,0) on SysProcAttr *is* a true
// pre-exec hook (the kernel applies it as part of the clone sequence), so
// the process-group placement needed for group-kill on timeout does not
// need the shell trick.
func buildGuardrailedCommand(ctx context.Context, pythonPath, program string, limits ResourceLimits) *exec.Cmd {
	limits = clampToHostHardLimits(limits)

	var ulimits []string
	if runtime.GOOS != "darwin" && limits.MaxMemoryMB > 0 {
		ulimits = append(ulimits, fmt.Sprintf("ulimit -S -v %d", limits.MaxMemoryMB*1024))
	}
	if limits.MaxCPUSeconds > 0 {
		ulimits = append(ulimits, fmt.Sprintf("ulimit -S -t %d", limits.MaxCPUSeconds))
	}
	if runtime.GOOS == "linux" {
		ulimits = append(ulimits, fmt.Sprintf("ulimit -S -u %d", maxProcessesFor(limits)))
	}

	var cmd *exec.Cmd
	if len(ulimits) == 0 {
		cmd = exec.CommandContext(ctx, pythonPath, "-c", program)
	} else {
		shellScript := joinWithSemicolons(ulimits) + `; exec "$0" "$@"`
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", shellScript, pythonPath, "-c", program)
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

// clampToHostHardLimits reads the host's hard RLIMIT_AS/RLIMIT_CPU via
// golang.org/x/sys/unix and caps the requested soft limits to them: "ulimit
// -S" silently fails if asked to exceed the hard limit, which would leave
// the child running with whatever limit was already in effect rather than
// the one this call intended.
func clampToHostHardLimits(limits ResourceLimits) ResourceLimits {
	var rlim unix.Rlimit

	if limits.MaxMemoryMB > 0 {
		if err := unix.Getrlimit(unix.RLIMIT_AS, &rlim); err == nil && rlim.Max != unix.RLIM_INFINITY {
			hardMB := uint64(rlim.Max) / (1024 * 1024)
			if hardMB > 0 && limits.MaxMemoryMB > hardMB {
				limits.MaxMemoryMB = hardMB
			}
		}
	}

	if limits.MaxCPUSeconds > 0 {
		if err := unix.Getrlimit(unix.RLIMIT_CPU, &rlim); err == nil && rlim.Max != unix.RLIM_INFINITY {
			if uint64(rlim.Max) > 0 && limits.MaxCPUSeconds > uint64(rlim.Max) {
				limits.MaxCPUSeconds = uint64(rlim.Max)
			}
		}
	}

	return limits
}

func maxProcessesFor(limits ResourceLimits) uint64 {
	if limits.MaxThreads == 0 {
		return 10
	}
	return limits.MaxThreads * 4
}

func joinWithSemicolons(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "; "
		}
		out += p
	}
	return out
}

// killProcessGroup sends SIGKILL to the child's entire process group, which
// is how the wall-clock timeout path reclaims grandchildren the interpreter
// may have spawned (subprocess, multiprocessing workers that slipped
// through an Unrestricted import policy, etc).
func killProcessGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
