package pysandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/relaycode/pysandbox/sandbox"
)

// OSSandboxedEngine wraps the guardrailed engine's program assembly with a
// fresh per-call Workspace and the platform sandbox launcher (bubblewrap on
// Linux, Seatbelt on macOS; Windows is an acknowledged stub), per spec.md
// §4.7. It confines the filesystem view to the workspace plus the
// interpreter's own install prefix. The ulimit-based resource limits and
// process-group placement of GuardrailedEngine are applied only when the
// platform launcher is unavailable and the engine falls back to the
// guardrailed command; under the launcher, the wall-clock timeout and the
// thread-count environment variables are the only limits applied.
type OSSandboxedEngine struct {
	interp        *Interpreter
	limits        ResourceLimits
	workspaceBase string
	exportBase    string
	audit         bool
}

// NewOSSandboxedEngine constructs an OSSandboxedEngine. workspaceBase
// defaults to DefaultWorkspaceBase() when empty; exportBase, when
// non-empty, enables the export step after a successful run.
func NewOSSandboxedEngine(interp *Interpreter, limits ResourceLimits, workspaceBase, exportBase string, audit bool) *OSSandboxedEngine {
	if workspaceBase == "" {
		workspaceBase = DefaultWorkspaceBase()
	}
	return &OSSandboxedEngine{interp: interp, limits: limits, workspaceBase: workspaceBase, exportBase: exportBase, audit: audit}
}

// Validate delegates to the same syntax-check strategy as the guardrailed
// engine; no sandboxing is needed to parse, not execute, code.
func (e *OSSandboxedEngine) Validate(ctx context.Context, code string) error {
	g := &GuardrailedEngine{interp: e.interp}
	return g.Validate(ctx, code)
}

// Execute creates a workspace, launches the instrumented interpreter
// through the platform sandbox, and - on success - runs the optional
// export step, per spec.md §4.7.
func (e *OSSandboxedEngine) Execute(ctx context.Context, code string, inputs map[string]interface{}, opts ExecutionOptions) (*ExecutionResult, error) {
	ws, err := NewWorkspace(e.workspaceBase, e.audit)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, wrapErr(ErrKindJsonError, "encode inputs", err)
	}

	program, err := buildPrologue(opts.ImportPolicy, opts.NetworkAllow, string(inputsJSON), code, true)
	if err != nil {
		return nil, err
	}

	policy := e.buildSandboxPolicy(ws)

	var proxy *sandbox.NetworkProxy
	var proxyEnv []string
	if len(opts.NetworkAllow) > 0 {
		proxy, err = sandbox.NewNetworkProxy(&sandbox.NetworkFilter{AllowHosts: opts.NetworkAllow})
		if err != nil {
			return nil, wrapErr(ErrKindInternalError, "start network proxy", err)
		}
		defer proxy.Close()
		proxyEnv = proxy.Env()

		if runtime.GOOS == "linux" && proxy.SocketDir() != "" {
			policy.ReadWriteMounts = append(policy.ReadWriteMounts, sandbox.Mount{Source: proxy.SocketDir(), Target: proxy.SocketDir()})
		}
		if runtime.GOOS == "darwin" {
			policy.AllowLocalhostOnly = true
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	limits := e.limits
	if opts.MemoryMB > 0 {
		limits.MaxMemoryMB = opts.MemoryMB
	}
	if opts.CPUSeconds > 0 {
		limits.MaxCPUSeconds = opts.CPUSeconds
	}

	cmd, err := policy.Command(runCtx, e.interp.Path(), "-c", program)
	if err != nil {
		auditEvent(e.audit, "platform sandbox unavailable, falling back unsandboxed", zap.Error(err))
		cmd = buildGuardrailedCommand(runCtx, e.interp.Path(), program, limits)
	}

	env := buildChildEnv(opts, limits)
	env = append(env, "SANDBOX_WORKSPACE="+ws.Path)
	env = append(env, proxyEnv...)
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return nil, newErr(ErrKindTimeout, fmt.Sprintf("execution exceeded %s", opts.Timeout))
	}

	stderrStr := stderr.String()
	if strings.Contains(stderrStr, "deny") || strings.Contains(stderrStr, "Sandbox") {
		return nil, newErr(ErrKindSecurityViolation, stderrStr)
	}

	result, parseErr := parseFramedOutput(stdout.String(), stderrStr, runErr)
	if result != nil {
		result.Workspace = ws.Path
	}
	if parseErr != nil {
		return result, parseErr
	}

	if e.exportBase != "" {
		exportDir, exported, err := ws.Export(e.exportBase)
		if err != nil {
			return result, err
		}
		result.ExportDir = exportDir
		result.ExportedFiles = exported
	}

	return result, nil
}

// buildSandboxPolicy translates the engine's interpreter and the call's
// workspace into a sandbox.Policy: the interpreter's install prefix and
// standard system directories read-only, the workspace read-write.
func (e *OSSandboxedEngine) buildSandboxPolicy(ws *Workspace) *sandbox.Policy {
	policy := sandbox.DefaultPolicy()
	policy.WorkDir = ws.Path
	policy.ReadWriteMounts = append(policy.ReadWriteMounts, sandbox.Mount{Source: ws.Path, Target: ws.Path})

	interpreterRoot := filepath.Dir(filepath.Dir(e.interp.Path()))
	if info, err := os.Stat(interpreterRoot); err == nil && info.IsDir() {
		policy.ReadOnlyMounts = append(policy.ReadOnlyMounts, sandbox.Mount{Source: interpreterRoot, Target: interpreterRoot})
	}
	if e.interp.ConfigDir() != "" {
		policy.ReadWriteMounts = append(policy.ReadWriteMounts, sandbox.Mount{Source: e.interp.ConfigDir(), Target: e.interp.ConfigDir()})
	}

	return policy
}

// Capabilities reports a security level computed from what this platform
// can actually enforce: Seatbelt on macOS cannot reliably apply
// RLIMIT_AS, so the descriptor is one point lower there than on Linux,
// per SPEC_FULL.md §9 Open Question (c).
func (e *OSSandboxedEngine) Capabilities() EngineCapabilities {
	level := 7
	if runtime.GOOS == "darwin" {
		level = 6
	}
	if runtime.GOOS == "windows" {
		level = 5
	}
	return EngineCapabilities{
		Name:          "os_sandboxed",
		Numpy:         true,
		Matplotlib:    true,
		Pandas:        true,
		MaxMemoryMB:   e.limits.MaxMemoryMB,
		MaxCPUSeconds: e.limits.MaxCPUSeconds,
		SecurityLevel: level,
	}
}

// Shutdown releases the interpreter's auto-created config directory.
func (e *OSSandboxedEngine) Shutdown() error {
	return e.interp.Close()
}
