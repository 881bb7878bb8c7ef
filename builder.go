package pysandbox

import (
	"runtime"
)

// BuilderOptions configures assembly of a SandboxManager, per spec.md §4.10.
type BuilderOptions struct {
	// PythonPath, if set, is used as the interpreter verbatim, skipping
	// the bundled-path and PATH search tiers.
	PythonPath string

	// BundledRoot, if set, is searched for bin/python3 then bin/python
	// before falling back to a PATH search.
	BundledRoot string

	// ConfigDir, if set, is reused as the interpreter's config directory
	// instead of an auto-created temporary one.
	ConfigDir string

	// PreferOSSandbox, when true (the default), registers the OS-sandboxed
	// engine as primary on platforms that support one, with the
	// guardrailed engine as its fallback. When false, only the guardrailed
	// engine is registered, for callers that would rather skip the
	// sandbox-launcher overhead than ever fall back to it. The guardrailed
	// engine is always present and is always the last resort.
	PreferOSSandbox bool

	// Limits are the engines' default resource limits for an execution
	// call. Non-zero MemoryMB and CPUSeconds in a call's ExecutionOptions
	// replace them for that call, whether larger or smaller (the
	// guardrailed engine takes MaxThreads the same way).
	Limits ResourceLimits

	// WorkspaceBase overrides the parent directory new workspaces are
	// created under, for the OS-sandboxed engine.
	WorkspaceBase string

	// ExportBase, when set, enables the OS-sandboxed engine's
	// post-execution export step.
	ExportBase string

	// AuditLogging gates audit-level log lines to Info instead of Debug
	// across every component the manager constructs.
	AuditLogging bool
}

// DefaultBuilderOptions returns zero-value-safe defaults: PATH discovery,
// the OS-sandboxed engine preferred with the guardrailed engine as its
// fallback, and a 2GiB/30s resource ceiling.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		PreferOSSandbox: true,
		Limits:          ResourceLimits{MaxMemoryMB: 2048, MaxCPUSeconds: 30, MaxThreads: 4},
	}
}

// BuildSandboxManager discovers an interpreter per the three-tier search
// order in discoverInterpreter, then assembles a SandboxManager whose
// fallback order honors PreferOSSandbox. The guardrailed engine is always
// present since it requires nothing beyond a Python interpreter; the
// OS-sandboxed engine is included, as primary, when PreferOSSandbox is set
// and GOOS is linux or darwin (Windows has none yet, per spec.md §4.7, and is skipped here rather than
// registered as an always-failing engine).
func BuildSandboxManager(opts BuilderOptions) (*SandboxManager, error) {
	interp, err := discoverInterpreter(opts.PythonPath, opts.BundledRoot, opts.ConfigDir)
	if err != nil {
		return nil, err
	}

	guardrailed := NewGuardrailedEngine(interp, opts.Limits)

	engines := []Engine{guardrailed}
	if opts.PreferOSSandbox && (runtime.GOOS == "linux" || runtime.GOOS == "darwin") {
		osSandboxed := NewOSSandboxedEngine(interp, opts.Limits, opts.WorkspaceBase, opts.ExportBase, opts.AuditLogging)
		engines = []Engine{osSandboxed, guardrailed}
	}

	manager, err := NewSandboxManager(opts.AuditLogging, engines...)
	if err != nil {
		interp.Close()
		return nil, err
	}
	return manager, nil
}
