package pysandbox

import (
	"context"
	"time"
)

// ExecutionOptions configures a single call to Execute, per SPEC_FULL.md §3.
type ExecutionOptions struct {
	MemoryMB      uint64
	CPUSeconds    uint64
	Timeout       time.Duration
	ImportPolicy  ImportPolicyType
	NetworkAllow  []string
	EnvVars       map[string]string
	MaxThreads    uint64
}

// DefaultExecutionOptions mirrors the original defaults: 2048 MB, 30 CPU
// seconds, a 35s wall-clock timeout, no import restriction (the effective
// policy typically supplies one), and no extra environment.
func DefaultExecutionOptions() ExecutionOptions {
	return ExecutionOptions{
		MemoryMB:     2048,
		CPUSeconds:   30,
		Timeout:      35 * time.Second,
		ImportPolicy: ImportPolicyType{Kind: ImportUnrestricted},
		MaxThreads:   4,
	}
}

// ExecutionResult is the structured outcome of one execution, per
// SPEC_FULL.md §3.
type ExecutionResult struct {
	Stdout        string
	Stderr        string
	Result        interface{}
	Error         string
	OutputFiles   []string
	Workspace     string
	ExportDir     string
	ExportedFiles []ExportedFile
}

// EngineCapabilities describes what an engine can offer, per spec.md §4.8.
// The OS-sandboxed engine's SecurityLevel depends on the platform it runs
// on (SPEC_FULL.md §9 Open Question (c)); the guardrailed engine always
// reports 5.
type EngineCapabilities struct {
	Name          string
	Numpy         bool
	Matplotlib    bool
	Pandas        bool
	MaxMemoryMB   uint64
	MaxCPUSeconds uint64
	SecurityLevel int
}

// Engine is the execution strategy abstraction shared by the guardrailed
// and OS-sandboxed engines, per spec.md §4.6/§4.7 and fronted by
// SandboxManager (§4.8).
type Engine interface {
	// Validate runs a pre-execution syntax check, returning a
	// *SandboxError with ErrKindSyntaxError on failure.
	Validate(ctx context.Context, code string) error

	// Execute runs code with inputs under opts and returns the framed
	// result.
	Execute(ctx context.Context, code string, inputs map[string]interface{}, opts ExecutionOptions) (*ExecutionResult, error)

	// Capabilities describes this engine instance.
	Capabilities() EngineCapabilities

	// Shutdown releases any resources the engine holds (e.g. a config
	// directory). Safe to call more than once.
	Shutdown() error
}
