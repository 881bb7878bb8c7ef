package pysandbox

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// SandboxManager runs code through an ordered list of engines, trying the
// primary first and falling back to the remaining engines in order on
// failure, per spec.md §4.8. The first engine that succeeds wins; if every
// engine fails, the primary's original error is returned so callers see the
// failure mode of the engine they actually asked for.
type SandboxManager struct {
	engines []Engine
	locks   []sync.Mutex
	audit   bool
}

// NewSandboxManager builds a manager over the given engines in priority
// order. engines[0] is the primary; at least one engine is required.
func NewSandboxManager(audit bool, engines ...Engine) (*SandboxManager, error) {
	if len(engines) == 0 {
		return nil, ErrNoEngineAvailable
	}
	return &SandboxManager{
		engines: engines,
		locks:   make([]sync.Mutex, len(engines)),
		audit:   audit,
	}, nil
}

// Validate checks the code against the primary engine only; a syntax error
// is a property of the code, not of which engine eventually runs it.
func (m *SandboxManager) Validate(ctx context.Context, code string) error {
	return m.engines[0].Validate(ctx, code)
}

// Execute tries each engine in order, serializing calls to a given engine
// via its own lock so concurrent callers never share one engine's process
// group or workspace. On error from an engine other than the last, it logs
// the failure and falls through; on error from the last engine it returns
// the first (primary) engine's error, per spec.md §4.8.
func (m *SandboxManager) Execute(ctx context.Context, code string, inputs map[string]interface{}, opts ExecutionOptions) (*ExecutionResult, error) {
	var primaryErr error

	for i, engine := range m.engines {
		m.locks[i].Lock()
		result, err := engine.Execute(ctx, code, inputs, opts)
		m.locks[i].Unlock()

		if err == nil {
			return result, nil
		}

		if i == 0 {
			primaryErr = err
		}
		if i < len(m.engines)-1 {
			auditEvent(m.audit, "engine failed, falling back to next engine",
				zap.String("engine", engine.Capabilities().Name), zap.Error(err))
		}
		_ = result
	}

	return nil, primaryErr
}

// Capabilities reports every engine's descriptor in priority order, per
// spec.md §4.8, so a caller can see the fallback engines' capabilities
// (e.g. numpy/pandas availability, security level) and not just the
// primary's.
func (m *SandboxManager) Capabilities() []EngineCapabilities {
	caps := make([]EngineCapabilities, len(m.engines))
	for i, engine := range m.engines {
		caps[i] = engine.Capabilities()
	}
	return caps
}

// Shutdown releases every engine's resources, continuing past individual
// failures and returning the first one encountered.
func (m *SandboxManager) Shutdown() error {
	var first error
	for _, engine := range m.engines {
		if err := engine.Shutdown(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
