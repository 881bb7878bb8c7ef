package pysandbox

import (
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// PolicyManager resolves a named or custom SandboxPolicy through an optional
// enterprise overlay, producing the effective policy an engine runs with,
// per SPEC_FULL.md §4.3 (C3). Template names are matched case-insensitively
// against the registry built from the five built-in templates, plus
// whatever custom templates a caller has registered.
type PolicyManager struct {
	mu         sync.RWMutex
	templates  map[string]SandboxPolicy
	enterprise *EnterprisePolicy
}

// NewPolicyManager returns a PolicyManager pre-populated with the five
// built-in templates (yolo, balanced, data_science, document_processing,
// enterprise) and no enterprise overlay.
func NewPolicyManager() *PolicyManager {
	pm := &PolicyManager{templates: make(map[string]SandboxPolicy)}
	pm.RegisterTemplate(YOLOTemplate())
	pm.RegisterTemplate(BalancedTemplate())
	pm.RegisterTemplate(DataScienceTemplate())
	pm.RegisterTemplate(DocumentProcessingTemplate())
	pm.RegisterTemplate(EnterpriseTemplate())
	return pm
}

// RegisterTemplate adds or replaces a template keyed by its lowercased
// Name. Registering a template under a name that collides with a built-in
// shadows the built-in for future Resolve calls.
func (pm *PolicyManager) RegisterTemplate(policy SandboxPolicy) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.templates[strings.ToLower(policy.Name)] = policy
}

// Template returns a copy of the named template, or false if no template by
// that name (case-insensitive) is registered.
func (pm *PolicyManager) Template(name string) (SandboxPolicy, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	t, ok := pm.templates[strings.ToLower(name)]
	if !ok {
		return SandboxPolicy{}, false
	}
	return t.Clone(), true
}

// SetEnterprisePolicy installs (or, with nil, clears) the overlay every
// subsequent Resolve call applies.
func (pm *PolicyManager) SetEnterprisePolicy(overlay *EnterprisePolicy) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enterprise = overlay
}

// LoadEnterprisePolicyFile reads a YAML-encoded EnterprisePolicy from path
// and installs it as the active overlay.
func (pm *PolicyManager) LoadEnterprisePolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return wrapErr(ErrKindIoError, "read enterprise policy file", err)
	}
	var overlay EnterprisePolicy
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return wrapErr(ErrKindInternalError, "parse enterprise policy file", err)
	}
	pm.SetEnterprisePolicy(&overlay)
	return nil
}

// Resolve looks up name in the template registry, then runs the result
// through the active enterprise overlay (if any), returning the effective
// policy an engine should execute with.
func (pm *PolicyManager) Resolve(name string) (SandboxPolicy, error) {
	tmpl, ok := pm.Template(name)
	if !ok {
		return SandboxPolicy{}, newErr(ErrKindInternalError, "unknown sandbox template: "+name)
	}
	return pm.ResolvePolicy(tmpl)
}

// ResolvePolicy runs a caller-supplied SandboxPolicy through the active
// enterprise overlay (if any), returning the effective policy. Use this
// instead of Resolve when the caller has assembled a custom policy from
// primitives rather than starting from a named template.
func (pm *PolicyManager) ResolvePolicy(policy SandboxPolicy) (SandboxPolicy, error) {
	pm.mu.RLock()
	overlay := pm.enterprise
	pm.mu.RUnlock()

	if overlay == nil {
		return policy.Clone(), nil
	}
	return overlay.Apply(policy)
}

// ExecutionOptionsFromPolicy translates an effective SandboxPolicy into the
// ExecutionOptions an Engine consumes: the import policy carries over
// directly, NetworkAllow is populated only for NetworkAllowList (Blocked
// and LocalhostOnly are enforced by the engine/launcher itself, not by the
// host-pattern allow list), and the timeout comes from
// Resources.MaxTimeoutSecond, falling back to DefaultExecutionOptions'
// timeout when unset.
func ExecutionOptionsFromPolicy(policy SandboxPolicy) ExecutionOptions {
	opts := ExecutionOptions{
		MemoryMB:     policy.Resources.MaxMemoryMB,
		CPUSeconds:   policy.Resources.MaxCPUSeconds,
		ImportPolicy: policy.Imports,
		MaxThreads:   policy.Resources.MaxThreads,
	}
	if policy.Network.Kind == NetworkAllowList {
		opts.NetworkAllow = append([]string(nil), policy.Network.HostPatterns...)
	}
	if policy.Resources.MaxTimeoutSecond > 0 {
		opts.Timeout = time.Duration(policy.Resources.MaxTimeoutSecond) * time.Second
	} else {
		opts.Timeout = DefaultExecutionOptions().Timeout
	}
	return opts
}

// TemplateNames returns the registered template names, for diagnostics and
// CLI help text.
func (pm *PolicyManager) TemplateNames() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	names := make([]string, 0, len(pm.templates))
	for name := range pm.templates {
		names = append(names, name)
	}
	return names
}
