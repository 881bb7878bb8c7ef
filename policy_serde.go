package pysandbox

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// The wire types below give SandboxPolicy and EnterprisePolicy a
// deterministic, human-editable YAML form, per SPEC_FULL.md §3. They exist
// only at the serialization boundary - in-memory code always works with the
// tagged-union Go types from policy.go and enterprise.go.

type networkPolicyWire struct {
	Kind         string   `yaml:"kind"`
	HostPatterns []string `yaml:"host_patterns,omitempty"`
}

type filesystemPolicyWire struct {
	Kind          string   `yaml:"kind"`
	ReadOnlyPaths []string `yaml:"read_only_paths,omitempty"`
}

type processPolicyWire struct {
	Kind        string   `yaml:"kind"`
	Executables []string `yaml:"executables,omitempty"`
}

type importPolicyWire struct {
	Kind      string   `yaml:"kind"`
	Whitelist []string `yaml:"whitelist,omitempty"`
	Blacklist []string `yaml:"blacklist,omitempty"`
}

type resourceLimitsWire struct {
	MaxMemoryMB      uint64 `yaml:"max_memory_mb"`
	MaxCPUSeconds    uint64 `yaml:"max_cpu_seconds"`
	MaxTimeoutSecond uint64 `yaml:"max_timeout_seconds"`
	MaxOutputBytes   uint64 `yaml:"max_output_bytes"`
	MaxThreads       uint64 `yaml:"max_threads"`
}

type sandboxPolicyWire struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	Network     networkPolicyWire    `yaml:"network"`
	Filesystem  filesystemPolicyWire `yaml:"filesystem"`
	Process     processPolicyWire    `yaml:"process"`
	Imports     importPolicyWire     `yaml:"imports"`
	Resources   resourceLimitsWire   `yaml:"resources"`
	Environment string               `yaml:"environment"`

	AuditLogging          bool   `yaml:"audit_logging"`
	CustomSandboxProfile  string `yaml:"custom_sandbox_profile,omitempty"`
}

func resourceLimitsToWire(r ResourceLimits) resourceLimitsWire {
	return resourceLimitsWire{
		MaxMemoryMB:      r.MaxMemoryMB,
		MaxCPUSeconds:    r.MaxCPUSeconds,
		MaxTimeoutSecond: r.MaxTimeoutSecond,
		MaxOutputBytes:   r.MaxOutputBytes,
		MaxThreads:       r.MaxThreads,
	}
}

func resourceLimitsFromWire(w resourceLimitsWire) ResourceLimits {
	return ResourceLimits{
		MaxMemoryMB:      w.MaxMemoryMB,
		MaxCPUSeconds:    w.MaxCPUSeconds,
		MaxTimeoutSecond: w.MaxTimeoutSecond,
		MaxOutputBytes:   w.MaxOutputBytes,
		MaxThreads:       w.MaxThreads,
	}
}

func setToSortedSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalYAML implements yaml.Marshaler for SandboxPolicy.
func (p SandboxPolicy) MarshalYAML() (interface{}, error) {
	w := sandboxPolicyWire{
		Name:        p.Name,
		Description: p.Description,
		Network: networkPolicyWire{
			Kind:         p.Network.Kind.String(),
			HostPatterns: p.Network.HostPatterns,
		},
		Filesystem: filesystemPolicyWire{
			Kind:          p.Filesystem.Kind.String(),
			ReadOnlyPaths: p.Filesystem.ReadOnlyPaths,
		},
		Process: processPolicyWire{
			Kind:        p.Process.Kind.String(),
			Executables: p.Process.Executables,
		},
		Imports: importPolicyWire{
			Kind:      p.Imports.Kind.String(),
			Whitelist: setToSortedSlice(p.Imports.Whitelist),
			Blacklist: setToSortedSlice(p.Imports.Blacklist),
		},
		Resources:            resourceLimitsToWire(p.Resources),
		Environment:           p.Environment.String(),
		AuditLogging:          p.AuditLogging,
		CustomSandboxProfile:  p.CustomSandboxProfile,
	}
	return w, nil
}

// UnmarshalYAML implements yaml.Unmarshaler for SandboxPolicy.
func (p *SandboxPolicy) UnmarshalYAML(value *yaml.Node) error {
	var w sandboxPolicyWire
	if err := value.Decode(&w); err != nil {
		return err
	}

	netKind, err := parseNetworkPolicyKind(w.Network.Kind)
	if err != nil {
		return err
	}
	fsKind, err := parseFilesystemPolicyKind(w.Filesystem.Kind)
	if err != nil {
		return err
	}
	procKind, err := parseProcessPolicyKind(w.Process.Kind)
	if err != nil {
		return err
	}
	impKind, err := parseImportPolicyKind(w.Imports.Kind)
	if err != nil {
		return err
	}
	env, err := parseExecutionEnvironment(w.Environment)
	if err != nil {
		return err
	}

	*p = SandboxPolicy{
		Name:        w.Name,
		Description: w.Description,
		Network:     NetworkPolicy{Kind: netKind, HostPatterns: w.Network.HostPatterns},
		Filesystem:  FilesystemPolicy{Kind: fsKind, ReadOnlyPaths: w.Filesystem.ReadOnlyPaths},
		Process:     ProcessPolicy{Kind: procKind, Executables: w.Process.Executables},
		Imports: ImportPolicyType{
			Kind:      impKind,
			Whitelist: toSet(w.Imports.Whitelist),
			Blacklist: toSet(w.Imports.Blacklist),
		},
		Resources:            resourceLimitsFromWire(w.Resources),
		Environment:           env,
		AuditLogging:          w.AuditLogging,
		CustomSandboxProfile:  w.CustomSandboxProfile,
	}
	return nil
}

func parseNetworkPolicyKind(s string) (NetworkPolicyKind, error) {
	switch s {
	case "blocked", "":
		return NetworkBlocked, nil
	case "localhost_only":
		return NetworkLocalhostOnly, nil
	case "allow_list":
		return NetworkAllowList, nil
	case "unrestricted":
		return NetworkUnrestricted, nil
	default:
		return 0, fmt.Errorf("pysandbox: unknown network policy kind %q", s)
	}
}

func parseFilesystemPolicyKind(s string) (FilesystemPolicyKind, error) {
	switch s {
	case "none", "":
		return FilesystemNone, nil
	case "read_only":
		return FilesystemReadOnly, nil
	case "workspace_only":
		return FilesystemWorkspaceOnly, nil
	case "read_any_write_workspace":
		return FilesystemReadAnyWriteWorkspace, nil
	case "unrestricted":
		return FilesystemUnrestricted, nil
	default:
		return 0, fmt.Errorf("pysandbox: unknown filesystem policy kind %q", s)
	}
}

func parseProcessPolicyKind(s string) (ProcessPolicyKind, error) {
	switch s {
	case "blocked", "":
		return ProcessBlocked, nil
	case "allow_list":
		return ProcessAllowList, nil
	case "unrestricted":
		return ProcessUnrestricted, nil
	default:
		return 0, fmt.Errorf("pysandbox: unknown process policy kind %q", s)
	}
}

func parseImportPolicyKind(s string) (ImportPolicyKind, error) {
	switch s {
	case "unrestricted", "":
		return ImportUnrestricted, nil
	case "blacklist":
		return ImportBlacklist, nil
	case "whitelist":
		return ImportWhitelist, nil
	case "whitelist_with_blacklist":
		return ImportWhitelistWithBlacklist, nil
	default:
		return 0, fmt.Errorf("pysandbox: unknown import policy kind %q", s)
	}
}

func parseExecutionEnvironment(s string) (ExecutionEnvironment, error) {
	switch s {
	case "native", "":
		return EnvNative, nil
	case "workspace_isolated":
		return EnvWorkspaceIsolated, nil
	case "platform_sandboxed":
		return EnvPlatformSandboxed, nil
	default:
		return 0, fmt.Errorf("pysandbox: unknown execution environment %q", s)
	}
}

// enterprisePolicyWire is the on-disk shape of EnterprisePolicy. Optional
// fields use pointers so "absent" and "explicit zero value" remain
// distinguishable, matching the Option<T> semantics of the data model.
type enterprisePolicyWire struct {
	MinimumSecurityLevel *int `yaml:"minimum_security_level,omitempty"`

	LockedNetwork    *networkPolicyWire    `yaml:"locked_network,omitempty"`
	LockedFilesystem *filesystemPolicyWire `yaml:"locked_filesystem,omitempty"`
	LockedProcess    *processPolicyWire    `yaml:"locked_process,omitempty"`

	RequireAuditLogging    bool `yaml:"require_audit_logging"`
	RequirePlatformSandbox bool `yaml:"require_platform_sandbox"`

	AlwaysBlockedModules []string `yaml:"always_blocked_modules,omitempty"`

	MaxAllowedResources *resourceLimitsWire `yaml:"max_allowed_resources,omitempty"`

	PolicyMessage string `yaml:"policy_message,omitempty"`
}

// MarshalYAML implements yaml.Marshaler for EnterprisePolicy.
func (e EnterprisePolicy) MarshalYAML() (interface{}, error) {
	w := enterprisePolicyWire{
		MinimumSecurityLevel:   e.MinimumSecurityLevel,
		RequireAuditLogging:    e.RequireAuditLogging,
		RequirePlatformSandbox: e.RequirePlatformSandbox,
		AlwaysBlockedModules:   e.AlwaysBlockedModules,
		PolicyMessage:          e.PolicyMessage,
	}
	if e.LockedNetwork != nil {
		w.LockedNetwork = &networkPolicyWire{Kind: e.LockedNetwork.Kind.String(), HostPatterns: e.LockedNetwork.HostPatterns}
	}
	if e.LockedFilesystem != nil {
		w.LockedFilesystem = &filesystemPolicyWire{Kind: e.LockedFilesystem.Kind.String(), ReadOnlyPaths: e.LockedFilesystem.ReadOnlyPaths}
	}
	if e.LockedProcess != nil {
		w.LockedProcess = &processPolicyWire{Kind: e.LockedProcess.Kind.String(), Executables: e.LockedProcess.Executables}
	}
	if e.MaxAllowedResources != nil {
		rl := resourceLimitsToWire(*e.MaxAllowedResources)
		w.MaxAllowedResources = &rl
	}
	return w, nil
}

// UnmarshalYAML implements yaml.Unmarshaler for EnterprisePolicy.
func (e *EnterprisePolicy) UnmarshalYAML(value *yaml.Node) error {
	var w enterprisePolicyWire
	if err := value.Decode(&w); err != nil {
		return err
	}

	out := EnterprisePolicy{
		MinimumSecurityLevel:   w.MinimumSecurityLevel,
		RequireAuditLogging:    w.RequireAuditLogging,
		RequirePlatformSandbox: w.RequirePlatformSandbox,
		AlwaysBlockedModules:   w.AlwaysBlockedModules,
		PolicyMessage:          w.PolicyMessage,
	}
	if w.LockedNetwork != nil {
		kind, err := parseNetworkPolicyKind(w.LockedNetwork.Kind)
		if err != nil {
			return err
		}
		out.LockedNetwork = &NetworkPolicy{Kind: kind, HostPatterns: w.LockedNetwork.HostPatterns}
	}
	if w.LockedFilesystem != nil {
		kind, err := parseFilesystemPolicyKind(w.LockedFilesystem.Kind)
		if err != nil {
			return err
		}
		out.LockedFilesystem = &FilesystemPolicy{Kind: kind, ReadOnlyPaths: w.LockedFilesystem.ReadOnlyPaths}
	}
	if w.LockedProcess != nil {
		kind, err := parseProcessPolicyKind(w.LockedProcess.Kind)
		if err != nil {
			return err
		}
		out.LockedProcess = &ProcessPolicy{Kind: kind, Executables: w.LockedProcess.Executables}
	}
	if w.MaxAllowedResources != nil {
		rl := resourceLimitsFromWire(*w.MaxAllowedResources)
		out.MaxAllowedResources = &rl
	}

	*e = out
	return nil
}
