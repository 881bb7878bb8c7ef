package pysandbox

import "fmt"

// EnterprisePolicy is an org-wide overlay applied on top of a user's
// SandboxPolicy to tighten or lock primitives, per SPEC_FULL.md §4.2.
type EnterprisePolicy struct {
	MinimumSecurityLevel *int

	LockedNetwork    *NetworkPolicy
	LockedFilesystem *FilesystemPolicy
	LockedProcess    *ProcessPolicy

	RequireAuditLogging  bool
	RequirePlatformSandbox bool

	AlwaysBlockedModules []string

	MaxAllowedResources *ResourceLimits

	PolicyMessage string
}

// Apply produces a tightened SandboxPolicy, applying each rule in the exact
// order specified (a later rule may depend on an earlier one having already
// run, e.g. forcing audit_logging before the caller inspects it). Returns a
// *SandboxError with ErrKindSecurityViolation if the minimum security level
// is not met; this is a policy-composition failure and occurs before any
// child process is ever spawned.
func (e EnterprisePolicy) Apply(user SandboxPolicy) (SandboxPolicy, error) {
	result := user.Clone()

	// Rule 1: minimum security level.
	if e.MinimumSecurityLevel != nil && result.SecurityLevel() < *e.MinimumSecurityLevel {
		msg := e.PolicyMessage
		if msg == "" {
			msg = fmt.Sprintf("policy %q has security level %d, below the enterprise minimum of %d",
				result.Name, result.SecurityLevel(), *e.MinimumSecurityLevel)
		}
		return SandboxPolicy{}, newErr(ErrKindSecurityViolation, msg)
	}

	// Rule 2: locked primitives overwrite the user's choice outright.
	if e.LockedNetwork != nil {
		result.Network = *e.LockedNetwork
		result.Network.HostPatterns = append([]string(nil), e.LockedNetwork.HostPatterns...)
	}
	if e.LockedFilesystem != nil {
		result.Filesystem = *e.LockedFilesystem
		result.Filesystem.ReadOnlyPaths = append([]string(nil), e.LockedFilesystem.ReadOnlyPaths...)
	}
	if e.LockedProcess != nil {
		result.Process = *e.LockedProcess
		result.Process.Executables = append([]string(nil), e.LockedProcess.Executables...)
	}

	// Rule 3: audit logging.
	if e.RequireAuditLogging {
		result.AuditLogging = true
	}

	// Rule 4: platform sandbox.
	if e.RequirePlatformSandbox {
		result.Environment = EnvPlatformSandboxed
	}

	// Rule 5: always-blocked modules, folded into the import policy
	// according to its current variant. A Whitelist can never override a
	// block by listing the module - it is simply removed from the
	// whitelist.
	if len(e.AlwaysBlockedModules) > 0 {
		always := toSet(e.AlwaysBlockedModules)
		switch result.Imports.Kind {
		case ImportUnrestricted:
			result.Imports = ImportPolicyType{Kind: ImportBlacklist, Blacklist: cloneSet(always)}
		case ImportBlacklist:
			if result.Imports.Blacklist == nil {
				result.Imports.Blacklist = make(map[string]struct{})
			}
			unionInto(result.Imports.Blacklist, always)
		case ImportWhitelist:
			for m := range always {
				delete(result.Imports.Whitelist, m)
			}
		case ImportWhitelistWithBlacklist:
			if result.Imports.Blacklist == nil {
				result.Imports.Blacklist = make(map[string]struct{})
			}
			unionInto(result.Imports.Blacklist, always)
			for m := range always {
				delete(result.Imports.Whitelist, m)
			}
		}
	}

	// Rule 6: clamp resource limits to the overlay's ceiling.
	if e.MaxAllowedResources != nil {
		result.Resources = result.Resources.Clamp(*e.MaxAllowedResources)
	}

	return result, nil
}
