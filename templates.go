package pysandbox

// DefaultBlacklistModules is the minimum default blacklist named in
// SPEC_FULL.md §4.1: modules whose import or use would let sandboxed code
// reach outside the sandbox (spawn processes, touch raw sockets, the
// filesystem outside the workspace, or the dynamic loader).
var DefaultBlacklistModules = []string{
	"subprocess", "multiprocessing", "os", "socket", "urllib", "requests",
	"ctypes", "pty", "fcntl", "resource", "shutil", "tempfile", "commands",
	"popen2", "cgi", "cgitb", "webbrowser", "antigravity",
}

// bootstrapModules are interpreter-internal modules needed before, during,
// and after the import hook installs itself. The whitelist must
// over-approximate this set or the hook blocks the interpreter's own
// bootstrap sequence. Treated as data, not scattered string literals, per
// the "cyclic module/import bootstrap" design note.
var bootstrapModules = []string{
	"builtins", "sys", "_frozen_importlib", "_frozen_importlib_external",
	"_imp", "_io", "io", "_json", "json", "_abc", "abc", "_ast", "_codecs",
	"codecs", "_collections", "collections", "_collections_abc",
	"_functools", "functools", "_sitebuiltins", "_signal", "_stat", "stat",
	"_thread", "threading", "_warnings", "warnings", "_weakref", "weakref",
	"_locale", "encodings", "re", "_sre", "sre_compile", "sre_constants",
	"operator", "_operator", "types", "keyword", "heapq", "_heapq",
	"reprlib", "genericpath", "posixpath", "ntpath", "os.path", "errno",
	"_codecs_cn", "enum", "copyreg", "itertools", "math", "_bisect",
	"bisect", "marshal", "zipimport", "importlib", "importlib.util",
	"importlib.machinery", "importlib.abc", "importlib._bootstrap",
	"importlib._bootstrap_external",
}

// dataScienceModules is the DS whitelist from SPEC_FULL.md §4.1: analysis,
// plotting, and document-processing libraries plus their commonly
// whitelisted submodule paths.
var dataScienceModules = []string{
	"numpy", "pandas", "matplotlib", "scipy", "sklearn", "seaborn",
	"statsmodels", "plotly",
	"fitz", "pymupdf", "PIL", "openpyxl", "xlrd", "docx", "pptx",
	"matplotlib.pyplot", "matplotlib.figure", "matplotlib.axes",
	"numpy.core", "numpy.linalg", "pandas.core",
}

// documentProcessingExtras extends the data-science whitelist for the
// DocumentProcessing template.
var documentProcessingExtras = []string{"pdf", "reportlab"}

// DataScienceWhitelist returns the module set backing the DataScience and
// Enterprise templates: the data-science libraries plus bootstrap modules,
// deliberately over-approximated per SPEC_FULL.md §4.1.
func DataScienceWhitelist() []string {
	out := make([]string, 0, len(dataScienceModules)+len(bootstrapModules))
	out = append(out, dataScienceModules...)
	out = append(out, bootstrapModules...)
	return out
}

// DocumentProcessingWhitelist returns the module set for the
// DocumentProcessing template: the data-science whitelist plus
// document-format extras.
func DocumentProcessingWhitelist() []string {
	out := DataScienceWhitelist()
	return append(out, documentProcessingExtras...)
}

// YOLOTemplate returns the unrestricted template: full native execution, no
// resource hardening, intended for trusted local development only.
func YOLOTemplate() SandboxPolicy {
	return SandboxPolicy{
		Name:        "yolo",
		Description: "Unrestricted execution; no sandboxing. Trusted code only.",
		Network:     NetworkPolicy{Kind: NetworkUnrestricted},
		Filesystem:  FilesystemPolicy{Kind: FilesystemUnrestricted},
		Process:     ProcessPolicy{Kind: ProcessUnrestricted},
		Imports:     ImportPolicyType{Kind: ImportUnrestricted},
		Environment: EnvNative,
		AuditLogging: false,
		Resources: ResourceLimits{
			MaxMemoryMB: 8192, MaxCPUSeconds: 300, MaxTimeoutSecond: 600, MaxThreads: 16,
		},
	}
}

// BalancedTemplate returns the default template: workspace isolation, a
// blocked network, and the default import blacklist.
func BalancedTemplate() SandboxPolicy {
	return SandboxPolicy{
		Name:        "balanced",
		Description: "Default profile: workspace-isolated, blocked network, default import blacklist.",
		Network:     NetworkPolicy{Kind: NetworkBlocked},
		Filesystem:  FilesystemPolicy{Kind: FilesystemReadAnyWriteWorkspace},
		Process:     ProcessPolicy{Kind: ProcessBlocked},
		Imports:     NewBlacklistPolicy(DefaultBlacklistModules...),
		Environment: EnvWorkspaceIsolated,
		AuditLogging: false,
		Resources: ResourceLimits{
			MaxMemoryMB: 2048, MaxCPUSeconds: 30, MaxTimeoutSecond: 60, MaxThreads: 4,
		},
	}
}

// DataScienceTemplate returns a workspace-isolated template admitting only
// the data-science whitelist, with audit logging enabled.
func DataScienceTemplate() SandboxPolicy {
	return SandboxPolicy{
		Name:        "data_science",
		Description: "Workspace-isolated, data-science import whitelist, audit logging on.",
		Network:     NetworkPolicy{Kind: NetworkBlocked},
		Filesystem:  FilesystemPolicy{Kind: FilesystemReadAnyWriteWorkspace},
		Process:     ProcessPolicy{Kind: ProcessBlocked},
		Imports:     NewWhitelistPolicy(DataScienceWhitelist()...),
		Environment: EnvWorkspaceIsolated,
		AuditLogging: true,
		Resources: ResourceLimits{
			MaxMemoryMB: 4096, MaxCPUSeconds: 60, MaxTimeoutSecond: 120, MaxThreads: 8,
		},
	}
}

// DocumentProcessingTemplate returns a workspace-only template (no reads
// outside the workspace at all) admitting the data-science whitelist plus
// document-format libraries.
func DocumentProcessingTemplate() SandboxPolicy {
	return SandboxPolicy{
		Name:        "document_processing",
		Description: "Workspace-only filesystem access, document-processing import whitelist.",
		Network:     NetworkPolicy{Kind: NetworkBlocked},
		Filesystem:  FilesystemPolicy{Kind: FilesystemWorkspaceOnly},
		Process:     ProcessPolicy{Kind: ProcessBlocked},
		Imports:     NewWhitelistPolicy(DocumentProcessingWhitelist()...),
		Environment: EnvWorkspaceIsolated,
		AuditLogging: true,
		Resources: ResourceLimits{
			MaxMemoryMB: 2048, MaxCPUSeconds: 30, MaxTimeoutSecond: 60, MaxThreads: 4,
		},
	}
}

// EnterpriseTemplate returns the most restrictive built-in template: a
// platform-sandboxed, workspace-only, data-science-whitelisted profile with
// the tightest resource caps, intended as a starting point for the
// enterprise overlay rather than a final policy.
func EnterpriseTemplate() SandboxPolicy {
	return SandboxPolicy{
		Name:        "enterprise",
		Description: "Platform-sandboxed, workspace-only, data-science whitelist, audit logging on.",
		Network:     NetworkPolicy{Kind: NetworkBlocked},
		Filesystem:  FilesystemPolicy{Kind: FilesystemWorkspaceOnly},
		Process:     ProcessPolicy{Kind: ProcessBlocked},
		Imports:     NewWhitelistPolicy(DataScienceWhitelist()...),
		Environment: EnvPlatformSandboxed,
		AuditLogging: true,
		Resources: ResourceLimits{
			MaxMemoryMB: 1024, MaxCPUSeconds: 15, MaxTimeoutSecond: 30, MaxThreads: 2,
		},
	}
}
