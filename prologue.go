package pysandbox

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// buildPrologue renders the complete Python program handed to the
// interpreter's `-c` argument: bootstrap imports, the import hook, the
// optional read-only open override, the optional network allowlist hook,
// input injection, the user's code wrapped for output capture, and the
// sentinel-delimited JSON framing. Deterministic in (imports, network
// patterns, inputs, userCode, inWorkspace) per SPEC_FULL.md §4.4.
func buildPrologue(imports ImportPolicyType, networkPatterns []string, inputsJSON string, userCode string, inWorkspace bool) (string, error) {
	var b strings.Builder

	b.WriteString(bootstrapImportsSnippet())
	b.WriteString(importHookSnippet(imports))

	if imports.Kind == ImportBlacklist {
		b.WriteString(readOnlyOpenSnippet())
	}

	if len(networkPatterns) > 0 {
		b.WriteString(networkHookSnippet(networkPatterns))
	}

	inputSnippet, err := inputInjectionSnippet(inputsJSON, inWorkspace)
	if err != nil {
		return "", err
	}
	b.WriteString(inputSnippet)

	b.WriteString(captureAndFrameSnippet(userCode, inWorkspace))

	return b.String(), nil
}

// bootstrapImportsSnippet is step 1: modules the prologue itself needs,
// imported before the hook exists so they can never be blocked by it.
func bootstrapImportsSnippet() string {
	return `import builtins as _bootstrap_builtins
import sys as _bootstrap_sys
import json as _bootstrap_json
import re as _bootstrap_re
import io as _bootstrap_io
import base64 as _bootstrap_base64

`
}

// importHookSnippet is step 2: installs a wrapper around __import__ that
// enforces the configured import policy. Relative imports (level > 0)
// always pass through unconditionally, since they occur inside a package
// whose root has already been admitted.
func importHookSnippet(imports ImportPolicyType) string {
	var rule string
	switch imports.Kind {
	case ImportUnrestricted:
		rule = "    return True"
	case ImportBlacklist:
		rule = fmt.Sprintf("    return _root not in %s", pySetLiteral(imports.Blacklist)) +
			"  # reject if root is blacklisted"
	case ImportWhitelist:
		rule = fmt.Sprintf("    return _root == 'builtins' or _root in %s", pySetLiteral(imports.Whitelist))
	case ImportWhitelistWithBlacklist:
		rule = fmt.Sprintf(
			"    if _root in %s:\n        return False\n    return _root == 'builtins' or _root in %s",
			pySetLiteral(imports.Blacklist), pySetLiteral(imports.Whitelist),
		)
	default:
		rule = "    return False"
	}

	return fmt.Sprintf(`_original_import = _bootstrap_builtins.__import__


def _import_is_allowed(_root):
%s


def _guarded_import(name, globals=None, locals=None, fromlist=(), level=0):
    if level > 0:
        return _original_import(name, globals, locals, fromlist, level)
    _root = name.split('.')[0]
    if not _import_is_allowed(_root):
        raise ImportError("import of '" + _root + "' is not allowed by the sandbox policy")
    return _original_import(name, globals, locals, fromlist, level)


_bootstrap_builtins.__import__ = _guarded_import

`, rule)
}

// readOnlyOpenSnippet is step 3, emitted only in blacklist mode per
// SPEC_FULL.md §4.4: any open() mode containing a write/append/exclusive
// character is rejected. Whitelist and combined modes intentionally omit
// this override - under those policies the whitelist already determines
// what modules (including `os`/`shutil`) are reachable at all.
func readOnlyOpenSnippet() string {
	return `_original_open = _bootstrap_builtins.open


def _guarded_open(file, mode='r', *args, **kwargs):
    if any(ch in mode for ch in ('w', 'a', 'x', '+')):
        raise PermissionError("write access is not allowed by the sandbox policy: " + repr(file))
    return _original_open(file, mode, *args, **kwargs)


_bootstrap_builtins.open = _guarded_open

`
}

// networkHookSnippet is step 4: monkey-patches socket.getaddrinfo,
// socket.create_connection, and socket.socket.connect to consult a host
// allowlist before permitting a connection.
func networkHookSnippet(patterns []string) string {
	return fmt.Sprintf(`_bootstrap_socket = _original_import('socket')

_allowed_host_patterns = %s


def _normalize_host(host):
    host = (host or '').strip().lower()
    while host.endswith('.'):
        host = host[:-1]
    return host


def _host_is_allowed(host):
    host = _normalize_host(host)
    for _pattern in _allowed_host_patterns:
        _pattern = _normalize_host(_pattern)
        if _pattern == '*':
            return True
        if _pattern.startswith('*.'):
            _base = _pattern[2:]
            if host == _base or host.endswith('.' + _base):
                return True
        elif host == _pattern:
            return True
    return False


def _deny_host(host):
    raise PermissionError("network access to '" + str(host) + "' is not allowed by the sandbox policy")


_original_getaddrinfo = _bootstrap_socket.getaddrinfo


def _guarded_getaddrinfo(host, *args, **kwargs):
    if not _host_is_allowed(host):
        _deny_host(host)
    return _original_getaddrinfo(host, *args, **kwargs)


_bootstrap_socket.getaddrinfo = _guarded_getaddrinfo

_original_create_connection = _bootstrap_socket.create_connection


def _guarded_create_connection(address, *args, **kwargs):
    host = address[0] if isinstance(address, tuple) else address
    if not _host_is_allowed(host):
        _deny_host(host)
    return _original_create_connection(address, *args, **kwargs)


_bootstrap_socket.create_connection = _guarded_create_connection

_original_socket_connect = _bootstrap_socket.socket.connect


def _guarded_socket_connect(self, address, *args, **kwargs):
    host = address[0] if isinstance(address, tuple) else address
    if not _host_is_allowed(host):
        _deny_host(host)
    return _original_socket_connect(self, address, *args, **kwargs)


_bootstrap_socket.socket.connect = _guarded_socket_connect

`, pyListLiteral(patterns))
}

// inputInjectionSnippet is step 5: decodes the JSON-encoded inputs blob
// into a Python variable named `inputs`, plus the workspace path bindings
// when the execution runs inside a workspace.
func inputInjectionSnippet(inputsJSON string, inWorkspace bool) (string, error) {
	if inputsJSON == "" {
		inputsJSON = "{}"
	}
	var probe interface{}
	if err := json.Unmarshal([]byte(inputsJSON), &probe); err != nil {
		return "", wrapErr(ErrKindJsonError, "inputs is not valid JSON", err)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("inputs = _bootstrap_json.loads(%s)\n", pyStringLiteral(inputsJSON)))
	if inWorkspace {
		b.WriteString("_bootstrap_os = _original_import('os')\n")
		b.WriteString("WORKSPACE = _bootstrap_os.environ.get('SANDBOX_WORKSPACE', '')\n")
		b.WriteString("INPUT_DIR = _bootstrap_os.path.join(WORKSPACE, 'input') if WORKSPACE else ''\n")
		b.WriteString("OUTPUT_DIR = _bootstrap_os.path.join(WORKSPACE, 'output') if WORKSPACE else ''\n")
	}
	b.WriteString("\n")
	return b.String(), nil
}

// captureAndFrameSnippet is steps 6-7: redirects stdout/stderr into
// in-memory buffers around the (indented) user code, captures `result` or
// the exception, restores the original streams, and prints the
// sentinel-delimited JSON frame.
func captureAndFrameSnippet(userCode string, inWorkspace bool) string {
	indented := indentPythonBlock(userCode)

	workspaceClause := ""
	if inWorkspace {
		workspaceClause = `_output['workspace'] = WORKSPACE
try:
    _output['output_files'] = _bootstrap_os.listdir(OUTPUT_DIR)
except OSError:
    pass
`
	}

	return fmt.Sprintf(`_stdout_capture = _bootstrap_io.StringIO()
_stderr_capture = _bootstrap_io.StringIO()
_original_stdout = _bootstrap_sys.stdout
_original_stderr = _bootstrap_sys.stderr
_bootstrap_sys.stdout = _stdout_capture
_bootstrap_sys.stderr = _stderr_capture

_sandbox_result = None
_sandbox_error = ''

try:
%s
    if 'result' in dir():
        _sandbox_result = result
except Exception as _sandbox_exc:
    _sandbox_error = type(_sandbox_exc).__name__ + ': ' + str(_sandbox_exc)

_bootstrap_sys.stdout = _original_stdout
_bootstrap_sys.stderr = _original_stderr


def _encode_result(value):
    if isinstance(value, (bytes, bytearray, memoryview)):
        return {
            'type': 'bytes',
            'encoding': 'base64',
            'data': _bootstrap_base64.b64encode(bytes(value)).decode('ascii'),
        }
    try:
        _bootstrap_json.dumps(value)
        return value
    except TypeError:
        return {'type': type(value).__name__, 'repr': repr(value)}


_output = {
    'stdout': _stdout_capture.getvalue(),
    'stderr': _stderr_capture.getvalue(),
}
if _sandbox_result is not None:
    _output['result'] = _encode_result(_sandbox_result)
if _sandbox_error:
    _output['error'] = _sandbox_error
%s
print('OUTPUT_JSON_START')
print(_bootstrap_json.dumps(_output))
print('OUTPUT_JSON_END')

if _sandbox_error:
    _bootstrap_sys.exit(1)
`, indented, workspaceClause)
}

// indentPythonBlock indents each line of code by one Python indentation
// level (four spaces) so it can be embedded inside a try block. Blank
// lines are left empty rather than padded, since trailing whitespace on an
// otherwise-blank line is harmless but untidy.
func indentPythonBlock(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if line == "" {
			continue
		}
		lines[i] = "    " + line
	}
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return "    pass"
	}
	return strings.Join(lines, "\n")
}

// pyStringLiteral renders s as a single-quoted Python string literal,
// escaping backslashes, single quotes, and newlines. This is the one place
// the system touches the language boundary via string formatting, per
// SPEC_FULL.md §6, and it is the only function in this file that must
// handle arbitrary (including adversarial) byte content correctly.
func pyStringLiteral(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// pyListLiteral renders a Go string slice as a Python list-of-string-literals.
func pyListLiteral(items []string) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = pyStringLiteral(item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// pySetLiteral renders a Go string set as a Python frozenset-of-literals,
// sorted so the generated prologue is deterministic for the same policy.
func pySetLiteral(set map[string]struct{}) string {
	items := setToSortedSlice(set)
	sort.Strings(items)
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = pyStringLiteral(item)
	}
	return "frozenset([" + strings.Join(parts, ", ") + "])"
}
