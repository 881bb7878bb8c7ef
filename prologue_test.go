package pysandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrologue_deterministic(t *testing.T) {
	t.Parallel()

	imports := NewWhitelistWithBlacklistPolicy([]string{"numpy", "pandas"}, []string{"socket"})
	a, err := buildPrologue(imports, []string{"*.example.com", "github.com"}, `{"x": 1}`, "result = 1 + 1", true)
	require.NoError(t, err)
	b, err := buildPrologue(imports, []string{"*.example.com", "github.com"}, `{"x": 1}`, "result = 1 + 1", true)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same inputs must render byte-identical programs")
}

func TestBuildPrologue_invalidInputsJSON(t *testing.T) {
	t.Parallel()

	_, err := buildPrologue(ImportPolicyType{Kind: ImportUnrestricted}, nil, "not json", "pass", false)
	require.Error(t, err)
	assert.Equal(t, ErrKindJsonError, KindOf(err))
}

func TestBuildPrologue_emptyInputsDefaultsToEmptyObject(t *testing.T) {
	t.Parallel()

	program, err := buildPrologue(ImportPolicyType{Kind: ImportUnrestricted}, nil, "", "pass", false)
	require.NoError(t, err)
	assert.Contains(t, program, "inputs = _bootstrap_json.loads('{}')")
}

func TestBuildPrologue_includesSteps(t *testing.T) {
	t.Parallel()

	program, err := buildPrologue(NewBlacklistPolicy("os"), []string{"github.com"}, `{}`, "result = 1", true)
	require.NoError(t, err)

	assert.Contains(t, program, "_guarded_import", "import hook must always be present")
	assert.Contains(t, program, "_guarded_open", "blacklist mode must install the read-only open override")
	assert.Contains(t, program, "_guarded_getaddrinfo", "network patterns must install the network hook")
	assert.Contains(t, program, "WORKSPACE = _bootstrap_os.environ.get")
	assert.Contains(t, program, "OUTPUT_JSON_START")
	assert.Contains(t, program, "OUTPUT_JSON_END")
}

func TestBuildPrologue_whitelistOmitsReadOnlyOpen(t *testing.T) {
	t.Parallel()

	program, err := buildPrologue(NewWhitelistPolicy("numpy"), nil, `{}`, "pass", false)
	require.NoError(t, err)
	assert.NotContains(t, program, "_guarded_open", "whitelist mode relies on the import hook alone")
}

func TestBuildPrologue_noNetworkPatternsOmitsHook(t *testing.T) {
	t.Parallel()

	program, err := buildPrologue(ImportPolicyType{Kind: ImportUnrestricted}, nil, `{}`, "pass", false)
	require.NoError(t, err)
	assert.NotContains(t, program, "_guarded_getaddrinfo")
}

func TestBuildPrologue_notInWorkspaceOmitsWorkspaceBindings(t *testing.T) {
	t.Parallel()

	program, err := buildPrologue(ImportPolicyType{Kind: ImportUnrestricted}, nil, `{}`, "pass", false)
	require.NoError(t, err)
	assert.NotContains(t, program, "SANDBOX_WORKSPACE")
	assert.NotContains(t, program, "_output['workspace']")
}

func TestImportHookSnippet_rules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		imports ImportPolicyType
		want    string
	}{
		{"unrestricted", ImportPolicyType{Kind: ImportUnrestricted}, "return True"},
		{"blacklist", NewBlacklistPolicy("os"), "return _root not in frozenset(['os'])"},
		{"whitelist", NewWhitelistPolicy("numpy"), "return _root == 'builtins' or _root in frozenset(['numpy'])"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, importHookSnippet(tc.imports), tc.want)
		})
	}
}

func TestImportHookSnippet_whitelistWithBlacklistChecksBlacklistFirst(t *testing.T) {
	t.Parallel()

	snippet := importHookSnippet(NewWhitelistWithBlacklistPolicy([]string{"os"}, []string{"os"}))
	assert.Contains(t, snippet, "if _root in frozenset(['os']):\n        return False")
}

func TestIndentPythonBlock(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "    pass", indentPythonBlock(""))
	assert.Equal(t, "    x = 1\n\n    y = 2", indentPythonBlock("x = 1\n\ny = 2"))
}

func TestPyStringLiteral_escapesAdversarialContent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, wantContains string
	}{
		{`back\slash`, `back\\slash`},
		{`it's`, `it\'s`},
		{"line\nbreak", `line\nbreak`},
		{"carriage\rreturn", `carriage\rreturn`},
	}
	for _, c := range cases {
		got := pyStringLiteral(c.in)
		assert.True(t, strings.HasPrefix(got, "'") && strings.HasSuffix(got, "'"))
		assert.Contains(t, got, c.wantContains)
	}
}

func TestPyListLiteral(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[]", pyListLiteral(nil))
	assert.Equal(t, "['a', 'b']", pyListLiteral([]string{"a", "b"}))
}

func TestPySetLiteral_sortedRegardlessOfInsertionOrder(t *testing.T) {
	t.Parallel()

	set := map[string]struct{}{"zeta": {}, "alpha": {}, "mid": {}}
	assert.Equal(t, "frozenset(['alpha', 'mid', 'zeta'])", pySetLiteral(set))
}
