package pysandbox

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSSandboxedEngine_NewDefaultsWorkspaceBase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "python3")
	writeFakePython(t, path)
	interp, err := newInterpreter(path, "")
	require.NoError(t, err)
	defer interp.Close()

	e := NewOSSandboxedEngine(interp, ResourceLimits{}, "", "", false)
	assert.Equal(t, DefaultWorkspaceBase(), e.workspaceBase)
}

func TestOSSandboxedEngine_buildSandboxPolicy_mountsWorkspaceReadWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bin", "python3")
	writeFakePython(t, path)
	interp, err := newInterpreter(path, "")
	require.NoError(t, err)
	defer interp.Close()

	e := NewOSSandboxedEngine(interp, ResourceLimits{}, t.TempDir(), "", false)
	ws, err := NewWorkspace(t.TempDir(), false)
	require.NoError(t, err)
	defer ws.Close()

	policy := e.buildSandboxPolicy(ws)
	assert.Equal(t, ws.Path, policy.WorkDir)

	found := false
	for _, m := range policy.ReadWriteMounts {
		if m.Source == ws.Path && m.Target == ws.Path {
			found = true
		}
	}
	assert.True(t, found, "the workspace must be mounted read-write")
}

func TestOSSandboxedEngine_buildSandboxPolicy_mountsInterpreterRootReadOnly(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "bin", "python3")
	writeFakePython(t, path)
	interp, err := newInterpreter(path, "")
	require.NoError(t, err)
	defer interp.Close()

	e := NewOSSandboxedEngine(interp, ResourceLimits{}, t.TempDir(), "", false)
	ws, err := NewWorkspace(t.TempDir(), false)
	require.NoError(t, err)
	defer ws.Close()

	policy := e.buildSandboxPolicy(ws)

	found := false
	for _, m := range policy.ReadOnlyMounts {
		if m.Source == root {
			found = true
		}
	}
	assert.True(t, found, "the interpreter's install prefix must be mounted read-only")
}

func TestOSSandboxedEngine_Capabilities_platformSecurityLevel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "python3")
	writeFakePython(t, path)
	interp, err := newInterpreter(path, "")
	require.NoError(t, err)
	defer interp.Close()

	e := NewOSSandboxedEngine(interp, ResourceLimits{MaxMemoryMB: 1024}, "", "", false)
	caps := e.Capabilities()
	assert.Equal(t, "os_sandboxed", caps.Name)

	switch runtime.GOOS {
	case "linux":
		assert.Equal(t, 7, caps.SecurityLevel)
	case "darwin":
		assert.Equal(t, 6, caps.SecurityLevel)
	case "windows":
		assert.Equal(t, 5, caps.SecurityLevel)
	}
}

func requireSandboxLauncher(t *testing.T) {
	t.Helper()
	switch runtime.GOOS {
	case "linux":
		if _, err := exec.LookPath("bwrap"); err != nil {
			t.Skip("bwrap not available on PATH")
		}
	case "darwin":
		if _, err := exec.LookPath("sandbox-exec"); err != nil {
			t.Skip("sandbox-exec not available on PATH")
		}
	default:
		t.Skip("no platform sandbox launcher on this OS")
	}
}

func TestOSSandboxedEngine_Execute_roundTrip(t *testing.T) {
	t.Parallel()

	requireSandboxLauncher(t)
	pythonPath := requireSystemPython(t)

	interp, err := newInterpreter(pythonPath, "")
	require.NoError(t, err)
	defer interp.Close()

	engine := NewOSSandboxedEngine(interp, ResourceLimits{MaxMemoryMB: 512, MaxCPUSeconds: 5, MaxThreads: 1}, t.TempDir(), "", false)
	opts := ExecutionOptions{ImportPolicy: ImportPolicyType{Kind: ImportUnrestricted}, Timeout: 15 * time.Second}

	result, err := engine.Execute(context.Background(), "result = 3 * 7", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, float64(21), result.Result)
	assert.NotEmpty(t, result.Workspace)
}

func TestOSSandboxedEngine_Execute_exportsOutputFiles(t *testing.T) {
	t.Parallel()

	requireSandboxLauncher(t)
	pythonPath := requireSystemPython(t)

	interp, err := newInterpreter(pythonPath, "")
	require.NoError(t, err)
	defer interp.Close()

	exportBase := t.TempDir()
	engine := NewOSSandboxedEngine(interp, ResourceLimits{MaxMemoryMB: 512, MaxCPUSeconds: 5, MaxThreads: 1}, t.TempDir(), exportBase, false)
	opts := ExecutionOptions{ImportPolicy: ImportPolicyType{Kind: ImportUnrestricted}, Timeout: 15 * time.Second}

	code := "with open(OUTPUT_DIR + '/hello.txt', 'w') as f:\n    f.write('hi')\nresult = 1"
	result, err := engine.Execute(context.Background(), code, nil, opts)
	require.NoError(t, err)
	assert.NotEmpty(t, result.ExportDir)
	require.Len(t, result.ExportedFiles, 1)
	assert.Equal(t, "hello.txt", result.ExportedFiles[0].Name)
}
