package pysandbox

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSandboxManager_noInterpreterFails(t *testing.T) {
	t.Parallel()

	opts := DefaultBuilderOptions()
	opts.PythonPath = filepath.Join(t.TempDir(), "does-not-exist")
	_, err := BuildSandboxManager(opts)
	require.Error(t, err)
	assert.Equal(t, ErrKindPythonNotFound, KindOf(err))
}

func TestBuildSandboxManager_preferOSSandboxOnSupportedPlatform(t *testing.T) {
	t.Parallel()

	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("OS-sandboxed engine only registers on linux/darwin")
	}

	path := filepath.Join(t.TempDir(), "python3")
	writeFakePython(t, path)

	opts := DefaultBuilderOptions()
	opts.PythonPath = path
	manager, err := BuildSandboxManager(opts)
	require.NoError(t, err)
	defer manager.Shutdown()

	assert.Equal(t, "os_sandboxed", manager.Capabilities()[0].Name, "the OS-sandboxed engine must be primary by default")
}

func TestBuildSandboxManager_guardrailedOnlyWhenDisabled(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "python3")
	writeFakePython(t, path)

	opts := DefaultBuilderOptions()
	opts.PythonPath = path
	opts.PreferOSSandbox = false
	manager, err := BuildSandboxManager(opts)
	require.NoError(t, err)
	defer manager.Shutdown()

	assert.Equal(t, "guardrailed", manager.Capabilities()[0].Name)
}

func TestBuildSandboxManager_customConfigDirIsReused(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "python3")
	writeFakePython(t, path)

	configDir := filepath.Join(t.TempDir(), "config")
	opts := DefaultBuilderOptions()
	opts.PythonPath = path
	opts.PreferOSSandbox = false
	opts.ConfigDir = configDir
	manager, err := BuildSandboxManager(opts)
	require.NoError(t, err)
	defer manager.Shutdown()

	assert.DirExists(t, configDir)

	require.NoError(t, manager.Shutdown())
	assert.DirExists(t, configDir, "a caller-supplied config dir must survive shutdown")
}

func TestDefaultBuilderOptions_resourceCeiling(t *testing.T) {
	t.Parallel()

	opts := DefaultBuilderOptions()
	assert.True(t, opts.PreferOSSandbox)
	assert.Equal(t, uint64(2048), opts.Limits.MaxMemoryMB)
	assert.Equal(t, uint64(30), opts.Limits.MaxCPUSeconds)
	assert.Equal(t, uint64(4), opts.Limits.MaxThreads)
}
