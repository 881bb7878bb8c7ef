package pysandbox

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Interpreter represents a discovered Python interpreter together with a
// config directory for library configuration (matplotlib, etc.). The
// directory is created whatever the template; the OS-sandboxed engine
// mounts it read-write, and no engine passes it to the child as
// MPLCONFIGDIR. Adapted from the teacher's
// venv-scoped Python type, generalized from "a single venv's bin/python"
// to "whatever interpreter the builder's discovery order settled on".
type Interpreter struct {
	path          string
	configDir     string
	ownsConfigDir bool
	cleanupOnce   sync.Once
}

// discoverInterpreter implements the three-tier search order from
// SPEC_FULL.md §4.10: an explicit path, a bundled path under a plugin
// root, then python3/python on the search path.
func discoverInterpreter(explicitPath, bundledRoot, configDir string) (*Interpreter, error) {
	if explicitPath != "" {
		return newInterpreter(explicitPath, configDir)
	}

	if bundledRoot != "" {
		candidate := filepath.Join(bundledRoot, "bin", "python3")
		if _, err := os.Stat(candidate); err == nil {
			return newInterpreter(candidate, configDir)
		}
		candidate = filepath.Join(bundledRoot, "bin", "python")
		if _, err := os.Stat(candidate); err == nil {
			return newInterpreter(candidate, configDir)
		}
	}

	for _, name := range []string{"python3", "python"} {
		if found, err := exec.LookPath(name); err == nil {
			return newInterpreter(found, configDir)
		}
	}

	return nil, ErrPythonNotFound
}

func newInterpreter(path, configDir string) (*Interpreter, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, wrapErr(ErrKindIoError, "resolve interpreter path", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, wrapErr(ErrKindPythonNotFound, "interpreter not found at "+abs, err)
	}

	var dir string
	var owns bool
	if configDir == "" {
		tmp, err := os.MkdirTemp("", "pysandbox_config_*")
		if err != nil {
			return nil, wrapErr(ErrKindIoError, "create interpreter config directory", err)
		}
		dir, owns = tmp, true
	} else {
		abs, err := filepath.Abs(configDir)
		if err != nil {
			return nil, wrapErr(ErrKindIoError, "resolve config directory", err)
		}
		if err := os.MkdirAll(abs, 0o700); err != nil {
			return nil, wrapErr(ErrKindIoError, "create config directory", err)
		}
		dir, owns = abs, false
	}

	return &Interpreter{path: abs, configDir: dir, ownsConfigDir: owns}, nil
}

// Path returns the resolved interpreter executable path.
func (i *Interpreter) Path() string {
	if i == nil {
		return ""
	}
	return i.path
}

// ConfigDir returns the interpreter's config directory. It is not set in
// the child's environment (for example as MPLCONFIGDIR).
func (i *Interpreter) ConfigDir() string {
	if i == nil {
		return ""
	}
	return i.configDir
}

// Close removes the auto-created config directory, if one was created. A
// caller-supplied config directory is never removed. Safe to call more
// than once.
func (i *Interpreter) Close() error {
	if i == nil || !i.ownsConfigDir {
		return nil
	}
	var err error
	i.cleanupOnce.Do(func() {
		err = os.RemoveAll(i.configDir)
	})
	return err
}
