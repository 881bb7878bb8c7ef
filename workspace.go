package pysandbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Workspace is a scoped, uniquely identified execution directory with
// input/ and output/ subdirectories, per SPEC_FULL.md §4.5. Create one with
// NewWorkspace and always defer a call to Close (or Retain to opt out of
// cleanup).
type Workspace struct {
	ID        string
	Path      string
	InputDir  string
	OutputDir string

	retained bool
	audit    bool
}

// NewWorkspace creates base/<uuid>/ with input/ and output/ subdirectories.
// The uuid is generated by github.com/google/uuid, guaranteeing two
// concurrently created workspaces never collide.
func NewWorkspace(base string, audit bool) (*Workspace, error) {
	if base == "" {
		return nil, newErr(ErrKindInternalError, "workspace base directory must not be empty")
	}
	id := uuid.NewString()
	path := filepath.Join(base, id)
	inputDir := filepath.Join(path, "input")
	outputDir := filepath.Join(path, "output")

	for _, dir := range []string{path, inputDir, outputDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, wrapErr(ErrKindIoError, fmt.Sprintf("create workspace directory %s", dir), err)
		}
	}

	ws := &Workspace{ID: id, Path: path, InputDir: inputDir, OutputDir: outputDir, audit: audit}
	auditEvent(audit, "workspace created", zap.String("workspace_id", id), zap.String("path", path))
	return ws, nil
}

// CopyInput copies a host file into the workspace's input/ directory under
// name.
func (w *Workspace) CopyInput(src, name string) error {
	dst := filepath.Join(w.InputDir, name)
	if err := copyFile(src, dst); err != nil {
		return wrapErr(ErrKindIoError, fmt.Sprintf("copy input %s", name), err)
	}
	return nil
}

// CopyOutput copies a workspace output file to a host destination. A
// missing source file is a warning, not an error, matching the original
// implementation's tolerance of code that never wrote its declared outputs.
func (w *Workspace) CopyOutput(name, dest string) error {
	src := filepath.Join(w.OutputDir, name)
	if _, err := os.Stat(src); err != nil {
		auditEvent(w.audit, "workspace output missing", zap.String("workspace_id", w.ID), zap.String("name", name))
		return nil
	}
	if err := copyFile(src, dest); err != nil {
		return wrapErr(ErrKindIoError, fmt.Sprintf("copy output %s", name), err)
	}
	return nil
}

// ListOutputs enumerates the top-level regular files in output/.
func (w *Workspace) ListOutputs() ([]string, error) {
	entries, err := os.ReadDir(w.OutputDir)
	if err != nil {
		return nil, wrapErr(ErrKindIoError, "list workspace outputs", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Retain disables automatic cleanup on Close, for callers that want to
// inspect the workspace after the call returns.
func (w *Workspace) Retain() {
	w.retained = true
}

// Close recursively removes the workspace directory unless it has been
// retained. Errors removing the directory are logged as warnings and never
// returned, per the "workspace teardown errors are never surfaced" rule in
// SPEC_FULL.md §7.
func (w *Workspace) Close() error {
	if w == nil || w.retained {
		return nil
	}
	if err := os.RemoveAll(w.Path); err != nil {
		log().Warn("workspace cleanup failed", zap.String("workspace_id", w.ID), zap.Error(err))
		return nil
	}
	auditEvent(w.audit, "workspace removed", zap.String("workspace_id", w.ID))
	return nil
}

// ExportedFile describes one file copied into an export directory.
type ExportedFile struct {
	Name      string
	Path      string
	SizeBytes int64
}

const (
	maxExportFiles     = 32
	maxExportTotalSize = 200 * 1024 * 1024
)

// Export copies files from the workspace's output/ directory into
// exportBase/<workspace-id>/, skipping symlinks and non-regular entries,
// and stopping before exceeding maxExportFiles files or maxExportTotalSize
// cumulative bytes, per SPEC_FULL.md §4.5 and §8 invariant 8.
func (w *Workspace) Export(exportBase string) (string, []ExportedFile, error) {
	if exportBase == "" {
		return "", nil, nil
	}

	exportDir := filepath.Join(exportBase, w.ID)
	if err := os.MkdirAll(exportDir, 0o700); err != nil {
		return "", nil, wrapErr(ErrKindIoError, "create export directory", err)
	}

	entries, err := os.ReadDir(w.OutputDir)
	if err != nil {
		return "", nil, wrapErr(ErrKindIoError, "read workspace output directory", err)
	}

	var exported []ExportedFile
	var totalBytes int64
	for _, entry := range entries {
		if len(exported) >= maxExportFiles {
			auditEvent(w.audit, "export file cap reached", zap.String("workspace_id", w.ID), zap.Int("cap", maxExportFiles))
			break
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
			continue
		}
		if totalBytes+info.Size() > maxExportTotalSize {
			auditEvent(w.audit, "export size cap reached", zap.String("workspace_id", w.ID), zap.Int64("cap_bytes", maxExportTotalSize))
			break
		}

		src := filepath.Join(w.OutputDir, entry.Name())
		dst := filepath.Join(exportDir, entry.Name())
		if err := copyFile(src, dst); err != nil {
			return "", nil, wrapErr(ErrKindIoError, fmt.Sprintf("export %s", entry.Name()), err)
		}

		totalBytes += info.Size()
		exported = append(exported, ExportedFile{Name: entry.Name(), Path: dst, SizeBytes: info.Size()})
	}

	return exportDir, exported, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// DefaultWorkspaceBase returns the platform temp directory under a stable
// subfolder, the default base a builder uses when the caller does not
// specify one.
func DefaultWorkspaceBase() string {
	return filepath.Join(os.TempDir(), "pysandbox-workspaces")
}
