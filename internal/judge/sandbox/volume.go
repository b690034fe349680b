package sandbox

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	appErr "fuzoj/pkg/errors"
)

// Volume is a per-submission work directory: spec.md's Volume
// (`create`, `remove`, `copyFiles`, `clone`) realized as a plain
// directory under the sandbox's work root, bind-mounted into every
// Container built on top of it.
type Volume struct {
	id   string
	root string
}

func newVolume(workRoot string) (*Volume, error) {
	if workRoot == "" {
		return nil, appErr.ValidationError("work_root", "required")
	}
	id := uuid.NewString()
	root := filepath.Join(workRoot, "vol-"+id)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSandboxSetupFailed, "create volume failed")
	}
	return &Volume{id: id, root: root}, nil
}

// Root returns the host path backing the volume.
func (v *Volume) Root() string { return v.root }

// Remove deletes the volume directory. Cleanup failures here are
// logged by the caller, never retried or surfaced as a judge failure.
func (v *Volume) Remove() error {
	if err := os.RemoveAll(v.root); err != nil {
		return appErr.Wrapf(err, appErr.JudgeCleanupFailed, "remove volume failed")
	}
	return nil
}

// CopyFiles stages the given host files into the volume, preserving
// each file's basename. Every destination path is guarded against
// traversal outside the volume root.
func (v *Volume) CopyFiles(paths []string) error {
	for _, p := range paths {
		dst, err := safeJoin(v.root, filepath.Base(p))
		if err != nil {
			return err
		}
		if err := copyFile(p, dst); err != nil {
			return appErr.Wrapf(err, appErr.JudgeSandboxSetupFailed, "copy file into volume failed: %s", p)
		}
	}
	return nil
}

// Clone creates a new volume under workRoot containing a full
// recursive copy of this volume's contents.
func (v *Volume) Clone(workRoot string) (*Volume, error) {
	dst, err := newVolume(workRoot)
	if err != nil {
		return nil, err
	}
	if err := copyTree(v.root, dst.root); err != nil {
		_ = dst.Remove()
		return nil, appErr.Wrapf(err, appErr.JudgeSandboxSetupFailed, "clone volume failed")
	}
	return dst, nil
}

func safeJoin(base, rel string) (string, error) {
	if rel == "" {
		return "", appErr.ValidationError("path", "required")
	}
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", appErr.New(appErr.InvalidParams).WithMessage("invalid relative path")
	}
	full := filepath.Join(base, clean)
	if !strings.HasPrefix(full, filepath.Clean(base)+string(filepath.Separator)) {
		return "", appErr.New(appErr.InvalidParams).WithMessage("path traversal detected")
	}
	return full, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target)
	})
}
