package sandbox

import (
	"path/filepath"

	"fuzoj/internal/judge/sandbox/spec"
)

// Task is one exec inside a Container: spec.md's "Task (run(...))".
// A Task never needs its own long-lived isolation scope; it reuses
// its Container's cgroup and bind-mounted volume.
type Task struct {
	// ID distinguishes this task's cgroup among others run inside the
	// same submission (e.g. "compile", or a testcase id).
	ID string

	Cmd []string
	Env []string

	// StdinPath, StdoutPath, StderrPath are paths relative to the
	// Container's volume root, or empty to skip that stream.
	StdinPath  string
	StdoutPath string
	StderrPath string

	Limits spec.ResourceLimit
}

// TaskResult mirrors spec.md's TaskResult{exitCode, stdout, stderr,
// timeMS, memoryKB, TLE, MLE}.
type TaskResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimeMS   int64
	MemoryKB int64
	TLE      bool
	MLE      bool
}

func resolveInVolume(root, rel string) string {
	if rel == "" {
		return ""
	}
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(root, rel)
}
