//go:build linux

package engine

import (
	"os"
	"path/filepath"
	"syscall"
	"time"

	"fuzoj/internal/judge/sandbox/spec"
)

// durationFromMs converts a millisecond limit into a time.Duration.
// A non-positive value means "no limit" and yields zero, which the
// caller treats as "don't start a wall timer".
func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// cpuTimeMs reports the user+system CPU time consumed by the finished
// process, in milliseconds, falling back to 0 when rusage isn't
// available (e.g. the process never started).
func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	user := time.Duration(usage.Utime.Sec)*time.Second + time.Duration(usage.Utime.Usec)*time.Microsecond
	sys := time.Duration(usage.Stime.Sec)*time.Second + time.Duration(usage.Stime.Usec)*time.Microsecond
	return (user + sys).Milliseconds()
}

// resolveHostPath resolves a runSpec-relative stdout/stderr path to an
// absolute host path rooted at the run's work directory. An already
// absolute path is returned unchanged.
func resolveHostPath(path string, runSpec spec.RunSpec) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(runSpec.WorkDir, path)
}

// stdoutSizeKB reports the size in KB of the file at path, or 0 if it
// cannot be read.
func stdoutSizeKB(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size() / 1024
}

// readLimitedFile reads at most maxBytes from the file at path. Missing
// files and read errors yield an empty string; the sandbox never fails
// a run because an optional output file is absent.
func readLimitedFile(path string, maxBytes int64) string {
	if path == "" || maxBytes <= 0 {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := make([]byte, maxBytes)
	n, _ := f.Read(buf)
	return string(buf[:n])
}
