package testutil

import (
	"context"
	"sync"

	"fuzoj/internal/judge/sandbox/result"
	"fuzoj/internal/judge/sandbox/spec"
)

// FakeEngine is a scriptable stand-in for engine.Engine: it runs no
// subprocess and touches no cgroup, so pipeline tests can drive
// Container.Exec end to end without the native sandbox. Scripts are
// keyed by spec.RunSpec.TestID ("compile-<id>", "judge-<id>",
// "artifact-check"); a RunSpec whose TestID has no script falls back
// to Default.
type FakeEngine struct {
	mu      sync.Mutex
	scripts map[string]func(spec.RunSpec) (result.RunResult, error)
	// Default answers any RunSpec.TestID with no script registered.
	Default func(spec.RunSpec) (result.RunResult, error)
	// Calls records every RunSpec passed to Run, in order.
	Calls []spec.RunSpec
	// Killed records every submissionID passed to KillSubmission.
	Killed []string
}

// NewFakeEngine builds an empty FakeEngine; every call falls through
// to Default (zero-value success, exit code 0) until a script is set.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		scripts: make(map[string]func(spec.RunSpec) (result.RunResult, error)),
		Default: func(spec.RunSpec) (result.RunResult, error) {
			return result.RunResult{}, nil
		},
	}
}

// Script registers the result (or error) Run returns for the given
// TestID.
func (e *FakeEngine) Script(testID string, fn func(spec.RunSpec) (result.RunResult, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[testID] = fn
}

// ScriptResult is a convenience wrapper around Script for the common
// case of a fixed result and no error.
func (e *FakeEngine) ScriptResult(testID string, res result.RunResult) {
	e.Script(testID, func(spec.RunSpec) (result.RunResult, error) { return res, nil })
}

// Run implements engine.Engine.
func (e *FakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	e.mu.Lock()
	e.Calls = append(e.Calls, runSpec)
	fn, ok := e.scripts[runSpec.TestID]
	if !ok {
		fn = e.Default
	}
	e.mu.Unlock()
	return fn(runSpec)
}

// KillSubmission implements engine.Engine.
func (e *FakeEngine) KillSubmission(ctx context.Context, submissionID string) error {
	e.mu.Lock()
	e.Killed = append(e.Killed, submissionID)
	e.mu.Unlock()
	return nil
}
