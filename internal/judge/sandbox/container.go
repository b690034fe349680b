package sandbox

import (
	"context"

	"fuzoj/internal/judge/sandbox/engine"
	"fuzoj/internal/judge/sandbox/observer"
	"fuzoj/internal/judge/sandbox/profile"
	"fuzoj/internal/judge/sandbox/spec"
	appErr "fuzoj/pkg/errors"
)

// Container groups one cgroup (created lazily, per Task, by the
// engine) with the bind-mounted Volume and the isolation profile
// resolved from its image name.
type Container struct {
	image   string
	profile profile.TaskProfile
	volume  *Volume
	eng     engine.Engine
	metrics observer.MetricsRecorder
}

// Exec runs one Task inside the Container: builds the engine RunSpec
// from the Container's volume/profile and the Task's command and
// limits, executes it, and classifies the result against the
// effective limits the way spec.md's TLE/MLE rules require.
func (c *Container) Exec(ctx context.Context, submissionID string, t Task) (TaskResult, error) {
	if len(t.Cmd) == 0 {
		return TaskResult{}, appErr.ValidationError("cmd", "required")
	}
	limits := mergeLimits(c.profile.DefaultLimits, t.Limits)

	runSpec := spec.RunSpec{
		SubmissionID: submissionID,
		TestID:       t.ID,
		WorkDir:      c.volume.Root(),
		Cmd:          t.Cmd,
		Env:          t.Env,
		StdinPath:    resolveInVolume(c.volume.Root(), t.StdinPath),
		StdoutPath:   resolveInVolume(c.volume.Root(), t.StdoutPath),
		StderrPath:   resolveInVolume(c.volume.Root(), t.StderrPath),
		BindMounts: []spec.MountSpec{{
			Source: c.volume.Root(),
			Target: c.volume.Root(),
		}},
		Profile: c.image,
		Limits:  limits,
	}

	runRes, err := c.eng.Run(ctx, runSpec)
	if err != nil {
		return TaskResult{}, appErr.Wrapf(err, appErr.JudgeSandboxExecFailed, "sandbox exec failed")
	}

	tle := runRes.ExitCode == -1
	mle := runRes.OomKilled || (limits.MemoryMB > 0 && runRes.MemoryKB > limits.MemoryMB*1024)

	res := TaskResult{
		ExitCode: runRes.ExitCode,
		Stdout:   runRes.Stdout,
		Stderr:   runRes.Stderr,
		TimeMS:   runRes.TimeMs,
		MemoryKB: runRes.MemoryKB,
		TLE:      tle,
		MLE:      mle,
	}
	c.metrics.ObserveRun(ctx, c.image, verdictLabel(res), res.TimeMS, res.MemoryKB, runRes.OutputKB)
	return res, nil
}

func verdictLabel(res TaskResult) string {
	switch {
	case res.TLE:
		return "TLE"
	case res.MLE:
		return "MLE"
	case res.ExitCode != 0:
		return "RE"
	default:
		return "AC"
	}
}

func mergeLimits(base, override spec.ResourceLimit) spec.ResourceLimit {
	if override.CPUTimeMs > 0 {
		base.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		base.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		base.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		base.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		base.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		base.PIDs = override.PIDs
	}
	return base
}
