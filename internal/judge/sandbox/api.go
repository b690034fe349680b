// Package sandbox is the public Docker-vocabulary surface (Volume,
// Container, Task) the judge pipeline drives: spec.md names these
// nouns against a real container runtime; this package realizes the
// same contract on top of the native namespace+cgroup engine in
// ./engine, because no dependency in this module's graph is a Docker
// client (see DESIGN.md).
package sandbox

import (
	"context"

	"fuzoj/internal/judge/sandbox/config"
	"fuzoj/internal/judge/sandbox/engine"
	"fuzoj/internal/judge/sandbox/observer"
)

// Service is the sandbox entrypoint the judge pipeline is built on: it
// creates Volumes and Containers and can forcibly kill everything
// belonging to one submission.
type Service struct {
	eng      engine.Engine
	profiles *config.LocalRepository
	metrics  observer.MetricsRecorder
	workRoot string
}

// NewService binds a Service to a running engine, an image/profile
// table, and the host directory under which Volumes are created.
func NewService(eng engine.Engine, profiles *config.LocalRepository, workRoot string, metrics observer.MetricsRecorder) *Service {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &Service{eng: eng, profiles: profiles, workRoot: workRoot, metrics: metrics}
}

// CreateVolume creates a fresh per-submission work directory.
func (s *Service) CreateVolume() (*Volume, error) {
	return newVolume(s.workRoot)
}

// CreateContainer groups volume under the isolation profile named by
// image ("checker-lang-gcc", "binary-runner", ...).
func (s *Service) CreateContainer(image string, volume *Volume) (*Container, error) {
	prof, err := s.profiles.GetTaskProfile(image)
	if err != nil {
		return nil, err
	}
	return &Container{
		image:   image,
		profile: prof,
		volume:  volume,
		eng:     s.eng,
		metrics: s.metrics,
	}, nil
}

// Kill terminates every Task running on behalf of submissionID, across
// every Container it touched. Best-effort: errors are swallowed by the
// engine's own KillSubmission, matching spec.md's "no internal retry,
// cleanup failures logged only" failure semantics.
func (s *Service) Kill(ctx context.Context, submissionID string) error {
	return s.eng.KillSubmission(ctx, submissionID)
}
