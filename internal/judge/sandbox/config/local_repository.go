// Package config resolves the Docker-vocabulary image names used by
// spec.md ("checker-lang-gcc", "binary-runner") into the concrete
// isolation profiles the native sandbox engine applies.
package config

import (
	"fuzoj/internal/judge/sandbox/profile"
	"fuzoj/internal/judge/sandbox/security"
	appErr "fuzoj/pkg/errors"
)

// LocalRepository is an in-memory image-name -> TaskProfile table,
// loaded once at startup from static configuration. There is no
// registry pull: "image" never names anything fetched over the
// network, only a key into this map.
type LocalRepository struct {
	profiles map[string]profile.TaskProfile
}

// NewLocalRepository builds a repository from a fixed profile list.
// Profiles are keyed by their TaskProfile.LanguageID field, which in
// this deployment holds the Docker-vocabulary image name
// ("checker-lang-gcc", "binary-runner") rather than a language id.
func NewLocalRepository(profiles []profile.TaskProfile) *LocalRepository {
	m := make(map[string]profile.TaskProfile, len(profiles))
	for _, p := range profiles {
		if p.LanguageID == "" {
			continue
		}
		m[p.LanguageID] = p
	}
	return &LocalRepository{profiles: m}
}

// GetTaskProfile returns the profile registered under image.
func (r *LocalRepository) GetTaskProfile(image string) (profile.TaskProfile, error) {
	if image == "" {
		return profile.TaskProfile{}, appErr.ValidationError("image", "required")
	}
	p, ok := r.profiles[image]
	if !ok {
		return profile.TaskProfile{}, appErr.New(appErr.NotFound).WithMessage("sandbox image not found: " + image)
	}
	return p, nil
}

// Resolve implements engine.ProfileResolver: it maps the same image
// name to the isolation settings the Linux engine applies when it
// builds the sandboxed process's namespaces/seccomp filter.
func (r *LocalRepository) Resolve(image string) (security.IsolationProfile, error) {
	p, err := r.GetTaskProfile(image)
	if err != nil {
		return security.IsolationProfile{}, err
	}
	return security.IsolationProfile{
		RootFS:         p.RootFS,
		SeccompProfile: p.SeccompProfile,
		DisableNetwork: true,
	}, nil
}
