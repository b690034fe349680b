// Package security defines sandbox isolation and security profiles.
package security

// IsolationProfile describes namespace and seccomp settings resolved
// from a Docker-vocabulary image name (e.g. "checker-lang-gcc",
// "binary-runner") down to the concrete Linux isolation the engine
// applies to the process group it spawns.
type IsolationProfile struct {
	RootFS         string
	SeccompProfile string
	DisableNetwork bool
}
