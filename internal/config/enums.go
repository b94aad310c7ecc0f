package config

import "git.home.luguber.info/inful/distcache/internal/foundation/normalization"

// RuntimeType selects how the isolated build environment is provisioned.
type RuntimeType string

const (
	RuntimePodman RuntimeType = "podman"
	RuntimeDocker RuntimeType = "docker"
	RuntimeLocal  RuntimeType = "local"
)

var runtimeNormalizer = normalization.New("environment runtime", map[string]RuntimeType{
	"podman": RuntimePodman,
	"docker": RuntimeDocker,
	"local":  RuntimeLocal,
}, "")

// NormalizeRuntime returns the typed runtime or empty string for unknown input.
func NormalizeRuntime(raw string) RuntimeType {
	return runtimeNormalizer.Normalize(raw)
}

// IsContainer reports whether the runtime drives a container engine CLI.
func (r RuntimeType) IsContainer() bool {
	return r == RuntimePodman || r == RuntimeDocker
}

// HandoffBackend selects the store used to pass the archive between stages.
type HandoffBackend string

const (
	HandoffFilesystem HandoffBackend = "filesystem"
	HandoffNATS       HandoffBackend = "nats"
)

var handoffNormalizer = normalization.New("handoff backend", map[string]HandoffBackend{
	"filesystem": HandoffFilesystem,
	"fs":         HandoffFilesystem,
	"nats":       HandoffNATS,
}, "")

// NormalizeHandoffBackend returns the typed backend or empty string for unknown input.
func NormalizeHandoffBackend(raw string) HandoffBackend {
	return handoffNormalizer.Normalize(raw)
}
