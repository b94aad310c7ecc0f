// Package version carries build metadata injected with -ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/distcache/internal/version.Version=v0.1.0"
package version

import "fmt"

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String renders the version line printed by --version.
func String() string {
	if GitCommit == "unknown" {
		return fmt.Sprintf("distcache %s", Version)
	}
	return fmt.Sprintf("distcache %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
