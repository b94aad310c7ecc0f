package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })

	Version, GitCommit = "v1.2.0", "unknown"
	assert.Equal(t, "distcache v1.2.0", String())

	GitCommit, BuildTime = "abc123", "2026-01-02T03:04:05Z"
	assert.Equal(t, "distcache v1.2.0 (commit abc123, built 2026-01-02T03:04:05Z)", String())
}
