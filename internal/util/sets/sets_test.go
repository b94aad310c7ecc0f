package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := New("dist", "tree")
	s.Add("package-lock.json")
	assert.True(t, s.Has("tree"))
	assert.False(t, s.Has("merge-base"))
	assert.Equal(t, []string{"dist", "package-lock.json", "tree"}, Sorted(s))
	assert.Equal(t, []string{"merge-base", "node_modules"}, s.Missing([]string{"merge-base", "dist", "node_modules"}))
	assert.Nil(t, s.Missing([]string{"dist"}))
}
