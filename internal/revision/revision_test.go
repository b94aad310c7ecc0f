package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"3f2a9c1d0e",
		"main",
		"feature/login-form",
		"v1.2.3",
		"0123456789abcdef0123456789abcdef01234567",
	}
	for _, v := range valid {
		assert.NoError(t, ID(v).Validate(), v)
	}

	invalid := []string{
		"",
		"-rf",
		"--upload-pack=evil",
		"a..b",
		"HEAD@{1}",
		"HEAD~1",
		"a^b",
		"a:b",
		"a?b",
		"a*b",
		"a[b",
		"a\\b",
		"main.lock",
		"feature/",
		"ends.",
		"has space",
		"tab\tchar",
		"new\nline",
		"bell\a",
	}
	for _, v := range invalid {
		err := ID(v).Validate()
		require.Error(t, err, "%q should be rejected", v)
		assert.Equal(t, errors.CategoryValidation, errors.GetCategory(err))
	}
}

func TestNewPairDefaultsHeadToBase(t *testing.T) {
	p, err := NewPair("abc123", "")
	require.NoError(t, err)

	assert.Equal(t, ID("abc123"), p.Base)
	assert.Equal(t, ID("abc123"), p.Head)
	assert.False(t, p.IsMerge())
	assert.Equal(t, "sha-abc123", p.TagName(""))
}

func TestNewPairMerge(t *testing.T) {
	p, err := NewPair(" base1 ", "head2")
	require.NoError(t, err)

	assert.True(t, p.IsMerge())
	assert.Equal(t, "sha-head2", p.TagName(DefaultTagPrefix))
	assert.Equal(t, "build-head2", p.TagName("build-"))
	assert.Equal(t, "Build for head2", p.CommitMessage())
}

func TestNewPairRejectsInvalid(t *testing.T) {
	_, err := NewPair("", "")
	require.Error(t, err)

	_, err = NewPair("main", "-x")
	require.Error(t, err)
}
