package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyChainKeepsAll(t *testing.T) {
	t.Parallel()
	c := NewChain()
	assert.True(t, c.Empty())
	assert.True(t, c.Match("Data/a.esp", false))
	assert.False(t, c.Skip("Data", true))
}

func TestIncludeBeforeExclude(t *testing.T) {
	t.Parallel()
	c := NewChain()
	require.NoError(t, c.Include("important.txt"))
	require.NoError(t, c.Exclude("*.txt"))

	assert.True(t, c.Match("important.txt", false))
	assert.False(t, c.Match("readme.txt", false))
}

func TestExcludeBeforeInclude(t *testing.T) {
	t.Parallel()
	c := NewChain()
	require.NoError(t, c.Exclude("*.txt"))
	require.NoError(t, c.Include("important.txt"))

	assert.False(t, c.Match("important.txt", false))
}

func TestParse(t *testing.T) {
	t.Parallel()
	c, err := Parse([]string{
		"# comment",
		"",
		"+ Data/docs/keep.txt",
		"- *.txt",
		"fomod/",
	})
	require.NoError(t, err)
	require.Len(t, c.Rules(), 3)
	assert.Equal(t, "Data/docs/keep.txt", c.Rules()[0].Pattern())
	assert.True(t, c.Rules()[0].Include)

	assert.True(t, c.Match("Data/docs/keep.txt", false))
	assert.True(t, c.Skip("readme.txt", false))
	assert.True(t, c.Skip("fomod", true))
	assert.False(t, c.Skip("Data/a.esp", false))
}

func TestMatchNormalisesBackslashes(t *testing.T) {
	t.Parallel()
	c, err := Parse([]string{`Data\scripts\source/`})
	require.NoError(t, err)
	assert.True(t, c.Skip(`Data\scripts\source`, true))
	assert.True(t, c.Skip("Data/scripts/source", true))
}
