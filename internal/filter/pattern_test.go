package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternStar(t *testing.T) {
	t.Parallel()
	p, err := compilePattern("*.txt")
	require.NoError(t, err)

	assert.True(t, p.match("readme.txt", false))
	assert.True(t, p.match("docs/readme.txt", false))
	assert.False(t, p.match("readme.txt.bak", false))
	assert.False(t, p.match("readme.md", false))
}

func TestPatternIgnoresCase(t *testing.T) {
	t.Parallel()
	p, err := compilePattern("Data/*.ESP")
	require.NoError(t, err)

	assert.True(t, p.match("data/plugin.esp", false))
	assert.True(t, p.match("DATA/Plugin.Esp", false))
}

func TestPatternDoubleStar(t *testing.T) {
	t.Parallel()
	p, err := compilePattern("**/*.psd")
	require.NoError(t, err)

	assert.True(t, p.match("source.psd", false))
	assert.True(t, p.match("Data/textures/source.psd", false))
	assert.False(t, p.match("Data/textures/t.dds", false))
}

func TestPatternAnchored(t *testing.T) {
	t.Parallel()
	p, err := compilePattern("/readme.txt")
	require.NoError(t, err)

	assert.True(t, p.match("readme.txt", false))
	assert.False(t, p.match("Data/readme.txt", false))
}

func TestPatternContainingSlashIsAnchored(t *testing.T) {
	t.Parallel()
	p, err := compilePattern("Data/scripts/*.psc")
	require.NoError(t, err)

	assert.True(t, p.match("Data/scripts/a.psc", false))
	assert.False(t, p.match("other/Data/scripts/a.psc", false))
}

func TestPatternDirOnly(t *testing.T) {
	t.Parallel()
	p, err := compilePattern("fomod/")
	require.NoError(t, err)

	assert.True(t, p.match("fomod", true))
	assert.True(t, p.match("sub/fomod", true))
	assert.False(t, p.match("fomod", false))
}

func TestPatternQuestionAndClass(t *testing.T) {
	t.Parallel()
	p, err := compilePattern("file?.txt")
	require.NoError(t, err)
	assert.True(t, p.match("file1.txt", false))
	assert.False(t, p.match("file12.txt", false))
	assert.False(t, p.match("file/.txt", false))

	p, err = compilePattern("[!a]*.esp")
	require.NoError(t, err)
	assert.True(t, p.match("b.esp", false))
	assert.False(t, p.match("a.esp", false))
}

func TestPatternLiteralMetacharacters(t *testing.T) {
	t.Parallel()
	p, err := compilePattern("(optional) patch+1.esp")
	require.NoError(t, err)
	assert.True(t, p.match("(optional) patch+1.esp", false))
	assert.False(t, p.match("optional patch1.esp", false))

	p, err = compilePattern("a[b")
	require.NoError(t, err)
	assert.True(t, p.match("a[b", false))
}
