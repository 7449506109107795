package platform

import (
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyThrough writes data to a source file and copies it with copyRegular.
func copyThrough(t *testing.T, data []byte, size int64) ([]byte, string) {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "plugin.esp")
	require.NoError(t, os.WriteFile(srcPath, data, 0o644))

	src, err := os.Open(srcPath)
	require.NoError(t, err)
	defer src.Close()
	dst, err := os.Create(filepath.Join(dir, "merged.esp"))
	require.NoError(t, err)
	defer dst.Close()

	method, err := copyRegular(dst, src, size)
	require.NoError(t, err)
	require.NoError(t, dst.Close())

	got, err := os.ReadFile(dst.Name())
	require.NoError(t, err)
	return got, method
}

func TestCopyRegular(t *testing.T) {
	big := make([]byte, 3*copyBufferSize+11)
	_, err := rand.Read(big)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"small", []byte("[General]\nsLanguage=ENGLISH\n")},
		{"larger than buffer", big},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, method := copyThrough(t, tt.data, int64(len(tt.data)))
			if len(tt.data) == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.data, got)
			}
			assert.NotEmpty(t, method)
		})
	}
}

func TestCopyRegular_Buffered(t *testing.T) {
	saved := kernelCopies
	t.Cleanup(func() { kernelCopies = saved })
	kernelCopies = nil

	data := make([]byte, copyBufferSize+17)
	_, err := rand.Read(data)
	require.NoError(t, err)

	got, method := copyThrough(t, data, int64(len(data)))
	assert.Equal(t, "buffered", method)
	assert.Equal(t, data, got)
}

func TestCopyRegular_StopsOnHardError(t *testing.T) {
	saved := kernelCopies
	t.Cleanup(func() { kernelCopies = saved })
	boom := errors.New("disk on fire")
	kernelCopies = []kernelCopy{{name: "broken", run: func(*os.File, *os.File, int64) (int64, error) {
		return 0, boom
	}}}

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(srcPath, []byte("x"), 0o644))
	src, err := os.Open(srcPath)
	require.NoError(t, err)
	defer src.Close()
	dst, err := os.Create(filepath.Join(dir, "b"))
	require.NoError(t, err)
	defer dst.Close()

	method, err := copyRegular(dst, src, 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "broken", method)
}
