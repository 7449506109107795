package errkind_test

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/moma/internal/errkind"
)

func TestError_IsMatchesKind(t *testing.T) {
	t.Parallel()

	err := errkind.New(errkind.ErrCorrupt, "read mod list", errors.New("bad json"))
	wrapped := fmt.Errorf("list mods: %w", err)

	assert.ErrorIs(t, wrapped, errkind.ErrCorrupt)
	assert.NotErrorIs(t, wrapped, errkind.ErrIO)
	assert.Equal(t, errkind.ErrCorrupt, errkind.KindOf(wrapped))
}

func TestError_UnwrapReachesCause(t *testing.T) {
	t.Parallel()

	cause := os.ErrPermission
	err := errkind.WithPath(errkind.ErrIO, "open", "/x", cause)

	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, "open /x: permission denied", err.Error())
}

func TestError_MessageWithoutCause(t *testing.T) {
	t.Parallel()

	err := errkind.New(errkind.ErrPrivilege, "drop privileges", nil)
	assert.Equal(t, "drop privileges: privilege error", err.Error())
}

func TestIO_MissingFileIsNotFound(t *testing.T) {
	t.Parallel()

	_, statErr := os.Stat("/definitely/not/here")
	err := errkind.IO("stat", "/definitely/not/here", statErr)

	assert.ErrorIs(t, err, errkind.ErrNotFound)
	assert.NotErrorIs(t, err, errkind.ErrIO)
}

func TestKindOf_Unclassified(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errkind.KindOf(errors.New("plain")))
}
