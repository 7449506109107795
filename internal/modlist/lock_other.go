//go:build !unix

package modlist

// fileLock is a no-op where flock(2) is unavailable.
type fileLock struct{}

func lockExclusive(string) (*fileLock, error) { return &fileLock{}, nil }

func lockShared(string) (*fileLock, error) { return &fileLock{}, nil }

func (*fileLock) unlock() {}
