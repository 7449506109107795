package download

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBWLimiter(t *testing.T) {
	t.Parallel()

	t.Run("burst capped to rate when rate < 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(2048)
		assert.Equal(t, 2048, lim.Burst())
	})

	t.Run("burst is 1MB when rate >= 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(8 << 20)
		assert.Equal(t, 1<<20, lim.Burst())
	})
}

func TestRateLimitedReader(t *testing.T) {
	t.Parallel()

	t.Run("passes bytes through", func(t *testing.T) {
		t.Parallel()
		data := bytes.Repeat([]byte("m"), 8192)
		rl := newRateLimitedReader(context.Background(), bytes.NewReader(data), NewBWLimiter(1<<20))

		got, err := io.ReadAll(rl)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("reads larger than burst", func(t *testing.T) {
		t.Parallel()
		data := bytes.Repeat([]byte("m"), 3000)
		rl := newRateLimitedReader(context.Background(), bytes.NewReader(data), NewBWLimiter(100_000))
		rl.limiter.SetBurst(1000)

		buf := make([]byte, len(data))
		n, err := rl.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
	})

	t.Run("slows the stream", func(t *testing.T) {
		t.Parallel()
		// 8 KB at 4 KB/s: the burst covers the first 4 KB, the rest waits ~1s.
		data := bytes.Repeat([]byte("m"), 8*1024)
		rl := newRateLimitedReader(context.Background(), bytes.NewReader(data), NewBWLimiter(4*1024))

		start := time.Now()
		got, err := io.ReadAll(rl)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Len(t, got, len(data))
		assert.Greater(t, elapsed, 500*time.Millisecond)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		rl := newRateLimitedReader(ctx, bytes.NewReader(bytes.Repeat([]byte("m"), 1<<20)), NewBWLimiter(1024))
		cancel()

		buf := make([]byte, 4096)
		for range 100 {
			if _, err := rl.Read(buf); err != nil {
				return
			}
		}
		t.Fatal("expected context cancellation error")
	})
}
