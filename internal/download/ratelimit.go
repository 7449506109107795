package download

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// NewBWLimiter creates a rate.Limiter that caps download throughput to
// bytesPerSec. The burst is 1 MB so whole read chunks pass without
// unnecessary blocking.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20 // 1 MB
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// rateLimitedReader wraps an io.Reader and enforces a rate limit.
type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func newRateLimitedReader(ctx context.Context, r io.Reader, limiter *rate.Limiter) *rateLimitedReader {
	return &rateLimitedReader{r: r, limiter: limiter, ctx: ctx}
}

func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := rl.r.Read(p)
	// WaitN rejects requests larger than the burst, so wait in burst-sized steps.
	for remaining := n; remaining > 0; {
		step := min(remaining, rl.limiter.Burst())
		if waitErr := rl.limiter.WaitN(rl.ctx, step); waitErr != nil {
			return n, waitErr
		}
		remaining -= step
	}
	return n, err
}
