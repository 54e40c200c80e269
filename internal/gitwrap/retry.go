package gitwrap

import (
	"context"
	"math/rand"
	"time"

	"github.com/sealbridge/sealrepos/internal/errdefs"
)

// WithBackoff runs fn, retrying retryable failures up to attempts times
// with exponential backoff plus up to a second of jitter. Non-retryable
// errors return immediately.
func WithBackoff(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	for i := 0; ; i++ {
		err = fn()
		if err == nil || !errdefs.IsRetryable(err) || i >= attempts {
			return err
		}

		sleep := base<<i + time.Duration(rand.Int63n(int64(time.Second)))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(sleep):
		}
	}
}
