package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryPolicy decides how often and how long to wait before retrying a
// forwarded write.
type RetryPolicy struct {
	maxRetries  int
	backoffBase time.Duration
	maxBackoff  time.Duration
}

// NewRetryPolicy validates and creates a retry policy
func NewRetryPolicy(maxRetries int, backoffBase, maxBackoff time.Duration) (RetryPolicy, error) {
	if maxRetries < 0 {
		return RetryPolicy{}, fmt.Errorf("max retries must not be negative, got %d", maxRetries)
	}
	if backoffBase <= 0 {
		return RetryPolicy{}, fmt.Errorf("backoff base must be positive, got %s", backoffBase)
	}
	if maxBackoff <= 0 {
		return RetryPolicy{}, fmt.Errorf("max backoff must be positive, got %s", maxBackoff)
	}
	return RetryPolicy{
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		maxBackoff:  maxBackoff,
	}, nil
}

func (p RetryPolicy) MaxRetries() int { return p.maxRetries }

// CalculateBackoff returns min(backoffBase * 2^attempt, maxBackoff)
func (p RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.backoffBase
	for i := 0; i < attempt; i++ {
		if d >= p.maxBackoff {
			break
		}
		d *= 2
	}
	if d > p.maxBackoff {
		return p.maxBackoff
	}
	return d
}

// ShouldRetry reports whether another attempt is allowed after attempt
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.maxRetries
}

var transientErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ETIMEDOUT,
	syscall.ECONNREFUSED,
	syscall.EHOSTUNREACH,
	syscall.EINPROGRESS,
}

// IsTransientError classifies err as worth retrying. Connection resets,
// refusals, timeouts and unavailable gRPC peers are transient; everything
// else, including permission and not-found errors, is permanent.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return true
		}
	}

	return false
}

// Do runs op until it succeeds, fails permanently, or retries run out.
// attempt starts at 0. The wait between attempts is CalculateBackoff and is
// cut short when ctx is done.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.CalculateBackoff(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := op(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransientError(err) || !p.ShouldRetry(attempt) {
			return lastErr
		}
	}
}
