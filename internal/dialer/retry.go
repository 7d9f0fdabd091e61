package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
)

type retryDialer struct {
	inner    Dialer
	attempts int
	min      time.Duration
	max      time.Duration
}

// newRetryDialer builds the "retry" strategy: failed dials through the inner
// chain are retried with exponential backoff. Strategy-rejected failures and
// canceled contexts are never retried.
//
// Parameters: the attempt count (positional, required), then optional
// minimum and maximum backoff durations, e.g. "retry:3/100ms/2s". The
// defaults are 100ms and 5s.
func newRetryDialer(_ Config, inner Dialer, params []string) (Dialer, error) {
	if len(params) < 1 || len(params) > 3 {
		return nil, invalidParamsError("retry", "want attempts[/min/max]")
	}

	attempts, err := strconv.Atoi(params[0])
	if err != nil || attempts < 1 {
		return nil, invalidParamsError("retry", fmt.Sprintf("attempts %q must be a positive number", params[0]))
	}

	d := &retryDialer{inner: inner, attempts: attempts, min: 100 * time.Millisecond, max: 5 * time.Second}
	if len(params) >= 2 {
		if d.min, err = time.ParseDuration(params[1]); err != nil || d.min <= 0 {
			return nil, invalidParamsError("retry", fmt.Sprintf("min backoff %q is not a positive duration", params[1]))
		}
	}
	if len(params) == 3 {
		if d.max, err = time.ParseDuration(params[2]); err != nil || d.max < d.min {
			return nil, invalidParamsError("retry", fmt.Sprintf("max backoff %q is not a duration >= min", params[2]))
		}
	}

	return d, nil
}

func (d *retryDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	b := &backoff.Backoff{Min: d.min, Max: d.max}

	var lastErr error
	for attempt := 0; attempt < d.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return nil, classifyDial(network, address, ctx.Err())
			}
		}

		conn, err := d.inner.DialContext(ctx, network, address)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}

	return nil, lastErr
}

func retryable(err error) bool {
	var de *DialError
	if errors.As(err, &de) && de.Kind == KindStrategyRejected {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
