package esplora

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/goodnatureofminers/esplora-go/internal/clock"
	"github.com/goodnatureofminers/esplora-go/transport"
	"go.uber.org/zap"
)

// RetryPolicy decides which failures are worth another attempt and how long
// to wait between attempts. The same policy value drives both transport
// variants; retries are always sequential.
type RetryPolicy struct {
	// MaxAttempts bounds the total number of requests sent, first try
	// included.
	MaxAttempts int
	// BaseDelay is the backoff before the first retry; it doubles per
	// attempt up to MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// Seams for tests.
	sleep  func(context.Context, time.Duration) error
	jitter func(time.Duration) time.Duration
}

// DefaultRetryPolicy mirrors the server-friendly defaults: up to 6 attempts
// starting at 256ms, capped at 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   256 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.sleep == nil {
		p.sleep = clock.SleepWithContext
	}
	if p.jitter == nil {
		p.jitter = defaultJitter
	}
	return p
}

// defaultJitter adds up to half of the current delay. The floor of the next
// backoff step (2d) stays above the ceiling of this one (1.5d), so observed
// inter-attempt delays never decrease.
func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d/2) + 1))
}

type attemptClass int

const (
	classSuccess attemptClass = iota
	classPermanent
	classTransient
	classRateLimited
)

func classifyStatus(code int) attemptClass {
	switch {
	case code >= 200 && code < 300:
		return classSuccess
	case code == http.StatusTooManyRequests:
		return classRateLimited
	case code >= 500:
		return classTransient
	default:
		return classPermanent
	}
}

// classifyTransportError treats timeouts and connection failures as
// transient. TLS failures and unclassified errors are configuration or
// protocol problems a retry cannot fix.
func classifyTransportError(err *transport.Error) attemptClass {
	switch err.Kind {
	case transport.KindTimeout, transport.KindConnectionFailed:
		return classTransient
	default:
		return classPermanent
	}
}

// retryAfterHint extracts a server-provided Retry-After delay, either as a
// delta in seconds or as an HTTP date.
func retryAfterHint(headers http.Header) (time.Duration, bool) {
	v := headers.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// execute runs the request through the transport under the retry policy.
// A returned response may still carry a permanent non-2xx status; mapping
// that onto HTTPError (or ErrNotFound) is the caller's job. Decode failures
// never reach this function, so they are never retried.
func (p RetryPolicy) execute(ctx context.Context, t transport.Transport, req transport.Request, logger *zap.Logger) (*transport.Response, error) {
	p = p.normalized()

	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		resp, err := t.Send(ctx, req)

		var class attemptClass
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			terr, ok := err.(*transport.Error)
			if !ok {
				return nil, err
			}
			class = classifyTransportError(terr)
			if class == classPermanent {
				return nil, terr
			}
			lastErr = terr
		default:
			class = classifyStatus(resp.StatusCode)
			if class == classSuccess || class == classPermanent {
				return resp, nil
			}
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
		}

		if attempt == p.MaxAttempts {
			break
		}

		wait := delay + p.jitter(delay)
		if class == classRateLimited && resp != nil {
			if hint, ok := retryAfterHint(resp.Headers); ok {
				wait = hint
			}
		}

		logger.Debug("retrying request",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(lastErr),
		)
		if err := p.sleep(ctx, wait); err != nil {
			return nil, err
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return nil, &RetriesExhaustedError{Attempts: p.MaxAttempts, LastErr: lastErr}
}
