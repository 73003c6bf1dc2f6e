// Package retry wraps calls to the completion service with a bounded,
// linearly backed-off retry loop that only retries throttled requests.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danshapiro/newsroom/internal/llm"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 5 * time.Second

	// NoWait as a BaseDelay retries immediately.
	NoWait time.Duration = -1
)

// ErrRetriesExhausted matches any *ExhaustedError via errors.Is.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExhaustedError is returned after MaxAttempts rate-limited failures.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Last} }

// Event describes one scheduled wait before the next attempt.
type Event struct {
	Attempt int // 1-based attempt that just failed
	Delay   time.Duration
	Err     error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy configures Do. The zero value is usable: every unset field takes
// its default. A negative BaseDelay (see NoWait) disables waiting.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// HonorRetryAfter uses the server's Retry-After hint when it exceeds the
	// linear delay.
	HonorRetryAfter bool

	// Classify reports whether err is a rate-limit signal. Defaults to
	// llm.IsRateLimited.
	Classify func(err error) bool

	Sleep   SleepFunc
	OnRetry func(Event)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Classify == nil {
		p.Classify = llm.IsRateLimited
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	return p
}

// DelayForAttempt returns attempt * base. attempt is 1-indexed: the wait after
// the first failure is one base unit.
func DelayForAttempt(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}
	return time.Duration(attempt) * base
}

func (p Policy) delay(attempt int, err error) time.Duration {
	d := DelayForAttempt(attempt, p.BaseDelay)
	if p.HonorRetryAfter {
		if ra := llm.RetryAfterOf(err); ra != nil && *ra > d {
			d = *ra
		}
	}
	return d
}

// Do invokes op until it succeeds, fails with a non-rate-limit error, or has
// failed MaxAttempts times with rate-limit errors. There is no wait after the
// final attempt, so exhaustion performs exactly MaxAttempts-1 waits.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	var zero T
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if !p.Classify(err) {
			return zero, err
		}
		last = err
		if attempt == p.MaxAttempts {
			break
		}
		d := p.delay(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(Event{Attempt: attempt, Delay: d, Err: err})
		}
		if err := p.Sleep(ctx, d); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Attempts: p.MaxAttempts, Last: last}
}

// Sleep is the default SleepFunc: a timer that yields to ctx cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Completer decorates an llm.Completer so every Complete call runs under p.
func Completer(c llm.Completer, p Policy) llm.Completer {
	return llm.CompleterFunc(func(ctx context.Context, req llm.Request) (llm.Message, error) {
		return Do(ctx, p, func(ctx context.Context) (llm.Message, error) {
			return c.Complete(ctx, req)
		})
	})
}
