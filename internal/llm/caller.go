package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/kalambet/storemate/internal/logging"
	"github.com/kalambet/storemate/internal/task"
)

const (
	DefaultMaxRetries       = 3
	DefaultMinResponseChars = 100
	DefaultBackoffUnit      = time.Second
)

// Options configure a Caller. Zero values take the defaults above; a zero
// RateLimit disables client-side rate limiting.
type Options struct {
	MaxRetries       int
	MinResponseChars int
	BackoffUnit      time.Duration
	RateLimit        float64
}

// Result is a successful call.
type Result struct {
	Text     string
	Attempts int
	// BelowMinimum is set when the final attempt returned a short answer
	// and it was kept rather than discarded.
	BelowMinimum bool
}

// Caller wraps a Completer with retries, exponential backoff, a response
// length check and an outbound rate limit.
type Caller struct {
	completer   Completer
	maxRetries  int
	minChars    int
	backoffUnit time.Duration
	limiter     *rate.Limiter

	wait func(ctx context.Context, d time.Duration) error
}

// NewCaller creates a Caller around c.
func NewCaller(c Completer, opts Options) *Caller {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MinResponseChars < 0 {
		opts.MinResponseChars = 0
	} else if opts.MinResponseChars == 0 {
		opts.MinResponseChars = DefaultMinResponseChars
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = DefaultBackoffUnit
	}
	caller := &Caller{
		completer:   c,
		maxRetries:  opts.MaxRetries,
		minChars:    opts.MinResponseChars,
		backoffUnit: opts.BackoffUnit,
		wait:        sleepContext,
	}
	if opts.RateLimit > 0 {
		burst := int(math.Ceil(opts.RateLimit))
		caller.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return caller
}

// Backoff returns the wait before retrying after the given 0-indexed attempt.
func (c *Caller) Backoff(attempt int) time.Duration {
	return time.Duration(float64(c.backoffUnit) * math.Pow(2, float64(attempt)))
}

// Budget is the worst case for Call when a single attempt may take up to
// attemptTimeout: every attempt timing out plus every backoff between them.
// Rate-limit waits are not included.
func (c *Caller) Budget(attemptTimeout time.Duration) time.Duration {
	total := time.Duration(c.maxRetries) * attemptTimeout
	for attempt := range c.maxRetries - 1 {
		total += c.Backoff(attempt)
	}
	return total
}

// Call runs up to MaxRetries attempts. Transport failures, non-2xx answers
// and responses shorter than MinResponseChars are retried after
// Backoff(attempt). A short answer on the final attempt is returned with
// BelowMinimum set; any other final failure yields *ExhaustedError.
// Cancelling ctx stops immediately with ctx.Err().
func (c *Caller) Call(ctx context.Context, messages []Message, params task.Params) (Result, error) {
	logger := logging.From(ctx)
	var lastErr error
	for attempt := range c.maxRetries {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Result{Attempts: attempt}, fmt.Errorf("waiting for model rate limit: %w", err)
			}
		}

		text, err := c.completer.Complete(ctx, messages, params)
		if err == nil {
			n := utf8.RuneCountInString(strings.TrimSpace(text))
			if n >= c.minChars {
				return Result{Text: text, Attempts: attempt + 1}, nil
			}
			if attempt == c.maxRetries-1 && n > 0 {
				logger.Warn("keeping short model response on final attempt", "length", n, "min", c.minChars)
				return Result{Text: text, Attempts: attempt + 1, BelowMinimum: true}, nil
			}
			err = &QualityError{Length: n, Min: c.minChars}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Attempts: attempt + 1}, ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return Result{Attempts: attempt + 1}, err
		}

		lastErr = err
		logger.Warn("model call attempt failed",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"error", err,
		)
		if attempt < c.maxRetries-1 {
			if err := c.wait(ctx, c.Backoff(attempt)); err != nil {
				return Result{Attempts: attempt + 1}, err
			}
		}
	}
	return Result{Attempts: c.maxRetries}, &ExhaustedError{Attempts: c.maxRetries, Last: lastErr}
}

// sleepContext waits for d on a timer, returning early with ctx.Err().
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
