package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/time/rate"
)

// ResilientConfig controls the hardening applied around each chat call.
type ResilientConfig struct {
	// Timeout bounds one attempt. Zero leaves the provider's own timeout.
	Timeout time.Duration

	// Retries is the number of extra attempts made after a transient failure.
	Retries int

	// Backoff is the pause before the first retry; it doubles per attempt.
	Backoff time.Duration

	// RatePerSecond caps outgoing requests. Zero disables limiting.
	RatePerSecond float64
}

// ResilientClient wraps a ChatModel with a request-rate limiter, a per-call
// timeout and a small bounded retry on transient failures.
type ResilientClient struct {
	next    ChatModel
	cfg     ResilientConfig
	limiter *rate.Limiter
	onCall  func(err error)
}

// NewResilientClient wraps next. A nil limiter is used when RatePerSecond is zero.
func NewResilientClient(next ChatModel, cfg ResilientConfig) *ResilientClient {
	if cfg.Backoff == 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	c := &ResilientClient{next: next, cfg: cfg}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return c
}

// OnCall registers a hook invoked after every attempt with its error (nil on
// success). Used to feed call counters.
func (c *ResilientClient) OnCall(fn func(err error)) {
	c.onCall = fn
}

// Chat performs the call, retrying transient failures up to Retries times.
func (c *ResilientClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	backoff := c.cfg.Backoff

	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			log.Printf("llm: retrying %s after transient error (attempt %d/%d): %v",
				c.next.GetModel(), attempt+1, c.cfg.Retries+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("llm: rate limiter: %w", err)
			}
		}

		resp, err := c.attempt(ctx, req)
		if c.onCall != nil {
			c.onCall(err)
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsTransient(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *ResilientClient) attempt(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	return c.next.Chat(ctx, req)
}

// GetModel returns the wrapped client's model.
func (c *ResilientClient) GetModel() string {
	return c.next.GetModel()
}

var _ ChatModel = (*ResilientClient)(nil)

// IsTransient reports whether err is worth one more attempt: timeouts,
// network errors and 429/5xx responses. An open circuit is not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
