package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without contacting the provider while its
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig tunes a provider breaker. Zero values take the defaults.
type BreakerConfig struct {
	Failures uint32        // consecutive failures that open the circuit (default 3)
	Cooldown time.Duration // time spent open before half-open trials (default 30s)
	Recovery uint32        // half-open successes that close it again (default 2)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Failures == 0 {
		c.Failures = 3
	}
	if c.Cooldown == 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Recovery == 0 {
		c.Recovery = 2
	}
	return c
}

// BreakerStats is a snapshot of a breaker.
type BreakerStats struct {
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	Rejected            uint64 `json:"rejected"`
}

// Breaker guards the chat calls of one provider. Only failures that say
// something about provider health count: transport errors, timeouts, 429
// and 5xx. Caller cancellation and other 4xx answers leave it untouched.
type Breaker struct {
	provider string
	cb       *gobreaker.CircuitBreaker
	rejected atomic.Uint64
}

// NewBreaker returns a closed breaker for provider.
func NewBreaker(provider string, cfg BreakerConfig) *Breaker {
	cfg = cfg.withDefaults()
	return &Breaker{
		provider: provider,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        provider,
			MaxRequests: cfg.Recovery,
			Timeout:     cfg.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.Failures
			},
			IsSuccessful: healthy,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("llm: %s circuit %s -> %s", name, from, to)
			},
		}),
	}
}

// healthy reports whether err leaves the provider's health record clean.
func healthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return !statusErr.Temporary()
	}
	return false
}

// Chat runs fn unless the circuit is open.
func (b *Breaker) Chat(ctx context.Context, fn func(context.Context) (*ChatResponse, error)) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.rejected.Add(1)
		return nil, fmt.Errorf("%s: %w", b.provider, ErrCircuitOpen)
	}
	if err != nil {
		return nil, err
	}
	return out.(*ChatResponse), nil
}

// Stats returns the current state and counters.
func (b *Breaker) Stats() BreakerStats {
	return BreakerStats{
		State:               b.cb.State().String(),
		ConsecutiveFailures: b.cb.Counts().ConsecutiveFailures,
		Rejected:            b.rejected.Load(),
	}
}
