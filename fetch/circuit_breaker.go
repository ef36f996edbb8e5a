package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
	"go.uber.org/zap"
)

// CircuitBreakerFetcher stops contacting a host after repeated failures so a
// scan over many packages hosted on one dead server fails fast.
type CircuitBreakerFetcher struct {
	next      FetcherInterface
	threshold int64
	cooldown  time.Duration
	logger    *zap.Logger

	mu       sync.RWMutex
	breakers map[string]*circuit.Breaker
}

// BreakerOption configures a CircuitBreakerFetcher.
type BreakerOption func(*CircuitBreakerFetcher)

// WithThreshold sets how many consecutive failures open a host's breaker.
func WithThreshold(n int64) BreakerOption {
	return func(c *CircuitBreakerFetcher) {
		c.threshold = n
	}
}

// WithCooldown sets the first wait before an open breaker lets a request through.
func WithCooldown(d time.Duration) BreakerOption {
	return func(c *CircuitBreakerFetcher) {
		c.cooldown = d
	}
}

// WithBreakerLogger logs breaker trips.
func WithBreakerLogger(l *zap.Logger) BreakerOption {
	return func(c *CircuitBreakerFetcher) {
		c.logger = l
	}
}

// NewCircuitBreakerFetcher wraps next with one breaker per host.
func NewCircuitBreakerFetcher(next FetcherInterface, opts ...BreakerOption) *CircuitBreakerFetcher {
	c := &CircuitBreakerFetcher{
		next:      next,
		threshold: 5,
		cooldown:  30 * time.Second,
		logger:    zap.NewNop(),
		breakers:  make(map[string]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CircuitBreakerFetcher) breaker(host string) *circuit.Breaker {
	c.mu.RLock()
	b, ok := c.breakers[host]
	c.mu.RUnlock()
	if ok {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[host]; ok {
		return b
	}

	wait := backoff.NewExponentialBackOff()
	wait.InitialInterval = c.cooldown
	wait.MaxInterval = 5 * time.Minute
	wait.Multiplier = 2
	wait.MaxElapsedTime = 0
	wait.Reset()

	b = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    wait,
		ShouldTrip: circuit.ThresholdTripFunc(c.threshold),
	})
	c.breakers[host] = b
	return b
}

// call runs fn under the breaker for rawURL's host. A missing package is an
// answer from a healthy server and does not count against the breaker.
func (c *CircuitBreakerFetcher) call(rawURL string, fn func() error) error {
	host := hostOf(rawURL)
	b := c.breaker(host)

	var notFound error
	err := b.Call(func() error {
		err := fn()
		if errors.Is(err, ErrNotFound) {
			notFound = err
			return nil
		}
		return err
	}, 0)
	if notFound != nil {
		return notFound
	}
	if errors.Is(err, circuit.ErrBreakerOpen) {
		return fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}
	if err != nil && b.Tripped() {
		c.logger.Warn("circuit breaker opened", zap.String("host", host), zap.Error(err))
	}
	return err
}

func (c *CircuitBreakerFetcher) Fetch(ctx context.Context, fetchURL string) (*Artifact, error) {
	var artifact *Artifact
	err := c.call(fetchURL, func() error {
		var err error
		artifact, err = c.next.Fetch(ctx, fetchURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

func (c *CircuitBreakerFetcher) Head(ctx context.Context, headURL string) (*Metadata, error) {
	var meta *Metadata
	err := c.call(headURL, func() error {
		var err error
		meta, err = c.next.Head(ctx, headURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// BreakerStates reports "open" or "closed" for every host contacted so far.
func (c *CircuitBreakerFetcher) BreakerStates() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make(map[string]string, len(c.breakers))
	for host, b := range c.breakers {
		if b.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

// hostOf returns the host a breaker is keyed on, or the raw string when it
// does not parse as an absolute URL.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
