// Package ratelimit caps the request rate sent to each host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
	"github.com/JakeFAU/archive-harvester/internal/metrics"
)

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// Config holds rate limiter configuration. RPS <= 0 disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    burst,
	}
}

// Wait blocks until a token for rawURL's host is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(host, waited)
	}
	return nil
}

// Transport applies the limiter in front of another transport.
type Transport struct {
	next    crawler.Transport
	limiter *Limiter
}

// Wrap returns next guarded by l.
func Wrap(next crawler.Transport, l *Limiter) *Transport {
	return &Transport{next: next, limiter: l}
}

// Fetch implements crawler.Transport.
func (t *Transport) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (crawler.Content, error) {
	if err := t.limiter.Wait(ctx, rawURL); err != nil {
		return crawler.Content{}, err
	}
	content, err := t.next.Fetch(ctx, rawURL, timeout)
	if err != nil {
		return crawler.Content{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return content, nil
}
