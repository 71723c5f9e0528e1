// Package ratelimit limits API requests per client and route using token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// tokenBucket refills at a steady rate up to capacity.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(capacity int, refillRate float64, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   float64(capacity),
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: now,
	}
}

// take refills the bucket, consumes one token if available and reports the
// remaining tokens and when the bucket will be full.
func (tb *tokenBucket) take(now time.Time) (allowed bool, remaining int, full time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if elapsed := now.Sub(tb.lastRefill).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	}
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		allowed = true
	}

	full = now
	if missing := tb.capacity - tb.tokens; missing > 0 && tb.refillRate > 0 {
		full = now.Add(time.Duration(missing / tb.refillRate * float64(time.Second)))
	}
	return allowed, int(tb.tokens), full
}

// nextToken returns how long until one token is available.
func (tb *tokenBucket) nextToken() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.tokens >= 1 || tb.refillRate <= 0 {
		return 0
	}
	return time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
}

// Info describes the limit applied to a request.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// Limiter tracks one bucket per client and route pattern.
type Limiter struct {
	config *Config
	now    func() time.Time

	mu         sync.Mutex
	buckets    map[string]*tokenBucket
	lastAccess map[string]time.Time

	cleanupStop chan struct{}
	stopOnce    sync.Once
}

// NewLimiter creates a limiter. A nil config allows 1000 requests a minute per route.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}
	l := &Limiter{
		config:     config,
		now:        time.Now,
		buckets:    make(map[string]*tokenBucket),
		lastAccess: make(map[string]time.Time),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		l.cleanupStop = make(chan struct{})
		go l.cleanup(config.CleanupInterval)
	}
	return l
}

// Allow reports whether clientID may call method on path now.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{}
	}

	ep := MatchEndpoint(path, method, l.config.EndpointConfigs)
	key := clientID + " " + method + " " + path
	if ep == nil {
		ep = &EndpointConfig{Limit: l.config.DefaultLimit, Window: l.config.DefaultWindow}
	} else {
		// Routes with IDs share one bucket per client.
		key = clientID + " " + ep.Method + " " + ep.Path
	}
	if ep.Limit <= 0 || ep.Window <= 0 {
		return true, Info{Allowed: true}
	}

	now := l.now()
	bucket := l.bucket(key, *ep, now)
	allowed, remaining, full := bucket.take(now)

	info := Info{
		Allowed:   allowed,
		Limit:     ep.Limit,
		Remaining: remaining,
		ResetTime: full,
	}
	if !allowed {
		info.RetryAfter = bucket.nextToken()
	}
	return allowed, info
}

func (l *Limiter) bucket(key string, ep EndpointConfig, now time.Time) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastAccess[key] = now
	if b, ok := l.buckets[key]; ok {
		return b
	}
	capacity := ep.Burst
	if capacity <= 0 {
		capacity = ep.Limit
	}
	b := newTokenBucket(capacity, float64(ep.Limit)/ep.Window.Seconds(), now)
	l.buckets[key] = b
	return b
}

func (l *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Hour)
		case <-l.cleanupStop:
			return
		}
	}
}

// evictIdle drops buckets not used within idle.
func (l *Limiter) evictIdle(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, last := range l.lastAccess {
		if last.Before(cutoff) {
			delete(l.buckets, key)
			delete(l.lastAccess, key)
			n++
		}
	}
	return n
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		if l.cleanupStop != nil {
			close(l.cleanupStop)
		}
	})
}
