package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(cfg *Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = clock.Now
	return l, clock
}

func TestTokenBucket_TakeAndRefill(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bucket := newTokenBucket(3, 1.0, start)

	for i := 0; i < 3; i++ {
		if ok, _, _ := bucket.take(start); !ok {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
	}
	if ok, remaining, full := bucket.take(start); ok || remaining != 0 || !full.After(start) {
		t.Fatalf("Expected empty bucket, got ok=%v remaining=%d full=%v", ok, remaining, full)
	}
	if wait := bucket.nextToken(); wait != time.Second {
		t.Errorf("Expected 1s until next token, got %v", wait)
	}

	if ok, _, _ := bucket.take(start.Add(1100 * time.Millisecond)); !ok {
		t.Error("Expected request to be allowed after refill")
	}
}

func TestLimiter_Allow(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})
	defer limiter.Stop()

	for i := 0; i < 10; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/prospects", "GET")
		if !allowed {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
		if info.Limit != 10 || info.Remaining != 9-i {
			t.Errorf("Request %d: got limit=%d remaining=%d", i+1, info.Limit, info.Remaining)
		}
	}

	allowed, info := limiter.Allow("127.0.0.1", "/prospects", "GET")
	if allowed {
		t.Error("Expected 11th request to be denied")
	}
	if info.RetryAfter <= 0 {
		t.Error("Expected retry after to be positive")
	}
}

func TestLimiter_WhitelistBlacklistDisabled(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"10.0.0.1": true},
		Blacklist:     map[string]bool{"10.0.0.2": true},
	})
	defer limiter.Stop()

	for i := 0; i < 50; i++ {
		if allowed, _ := limiter.Allow("10.0.0.1", "/activity", "GET"); !allowed {
			t.Fatal("Expected whitelisted client to be allowed")
		}
	}
	if allowed, _ := limiter.Allow("10.0.0.2", "/activity", "GET"); allowed {
		t.Error("Expected blacklisted client to be denied")
	}

	disabled := NewLimiter(&Config{Enabled: false})
	defer disabled.Stop()
	for i := 0; i < 50; i++ {
		if allowed, _ := disabled.Allow("10.0.0.3", "/activity", "GET"); !allowed {
			t.Fatal("Expected all requests to be allowed when disabled")
		}
	}
}

func TestLimiter_WildcardRouteSharesBucket(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/campaigns/*/activate", Method: "POST", Limit: 2, Window: time.Minute, Burst: 2},
		},
	})
	defer limiter.Stop()

	if allowed, _ := limiter.Allow("c", "/campaigns/a/activate", "POST"); !allowed {
		t.Fatal("Expected first activation to be allowed")
	}
	if allowed, _ := limiter.Allow("c", "/campaigns/b/activate", "POST"); !allowed {
		t.Fatal("Expected second activation to be allowed")
	}
	if allowed, info := limiter.Allow("c", "/campaigns/c/activate", "POST"); allowed || info.Limit != 2 {
		t.Fatalf("Expected third activation to be denied with limit 2, got allowed=%v limit=%d", allowed, info.Limit)
	}
	if allowed, info := limiter.Allow("c", "/campaigns/a", "GET"); !allowed || info.Limit != 1000 {
		t.Errorf("Expected reads to use the default limit, got allowed=%v limit=%d", allowed, info.Limit)
	}

	clock.Advance(30 * time.Second)
	if allowed, _ := limiter.Allow("c", "/campaigns/d/activate", "POST"); !allowed {
		t.Error("Expected activation to be allowed after refill")
	}
}

func TestLimiter_UnlimitedRoutes(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{
		Enabled:         true,
		DefaultLimit:    1,
		DefaultWindow:   time.Minute,
		EndpointConfigs: DefaultEndpointConfigs(),
	})
	defer limiter.Stop()

	for i := 0; i < 20; i++ {
		if allowed, _ := limiter.Allow("c", "/health", "GET"); !allowed {
			t.Fatal("Expected health checks to be unlimited")
		}
		if allowed, _ := limiter.Allow("c", "/activity/stream", "GET"); !allowed {
			t.Fatal("Expected streams to be unlimited")
		}
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{Enabled: true, DefaultLimit: 100, DefaultWindow: time.Hour})
	defer limiter.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Allow("127.0.0.1", "/activity", "GET"); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowedCount != 100 {
		t.Errorf("Expected 100 allowed requests, got %d", allowedCount)
	}
}

func TestLimiter_EvictIdle(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})
	defer limiter.Stop()

	limiter.Allow("a", "/activity", "GET")
	clock.Advance(2 * time.Hour)
	limiter.Allow("b", "/activity", "GET")

	if n := limiter.evictIdle(time.Hour); n != 1 {
		t.Errorf("Expected 1 bucket evicted, got %d", n)
	}
	if _, ok := limiter.buckets["b GET /activity"]; !ok {
		t.Error("Expected recent bucket to survive")
	}
	limiter.Stop()
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()
	tests := []struct {
		path, method string
		want         string
	}{
		{"/campaigns/123/activate", "POST", "/campaigns/*/activate"},
		{"/prospects/abc/site", "POST", "/prospects/*/site"},
		{"/prospects", "POST", "/prospects"},
		{"/agent/pause", "POST", "/agent/"},
		{"/agent/tick", "POST", "/agent/tick"},
		{"/campaigns//activate", "POST", ""},
		{"/prospects/abc", "GET", ""},
	}
	for _, tt := range tests {
		got := MatchEndpoint(tt.path, tt.method, configs)
		switch {
		case tt.want == "" && got != nil:
			t.Errorf("%s %s: expected no match, got %s", tt.method, tt.path, got.Path)
		case tt.want != "" && (got == nil || got.Path != tt.want):
			t.Errorf("%s %s: expected %s, got %v", tt.method, tt.path, tt.want, got)
		}
	}
}

func TestNewLimiter_NilConfig(t *testing.T) {
	limiter := NewLimiter(nil)
	defer limiter.Stop()

	allowed, info := limiter.Allow("127.0.0.1", "/activity", "GET")
	if !allowed || info.Limit != 1000 {
		t.Errorf("Expected default limit 1000, got allowed=%v limit=%d", allowed, info.Limit)
	}
}
