package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_WindowExhaustion(t *testing.T) {
	now := time.Unix(1000, 0)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }})

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(context.Background(), "user-1", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if decision.Remaining != 2-i {
			t.Fatalf("request %d remaining = %d, want %d", i, decision.Remaining, 2-i)
		}
	}

	decision, err := limiter.Allow(context.Background(), "user-1", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("fourth request should be rejected")
	}
	if decision.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", decision.Remaining)
	}
}

func TestMemoryLimiter_WindowReset(t *testing.T) {
	now := time.Unix(1000, 0)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }})

	for i := 0; i < 2; i++ {
		if _, err := limiter.Allow(context.Background(), "user-1", 2, time.Minute); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}
	decision, err := limiter.Allow(context.Background(), "user-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected rejection before window reset")
	}

	now = now.Add(2 * time.Minute)
	decision, err = limiter.Allow(context.Background(), "user-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow after reset: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected allow after window reset")
	}
	if decision.Remaining != 1 {
		t.Fatalf("remaining = %d, want 1", decision.Remaining)
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	now := time.Unix(1000, 0)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }})

	if _, err := limiter.Allow(context.Background(), "user-1", 1, time.Minute); err != nil {
		t.Fatalf("allow: %v", err)
	}
	decision, err := limiter.Allow(context.Background(), "user-2", 1, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("second key should have its own window")
	}
}

func TestMemoryLimiter_ZeroLimitDisables(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryLimiterConfig{})
	for i := 0; i < 100; i++ {
		decision, err := limiter.Allow(context.Background(), "user-1", 0, time.Minute)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !decision.Allowed {
			t.Fatal("zero limit must disable limiting")
		}
	}
}

func TestMemoryLimiter_CapacityGC(t *testing.T) {
	now := time.Unix(1000, 0)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }, MaxKeys: 2})

	if _, err := limiter.Allow(context.Background(), "a", 1, time.Minute); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if _, err := limiter.Allow(context.Background(), "b", 1, time.Minute); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if _, err := limiter.Allow(context.Background(), "c", 1, time.Minute); err == nil {
		t.Fatal("expected capacity error while windows are live")
	}

	now = now.Add(2 * time.Minute)
	if _, err := limiter.Allow(context.Background(), "c", 1, time.Minute); err != nil {
		t.Fatalf("expected gc to reclaim expired windows: %v", err)
	}
}
