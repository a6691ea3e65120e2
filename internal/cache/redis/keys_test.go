package redis

import "testing"

func TestLockKeyNamespacesWithPrefix(t *testing.T) {
	if got := lockKey("token:1"); got != "lock:token:1" {
		t.Fatalf("expected lock:token:1, got %s", got)
	}
}

func TestRateLimitKeyNamespacesWithPrefix(t *testing.T) {
	if got := rateLimitKey("token:1"); got != "ratelimit:token:1" {
		t.Fatalf("expected ratelimit:token:1, got %s", got)
	}
}
