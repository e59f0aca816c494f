package server

import (
	"testing"
	"time"
)

func TestMessageLimiterAllowsBurstThenDenies(t *testing.T) {
	limiter := newMessageLimiter(RateLimitConfig{Burst: 3, RefillInterval: time.Hour})

	for i := 0; i < 3; i++ {
		if !limiter.allow() {
			t.Fatalf("frame %d within burst was denied", i+1)
		}
	}
	if limiter.allow() {
		t.Error("frame beyond burst was allowed")
	}
}

func TestMessageLimiterRefills(t *testing.T) {
	limiter := newMessageLimiter(RateLimitConfig{Burst: 1, RefillInterval: 10 * time.Millisecond})

	if !limiter.allow() {
		t.Fatal("first frame was denied")
	}
	if limiter.allow() {
		t.Fatal("second immediate frame was allowed")
	}

	time.Sleep(20 * time.Millisecond)
	if !limiter.allow() {
		t.Error("frame after refill interval was denied")
	}
}

func TestMessageLimiterSanitizesConfig(t *testing.T) {
	limiter := newMessageLimiter(RateLimitConfig{})
	if limiter.allow() != true {
		t.Error("sanitized limiter must allow at least one frame")
	}
	if limiter.allow() {
		t.Error("sanitized limiter must cap the burst at one frame")
	}
}
