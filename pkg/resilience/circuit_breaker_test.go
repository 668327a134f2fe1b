package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.OnError(RateLimitError{Provider: "openai"})
	if !cb.Allow() {
		t.Fatalf("breaker opened too early")
	}
	cb.OnError(fmt.Errorf("wrapped: %w", UnavailableError{StatusCode: 503}))
	if cb.Allow() {
		t.Fatalf("expected breaker open")
	}
	now = now.Add(time.Minute)
	if !cb.Allow() {
		t.Fatalf("expected breaker to close after cooldown")
	}
}

func TestBreakerIgnoresPermanentErrors(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.OnError(errors.New("401 unauthorized"))
	if !cb.Allow() {
		t.Fatalf("permanent errors must not trip the breaker")
	}
}

func TestBreakerResetsOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	cb.OnError(RateLimitError{})
	cb.OnSuccess()
	cb.OnError(RateLimitError{})
	if !cb.Allow() {
		t.Fatalf("success should reset the failure count")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(RateLimitError{}) || !IsTransient(UnavailableError{}) {
		t.Fatalf("expected transient")
	}
	if IsTransient(errors.New("bad request")) {
		t.Fatalf("expected permanent")
	}
}

func TestBreakerReportsTripAndRecovery(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	if cb.OnError(RateLimitError{}) {
		t.Fatalf("first failure must not trip")
	}
	if !cb.OnError(RateLimitError{}) {
		t.Fatalf("second failure should trip")
	}
	if !cb.OnSuccess() {
		t.Fatalf("expected recovery after trip")
	}
	if cb.OnSuccess() {
		t.Fatalf("healthy breaker reported recovery")
	}
}
