package resilience

import (
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

func TestNewBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewBreaker[int](BreakerConfig{Name: "test-breaker", FailureThreshold: 2, Timeout: time.Minute})
	fail := func() (int, error) { return 0, errors.New("down") }

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(fail); err == nil {
			t.Fatal("expected failure")
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	if _, err := cb.Execute(func() (int, error) { return 1, nil }); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
}
