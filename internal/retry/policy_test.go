package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFixedPolicyDelay(t *testing.T) {
	policy := FixedPolicy(2, time.Second)

	for retry := 0; retry < 5; retry++ {
		if d := policy.CalculateDelay(retry); d != time.Second {
			t.Errorf("Retry %d: expected fixed 1s delay, got %v", retry, d)
		}
	}
	if policy.Attempts() != 3 {
		t.Errorf("Expected 3 attempts, got %d", policy.Attempts())
	}
	if err := policy.Validate(); err != nil {
		t.Errorf("Fixed policy should validate: %v", err)
	}
}

func TestPolicyCalculateDelay(t *testing.T) {
	policy := Policy{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		retryCount int
		expected   time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // Capped at MaxDelay
	}

	for _, test := range tests {
		actual := policy.CalculateDelay(test.retryCount)
		if actual != test.expected {
			t.Errorf("retryCount=%d: expected %v, got %v", test.retryCount, test.expected, actual)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	bad := []Policy{
		{MaxRetries: -1, InitialDelay: time.Second, MaxDelay: time.Second, BackoffMultiplier: 1},
		{MaxRetries: 1, InitialDelay: time.Second, MaxDelay: time.Second, BackoffMultiplier: 0},
		{MaxRetries: 1, InitialDelay: 2 * time.Second, MaxDelay: time.Second, BackoffMultiplier: 1},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("Policy %d: expected validation error", i)
		}
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	policy := FixedPolicy(2, time.Millisecond)
	calls := 0
	retries := 0

	err := Do(context.Background(), policy, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("unavailable")
		}
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		retries++
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if retries != 2 {
		t.Errorf("Expected 2 retry callbacks, got %d", retries)
	}
}

func TestDoExhausted(t *testing.T) {
	policy := FixedPolicy(2, time.Millisecond)
	calls := 0
	want := errors.New("still down")

	err := Do(context.Background(), policy, func(ctx context.Context, attempt int) error {
		calls++
		return want
	}, nil)

	if !errors.Is(err, want) {
		t.Errorf("Expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected retryCount+1 = 3 calls, got %d", calls)
	}
}

func TestDoContextCanceledDuringWait(t *testing.T) {
	policy := FixedPolicy(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- Do(ctx, policy, func(ctx context.Context, attempt int) error {
			return errors.New("fail")
		}, nil)
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}
