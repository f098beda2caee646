package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestServiceErrorMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status int
		want   error
	}{
		{status: 401, want: ErrAuth},
		{status: 403, want: ErrAuth},
		{status: 500, want: ErrUnavailable},
		{status: 0, want: ErrUnavailable},
	}
	for _, tt := range tests {
		err := NewServiceError("advisory", tt.status, "boom")
		if !errors.Is(err, tt.want) {
			t.Fatalf("status %d: Is(%v) = false", tt.status, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	if !IsRetryable(NewServiceError("advisory", 503, "down")) {
		t.Fatal("503 should be retryable")
	}
	if !IsRetryable(NewServiceError("advisory", 0, "dial tcp: refused")) {
		t.Fatal("transport failure should be retryable")
	}
	if IsRetryable(NewServiceError("advisory", 403, "forbidden")) {
		t.Fatal("auth failure should not be retryable")
	}
	if IsRetryable(NewServiceError("advisory", 400, "bad request")) {
		t.Fatal("client error should not be retryable")
	}
	if IsRetryable(fmt.Errorf("wrap: %w", ErrConflict)) {
		t.Fatal("conflict should not be retryable")
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("approve offer: %w", ErrConflict)
	if !errors.Is(err, ErrConflict) {
		t.Fatal("wrapped sentinel not detected")
	}
}
