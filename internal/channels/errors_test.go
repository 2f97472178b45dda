package channels

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	base := errors.New("boom")
	err := ErrUnavailable("create thread", base)
	if got := err.Error(); got != "[SERVICE_UNAVAILABLE] create thread: boom" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected Unwrap to expose base error")
	}
	if got := ErrConfig("no channel", nil).Error(); got != "[CONFIG_ERROR] no channel" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", ErrUnavailable("x", nil), true},
		{"rate limit", ErrRateLimit("x", nil), true},
		{"connection wrapped", fmt.Errorf("route: %w", ErrConnection("x", nil)), true},
		{"config", ErrConfig("x", nil), false},
		{"not found", ErrNotFound("x", nil), false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(fmt.Errorf("wrap: %w", ErrConfig("x", nil))); got != ErrCodeConfig {
		t.Errorf("GetErrorCode() = %s", got)
	}
	if got := GetErrorCode(errors.New("x")); got != ErrCodeInternal {
		t.Errorf("GetErrorCode() = %s", got)
	}
	if !IsNotFound(ErrNotFound("gone", nil)) || IsNotFound(ErrPermission("x", nil)) {
		t.Error("IsNotFound mismatch")
	}
	if !IsConfig(ErrConfig("x", nil)) {
		t.Error("IsConfig mismatch")
	}
	e := ErrPermission("x", nil).WithContext("channel", "1")
	if e.Context["channel"] != "1" {
		t.Error("WithContext did not record value")
	}
}
