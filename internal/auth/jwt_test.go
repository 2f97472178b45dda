package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTServiceGenerateValidate(t *testing.T) {
	service := NewJWTService("secret", "devicelink", time.Hour)
	token, err := service.Generate(&Operator{ID: "ops-1", Name: "Ops"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	op, err := service.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if op.ID != "ops-1" {
		t.Fatalf("expected operator id, got %q", op.ID)
	}
	if op.Name != "Ops" {
		t.Fatalf("expected name, got %q", op.Name)
	}
}

func TestJWTServiceRejects(t *testing.T) {
	service := NewJWTService("secret", "devicelink", time.Hour)
	token, err := service.Generate(&Operator{ID: "ops-1"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	expired := NewJWTService("secret", "devicelink", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	tests := []struct {
		name    string
		service *JWTService
		token   string
	}{
		{"wrong secret", NewJWTService("other", "devicelink", time.Hour), token},
		{"wrong issuer", NewJWTService("secret", "someone-else", time.Hour), token},
		{"expired", expired, token},
		{"garbage", service, "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.service.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTServiceRequiresOperatorID(t *testing.T) {
	service := NewJWTService("secret", "", 0)
	if _, err := service.Generate(&Operator{ID: "  "}); err == nil {
		t.Fatal("expected error for blank operator id")
	}
}

func TestDisabledService(t *testing.T) {
	service := NewService(Config{})
	if service.Enabled() {
		t.Fatal("service without secret should be disabled")
	}
	if _, err := service.GenerateJWT(&Operator{ID: "x"}); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("GenerateJWT() error = %v, want ErrAuthDisabled", err)
	}
	if _, err := service.ValidateJWT("x"); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("ValidateJWT() error = %v, want ErrAuthDisabled", err)
	}
}
