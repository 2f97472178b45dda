// Package auth issues and verifies operator tokens for the admin API.
package auth

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
)

// Operator is the principal carried by an admin token.
type Operator struct {
	ID   string
	Name string
}

// Config configures the admin token service.
type Config struct {
	JWTSecret   string
	Issuer      string
	TokenExpiry time.Duration
}

// Service validates admin tokens. A Service without a secret is disabled.
type Service struct {
	jwt *JWTService
}

// NewService constructs an auth service from static configuration.
func NewService(cfg Config) *Service {
	service := &Service{}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		service.jwt = NewJWTService(cfg.JWTSecret, cfg.Issuer, cfg.TokenExpiry)
	}
	return service
}

// Enabled reports whether auth checks should run.
func (s *Service) Enabled() bool {
	return s != nil && s.jwt != nil
}

// GenerateJWT issues a signed token for op.
func (s *Service) GenerateJWT(op *Operator) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}
	return s.jwt.Generate(op)
}

// ValidateJWT validates a token and returns its operator.
func (s *Service) ValidateJWT(token string) (*Operator, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}
	return s.jwt.Validate(token)
}
