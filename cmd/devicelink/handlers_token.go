package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/devicelink/internal/auth"
	"github.com/haasonsaas/devicelink/internal/config"
)

func runToken(cmd *cobra.Command, configPath, subject, name string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	service := auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		Issuer:      cfg.Auth.Issuer,
		TokenExpiry: cfg.Auth.TokenExpiry,
	})
	if !service.Enabled() {
		return fmt.Errorf("auth.jwt_secret is not set; the admin API is disabled")
	}
	if subject == "" {
		subject = uuid.NewString()
	}
	token, err := service.GenerateJWT(&auth.Operator{ID: subject, Name: name})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
