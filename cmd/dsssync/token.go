package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/nerrad567/gray-logic-dss/internal/auth"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/config"
)

// issueToken mints a bearer token signed with api.auth.jwt_secret and
// writes it to w.
func issueToken(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.SetOutput(w)
	subject := fs.String("subject", "", "token subject, e.g. the client name (required)")
	scope := fs.String("scope", string(auth.ScopeRead), "token scope: read or write")
	ttl := fs.Int("ttl", 0, "lifetime in minutes (default api.auth.token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *subject == "" {
		return errors.New("-subject is required")
	}
	s, err := auth.ParseScope(*scope)
	if err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.Auth.JWTSecret == "" {
		return errors.New("api.auth.jwt_secret is not set, authentication is disabled")
	}

	minutes := *ttl
	if minutes <= 0 {
		minutes = cfg.API.Auth.TokenTTL
	}

	token, err := auth.GenerateToken(*subject, s, cfg.API.Auth.JWTSecret, minutes)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, token)
	return nil
}
