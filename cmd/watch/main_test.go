package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-notification-ws/internal/infrastructure/auth"
	"go-notification-ws/internal/infrastructure/config"
)

func TestTokenSupplier(t *testing.T) {
	ctx := context.Background()

	static := tokenSupplier(&config.Config{Client: config.ClientConfig{Token: "fixed"}})
	tok, err := static.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fixed", tok)

	cfg := &config.Config{
		Auth:   config.AuthConfig{Issuer: "dashboard", Secret: "s3cret"},
		Client: config.ClientConfig{Subject: "watch-cli", TokenTTL: time.Minute},
	}
	tok, err = tokenSupplier(cfg).Token(ctx)
	require.NoError(t, err)

	p, err := auth.NewJWTVerifier(auth.VerifierConfig{Issuer: "dashboard", Secret: "s3cret"}).Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "watch-cli", p.Subject)
}
