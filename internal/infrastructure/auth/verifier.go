package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Principal is the verified identity behind a bearer token.
type Principal struct {
	Subject  string
	Issuer   string
	Audience []string
}

// Verifier checks a bearer token and returns the principal it was issued to.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (*Principal, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (*Principal, error) {
	return f(ctx, token)
}

// SafeVerify runs v and turns a panic inside it into ErrInvalidToken.
// A blank token fails with ErrMissingToken without reaching v.
func SafeVerify(ctx context.Context, v Verifier, token string) (p *Principal, err error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: verifier panicked: %v", ErrInvalidToken, r)
		}
	}()

	p, err = v.Verify(ctx, token)
	if err == nil && p == nil {
		err = fmt.Errorf("%w: verifier returned no principal", ErrInvalidToken)
	}
	return p, err
}
