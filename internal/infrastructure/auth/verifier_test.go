package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeVerify(t *testing.T) {
	ctx := context.Background()
	ok := VerifierFunc(func(ctx context.Context, token string) (*Principal, error) {
		return &Principal{Subject: token}, nil
	})

	p, err := SafeVerify(ctx, ok, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Subject)

	_, err = SafeVerify(ctx, ok, "  ")
	assert.ErrorIs(t, err, ErrMissingToken)

	panicky := VerifierFunc(func(context.Context, string) (*Principal, error) {
		panic("boom")
	})
	_, err = SafeVerify(ctx, panicky, "t")
	assert.ErrorIs(t, err, ErrInvalidToken)

	failing := VerifierFunc(func(context.Context, string) (*Principal, error) {
		return nil, errors.New("upstream down")
	})
	_, err = SafeVerify(ctx, failing, "t")
	assert.EqualError(t, err, "upstream down")

	empty := VerifierFunc(func(context.Context, string) (*Principal, error) { return nil, nil })
	_, err = SafeVerify(ctx, empty, "t")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
