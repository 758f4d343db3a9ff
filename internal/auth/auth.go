// Package auth verifies identity tokens and tracks the signed in session
package auth

import (
	"context"
	"errors"

	apierrors "github.com/cinesync/backend/internal/errors"
)

var (
	ErrMissingToken = apierrors.New(apierrors.ErrUnauthorized, "missing bearer token")
	ErrInvalidToken = apierrors.New(apierrors.ErrUnauthorized, "invalid or expired token")
)

// Identity is the verified subject of a token
type Identity struct {
	UID      string `json:"uid"`
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider"`
}

// Verifier checks a bearer token and returns who it belongs to
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Chain tries each verifier in order and returns the first identity
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	var errs []error
	for _, v := range c {
		id, err := v.Verify(ctx, token)
		if err == nil {
			return id, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrInvalidToken
	}
	return nil, errors.Join(append([]error{ErrInvalidToken}, errs...)...)
}
