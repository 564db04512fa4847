// Package auth obtains and silently renews the access credential used by
// the REST client and the realtime gateway.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenFunc returns a currently valid access token. It is the single
// accessor injected into every consumer of the credential.
type TokenFunc func(ctx context.Context) (string, error)

// ErrNoSession means there is nothing to renew from; the user must log in.
var ErrNoSession = errors.New("no session: login required")

// CredentialError reports that the identity backend rejected renewal.
type CredentialError struct {
	Op  string
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s failed: %v", e.Op, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// Static returns an accessor for a fixed token. An empty token behaves as
// a missing session.
func Static(token string) TokenFunc {
	return func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if token == "" {
			return "", ErrNoSession
		}
		return token, nil
	}
}

// Claims reads the registered claims of a JWT without verifying its
// signature. Verification is the server's job; the client only needs the
// expiry and subject.
func Claims(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token claims: %w", err)
	}
	return claims, nil
}

// Subject returns the sub claim, or "" for opaque tokens.
func Subject(token string) string {
	c, err := Claims(token)
	if err != nil {
		return ""
	}
	return c.Subject
}

// Expiry returns the exp claim, or the zero time for opaque tokens.
func Expiry(token string) time.Time {
	c, err := Claims(token)
	if err != nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
