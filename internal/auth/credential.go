// Package auth resolves the platform API token and turns it into the
// credential sent with every platform request. Tokens are only ever read:
// storing them is the job of the platform's own CLI.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// DefaultEnvVar holds an API token that takes precedence over any other source
const DefaultEnvVar = "HEROKU_API_KEY"

// ErrNoToken is returned when no source yields a token
var ErrNoToken = errors.New("could not get API key: log in with the platform CLI or set the " + DefaultEnvVar + " environment variable")

// Credential is an API token encoded once for the Authorization header
type Credential struct {
	encoded string
}

// Encode builds the credential for token: base64 of ":" + token
func Encode(token string) Credential {
	return Credential{encoded: base64.StdEncoding.EncodeToString([]byte(":" + token))}
}

// Encoded returns the encoded form of the token
func (c Credential) Encoded() string { return c.encoded }

// Header returns the Authorization header value
func (c Credential) Header() string { return "Basic " + c.encoded }

// IsZero reports whether c holds no token
func (c Credential) IsZero() bool { return c.encoded == "" }

// TokenSource yields an API token. An empty token with a nil error means the
// source has nothing to offer.
type TokenSource interface {
	Name() string
	Token(ctx context.Context) (string, error)
}

// Resolver tries its sources in order; the first non-empty token wins
type Resolver struct {
	Sources []TokenSource
}

// NewResolver creates a resolver with the standard lookup order: environment
// variable, OS keyring, then the platform CLI.
func NewResolver() *Resolver {
	return &Resolver{
		Sources: []TokenSource{
			EnvSource{Var: DefaultEnvVar},
			KeyringSource{},
			CommandSource{},
		},
	}
}

// Lookup returns the first non-empty token, unmodified, and the name of the
// source that produced it. Source failures are collected into the ErrNoToken error.
func (r *Resolver) Lookup(ctx context.Context) (token, source string, err error) {
	var failures []string
	for _, s := range r.Sources {
		tok, err := s.Token(ctx)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		if tok != "" {
			return tok, s.Name(), nil
		}
	}
	if len(failures) > 0 {
		return "", "", fmt.Errorf("%w (%s)", ErrNoToken, strings.Join(failures, "; "))
	}
	return "", "", ErrNoToken
}

// Resolve looks up a token and encodes it
func (r *Resolver) Resolve(ctx context.Context) (Credential, error) {
	token, _, err := r.Lookup(ctx)
	if err != nil {
		return Credential{}, err
	}
	return Encode(token), nil
}
