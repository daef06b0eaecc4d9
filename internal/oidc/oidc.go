package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
)

// IDToken is a minimal interface for token payloads that allows extracting claims
// It is satisfied by *oidc.IDToken and by test fakes.
type IDToken interface {
	Claims(v interface{}) error
}

type idTokenVerifier interface {
	Verify(ctx context.Context, raw string) (*oidc.IDToken, error)
}

// Verifier wraps the OIDC provider and token verifier. It satisfies
// tokens.Verifier so a Keycloak realm can stand in for the shared secret.
type Verifier struct {
	provider *oidc.Provider
	verifier idTokenVerifier
}

// NewVerifier creates a new OIDC verifier for the given issuer and client ID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{provider: provider, verifier: verifier}, nil
}

// Verify checks the raw ID token against the provider keys and maps the
// outcome onto the tokens error kinds.
func (v *Verifier) Verify(ctx context.Context, raw string) (*tokens.Identity, error) {
	if strings.Count(raw, ".") != 2 {
		return nil, fmt.Errorf("%w: not a JWT", tokens.ErrMalformed)
	}
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: %v", tokens.ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", tokens.ErrInvalid, err)
	}
	return IdentityFrom(idToken)
}

// IdentityFrom extracts the identity claims carried by an ID token.
func IdentityFrom(t IDToken) (*tokens.Identity, error) {
	var claims map[string]interface{}
	if err := t.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", tokens.ErrMalformed, err)
	}
	id := tokens.IdentityFromClaims(claims)
	if id.Subject == "" {
		return nil, fmt.Errorf("%w: token carries neither sub nor email", tokens.ErrMalformed)
	}
	return id, nil
}
