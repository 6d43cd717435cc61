// Package oidc verifies Keycloak bearer tokens for the write routes.
package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/nellyolofsson/wt2/pkg/middleware"
)

// Verifier checks tokens against the issuer's published keys.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the provider at issuer. Tokens must carry clientID
// in their audience.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return &Verifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// NewStaticVerifier verifies tokens with a fixed key set, without discovery.
func NewStaticVerifier(issuer, clientID string, keys oidc.KeySet) *Verifier {
	return &Verifier{verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID})}
}

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
