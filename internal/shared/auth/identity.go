package auth

import (
	"context"
	"errors"
)

var (
	// ErrInvalidToken covers expired, malformed and badly signed tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrMissingEmail is returned for valid tokens that carry no email claim.
	ErrMissingEmail = errors.New("token has no email claim")
	// ErrProviderUnavailable means the token could not be checked because the
	// identity provider or its signing keys were unreachable.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UID    string
	Email  string
	Claims map[string]any
}

// Verifier turns a raw bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// identityFromClaims builds an Identity from decoded token claims.
func identityFromClaims(claims map[string]any) (*Identity, error) {
	email, _ := claims["email"].(string)
	if email == "" {
		return nil, ErrMissingEmail
	}

	uid, _ := claims["sub"].(string)
	if uid == "" {
		uid, _ = claims["user_id"].(string)
	}

	return &Identity{UID: uid, Email: email, Claims: claims}, nil
}

// IdentityFromClaims is exported for verifiers living outside this package.
func IdentityFromClaims(uid string, claims map[string]any) (*Identity, error) {
	identity, err := identityFromClaims(claims)
	if err != nil {
		return nil, err
	}
	if uid != "" {
		identity.UID = uid
	}
	return identity, nil
}
