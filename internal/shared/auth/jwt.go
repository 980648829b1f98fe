package auth

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// FirebaseJWKSURL publishes the keys Firebase Authentication signs ID tokens with.
const FirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// JWTVerifier validates bearer tokens locally, either against a remote JWKS
// (RS256, any OIDC issuer) or against a shared HMAC secret (HS256, local development).
type JWTVerifier struct {
	keyFunc  jwt.Keyfunc
	methods  []string
	issuer   string
	audience string
	jwks     *keyfunc.JWKS
	// refreshFailedAt is the unix time of the last failed JWKS refresh, 0 if none.
	refreshFailedAt atomic.Int64
}

// keyOutageWindow is how long after a failed JWKS refresh an unknown key id
// is blamed on the key endpoint rather than on the token.
const keyOutageWindow = 5 * time.Minute

// NewHMACVerifier returns a verifier for HS256 tokens signed with secret.
// Empty issuer or audience disables the matching check.
func NewHMACVerifier(secret, issuer, audience string) *JWTVerifier {
	key := []byte(secret)
	return &JWTVerifier{
		keyFunc:  func(*jwt.Token) (interface{}, error) { return key, nil },
		methods:  []string{jwt.SigningMethodHS256.Alg()},
		issuer:   issuer,
		audience: audience,
	}
}

// NewJWKSVerifier fetches the key set at jwksURL and keeps it refreshed in the background.
func NewJWKSVerifier(jwksURL, issuer, audience string, log logrus.FieldLogger) (*JWTVerifier, error) {
	v := &JWTVerifier{
		methods:  []string{jwt.SigningMethodRS256.Alg()},
		issuer:   issuer,
		audience: audience,
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  keyOutageWindow,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			v.refreshFailedAt.Store(time.Now().Unix())
			log.WithError(err).WithField("jwks_url", jwksURL).Warn("JWKS refresh failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load JWKS from %s: %v", ErrProviderUnavailable, jwksURL, err)
	}

	v.jwks = jwks
	v.keyFunc = jwks.Keyfunc
	return v, nil
}

// Verify validates signature, expiry, issuer and audience and returns the caller identity.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, v.keyFunc, jwt.WithValidMethods(v.methods)); err != nil {
		if v.keysUnavailable(err) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// jwt v4 only checks exp when the claim is present.
	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return nil, fmt.Errorf("%w: missing or expired exp claim", ErrInvalidToken)
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrInvalidToken)
	}

	return identityFromClaims(claims)
}

// keysUnavailable reports whether err comes from an unknown key id while the
// key endpoint has recently been failing.
func (v *JWTVerifier) keysUnavailable(err error) bool {
	if !errors.Is(err, keyfunc.ErrKIDNotFound) {
		return false
	}
	failedAt := v.refreshFailedAt.Load()
	return failedAt != 0 && time.Since(time.Unix(failedAt, 0)) < keyOutageWindow
}

// Close stops the background JWKS refresh, if any.
func (v *JWTVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// IssueHMACToken signs a development token accepted by NewHMACVerifier.
func IssueHMACToken(secret, email, issuer, audience string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	if email == "" {
		return "", errors.New("email is required")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   email,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if audience != "" {
		claims["aud"] = audience
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
