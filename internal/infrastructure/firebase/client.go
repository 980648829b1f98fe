package firebase

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"fintrack/internal/shared/auth"
)

// NewApp initializes the Firebase Admin SDK. An empty credentialsFile falls
// back to Application Default Credentials.
func NewApp(ctx context.Context, credentialsFile, projectID string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	return app, nil
}

// tokenVerifier is the part of the Firebase auth client the gate needs.
type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// Client implements auth.Verifier using Firebase Authentication ID tokens.
type Client struct {
	authClient tokenVerifier
}

// NewClient returns a verifier backed by app's Auth client.
func NewClient(ctx context.Context, app *firebase.App) (*Client, error) {
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}
	return &Client{authClient: authClient}, nil
}

// Verify checks the ID token's signature, expiry, issuer and audience with
// Firebase and returns the caller identity.
func (c *Client) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	decoded, err := c.authClient.VerifyIDToken(ctx, token)
	if err != nil {
		if isProviderOutage(err) {
			return nil, fmt.Errorf("%w: %v", auth.ErrProviderUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}
	return auth.IdentityFromClaims(decoded.UID, decoded.Claims)
}

// certificateFetchFailed is swapped in tests; the SDK's error type is internal.
var certificateFetchFailed = fbauth.IsCertificateFetchFailed

// isProviderOutage separates failures to reach Google from rejected tokens.
func isProviderOutage(err error) bool {
	return certificateFetchFailed(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// Firestore opens a Firestore client on the same Firebase project.
func Firestore(ctx context.Context, app *firebase.App) (*firestore.Client, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firestore client: %w", err)
	}
	return client, nil
}
