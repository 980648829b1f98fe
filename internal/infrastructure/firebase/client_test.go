package firebase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"

	"fintrack/internal/shared/auth"
)

type mockTokenVerifier struct {
	VerifyIDTokenFunc func(ctx context.Context, idToken string) (*fbauth.Token, error)
}

func (m *mockTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error) {
	return m.VerifyIDTokenFunc(ctx, idToken)
}

var errFetchKeys = errors.New("failed to fetch public keys: dial tcp: connection refused")

func TestClient_Verify(t *testing.T) {
	orig := certificateFetchFailed
	certificateFetchFailed = func(err error) bool { return errors.Is(err, errFetchKeys) }
	t.Cleanup(func() { certificateFetchFailed = orig })

	tests := []struct {
		name      string
		token     *fbauth.Token
		verifyErr error
		wantErr   error
		wantEmail string
	}{
		{
			name: "Valid token",
			token: &fbauth.Token{
				UID:    "uid-1",
				Claims: map[string]interface{}{"email": "a@x.com"},
			},
			wantEmail: "a@x.com",
		},
		{
			name:      "Rejected by Firebase",
			verifyErr: errors.New("ID token has expired"),
			wantErr:   auth.ErrInvalidToken,
		},
		{
			name:      "Signing certificates unreachable",
			verifyErr: errFetchKeys,
			wantErr:   auth.ErrProviderUnavailable,
		},
		{
			name:      "Verification timed out",
			verifyErr: fmt.Errorf("failed to fetch public keys: %w", context.DeadlineExceeded),
			wantErr:   auth.ErrProviderUnavailable,
		},
		{
			name: "Anonymous user without email",
			token: &fbauth.Token{
				UID:    "anon",
				Claims: map[string]interface{}{},
			},
			wantErr: auth.ErrMissingEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{authClient: &mockTokenVerifier{
				VerifyIDTokenFunc: func(ctx context.Context, idToken string) (*fbauth.Token, error) {
					return tt.token, tt.verifyErr
				},
			}}

			identity, err := c.Verify(context.Background(), "raw-token")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				if tt.wantErr != auth.ErrInvalidToken && errors.Is(err, auth.ErrInvalidToken) {
					t.Errorf("Verify() error = %v must not be reported as an invalid token", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() unexpected error: %v", err)
			}
			if identity.Email != tt.wantEmail {
				t.Errorf("Email = %q, want %q", identity.Email, tt.wantEmail)
			}
			if identity.UID != tt.token.UID {
				t.Errorf("UID = %q, want %q", identity.UID, tt.token.UID)
			}
		})
	}
}
