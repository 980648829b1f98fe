package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"fintrack/internal/shared/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type mockVerifier struct {
	VerifyFunc func(ctx context.Context, token string) (*auth.Identity, error)
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	return m.VerifyFunc(ctx, token)
}

func TestAuth(t *testing.T) {
	verifier := auth.NewHMACVerifier(testSecret, "fintrack", "fintrack-api")
	validToken, err := auth.IssueHMACToken(testSecret, "test@example.com", "fintrack", "fintrack-api", time.Hour)
	if err != nil {
		t.Fatalf("IssueHMACToken() failed: %v", err)
	}
	expiredToken, err := auth.IssueHMACToken(testSecret, "test@example.com", "fintrack", "fintrack-api", -time.Hour)
	if err != nil {
		t.Fatalf("IssueHMACToken() failed: %v", err)
	}

	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedUser   bool
		expectedMsg    string
	}{
		{
			name:           "Valid Token in Header",
			header:         "Bearer " + validToken,
			expectedStatus: http.StatusOK,
			expectedUser:   true,
		},
		{
			name:           "Lower-case scheme",
			header:         "bearer " + validToken,
			expectedStatus: http.StatusOK,
			expectedUser:   true,
		},
		{
			name:           "No Token",
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "Authentication required",
		},
		{
			name:           "Missing scheme",
			header:         validToken,
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "Invalid authorization header format",
		},
		{
			name:           "Wrong scheme",
			header:         "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "Invalid authorization header format",
		},
		{
			name:           "Empty bearer",
			header:         "Bearer ",
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "Invalid authorization header format",
		},
		{
			name:           "Invalid Token",
			header:         "Bearer invalid",
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "Invalid or expired token",
		},
		{
			name:           "Expired Token",
			header:         "Bearer " + expiredToken,
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "Invalid or expired token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()

			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				email, ok := EmailFromContext(r.Context())
				if !tt.expectedUser {
					t.Error("next handler must not run for rejected requests")
				}
				if !ok || email != "test@example.com" {
					t.Errorf("email in context = %q, want test@example.com", email)
				}
				if identity, ok := IdentityFromContext(r.Context()); !ok || identity.Email != email {
					t.Errorf("identity in context = %+v", identity)
				}
				w.WriteHeader(http.StatusOK)
			})

			handler := Auth(verifier, logger)(nextHandler)

			req := httptest.NewRequest(http.MethodGet, "/my-transaction", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if tt.expectedMsg != "" {
				var body map[string]string
				if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
					t.Fatalf("error body is not JSON: %v", err)
				}
				if body["message"] != tt.expectedMsg {
					t.Errorf("message = %q, want %q", body["message"], tt.expectedMsg)
				}
			}
		})
	}
}

func TestAuth_NilVerifierFailsFast(t *testing.T) {
	logger, _ := test.NewNullLogger()
	handler := Auth(nil, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/my-transaction", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestAuth_VerifierErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "Rejected token", err: auth.ErrInvalidToken, wantStatus: http.StatusUnauthorized},
		{name: "No email claim", err: auth.ErrMissingEmail, wantStatus: http.StatusUnauthorized},
		{name: "Provider unreachable", err: errors.New("dial tcp: connection refused"), wantStatus: http.StatusServiceUnavailable},
		{name: "Signing keys unavailable", err: fmt.Errorf("%w: fetch failed", auth.ErrProviderUnavailable), wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			verifier := &mockVerifier{VerifyFunc: func(ctx context.Context, token string) (*auth.Identity, error) {
				return nil, tt.err
			}}

			handler := Auth(verifier, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("next handler must not run")
			}))

			req := httptest.NewRequest(http.MethodGet, "/my-transaction", nil)
			req.Header.Set("Authorization", "Bearer tok")
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if len(hook.Entries) != 1 {
				t.Errorf("logged %d entries, want the rejection reason logged once", len(hook.Entries))
			}
		})
	}
}
