package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"golang.org/x/oauth2"
)

func newTestAuth(t *testing.T, handler http.Handler) *Auth {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := NewAuth(server.URL)
	if err != nil {
		t.Fatalf("NewAuth() error = %v", err)
	}
	return a
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		response     map[string]any
		wantErr      bool
		wantRetrieve bool
	}{
		{
			name:     "success",
			status:   http.StatusOK,
			response: map[string]any{"access": "access-token", "refresh": "refresh-token"},
		},
		{
			name:         "wrong password",
			status:       http.StatusUnauthorized,
			response:     map[string]any{"detail": "No active account found with the given credentials"},
			wantErr:      true,
			wantRetrieve: true,
		},
		{
			name:     "missing refresh token",
			status:   http.StatusOK,
			response: map[string]any{"access": "access-token"},
			wantErr:  true,
		},
		{
			name:     "missing access token",
			status:   http.StatusOK,
			response: map[string]any{"refresh": "refresh-token"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAuth(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
					http.NotFound(w, r)
					return
				}
				var creds Credentials
				if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email == "" {
					http.Error(w, "bad body", http.StatusBadRequest)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(tt.response)
			}))

			pair, err := a.Login(context.Background(), Credentials{Email: "admin@gmail.com", Password: "admin"})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Login() expected error but got nil")
				}
				if !tt.wantRetrieve {
					return
				}
				var rerr *oauth2.RetrieveError
				if !errors.As(err, &rerr) {
					t.Fatalf("Expected *oauth2.RetrieveError, got %T: %v", err, err)
				}
				if rerr.ErrorDescription == "" {
					t.Errorf("Expected the backend detail as error description")
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() unexpected error = %v", err)
			}
			if pair.Access != "access-token" || pair.Refresh != "refresh-token" {
				t.Errorf("Login() = %+v", pair)
			}
		})
	}
}

func TestRenew_RotationModes(t *testing.T) {
	tests := []struct {
		name            string
		responseRefresh string
	}{
		{name: "rotation mode - server returns new refresh token", responseRefresh: "new-refresh"},
		{name: "fixed mode - server doesn't return refresh token", responseRefresh: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAuth(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]string
				json.NewDecoder(r.Body).Decode(&body)
				if r.URL.Path != "/auth/refresh" || body["refresh"] != "old-refresh" {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				resp := map[string]string{"access": "new-access"}
				if tt.responseRefresh != "" {
					resp["refresh"] = tt.responseRefresh
				}
				json.NewEncoder(w).Encode(resp)
			}))

			pair, err := a.Renew(context.Background(), "old-refresh")
			if err != nil {
				t.Fatalf("Renew() error = %v", err)
			}
			if pair.Access != "new-access" {
				t.Errorf("Access = %q, want new-access", pair.Access)
			}
			if pair.Refresh != tt.responseRefresh {
				t.Errorf("Refresh = %q, want %q", pair.Refresh, tt.responseRefresh)
			}
		})
	}
}

func TestRenew_Rejected(t *testing.T) {
	a := newTestAuth(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Token is invalid or expired","code":"token_not_valid"}`))
	}))

	_, err := a.Renew(context.Background(), "revoked")
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected *oauth2.RetrieveError, got %v", err)
	}
	if rerr.ErrorCode != "token_not_valid" {
		t.Errorf("ErrorCode = %q, want token_not_valid", rerr.ErrorCode)
	}
	if rerr.Response.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", rerr.Response.StatusCode)
	}
}

func TestLogin_WithRetry(t *testing.T) {
	var attempts atomic.Int32
	a := newTestAuth(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access": "a", "refresh": "r"})
	}))

	if _, err := a.Login(context.Background(), Credentials{Email: "e", Password: "p"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if n := attempts.Load(); n != 2 {
		t.Errorf("Expected 2 attempts (1 retry), got %d", n)
	}
}

func TestAccountEndpoints(t *testing.T) {
	var seen []string
	a := newTestAuth(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		seen = append(seen, r.Method+" "+r.URL.Path)

		switch r.URL.Path {
		case "/auth/recovery":
			json.NewEncoder(w).Encode(map[string]string{"recovery_link": "http://console/recovery/abc"})
		case "/auth/recovery/abc", "/auth/activate/xyz":
			if body["password"] == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/auth/register":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"id": 7, "email": body["email"]})
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	link, err := a.SendRecovery(ctx, "user@example.com")
	if err != nil || link != "http://console/recovery/abc" {
		t.Errorf("SendRecovery() = %q, %v", link, err)
	}
	if err := a.ResetPassword(ctx, "abc", "new-password"); err != nil {
		t.Errorf("ResetPassword() error = %v", err)
	}
	if err := a.Activate(ctx, "xyz", "first-password"); err != nil {
		t.Errorf("Activate() error = %v", err)
	}
	u, err := a.Register(ctx, Credentials{Email: "new@example.com", Password: "p"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if u.ID != 7 || u.Email != "new@example.com" {
		t.Errorf("Register() = %+v", u)
	}

	if err := a.Activate(ctx, "unknown", "p"); err == nil {
		t.Errorf("Expected error for unknown activation token")
	}
	if len(seen) != 5 {
		t.Errorf("Expected 5 requests, got %v", seen)
	}
}
