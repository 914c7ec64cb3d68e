package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/go-authgate/order-console/session"
)

// Auth calls the endpoints that work without an access token. It must not
// go through a session.Transport: the coordinator renews through it.
type Auth struct {
	r *requester
}

// NewAuth creates an Auth client for the backend at baseURL.
func NewAuth(baseURL string, opts ...Option) (*Auth, error) {
	r, err := newRequester(baseURL, authRequestTimeout, true, opts...)
	if err != nil {
		return nil, err
	}
	return &Auth{r: r}, nil
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Credentials identify a user at login and registration.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token pair. A rejection is returned as
// *oauth2.RetrieveError.
func (a *Auth) Login(ctx context.Context, creds Credentials) (session.Pair, error) {
	tok, err := a.token(ctx, "/auth/login", creds)
	if err != nil {
		return session.Pair{}, err
	}
	if tok.Refresh == "" {
		return session.Pair{}, errors.New("invalid token response: refresh is empty")
	}
	return session.Pair{Access: tok.Access, Refresh: tok.Refresh}, nil
}

// Renew implements session.Renewer. An empty Refresh in the result means the
// backend keeps the old refresh token.
func (a *Auth) Renew(ctx context.Context, refreshToken string) (session.Pair, error) {
	tok, err := a.token(ctx, "/auth/refresh", map[string]string{"refresh": refreshToken})
	if err != nil {
		return session.Pair{}, err
	}
	return session.Pair{Access: tok.Access, Refresh: tok.Refresh}, nil
}

func (a *Auth) token(ctx context.Context, path string, in any) (*tokenResponse, error) {
	status, body, err := a.r.send(ctx, http.MethodPost, path, nil, in)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		rerr := &oauth2.RetrieveError{
			Response: &http.Response{StatusCode: status},
			Body:     body,
		}
		var errResp struct {
			Detail string `json:"detail"`
			Code   string `json:"code"`
		}
		if json.Unmarshal(body, &errResp) == nil {
			rerr.ErrorCode = errResp.Code
			rerr.ErrorDescription = errResp.Detail
		}
		return nil, rerr
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.Access == "" {
		return nil, errors.New("invalid token response: access is empty")
	}
	return &tok, nil
}

// Register creates an account.
func (a *Auth) Register(ctx context.Context, creds Credentials) (*User, error) {
	var u User
	if err := a.r.do(ctx, http.MethodPost, "/auth/register", nil, creds, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Activate sets the password of an account created by an administrator.
func (a *Auth) Activate(ctx context.Context, token, password string) error {
	path := "/auth/activate/" + url.PathEscape(token)
	return a.r.do(ctx, http.MethodPost, path, nil, map[string]string{"password": password}, nil)
}

// SendRecovery asks the backend for a password recovery link.
func (a *Auth) SendRecovery(ctx context.Context, email string) (string, error) {
	var out struct {
		RecoveryLink string `json:"recovery_link"`
	}
	if err := a.r.do(ctx, http.MethodPost, "/auth/recovery", nil, map[string]string{"email": email}, &out); err != nil {
		return "", err
	}
	return out.RecoveryLink, nil
}

// ResetPassword sets a new password using a recovery token.
func (a *Auth) ResetPassword(ctx context.Context, token, password string) error {
	path := "/auth/recovery/" + url.PathEscape(token)
	return a.r.do(ctx, http.MethodPost, path, nil, map[string]string{"password": password}, nil)
}

// Me returns the logged-in user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.r.do(ctx, http.MethodGet, "/auth/me", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateManager creates an inactive manager account.
func (c *Client) CreateManager(ctx context.Context, m ManagerRequest) (*User, error) {
	var u User
	if err := c.r.do(ctx, http.MethodPost, "/auth/create-manager", nil, m, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SendActivation returns an activation link for a manager account.
func (c *Client) SendActivation(ctx context.Context, userID int) (string, error) {
	var out struct {
		ActivationLink string `json:"activation_link"`
	}
	in := map[string]int{"user_id": userID}
	if err := c.r.do(ctx, http.MethodPost, "/auth/send-activation", nil, in, &out); err != nil {
		return "", err
	}
	return out.ActivationLink, nil
}
