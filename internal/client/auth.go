package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"aarambh-client/internal/logger"
	"aarambh-client/internal/model"
	"aarambh-client/internal/session"
	"aarambh-client/pkg/errors"

	"github.com/rs/zerolog"
)

type loginFunc func(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error)

// Authenticator hands out the session's bearer token and, when credentials
// are configured, signs in again once the token is rejected or expired.
type Authenticator struct {
	session  *session.Session
	email    string
	password string
	login    loginFunc
	mu       sync.Mutex
	log      zerolog.Logger
}

func NewAuthenticator(sess *session.Session, email, password string, login loginFunc) *Authenticator {
	return &Authenticator{
		session:  sess,
		email:    email,
		password: password,
		login:    login,
		log:      logger.For("auth"),
	}
}

func (a *Authenticator) Token(ctx context.Context) (string, error) {
	if a.session.Valid() {
		return a.session.Token(), nil
	}
	return a.Refresh(ctx, a.session.Token())
}

// Refresh signs in again unless another caller already replaced stale.
func (a *Authenticator) Refresh(ctx context.Context, stale string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Double check after acquiring the lock
	if tok := a.session.Token(); tok != "" && tok != stale && a.session.Valid() {
		return tok, nil
	}

	if a.email == "" || a.password == "" {
		return "", errors.ErrNotAuthenticated
	}

	a.log.Debug().Msg("Refreshing authentication token")

	resp, err := a.login(ctx, model.LoginRequest{Email: a.email, Password: a.password})
	if err != nil {
		return "", fmt.Errorf("sign-in failed: %w", err)
	}
	if err := a.session.Set(ctx, resp.Token, resp.User); err != nil {
		return "", err
	}

	a.log.Debug().Str("user_id", resp.User.ID).Msg("Token refreshed successfully")
	return resp.Token, nil
}

// Login signs in and stores the token in the session.
func (c *Client) Login(ctx context.Context, req model.LoginRequest) (*model.User, error) {
	resp, err := c.login(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.session.Set(ctx, resp.Token, resp.User); err != nil {
		return nil, err
	}
	c.log.Info().Str("user_id", resp.User.ID).Str("role", string(resp.User.Role)).Msg("Signed in")
	return &resp.User, nil
}

func (c *Client) login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	if err := c.checkInput(req); err != nil {
		return nil, err
	}
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}

	var resp model.LoginResponse
	if err := c.do(ctx, call{method: http.MethodPost, path: "/auth/login", body: body}, &resp); err != nil {
		return nil, err
	}
	if err := c.check(resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.getJSON(ctx, "/auth/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout tells the backend and clears the session. The session is cleared
// even when the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	var remoteErr error
	if c.session.Token() != "" {
		remoteErr = c.do(ctx, call{method: http.MethodPost, path: "/auth/logout", auth: true}, nil)
		if remoteErr != nil {
			c.log.Warn().Err(remoteErr).Msg("Backend logout failed, clearing local session anyway")
		}
	}
	if err := c.session.Clear(ctx); err != nil {
		return err
	}
	return nil
}
