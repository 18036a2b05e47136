package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aarambh-client/internal/config"
	"aarambh-client/internal/logger"
	"aarambh-client/internal/model"
	"aarambh-client/internal/session"
	"aarambh-client/pkg/errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const noTokenMessage = "No authentication token found"

// Client talks to the LMS backend. Every JSON response is unwrapped from
// the {success, message, data, error} envelope, classified on failure and
// validated before it is returned.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
	auth       *Authenticator
	validate   *validator.Validate
	log        zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(cfg *config.Config, sess *session.Session, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.Backend.BaseURL, "/") + "/api",
		// Zero by default: uploads have no client-side timeout.
		httpClient: &http.Client{Timeout: cfg.Backend.Timeout},
		session:    sess,
		validate:   validator.New(),
		log:        logger.For("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.auth = NewAuthenticator(sess, cfg.Backend.Email, cfg.Backend.Password, c.login)
	return c
}

func (c *Client) Session() *session.Session {
	return c.session
}

// CallOption adjusts an outgoing request.
type CallOption func(*http.Request)

// WithIdempotencyKey lets the backend collapse repeated submissions.
func WithIdempotencyKey(key string) CallOption {
	return func(r *http.Request) {
		if key != "" {
			r.Header.Set("Idempotency-Key", key)
		}
	}
}

// bodyFunc produces a fresh request body for every attempt, so a request
// can be replayed after a token refresh.
type bodyFunc func() (io.Reader, string, error)

func jsonBody(v interface{}) (bodyFunc, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return func() (io.Reader, string, error) {
		return bytes.NewReader(data), "application/json", nil
	}, nil
}

type call struct {
	method string
	path   string
	body   bodyFunc
	auth   bool
	opts   []CallOption
}

// getJSON, postJSON: shorthands for authenticated JSON calls.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, call{method: http.MethodGet, path: path, auth: true}, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}, opts ...CallOption) error {
	body, err := jsonBody(in)
	if err != nil {
		return err
	}
	return c.do(ctx, call{method: http.MethodPost, path: path, body: body, auth: true, opts: opts}, out)
}

// do sends the call and decodes the envelope's data into out. An
// unauthorized response triggers one token refresh and one replay.
func (c *Client) do(ctx context.Context, cl call, out interface{}) error {
	token := ""
	if cl.auth {
		var err error
		token, err = c.auth.Token(ctx)
		if err != nil {
			return &errors.APIError{Kind: errors.KindUnauthorized, Message: noTokenMessage, Err: err}
		}
	}

	env, err := c.send(ctx, cl, token)
	if cl.auth && errors.KindOf(err) == errors.KindUnauthorized {
		c.log.Debug().Str("path", cl.path).Msg("Token might be expired, attempting to refresh")
		fresh, rerr := c.auth.Refresh(ctx, token)
		if rerr != nil {
			c.log.Debug().Err(rerr).Msg("Token refresh failed, returning original error")
			return err
		}
		env, err = c.send(ctx, cl, fresh)
	}
	if err != nil {
		return err
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &errors.APIError{
			Kind:    errors.KindGeneric,
			Message: "Invalid response from server",
			Err:     fmt.Errorf("%w: %v", errors.ErrSchemaValidation, err),
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, cl call, token string) (*model.Envelope, error) {
	var (
		body        io.Reader
		contentType string
	)
	if cl.body != nil {
		var err error
		body, contentType, err = cl.body()
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		if rc, ok := body.(io.Closer); ok {
			rc.Close()
		}
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, opt := range cl.opts {
		opt(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewNetworkError(err, errors.NetworkFailure)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetworkError(err, errors.NetworkFailure)
	}

	c.log.Debug().
		Str("method", cl.method).
		Str("path", cl.path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("API response")

	return decodeEnvelope(resp.StatusCode, raw)
}

// decodeEnvelope turns a raw response into an envelope or a classified
// error. The message chain is message, then error, then a status line.
func decodeEnvelope(status int, raw []byte) (*model.Envelope, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, &errors.APIError{
			Kind:    errors.Classify(status, ""),
			Status:  status,
			Message: fmt.Sprintf("Empty response from server (%d)", status),
			Err:     errors.ErrEmptyResponse,
		}
	}

	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Rate limiters answer in plain text.
		if isRateLimited(status, text) {
			return nil, &errors.APIError{Kind: errors.KindRateLimit, Status: status, Message: errors.RateLimitMessage}
		}
		return nil, errors.NewAPIError(status, text)
	}

	if status < 200 || status >= 300 {
		return nil, errors.NewAPIError(status, envelopeMessage(&env, fmt.Sprintf("API request failed with status %d", status)))
	}
	if !env.Success {
		return nil, errors.NewAPIError(status, envelopeMessage(&env, "Request failed"))
	}
	return &env, nil
}

func envelopeMessage(env *model.Envelope, fallback string) string {
	if env.Message != "" {
		return env.Message
	}
	if env.Error != "" {
		return env.Error
	}
	return fallback
}

func isRateLimited(status int, text string) bool {
	if strings.Contains(text, "Too many requests") || strings.Contains(text, "rate limit") {
		return true
	}
	return status == http.StatusTooManyRequests
}

// check validates a decoded result at the client boundary.
func (c *Client) check(v interface{}) error {
	if err := c.validate.Struct(v); err != nil {
		return &errors.APIError{
			Kind:    errors.KindGeneric,
			Message: "Invalid response from server",
			Err:     fmt.Errorf("%w: %v", errors.ErrSchemaValidation, err),
		}
	}
	return nil
}

// checkInput validates a request before anything is sent.
func (c *Client) checkInput(v interface{}) error {
	if err := c.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.ValidationError{
				Field:   fe.Field(),
				Value:   fe.Value(),
				Message: fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag()),
			}
		}
		return errors.ValidationError{Message: err.Error()}
	}
	return nil
}
