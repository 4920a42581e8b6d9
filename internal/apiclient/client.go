// Package apiclient talks JSON to the user backend over fasthttp.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/config"
	"github.com/fastygo/portal/internal/metrics"
)

// Endpoint names used in logs, metrics and errors.
const (
	EndpointRegister = "register"
	EndpointLogin    = "login"
	EndpointMe       = "me"
	EndpointUpdate   = "update"
	EndpointDelete   = "delete"
	EndpointHealth   = "health"
)

type Option func(*Client)

// WithDial replaces the dialer, e.g. with an in-memory listener in tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) {
		c.http.Dial = dial
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client performs backend calls. Requests are never retried.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *fasthttp.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(cfg config.APIConfig, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: cfg.URL,
		timeout: cfg.Timeout,
		http: &fasthttp.Client{
			Name:                "portal",
			MaxConnsPerHost:     cfg.MaxConnsPerHost,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 90 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterUser creates the account for the identity behind token.
func (c *Client) RegisterUser(ctx context.Context, token string, user *domain.User) (*domain.User, error) {
	if user == nil {
		return nil, domain.ErrInvalidPayload
	}
	var out domain.User
	if err := c.call(ctx, EndpointRegister, http.MethodPost, "/users", token, user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges an identity token for the backend user.
func (c *Client) Login(ctx context.Context, token string) (*domain.User, error) {
	var out domain.User
	if err := c.call(ctx, EndpointLogin, http.MethodPost, "/auth/login", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me fetches the currently authenticated user.
func (c *Client) Me(ctx context.Context, token string) (*domain.User, error) {
	var out domain.User
	if err := c.call(ctx, EndpointMe, http.MethodGet, "/users/me", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateUser(ctx context.Context, token string, update domain.UserUpdate) (*domain.User, error) {
	var out domain.User
	if err := c.call(ctx, EndpointUpdate, http.MethodPatch, "/users", token, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, token string) error {
	return c.call(ctx, EndpointDelete, http.MethodDelete, "/users", token, nil, nil)
}

// Health probes the backend liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, EndpointHealth, http.MethodGet, "/health", "", nil, nil)
}

func (c *Client) call(ctx context.Context, endpoint, method, path, token string, in, out any) error {
	start := time.Now()
	err := c.exchange(ctx, endpoint, method, path, token, in, out)

	outcome := "ok"
	var apiErr *Error
	if errors.As(err, &apiErr) {
		outcome = string(apiErr.Kind)
	}
	c.metrics.ObserveAPI(endpoint, outcome, time.Since(start))

	if err != nil {
		c.logger.Warn("backend call failed",
			zap.String("endpoint", endpoint),
			zap.String("method", method),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
	}
	return err
}

func (c *Client) exchange(ctx context.Context, endpoint, method, path, token string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return &Error{Kind: KindDecode, Endpoint: endpoint, Err: err}
		}
	}

	status, body, err := c.roundTrip(ctx, method, path, token, payload)
	switch {
	case err != nil && ctx.Err() != nil:
		return &Error{Kind: KindCanceled, Endpoint: endpoint, Err: ctx.Err()}
	case err != nil:
		return &Error{Kind: KindNetwork, Endpoint: endpoint, Err: err}
	case status < 200 || status > 299:
		return &Error{Kind: KindStatus, Endpoint: endpoint, Status: status, Message: statusMessage(body)}
	case out == nil:
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindDecode, Endpoint: endpoint, Status: status, Err: err}
	}
	return nil
}

type response struct {
	status int
	body   []byte
	err    error
}

// roundTrip runs the request on its own goroutine so the caller can stop
// waiting when ctx ends. The goroutine owns the pooled request and response.
func (c *Client) roundTrip(ctx context.Context, method, path, token string, payload []byte) (int, []byte, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan response, 1)
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(c.baseURL + path)
		req.Header.SetMethod(method)
		req.Header.Set(fasthttp.HeaderAccept, "application/json")
		if token != "" {
			req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
		}
		if payload != nil {
			req.Header.SetContentType("application/json")
			req.SetBody(payload)
		}

		if err := c.http.DoDeadline(req, resp, deadline); err != nil {
			done <- response{err: err}
			return
		}
		done <- response{
			status: resp.StatusCode(),
			body:   append([]byte(nil), resp.Body()...),
		}
	}()

	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case r := <-done:
		return r.status, r.body, r.err
	}
}
