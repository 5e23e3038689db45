// Package client calls the telecare REST API. Every call returns a
// result.Result; transport and server failures never escape as panics or
// second error values.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/result"
	"github.com/hackgods/telecare/internal/session"
)

type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
)

// Notifier is the toast sink of the UI.
type Notifier interface {
	Toast(kind ToastKind, message string)
}

type NopNotifier struct{}

func (NopNotifier) Toast(ToastKind, string) {}

// ValidationError is raised before a request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type Client struct {
	baseURL  string
	http     *http.Client
	session  *session.Session
	notifier Notifier
	log      zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, sess *session.Session, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		session:  sess,
		notifier: NopNotifier{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notifier returns the toast sink the client reports validation failures to.
func (c *Client) Notifier() Notifier {
	return c.notifier
}

// invalid reports a validation failure through the toast sink.
func invalid[T any](c *Client, field, msg string) result.Result[T] {
	c.notifier.Toast(ToastError, msg)
	return result.Fail[T]((&ValidationError{Field: field, Message: msg}).Error())
}

type call struct {
	method string
	path   string
	query  url.Values
	body   any
	admin  bool
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	var body io.Reader
	if cl.body != nil {
		raw, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return nil, err
	}
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token := c.session.Token()
	if cl.admin {
		token = c.session.AdminToken()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func do[T any](ctx context.Context, c *Client, cl call) result.Result[T] {
	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return result.Fail[T](err.Error())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", cl.method).Str("path", cl.path).Msg("request failed")
		return result.Fail[T](err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return result.Fail[T]("read response: " + err.Error())
	}

	c.log.Debug().
		Str("method", cl.method).
		Str("path", cl.path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api call")

	r := result.Decode[T](raw)
	if r.Success && resp.StatusCode >= http.StatusBadRequest {
		return result.Fail[T](resp.Status)
	}
	return r
}

// raw fetches a non-envelope body such as a PDF. Error bodies are still envelopes.
func (c *Client) raw(ctx context.Context, cl call) result.Result[[]byte] {
	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return result.Fail[[]byte](err.Error())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return result.Fail[[]byte](err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result.Fail[[]byte]("read response: " + err.Error())
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return result.Decode[[]byte](body)
	}
	return result.Ok(body)
}
