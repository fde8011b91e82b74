package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tasklens/session"
)

const (
	// DefaultTimeout is the transport-level deadline for a single request.
	DefaultTimeout = 10 * time.Second

	tracerName = "tasklens/client"

	genericValidationMessage = "request rejected by the service"
	genericServerMessage     = "the service failed to process the request"
	unreachableMessage       = "service unreachable"
)

// envelope is the one wire contract for every response body:
// { success, data, message }. Normalization happens here and nowhere
// downstream.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// Config carries the Client dependencies.
type Config struct {
	BaseURL string
	Session *session.Session
	Logger  *log.Logger

	// HTTPClient overrides the default 10s-timeout client, mainly for tests.
	HTTPClient *http.Client
	// Breaker overrides the default circuit breaker.
	Breaker *gobreaker.CircuitBreaker
}

// Client talks to the remote task/notification service. Every call attaches
// the session's bearer token, normalizes the response envelope and maps
// failures onto the APIError taxonomy.
type Client struct {
	baseURL string
	http    *http.Client
	sess    *session.Session
	log     *log.Logger
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
}

// New creates a Client for the service at baseURL.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "task-service",
			MaxRequests: 1,
			Timeout:     5 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(log.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("circuit breaker state change")
			},
		})
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		sess:    cfg.Session,
		log:     logger,
		breaker: breaker,
		tracer:  otel.Tracer(tracerName),
	}
}

// Session exposes the credential store the client writes through.
func (c *Client) Session() *session.Session { return c.sess }

type callOptions struct {
	idempotencyKey string
}

// do performs one logical service call: marshal, send with the retry policy,
// normalize the envelope into out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any, opts callOptions) (err error) {
	ctx, span := c.tracer.Start(ctx, "client."+op, trace.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var payload []byte
	if body != nil {
		payload, err = sonic.ConfigStd.Marshal(body)
		if err != nil {
			return &APIError{Kind: KindValidation, Message: "unencodable request body", cause: err}
		}
	}

	var networkRetries, serverRetries int
	for {
		status, respBody, attemptErr := c.attempt(ctx, method, path, payload, opts)
		if attemptErr == nil {
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			return c.decode(status, respBody, out)
		}

		var apiErr *APIError
		if errors.As(attemptErr, &apiErr) {
			switch {
			case apiErr.Kind == KindNetwork && !breakerRefused(attemptErr) && networkRetries < 2:
				networkRetries++
				c.log.WithFields(log.Fields{"op": op, "attempt": networkRetries + 1}).Debug("retrying after network error")
				continue
			case apiErr.Kind == KindServer && serverRetries < 1:
				serverRetries++
				c.log.WithFields(log.Fields{"op": op}).Debug("retrying after server error")
				continue
			}
			if apiErr.Status > 0 {
				span.SetAttributes(attribute.Int("http.response.status_code", apiErr.Status))
			}
		}
		return attemptErr
	}
}

// attempt sends one request through the circuit breaker. Transport failures
// and 5xx answers count against the breaker; 4xx answers do not.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, opts callOptions) (int, []byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, &APIError{Kind: KindNetwork, Message: unreachableMessage, cause: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.sess != nil {
			if token := c.sess.Token(); token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}
		if opts.idempotencyKey != "" {
			req.Header.Set("X-Idempotency-Key", opts.idempotencyKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &APIError{Kind: KindNetwork, Message: unreachableMessage, cause: err}
		}
		defer resp.Body.Close()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &APIError{Kind: KindNetwork, Message: unreachableMessage, cause: err}
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &APIError{
				Kind:    KindServer,
				Status:  resp.StatusCode,
				Message: genericServerMessage,
			}
		}
		return attemptResult{status: resp.StatusCode, body: respBody}, nil
	})
	if err != nil {
		if breakerRefused(err) {
			return 0, nil, &APIError{Kind: KindNetwork, Message: unreachableMessage, cause: err}
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return 0, nil, apiErr
		}
		return 0, nil, &APIError{Kind: KindNetwork, Message: unreachableMessage, cause: err}
	}
	res := result.(attemptResult)
	return res.status, res.body, nil
}

type attemptResult struct {
	status int
	body   []byte
}

func breakerRefused(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// decode maps the response onto the error taxonomy and unmarshals the data
// payload for 2xx envelopes.
func (c *Client) decode(status int, body []byte, out any) error {
	var env envelope
	if len(body) > 0 {
		// A malformed body on an error status must not mask the status
		// itself, so the decode error is only fatal for success responses.
		if err := sonic.ConfigStd.Unmarshal(body, &env); err != nil && status < http.StatusBadRequest {
			return &APIError{Kind: KindServer, Status: status, Message: genericServerMessage, cause: err}
		}
	}

	switch {
	case status == http.StatusUnauthorized:
		if c.sess != nil {
			c.sess.Clear()
		}
		return &APIError{Kind: KindAuth, Status: status, Message: messageOr(env.Message, "session is no longer valid")}
	case status >= http.StatusBadRequest:
		return &APIError{Kind: KindValidation, Status: status, Message: messageOr(env.Message, genericValidationMessage)}
	}

	if !env.Success && env.Message != "" {
		return &APIError{Kind: KindValidation, Status: status, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := sonic.ConfigStd.Unmarshal(env.Data, out); err != nil {
			return &APIError{Kind: KindServer, Status: status, Message: genericServerMessage, cause: err}
		}
	}
	return nil
}

func messageOr(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}
