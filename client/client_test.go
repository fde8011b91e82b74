package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"tasklens/session"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *session.Session) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sess := session.New()
	sess.Set(session.Snapshot{Token: "test-token", UserID: "u1"})
	return New(Config{BaseURL: srv.URL, Session: sess}), sess
}

func TestListTasksDecodesEnvelope(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tasks" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"data":[{"id":"t1","title":"write tests","status":"pending","priority":"high","createdAt":"2024-06-01T10:00:00Z"}]}`)
	}))

	tasks, err := c.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" || tasks[0].Priority != "high" {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	c, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"success":false,"message":"token expired"}`)
	}))

	_, err := c.ListTasks(context.Background())
	if !IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "token expired" {
		t.Fatalf("expected service message carried, got %v", err)
	}
	if sess.Token() != "" {
		t.Fatalf("expected session cleared after 401")
	}
}

func TestValidationMessagePassthrough(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"success":false,"message":"title is required"}`)
	}))

	_, err := c.CreateTask(context.Background(), TaskDraft{})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "title is required" {
		t.Fatalf("expected verbatim message, got %v", err)
	}
}

func TestValidationFallbackMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	err := c.DeleteTask(context.Background(), "t1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != genericValidationMessage {
		t.Fatalf("expected fallback message, got %v", err)
	}
}

func TestServerErrorRetriedOnce(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	}))

	if _, err := c.ListTasks(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestServerErrorGivesUpAfterSecondFailure(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.ListTasks(context.Background())
	if !IsServer(err) {
		t.Fatalf("expected server error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", got)
	}
}

// flakyTransport fails the first n round trips, then delegates.
type flakyTransport struct {
	failures int32
	inner    http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, errors.New("connection refused")
	}
	return f.inner.RoundTrip(req)
}

func TestNetworkErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	}))
	t.Cleanup(srv.Close)

	sess := session.New()
	c := New(Config{
		BaseURL:    srv.URL,
		Session:    sess,
		HTTPClient: &http.Client{Transport: &flakyTransport{failures: 2, inner: http.DefaultTransport}},
	})

	if _, err := c.ListTasks(context.Background()); err != nil {
		t.Fatalf("expected third attempt to succeed, got %v", err)
	}
}

func TestNetworkErrorExhaustsRetries(t *testing.T) {
	sess := session.New()
	c := New(Config{
		BaseURL:    "http://127.0.0.1:1",
		Session:    sess,
		HTTPClient: &http.Client{Transport: &flakyTransport{failures: 1 << 20}},
	})

	_, err := c.ListTasks(context.Background())
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != unreachableMessage {
		t.Fatalf("expected unreachable message, got %v", err)
	}
}

func TestOpenBreakerShortCircuits(t *testing.T) {
	transport := &flakyTransport{failures: 1 << 20}
	sess := session.New()
	c := New(Config{
		BaseURL:    "http://127.0.0.1:1",
		Session:    sess,
		HTTPClient: &http.Client{Transport: transport},
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "test",
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 1
			},
		}),
	})

	if _, err := c.ListTasks(context.Background()); !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	before := atomic.LoadInt32(&transport.failures)

	if _, err := c.ListTasks(context.Background()); !IsNetwork(err) {
		t.Fatalf("expected breaker-open network error, got %v", err)
	}
	if after := atomic.LoadInt32(&transport.failures); after != before {
		t.Fatalf("expected open breaker to skip the transport")
	}
}

func TestCreateTaskIdempotencyKeyStableAcrossRetries(t *testing.T) {
	var keys []string
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("X-Idempotency-Key"))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"success":true,"data":{"id":"t9","title":"new"}}`)
	}))

	task, err := c.CreateTask(context.Background(), TaskDraft{Title: "new"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.ID != "t9" {
		t.Fatalf("unexpected task %#v", task)
	}
	if len(keys) != 2 || keys[0] == "" || keys[0] != keys[1] {
		t.Fatalf("expected one stable idempotency key, got %v", keys)
	}
}

func TestLoginStoresSession(t *testing.T) {
	c, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"success":true,"data":{"token":"fresh","id":"u2","name":"Grace","email":"grace@example.com"}}`)
	}))

	snap, err := c.Login(context.Background(), "grace@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if snap.Token != "fresh" || snap.Name != "Grace" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if sess.Token() != "fresh" {
		t.Fatalf("expected session updated, got %q", sess.Token())
	}
}

func TestRequestsAreTraced(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	}))

	if _, err := c.ListTasks(context.Background()); err != nil {
		t.Fatalf("list tasks: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "client.tasks.list" {
		t.Fatalf("unexpected span name %q", spans[0].Name)
	}
}
