package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:        2 * time.Second,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
		Multiplier:     1,
		Threshold:      10,
		BreakerTimeout: time.Second,
	}
}

// TestBaseClient_GetWithRetry_RetriesServerErrors verifies that 5xx responses
// are retried and a later success is returned.
func TestBaseClient_GetWithRetry_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := NewBaseClient("test", testClientConfig(), zap.NewNop())

	body, err := c.GetWithRetry(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("GetWithRetry() error = %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("GetWithRetry() body = %q", body)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

// TestBaseClient_GetWithRetry_NoRetryOnClientError verifies that a 4xx other
// than 429 fails after one attempt with a StatusError.
func TestBaseClient_GetWithRetry_NoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewBaseClient("test", testClientConfig(), zap.NewNop())

	_, err := c.GetWithRetry(context.Background(), server.URL, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("GetWithRetry() error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, http.StatusBadRequest)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

// TestBaseClient_GetWithRetry_SendsHeaders verifies that caller headers reach the upstream.
func TestBaseClient_GetWithRetry_SendsHeaders(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewBaseClient("test", testClientConfig(), zap.NewNop())
	header := http.Header{}
	header.Set("Authorization", "Bearer abc")

	if _, err := c.GetWithRetry(context.Background(), server.URL, header); err != nil {
		t.Fatalf("GetWithRetry() error = %v", err)
	}
	if gotAuth != "Bearer abc" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer abc")
	}
}

// TestBaseClient_GetWithRetry_OpensBreaker verifies that repeated failures
// open the breaker and later calls are rejected without reaching the upstream.
func TestBaseClient_GetWithRetry_OpensBreaker(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testClientConfig()
	cfg.MaxRetries = 0
	cfg.Threshold = 3
	cfg.BreakerTimeout = time.Minute
	c := NewBaseClient("test", cfg, zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := c.GetWithRetry(context.Background(), server.URL, nil); err == nil {
			t.Fatalf("call %d: GetWithRetry() error = nil, want failure", i)
		}
	}

	_, err := c.GetWithRetry(context.Background(), server.URL, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("GetWithRetry() error = %v, want %v", err, gobreaker.ErrOpenState)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

// TestBaseClient_GetWithRetry_OpensBreakerAfterHealthyPeriod verifies that a
// long run of successes does not keep the breaker closed during an outage.
func TestBaseClient_GetWithRetry_OpensBreakerAfterHealthyPeriod(t *testing.T) {
	var failing atomic.Bool
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := testClientConfig()
	cfg.MaxRetries = 0
	cfg.Threshold = 3
	cfg.BreakerTimeout = time.Minute
	c := NewBaseClient("test", cfg, zap.NewNop())

	for i := 0; i < 100; i++ {
		if _, err := c.GetWithRetry(context.Background(), server.URL, nil); err != nil {
			t.Fatalf("call %d: GetWithRetry() error = %v", i, err)
		}
	}

	failing.Store(true)
	for i := 0; i < 3; i++ {
		if _, err := c.GetWithRetry(context.Background(), server.URL, nil); err == nil {
			t.Fatalf("failure %d: GetWithRetry() error = nil, want failure", i)
		}
	}

	_, err := c.GetWithRetry(context.Background(), server.URL, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("GetWithRetry() error = %v, want %v", err, gobreaker.ErrOpenState)
	}
	if got := atomic.LoadInt32(&calls); got != 103 {
		t.Errorf("upstream calls = %d, want 103", got)
	}
}

// TestBaseClient_GetWithRetry_ClientErrorsKeepBreakerClosed verifies that
// rejected requests such as 401 do not count as upstream failures.
func TestBaseClient_GetWithRetry_ClientErrorsKeepBreakerClosed(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := testClientConfig()
	cfg.MaxRetries = 0
	cfg.Threshold = 3
	cfg.BreakerTimeout = time.Minute
	c := NewBaseClient("test", cfg, zap.NewNop())

	for i := 0; i < 10; i++ {
		_, err := c.GetWithRetry(context.Background(), server.URL, nil)
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
			t.Fatalf("call %d: GetWithRetry() error = %v, want 401 StatusError", i, err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 10 {
		t.Errorf("upstream calls = %d, want 10", got)
	}
}

func TestUpstreamAvailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"success", nil, true},
		{"unauthorized", &StatusError{Client: "rte", StatusCode: http.StatusUnauthorized}, true},
		{"bad request", fmt.Errorf("request failed after 1 attempt(s): %w", &StatusError{Client: "rte", StatusCode: http.StatusBadRequest}), true},
		{"caller cancelled", context.Canceled, true},
		{"rate limited", &StatusError{Client: "rte", StatusCode: http.StatusTooManyRequests}, false},
		{"server error", &StatusError{Client: "rte", StatusCode: http.StatusBadGateway}, false},
		{"deadline", context.DeadlineExceeded, false},
		{"network", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		if got := upstreamAvailable(tt.err); got != tt.want {
			t.Errorf("upstreamAvailable(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// TestBaseClient_GetWithRetry_RedactsQuery verifies that query strings, which
// carry API keys, never appear in logs.
func TestBaseClient_GetWithRetry_RedactsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	c := NewBaseClient("test", testClientConfig(), zap.New(core))

	if _, err := c.GetWithRetry(context.Background(), server.URL+"/group?appid=secret-key", nil); err != nil {
		t.Fatalf("GetWithRetry() error = %v", err)
	}

	if logs.Len() == 0 {
		t.Fatal("expected debug log for successful request")
	}
	for _, entry := range logs.All() {
		for _, field := range entry.Context {
			if strings.Contains(field.String, "secret-key") {
				t.Errorf("log field %s leaks API key: %q", field.Key, field.String)
			}
		}
	}
}
