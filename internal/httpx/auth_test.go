package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTokenSource struct {
	calls atomic.Int32
	token string
	err   error
}

func (f *fakeTokenSource) Token(ctx context.Context) (string, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s-%d", f.token, n), nil
}

func TestAuthDecorator_AttachesBearerToken(t *testing.T) {
	var receivedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	src := &fakeTokenSource{token: "tok"}
	d := &AuthDecorator{Client: New(Config{}), source: src, expiresAt: time.Now().Add(time.Hour), token: "tok-1"}

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, _, err := d.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receivedAuth != "Bearer tok-1" {
		t.Errorf("expected Bearer tok-1, got %q", receivedAuth)
	}
	if src.calls.Load() != 0 {
		t.Errorf("expected no refresh when token still fresh, got %d calls", src.calls.Load())
	}
}

func TestAuthDecorator_RefreshesExpiredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	src := &fakeTokenSource{token: "tok"}
	d := &AuthDecorator{Client: New(Config{}), source: src, expiresAt: time.Now().Add(-time.Minute)}

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, _, err := d.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls.Load() != 1 {
		t.Errorf("expected exactly one refresh, got %d", src.calls.Load())
	}
}

func TestAuthDecorator_RetriesOnceOn401(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("expected retry with refreshed token, got %s", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	src := &fakeTokenSource{token: "tok"}
	d := &AuthDecorator{Client: New(Config{}), source: src, expiresAt: time.Now().Add(time.Hour), token: "manual-initial"}

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, _, err := d.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", attempts.Load())
	}
	if src.calls.Load() != 1 {
		t.Errorf("expected exactly one refresh call, got %d", src.calls.Load())
	}
}

func TestAuthDecorator_RetriesPOSTBodyIntactOn401(t *testing.T) {
	var attempts atomic.Int32
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	src := &fakeTokenSource{token: "tok"}
	d := &AuthDecorator{Client: New(Config{}), source: src, expiresAt: time.Now().Add(time.Hour), token: "manual-initial"}

	const payload = `{"playId":"abc"}`
	req, _ := http.NewRequest(http.MethodPost, server.URL, bytes.NewReader([]byte(payload)))
	_, _, err := d.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts.Load() != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts.Load())
	}
	for i, b := range bodies {
		if strings.TrimSpace(b) != payload {
			t.Errorf("attempt %d: expected retried body %q, got %q", i+1, payload, b)
		}
	}
}
