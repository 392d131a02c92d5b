package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthMiddleware_WithValidKey(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})

	r := httptest.NewRequest(http.MethodGet, "/api/orders/available", nil)
	r.Header.Set(AgentKeyHeader, "test-secret")

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_RejectsMissingOrWrongKey(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	for _, key := range []string{"", "wrong", "test-secret-longer"} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/orders/available", nil)
		if key != "" {
			r.Header.Set(AgentKeyHeader, key)
		}

		m.Middleware(next).ServeHTTP(w, r)

		res := w.Result()
		res.Body.Close()
		if res.StatusCode != http.StatusUnauthorized {
			t.Fatalf("key %q: status = %d, want %d", key, res.StatusCode, http.StatusUnauthorized)
		}
	}
}

func TestAuthMiddleware_EmptyKeyDisablesAuth(t *testing.T) {
	m := NewAuthMiddleware("")
	if m.Enabled() {
		t.Fatalf("auth must be disabled for empty key")
	}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/session/logout", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("status field = %v", fields["status"])
	}
	if fields["path"] != "/api/session/logout" {
		t.Fatalf("path field = %v", fields["path"])
	}
}
