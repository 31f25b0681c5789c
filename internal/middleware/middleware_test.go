package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rockguard/internal/logger"
	"rockguard/internal/notifications"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"first", "second", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestLoggingSetsRequestID(t *testing.T) {
	var seen string
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))

	if seen == "" {
		t.Fatal("handler did not see a request id")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response id %q != request id %q", rec.Header().Get(RequestIDHeader), seen)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestLoggingKeepsIncomingRequestID(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc" {
		t.Errorf("request id = %q", got)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["success"] != false {
		t.Errorf("unexpected body %v", body)
	}
}

func TestRecoveryCatchesMissingStore(t *testing.T) {
	// a handler reaching for a store that was never attached is a wiring
	// bug and must surface as a 500, not hang or crash the server
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notifications.FromContext(r.Context()).Snapshot()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestWithStore(t *testing.T) {
	store := notifications.New(notifications.WithoutGenerator())
	defer store.Close()

	var got *notifications.Store
	h := WithStore(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = notifications.FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != store {
		t.Error("store not attached to request context")
	}
}

func TestRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(60, 2)
	h := l.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if c := call("10.0.0.1:1000"); c != http.StatusOK {
		t.Fatalf("first request = %d", c)
	}
	if c := call("10.0.0.1:1001"); c != http.StatusOK {
		t.Fatalf("second request = %d", c)
	}
	if c := call("10.0.0.1:1002"); c != http.StatusTooManyRequests {
		t.Errorf("burst exceeded, got %d", c)
	}
	if c := call("10.0.0.2:1000"); c != http.StatusOK {
		t.Errorf("other client limited: %d", c)
	}
}

func TestRateLimiterEvict(t *testing.T) {
	l := NewIPRateLimiter(60, 1)
	l.limiter("10.0.0.1")
	l.evict(time.Now().Add(time.Second))

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.visitors) != 0 {
		t.Errorf("expected idle visitor evicted, %d left", len(l.visitors))
	}
}

func TestRateLimiterLogsRejection(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.Logger
	logger.Logger = zerolog.New(&buf)
	t.Cleanup(func() { logger.Logger = prev })

	l := NewIPRateLimiter(60, 1)
	h := l.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		req.RemoteAddr = "10.0.0.9:4000"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	out := buf.String()
	for _, want := range []string{`"component":"ratelimit"`, `"ip":"10.0.0.9"`, "rate limit exceeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}
