package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
	}), mark("a"), mark("b"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "handler" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestWithRequestIDEchoesHeader(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "abc" || rw.Header().Get(RequestIDHeader) != "abc" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rw.Header().Get(RequestIDHeader))
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		codes = append(codes, rw.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}
}

func TestRateLimiterSetsRetryAfter(t *testing.T) {
	rl := NewRateLimiter(1, 30*time.Second)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	var rw *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rw = httptest.NewRecorder()
		h.ServeHTTP(rw, req)
	}
	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rw.Code)
	}
	secs, err := strconv.Atoi(rw.Header().Get("Retry-After"))
	if err != nil || secs < 1 || secs > 30 {
		t.Fatalf("unexpected Retry-After %q", rw.Header().Get("Retry-After"))
	}
}

func TestAccessLogLevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	for _, tc := range []struct {
		status int
		level  string
	}{
		{http.StatusCreated, "level=INFO"},
		{http.StatusConflict, "level=WARN"},
		{http.StatusServiceUnavailable, "level=ERROR"},
	} {
		buf.Reset()
		h := WithAccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/appointments", nil))
		if !strings.Contains(buf.String(), tc.level) || !strings.Contains(buf.String(), "status="+strconv.Itoa(tc.status)) {
			t.Fatalf("status %d: unexpected log line %q", tc.status, buf.String())
		}
	}
}

func TestWithRequestIDReplacesUnsafeIDs(t *testing.T) {
	for _, in := range []string{"", "has space", "line\nbreak", strings.Repeat("x", maxRequestIDLen+1)} {
		h := WithRequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header[RequestIDHeader] = []string{in}
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		got := rw.Header().Get(RequestIDHeader)
		if got == in || len(got) != 32 {
			t.Fatalf("request id %q should be replaced, got %q", in, got)
		}
	}
}

func TestCORSExposesHeaders(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		ExposedHeaders: []string{"Retry-After", RequestIDHeader},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/appointments", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rw.Code)
	}
	if got := rw.Header().Get("Access-Control-Expose-Headers"); got != "Retry-After, X-Request-Id" {
		t.Fatalf("unexpected exposed headers %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin must not be allowed")
	}
}

func TestWithTimeoutRespondsJSON(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	h := WithTimeout(10 * time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusServiceUnavailable || rw.Body.String() != `{"error":"request timed out"}` {
		t.Fatalf("unexpected timeout response %d %q", rw.Code, rw.Body.String())
	}
}

func TestScriptInt(t *testing.T) {
	for _, v := range []interface{}{int64(4), 4, "4"} {
		if n, err := scriptInt(v); err != nil || n != 4 {
			t.Fatalf("scriptInt(%#v) = %d, %v", v, n, err)
		}
	}
	if _, err := scriptInt(4.5); err == nil {
		t.Fatal("expected an error for a float")
	}
}
