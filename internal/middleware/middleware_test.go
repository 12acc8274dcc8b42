package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "client-id", seen)
	assert.Equal(t, "client-id", rr.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     string
		origin      string
		wantOrigin  string
		wantCredits bool
	}{
		{"explicit origin", "http://localhost:5173", "http://localhost:5173", "http://localhost:5173", true},
		{"one of a list", "https://a.example, https://b.example", "https://b.example", "https://b.example", true},
		{"wildcard", "*", "https://any.example", "https://any.example", false},
		{"not allowed", "http://localhost:5173", "https://evil.example", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", tc.origin)
			rr := httptest.NewRecorder()
			CORS(tc.allowed)(okHandler).ServeHTTP(rr, req)

			assert.Equal(t, tc.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tc.wantCredits, rr.Header().Get("Access-Control-Allow-Credentials") == "true")
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS("http://localhost:5173")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, called)
}

func TestAllowOrigin(t *testing.T) {
	allow := AllowOrigin("http://localhost:5173, https://agriwise.example")
	assert.True(t, allow("http://localhost:5173"))
	assert.True(t, allow("https://agriwise.example"))
	assert.False(t, allow("https://evil.example"))
	assert.False(t, allow(""))

	assert.True(t, AllowOrigin("*")("https://anywhere.example"))
	assert.False(t, AllowOrigin("")("http://localhost:5173"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	h := RequestID(rl.Middleware(okHandler))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002"), "same IP, different port")
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000"))
}

func TestRateLimiter_ZeroDisables(t *testing.T) {
	h := NewRateLimiter(0, time.Minute).Middleware(okHandler)
	for i := 0; i < 10; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestRateLimiter_CleanupDropsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(5, 20*time.Millisecond)
	rl.allow("10.0.0.1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Cleanup(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		return len(rl.visitors) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
