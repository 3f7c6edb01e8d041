package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServer_CORSMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		corsOrigin     string
		method         string
		expectedCORS   string
		shouldCallNext bool
	}{
		{"GET request with CORS headers", "*", http.MethodGet, "*", true},
		{"POST request with specific origin", "https://example.com", http.MethodPost, "https://example.com", true},
		{"OPTIONS request (preflight)", "*", http.MethodOptions, "*", false},
		{"empty CORS origin falls back to any", "", http.MethodGet, "*", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := &Server{corsOrigin: tt.corsOrigin}

			nextCalled := false
			next := func(w http.ResponseWriter, _ *http.Request) {
				nextCalled = true
				w.WriteHeader(http.StatusOK)
			}

			req := httptest.NewRequest(tt.method, "/test", nil)
			w := httptest.NewRecorder()
			server.corsMiddleware(next)(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expectedCORS, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, tt.shouldCallNext, nextCalled)
		})
	}
}

func TestServer_CheckOrigin(t *testing.T) {
	tests := []struct {
		cors, origin string
		want         bool
	}{
		{"*", "https://evil.example", true},
		{"", "https://any.example", true},
		{"https://app.example", "https://app.example", true},
		{"https://app.example", "", true},
		{"https://app.example", "https://evil.example", false},
	}
	for _, tt := range tests {
		s := &Server{corsOrigin: tt.cors}
		req := httptest.NewRequest(http.MethodGet, "/ws/scan", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, s.checkOrigin(req), "cors=%q origin=%q", tt.cors, tt.origin)
	}
}

func TestServer_RateLimitMiddleware(t *testing.T) {
	server := newServerWithDecoder(&fakeDecoder{}, Config{RateLimits: RateLimits{RequestsPerMinute: 2}})

	calls := 0
	handler := server.rateLimitMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/scan/image", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		w := httptest.NewRecorder()
		handler(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("192.0.2.1").Code)
	assert.Equal(t, http.StatusOK, send("192.0.2.1").Code)

	w := send("192.0.2.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "minute", w.Header().Get("X-RateLimit-Type"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("192.0.2.2").Code, "limits are per client")
	assert.Equal(t, 3, calls)
}

func TestServer_RateLimitMiddleware_Disabled(t *testing.T) {
	server := newServerWithDecoder(&fakeDecoder{}, Config{})
	assert.Nil(t, server.rateLimiter)

	handler := server.rateLimitMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.Header.Set("X-Real-IP", " 203.0.113.9 ")
	assert.Equal(t, "203.0.113.9", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.2")
	assert.Equal(t, "203.0.113.1", clientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientIP(req))
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
