package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func TestAPIKeyMiddleware(t *testing.T) {
	h := APIKeyMiddleware("s3cret-key")(okHandler)

	tests := []struct {
		name   string
		path   string
		header string
		value  string
		want   int
	}{
		{"missing key", "/api/v1/items", "", "", http.StatusUnauthorized},
		{"wrong key", "/api/v1/items", "X-API-Key", "nope", http.StatusUnauthorized},
		{"bearer", "/api/v1/items", "Authorization", "Bearer s3cret-key", http.StatusTeapot},
		{"header", "/api/v1/items", "X-API-Key", "s3cret-key", http.StatusTeapot},
		{"health is public", "/health", "", "", http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAPIKeyMiddlewareDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	APIKeyMiddleware("")(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/items", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	h := RateLimitMiddleware(0)(okHandler)
	for range 20 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/items", nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("status = %d, want passthrough", rec.Code)
		}
	}
}

func TestLoggingMiddlewareKeepsStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()
	LoggingMiddleware(logger)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}
