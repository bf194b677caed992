package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/logosim/config"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(APIKeyContext)) })
	return r
}

func TestAuth(t *testing.T) {
	r := newRouter(Auth([]string{"k1", "", "k2"}))

	tests := []struct {
		name     string
		header   string
		value    string
		wantCode int
		wantKey  string
	}{
		{"x-api-key", "X-API-Key", "k1", http.StatusOK, "k1"},
		{"bearer", "Authorization", "Bearer k2", http.StatusOK, "k2"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized, ""},
		{"empty key is not valid", "Authorization", "Bearer ", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && w.Body.String() != tt.wantKey {
				t.Errorf("api key in context = %q, want %q", w.Body.String(), tt.wantKey)
			}
		})
	}
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	r := newRouter(Auth(nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	r := newRouter(Auth([]string{"a", "b"}), RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 2}))

	call := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := call("a"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, code)
		}
	}
	if code := call("a"); code != http.StatusTooManyRequests {
		t.Errorf("third request: status = %d, want 429", code)
	}
	if code := call("b"); code != http.StatusOK {
		t.Errorf("other key: status = %d, want its own bucket", code)
	}
}
