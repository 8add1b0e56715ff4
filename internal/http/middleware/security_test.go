package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// fortuneRouter mirrors the production layout: security headers on every
// route, NoStore on the API group only.
func fortuneRouter(opt SecurityOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), SecurityHeaders(opt))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api := r.Group("/api/v1", NoStore())
	api.POST("/fortunes", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"message": "今日は良い日", "subject_id": "abc"})
	})
	return r
}

func TestSecurityHeaders_FortuneResponse(t *testing.T) {
	r := fortuneRouter(SecurityOptions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/fortunes", strings.NewReader(`{}`)))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d", w.Code)
	}

	h := w.Header()
	for k, want := range map[string]string{
		"X-Content-Type-Options":        "nosniff",
		"X-Frame-Options":               "DENY",
		"Referrer-Policy":               "no-referrer",
		"Cache-Control":                 "no-store, private",
		"Pragma":                        "no-cache",
		"Expires":                       "0",
		"Access-Control-Expose-Headers": "X-Request-ID",
	} {
		if got := h.Get(k); got != want {
			t.Fatalf("%s=%q; want %q", k, got, want)
		}
	}
	if h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must be off unless enabled")
	}
}

func TestNoStore_OnlyOnAPIGroup(t *testing.T) {
	r := fortuneRouter(SecurityOptions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "" {
		t.Fatalf("health must stay cacheable, got Cache-Control=%q", cc)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("baseline headers missing on health: %#v", w.Header())
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	cases := []struct {
		name   string
		maxAge time.Duration
		setup  func(*http.Request)
		want   string
	}{
		{"plain http", time.Hour, func(*http.Request) {}, ""},
		{"tls", 24 * time.Hour, func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, "max-age=86400; includeSubDomains; preload"},
		{"proxy header", time.Hour, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }, "max-age=3600; includeSubDomains; preload"},
		{"default max age", 0, func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, "max-age=15552000; includeSubDomains; preload"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := fortuneRouter(SecurityOptions{EnableHSTS: true, HSTSMaxAge: tc.maxAge})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/fortunes", strings.NewReader(`{}`))
			tc.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if got := w.Header().Get("Strict-Transport-Security"); got != tc.want {
				t.Fatalf("HSTS=%q; want %q", got, tc.want)
			}
		})
	}
}

func TestExposeHeader(t *testing.T) {
	cases := []struct{ cur, want string }{
		{"", "X-Request-ID"},
		{"Retry-After", "Retry-After, X-Request-ID"},
		{"x-request-id, Retry-After", "x-request-id, Retry-After"},
	}
	for _, tc := range cases {
		h := http.Header{}
		if tc.cur != "" {
			h.Set("Access-Control-Expose-Headers", tc.cur)
		}
		exposeHeader(h, "X-Request-ID")
		if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
			t.Fatalf("cur=%q: got %q; want %q", tc.cur, got, tc.want)
		}
	}
}
