package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/v1/wallets/:address", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"score": 550})
	})
	return router
}

func TestHeadersMiddleware(t *testing.T) {
	router := newRouter(HeadersMiddleware())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallets/0xabc", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store",
	}
	for header, expected := range want {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("%s = %q, want %q", header, got, expected)
		}
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		wantOrigin bool
		wantCreds  bool
	}{
		{"listed origin", []string{"https://risk.example.com"}, "https://risk.example.com", true, true},
		{"wildcard", []string{"*"}, "https://anything.example", true, false},
		{"empty list allows any", nil, "https://anything.example", true, false},
		{"unlisted origin", []string{"https://risk.example.com"}, "https://evil.example", false, false},
		{"no origin header", []string{"*"}, "", false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(CORSMiddleware(tc.allowed))

			req := httptest.NewRequest(http.MethodGet, "/v1/wallets/0xabc", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, simple requests always pass through", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin") != ""; got != tc.wantOrigin {
				t.Errorf("allow-origin present = %v, want %v", got, tc.wantOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials") == "true"; got != tc.wantCreds {
				t.Errorf("credentials = %v, want %v", got, tc.wantCreds)
			}
			if w.Header().Get("Vary") != "Origin" {
				t.Error("Vary: Origin not set")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newRouter(CORSMiddleware([]string{"https://risk.example.com"}))

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/v1/wallets/0xabc", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := preflight("https://risk.example.com")
	if w.Code != http.StatusNoContent {
		t.Errorf("allowed preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Methods") != corsMethods {
		t.Errorf("allow-methods = %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
	if w.Header().Get("Access-Control-Expose-Headers") != corsExpose {
		t.Errorf("expose-headers = %q", w.Header().Get("Access-Control-Expose-Headers"))
	}

	if w := preflight("https://evil.example"); w.Code != http.StatusForbidden {
		t.Errorf("foreign preflight status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
