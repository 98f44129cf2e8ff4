package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/directory-assistant-go/internal/config"
)

const testGatewaySecret = "gw-secret"

func newRateLimitedRouter(rpm, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		HTTPAuth: config.HTTPAuthConfig{GatewaySecret: testGatewaySecret},
		HTTPRateLimit: config.HTTPRateLimitConfig{
			RequestsPerMinute: rpm,
			Burst:             burst,
			CacheSize:         10,
			CacheTTLSeconds:   int(time.Minute.Seconds()),
		},
	}

	router := gin.New()
	_ = router.SetTrustedProxies(nil)
	router.Use(RequestID(), Identify(cfg), RateLimit(cfg))
	router.GET("/api/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func serve(router *gin.Engine, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRateLimitBurst(t *testing.T) {
	router := newRateLimitedRouter(1, 2)

	for i := 0; i < 2; i++ {
		if resp := serve(router, "1.2.3.4:1234", nil); resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected ok, got %d", i, resp.Code)
		}
	}
	resp := serve(router, "1.2.3.4:1234", nil)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}

	// 다른 클라이언트는 별도 버킷이다.
	if other := serve(router, "5.6.7.8:1234", nil); other.Code != http.StatusOK {
		t.Fatalf("other client should pass, got %d", other.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	router := newRateLimitedRouter(0, 1)
	for i := 0; i < 5; i++ {
		if resp := serve(router, "1.2.3.4:1234", nil); resp.Code != http.StatusOK {
			t.Fatalf("expected ok, got %d", resp.Code)
		}
	}
}

func TestRateLimitIgnoresSpoofedIdentityHeaders(t *testing.T) {
	router := newRateLimitedRouter(1, 2)

	for i := 0; i < 2; i++ {
		if resp := serve(router, "203.0.113.5:4000", nil); resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected ok, got %d", i, resp.Code)
		}
	}
	for i := 0; i < 5; i++ {
		headers := map[string]string{
			UserIDHeader:      fmt.Sprintf("anything-%d", i),
			"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i),
		}
		if resp := serve(router, "203.0.113.5:4000", headers); resp.Code != http.StatusTooManyRequests {
			t.Fatalf("rotated headers must not reset the quota, got %d", resp.Code)
		}
	}
}

func TestClientIdentifier(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{"user header without secret", nil, "198.51.100.7:5555", map[string]string{UserIDHeader: "42"}, "198.51.100.7"},
		{"user header wrong secret", nil, "198.51.100.7:5555", map[string]string{UserIDHeader: "42", GatewaySecretHeader: "nope"}, "198.51.100.7"},
		{"user header from gateway", nil, "198.51.100.7:5555", map[string]string{UserIDHeader: "42", GatewaySecretHeader: testGatewaySecret}, "user:42"},
		{"forwarded from untrusted peer", nil, "198.51.100.7:5555", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "198.51.100.7"},
		{"forwarded from trusted proxy", []string{"10.0.0.0/8"}, "10.0.0.2:5555", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"remote addr", nil, "198.51.100.7:5555", nil, "198.51.100.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{HTTPAuth: config.HTTPAuthConfig{GatewaySecret: testGatewaySecret}}
			router := gin.New()
			if err := router.SetTrustedProxies(tt.trusted); err != nil {
				t.Fatalf("trusted proxies: %v", err)
			}
			var got string
			router.Use(Identify(cfg))
			router.GET("/api/test", func(c *gin.Context) {
				got = ClientIdentifier(c)
				c.Status(http.StatusOK)
			})

			serve(router, tt.remote, tt.headers)
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}
