package middleware

import (
	"crypto/subtle"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/park285/directory-assistant-go/internal/cache"
	"github.com/park285/directory-assistant-go/internal/config"
	"github.com/park285/directory-assistant-go/internal/httperror"
)

const (
	// UserIDHeader 는 인증된 사용자 id 를 전달하는 헤더다. 앞단 게이트웨이가 채운다.
	UserIDHeader = "X-User-ID"
	// GatewaySecretHeader 는 게이트웨이가 UserIDHeader 와 함께 보내는 공유 비밀이다.
	GatewaySecretHeader = "X-Gateway-Secret"

	clientIdentifierKey = "client_identifier"
)

// Identify 는 요청자 식별자를 정해 컨텍스트에 저장한다. RateLimit 보다 앞에 둔다.
// X-User-ID 는 공유 비밀이 일치할 때만 쓰고, 그 외에는 gin 의 신뢰 프록시 설정을 따르는 ClientIP 를 쓴다.
func Identify(cfg *config.Config) gin.HandlerFunc {
	secret := ""
	if cfg != nil {
		secret = strings.TrimSpace(cfg.HTTPAuth.GatewaySecret)
	}

	return func(c *gin.Context) {
		c.Set(clientIdentifierKey, resolveIdentifier(c, secret))
		c.Next()
	}
}

func resolveIdentifier(c *gin.Context, secret string) string {
	if secret != "" {
		provided := strings.TrimSpace(c.GetHeader(GatewaySecretHeader))
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) == 1 {
			return "user:" + userID
		}
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// RateLimit 는 HTTP 계층의 거친 요청 제한 미들웨어다.
// 질문 단위 분/시/일 제한은 어시스턴트 파이프라인이 담당하고, 여기서는 폭주만 막는다.
func RateLimit(cfg *config.Config) gin.HandlerFunc {
	rpm := 0
	burst := 1
	cacheSize := 0
	cacheTTL := time.Duration(0)
	if cfg != nil {
		rpm = cfg.HTTPRateLimit.RequestsPerMinute
		burst = max(1, cfg.HTTPRateLimit.Burst)
		cacheSize = cfg.HTTPRateLimit.CacheSize
		cacheTTL = time.Duration(cfg.HTTPRateLimit.CacheTTLSeconds) * time.Second
	}
	if rpm <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	every := rate.Every(time.Minute / time.Duration(rpm))
	limiters := cache.NewTTLCache[string, *rate.Limiter](cacheSize, cacheTTL)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		identity := ClientIdentifier(c)
		limiter := limiters.GetOrCreate(identity, func() *rate.Limiter {
			return rate.NewLimiter(every, burst)
		})
		reservation := limiter.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			retry := int(math.Ceil(delay.Seconds()))
			apiErr := httperror.NewRateLimitExceeded(map[string]any{
				"path":             c.Request.URL.Path,
				"limit_per_minute": rpm,
				"burst":            burst,
			})
			apiErr.RetryAfter = max(1, retry)
			AbortWithError(c, apiErr)
			return
		}
		c.Next()
	}
}

// ClientIdentifier 는 Identify 가 정한 요청자 식별자다. Identify 를 거치지 않았으면 ClientIP 를 쓴다.
func ClientIdentifier(c *gin.Context) string {
	if id := c.GetString(clientIdentifierKey); id != "" {
		return id
	}
	return resolveIdentifier(c, "")
}
