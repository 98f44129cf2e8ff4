package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/park285/directory-assistant-go/internal/config"
	"github.com/park285/directory-assistant-go/internal/httperror"
)

// AdminAuth 는 관리자 API 키 인증 미들웨어다. 관리자 라우트 그룹에만 붙인다.
// 키가 설정되지 않았으면 모든 요청을 거부한다.
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	expected := ""
	if cfg != nil {
		expected = strings.TrimSpace(cfg.HTTPAuth.AdminAPIKey)
	}

	return func(c *gin.Context) {
		provided := extractAPIKey(c)
		if expected == "" || provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			details := map[string]any{"path": c.Request.URL.Path}
			if expected == "" {
				details["reason"] = "admin api key not configured"
			}
			AbortWithError(c, httperror.NewUnauthorized(details))
			return
		}
		c.Next()
	}
}

func extractAPIKey(c *gin.Context) string {
	if c == nil {
		return ""
	}

	value := strings.TrimSpace(c.GetHeader("X-API-Key"))
	if value != "" {
		return value
	}

	authValue := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(authValue) > 7 && strings.EqualFold(authValue[:7], "bearer ") {
		return strings.TrimSpace(authValue[7:])
	}
	return ""
}
