package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/park285/directory-assistant-go/internal/httperror"
)

// AbortWithError 는 오류를 표준 오류 본문으로 응답하고 체인을 중단한다.
// Retry-After 가 있으면 헤더로 내보낸다.
func AbortWithError(c *gin.Context, err error) {
	apiErr := httperror.FromError(err)
	if apiErr == nil {
		apiErr = httperror.NewInternalError("unknown error")
	}
	if apiErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	if err != nil {
		_ = c.Error(err)
	}
	status, payload := httperror.Response(apiErr, GetRequestID(c))
	c.AbortWithStatusJSON(status, payload)
}
