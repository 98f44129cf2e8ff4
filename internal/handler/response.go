package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/park285/directory-assistant-go/internal/httperror"
	"github.com/park285/directory-assistant-go/internal/middleware"
)

// writeError: 에러 응답을 작성합니다 (middleware.AbortWithError 위임).
func writeError(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

// bindJSON: 요청 본문을 JSON으로 파싱합니다.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		writeError(c, httperror.NewValidationError(err))
		return false
	}
	return true
}
