package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/park285/directory-assistant-go/internal/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	idleTimeout       = 90 * time.Second
	// writeSlack 는 모델 호출 제한 시간 외에 컨텍스트 조회와 기록에 쓰는 여유다.
	writeSlack     = 15 * time.Second
	maxHeaderBytes = 64 << 10
)

// NewHTTPServer 는 HTTP 서버를 생성한다.
// 쓰기 제한 시간은 모델 호출 제한 시간보다 길게 잡아 fallback 응답이 잘리지 않게 한다.
func NewHTTPServer(cfg *config.Config, router *gin.Engine, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      cfg.Gemini.Timeout() + writeSlack,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
	if logger != nil {
		server.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
	}

	if cfg.HTTP.HTTP2Enabled {
		server.Handler = h2c.NewHandler(router, &http2.Server{IdleTimeout: idleTimeout})
	}

	return server
}
