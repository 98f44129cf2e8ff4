package handler

import (
	"log/slog"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/park285/directory-assistant-go/internal/config"
	"github.com/park285/directory-assistant-go/internal/middleware"
)

// Handlers 는 라우터에 묶이는 핸들러 묶음이다.
type Handlers struct {
	Assistant *AssistantHandler
	Admin     *AdminHandler
	Usage     *UsageHandler
	Health    HealthCollector
	Gatherer  prometheus.Gatherer
}

// NewRouter 는 HTTP 라우터를 구성한다.
func NewRouter(cfg *config.Config, logger *slog.Logger, h Handlers) *gin.Engine {
	setGinMode(cfg.Logging.Level)

	router := gin.New()
	// 신뢰 프록시가 없으면 X-Forwarded-For 를 무시하고 접속 주소를 쓴다.
	if err := router.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		logger.Warn("http_trusted_proxies_invalid", "proxies", cfg.HTTP.TrustedProxies, "err", err)
		_ = router.SetTrustedProxies(nil)
	}
	if cfg.Telemetry.Enabled {
		router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}
	router.Use(
		middleware.RequestID(),
		middleware.Identify(cfg),
		middleware.RequestLogger(logger),
		gin.Recovery(),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})),
	)

	RegisterHealthRoutes(router, h.Health, h.Gatherer)

	api := router.Group("/api")
	h.Assistant.RegisterRoutes(api.Group("/assistant", middleware.RateLimit(cfg)))

	adminAuth := middleware.AdminAuth(cfg)
	h.Admin.RegisterRoutes(api.Group("/admin", adminAuth))
	h.Usage.RegisterRoutes(api.Group("/usage", adminAuth))

	return router
}

func setGinMode(level string) {
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}
