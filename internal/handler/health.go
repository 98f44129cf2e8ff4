package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/park285/directory-assistant-go/internal/health"
)

// HealthCollector 는 헬스 상태 수집기다.
type HealthCollector interface {
	Collect(ctx context.Context, deep bool) health.Response
}

// RegisterHealthRoutes: 상태 확인과 Prometheus 라우트를 등록합니다.
func RegisterHealthRoutes(router *gin.Engine, checker HealthCollector, gatherer prometheus.Gatherer) {
	router.GET("/health", func(c *gin.Context) {
		// Liveness: 외부 의존성 상태로 다운 판정되지 않도록 shallow 로 유지합니다.
		c.JSON(http.StatusOK, checker.Collect(c.Request.Context(), false))
	})

	router.GET("/health/ready", func(c *gin.Context) {
		payload := checker.Collect(c.Request.Context(), true)
		status := http.StatusOK
		if payload.Status != health.StatusOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, payload)
	})

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
