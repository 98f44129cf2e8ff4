package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/park285/directory-assistant-go/internal/assistant"
	"github.com/park285/directory-assistant-go/internal/httperror"
	"github.com/park285/directory-assistant-go/internal/middleware"
)

// Assistant 는 어시스턴트 파이프라인 인터페이스다.
type Assistant interface {
	Ask(ctx context.Context, req assistant.Request) (assistant.Response, error)
	WelcomeMessage(ctx context.Context) string
	SubmitFeedback(ctx context.Context, usageID string, useful bool) (bool, error)
	OpenSession() string
	EndSession(id string) bool
	Metrics() map[string]float64
}

// AskRequest 는 질문 요청 본문이다. 질문 길이 검증은 파이프라인이 한다.
type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id" binding:"omitempty,max=64"`
}

// FeedbackRequest 는 유용성 피드백 요청 본문이다.
type FeedbackRequest struct {
	UsageID string `json:"usage_id" binding:"required,max=64"`
	Useful  *bool  `json:"useful" binding:"required"`
}

// AssistantHandler: 어시스턴트 API 핸들러입니다.
type AssistantHandler struct {
	svc    Assistant
	logger *slog.Logger
}

// NewAssistantHandler: 어시스턴트 핸들러를 생성합니다.
func NewAssistantHandler(svc Assistant, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{svc: svc, logger: logger}
}

// RegisterRoutes: 어시스턴트 라우트를 등록합니다.
func (h *AssistantHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/ask", h.handleAsk)
	group.GET("/welcome", h.handleWelcome)
	group.POST("/feedback", h.handleFeedback)
	group.POST("/sessions", h.handleOpenSession)
	group.DELETE("/sessions/:id", h.handleEndSession)
	group.GET("/metrics", h.handleMetrics)
}

func (h *AssistantHandler) handleAsk(c *gin.Context) {
	var req AskRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Ask(c.Request.Context(), assistant.Request{
		Question:   req.Question,
		Identifier: middleware.ClientIdentifier(c),
		SessionID:  req.SessionID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AssistantHandler) handleWelcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": h.svc.WelcomeMessage(c.Request.Context())})
}

func (h *AssistantHandler) handleFeedback(c *gin.Context) {
	var req FeedbackRequest
	if !bindJSON(c, &req) {
		return
	}

	accepted, err := h.svc.SubmitFeedback(c.Request.Context(), req.UsageID, *req.Useful)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

func (h *AssistantHandler) handleOpenSession(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"session_id": h.svc.OpenSession()})
}

func (h *AssistantHandler) handleEndSession(c *gin.Context) {
	id := c.Param("id")
	if !h.svc.EndSession(id) {
		writeError(c, httperror.NewSessionNotFound())
		return
	}
	h.logger.DebugContext(c.Request.Context(), "assistant_session_ended", "session_id", id)
	c.Status(http.StatusNoContent)
}

func (h *AssistantHandler) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Metrics())
}
