package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/park285/directory-assistant-go/internal/httperror"
	"github.com/park285/directory-assistant-go/internal/settings"
)

// SettingsStore 는 관리자 설정 저장소다.
type SettingsStore interface {
	Get(ctx context.Context) (settings.Settings, error)
	Update(ctx context.Context, patch settings.Patch) (settings.Settings, error)
}

// AdminHandler: 관리자 설정 API 핸들러입니다.
type AdminHandler struct {
	store  SettingsStore
	logger *slog.Logger
}

// NewAdminHandler: 관리자 핸들러를 생성합니다.
func NewAdminHandler(store SettingsStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{store: store, logger: logger}
}

// RegisterRoutes: 관리자 라우트를 등록합니다.
func (h *AdminHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/assistant/settings", h.handleGetSettings)
	group.PATCH("/assistant/settings", h.handlePatchSettings)
}

func (h *AdminHandler) handleGetSettings(c *gin.Context) {
	current, err := h.store.Get(c.Request.Context())
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "admin_settings_read_failed", "err", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, current)
}

func (h *AdminHandler) handlePatchSettings(c *gin.Context) {
	var body map[string]any
	if !bindJSON(c, &body) {
		return
	}

	patch, err := settings.DecodePatch(body)
	if err != nil {
		writeError(c, err)
		return
	}
	if patch.IsEmpty() {
		writeError(c, httperror.NewInvalidInput("no settings fields to update"))
		return
	}

	updated, err := h.store.Update(c.Request.Context(), patch)
	if err != nil {
		writeError(c, err)
		return
	}

	keys := make([]string, 0, len(body))
	for key := range body {
		keys = append(keys, key)
	}
	h.logger.InfoContext(c.Request.Context(), "admin_settings_updated",
		"fields", keys,
		"enabled", updated.Enabled,
	)
	c.JSON(http.StatusOK, updated)
}
