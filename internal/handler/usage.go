package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/directory-assistant-go/internal/httperror"
	"github.com/park285/directory-assistant-go/internal/usage"
)

const maxUsageDays = 366

// DailyUsageResponse: 일자별 사용량 응답입니다.
type DailyUsageResponse struct {
	UsageDate    string  `json:"usage_date"`
	Requests     int64   `json:"requests"`
	ModelCalls   int64   `json:"model_calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// UsageListResponse: 사용량 목록 응답입니다.
type UsageListResponse struct {
	Usages            []DailyUsageResponse `json:"usages"`
	TotalRequests     int64                `json:"total_requests"`
	TotalInputTokens  int64                `json:"total_input_tokens"`
	TotalOutputTokens int64                `json:"total_output_tokens"`
	TotalTokens       int64                `json:"total_tokens"`
	TotalCostUSD      float64              `json:"total_cost_usd"`
	Model             string               `json:"model"`
}

// TotalUsageResponse: 기간 합계 응답입니다.
type TotalUsageResponse struct {
	Days int `json:"days"`
	DailyUsageResponse
	Model string `json:"model"`
}

// UsageHandler: 사용량 API 핸들러입니다.
type UsageHandler struct {
	reader usage.Reader
	model  string
	logger *slog.Logger
}

// NewUsageHandler: 사용량 핸들러를 생성합니다.
func NewUsageHandler(reader usage.Reader, model string, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		reader: reader,
		model:  model,
		logger: logger,
	}
}

// RegisterRoutes: 사용량 라우트를 등록합니다.
func (h *UsageHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/daily", h.handleDaily)
	group.GET("/recent", h.handleRecent)
	group.GET("/total", h.handleTotal)
}

func (h *UsageHandler) handleDaily(c *gin.Context) {
	day, ok := parseDate(c)
	if !ok {
		return
	}

	row, err := h.reader.GetDailyUsage(c.Request.Context(), day)
	if err != nil {
		h.logError(c, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toDailyResponse(row))
}

func (h *UsageHandler) handleRecent(c *gin.Context) {
	days, ok := parseDays(c, 7)
	if !ok {
		return
	}

	rows, err := h.reader.GetRecentUsage(c.Request.Context(), days)
	if err != nil {
		h.logError(c, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.buildUsageListResponse(rows))
}

func (h *UsageHandler) handleTotal(c *gin.Context) {
	days, ok := parseDays(c, 30)
	if !ok {
		return
	}

	row, err := h.reader.GetTotalUsage(c.Request.Context(), days)
	if err != nil {
		h.logError(c, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, TotalUsageResponse{
		Days:               days,
		DailyUsageResponse: toDailyResponse(row),
		Model:              h.model,
	})
}

func toDailyResponse(row usage.DailyUsage) DailyUsageResponse {
	return DailyUsageResponse{
		UsageDate:    row.UsageDate.Format(time.DateOnly),
		Requests:     row.Requests,
		ModelCalls:   row.ModelCalls,
		InputTokens:  row.InputTokens,
		OutputTokens: row.OutputTokens,
		TotalTokens:  row.TotalTokens(),
		CostUSD:      row.CostUSD,
	}
}

func (h *UsageHandler) buildUsageListResponse(rows []usage.DailyUsage) UsageListResponse {
	response := UsageListResponse{
		Usages: make([]DailyUsageResponse, 0, len(rows)),
		Model:  h.model,
	}

	for _, row := range rows {
		response.Usages = append(response.Usages, toDailyResponse(row))
		response.TotalRequests += row.Requests
		response.TotalInputTokens += row.InputTokens
		response.TotalOutputTokens += row.OutputTokens
		response.TotalTokens += row.TotalTokens()
		response.TotalCostUSD += row.CostUSD
	}

	return response
}

func parseDays(c *gin.Context, defaultDays int) (int, bool) {
	raw := c.Query("days")
	if raw == "" {
		return defaultDays, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 || parsed > maxUsageDays {
		writeError(c, httperror.NewInvalidInput("days must be an integer between 1 and 366"))
		return 0, false
	}
	return parsed, true
}

// parseDate 는 date=YYYY-MM-DD 쿼리를 읽는다. 없으면 zero time (오늘).
func parseDate(c *gin.Context) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
	if err != nil {
		writeError(c, httperror.NewInvalidInput("date must be formatted as YYYY-MM-DD"))
		return time.Time{}, false
	}
	return parsed, true
}

func (h *UsageHandler) logError(c *gin.Context, err error) {
	h.logger.WarnContext(c.Request.Context(), "usage_request_failed", "path", c.FullPath(), "err", err)
}
