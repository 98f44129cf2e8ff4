package settings

import (
	"time"

	"github.com/park285/directory-assistant-go/internal/config"
)

const settingsRowID = 1

// Settings 는 운영자가 조정하는 어시스턴트 설정(단일 행)이다.
type Settings struct {
	ID                   uint      `gorm:"column:id;primaryKey" json:"-"`
	Enabled              bool      `gorm:"column:enabled" json:"enabled"`
	DailyBudgetUSD       float64   `gorm:"column:daily_budget_usd" json:"daily_budget_usd" validate:"gte=0"`
	MonthlyBudgetUSD     float64   `gorm:"column:monthly_budget_usd" json:"monthly_budget_usd" validate:"gte=0"`
	RateLimitPerMinute   int       `gorm:"column:rate_limit_per_minute" json:"rate_limit_per_minute" validate:"gte=0"`
	RateLimitPerHour     int       `gorm:"column:rate_limit_per_hour" json:"rate_limit_per_hour" validate:"gte=0"`
	RateLimitPerDay      int       `gorm:"column:rate_limit_per_day" json:"rate_limit_per_day" validate:"gte=0"`
	MaxTokensPerQuestion int       `gorm:"column:max_tokens_per_question" json:"max_tokens_per_question" validate:"gte=64,lte=8192"`
	MaxConversationTurns int       `gorm:"column:max_conversation_turns" json:"max_conversation_turns" validate:"gte=0,lte=50"`
	WelcomeMessage       string    `gorm:"column:welcome_message;type:text" json:"welcome_message" validate:"required,max=1000"`
	UpdatedAt            time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName 은 GORM 에서 사용할 테이블명을 반환한다.
func (Settings) TableName() string {
	return "assistant_settings"
}

// Defaults 는 설정 행이 없을 때 사용할 기본값을 만든다.
func Defaults(cfg config.AssistantConfig) Settings {
	return Settings{
		ID:                   settingsRowID,
		Enabled:              cfg.Enabled,
		DailyBudgetUSD:       cfg.DailyBudgetUSD,
		MonthlyBudgetUSD:     cfg.MonthlyBudgetUSD,
		RateLimitPerMinute:   cfg.RateLimitPerMinute,
		RateLimitPerHour:     cfg.RateLimitPerHour,
		RateLimitPerDay:      cfg.RateLimitPerDay,
		MaxTokensPerQuestion: cfg.MaxTokensPerQuestion,
		MaxConversationTurns: cfg.MaxConversationTurns,
		WelcomeMessage:       cfg.WelcomeMessage,
	}
}

// Patch 는 관리자 부분 수정 요청이다. nil 이 아닌 필드만 반영된다.
type Patch struct {
	Enabled              *bool    `json:"enabled"`
	DailyBudgetUSD       *float64 `json:"daily_budget_usd"`
	MonthlyBudgetUSD     *float64 `json:"monthly_budget_usd"`
	RateLimitPerMinute   *int     `json:"rate_limit_per_minute"`
	RateLimitPerHour     *int     `json:"rate_limit_per_hour"`
	RateLimitPerDay      *int     `json:"rate_limit_per_day"`
	MaxTokensPerQuestion *int     `json:"max_tokens_per_question"`
	MaxConversationTurns *int     `json:"max_conversation_turns"`
	WelcomeMessage       *string  `json:"welcome_message"`
}

// IsEmpty 는 변경할 필드가 하나도 없는지 확인한다.
func (p Patch) IsEmpty() bool {
	return p.Enabled == nil &&
		p.DailyBudgetUSD == nil &&
		p.MonthlyBudgetUSD == nil &&
		p.RateLimitPerMinute == nil &&
		p.RateLimitPerHour == nil &&
		p.RateLimitPerDay == nil &&
		p.MaxTokensPerQuestion == nil &&
		p.MaxConversationTurns == nil &&
		p.WelcomeMessage == nil
}

// Apply 는 patch 를 적용한 사본을 반환한다.
func (p Patch) Apply(s Settings) Settings {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.DailyBudgetUSD != nil {
		s.DailyBudgetUSD = *p.DailyBudgetUSD
	}
	if p.MonthlyBudgetUSD != nil {
		s.MonthlyBudgetUSD = *p.MonthlyBudgetUSD
	}
	if p.RateLimitPerMinute != nil {
		s.RateLimitPerMinute = *p.RateLimitPerMinute
	}
	if p.RateLimitPerHour != nil {
		s.RateLimitPerHour = *p.RateLimitPerHour
	}
	if p.RateLimitPerDay != nil {
		s.RateLimitPerDay = *p.RateLimitPerDay
	}
	if p.MaxTokensPerQuestion != nil {
		s.MaxTokensPerQuestion = *p.MaxTokensPerQuestion
	}
	if p.MaxConversationTurns != nil {
		s.MaxConversationTurns = *p.MaxConversationTurns
	}
	if p.WelcomeMessage != nil {
		s.WelcomeMessage = *p.WelcomeMessage
	}
	return s
}
