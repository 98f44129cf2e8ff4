package usage

import (
	"time"

	"gorm.io/datatypes"
)

// Record 는 질문 1건의 처리 결과를 저장하는 DB 모델이다.
type Record struct {
	ID           string            `gorm:"column:id;primaryKey;size:36" json:"id"`
	SessionID    string            `gorm:"column:session_id;size:64;index" json:"session_id,omitempty"`
	Identifier   string            `gorm:"column:identifier;size:128;index" json:"identifier"`
	Question     string            `gorm:"column:question;type:text" json:"question"`
	Answer       string            `gorm:"column:answer;type:text" json:"answer"`
	Source       string            `gorm:"column:source;size:16;index" json:"source"`
	Model        string            `gorm:"column:model;size:64" json:"model,omitempty"`
	InputTokens  int64             `gorm:"column:input_tokens" json:"input_tokens"`
	OutputTokens int64             `gorm:"column:output_tokens" json:"output_tokens"`
	CostUSD      float64           `gorm:"column:cost_usd" json:"cost_usd"`
	LatencyMs    int64             `gorm:"column:latency_ms" json:"latency_ms"`
	Error        string            `gorm:"column:error;type:text" json:"error,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	Useful       *bool             `gorm:"column:useful" json:"useful,omitempty"`
	FeedbackAt   *time.Time        `gorm:"column:feedback_at" json:"feedback_at,omitempty"`
	CreatedAt    time.Time         `gorm:"column:created_at;index" json:"created_at"`
}

// TableName 은 GORM 에서 사용할 테이블명을 반환한다.
func (Record) TableName() string {
	return "assistant_usage"
}

// DailyUsage 는 API/집계용 일자별 사용량 뷰 모델이다.
type DailyUsage struct {
	UsageDate    time.Time `json:"usage_date"`
	Requests     int64     `json:"requests"`
	ModelCalls   int64     `json:"model_calls"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}

// TotalTokens 는 입력+출력 토큰 합계를 반환한다.
func (d DailyUsage) TotalTokens() int64 {
	return d.InputTokens + d.OutputTokens
}

func (d *DailyUsage) add(row usageRow) {
	d.Requests++
	if row.Source == "model" {
		d.ModelCalls++
	}
	d.InputTokens += row.InputTokens
	d.OutputTokens += row.OutputTokens
	d.CostUSD += row.CostUSD
}

type usageRow struct {
	Source       string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	CreatedAt    time.Time
}
