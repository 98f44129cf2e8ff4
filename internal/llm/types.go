// Package llm 은 모델 호출에 쓰이는 공용 값 타입을 정의한다.
package llm

import "time"

// Role: 대화 턴의 화자입니다.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn: 대화 히스토리 항목입니다.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage: 토큰 사용량 정보를 담습니다.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	CachedTokens int `json:"cached_tokens"`
	// Estimated 는 응답 메타데이터가 없어 글자 수로 추정했는지 여부다.
	Estimated bool `json:"estimated"`
}

// TotalTokens: 입력+출력 토큰 합계입니다.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Prompt: 모델에 보낼 완성된 요청입니다.
type Prompt struct {
	System          string
	History         []Turn
	User            string
	MaxOutputTokens int
}

// Generation: 모델 응답과 사용량을 담습니다.
type Generation struct {
	Text    string
	Model   string
	Usage   Usage
	Latency time.Duration
}
