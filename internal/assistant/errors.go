package assistant

import (
	"errors"
	"fmt"
	"time"

	"github.com/park285/directory-assistant-go/internal/budget"
	"github.com/park285/directory-assistant-go/internal/ratelimit"
)

var (
	// ErrDisabled 는 운영자가 어시스턴트를 끈 상태다.
	ErrDisabled = errors.New("assistant disabled")
	// ErrEmptyQuestion 은 질문이 비어 있을 때 반환된다.
	ErrEmptyQuestion = errors.New("question is empty")
)

// QuestionTooLongError 는 질문 길이 상한 초과다.
type QuestionTooLongError struct {
	Length int
	Max    int
}

func (e *QuestionTooLongError) Error() string {
	return fmt.Sprintf("question too long: %d > %d characters", e.Length, e.Max)
}

// RateLimitedError 는 식별자의 요청 창이 가득 찼음을 나타낸다.
type RateLimitedError struct {
	Window     ratelimit.Window
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %d per %s, retry after %s", e.Limit, e.Window, e.RetryAfter.Round(time.Second))
}

// RetryAfterSeconds 는 Retry-After 헤더 값이다. 최소 1초.
func (e *RateLimitedError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	return max(1, secs)
}

// BudgetExceededError 는 기간 누적 비용이 상한에 도달했음을 나타낸다.
type BudgetExceededError struct {
	Period budget.Period
	Spend  float64
	Cap    float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget exceeded: spent %.4f of %.2f USD", e.Period, e.Spend, e.Cap)
}
