package usage

import (
	"context"
	"time"
)

// Store: 사용량 저장소 인터페이스입니다.
// 테스트에서 mock 구현을 주입할 수 있도록 합니다.
type Store interface {
	// Insert 레코드 일괄 저장
	Insert(ctx context.Context, records []Record) error

	// SetFeedback 유용성 피드백 기록, 레코드가 있으면 true
	SetFeedback(ctx context.Context, id string, useful bool, at time.Time) (bool, error)
}

// Reader: 집계 조회 인터페이스입니다.
type Reader interface {
	GetDailyUsage(ctx context.Context, day time.Time) (DailyUsage, error)
	GetRecentUsage(ctx context.Context, days int) ([]DailyUsage, error)
	GetTotalUsage(ctx context.Context, days int) (DailyUsage, error)
	SpendBetween(ctx context.Context, from, to time.Time) (float64, error)
}

var (
	_ Store  = (*Repository)(nil)
	_ Reader = (*Repository)(nil)
)
