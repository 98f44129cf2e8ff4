// Package budget 는 일/월 누적 비용 상한을 검사한다.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Period 는 예산 기간이다.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ErrSpendUnavailable 은 fail-closed 모드에서 지출 조회 실패로 거부했음을 나타낸다.
var ErrSpendUnavailable = errors.New("spend source unavailable")

// SpendSource 는 기간 내 누적 비용(USD)을 제공한다.
type SpendSource interface {
	SpendBetween(ctx context.Context, from, to time.Time) (float64, error)
}

// PendingSource 는 아직 영속화되지 않은 지출을 제공한다.
type PendingSource interface {
	PendingSpend(from, to time.Time) float64
}

type combinedSpend struct {
	persisted SpendSource
	pending   PendingSource
}

// WithPending 은 영속 지출에 대기 중 지출을 더하는 SpendSource 를 만든다.
// 배치 저장 전의 비용도 상한 검사에 들어간다.
func WithPending(persisted SpendSource, pending PendingSource) SpendSource {
	if pending == nil {
		return persisted
	}
	return combinedSpend{persisted: persisted, pending: pending}
}

func (c combinedSpend) SpendBetween(ctx context.Context, from, to time.Time) (float64, error) {
	queued := c.pending.PendingSpend(from, to)
	if c.persisted == nil {
		return queued, nil
	}
	stored, err := c.persisted.SpendBetween(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return stored + queued, nil
}

// DegradedReporter 는 저하 모드 진입을 집계한다.
type DegradedReporter interface {
	IncDegraded(component string)
}

// Caps 는 기간별 상한(USD)이다. 0 이하이면 해당 기간은 검사하지 않는다.
type Caps struct {
	DailyUSD   float64
	MonthlyUSD float64
}

// Result 는 예산 검사 결과다.
type Result struct {
	Allowed  bool
	Degraded bool
	Period   Period
	Spend    float64
	Cap      float64
}

// Guard 는 누적 비용이 상한에 도달하면 요청을 거부한다.
type Guard struct {
	source   SpendSource
	loc      *time.Location
	failOpen bool
	now      func() time.Time
	logger   *slog.Logger
	degraded DegradedReporter
}

// NewGuard 는 예산 guard 를 생성한다.
func NewGuard(source SpendSource, loc *time.Location, failOpen bool, logger *slog.Logger, degraded DegradedReporter) *Guard {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		source:   source,
		loc:      loc,
		failOpen: failOpen,
		now:      time.Now,
		logger:   logger,
		degraded: degraded,
	}
}

// SetClock 은 테스트용 시계를 지정한다.
func (g *Guard) SetClock(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// Check 는 일 -> 월 순서로 지출이 상한 미만인지 검사한다.
func (g *Guard) Check(ctx context.Context, caps Caps) (Result, error) {
	now := g.now().In(g.loc)
	y, m, d := now.Date()

	periods := []struct {
		period Period
		cap    float64
		start  time.Time
	}{
		{PeriodDay, caps.DailyUSD, time.Date(y, m, d, 0, 0, 0, 0, g.loc)},
		{PeriodMonth, caps.MonthlyUSD, time.Date(y, m, 1, 0, 0, 0, 0, g.loc)},
	}

	for _, p := range periods {
		if p.cap <= 0 {
			continue
		}
		spend, err := g.source.SpendBetween(ctx, p.start, now)
		if err != nil {
			g.logger.WarnContext(ctx, "budget_spend_unavailable", "period", p.period, "err", err, "fail_open", g.failOpen)
			if g.degraded != nil {
				g.degraded.IncDegraded("budget")
			}
			if g.failOpen {
				return Result{Allowed: true, Degraded: true}, nil
			}
			return Result{}, fmt.Errorf("%w: %w", ErrSpendUnavailable, err)
		}
		if spend >= p.cap {
			return Result{Allowed: false, Period: p.period, Spend: spend, Cap: p.cap}, nil
		}
	}
	return Result{Allowed: true}, nil
}
