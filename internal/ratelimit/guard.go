package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrStoreUnavailable 은 fail-closed 모드에서 카운터 저장소 장애로 거부했음을 나타낸다.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// DegradedReporter 는 저하 모드 진입을 집계한다.
type DegradedReporter interface {
	IncDegraded(component string)
}

// Decision 은 admission 결과다.
type Decision struct {
	Allowed    bool
	Degraded   bool
	Window     Window
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Guard 는 식별자별 minute/hour/day 요청 수를 제한한다.
type Guard struct {
	store    CounterStore
	loc      *time.Location
	failOpen bool
	now      func() time.Time
	logger   *slog.Logger
	degraded DegradedReporter
}

// Option 은 Guard 옵션이다.
type Option func(*Guard)

// WithClock 은 버킷 계산 시계를 지정한다.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithDegradedReporter 는 저하 모드 집계 대상을 지정한다.
func WithDegradedReporter(r DegradedReporter) Option {
	return func(g *Guard) { g.degraded = r }
}

// NewGuard 는 rate limit guard 를 생성한다.
func NewGuard(store CounterStore, loc *time.Location, failOpen bool, logger *slog.Logger, opts ...Option) *Guard {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guard{
		store:    store,
		loc:      loc,
		failOpen: failOpen,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit 는 모든 활성 윈도우에 여유가 있을 때만 요청을 허용하고 카운트한다.
// 거부는 카운트 전에 결정되므로 거부된 요청은 어떤 윈도우도 소모하지 않는다.
func (g *Guard) Admit(ctx context.Context, identifier string, limits Limits) (Decision, error) {
	now := g.now()
	bs := buckets(normalizeIdentifier(identifier), limits, now, g.loc)
	if len(bs) == 0 {
		return Decision{Allowed: true}, nil
	}

	idx, err := g.store.Admit(ctx, bs)
	if err != nil {
		g.logger.WarnContext(ctx, "rate_limit_store_unavailable", "err", err, "fail_open", g.failOpen)
		if g.degraded != nil {
			g.degraded.IncDegraded("rate_limit")
		}
		if g.failOpen {
			return Decision{Allowed: true, Degraded: true}, nil
		}
		return Decision{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if idx < 0 {
		return Decision{Allowed: true}, nil
	}

	b := bs[idx]
	return Decision{
		Allowed:    false,
		Window:     b.Window,
		Limit:      b.Limit,
		ResetAt:    b.ResetAt,
		RetryAfter: b.ResetAt.Sub(now),
	}, nil
}

func normalizeIdentifier(identifier string) string {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return "anonymous"
	}
	return strings.ReplaceAll(id, " ", "_")
}
