package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/park285/directory-assistant-go/internal/cache"
	"github.com/park285/directory-assistant-go/internal/database"
)

const defaultRefreshInterval = 5 * time.Second

// Source 는 파이프라인이 매 요청마다 읽는 설정 공급자다.
type Source interface {
	Get(ctx context.Context) (Settings, error)
}

// Repository 는 assistant_settings 단일 행을 관리한다.
// 조회 결과는 짧게 메모리에 캐시된다.
type Repository struct {
	conn     *database.Conn
	defaults Settings
	logger   *slog.Logger
	now      func() time.Time

	writeMu sync.Mutex
	cached  *cache.TTLCache[uint, Settings]
}

// Option 은 Repository 옵션이다.
type Option func(*Repository)

// WithClock 은 테스트용 시계를 주입한다.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRepository 는 설정 저장소를 생성한다.
func NewRepository(conn *database.Conn, defaults Settings, logger *slog.Logger, opts ...Option) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	defaults.ID = settingsRowID
	r := &Repository{
		conn:     conn,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cached = cache.NewTTLCache[uint, Settings](1, defaultRefreshInterval, cache.WithClock(r.now))
	return r
}

// Migrate 는 assistant_settings 테이블을 준비한다.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Settings{}); err != nil {
		return fmt.Errorf("migrate assistant_settings: %w", err)
	}
	return nil
}

// Defaults 는 저장소 기본값을 반환한다.
func (r *Repository) Defaults() Settings {
	return r.defaults
}

// Get 은 현재 설정을 반환한다. 행이 없으면 기본값으로 생성한다.
func (r *Repository) Get(ctx context.Context) (Settings, error) {
	if s, ok := r.cached.Get(settingsRowID); ok {
		return s, nil
	}

	db, err := r.conn.DB(ctx)
	if err != nil {
		return r.defaults, err
	}
	s, err := r.load(db)
	if err != nil {
		return r.defaults, err
	}
	r.cached.Set(settingsRowID, s)
	return s, nil
}

// Update 는 patch 를 검증 후 반영하고 최신 설정을 반환한다.
func (r *Repository) Update(ctx context.Context, patch Patch) (Settings, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	db, err := r.conn.DB(ctx)
	if err != nil {
		return Settings{}, err
	}
	current, err := r.load(db)
	if err != nil {
		return Settings{}, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	next := patch.Apply(current)
	if err := Validate(next); err != nil {
		return Settings{}, err
	}
	next.UpdatedAt = r.now().UTC()
	if err := db.Save(&next).Error; err != nil {
		return Settings{}, fmt.Errorf("save assistant settings: %w", err)
	}
	r.cached.Set(settingsRowID, next)

	r.logger.InfoContext(ctx, "assistant_settings_updated",
		"enabled", next.Enabled,
		"daily_budget_usd", next.DailyBudgetUSD,
		"monthly_budget_usd", next.MonthlyBudgetUSD,
		"rate_limit_per_minute", next.RateLimitPerMinute,
	)
	return next, nil
}

func (r *Repository) load(db *gorm.DB) (Settings, error) {
	var s Settings
	err := db.Where("id = ?", settingsRowID).First(&s).Error
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Settings{}, fmt.Errorf("load assistant settings: %w", err)
	}

	s = r.defaults
	s.UpdatedAt = r.now().UTC()
	if err := db.Create(&s).Error; err != nil {
		return Settings{}, fmt.Errorf("create assistant settings: %w", err)
	}
	r.logger.Info("assistant_settings_initialized", "enabled", s.Enabled)
	return s, nil
}
