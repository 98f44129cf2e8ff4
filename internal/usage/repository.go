package usage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/park285/directory-assistant-go/internal/database"
)

const defaultInsertBatchSize = 100

// Repository 는 usage DB 접근을 담당한다.
type Repository struct {
	conn      *database.Conn
	loc       *time.Location
	batchSize int
}

// NewRepository 는 usage 저장소를 생성한다.
func NewRepository(conn *database.Conn, loc *time.Location, batchSize int) *Repository {
	if loc == nil {
		loc = time.Local
	}
	if batchSize <= 0 {
		batchSize = defaultInsertBatchSize
	}
	return &Repository{conn: conn, loc: loc, batchSize: batchSize}
}

// Migrate 는 assistant_usage 테이블을 준비한다.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("migrate assistant_usage: %w", err)
	}
	return nil
}

// Insert 는 레코드를 배치로 저장한다.
func (r *Repository) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	db, err := r.conn.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.CreateInBatches(records, r.batchSize).Error; err != nil {
		return fmt.Errorf("insert usage records: %w", err)
	}
	return nil
}

// SetFeedback 은 유용성 피드백을 기록한다. 같은 값으로 여러 번 호출해도 결과는 같다.
func (r *Repository) SetFeedback(ctx context.Context, id string, useful bool, at time.Time) (bool, error) {
	db, err := r.conn.DB(ctx)
	if err != nil {
		return false, err
	}
	result := db.Model(&Record{}).Where("id = ?", id).Updates(map[string]any{
		"useful":      useful,
		"feedback_at": at.UTC(),
	})
	if result.Error != nil {
		return false, fmt.Errorf("update usage feedback: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Get 은 id 로 레코드를 조회한다.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	db, err := r.conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := db.Where("id = ?", id).Take(&rec).Error; err != nil {
		return nil, fmt.Errorf("get usage record: %w", err)
	}
	return &rec, nil
}

// SpendBetween 은 [from, to] 구간의 비용 합계를 반환한다.
func (r *Repository) SpendBetween(ctx context.Context, from, to time.Time) (float64, error) {
	db, err := r.conn.DB(ctx)
	if err != nil {
		return 0, err
	}
	var total float64
	if err := db.Model(&Record{}).
		Select("COALESCE(SUM(cost_usd), 0)").
		Where("created_at >= ? AND created_at <= ?", from.UTC(), to.UTC()).
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("sum usage cost: %w", err)
	}
	return total, nil
}

// GetDailyUsage 는 특정 날짜(또는 오늘)의 사용량을 조회한다.
func (r *Repository) GetDailyUsage(ctx context.Context, day time.Time) (DailyUsage, error) {
	if day.IsZero() {
		day = time.Now()
	}
	start := r.dayStart(day)
	rows, err := r.rowsBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return DailyUsage{}, err
	}
	out := DailyUsage{UsageDate: start}
	for _, row := range rows {
		out.add(row)
	}
	return out, nil
}

// GetRecentUsage 는 오늘부터 최근 N일 사용량을 최신순으로 조회한다.
func (r *Repository) GetRecentUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	if days <= 0 {
		days = 7
	}
	today := r.dayStart(time.Now())
	from := today.AddDate(0, 0, -(days - 1))
	rows, err := r.rowsBetween(ctx, from, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	byDay := make(map[time.Time]*DailyUsage, days)
	result := make([]DailyUsage, days)
	for i := range result {
		date := today.AddDate(0, 0, -i)
		result[i] = DailyUsage{UsageDate: date}
		byDay[date] = &result[i]
	}
	for _, row := range rows {
		if bucket, ok := byDay[r.dayStart(row.CreatedAt)]; ok {
			bucket.add(row)
		}
	}
	return result, nil
}

// GetTotalUsage 는 최근 N일 합계를 조회한다.
func (r *Repository) GetTotalUsage(ctx context.Context, days int) (DailyUsage, error) {
	if days <= 0 {
		days = 30
	}
	db, err := r.conn.DB(ctx)
	if err != nil {
		return DailyUsage{}, err
	}
	today := r.dayStart(time.Now())
	from := today.AddDate(0, 0, -(days - 1))

	type aggregate struct {
		Requests     int64
		ModelCalls   int64
		InputTokens  int64
		OutputTokens int64
		CostUSD      float64
	}
	var agg aggregate
	if err := db.Model(&Record{}).
		Select(`COUNT(*) AS requests,
			COALESCE(SUM(CASE WHEN source = 'model' THEN 1 ELSE 0 END), 0) AS model_calls,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens,
			COALESCE(SUM(cost_usd), 0) AS cost_usd`).
		Where("created_at >= ?", from.UTC()).
		Scan(&agg).Error; err != nil {
		return DailyUsage{}, fmt.Errorf("aggregate usage: %w", err)
	}

	return DailyUsage{
		UsageDate:    today,
		Requests:     agg.Requests,
		ModelCalls:   agg.ModelCalls,
		InputTokens:  agg.InputTokens,
		OutputTokens: agg.OutputTokens,
		CostUSD:      agg.CostUSD,
	}, nil
}

func (r *Repository) rowsBetween(ctx context.Context, from, to time.Time) ([]usageRow, error) {
	db, err := r.conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []usageRow
	if err := db.Model(&Record{}).
		Select("source, input_tokens, output_tokens, cost_usd, created_at").
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list usage rows: %w", err)
	}
	return rows, nil
}

func (r *Repository) dayStart(t time.Time) time.Time {
	local := t.In(r.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
}
