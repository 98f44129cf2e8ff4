package directory

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/park285/directory-assistant-go/internal/database"
)

// Reader 는 컨텍스트 생성에 필요한 조회 계약이다.
type Reader interface {
	ActiveListings(ctx context.Context) ([]ListingSummary, error)
	Categories(ctx context.Context) ([]Category, error)
	RecentReviews(ctx context.Context, limit int) ([]ReviewSnippet, error)
	ActivityCounts(ctx context.Context, kind string, since time.Time) ([]ActivityCount, error)
	ServiceCatalog(ctx context.Context) ([]ServiceOffering, error)
}

// Repository 는 gorm 기반 Reader 구현이다.
type Repository struct {
	conn *database.Conn
}

var _ Reader = (*Repository)(nil)

// NewRepository 는 디렉터리 조회 저장소를 생성한다.
func NewRepository(conn *database.Conn) *Repository {
	return &Repository{conn: conn}
}

// Migrate 는 조회 대상 테이블을 준비한다. 테스트와 로컬 개발 환경용이다.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Category{}, &Listing{}, &Review{}, &ActivityEvent{}, &ServiceOffering{}); err != nil {
		return fmt.Errorf("migrate directory tables: %w", err)
	}
	return nil
}

// ActiveListings 는 활성 제공자를 카테고리명, 평점 평균, 리뷰 수와 함께 조회한다.
func (r *Repository) ActiveListings(ctx context.Context) ([]ListingSummary, error) {
	db, err := r.conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []ListingSummary
	err = db.Table("directory_listings AS l").
		Select(`l.id AS id, l.name AS name, l.category_id AS category_id,
			COALESCE(c.name, '') AS category_name, l.city AS city, l.phone AS phone,
			l.whatsapp AS whats_app, l.verified AS verified,
			COALESCE(AVG(r.rating), 0) AS avg_rating, COUNT(r.id) AS review_count`).
		Joins("LEFT JOIN directory_categories c ON c.id = l.category_id").
		Joins("LEFT JOIN directory_reviews r ON r.listing_id = l.id").
		Where("l.active = ?", true).
		Group("l.id, l.name, l.category_id, c.name, l.city, l.phone, l.whatsapp, l.verified").
		Order("l.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list active listings: %w", err)
	}
	return rows, nil
}

// Categories 는 카테고리 목록을 이름순으로 조회한다.
func (r *Repository) Categories(ctx context.Context) ([]Category, error) {
	db, err := r.conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []Category
	if err := db.Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return rows, nil
}

// RecentReviews 는 최근 리뷰를 최신순으로 조회한다.
func (r *Repository) RecentReviews(ctx context.Context, limit int) ([]ReviewSnippet, error) {
	db, err := r.conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []ReviewSnippet
	err = db.Table("directory_reviews AS r").
		Select("r.listing_id AS listing_id, l.name AS listing_name, r.rating AS rating, r.comment AS comment, r.created_at AS created_at").
		Joins("JOIN directory_listings l ON l.id = r.listing_id AND l.active = ?", true).
		Order("r.created_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list recent reviews: %w", err)
	}
	return rows, nil
}

// ActivityCounts 는 since 이후 kind 이벤트 수를 제공자별로 집계한다.
func (r *Repository) ActivityCounts(ctx context.Context, kind string, since time.Time) ([]ActivityCount, error) {
	db, err := r.conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []ActivityCount
	err = db.Model(&ActivityEvent{}).
		Select("listing_id, COUNT(*) AS count").
		Where("kind = ? AND created_at >= ?", kind, since.UTC()).
		Group("listing_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count activity events: %w", err)
	}
	return rows, nil
}

// ServiceCatalog 는 활성 제공자의 서비스 목록을 조회한다.
func (r *Repository) ServiceCatalog(ctx context.Context) ([]ServiceOffering, error) {
	db, err := r.conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []ServiceOffering
	err = db.Model(&ServiceOffering{}).
		Joins("JOIN directory_listings l ON l.id = directory_services.listing_id AND l.active = ?", true).
		Order("directory_services.listing_id, directory_services.price_mxn").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list service catalog: %w", err)
	}
	return rows, nil
}
