// Package directory 는 마켓플레이스 데이터의 읽기 전용 모델과 조회를 담당한다.
// 테이블 소유자는 마켓플레이스 본체이며, 이 패키지는 조회만 한다.
package directory

import "time"

// ActivityProfileView 는 프로필 조회 이벤트 종류다.
const ActivityProfileView = "profile_view"

// Category 는 서비스 카테고리다.
type Category struct {
	ID   uint   `gorm:"column:id;primaryKey" json:"id"`
	Name string `gorm:"column:name;size:120" json:"name"`
	Slug string `gorm:"column:slug;size:120;uniqueIndex" json:"slug"`
}

// TableName 은 GORM 에서 사용할 테이블명을 반환한다.
func (Category) TableName() string { return "directory_categories" }

// Listing 은 등록된 제공자다.
type Listing struct {
	ID         uint      `gorm:"column:id;primaryKey"`
	Name       string    `gorm:"column:name;size:200"`
	CategoryID uint      `gorm:"column:category_id;index"`
	City       string    `gorm:"column:city;size:120"`
	Phone      string    `gorm:"column:phone;size:40"`
	WhatsApp   string    `gorm:"column:whatsapp;size:40"`
	Verified   bool      `gorm:"column:verified"`
	Active     bool      `gorm:"column:active;index"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName 은 GORM 에서 사용할 테이블명을 반환한다.
func (Listing) TableName() string { return "directory_listings" }

// Review 는 제공자 리뷰다.
type Review struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	ListingID uint      `gorm:"column:listing_id;index"`
	Rating    int       `gorm:"column:rating"`
	Comment   string    `gorm:"column:comment;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
}

// TableName 은 GORM 에서 사용할 테이블명을 반환한다.
func (Review) TableName() string { return "directory_reviews" }

// ActivityEvent 는 제공자 관련 사용자 행동 이벤트다.
type ActivityEvent struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	ListingID uint      `gorm:"column:listing_id;index"`
	Kind      string    `gorm:"column:kind;size:32;index"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
}

// TableName 은 GORM 에서 사용할 테이블명을 반환한다.
func (ActivityEvent) TableName() string { return "directory_activity_events" }

// ServiceOffering 은 제공자가 게시한 서비스와 가격이다.
type ServiceOffering struct {
	ID        uint    `gorm:"column:id;primaryKey" json:"id"`
	ListingID uint    `gorm:"column:listing_id;index" json:"listing_id"`
	Name      string  `gorm:"column:name;size:200" json:"name"`
	PriceMXN  float64 `gorm:"column:price_mxn" json:"price_mxn"`
	Unit      string  `gorm:"column:unit;size:40" json:"unit,omitempty"`
}

// TableName 은 GORM 에서 사용할 테이블명을 반환한다.
func (ServiceOffering) TableName() string { return "directory_services" }

// ListingSummary 는 연락처와 평점 집계를 포함한 활성 제공자 행이다.
type ListingSummary struct {
	ID           uint    `json:"id"`
	Name         string  `json:"name"`
	CategoryID   uint    `json:"category_id"`
	CategoryName string  `json:"category_name"`
	City         string  `json:"city"`
	Phone        string  `json:"phone,omitempty"`
	WhatsApp     string  `json:"whatsapp,omitempty"`
	Verified     bool    `json:"verified"`
	AvgRating    float64 `json:"avg_rating"`
	ReviewCount  int64   `json:"review_count"`
}

// Contact 는 노출용 연락처를 반환한다. WhatsApp 이 우선이다.
func (l ListingSummary) Contact() string {
	if l.WhatsApp != "" {
		return "WhatsApp " + l.WhatsApp
	}
	return l.Phone
}

// ReviewSnippet 은 최근 리뷰 한 건이다.
type ReviewSnippet struct {
	ListingID   uint
	ListingName string
	Rating      int
	Comment     string
	CreatedAt   time.Time
}

// ActivityCount 는 제공자별 이벤트 수다.
type ActivityCount struct {
	ListingID uint
	Count     int64
}
