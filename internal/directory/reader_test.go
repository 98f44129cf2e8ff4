package directory

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/park285/directory-assistant-go/internal/database"
	"github.com/park285/directory-assistant-go/internal/database/dbtest"
)

func seed(t *testing.T, db *gorm.DB, now time.Time) {
	t.Helper()
	rows := []any{
		&Category{ID: 1, Name: "Fotografía", Slug: "fotografia"},
		&Category{ID: 2, Name: "Plomería", Slug: "plomeria"},
		&Listing{ID: 1, Name: "Foto Luna", CategoryID: 1, City: "Monterrey", WhatsApp: "8110000000", Verified: true, Active: true, CreatedAt: now},
		&Listing{ID: 2, Name: "Plomería Rápida", CategoryID: 2, City: "Puebla", Phone: "2220000000", Active: true, CreatedAt: now},
		&Listing{ID: 3, Name: "Cerrado", CategoryID: 2, City: "Puebla", Active: false, CreatedAt: now},
		&Review{ListingID: 1, Rating: 5, Comment: "Excelente", CreatedAt: now.Add(-time.Hour)},
		&Review{ListingID: 1, Rating: 4, Comment: "Bien", CreatedAt: now.Add(-2 * time.Hour)},
		&Review{ListingID: 3, Rating: 1, Comment: "Oculto", CreatedAt: now},
		&ActivityEvent{ListingID: 1, Kind: ActivityProfileView, CreatedAt: now.Add(-24 * time.Hour)},
		&ActivityEvent{ListingID: 1, Kind: ActivityProfileView, CreatedAt: now.Add(-10 * 24 * time.Hour)},
		&ActivityEvent{ListingID: 2, Kind: ActivityProfileView, CreatedAt: now.Add(-time.Hour)},
		&ActivityEvent{ListingID: 2, Kind: "contact_click", CreatedAt: now.Add(-time.Hour)},
		&ServiceOffering{ListingID: 1, Name: "Sesión de boda", PriceMXN: 12500},
		&ServiceOffering{ListingID: 3, Name: "Oculto", PriceMXN: 100},
	}
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}
}

func newSeededRepository(t *testing.T) *Repository {
	t.Helper()
	db := dbtest.Open(t)
	conn, err := database.NewFromGorm(db, Migrate)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	seed(t, db, time.Now().UTC())
	return NewRepository(conn)
}

func TestActiveListingsIncludeRatingAggregates(t *testing.T) {
	repo := newSeededRepository(t)

	listings, err := repo.ActiveListings(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 active listings, got %d", len(listings))
	}
	first := listings[0]
	if first.Name != "Foto Luna" || first.CategoryName != "Fotografía" || !first.Verified {
		t.Fatalf("unexpected listing: %+v", first)
	}
	if first.ReviewCount != 2 || first.AvgRating != 4.5 {
		t.Fatalf("unexpected rating aggregate: %+v", first)
	}
	if first.Contact() != "WhatsApp 8110000000" {
		t.Fatalf("unexpected contact: %q", first.Contact())
	}
	if listings[1].ReviewCount != 0 || listings[1].Contact() != "2220000000" {
		t.Fatalf("unexpected second listing: %+v", listings[1])
	}
}

func TestRecentReviewsSkipInactiveListings(t *testing.T) {
	repo := newSeededRepository(t)

	reviews, err := repo.RecentReviews(context.Background(), 10)
	if err != nil {
		t.Fatalf("reviews failed: %v", err)
	}
	if len(reviews) != 2 || reviews[0].Comment != "Excelente" || reviews[0].ListingName != "Foto Luna" {
		t.Fatalf("unexpected reviews: %+v", reviews)
	}
}

func TestActivityCountsWindowAndKind(t *testing.T) {
	repo := newSeededRepository(t)

	counts, err := repo.ActivityCounts(context.Background(), ActivityProfileView, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("activity failed: %v", err)
	}
	byListing := map[uint]int64{}
	for _, c := range counts {
		byListing[c.ListingID] = c.Count
	}
	if byListing[1] != 1 || byListing[2] != 1 {
		t.Fatalf("unexpected counts: %v", byListing)
	}
}

func TestCategoriesAndCatalog(t *testing.T) {
	repo := newSeededRepository(t)
	ctx := context.Background()

	categories, err := repo.Categories(ctx)
	if err != nil || len(categories) != 2 || categories[0].Name != "Fotografía" {
		t.Fatalf("unexpected categories: %+v err=%v", categories, err)
	}

	catalog, err := repo.ServiceCatalog(ctx)
	if err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	if len(catalog) != 1 || catalog[0].Name != "Sesión de boda" || catalog[0].PriceMXN != 12500 {
		t.Fatalf("unexpected catalog: %+v", catalog)
	}
}
