package contextbuilder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/directory-assistant-go/internal/directory"
	"github.com/park285/directory-assistant-go/internal/lexicon"
	"github.com/park285/directory-assistant-go/internal/textnorm"
)

type fakeReader struct {
	calls atomic.Int64

	listingsErr error
	reviewsErr  error
	servicesErr error
	delay       time.Duration
}

func (f *fakeReader) ActiveListings(context.Context) ([]directory.ListingSummary, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.listingsErr != nil {
		return nil, f.listingsErr
	}
	return []directory.ListingSummary{
		{ID: 1, Name: "Foto Luna", CategoryName: "Fotografía", City: "Monterrey", WhatsApp: "8110000000", Verified: true, AvgRating: 4.8, ReviewCount: 12},
		{ID: 2, Name: "Lente Norte", CategoryName: "Fotografía", City: "Monterrey", Phone: "8120000000", AvgRating: 4.2, ReviewCount: 5},
		{ID: 3, Name: "Foto Sur", CategoryName: "Fotografía", City: "Guadalajara", AvgRating: 5, ReviewCount: 1},
		{ID: 4, Name: "Plomería Rápida", CategoryName: "Plomería", City: "Puebla", AvgRating: 4.5, ReviewCount: 3},
	}, nil
}

func (f *fakeReader) Categories(context.Context) ([]directory.Category, error) {
	return []directory.Category{{ID: 1, Name: "Fotografía"}, {ID: 2, Name: "Plomería"}}, nil
}

func (f *fakeReader) RecentReviews(context.Context, int) ([]directory.ReviewSnippet, error) {
	if f.reviewsErr != nil {
		return nil, f.reviewsErr
	}
	return []directory.ReviewSnippet{{ListingID: 1, ListingName: "Foto Luna", Rating: 5, Comment: "Muy puntuales"}}, nil
}

func (f *fakeReader) ActivityCounts(context.Context, string, time.Time) ([]directory.ActivityCount, error) {
	return []directory.ActivityCount{{ListingID: 4, Count: 30}, {ListingID: 2, Count: 12}}, nil
}

func (f *fakeReader) ServiceCatalog(context.Context) ([]directory.ServiceOffering, error) {
	if f.servicesErr != nil {
		return nil, f.servicesErr
	}
	return []directory.ServiceOffering{
		{ListingID: 1, Name: "Sesión de boda", PriceMXN: 12500},
		{ListingID: 2, Name: "Sesión de boda", PriceMXN: 9000},
		{ListingID: 4, Name: "Reparación de fuga", PriceMXN: 650, Unit: "visita"},
	}, nil
}

func newTestBuilder(t *testing.T, reader directory.Reader, cfg Config, opts ...Option) *Builder {
	t.Helper()
	lex, err := lexicon.Default()
	if err != nil {
		t.Fatalf("lexicon: %v", err)
	}
	return New(reader, lex, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestBuildIncludesAllSections(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{}, Config{})

	block, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	for _, want := range []string{
		"### Categorías disponibles",
		"### Mejor calificados",
		"### Más visitados (últimos 7 días)",
		"### Catálogo por categoría",
		"### Reseñas recientes",
		"$12,500 MXN",
		"verificado",
		"[Plomería]",
		"Plomería Rápida (Plomería, Puebla): 30 vistas de perfil",
	} {
		if !strings.Contains(block.Text, want) {
			t.Fatalf("expected %q in context:\n%s", want, block.Text)
		}
	}
	if len(block.Omitted) != 0 {
		t.Fatalf("expected no omitted sections, got %v", block.Omitted)
	}
}

func TestTopRatedRequiresMinimumReviews(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{}, Config{MinReviews: 3})

	block, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	topRated := sectionText(block.Text, "### Mejor calificados")
	if strings.Contains(topRated, "Foto Sur") {
		t.Fatalf("single-review listing must not be top rated:\n%s", topRated)
	}
	if !strings.HasPrefix(strings.TrimSpace(topRated), "- Foto Luna") {
		t.Fatalf("expected highest mean first:\n%s", topRated)
	}
}

func TestBuildOmitsFailedSections(t *testing.T) {
	reader := &fakeReader{reviewsErr: errors.New("timeout"), servicesErr: errors.New("boom")}
	b := newTestBuilder(t, reader, Config{})

	block, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !slices.Contains(block.Omitted, SectionReviews) || !slices.Contains(block.Omitted, SectionCatalog) {
		t.Fatalf("expected reviews and catalog omitted, got %v", block.Omitted)
	}
	if strings.Contains(block.Text, "Reseñas recientes") || strings.Contains(block.Text, "Catálogo") {
		t.Fatalf("failed sections must not render:\n%s", block.Text)
	}
	if !strings.Contains(block.Text, "Mejor calificados") {
		t.Fatalf("healthy sections must remain:\n%s", block.Text)
	}
}

func TestBuildWithoutListings(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{listingsErr: errors.New("down")}, Config{})

	block, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.Contains(block.Text, "Categorías disponibles") {
		t.Fatalf("categories should survive listing failure:\n%s", block.Text)
	}
	if len(block.Snapshot.Listings) != 0 {
		t.Fatalf("snapshot should be empty")
	}
}

func TestBuildRespectsMaxChars(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{}, Config{MaxChars: 200})

	block, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if n := textnorm.RuneLen(block.Text); n > 200 {
		t.Fatalf("context exceeds bound: %d runes", n)
	}
	if !strings.HasPrefix(block.Text, "### Categorías disponibles") {
		t.Fatalf("highest priority section must be kept:\n%s", block.Text)
	}
	if len(block.Omitted) == 0 {
		t.Fatalf("expected low priority sections dropped")
	}
}

func TestBuildMemoizesWithinTTL(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	reader := &fakeReader{delay: 20 * time.Millisecond}
	b := newTestBuilder(t, reader, Config{TTL: time.Minute}, WithClock(clock))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Build(context.Background()); err != nil {
				t.Errorf("build failed: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := reader.calls.Load(); got != 1 {
		t.Fatalf("expected concurrent builds to share one fetch, got %d", got)
	}

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	if _, err := b.Build(context.Background()); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if got := reader.calls.Load(); got != 2 {
		t.Fatalf("expected rebuild after ttl, got %d fetches", got)
	}
}

func TestSnapshotCandidates(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{}, Config{})
	block, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	got := block.Snapshot.Candidates(Query{ServiceType: "fotografia", City: "monterrey", Limit: 5})
	if len(got) != 2 || got[0].Name != "Foto Luna" || got[1].Name != "Lente Norte" {
		t.Fatalf("unexpected candidates: %+v", got)
	}

	cheap := block.Snapshot.Candidates(Query{ServiceType: "fotografia", City: "Monterrey", MaxPriceMXN: 10000})
	if len(cheap) != 1 || cheap[0].Name != "Lente Norte" {
		t.Fatalf("expected budget filter, got %+v", cheap)
	}

	if len(block.Snapshot.Candidates(Query{})) != 0 {
		t.Fatalf("empty service type must yield no candidates")
	}
}

func TestFormatPriceMXN(t *testing.T) {
	if got := FormatPriceMXN(12500); got != "$12,500 MXN" {
		t.Fatalf("unexpected format: %q", got)
	}
	if got := FormatPriceMXN(650.4); got != "$650 MXN" {
		t.Fatalf("unexpected format: %q", got)
	}
}

func sectionText(text, header string) string {
	idx := strings.Index(text, header)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(header):]
	if end := strings.Index(rest, "\n###"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
