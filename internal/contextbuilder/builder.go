// Package contextbuilder 는 마켓플레이스 현황을 모델 프롬프트용 텍스트 블록으로 만든다.
package contextbuilder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/park285/directory-assistant-go/internal/cache"
	"github.com/park285/directory-assistant-go/internal/directory"
	"github.com/park285/directory-assistant-go/internal/textnorm"
)

const (
	memoKey            = "context"
	defaultMaxChars    = 12000
	defaultMinReviews  = 3
	defaultWindow      = 7 * 24 * time.Hour
	defaultReviewLimit = 50
	topN               = 5
	maxReviewLines     = 10
	maxCommentRunes    = 160
	buildTimeout       = 5 * time.Second
)

// 섹션 이름. 로그와 Block.Omitted 에 쓰인다.
const (
	SectionCategories = "categories"
	SectionTopRated   = "top_rated"
	SectionMostActive = "most_active"
	SectionCatalog    = "catalog"
	SectionReviews    = "recent_reviews"
)

// Classifier 는 텍스트에서 서비스 종류를 판별한다.
type Classifier interface {
	ServiceType(folded string) (string, bool)
}

// Config 는 Builder 설정이다.
type Config struct {
	MaxChars       int
	MinReviews     int
	ActivityWindow time.Duration
	ReviewLimit    int
	// TTL 이 0 이면 결과를 메모이즈하지 않는다.
	TTL time.Duration
}

// Block 은 생성된 컨텍스트다.
type Block struct {
	Text     string
	Snapshot Snapshot
	// Omitted 는 조회 실패 또는 길이 제한으로 빠진 섹션이다.
	Omitted []string
	BuiltAt time.Time
}

// Builder 는 다섯 가지 조회를 동시에 수행해 컨텍스트를 만든다.
// 조회 하나가 실패하면 해당 섹션만 빠진다.
type Builder struct {
	reader   directory.Reader
	classify Classifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	sf   singleflight.Group
	memo *cache.TTLCache[string, Block]
}

// Option 은 Builder 옵션이다.
type Option func(*Builder)

// WithClock 은 테스트용 시계를 주입한다.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// New 는 Builder 를 생성한다.
func New(reader directory.Reader, classify Classifier, cfg Config, logger *slog.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	if cfg.MinReviews <= 0 {
		cfg.MinReviews = defaultMinReviews
	}
	if cfg.ActivityWindow <= 0 {
		cfg.ActivityWindow = defaultWindow
	}
	if cfg.ReviewLimit <= 0 {
		cfg.ReviewLimit = defaultReviewLimit
	}

	b := &Builder{
		reader:   reader,
		classify: classify,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if cfg.TTL > 0 {
		b.memo = cache.NewTTLCache[string, Block](1, cfg.TTL, cache.WithClock(b.now))
	}
	return b
}

// Build 는 컨텍스트 블록을 반환한다. 동시에 들어온 호출은 한 번의 생성 결과를 공유한다.
func (b *Builder) Build(ctx context.Context) (Block, error) {
	if b.memo != nil {
		if block, ok := b.memo.Get(memoKey); ok {
			return block, nil
		}
	}

	resultCh := b.sf.DoChan(memoKey, func() (any, error) {
		if b.memo != nil {
			if block, ok := b.memo.Get(memoKey); ok {
				return block, nil
			}
		}
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()
		block := b.build(buildCtx)
		if b.memo != nil {
			b.memo.Set(memoKey, block)
		}
		return block, nil
	})

	select {
	case result := <-resultCh:
		block, ok := result.Val.(Block)
		if !ok {
			return Block{}, fmt.Errorf("context builder invalid singleflight result type: %T", result.Val)
		}
		return block, nil
	case <-ctx.Done():
		return Block{}, fmt.Errorf("context builder: %w", ctx.Err())
	}
}

type reads struct {
	listings    []directory.ListingSummary
	listingsErr error
	categories  []directory.Category
	categoryErr error
	reviews     []directory.ReviewSnippet
	reviewsErr  error
	activity    []directory.ActivityCount
	activityErr error
	services    []directory.ServiceOffering
	servicesErr error
}

func (b *Builder) fetch(ctx context.Context) reads {
	var r reads
	since := b.now().Add(-b.cfg.ActivityWindow)

	// 각 조회는 자기 오류만 기록하고 nil 을 반환해 다른 조회를 취소하지 않는다.
	var g errgroup.Group
	g.Go(func() error {
		r.listings, r.listingsErr = b.reader.ActiveListings(ctx)
		return nil
	})
	g.Go(func() error {
		r.categories, r.categoryErr = b.reader.Categories(ctx)
		return nil
	})
	g.Go(func() error {
		r.reviews, r.reviewsErr = b.reader.RecentReviews(ctx, b.cfg.ReviewLimit)
		return nil
	})
	g.Go(func() error {
		r.activity, r.activityErr = b.reader.ActivityCounts(ctx, directory.ActivityProfileView, since)
		return nil
	})
	g.Go(func() error {
		r.services, r.servicesErr = b.reader.ServiceCatalog(ctx)
		return nil
	})
	_ = g.Wait()
	return r
}

type section struct {
	name  string
	title string
	lines []string
}

func (b *Builder) build(ctx context.Context) Block {
	r := b.fetch(ctx)
	var omitted []string

	fail := func(name string, err error) {
		omitted = append(omitted, name)
		b.logger.WarnContext(ctx, "context_section_failed", "section", name, "err", err)
	}

	listings := b.classifyListings(r)

	var sections []section
	if r.categoryErr != nil {
		fail(SectionCategories, r.categoryErr)
	} else if s, ok := categoriesSection(r.categories); ok {
		sections = append(sections, s)
	}

	if r.listingsErr != nil {
		fail(SectionTopRated, r.listingsErr)
	} else if s, ok := topRatedSection(listings, b.cfg.MinReviews); ok {
		sections = append(sections, s)
	}

	switch {
	case r.listingsErr != nil:
		fail(SectionMostActive, r.listingsErr)
	case r.activityErr != nil:
		fail(SectionMostActive, r.activityErr)
	default:
		if s, ok := mostActiveSection(listings, b.cfg.ActivityWindow); ok {
			sections = append(sections, s)
		}
	}

	switch {
	case r.listingsErr != nil:
		fail(SectionCatalog, r.listingsErr)
	case r.servicesErr != nil:
		fail(SectionCatalog, r.servicesErr)
	default:
		if s, ok := catalogSection(listings); ok {
			sections = append(sections, s)
		}
	}

	if r.reviewsErr != nil {
		fail(SectionReviews, r.reviewsErr)
	} else if s, ok := reviewsSection(r.reviews); ok {
		sections = append(sections, s)
	}

	text, truncated := render(sections, b.cfg.MaxChars)
	omitted = append(omitted, truncated...)

	return Block{
		Text:     text,
		Snapshot: Snapshot{Listings: listings},
		Omitted:  omitted,
		BuiltAt:  b.now(),
	}
}

func (b *Builder) classifyListings(r reads) []Listing {
	if r.listingsErr != nil {
		return nil
	}

	servicesByListing := make(map[uint][]directory.ServiceOffering)
	if r.servicesErr == nil {
		for _, s := range r.services {
			servicesByListing[s.ListingID] = append(servicesByListing[s.ListingID], s)
		}
	}
	views := make(map[uint]int64)
	if r.activityErr == nil {
		for _, a := range r.activity {
			views[a.ListingID] += a.Count
		}
	}

	out := make([]Listing, 0, len(r.listings))
	for _, summary := range r.listings {
		l := Listing{
			ListingSummary: summary,
			Services:       servicesByListing[summary.ID],
			Views:          views[summary.ID],
		}
		if b.classify != nil {
			text := []string{summary.CategoryName, summary.Name}
			for _, s := range l.Services {
				text = append(text, s.Name)
			}
			l.ServiceType, _ = b.classify.ServiceType(textnorm.Fold(strings.Join(text, " ")))
		}
		out = append(out, l)
	}
	return out
}

func categoriesSection(categories []directory.Category) (section, bool) {
	if len(categories) == 0 {
		return section{}, false
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return section{
		name:  SectionCategories,
		title: "Categorías disponibles",
		lines: []string{strings.Join(names, ", ")},
	}, true
}

func topRatedSection(listings []Listing, minReviews int) (section, bool) {
	var rated []Listing
	for _, l := range listings {
		if l.ReviewCount >= int64(minReviews) {
			rated = append(rated, l)
		}
	}
	if len(rated) == 0 {
		return section{}, false
	}
	sort.SliceStable(rated, func(i, j int) bool {
		if rated[i].AvgRating != rated[j].AvgRating {
			return rated[i].AvgRating > rated[j].AvgRating
		}
		return rated[i].ReviewCount > rated[j].ReviewCount
	})
	if len(rated) > topN {
		rated = rated[:topN]
	}

	lines := make([]string, 0, len(rated))
	for _, l := range rated {
		lines = append(lines, fmt.Sprintf("- %s (%s, %s): %s", l.Name, l.CategoryName, l.City, formatRating(l.AvgRating, l.ReviewCount)))
	}
	return section{name: SectionTopRated, title: "Mejor calificados", lines: lines}, true
}

func mostActiveSection(listings []Listing, window time.Duration) (section, bool) {
	var active []Listing
	for _, l := range listings {
		if l.Views > 0 {
			active = append(active, l)
		}
	}
	if len(active) == 0 {
		return section{}, false
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Views > active[j].Views
	})
	if len(active) > topN {
		active = active[:topN]
	}

	days := int(window / (24 * time.Hour))
	lines := make([]string, 0, len(active))
	for _, l := range active {
		lines = append(lines, fmt.Sprintf("- %s (%s, %s): %d vistas de perfil", l.Name, l.CategoryName, l.City, l.Views))
	}
	return section{
		name:  SectionMostActive,
		title: fmt.Sprintf("Más visitados (últimos %d días)", days),
		lines: lines,
	}, true
}

func catalogSection(listings []Listing) (section, bool) {
	if len(listings) == 0 {
		return section{}, false
	}
	byCategory := make(map[string][]Listing)
	var categories []string
	for _, l := range listings {
		name := l.CategoryName
		if name == "" {
			name = "Otros"
		}
		if _, ok := byCategory[name]; !ok {
			categories = append(categories, name)
		}
		byCategory[name] = append(byCategory[name], l)
	}
	sort.Strings(categories)

	var lines []string
	for _, name := range categories {
		group := byCategory[name]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].AvgRating > group[j].AvgRating
		})
		lines = append(lines, "["+name+"]")
		for _, l := range group {
			lines = append(lines, catalogLine(l))
		}
	}
	return section{name: SectionCatalog, title: "Catálogo por categoría", lines: lines}, true
}

func reviewsSection(reviews []directory.ReviewSnippet) (section, bool) {
	var lines []string
	for _, r := range reviews {
		comment := strings.TrimSpace(r.Comment)
		if comment == "" {
			continue
		}
		if textnorm.RuneLen(comment) > maxCommentRunes {
			comment = textnorm.Truncate(comment, maxCommentRunes) + "…"
		}
		lines = append(lines, fmt.Sprintf("- %s: %d★ \"%s\"", r.ListingName, r.Rating, comment))
		if len(lines) == maxReviewLines {
			break
		}
	}
	if len(lines) == 0 {
		return section{}, false
	}
	return section{name: SectionReviews, title: "Reseñas recientes", lines: lines}, true
}

// render 는 섹션을 우선순위 순서대로 이어 붙이며 maxChars 룬을 넘지 않게 한다.
// 한 줄도 들어가지 못한 섹션 이름을 반환한다.
func render(sections []section, maxChars int) (string, []string) {
	var (
		b       strings.Builder
		used    int
		dropped []string
	)
	for _, s := range sections {
		header := "### " + s.title + "\n"
		if b.Len() > 0 {
			header = "\n" + header
		}
		headerLen := textnorm.RuneLen(header)

		var body []string
		bodyLen := 0
		for _, line := range s.lines {
			n := textnorm.RuneLen(line) + 1
			if used+headerLen+bodyLen+n > maxChars {
				break
			}
			body = append(body, line)
			bodyLen += n
		}
		if len(body) == 0 {
			dropped = append(dropped, s.name)
			continue
		}

		b.WriteString(header)
		for _, line := range body {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		used += headerLen + bodyLen
	}
	return strings.TrimRight(b.String(), "\n"), dropped
}
