package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valkey-io/valkey-go"

	"github.com/park285/directory-assistant-go/internal/answercache"
	"github.com/park285/directory-assistant-go/internal/assistant"
	"github.com/park285/directory-assistant-go/internal/budget"
	"github.com/park285/directory-assistant-go/internal/canned"
	"github.com/park285/directory-assistant-go/internal/config"
	"github.com/park285/directory-assistant-go/internal/contextbuilder"
	"github.com/park285/directory-assistant-go/internal/conversation"
	"github.com/park285/directory-assistant-go/internal/database"
	"github.com/park285/directory-assistant-go/internal/directory"
	"github.com/park285/directory-assistant-go/internal/gemini"
	"github.com/park285/directory-assistant-go/internal/handler"
	"github.com/park285/directory-assistant-go/internal/health"
	"github.com/park285/directory-assistant-go/internal/lexicon"
	"github.com/park285/directory-assistant-go/internal/logging"
	"github.com/park285/directory-assistant-go/internal/metrics"
	"github.com/park285/directory-assistant-go/internal/pricing"
	"github.com/park285/directory-assistant-go/internal/prompt"
	"github.com/park285/directory-assistant-go/internal/ratelimit"
	"github.com/park285/directory-assistant-go/internal/settings"
	"github.com/park285/directory-assistant-go/internal/telemetry"
	"github.com/park285/directory-assistant-go/internal/usage"
	"github.com/park285/directory-assistant-go/internal/valkeyx"
)

// ProvideLogger: 로거를 구성해 반환합니다.
// OTel이 활성화된 경우 로그에 trace_id/span_id가 자동으로 추가됩니다.
func ProvideLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.NewLogger(cfg.Logging, cfg.Telemetry.Enabled)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// ProvideTelemetry: 트레이서 프로바이더를 초기화합니다.
func ProvideTelemetry(cfg *config.Config) (*telemetry.Provider, error) {
	tp, err := telemetry.NewProvider(context.Background(), cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	return tp, nil
}

// ProvideRegistry: 런타임 수집기가 등록된 Prometheus 레지스트리를 만듭니다.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics: 레지스트리에 어시스턴트 지표를 등록합니다.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Store {
	return metrics.NewStore(reg)
}

// ProvideCounterStore: Valkey 클라이언트를 만듭니다.
// 비활성이거나 필수가 아닌데 연결에 실패하면 nil 을 돌려 메모리 백엔드를 쓰게 한다.
func ProvideCounterStore(cfg *config.Config, logger *slog.Logger) (valkey.Client, error) {
	client, err := valkeyx.NewClient(cfg.CounterStore)
	switch {
	case err == nil:
		return client, nil
	case errors.Is(err, valkeyx.ErrDisabled):
		logger.Info("counter_store_memory_backend")
		return nil, nil
	case cfg.CounterStore.Required:
		return nil, fmt.Errorf("counter store: %w", err)
	default:
		logger.Warn("counter_store_unavailable_memory_fallback", "err", err)
		return nil, nil
	}
}

// ProvideDatabase: 지연 연결 DB 핸들을 만듭니다. 첫 사용 시 스키마를 맞춘다.
func ProvideDatabase(cfg *config.Config, logger *slog.Logger) *database.Conn {
	return database.New(cfg.Database, logger, usage.Migrate, settings.Migrate, directory.Migrate)
}

// ProvideUsageRepository: 사용량 저장소를 만듭니다.
func ProvideUsageRepository(cfg *config.Config, conn *database.Conn) *usage.Repository {
	return usage.NewRepository(conn, cfg.Assistant.Location(), cfg.Database.UsageBatchSize)
}

// ProvideUsageRecorder: 비동기 사용량 기록기를 만듭니다.
func ProvideUsageRecorder(cfg *config.Config, repo *usage.Repository, logger *slog.Logger, m *metrics.Store) *usage.Recorder {
	return usage.NewRecorder(cfg.Database, repo, logger, m)
}

// ProvideSettings: 설정 저장소를 만듭니다.
func ProvideSettings(cfg *config.Config, conn *database.Conn, logger *slog.Logger) *settings.Repository {
	return settings.NewRepository(conn, settings.Defaults(cfg.Assistant), logger)
}

// ProvideRateLimit: 요청 창 guard 를 만듭니다.
func ProvideRateLimit(cfg *config.Config, client valkey.Client, logger *slog.Logger, m *metrics.Store) *ratelimit.Guard {
	var store ratelimit.CounterStore
	if client != nil {
		store = ratelimit.NewValkeyStore(client)
	} else {
		store = ratelimit.NewMemoryStore(time.Now)
	}
	return ratelimit.NewGuard(store, cfg.Assistant.Location(), cfg.Assistant.FailOpen, logger,
		ratelimit.WithDegradedReporter(m),
	)
}

// ProvideBudget: 비용 상한 guard 를 만듭니다.
// 아직 배치 저장 전인 비용도 합산합니다.
func ProvideBudget(cfg *config.Config, repo *usage.Repository, recorder *usage.Recorder, logger *slog.Logger, m *metrics.Store) *budget.Guard {
	return budget.NewGuard(budget.WithPending(repo, recorder), cfg.Assistant.Location(), cfg.Assistant.FailOpen, logger, m)
}

// ProvideCanned: 정형 답변 매처를 만듭니다.
func ProvideCanned(cfg *config.Config, lex *lexicon.Lexicon) (*canned.Matcher, error) {
	topics, err := canned.LoadTopics()
	if err != nil {
		return nil, fmt.Errorf("canned topics: %w", err)
	}
	matcher, err := canned.NewMatcher(topics, lex.TriggerPhrases(), cfg.Assistant.CannedMaxChars)
	if err != nil {
		return nil, fmt.Errorf("canned matcher: %w", err)
	}
	return matcher, nil
}

// ProvideAnswerCache: 응답 캐시를 만듭니다.
func ProvideAnswerCache(cfg *config.Config, client valkey.Client, logger *slog.Logger) *answercache.Cache {
	return answercache.New(client, answercache.Config{
		TTL:           cfg.Assistant.CacheTTL(),
		KeyPrefixLen:  cfg.Assistant.CacheKeyPrefixRunes,
		MemoryMaxSize: cfg.Assistant.CacheMaxSize,
	}, logger)
}

// ProvideContextBuilder: 마켓플레이스 컨텍스트 빌더를 만듭니다.
func ProvideContextBuilder(cfg *config.Config, conn *database.Conn, lex *lexicon.Lexicon, logger *slog.Logger) *contextbuilder.Builder {
	a := cfg.Assistant
	return contextbuilder.New(directory.NewRepository(conn), lex, contextbuilder.Config{
		MaxChars:       a.ContextMaxChars,
		MinReviews:     a.MinReviewsForRating,
		ActivityWindow: time.Duration(a.ActivityWindowDays) * 24 * time.Hour,
		ReviewLimit:    a.RecentReviewsLimit,
		TTL:            time.Duration(a.ContextTTLSeconds) * time.Second,
	}, logger)
}

// ProvideSessions: 대화 세션 저장소를 만듭니다.
func ProvideSessions(cfg *config.Config) *conversation.Store {
	turns := cfg.Assistant.MaxConversationTurns
	return conversation.NewStore(
		time.Duration(cfg.Assistant.SessionTTLMinutes)*time.Minute,
		cfg.Assistant.MaxSessions,
		func() int { return turns },
	)
}

// ProvideGemini: Gemini 클라이언트를 만듭니다.
func ProvideGemini(cfg *config.Config) (*gemini.Client, error) {
	client, err := gemini.NewClient(cfg.Gemini)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return client, nil
}

// ProvidePricing: 기본 단가표에 설정 단가를 덮어씁니다.
func ProvidePricing(cfg *config.Config) *pricing.Table {
	return pricing.DefaultTable().WithOverride(cfg.Gemini.Model, pricing.Price{
		InputPerMTok:  cfg.Gemini.InputPricePerMTok,
		OutputPerMTok: cfg.Gemini.OutputPricePerMTok,
	})
}

// AssistantDeps 는 파이프라인 생성에 필요한 구성 요소다.
type AssistantDeps struct {
	Settings  *settings.Repository
	RateLimit *ratelimit.Guard
	Budget    *budget.Guard
	Canned    *canned.Matcher
	Cache     *answercache.Cache
	Context   *contextbuilder.Builder
	Model     *gemini.Client
	Usage     *usage.Recorder
	Sessions  *conversation.Store
	Lexicon   *lexicon.Lexicon
	Prompts   *prompt.Assistant
	Pricing   *pricing.Table
	Metrics   *metrics.Store
}

// ProvideAssistant: ask 파이프라인을 조립합니다.
func ProvideAssistant(cfg *config.Config, d AssistantDeps, logger *slog.Logger) (*assistant.Service, error) {
	svc, err := assistant.New(assistant.Deps{
		Settings:  d.Settings,
		RateLimit: d.RateLimit,
		Budget:    d.Budget,
		Canned:    d.Canned,
		Cache:     d.Cache,
		Context:   d.Context,
		Model:     d.Model,
		Usage:     d.Usage,
		Sessions:  d.Sessions,
		Extractor: conversation.NewExtractor(d.Lexicon),
		Prompts:   d.Prompts,
		Pricing:   d.Pricing,
		Metrics:   d.Metrics,
		Logger:    logger,
	}, assistant.Config{
		MaxQuestionChars: cfg.Assistant.MaxQuestionChars,
		MaxInputTokens:   cfg.Gemini.MaxInputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: %w", err)
	}
	return svc, nil
}

// ProvideHealth: 헬스 체커를 만듭니다.
func ProvideHealth(cfg *config.Config, client valkey.Client, conn *database.Conn, sessions *conversation.Store) *health.Checker {
	var pingStore health.PingFunc
	if client != nil {
		pingStore = func(ctx context.Context) error { return valkeyx.Ping(ctx, client) }
	}
	return health.NewChecker(cfg, pingStore, conn.Ping, sessions)
}

// ProvideUsageHandler: 사용량 핸들러를 만듭니다.
func ProvideUsageHandler(cfg *config.Config, repo *usage.Repository, logger *slog.Logger) *handler.UsageHandler {
	return handler.NewUsageHandler(repo, cfg.Gemini.Model, logger)
}

// ProvideRouter: HTTP 라우터를 구성합니다.
func ProvideRouter(
	cfg *config.Config,
	logger *slog.Logger,
	assistantHandler *handler.AssistantHandler,
	adminHandler *handler.AdminHandler,
	usageHandler *handler.UsageHandler,
	checker *health.Checker,
	reg *prometheus.Registry,
) *gin.Engine {
	return handler.NewRouter(cfg, logger, handler.Handlers{
		Assistant: assistantHandler,
		Admin:     adminHandler,
		Usage:     usageHandler,
		Health:    checker,
		Gatherer:  reg,
	})
}
