//go:build !wireinject

package di

import (
	"fmt"

	"github.com/park285/directory-assistant-go/internal/config"
	"github.com/park285/directory-assistant-go/internal/handler"
	"github.com/park285/directory-assistant-go/internal/lexicon"
	"github.com/park285/directory-assistant-go/internal/prompt"
	"github.com/park285/directory-assistant-go/internal/server"
)

// InitializeApp 은 애플리케이션 의존성을 초기화하고 App 인스턴스를 반환한다.
// wire.go 의 injector 정의와 같은 순서로 조립한다.
func InitializeApp() (*App, error) {
	cfg, err := config.ProvideConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	tp, err := ProvideTelemetry(cfg)
	if err != nil {
		return nil, err
	}

	reg := ProvideRegistry()
	metricsStore := ProvideMetrics(reg)

	counterStore, err := ProvideCounterStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	conn := ProvideDatabase(cfg, logger)
	usageRepository := ProvideUsageRepository(cfg, conn)
	usageRecorder := ProvideUsageRecorder(cfg, usageRepository, logger, metricsStore)
	settingsRepository := ProvideSettings(cfg, conn, logger)

	lex, err := lexicon.Default()
	if err != nil {
		return nil, fmt.Errorf("lexicon: %w", err)
	}
	matcher, err := ProvideCanned(cfg, lex)
	if err != nil {
		return nil, err
	}
	prompts, err := prompt.LoadAssistant()
	if err != nil {
		return nil, fmt.Errorf("prompts: %w", err)
	}
	geminiClient, err := ProvideGemini(cfg)
	if err != nil {
		return nil, err
	}

	sessions := ProvideSessions(cfg)
	svc, err := ProvideAssistant(cfg, AssistantDeps{
		Settings:  settingsRepository,
		RateLimit: ProvideRateLimit(cfg, counterStore, logger, metricsStore),
		Budget:    ProvideBudget(cfg, usageRepository, usageRecorder, logger, metricsStore),
		Canned:    matcher,
		Cache:     ProvideAnswerCache(cfg, counterStore, logger),
		Context:   ProvideContextBuilder(cfg, conn, lex, logger),
		Model:     geminiClient,
		Usage:     usageRecorder,
		Sessions:  sessions,
		Lexicon:   lex,
		Prompts:   prompts,
		Pricing:   ProvidePricing(cfg),
		Metrics:   metricsStore,
	}, logger)
	if err != nil {
		return nil, err
	}

	router := ProvideRouter(
		cfg,
		logger,
		handler.NewAssistantHandler(svc, logger),
		handler.NewAdminHandler(settingsRepository, logger),
		ProvideUsageHandler(cfg, usageRepository, logger),
		ProvideHealth(cfg, counterStore, conn, sessions),
		reg,
	)
	httpServer := server.NewHTTPServer(cfg, router, logger)

	return NewApp(httpServer, logger, cfg, tp, counterStore, conn, usageRecorder), nil
}
