//go:build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/park285/directory-assistant-go/internal/assistant"
	"github.com/park285/directory-assistant-go/internal/config"
	"github.com/park285/directory-assistant-go/internal/handler"
	"github.com/park285/directory-assistant-go/internal/lexicon"
	"github.com/park285/directory-assistant-go/internal/prompt"
	"github.com/park285/directory-assistant-go/internal/server"
	"github.com/park285/directory-assistant-go/internal/settings"
)

func InitializeApp() (*App, error) {
	wire.Build(
		config.ProvideConfig,
		ProvideLogger,
		ProvideTelemetry,
		ProvideRegistry,
		ProvideMetrics,
		ProvideCounterStore,
		ProvideDatabase,
		ProvideUsageRepository,
		ProvideUsageRecorder,
		ProvideSettings,
		ProvideRateLimit,
		ProvideBudget,
		lexicon.Default,
		ProvideCanned,
		ProvideAnswerCache,
		ProvideContextBuilder,
		ProvideSessions,
		ProvideGemini,
		ProvidePricing,
		prompt.LoadAssistant,
		wire.Struct(new(AssistantDeps), "*"),
		ProvideAssistant,
		ProvideHealth,
		wire.Bind(new(handler.Assistant), new(*assistant.Service)),
		wire.Bind(new(handler.SettingsStore), new(*settings.Repository)),
		handler.NewAssistantHandler,
		handler.NewAdminHandler,
		ProvideUsageHandler,
		ProvideRouter,
		server.NewHTTPServer,
		NewApp,
	)
	return nil, nil
}
