package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/directory-assistant-go/internal/config"
	"github.com/park285/directory-assistant-go/internal/database"
	"github.com/park285/directory-assistant-go/internal/telemetry"
	"github.com/park285/directory-assistant-go/internal/usage"
)

const telemetryShutdownTimeout = 5 * time.Second

// App: 애플리케이션 구성 요소를 묶는다.
type App struct {
	Server        *http.Server
	Logger        *slog.Logger
	Config        *config.Config
	Telemetry     *telemetry.Provider
	CounterStore  valkey.Client
	Database      *database.Conn
	UsageRecorder *usage.Recorder
}

// NewApp: App 인스턴스를 생성합니다.
func NewApp(
	server *http.Server,
	logger *slog.Logger,
	cfg *config.Config,
	tp *telemetry.Provider,
	counterStore valkey.Client,
	db *database.Conn,
	usageRecorder *usage.Recorder,
) *App {
	return &App{
		Server:        server,
		Logger:        logger,
		Config:        cfg,
		Telemetry:     tp,
		CounterStore:  counterStore,
		Database:      db,
		UsageRecorder: usageRecorder,
	}
}

// Close: 앱 리소스를 정리합니다. 사용량 큐를 먼저 비운 뒤 DB 를 닫는다.
func (a *App) Close() {
	if a.UsageRecorder != nil {
		a.UsageRecorder.Close()
	}
	if a.Database != nil {
		a.Database.Close()
	}
	if a.CounterStore != nil {
		a.CounterStore.Close()
	}
	if a.Telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := a.Telemetry.Shutdown(ctx); err != nil && a.Logger != nil {
			a.Logger.Warn("telemetry_shutdown_failed", "err", err)
		}
	}
}
