package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var (
	configOnce  sync.Once
	configValue *Config
)

// Load 는 환경 변수 기반 설정을 로드한다.
func Load() *Config {
	configOnce.Do(func() {
		_ = godotenv.Load()
		configValue = buildConfig()
	})
	return configValue
}

// ProvideConfig 는 설정을 로드하고 검증한다.
func ProvideConfig() (*Config, error) {
	cfg := Load()
	if cfg == nil {
		return nil, errors.New("config not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 는 설정 유효성을 검사한다.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Gemini.Model) == "" {
		return errors.New("gemini model is empty")
	}
	if c.Assistant.DailyBudgetUSD < 0 || c.Assistant.MonthlyBudgetUSD < 0 {
		return fmt.Errorf(
			"budget must not be negative: daily=%.2f monthly=%.2f",
			c.Assistant.DailyBudgetUSD,
			c.Assistant.MonthlyBudgetUSD,
		)
	}
	if c.Assistant.MaxConversationTurns < 0 {
		return fmt.Errorf("max conversation turns must not be negative: %d", c.Assistant.MaxConversationTurns)
	}
	if tz := strings.TrimSpace(c.Assistant.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid assistant timezone %q: %w", tz, err)
		}
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample rate out of range: %.2f", c.Telemetry.SampleRate)
	}
	return nil
}

// LogEnvStatus 는 환경 설정 상태를 로그로 남긴다.
func LogEnvStatus(cfg *Config, logger *slog.Logger) {
	if logger == nil || cfg == nil {
		return
	}

	logger.Debug(
		"env_status",
		"env_file", fileExists(".env"),
		"gemini_keys", len(cfg.Gemini.APIKeys),
		"primary_key", maskSecret(cfg.Gemini.PrimaryKey()),
		"model", cfg.Gemini.Model,
		"timeout", cfg.Gemini.TimeoutSeconds,
		"counter_store_url", cfg.CounterStore.URL,
		"counter_store_enabled", cfg.CounterStore.Enabled,
		"db_host", cfg.Database.Host,
		"db_name", cfg.Database.Name,
		"timezone", cfg.Assistant.Timezone,
		"fail_open", cfg.Assistant.FailOpen,
		"trusted_proxies", len(cfg.HTTP.TrustedProxies),
		"gateway_identity", cfg.HTTPAuth.GatewaySecret != "",
	)

	if len(cfg.Gemini.APIKeys) == 0 {
		logger.Error("env_missing_google_api_key")
	}
	if strings.TrimSpace(cfg.HTTPAuth.AdminAPIKey) == "" {
		logger.Warn("env_missing_admin_api_key")
	}
}

func buildConfig() *Config {
	return &Config{
		Gemini: GeminiConfig{
			APIKeys:            parseAPIKeys(),
			Model:              getEnvString("GEMINI_MODEL", "gemini-3-flash-preview"),
			Temperature:        getEnvFloat("GEMINI_TEMPERATURE", 1.0),
			ThinkingLevel:      getEnvString("GEMINI_THINKING_LEVEL", "low"),
			TimeoutSeconds:     max(1, getEnvInt("GEMINI_TIMEOUT", 25)),
			MaxInputTokens:     max(512, getEnvInt("GEMINI_MAX_INPUT_TOKENS", 8000)),
			InputPricePerMTok:  getEnvNonNegativeFloat("GEMINI_INPUT_PRICE_PER_MTOK", 0),
			OutputPricePerMTok: getEnvNonNegativeFloat("GEMINI_OUTPUT_PRICE_PER_MTOK", 0),
		},
		Assistant: AssistantConfig{
			Enabled:              getEnvBool("ASSISTANT_ENABLED", true),
			DailyBudgetUSD:       getEnvNonNegativeFloat("ASSISTANT_DAILY_BUDGET_USD", 5),
			MonthlyBudgetUSD:     getEnvNonNegativeFloat("ASSISTANT_MONTHLY_BUDGET_USD", 100),
			RateLimitPerMinute:   getEnvNonNegativeInt("ASSISTANT_RATE_LIMIT_PER_MINUTE", 5),
			RateLimitPerHour:     getEnvNonNegativeInt("ASSISTANT_RATE_LIMIT_PER_HOUR", 30),
			RateLimitPerDay:      getEnvNonNegativeInt("ASSISTANT_RATE_LIMIT_PER_DAY", 100),
			MaxTokensPerQuestion: max(64, getEnvInt("ASSISTANT_MAX_TOKENS_PER_QUESTION", 1024)),
			MaxConversationTurns: getEnvNonNegativeInt("ASSISTANT_MAX_CONVERSATION_TURNS", 6),
			WelcomeMessage: getEnvString(
				"ASSISTANT_WELCOME_MESSAGE",
				"¡Hola! Soy el asistente del directorio. Pregúntame por proveedores, precios o categorías.",
			),
			Timezone:            getEnvString("ASSISTANT_TIMEZONE", "America/Mexico_City"),
			FailOpen:            getEnvBool("ASSISTANT_FAIL_OPEN", true),
			MaxQuestionChars:    max(1, getEnvInt("ASSISTANT_MAX_QUESTION_CHARS", 1000)),
			CacheTTLSeconds:     max(1, getEnvInt("ASSISTANT_CACHE_TTL_SECONDS", 1800)),
			CacheKeyPrefixRunes: max(8, getEnvInt("ASSISTANT_CACHE_KEY_PREFIX", 100)),
			CacheMaxSize:        max(1, getEnvInt("ASSISTANT_CACHE_MAX_SIZE", 5000)),
			CannedMaxChars:      max(1, getEnvInt("ASSISTANT_CANNED_MAX_CHARS", 60)),
			ContextMaxChars:     max(1000, getEnvInt("ASSISTANT_CONTEXT_MAX_CHARS", 12000)),
			ContextTTLSeconds:   getEnvNonNegativeInt("ASSISTANT_CONTEXT_TTL_SECONDS", 60),
			MinReviewsForRating: max(1, getEnvInt("ASSISTANT_MIN_REVIEWS_FOR_RATING", 3)),
			ActivityWindowDays:  max(1, getEnvInt("ASSISTANT_ACTIVITY_WINDOW_DAYS", 7)),
			RecentReviewsLimit:  max(1, getEnvInt("ASSISTANT_RECENT_REVIEWS_LIMIT", 50)),
			SessionTTLMinutes:   max(1, getEnvInt("ASSISTANT_SESSION_TTL_MINUTES", 30)),
			MaxSessions:         max(1, getEnvInt("ASSISTANT_MAX_SESSIONS", 10000)),
		},
		CounterStore: CounterStoreConfig{
			URL:          getEnvString("COUNTER_STORE_URL", "redis://localhost:6379"),
			Enabled:      getEnvBool("COUNTER_STORE_ENABLED", true),
			Required:     getEnvBool("COUNTER_STORE_REQUIRED", false),
			DisableCache: getEnvBool("COUNTER_STORE_DISABLE_CACHE", true),
		},
		Database: DatabaseConfig{
			Host:                            getEnvString("DB_HOST", "localhost"),
			Port:                            getEnvInt("DB_PORT", 5432),
			Name:                            getEnvString("DB_NAME", "directory"),
			User:                            getEnvString("DB_USER", "directory"),
			Password:                        getEnvString("DB_PASSWORD", ""),
			MinPool:                         getEnvInt("DB_MIN_POOL", 1),
			MaxPool:                         getEnvInt("DB_MAX_POOL", 10),
			ConnMaxLifetimeMinutes:          getEnvNonNegativeInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),
			ConnMaxIdleTimeMinutes:          getEnvNonNegativeInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 5),
			UsageQueueSize:                  max(1, getEnvNonNegativeInt("DB_USAGE_QUEUE_SIZE", 1024)),
			UsageBatchSize:                  max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_SIZE", 50)),
			UsageFlushIntervalSeconds:       max(1, getEnvNonNegativeInt("DB_USAGE_FLUSH_INTERVAL_SECONDS", 1)),
			UsageFlushTimeoutSeconds:        max(1, getEnvNonNegativeInt("DB_USAGE_FLUSH_TIMEOUT_SECONDS", 5)),
			UsageMaxBackoffSeconds:          getEnvNonNegativeInt("DB_USAGE_MAX_BACKOFF_SECONDS", 60),
			UsageErrorLogMaxIntervalSeconds: getEnvNonNegativeInt("DB_USAGE_ERROR_LOG_MAX_INTERVAL_SECONDS", 60),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			LogDir:     getEnvString("LOG_DIR", ""),
			MaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 10),
			MaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 30),
			MaxAgeDays: getEnvInt("LOG_FILE_MAX_AGE_DAYS", 7),
			Compress:   getEnvBool("LOG_FILE_COMPRESS", true),
		},
		HTTP: HTTPConfig{
			Host:           getEnvString("HTTP_HOST", "127.0.0.1"),
			Port:           getEnvInt("HTTP_PORT", 40610),
			HTTP2Enabled:   getEnvBool("HTTP2_ENABLED", true),
			TrustedProxies: splitKeys(os.Getenv("HTTP_TRUSTED_PROXIES")),
		},
		HTTPAuth: HTTPAuthConfig{
			AdminAPIKey:   getEnvString("ADMIN_API_KEY", ""),
			GatewaySecret: getEnvString("GATEWAY_SHARED_SECRET", ""),
		},
		HTTPRateLimit: HTTPRateLimitConfig{
			RequestsPerMinute: getEnvNonNegativeInt("HTTP_RATE_LIMIT_RPM", 0),
			Burst:             max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_BURST", 10)),
			CacheSize:         max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_SIZE", 10000)),
			CacheTTLSeconds:   max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_TTL_SECONDS", 600)),
		},
		Telemetry: TelemetryConfig{
			Enabled:        getEnvBool("OTEL_ENABLED", false),
			ServiceName:    getEnvString("OTEL_SERVICE_NAME", "directory-assistant"),
			ServiceVersion: getEnvString("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnvString("OTEL_ENVIRONMENT", "production"),
			OTLPEndpoint:   getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			OTLPInsecure:   getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRate:     getEnvFloat("OTEL_SAMPLE_RATE", 0.1),
		},
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
