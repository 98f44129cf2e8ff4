package config

import (
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const gemini3MinTemperature = 1.0

// GeminiConfig 는 답변 생성 모델 설정이다.
type GeminiConfig struct {
	APIKeys        []string
	Model          string
	Temperature    float64
	ThinkingLevel  string
	TimeoutSeconds int
	// MaxInputTokens 는 컨텍스트+히스토리+질문 프롬프트의 추정 토큰 상한이다.
	MaxInputTokens     int
	InputPricePerMTok  float64
	OutputPricePerMTok float64
}

// PrimaryKey 는 기본 API 키를 반환한다.
func (g GeminiConfig) PrimaryKey() string {
	if len(g.APIKeys) == 0 {
		return ""
	}
	return g.APIKeys[0]
}

// Timeout 은 모델 호출 제한 시간을 반환한다.
func (g GeminiConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// TemperatureForModel 는 모델별 temperature 를 계산한다.
func (g GeminiConfig) TemperatureForModel(model string) float64 {
	if isGemini3(model) {
		if math.IsNaN(g.Temperature) || math.IsInf(g.Temperature, 0) {
			return gemini3MinTemperature
		}
		return math.Max(gemini3MinTemperature, g.Temperature)
	}
	return g.Temperature
}

// AssistantConfig 는 어시스턴트 파이프라인 설정이다.
// Enabled ~ WelcomeMessage 는 settings 테이블이 비어 있을 때의 기본값으로 쓰인다.
type AssistantConfig struct {
	Enabled              bool
	DailyBudgetUSD       float64
	MonthlyBudgetUSD     float64
	RateLimitPerMinute   int
	RateLimitPerHour     int
	RateLimitPerDay      int
	MaxTokensPerQuestion int
	MaxConversationTurns int
	WelcomeMessage       string

	Timezone         string
	FailOpen         bool
	MaxQuestionChars int

	CacheTTLSeconds     int
	CacheKeyPrefixRunes int
	CacheMaxSize        int
	CannedMaxChars      int

	ContextMaxChars     int
	ContextTTLSeconds   int
	MinReviewsForRating int
	ActivityWindowDays  int
	RecentReviewsLimit  int

	SessionTTLMinutes int
	MaxSessions       int
}

// Location 은 일/월 경계 계산에 사용할 타임존을 반환한다.
func (a AssistantConfig) Location() *time.Location {
	name := strings.TrimSpace(a.Timezone)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// CacheTTL 은 응답 캐시 TTL 을 반환한다.
func (a AssistantConfig) CacheTTL() time.Duration {
	if a.CacheTTLSeconds <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(a.CacheTTLSeconds) * time.Second
}

// CounterStoreConfig 는 rate limit 카운터/응답 캐시 공유 저장소(Valkey) 설정이다.
type CounterStoreConfig struct {
	URL          string
	Enabled      bool
	Required     bool
	DisableCache bool
}

// LoggingConfig 는 로깅 설정이다.
type LoggingConfig struct {
	Level      string
	LogDir     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// HTTPConfig 는 HTTP 서버 설정이다.
type HTTPConfig struct {
	Host         string
	Port         int
	HTTP2Enabled bool
	// TrustedProxies 는 X-Forwarded-For 를 믿을 프록시 CIDR/IP 목록이다. 비어 있으면 접속 주소만 쓴다.
	TrustedProxies []string
}

// HTTPAuthConfig 는 관리자 API 키 인증 설정이다.
type HTTPAuthConfig struct {
	AdminAPIKey string
	// GatewaySecret 이 설정되고 요청이 같은 값을 X-Gateway-Secret 으로 보낼 때만 X-User-ID 를 신뢰한다.
	GatewaySecret string
}

// HTTPRateLimitConfig 는 HTTP 계층의 거친 요청 제한 설정이다.
type HTTPRateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	CacheSize         int
	CacheTTLSeconds   int
}

// TelemetryConfig 는 OpenTelemetry 설정이다.
type TelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	OTLPInsecure   bool
	SampleRate     float64
}

// DatabaseConfig 는 DB 연결 및 사용량 적재 설정이다.
type DatabaseConfig struct {
	Host                   string
	Port                   int
	Name                   string
	User                   string
	Password               string
	MinPool                int
	MaxPool                int
	ConnMaxLifetimeMinutes int
	ConnMaxIdleTimeMinutes int

	UsageQueueSize                  int
	UsageBatchSize                  int
	UsageFlushIntervalSeconds       int
	UsageFlushTimeoutSeconds        int
	UsageMaxBackoffSeconds          int
	UsageErrorLogMaxIntervalSeconds int
}

// DSN 은 DB 접속 문자열을 반환한다.
func (d DatabaseConfig) DSN() string {
	host := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	u := &url.URL{
		Scheme: "postgresql",
		Host:   host,
		Path:   "/" + d.Name,
	}
	if d.Password == "" {
		u.User = url.User(d.User)
	} else {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

// Config 는 애플리케이션 전체 설정이다.
type Config struct {
	Gemini        GeminiConfig
	Assistant     AssistantConfig
	CounterStore  CounterStoreConfig
	Database      DatabaseConfig
	Logging       LoggingConfig
	HTTP          HTTPConfig
	HTTPAuth      HTTPAuthConfig
	HTTPRateLimit HTTPRateLimitConfig
	Telemetry     TelemetryConfig
}
