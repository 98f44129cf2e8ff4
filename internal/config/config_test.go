package config

import (
	"strings"
	"testing"
)

func TestParseAPIKeys(t *testing.T) {
	t.Setenv("GOOGLE_API_KEYS", "k1, k2")
	keys := parseAPIKeys()
	if len(keys) != 2 || keys[0] != "k1" || keys[1] != "k2" {
		t.Fatalf("unexpected keys: %+v", keys)
	}

	t.Setenv("GOOGLE_API_KEYS", "")
	t.Setenv("GOOGLE_API_KEY", "single")
	keys = parseAPIKeys()
	if len(keys) != 1 || keys[0] != "single" {
		t.Fatalf("unexpected single key: %+v", keys)
	}
}

func TestSplitKeysDedupesInOrder(t *testing.T) {
	keys := splitKeys("a,b c\td\n,a b")
	if strings.Join(keys, "|") != "a|b|c|d" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	if splitKeys(" , ") != nil {
		t.Fatalf("expected nil for separators only")
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		raw  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"off", true, false},
		{"Yes", false, true},
		{"0", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("ASSISTANT_TEST_FLAG", tt.raw)
		if got := getEnvBool("ASSISTANT_TEST_FLAG", tt.def); got != tt.want {
			t.Fatalf("getEnvBool(%q, %v) = %v, want %v", tt.raw, tt.def, got, tt.want)
		}
	}
}

func TestTemperatureForModel(t *testing.T) {
	cfg := GeminiConfig{Temperature: 0.5}
	if cfg.TemperatureForModel("gemini-3-test") != 1.0 {
		t.Fatalf("expected min temperature for gemini3")
	}
	if cfg.TemperatureForModel("other-model") != 0.5 {
		t.Fatalf("unexpected temperature")
	}
}

func TestBuildConfigDefaults(t *testing.T) {
	cfg := buildConfig()

	a := cfg.Assistant
	if !a.Enabled || !a.FailOpen {
		t.Fatalf("expected enabled and fail-open defaults: %+v", a)
	}
	if a.MaxConversationTurns != 6 {
		t.Fatalf("expected 6 turns, got %d", a.MaxConversationTurns)
	}
	if a.CacheTTLSeconds != 1800 || a.CacheKeyPrefixRunes != 100 || a.CannedMaxChars != 60 {
		t.Fatalf("unexpected cache defaults: %+v", a)
	}
	if a.MinReviewsForRating != 3 || a.ActivityWindowDays != 7 {
		t.Fatalf("unexpected context defaults: %+v", a)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestBuildConfigFromEnv(t *testing.T) {
	t.Setenv("ASSISTANT_DAILY_BUDGET_USD", "2.5")
	t.Setenv("ASSISTANT_MONTHLY_BUDGET_USD", "-3")
	t.Setenv("ASSISTANT_RATE_LIMIT_PER_MINUTE", "-1")
	t.Setenv("ASSISTANT_FAIL_OPEN", "false")
	t.Setenv("ASSISTANT_TIMEZONE", "UTC")

	cfg := buildConfig()
	if cfg.Assistant.DailyBudgetUSD != 2.5 {
		t.Fatalf("unexpected daily budget: %v", cfg.Assistant.DailyBudgetUSD)
	}
	if cfg.Assistant.MonthlyBudgetUSD != 100 {
		t.Fatalf("negative budget should fall back to default: %v", cfg.Assistant.MonthlyBudgetUSD)
	}
	if cfg.Assistant.RateLimitPerMinute != 0 {
		t.Fatalf("negative limit should clamp to 0: %d", cfg.Assistant.RateLimitPerMinute)
	}
	if cfg.Assistant.FailOpen {
		t.Fatalf("expected fail-closed")
	}
	if cfg.Assistant.Location().String() != "UTC" {
		t.Fatalf("unexpected location: %s", cfg.Assistant.Location())
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for empty model")
	}

	cfg = &Config{
		Gemini:    GeminiConfig{Model: "gemini-3-flash"},
		Assistant: AssistantConfig{Timezone: "Mars/Olympus"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected timezone validation error")
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, Name: "dir", User: "u", Password: "p@ss"}
	dsn := cfg.DSN()
	if !strings.HasPrefix(dsn, "postgresql://u:p%40ss@db:5432/dir") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}

func TestMaskSecret(t *testing.T) {
	if maskSecret("") != "<missing>" {
		t.Fatalf("unexpected mask for empty")
	}
	if maskSecret("abcdefgh") != "ab***gh" {
		t.Fatalf("unexpected mask: %s", maskSecret("abcdefgh"))
	}
}
