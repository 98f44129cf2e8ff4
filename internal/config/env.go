package config

import (
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
)

// parseAPIKeys 는 GOOGLE_API_KEYS(복수) 를 우선하고, 없으면 GOOGLE_API_KEY 하나를 쓴다.
func parseAPIKeys() []string {
	if keys := splitKeys(os.Getenv("GOOGLE_API_KEYS")); len(keys) > 0 {
		return keys
	}
	return splitKeys(os.Getenv("GOOGLE_API_KEY"))
}

// splitKeys 는 쉼표나 공백으로 구분된 키 목록을 순서를 유지한 채 중복 없이 나눈다.
func splitKeys(value string) []string {
	items := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(items) == 0 {
		return nil
	}
	keys := make([]string, 0, len(items))
	for _, item := range items {
		if !slices.Contains(keys, item) {
			keys = append(keys, item)
		}
	}
	return keys
}

func isGemini3(model string) bool {
	return strings.Contains(strings.ToLower(model), "gemini-3")
}

// envValue 는 key 를 parse 로 해석한다. 비어 있거나 해석에 실패하면 def 를 돌려준다.
func envValue[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := parse(raw)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvString(key string, def string) string {
	return envValue(key, def, func(s string) (string, error) { return s, nil })
}

func getEnvInt(key string, def int) int {
	return envValue(key, def, strconv.Atoi)
}

func getEnvNonNegativeInt(key string, def int) int {
	return max(0, getEnvInt(key, def))
}

func getEnvFloat(key string, def float64) float64 {
	return envValue(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func getEnvNonNegativeFloat(key string, def float64) float64 {
	value := getEnvFloat(key, def)
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return def
	}
	return value
}

// getEnvBool 은 strconv.ParseBool 형식에 yes/no, y/n, on/off 를 더해 받는다. 그 외 값은 def.
func getEnvBool(key string, def bool) bool {
	return envValue(key, def, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "yes", "y", "on":
			return true, nil
		case "no", "n", "off":
			return false, nil
		}
		return strconv.ParseBool(s)
	})
}

func maskSecret(value string) string {
	switch {
	case value == "":
		return "<missing>"
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	default:
		return value[:2] + "***" + value[len(value)-2:]
	}
}
