// Package pricing 은 모델별 토큰 단가와 비용 계산을 담당한다.
package pricing

import (
	"math"
	"sort"
	"strings"

	"github.com/park285/directory-assistant-go/internal/llm"
)

// charsPerToken 은 토큰 수 추정에 쓰는 평균 글자 수다.
const charsPerToken = 4

// Price 는 100만 토큰당 USD 단가다.
type Price struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

type entry struct {
	prefix string
	price  Price
}

// Table 은 모델 이름 접두사로 단가를 찾는다. 가장 긴 접두사가 우선한다.
type Table struct {
	entries  []entry
	fallback Price
}

// DefaultTable 은 Gemini 공개 단가 기준 기본 테이블이다.
func DefaultTable() *Table {
	return NewTable(map[string]Price{
		"gemini-3-pro":          {InputPerMTok: 2.00, OutputPerMTok: 12.00},
		"gemini-3-flash":        {InputPerMTok: 0.50, OutputPerMTok: 3.00},
		"gemini-2.5-pro":        {InputPerMTok: 1.25, OutputPerMTok: 10.00},
		"gemini-2.5-flash":      {InputPerMTok: 0.30, OutputPerMTok: 2.50},
		"gemini-2.5-flash-lite": {InputPerMTok: 0.10, OutputPerMTok: 0.40},
	}, Price{InputPerMTok: 0.50, OutputPerMTok: 3.00})
}

// NewTable 은 접두사별 단가 테이블을 만든다.
func NewTable(prices map[string]Price, fallback Price) *Table {
	t := &Table{fallback: fallback}
	for prefix, price := range prices {
		t.entries = append(t.entries, entry{prefix: strings.ToLower(prefix), price: price})
	}
	t.sort()
	return t
}

// WithOverride 는 model 접두사 단가를 덮어쓴 새 테이블을 반환한다.
// 단가가 모두 0 이하이면 원래 테이블을 그대로 반환한다.
func (t *Table) WithOverride(model string, price Price) *Table {
	if price.InputPerMTok <= 0 && price.OutputPerMTok <= 0 {
		return t
	}
	prefix := strings.ToLower(strings.TrimSpace(model))
	next := &Table{fallback: t.fallback}
	for _, e := range t.entries {
		if e.prefix != prefix {
			next.entries = append(next.entries, e)
		}
	}
	next.entries = append(next.entries, entry{prefix: prefix, price: price})
	next.sort()
	return next
}

// Lookup 은 모델 단가를 반환한다.
func (t *Table) Lookup(model string) Price {
	name := strings.ToLower(strings.TrimSpace(model))
	name = strings.TrimPrefix(name, "models/")
	for _, e := range t.entries {
		if strings.HasPrefix(name, e.prefix) {
			return e.price
		}
	}
	return t.fallback
}

// Cost 는 사용량에 대한 USD 비용을 계산한다.
func (t *Table) Cost(model string, usage llm.Usage) float64 {
	price := t.Lookup(model)
	cost := float64(usage.InputTokens)*price.InputPerMTok/1_000_000 +
		float64(usage.OutputTokens)*price.OutputPerMTok/1_000_000
	return roundMicro(cost)
}

func (t *Table) sort() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		return len(t.entries[i].prefix) > len(t.entries[j].prefix)
	})
}

// EstimateTokens 는 글자 수 기반 토큰 수 추정치다.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// MaxRunesForTokens 는 토큰 수에 해당하는 대략의 글자 수다.
func MaxRunesForTokens(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return tokens * charsPerToken
}

func roundMicro(value float64) float64 {
	return math.Round(value*1_000_000) / 1_000_000
}
