// Package lexicon 은 서비스 종류, 도시, 검색 표현 사전을 제공한다.
// 정형 답변 트리거 판정과 대화 슬롯 추출이 같은 사전을 공유한다.
package lexicon

import (
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/park285/directory-assistant-go/internal/textnorm"
)

//go:embed assets/lexicon.yml
var assetsFS embed.FS

type rawLexicon struct {
	Services       map[string][]string `yaml:"services"`
	Cities         map[string][]string `yaml:"cities"`
	SearchVerbs    []string            `yaml:"search_verbs"`
	Ordinals       map[string]int      `yaml:"ordinals"`
	Demonstratives []string            `yaml:"demonstratives"`
	BudgetMarkers  []string            `yaml:"budget_markers"`
	NonSlotReplies []string            `yaml:"non_slot_replies"`
}

// Lexicon 은 컴파일된 사전이다. 생성 후에는 읽기 전용이라 동시 사용에 안전하다.
type Lexicon struct {
	services       *PhraseSet
	serviceByAlias map[string]string
	serviceLabels  map[string]string
	cities         *PhraseSet
	cityByAlias    map[string]string
	searchVerbs    *PhraseSet
	demonstratives *PhraseSet
	budgetMarkers  *PhraseSet
	nonSlot        *PhraseSet
	ordinals       map[string]int
	triggers       []string
}

var (
	defaultOnce sync.Once
	defaultLex  *Lexicon
	errDefault  error
)

// Default 는 내장 사전을 반환한다.
func Default() (*Lexicon, error) {
	defaultOnce.Do(func() {
		data, err := assetsFS.ReadFile("assets/lexicon.yml")
		if err != nil {
			errDefault = fmt.Errorf("read lexicon: %w", err)
			return
		}
		defaultLex, errDefault = Parse(data)
	})
	return defaultLex, errDefault
}

// Parse 는 YAML 사전을 컴파일한다.
func Parse(data []byte) (*Lexicon, error) {
	var raw rawLexicon
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(raw.Services) == 0 || len(raw.Cities) == 0 {
		return nil, fmt.Errorf("lexicon requires services and cities")
	}

	lex := &Lexicon{
		serviceByAlias: make(map[string]string),
		serviceLabels:  make(map[string]string, len(raw.Services)),
		cityByAlias:    make(map[string]string),
		ordinals:       make(map[string]int, len(raw.Ordinals)),
	}

	for name, keywords := range raw.Services {
		lex.serviceLabels[name] = name
		if len(keywords) > 0 {
			lex.serviceLabels[name] = keywords[0]
		}
	}

	serviceAliases := indexAliases(raw.Services, lex.serviceByAlias)
	cityAliases := indexAliases(raw.Cities, lex.cityByAlias)
	lex.services = NewPhraseSet(serviceAliases)
	lex.cities = NewPhraseSet(cityAliases)
	lex.searchVerbs = NewPhraseSet(raw.SearchVerbs)
	lex.demonstratives = NewPhraseSet(raw.Demonstratives)
	lex.budgetMarkers = NewPhraseSet(raw.BudgetMarkers)
	lex.nonSlot = NewPhraseSet(raw.NonSlotReplies)

	for word, pos := range raw.Ordinals {
		lex.ordinals[textnorm.Fold(word)] = pos
	}

	lex.triggers = make([]string, 0, len(serviceAliases)+len(cityAliases)+len(raw.SearchVerbs))
	lex.triggers = append(lex.triggers, serviceAliases...)
	lex.triggers = append(lex.triggers, cityAliases...)
	lex.triggers = append(lex.triggers, raw.SearchVerbs...)
	return lex, nil
}

func indexAliases(groups map[string][]string, index map[string]string) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var aliases []string
	for _, name := range names {
		for _, alias := range append([]string{name}, groups[name]...) {
			folded := textnorm.Fold(alias)
			if folded == "" {
				continue
			}
			if _, exists := index[folded]; exists {
				continue
			}
			index[folded] = name
			aliases = append(aliases, folded)
		}
	}
	return aliases
}

// TriggerPhrases 는 검색 의도를 나타내는 모든 구문(서비스, 도시, 검색 동사)이다.
func (l *Lexicon) TriggerPhrases() []string {
	out := make([]string, len(l.triggers))
	copy(out, l.triggers)
	return out
}

// ServiceType 은 문장에서 가장 구체적인 서비스 종류를 찾는다.
func (l *Lexicon) ServiceType(folded string) (string, bool) {
	return lookupLongest(l.services, l.serviceByAlias, folded)
}

// ServiceLabel 은 서비스 종류의 표시용 이름(첫 키워드)이다.
func (l *Lexicon) ServiceLabel(service string) string {
	if label, ok := l.serviceLabels[service]; ok {
		return label
	}
	return service
}

// City 는 문장에서 도시를 찾는다.
func (l *Lexicon) City(folded string) (string, bool) {
	return lookupLongest(l.cities, l.cityByAlias, folded)
}

// HasSearchVerb 는 "busco", "necesito" 같은 검색 표현이 있는지 확인한다.
func (l *Lexicon) HasSearchVerb(folded string) bool {
	return l.searchVerbs.Contains(folded)
}

// HasDemonstrative 는 "ese", "esa" 같은 지시어가 있는지 확인한다.
func (l *Lexicon) HasDemonstrative(folded string) bool {
	return l.demonstratives.Contains(folded)
}

// IsNonSlotReply 는 인사, 감사, 거절처럼 슬롯 값이 될 수 없는 표현이 있는지 확인한다.
func (l *Lexicon) IsNonSlotReply(folded string) bool {
	return l.nonSlot.Contains(folded)
}

// Ordinal 은 문장의 첫 서수 표현을 후보 위치로 바꾼다. -1 은 마지막 후보다.
func (l *Lexicon) Ordinal(folded string) (int, bool) {
	for _, word := range textnorm.Words(folded) {
		if pos, ok := l.ordinals[word]; ok {
			return pos, true
		}
	}
	return 0, false
}

// BudgetCeiling 은 "$3,000", "5000 pesos", "presupuesto de 2500" 같은 예산 상한을 추출한다.
// raw 는 정규화 전 원문이다.
func (l *Lexicon) BudgetCeiling(raw string) (float64, bool) {
	hasDollar := strings.Contains(raw, "$")
	folded := textnorm.Fold(strings.ReplaceAll(strings.ReplaceAll(raw, ",", ""), "$", " "))
	if !hasDollar && !l.budgetMarkers.Contains(folded) {
		return 0, false
	}

	best := 0.0
	for _, word := range textnorm.Words(folded) {
		value, err := strconv.ParseFloat(word, 64)
		if err != nil || value <= 0 {
			continue
		}
		if value > best {
			best = value
		}
	}
	return best, best > 0
}

func lookupLongest(set *PhraseSet, index map[string]string, folded string) (string, bool) {
	found := set.Find(folded)
	if len(found) == 0 {
		return "", false
	}
	name, ok := index[found[0]]
	return name, ok
}
