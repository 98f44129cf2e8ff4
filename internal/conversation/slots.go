package conversation

import (
	"strings"
	"unicode"

	"github.com/park285/directory-assistant-go/internal/lexicon"
	"github.com/park285/directory-assistant-go/internal/textnorm"
)

const (
	maxSlotAnswerWords = 4
	maxFollowUpWords   = 8
)

// Slots 는 질문에서 뽑아낸 검색 조건이다.
type Slots struct {
	ServiceType string
	City        string
	BudgetMXN   float64
	// SearchStyle 은 서비스 종류나 검색 동사가 있는 질문인지 나타낸다.
	SearchStyle bool
}

// Extractor 는 사전 기반 슬롯 추출기다.
type Extractor struct {
	lex *lexicon.Lexicon
}

// NewExtractor 는 Extractor 를 생성한다.
func NewExtractor(lex *lexicon.Lexicon) *Extractor {
	return &Extractor{lex: lex}
}

// Extract 는 질문에서 슬롯을 추출한다.
func (e *Extractor) Extract(question string) Slots {
	folded := textnorm.Fold(question)
	var slots Slots
	slots.ServiceType, _ = e.lex.ServiceType(folded)
	slots.City, _ = e.lex.City(folded)
	slots.BudgetMXN, _ = e.lex.BudgetCeiling(question)
	slots.SearchStyle = slots.ServiceType != "" || e.lex.HasSearchVerb(folded)
	return slots
}

// ServiceLabel 은 되묻기 문구에 쓸 서비스 이름이다.
func (e *Extractor) ServiceLabel(service string) string {
	if service == "" {
		return ""
	}
	return e.lex.ServiceLabel(service)
}

// MissingSlots 는 검색형 질문에서 빠진 필수 슬롯을 반환한다. 필수 슬롯은 도시다.
func (e *Extractor) MissingSlots(slots Slots) []Slot {
	if !slots.SearchStyle || slots.ServiceType == "" {
		return nil
	}
	if slots.City == "" {
		return []Slot{SlotCity}
	}
	return nil
}

// FillSlot 은 응답이 빠진 슬롯을 채우면 합쳐진 질문을 반환한다.
// 알려진 도시이거나, 새 서비스 종류도 질문 형태도 아닌 짧은 고유명사형 응답만 슬롯 응답으로 본다.
// 인사나 감사, 거절 표현은 대문자로 시작해도 도시로 받지 않는다.
func (e *Extractor) FillSlot(pending *PendingClarification, answer string) (string, bool) {
	if pending == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(answer)
	folded := textnorm.Fold(trimmed)
	if folded == "" {
		return "", false
	}

	service, hasService := e.lex.ServiceType(folded)
	if hasService && service != pending.ServiceType {
		return "", false
	}

	original := strings.TrimRight(strings.TrimSpace(pending.OriginalQuestion), "?¿!. ")
	if city, ok := e.lex.City(folded); ok {
		return original + " en " + city, true
	}

	if !containsSlot(pending.MissingSlots, SlotCity) {
		return "", false
	}
	if looksLikeQuestion(trimmed) || len(textnorm.Words(folded)) > maxSlotAnswerWords || hasService {
		return "", false
	}
	if e.lex.IsNonSlotReply(folded) || e.lex.HasSearchVerb(folded) || !startsUpper(trimmed) {
		return "", false
	}
	return original + " en " + strings.Trim(trimmed, "?¿!.,;: "), true
}

// FollowUp 은 "el segundo", "ese" 같은 짧은 후속 질문을 active context 후보로 해석한다.
func (e *Extractor) FollowUp(question string, active ActiveContext) (Candidate, bool) {
	if len(active.Candidates) == 0 {
		return Candidate{}, false
	}
	folded := textnorm.Fold(question)
	if folded == "" || len(textnorm.Words(folded)) > maxFollowUpWords {
		return Candidate{}, false
	}
	if service, ok := e.lex.ServiceType(folded); ok && service != active.ServiceType {
		return Candidate{}, false
	}

	if pos, ok := e.lex.Ordinal(folded); ok {
		if pos < 0 {
			pos = len(active.Candidates) - 1
		}
		if pos >= len(active.Candidates) {
			return Candidate{}, false
		}
		return active.Candidates[pos], true
	}
	if e.lex.HasDemonstrative(folded) {
		for _, c := range active.Candidates {
			if c.Name == active.FocusedProvider {
				return c, true
			}
		}
		return active.Candidates[0], true
	}
	return Candidate{}, false
}

func startsUpper(text string) bool {
	for _, r := range text {
		return unicode.IsUpper(r)
	}
	return false
}

func looksLikeQuestion(text string) bool {
	return strings.ContainsAny(text, "?¿")
}

func containsSlot(slots []Slot, want Slot) bool {
	for _, s := range slots {
		if s == want {
			return true
		}
	}
	return false
}
