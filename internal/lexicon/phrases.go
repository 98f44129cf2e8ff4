package lexicon

import (
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/park285/directory-assistant-go/internal/textnorm"
)

// PhraseSet 은 정규화된 문장에서 단어 경계에 걸친 구문을 찾는다.
// 후보는 Aho-Corasick 으로 한 번에 찾고, 경계 검사로 부분 단어 매칭을 걸러낸다.
type PhraseSet struct {
	matcher *ahocorasick.Matcher
	phrases []string
}

// NewPhraseSet 은 구문 목록으로 PhraseSet 을 만든다. 구문은 Fold 로 정규화된다.
func NewPhraseSet(phrases []string) *PhraseSet {
	seen := make(map[string]struct{}, len(phrases))
	folded := make([]string, 0, len(phrases))
	for _, p := range phrases {
		f := textnorm.Fold(p)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		folded = append(folded, f)
	}

	set := &PhraseSet{phrases: folded}
	if len(folded) > 0 {
		set.matcher = ahocorasick.NewStringMatcher(folded)
	}
	return set
}

// Len 은 등록된 구문 수다.
func (s *PhraseSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.phrases)
}

// Find 는 folded 문장에 단어 단위로 등장하는 구문을 긴 것부터 반환한다.
func (s *PhraseSet) Find(folded string) []string {
	if s == nil || s.matcher == nil || folded == "" {
		return nil
	}
	hits := s.matcher.MatchThreadSafe([]byte(folded))
	if len(hits) == 0 {
		return nil
	}

	found := make([]string, 0, len(hits))
	for _, index := range hits {
		if index < 0 || index >= len(s.phrases) {
			continue
		}
		phrase := s.phrases[index]
		if containsWord(folded, phrase) {
			found = append(found, phrase)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return len(found[i]) > len(found[j])
	})
	return found
}

// Contains 는 하나 이상의 구문이 등장하는지 확인한다.
func (s *PhraseSet) Contains(folded string) bool {
	return len(s.Find(folded)) > 0
}

// containsWord 는 phrase 가 단어 경계에서 시작하고 끝나는지 확인한다.
// 복수형(s, es) 어미는 같은 단어로 본다.
func containsWord(folded, phrase string) bool {
	for offset := 0; offset < len(folded); {
		idx := strings.Index(folded[offset:], phrase)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(phrase)
		if start == 0 || folded[start-1] == ' ' {
			rest := folded[end:]
			if rest == "" || rest[0] == ' ' {
				return true
			}
			for _, suffix := range []string{"s", "es"} {
				if strings.HasPrefix(rest, suffix) && (len(rest) == len(suffix) || rest[len(suffix)] == ' ') {
					return true
				}
			}
		}
		offset = start + 1
	}
	return false
}
