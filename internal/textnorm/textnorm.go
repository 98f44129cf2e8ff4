// Package textnorm 은 질문 비교용 정규화를 담당한다.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold 는 소문자화, 악센트 제거 후 문자/숫자만 남기고 공백을 하나로 합친다.
// "¿Cuánto   cuesta?" -> "cuanto cuesta"
func Fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		default:
			pendingSpace = true
		}
	}
	return b.String()
}

// Key 는 Fold 결과를 최대 limit 룬으로 자른다. limit <= 0 이면 자르지 않는다.
func Key(text string, limit int) string {
	return Truncate(Fold(text), limit)
}

// Truncate 는 문자열을 룬 단위로 자르고 끝 공백을 제거한다.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == limit {
			return strings.TrimRight(text[:i], " ")
		}
		count++
	}
	return text
}

// RuneLen 은 룬 개수를 반환한다.
func RuneLen(text string) int {
	return len([]rune(text))
}

// Words 는 정규화된 문자열을 단어로 나눈다.
func Words(folded string) []string {
	return strings.Fields(folded)
}
