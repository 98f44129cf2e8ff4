package prompt

import (
	"errors"
	"fmt"
	"strings"
)

var errUnbalanced = errors.New("unbalanced braces")

// walkTemplate 는 template 을 리터럴과 {key} 자리표시자로 나눠 콜백에 넘긴다.
// {{ 와 }} 는 리터럴 중괄호다.
func walkTemplate(template string, literal func(string), placeholder func(key string) error) error {
	start := 0
	for i := 0; i < len(template); i++ {
		switch template[i] {
		case '{', '}':
			literal(template[start:i])
			if i+1 < len(template) && template[i+1] == template[i] {
				literal(template[i : i+1])
				i++
				start = i + 1
				continue
			}
			if template[i] == '}' {
				return errUnbalanced
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return errUnbalanced
			}
			if err := placeholder(template[i+1 : i+1+end]); err != nil {
				return err
			}
			i += end + 1
			start = i + 1
		}
	}
	literal(template[start:])
	return nil
}

// FormatTemplate 는 {key} 자리표시자를 values 로 치환한다. 값이 없는 키는 오류다.
func FormatTemplate(template string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(template))
	err := walkTemplate(template, func(s string) { b.WriteString(s) }, func(key string) error {
		value, ok := values[key]
		if !ok {
			return fmt.Errorf("missing template value for %q", key)
		}
		b.WriteString(value)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("format template: %w", err)
	}
	return b.String(), nil
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

// EscapeXML 은 사용자 입력이 프롬프트의 XML 구획을 닫지 못하게 이스케이프한다.
func EscapeXML(value string) string {
	return xmlEscaper.Replace(value)
}

// ValidateSystemStatic 는 시스템 프롬프트에 자리표시자가 없는지 검사한다.
func ValidateSystemStatic(name string, system string) error {
	err := walkTemplate(system, func(string) {}, func(key string) error {
		return fmt.Errorf("system prompt must not contain template variables %q", key)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
