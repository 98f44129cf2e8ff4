package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

//go:embed assets/*.yml
var assets embed.FS

var requiredAssistantFields = []string{"system", "user", "fallback", "clarify_city", "clarify_city_generic", "empty_context"}

// Assistant 는 어시스턴트 파이프라인이 사용하는 프롬프트 묶음이다.
type Assistant struct {
	System             string
	userTemplate       string
	Fallback           string
	clarifyCity        string
	clarifyCityGeneric string
	EmptyContext       string
}

// UserInput 은 사용자 프롬프트 템플릿 값이다.
type UserInput struct {
	Context       string
	ActiveContext string
	Question      string
}

// LoadAssistant 는 내장된 assistant.yml 을 로드한다.
func LoadAssistant() (*Assistant, error) {
	return LoadAssistantFrom(assets, "assets")
}

// LoadAssistantFrom 은 fsys 의 dir 에서 assistant 프롬프트를 로드한다.
func LoadAssistantFrom(fsys fs.FS, dir string) (*Assistant, error) {
	loaded, err := LoadYAMLDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	data, ok := loaded["assistant"]
	if !ok {
		return nil, fmt.Errorf("prompt not found: assistant")
	}
	for _, key := range requiredAssistantFields {
		if strings.TrimSpace(data[key]) == "" {
			return nil, fmt.Errorf("prompt field missing: assistant.%s", key)
		}
	}
	return &Assistant{
		System:             data["system"],
		userTemplate:       data["user"],
		Fallback:           data["fallback"],
		clarifyCity:        data["clarify_city"],
		clarifyCityGeneric: data["clarify_city_generic"],
		EmptyContext:       data["empty_context"],
	}, nil
}

// User 는 사용자 프롬프트를 만든다. 질문은 XML 이스케이프된다.
func (a *Assistant) User(in UserInput) (string, error) {
	ctxBlock := strings.TrimSpace(in.Context)
	if ctxBlock == "" {
		ctxBlock = a.EmptyContext
	}
	active := strings.TrimSpace(in.ActiveContext)
	if active == "" {
		active = "-"
	}
	return FormatTemplate(a.userTemplate, map[string]string{
		"context":        ctxBlock,
		"active_context": active,
		"question":       EscapeXML(in.Question),
	})
}

// UserOverhead 는 컨텍스트를 제외한 사용자 프롬프트 길이(룬)를 반환한다.
func (a *Assistant) UserOverhead(in UserInput) int {
	in.Context = "-"
	text, err := a.User(in)
	if err != nil {
		return 0
	}
	return len([]rune(text))
}

// ClarifyCity 는 도시 확인 질문을 만든다. service 가 비면 일반 문구를 쓴다.
func (a *Assistant) ClarifyCity(service string) string {
	if strings.TrimSpace(service) == "" {
		return a.clarifyCityGeneric
	}
	text, err := FormatTemplate(a.clarifyCity, map[string]string{"service": service})
	if err != nil {
		return a.clarifyCityGeneric
	}
	return text
}
