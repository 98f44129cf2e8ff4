// Package canned 는 짧은 FAQ 성 질문에 고정 답변을 돌려준다.
package canned

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/park285/directory-assistant-go/internal/lexicon"
	"github.com/park285/directory-assistant-go/internal/textnorm"
)

//go:embed assets/canned.yml
var assetsFS embed.FS

const defaultMaxChars = 60

// Topic 은 고정 답변 항목이다.
type Topic struct {
	ID      string   `yaml:"id"`
	Phrases []string `yaml:"phrases"`
	Answer  string   `yaml:"answer"`
}

// Answer 는 매칭 결과다.
type Answer struct {
	TopicID string
	Text    string
}

// Matcher 는 정형 답변 매처다.
// 질문이 짧고 검색 트리거 단어가 없을 때만 매칭한다.
type Matcher struct {
	maxChars int
	triggers *lexicon.PhraseSet
	phrases  *lexicon.PhraseSet
	byPhrase map[string]Topic
}

// LoadTopics 는 내장 주제 목록을 읽는다.
func LoadTopics() ([]Topic, error) {
	data, err := assetsFS.ReadFile("assets/canned.yml")
	if err != nil {
		return nil, fmt.Errorf("read canned topics: %w", err)
	}
	var raw struct {
		Topics []Topic `yaml:"topics"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse canned topics: %w", err)
	}
	return raw.Topics, nil
}

// NewMatcher 는 주제와 검색 트리거 구문으로 Matcher 를 만든다.
// maxChars 이상 길이의 질문은 매칭하지 않는다.
func NewMatcher(topics []Topic, triggers []string, maxChars int) (*Matcher, error) {
	if len(topics) == 0 {
		return nil, errors.New("no canned topics")
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	byPhrase := make(map[string]Topic)
	var phrases []string
	for _, topic := range topics {
		if strings.TrimSpace(topic.Answer) == "" {
			return nil, fmt.Errorf("canned topic %q has empty answer", topic.ID)
		}
		for _, phrase := range topic.Phrases {
			folded := textnorm.Fold(phrase)
			if folded == "" {
				continue
			}
			if _, dup := byPhrase[folded]; dup {
				continue
			}
			byPhrase[folded] = topic
			phrases = append(phrases, folded)
		}
	}

	return &Matcher{
		maxChars: maxChars,
		triggers: lexicon.NewPhraseSet(triggers),
		phrases:  lexicon.NewPhraseSet(phrases),
		byPhrase: byPhrase,
	}, nil
}

// NewDefault 는 내장 주제와 내장 사전의 트리거로 Matcher 를 만든다.
func NewDefault(maxChars int) (*Matcher, error) {
	topics, err := LoadTopics()
	if err != nil {
		return nil, err
	}
	lex, err := lexicon.Default()
	if err != nil {
		return nil, err
	}
	return NewMatcher(topics, lex.TriggerPhrases(), maxChars)
}

// Match 는 질문에 해당하는 고정 답변을 찾는다.
func (m *Matcher) Match(question string) (Answer, bool) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" || textnorm.RuneLen(trimmed) >= m.maxChars {
		return Answer{}, false
	}

	folded := textnorm.Fold(trimmed)
	if folded == "" || m.triggers.Contains(folded) {
		return Answer{}, false
	}

	found := m.phrases.Find(folded)
	if len(found) == 0 {
		return Answer{}, false
	}
	topic := m.byPhrase[found[0]]
	return Answer{TopicID: topic.ID, Text: strings.TrimSpace(topic.Answer)}, true
}
