package assistant

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/park285/directory-assistant-go/internal/contextbuilder"
	"github.com/park285/directory-assistant-go/internal/conversation"
	"github.com/park285/directory-assistant-go/internal/llm"
	"github.com/park285/directory-assistant-go/internal/pricing"
	"github.com/park285/directory-assistant-go/internal/prompt"
)

// composePrompt 는 입력 토큰 상한 안에서 프롬프트를 만든다.
// 상한을 넘으면 오래된 히스토리부터 버리고, 남은 만큼만 컨텍스트를 줄 단위로 자른다.
func (s *Service) composePrompt(question, contextText string, sess *conversation.Session, maxOutputTokens int) (llm.Prompt, error) {
	in := prompt.UserInput{
		Context:       contextText,
		ActiveContext: s.activeContextText(sess.ActiveContext()),
		Question:      question,
	}
	history := sess.History()

	remaining := pricing.MaxRunesForTokens(s.cfg.MaxInputTokens) -
		utf8.RuneCountInString(s.prompts.System) -
		s.prompts.UserOverhead(in)
	for _, turn := range history {
		remaining -= utf8.RuneCountInString(turn.Content)
	}
	for remaining < 0 && len(history) > 0 {
		remaining += utf8.RuneCountInString(history[0].Content)
		history = history[1:]
	}
	in.Context = truncateLines(contextText, max(0, remaining))

	user, err := s.prompts.User(in)
	if err != nil {
		return llm.Prompt{}, fmt.Errorf("format user prompt: %w", err)
	}
	return llm.Prompt{
		System:          s.prompts.System,
		History:         history,
		User:            user,
		MaxOutputTokens: maxOutputTokens,
	}, nil
}

// truncateLines 는 text 를 limit 룬 이내의 완전한 줄까지만 남긴다.
func truncateLines(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	var b strings.Builder
	used := 0
	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line) + 1
		if used+n > limit {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
		used += n
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) activeContextText(active conversation.ActiveContext) string {
	if active.IsEmpty() {
		return ""
	}
	var b strings.Builder
	if active.ServiceType != "" {
		fmt.Fprintf(&b, "Servicio: %s\n", s.extractor.ServiceLabel(active.ServiceType))
	}
	if active.City != "" {
		fmt.Fprintf(&b, "Ciudad: %s\n", active.City)
	}
	if active.FocusedProvider != "" {
		fmt.Fprintf(&b, "Proveedor en foco: %s\n", active.FocusedProvider)
	}
	if len(active.Candidates) > 0 {
		b.WriteString("Candidatos:\n")
		for i, c := range active.Candidates {
			fmt.Fprintf(&b, "%d. %s\n", i+1, candidateLine(c))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func candidateLine(c conversation.Candidate) string {
	parts := []string{c.Name}
	if c.City != "" {
		parts = append(parts, c.City)
	}
	if c.ReviewCount > 0 {
		parts = append(parts, fmt.Sprintf("%.1f★ (%d)", c.Rating, c.ReviewCount))
	}
	if c.MinPriceMXN > 0 {
		parts = append(parts, "desde "+contextbuilder.FormatPriceMXN(c.MinPriceMXN))
	}
	if c.Contact != "" {
		parts = append(parts, c.Contact)
	}
	if c.Verified {
		parts = append(parts, "verificado")
	}
	return strings.Join(parts, " | ")
}

func toCandidates(listings []contextbuilder.Listing) []conversation.Candidate {
	out := make([]conversation.Candidate, 0, len(listings))
	for _, l := range listings {
		price, _ := l.MinPrice()
		out = append(out, conversation.Candidate{
			ListingID:   l.ID,
			Name:        l.Name,
			City:        l.City,
			Contact:     l.Contact(),
			Rating:      l.AvgRating,
			ReviewCount: l.ReviewCount,
			MinPriceMXN: price,
			Verified:    l.Verified,
		})
	}
	return out
}
