package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/park285/directory-assistant-go/internal/config"
	"github.com/park285/directory-assistant-go/internal/llm"
)

type fakeGenerator struct {
	response *genai.GenerateContentResponse
	err      error
	delay    time.Duration

	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotContents = contents
	f.gotConfig = cfg
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.response, f.err
}

func textResponse(text string, meta *genai.GenerateContentResponseUsageMetadata) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
		UsageMetadata: meta,
	}
}

func newTestClient(t *testing.T, gen contentGenerator, cfg config.GeminiConfig) *Client {
	t.Helper()
	if cfg.Model == "" {
		cfg.Model = "gemini-3-flash-preview"
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = []string{"k1"}
	}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.newGen = func(context.Context, string) (contentGenerator, error) { return gen, nil }
	return client
}

func TestGenerateUsesMetadata(t *testing.T) {
	gen := &fakeGenerator{response: textResponse("Hay 3 fotógrafos.", &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:     400,
		CandidatesTokenCount: 20,
		ThoughtsTokenCount:   5,
	})}
	client := newTestClient(t, gen, config.GeminiConfig{ThinkingLevel: "low", Temperature: 0.2})

	out, err := client.Generate(context.Background(), llm.Prompt{
		System:          "sys",
		History:         []llm.Turn{{Role: llm.RoleUser, Content: "q1"}, {Role: llm.RoleAssistant, Content: "a1"}},
		User:            "q2",
		MaxOutputTokens: 256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "Hay 3 fotógrafos." || out.Usage.InputTokens != 400 || out.Usage.OutputTokens != 25 || out.Usage.Estimated {
		t.Fatalf("unexpected generation: %+v", out)
	}
	if len(gen.gotContents) != 3 || gen.gotContents[1].Role != string(genai.RoleModel) {
		t.Fatalf("unexpected contents: %+v", gen.gotContents)
	}
	if gen.gotConfig.MaxOutputTokens != 256 {
		t.Fatalf("expected output cap, got %d", gen.gotConfig.MaxOutputTokens)
	}
	if *gen.gotConfig.Temperature != 1.0 {
		t.Fatalf("gemini-3 temperature should be clamped to 1.0, got %v", *gen.gotConfig.Temperature)
	}
	if gen.gotConfig.ThinkingConfig == nil || gen.gotConfig.ThinkingConfig.ThinkingLevel != genai.ThinkingLevelLow {
		t.Fatalf("expected low thinking level")
	}
}

func TestGenerateEstimatesWithoutMetadata(t *testing.T) {
	gen := &fakeGenerator{response: textResponse("abcdefgh", nil)}
	client := newTestClient(t, gen, config.GeminiConfig{})

	out, err := client.Generate(context.Background(), llm.Prompt{System: "abcd", User: "abcdefgh"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Usage.Estimated || out.Usage.InputTokens != 3 || out.Usage.OutputTokens != 2 {
		t.Fatalf("unexpected estimated usage: %+v", out.Usage)
	}
}

func TestGenerateTimeout(t *testing.T) {
	gen := &fakeGenerator{delay: time.Second, response: textResponse("late", nil)}
	client := newTestClient(t, gen, config.GeminiConfig{})
	client.cfg.TimeoutSeconds = 1

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Generate(ctx, llm.Prompt{User: "q"})

	var perr *ProviderError
	if !errors.As(err, &perr) || !perr.Timeout {
		t.Fatalf("expected timeout provider error, got %v", err)
	}
}

func TestGenerateProviderFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("503 unavailable")}
	client := newTestClient(t, gen, config.GeminiConfig{})

	_, err := client.Generate(context.Background(), llm.Prompt{User: "q"})
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Timeout {
		t.Fatalf("expected non-timeout provider error, got %v", err)
	}

	gen.err = nil
	gen.response = textResponse("   ", nil)
	_, err = client.Generate(context.Background(), llm.Prompt{User: "q"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestGenerateMissingKey(t *testing.T) {
	client, err := NewClient(config.GeminiConfig{Model: "gemini-3-flash"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Generate(context.Background(), llm.Prompt{User: "q"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestSelectGeneratorRotatesKeys(t *testing.T) {
	client := newTestClient(t, &fakeGenerator{}, config.GeminiConfig{APIKeys: []string{"a", "b"}})
	var created []string
	client.newGen = func(_ context.Context, key string) (contentGenerator, error) {
		created = append(created, key)
		return &fakeGenerator{}, nil
	}
	for i := 0; i < 4; i++ {
		if _, err := client.selectGenerator(context.Background()); err != nil {
			t.Fatalf("select: %v", err)
		}
	}
	if len(created) != 2 || created[0] != "a" || created[1] != "b" {
		t.Fatalf("expected one generator per key, got %v", created)
	}
}

func TestExtractTextSkipsThoughts(t *testing.T) {
	response := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{Text: "pensando", Thought: true},
			{Text: "respuesta"},
			nil,
		}}}},
	}
	texts := extractText(response)
	if len(texts) != 1 || texts[0] != "respuesta" {
		t.Fatalf("unexpected texts: %v", texts)
	}
	if extractText(nil) != nil {
		t.Fatalf("expected nil for nil response")
	}
}

func TestNormalizeThinkingLevel(t *testing.T) {
	if level, ok := normalizeThinkingLevel("HIGH"); !ok || level != genai.ThinkingLevelHigh {
		t.Fatalf("unexpected thinking level")
	}
	if _, ok := normalizeThinkingLevel("none"); ok {
		t.Fatalf("expected none to be disabled")
	}
}
