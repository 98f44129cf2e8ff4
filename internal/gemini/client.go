package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/park285/directory-assistant-go/internal/config"
	"github.com/park285/directory-assistant-go/internal/llm"
	"github.com/park285/directory-assistant-go/internal/pricing"
)

var (
	// ErrMissingAPIKey 는 Gemini API 키가 없을 때 반환된다.
	ErrMissingAPIKey = errors.New("missing gemini api key")
	// ErrEmptyResponse 는 응답 텍스트가 비어 있을 때 반환된다.
	ErrEmptyResponse = errors.New("empty model response")
)

// ProviderError 는 모델 호출 실패를 나타낸다. 타임아웃 여부를 구분한다.
type ProviderError struct {
	Model   string
	Timeout bool
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("model %s timed out: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("model %s failed: %v", e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// contentGenerator 는 genai.Models 의 GenerateContent 를 추상화한다.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Client 는 Gemini 호출을 담당한다. 사용량 기록은 호출자가 한 번만 수행한다.
type Client struct {
	cfg config.GeminiConfig

	mu         sync.Mutex
	generators map[string]contentGenerator
	apiKeys    []string
	apiKeyIdx  int
	newGen     func(ctx context.Context, apiKey string) (contentGenerator, error)
}

// NewClient 는 Gemini 클라이언트를 생성한다.
func NewClient(cfg config.GeminiConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("gemini model is empty")
	}
	c := &Client{
		cfg:        cfg,
		generators: make(map[string]contentGenerator),
		apiKeys:    cfg.APIKeys,
	}
	c.newGen = c.newGenAIGenerator
	return c, nil
}

// Model 은 호출에 쓰이는 모델 이름이다.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Generate 는 제한 시간 안에 답변을 생성한다.
// 실패는 항상 *ProviderError 로 반환된다.
func (c *Client) Generate(ctx context.Context, prompt llm.Prompt) (llm.Generation, error) {
	model := c.cfg.Model
	start := time.Now()

	gen, err := c.selectGenerator(ctx)
	if err != nil {
		return llm.Generation{Model: model}, &ProviderError{Model: model, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	response, err := gen.GenerateContent(callCtx, model, buildContents(prompt), c.buildGenerateConfig(prompt))
	latency := time.Since(start)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)
		return llm.Generation{Model: model, Latency: latency}, &ProviderError{
			Model:   model,
			Timeout: timeout,
			Err:     fmt.Errorf("generate content: %w", err),
		}
	}

	text := strings.TrimSpace(strings.Join(extractText(response), ""))
	if text == "" {
		return llm.Generation{Model: model, Latency: latency}, &ProviderError{Model: model, Err: ErrEmptyResponse}
	}

	usage, ok := extractUsage(response)
	if !ok {
		usage = estimateUsage(prompt, text)
	}
	return llm.Generation{
		Text:    text,
		Model:   model,
		Usage:   usage,
		Latency: latency,
	}, nil
}

func (c *Client) selectGenerator(ctx context.Context) (contentGenerator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.apiKeys) == 0 {
		return nil, ErrMissingAPIKey
	}

	key := c.apiKeys[c.apiKeyIdx%len(c.apiKeys)]
	c.apiKeyIdx++
	if gen, ok := c.generators[key]; ok {
		return gen, nil
	}

	gen, err := c.newGen(ctx, key)
	if err != nil {
		return nil, err
	}
	c.generators[key] = gen
	return gen, nil
}

func (c *Client) newGenAIGenerator(ctx context.Context, apiKey string) (contentGenerator, error) {
	client, err := genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			Timeout: genai.Ptr(c.cfg.Timeout()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client.Models, nil
}

func (c *Client) buildGenerateConfig(prompt llm.Prompt) *genai.GenerateContentConfig {
	temperature := float32(c.cfg.TemperatureForModel(c.cfg.Model))
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if prompt.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(prompt.MaxOutputTokens)
	}
	if strings.TrimSpace(prompt.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	if level, ok := normalizeThinkingLevel(c.cfg.ThinkingLevel); ok {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingLevel: level}
	}
	return cfg
}

func buildContents(prompt llm.Prompt) []*genai.Content {
	contents := make([]*genai.Content, 0, len(prompt.History)+1)
	for _, turn := range prompt.History {
		var role genai.Role = genai.RoleUser
		if turn.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(prompt.User, genai.RoleUser))
	return contents
}

func normalizeThinkingLevel(level string) (genai.ThinkingLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "low":
		return genai.ThinkingLevelLow, true
	case "medium":
		return genai.ThinkingLevelMedium, true
	case "high":
		return genai.ThinkingLevelHigh, true
	case "minimal":
		return genai.ThinkingLevelMinimal, true
	default:
		return "", false
	}
}

func extractText(response *genai.GenerateContentResponse) []string {
	if response == nil || len(response.Candidates) == 0 {
		return nil
	}
	content := response.Candidates[0].Content
	if content == nil {
		return nil
	}
	texts := make([]string, 0, len(content.Parts))
	for _, part := range content.Parts {
		if part == nil || part.Text == "" || part.Thought {
			continue
		}
		texts = append(texts, part.Text)
	}
	return texts
}

// extractUsage 는 응답 메타데이터의 토큰 수를 읽는다. 메타데이터가 없으면 false.
func extractUsage(response *genai.GenerateContentResponse) (llm.Usage, bool) {
	if response == nil || response.UsageMetadata == nil {
		return llm.Usage{}, false
	}
	meta := response.UsageMetadata
	if meta.PromptTokenCount == 0 && meta.CandidatesTokenCount == 0 {
		return llm.Usage{}, false
	}
	return llm.Usage{
		InputTokens:  int(meta.PromptTokenCount),
		OutputTokens: int(meta.CandidatesTokenCount) + int(meta.ThoughtsTokenCount),
		CachedTokens: int(meta.CachedContentTokenCount),
	}, true
}

func estimateUsage(prompt llm.Prompt, answer string) llm.Usage {
	input := pricing.EstimateTokens(prompt.System) + pricing.EstimateTokens(prompt.User)
	for _, turn := range prompt.History {
		input += pricing.EstimateTokens(turn.Content)
	}
	return llm.Usage{
		InputTokens:  input,
		OutputTokens: pricing.EstimateTokens(answer),
		Estimated:    true,
	}
}
