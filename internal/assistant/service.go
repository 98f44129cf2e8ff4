// Package assistant 는 질문 1건을 정형 답변, 캐시, 모델 호출 중 하나로 처리하는 파이프라인이다.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/forPelevin/gomoji"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"

	"github.com/park285/directory-assistant-go/internal/answercache"
	"github.com/park285/directory-assistant-go/internal/budget"
	"github.com/park285/directory-assistant-go/internal/canned"
	"github.com/park285/directory-assistant-go/internal/contextbuilder"
	"github.com/park285/directory-assistant-go/internal/conversation"
	"github.com/park285/directory-assistant-go/internal/gemini"
	"github.com/park285/directory-assistant-go/internal/llm"
	"github.com/park285/directory-assistant-go/internal/metrics"
	"github.com/park285/directory-assistant-go/internal/pricing"
	"github.com/park285/directory-assistant-go/internal/prompt"
	"github.com/park285/directory-assistant-go/internal/ratelimit"
	"github.com/park285/directory-assistant-go/internal/settings"
	"github.com/park285/directory-assistant-go/internal/telemetry"
	"github.com/park285/directory-assistant-go/internal/usage"
)

const (
	defaultMaxQuestionChars = 1000
	defaultMaxInputTokens   = 8000
	candidateLimit          = 5
)

// Admitter 는 식별자별 요청 창을 검사한다.
type Admitter interface {
	Admit(ctx context.Context, identifier string, limits ratelimit.Limits) (ratelimit.Decision, error)
}

// BudgetChecker 는 누적 비용 상한을 검사한다.
type BudgetChecker interface {
	Check(ctx context.Context, caps budget.Caps) (budget.Result, error)
}

// CannedMatcher 는 정형 답변을 찾는다.
type CannedMatcher interface {
	Match(question string) (canned.Answer, bool)
}

// AnswerCache 는 모델 답변 캐시다.
type AnswerCache interface {
	Lookup(ctx context.Context, question string) (answercache.Entry, bool)
	Store(ctx context.Context, question string, entry answercache.Entry)
}

// ContextSource 는 프롬프트용 마켓플레이스 컨텍스트를 만든다.
type ContextSource interface {
	Build(ctx context.Context) (contextbuilder.Block, error)
}

// Generator 는 모델 호출이다.
type Generator interface {
	Generate(ctx context.Context, prompt llm.Prompt) (llm.Generation, error)
}

// UsageRecorder 는 사용량 기록이다. Record 는 블로킹하지 않는다.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) string
	RecordFeedback(ctx context.Context, id string, useful bool) (bool, error)
}

// Deps 는 Service 협력자 묶음이다.
type Deps struct {
	Settings  settings.Source
	RateLimit Admitter
	Budget    BudgetChecker
	Canned    CannedMatcher
	Cache     AnswerCache
	Context   ContextSource
	Model     Generator
	Usage     UsageRecorder
	Sessions  *conversation.Store
	Extractor *conversation.Extractor
	Prompts   *prompt.Assistant
	Pricing   *pricing.Table
	Metrics   *metrics.Store
	Logger    *slog.Logger
}

// Config 는 파이프라인 한도다.
type Config struct {
	MaxQuestionChars int
	// MaxInputTokens 는 시스템 프롬프트, 히스토리, 컨텍스트, 질문을 합친 추정 토큰 상한이다.
	MaxInputTokens int
}

// Request 는 질문 요청이다. SessionID 가 비면 히스토리 없이 한 번만 처리한다.
type Request struct {
	Question   string
	Identifier string
	SessionID  string
}

// Response 는 질문 처리 결과다.
type Response struct {
	Answer    string `json:"answer"`
	UsageID   string `json:"usage_id"`
	Source    string `json:"source"`
	SessionID string `json:"session_id,omitempty"`
}

// Service 는 ask 파이프라인이다.
type Service struct {
	settings  settings.Source
	rateLimit Admitter
	budget    BudgetChecker
	canned    CannedMatcher
	cache     AnswerCache
	context   ContextSource
	model     Generator
	usage     UsageRecorder
	sessions  *conversation.Store
	extractor *conversation.Extractor
	prompts   *prompt.Assistant
	pricing   *pricing.Table
	metrics   *metrics.Store
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

// Option 은 Service 옵션이다.
type Option func(*Service)

// WithClock 은 지연 시간 계산용 시계를 지정한다.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New 는 Service 를 생성한다.
func New(deps Deps, cfg Config, opts ...Option) (*Service, error) {
	required := []struct {
		name string
		ok   bool
	}{
		{"settings", deps.Settings != nil},
		{"rate_limit", deps.RateLimit != nil},
		{"budget", deps.Budget != nil},
		{"canned", deps.Canned != nil},
		{"cache", deps.Cache != nil},
		{"context", deps.Context != nil},
		{"model", deps.Model != nil},
		{"usage", deps.Usage != nil},
		{"sessions", deps.Sessions != nil},
		{"extractor", deps.Extractor != nil},
		{"prompts", deps.Prompts != nil},
	}
	var missing []string
	for _, r := range required {
		if !r.ok {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("assistant dependencies missing: %s", strings.Join(missing, ", "))
	}

	if cfg.MaxQuestionChars <= 0 {
		cfg.MaxQuestionChars = defaultMaxQuestionChars
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = defaultMaxInputTokens
	}
	s := &Service{
		settings:  deps.Settings,
		rateLimit: deps.RateLimit,
		budget:    deps.Budget,
		canned:    deps.Canned,
		cache:     deps.Cache,
		context:   deps.Context,
		model:     deps.Model,
		usage:     deps.Usage,
		sessions:  deps.Sessions,
		extractor: deps.Extractor,
		prompts:   deps.Prompts,
		pricing:   deps.Pricing,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       time.Now,
	}
	if s.pricing == nil {
		s.pricing = pricing.DefaultTable()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewStore(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// exchange 는 질문 1건의 처리 중간 상태다.
type exchange struct {
	start      time.Time
	identifier string
	session    *conversation.Session
	// asked 는 사용자가 보낸 원문, question 은 되묻기 병합 후 실제로 답할 질문이다.
	asked    string
	question string
	gen      llm.Generation
	costUSD  float64
	errText  string
	meta     map[string]any
}

// Ask 는 질문에 답한다.
// 관문(활성화, 요청 창, 예산)을 모두 통과해야 캐시, 컨텍스트, 모델 단계로 진행한다.
func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "assistant.ask")
	defer span.End()

	resp, err := s.ask(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}
	span.SetAttributes(
		attribute.String("assistant.source", resp.Source),
		attribute.Bool("assistant.session", resp.SessionID != ""),
	)
	return resp, nil
}

func (s *Service) ask(ctx context.Context, req Request) (Response, error) {
	start := s.now()
	s.metrics.RecordRequest()

	question := strings.TrimSpace(req.Question)
	if err := s.validateQuestion(question); err != nil {
		s.metrics.RecordRejection(metrics.RejectInvalid)
		return Response{}, err
	}

	cfg := s.currentSettings(ctx)
	if !cfg.Enabled {
		s.metrics.RecordRejection(metrics.RejectDisabled)
		return Response{}, ErrDisabled
	}

	sess, err := s.session(req.SessionID)
	if err != nil {
		return Response{}, err
	}
	sess.SetMaxTurns(cfg.MaxConversationTurns)

	if err := s.admit(ctx, req.Identifier, cfg); err != nil {
		return Response{}, err
	}

	ex := &exchange{
		start:      start,
		identifier: strings.TrimSpace(req.Identifier),
		session:    sess,
		asked:      question,
		question:   question,
		meta:       make(map[string]any),
	}
	stateful := sess.ID != ""

	if stateful {
		sess.ClearResolved()
		res := sess.ResolveClarification(question, s.extractor)
		switch {
		case res.Resolved:
			ex.question = res.Question
			ex.meta["clarified"] = true
			s.logger.DebugContext(ctx, "assistant_clarification_resolved", "session_id", sess.ID)
		case res.Abandoned:
			ex.meta["clarification_abandoned"] = true
			s.logger.DebugContext(ctx, "assistant_clarification_abandoned", "session_id", sess.ID)
		}
	}

	if answer, ok := s.canned.Match(ex.question); ok {
		ex.meta["topic"] = answer.TopicID
		return s.finish(ctx, ex, answer.Text, metrics.SourceCanned), nil
	}

	slots := s.extractor.Extract(ex.question)
	followUp := false
	if stateful {
		if candidate, ok := s.extractor.FollowUp(ex.question, sess.ActiveContext()); ok {
			sess.Focus(candidate.Name)
			followUp = true
			ex.meta["focused_provider"] = candidate.Name
		}
	}

	missing := s.extractor.MissingSlots(slots)
	if stateful && !followUp && len(missing) > 0 {
		sess.SetPending(ex.question, slots.ServiceType, missing, s.now())
		ex.meta["missing_slots"] = slotNames(missing)
		text := s.prompts.ClarifyCity(s.extractor.ServiceLabel(slots.ServiceType))
		return s.finish(ctx, ex, text, metrics.SourceClarification), nil
	}

	// 후속 질문은 세션 후보에 의존하고, 조건이 빠진 검색 질문은 세션마다 되묻기 대상이라 공유 캐시를 쓰지 않는다.
	cacheable := !followUp && len(missing) == 0
	if cacheable {
		entry, hit := s.cache.Lookup(ctx, ex.question)
		s.metrics.RecordCacheLookup(hit)
		if hit {
			ex.gen.Model = entry.Model
			return s.finish(ctx, ex, entry.Answer, metrics.SourceCache), nil
		}
	}

	block := s.buildContext(ctx)
	if len(block.Omitted) > 0 {
		ex.meta["omitted_sections"] = block.Omitted
	}

	p, err := s.composePrompt(ex.question, block.Text, sess, cfg.MaxTokensPerQuestion)
	if err != nil {
		s.logger.ErrorContext(ctx, "assistant_prompt_failed", "err", err)
		ex.errText = err.Error()
		return s.finish(ctx, ex, s.prompts.Fallback, metrics.SourceFallback), nil
	}

	gen, err := s.generate(ctx, p)
	ex.gen = gen
	if err != nil {
		var providerErr *gemini.ProviderError
		timeout := errors.As(err, &providerErr) && providerErr.Timeout
		s.metrics.RecordModelCall(gen.Latency, llm.Usage{}, 0, err, timeout)
		s.logger.WarnContext(ctx, "assistant_model_failed", "err", err, "timeout", timeout, "model", gen.Model)
		// 실패 호출은 비용 0 으로 기록한다. 사용량은 버린다.
		ex.gen.Usage = llm.Usage{}
		ex.errText = err.Error()
		ex.meta["timeout"] = timeout
		return s.finish(ctx, ex, s.prompts.Fallback, metrics.SourceFallback), nil
	}

	ex.costUSD = s.pricing.Cost(gen.Model, gen.Usage)
	s.metrics.RecordModelCall(gen.Latency, gen.Usage, ex.costUSD, nil, false)
	if gen.Usage.Estimated {
		ex.meta["usage_estimated"] = true
	}

	if cacheable {
		s.cache.Store(ctx, ex.question, answercache.Entry{Answer: gen.Text, Model: gen.Model, StoredAt: s.now()})
	}
	if stateful && slots.ServiceType != "" {
		listings := block.Snapshot.Candidates(contextbuilder.Query{
			ServiceType: slots.ServiceType,
			City:        slots.City,
			MaxPriceMXN: slots.BudgetMXN,
			Limit:       candidateLimit,
		})
		sess.SetActiveContext(slots.ServiceType, slots.City, toCandidates(listings))
	}
	return s.finish(ctx, ex, gen.Text, metrics.SourceModel), nil
}

func (s *Service) validateQuestion(question string) error {
	if question == "" || strings.TrimSpace(gomoji.RemoveEmojis(question)) == "" {
		return ErrEmptyQuestion
	}
	if n := utf8.RuneCountInString(question); n > s.cfg.MaxQuestionChars {
		return &QuestionTooLongError{Length: n, Max: s.cfg.MaxQuestionChars}
	}
	return nil
}

// currentSettings 는 요청마다 설정을 한 번 읽는다. 조회 실패 시 저장소가 돌려준 기본값을 쓴다.
func (s *Service) currentSettings(ctx context.Context) settings.Settings {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "assistant_settings_unavailable", "err", err)
		s.metrics.IncDegraded("settings")
	}
	return cfg
}

func (s *Service) session(id string) (*conversation.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return s.sessions.Transient(), nil
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return sess, nil
}

// admit 는 요청 창과 예산을 순서대로 검사한다. 거부된 요청은 어떤 창도 증가시키지 않는다.
func (s *Service) admit(ctx context.Context, identifier string, cfg settings.Settings) error {
	decision, err := s.rateLimit.Admit(ctx, identifier, ratelimit.Limits{
		PerMinute: cfg.RateLimitPerMinute,
		PerHour:   cfg.RateLimitPerHour,
		PerDay:    cfg.RateLimitPerDay,
	})
	if err != nil {
		s.metrics.RecordRejection(metrics.RejectRateLimited)
		return fmt.Errorf("rate limit admission: %w", err)
	}
	if !decision.Allowed {
		s.metrics.RecordRejection(metrics.RejectRateLimited)
		s.logger.InfoContext(ctx, "assistant_rate_limited",
			"identifier", identifier,
			"window", decision.Window,
			"limit", decision.Limit,
			"retry_after", decision.RetryAfter,
		)
		return &RateLimitedError{
			Window:     decision.Window,
			Limit:      decision.Limit,
			ResetAt:    decision.ResetAt,
			RetryAfter: decision.RetryAfter,
		}
	}

	result, err := s.budget.Check(ctx, budget.Caps{DailyUSD: cfg.DailyBudgetUSD, MonthlyUSD: cfg.MonthlyBudgetUSD})
	if err != nil {
		s.metrics.RecordRejection(metrics.RejectBudgetExceeded)
		return fmt.Errorf("budget check: %w", err)
	}
	if !result.Allowed {
		s.metrics.RecordRejection(metrics.RejectBudgetExceeded)
		s.logger.WarnContext(ctx, "assistant_budget_exceeded",
			"period", result.Period,
			"spend_usd", result.Spend,
			"cap_usd", result.Cap,
		)
		return &BudgetExceededError{Period: result.Period, Spend: result.Spend, Cap: result.Cap}
	}
	return nil
}

// buildContext 는 컨텍스트를 만든다. 실패하면 빈 컨텍스트로 진행한다.
func (s *Service) buildContext(ctx context.Context) contextbuilder.Block {
	ctx, span := telemetry.Tracer().Start(ctx, "assistant.context")
	defer span.End()

	block, err := s.context.Build(ctx)
	if err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "assistant_context_failed", "err", err)
		s.metrics.IncDegraded("context")
		return contextbuilder.Block{}
	}
	span.SetAttributes(
		attribute.Int("assistant.context_chars", utf8.RuneCountInString(block.Text)),
		attribute.Int("assistant.context_omitted", len(block.Omitted)),
	)
	return block
}

func (s *Service) generate(ctx context.Context, p llm.Prompt) (llm.Generation, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "assistant.generate")
	defer span.End()

	gen, err := s.model.Generate(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return gen, fmt.Errorf("generate answer: %w", err)
	}
	span.SetAttributes(
		attribute.String("llm.model", gen.Model),
		attribute.Int("llm.input_tokens", gen.Usage.InputTokens),
		attribute.Int("llm.output_tokens", gen.Usage.OutputTokens),
	)
	return gen, nil
}

// finish 는 히스토리와 사용량을 기록하고 응답을 만든다.
// 사용량 기록은 큐에 넣기만 하므로 응답을 지연시키지 않는다.
func (s *Service) finish(ctx context.Context, ex *exchange, answer string, source string) Response {
	answer = strings.TrimSpace(answer)
	sess := ex.session
	if sess.ID != "" && source != metrics.SourceFallback {
		sess.AppendTurn(llm.RoleUser, ex.asked)
		sess.AppendTurn(llm.RoleAssistant, answer)
	}

	rec := usage.Record{
		SessionID:    sess.ID,
		Identifier:   ex.identifier,
		Question:     ex.question,
		Answer:       answer,
		Source:       source,
		Model:        ex.gen.Model,
		InputTokens:  int64(ex.gen.Usage.InputTokens),
		OutputTokens: int64(ex.gen.Usage.OutputTokens),
		CostUSD:      ex.costUSD,
		LatencyMs:    s.now().Sub(ex.start).Milliseconds(),
		Error:        ex.errText,
	}
	if ex.asked != ex.question {
		ex.meta["asked"] = ex.asked
	}
	if len(ex.meta) > 0 {
		rec.Metadata = datatypes.JSONMap(ex.meta)
	}
	usageID := s.usage.Record(ctx, rec)
	s.metrics.RecordAnswer(source)

	s.logger.DebugContext(ctx, "assistant_answered",
		"source", source,
		"usage_id", usageID,
		"session_id", sess.ID,
		"cost_usd", ex.costUSD,
		"latency_ms", rec.LatencyMs,
	)
	return Response{Answer: answer, UsageID: usageID, Source: source, SessionID: sess.ID}
}

// WelcomeMessage 는 설정된 환영 문구를 반환한다.
func (s *Service) WelcomeMessage(ctx context.Context) string {
	return strings.TrimSpace(s.currentSettings(ctx).WelcomeMessage)
}

// SubmitFeedback 은 usage id 로 유용성 피드백을 남긴다. 대상이 있으면 true.
func (s *Service) SubmitFeedback(ctx context.Context, usageID string, useful bool) (bool, error) {
	accepted, err := s.usage.RecordFeedback(ctx, usageID, useful)
	if err != nil {
		if errors.Is(err, usage.ErrUsageNotFound) {
			return false, err
		}
		s.logger.WarnContext(ctx, "assistant_feedback_failed", "usage_id", usageID, "err", err)
		return false, fmt.Errorf("record feedback: %w", err)
	}
	return accepted, nil
}

// OpenSession 은 대화 세션을 연다.
func (s *Service) OpenSession() string {
	return s.sessions.Open().ID
}

// EndSession 은 대화 세션을 닫는다. 세션이 있었으면 true.
func (s *Service) EndSession(id string) bool {
	return s.sessions.End(id)
}

// Metrics 는 통계 스냅샷이다.
func (s *Service) Metrics() map[string]float64 {
	return s.metrics.Snapshot()
}

func slotNames(slots []conversation.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, slot := range slots {
		out = append(out, string(slot))
	}
	return out
}
