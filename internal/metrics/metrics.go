package metrics

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/park285/directory-assistant-go/internal/llm"
)

// 답변 출처. usage 레코드의 source 컬럼과 같은 값이다.
const (
	SourceModel         = "model"
	SourceCache         = "cache"
	SourceCanned        = "canned"
	SourceClarification = "clarification"
	SourceFallback      = "fallback"
)

// 거부 사유.
const (
	RejectDisabled       = "disabled"
	RejectRateLimited    = "rate_limited"
	RejectBudgetExceeded = "budget_exceeded"
	RejectInvalid        = "invalid"
)

var knownSources = []string{SourceModel, SourceCache, SourceCanned, SourceClarification, SourceFallback}

// Store 는 어시스턴트 통계를 저장한다.
// 원자 카운터는 /api/assistant/metrics 스냅샷에, Prometheus 수집기는 /metrics 에 쓰인다.
type Store struct {
	requests        atomic.Int64
	disabled        atomic.Int64
	rateLimited     atomic.Int64
	budgetExceeded  atomic.Int64
	invalid         atomic.Int64
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	modelCalls      atomic.Int64
	modelErrors     atomic.Int64
	modelTimeouts   atomic.Int64
	inputTokens     atomic.Int64
	outputTokens    atomic.Int64
	modelDurationMs atomic.Int64
	costMicroUSD    atomic.Int64
	degraded        atomic.Int64
	usageDropped    atomic.Int64
	answers         map[string]*atomic.Int64

	promAnswers    *prometheus.CounterVec
	promRejections *prometheus.CounterVec
	promCache      *prometheus.CounterVec
	promModel      *prometheus.HistogramVec
	promTokens     *prometheus.CounterVec
	promCost       prometheus.Counter
	promDegraded   *prometheus.CounterVec
	promDropped    prometheus.Counter
}

// NewStore 는 통계 저장소를 생성하고 reg 에 수집기를 등록한다.
// reg 가 nil 이면 Prometheus 수집기는 등록되지 않는다.
func NewStore(reg prometheus.Registerer) *Store {
	factory := promauto.With(reg)
	s := &Store{
		answers: make(map[string]*atomic.Int64, len(knownSources)),
		promAnswers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_answers_total",
			Help: "Answers returned by source",
		}, []string{"source"}),
		promRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_rejections_total",
			Help: "Questions rejected before answering",
		}, []string{"reason"}),
		promCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_cache_lookups_total",
			Help: "Response cache lookups",
		}, []string{"result"}),
		promModel: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assistant_model_request_duration_seconds",
			Help:    "Duration of model requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		promTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_model_tokens_total",
			Help: "Model tokens consumed",
		}, []string{"direction"}),
		promCost: factory.NewCounter(prometheus.CounterOpts{
			Name: "assistant_model_cost_usd_total",
			Help: "Model cost in USD",
		}),
		promDegraded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_degraded_total",
			Help: "Degraded-mode events by component",
		}, []string{"component"}),
		promDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "assistant_usage_dropped_total",
			Help: "Usage records dropped because the queue was full",
		}),
	}
	for _, source := range knownSources {
		s.answers[source] = &atomic.Int64{}
	}
	return s
}

// RecordRequest 는 ask 요청 1건을 센다.
func (s *Store) RecordRequest() {
	s.requests.Add(1)
}

// RecordAnswer 는 출처별 답변 수를 센다.
func (s *Store) RecordAnswer(source string) {
	if counter, ok := s.answers[source]; ok {
		counter.Add(1)
	}
	s.promAnswers.WithLabelValues(source).Inc()
}

// RecordRejection 은 거부 사유별 요청 수를 센다.
func (s *Store) RecordRejection(reason string) {
	switch reason {
	case RejectDisabled:
		s.disabled.Add(1)
	case RejectRateLimited:
		s.rateLimited.Add(1)
	case RejectBudgetExceeded:
		s.budgetExceeded.Add(1)
	case RejectInvalid:
		s.invalid.Add(1)
	}
	s.promRejections.WithLabelValues(reason).Inc()
}

// RecordCacheLookup 은 응답 캐시 적중 여부를 센다.
func (s *Store) RecordCacheLookup(hit bool) {
	if hit {
		s.cacheHits.Add(1)
		s.promCache.WithLabelValues("hit").Inc()
		return
	}
	s.cacheMisses.Add(1)
	s.promCache.WithLabelValues("miss").Inc()
}

// RecordModelCall 은 모델 호출 결과를 기록한다.
func (s *Store) RecordModelCall(duration time.Duration, usage llm.Usage, costUSD float64, err error, timeout bool) {
	s.modelCalls.Add(1)
	s.modelDurationMs.Add(duration.Milliseconds())
	status := "ok"
	if err != nil {
		s.modelErrors.Add(1)
		status = "error"
		if timeout {
			s.modelTimeouts.Add(1)
			status = "timeout"
		}
	}
	s.promModel.WithLabelValues(status).Observe(duration.Seconds())

	if err != nil {
		return
	}
	s.inputTokens.Add(int64(usage.InputTokens))
	s.outputTokens.Add(int64(usage.OutputTokens))
	s.costMicroUSD.Add(int64(math.Round(costUSD * 1_000_000)))
	s.promTokens.WithLabelValues("input").Add(float64(usage.InputTokens))
	s.promTokens.WithLabelValues("output").Add(float64(usage.OutputTokens))
	s.promCost.Add(costUSD)
}

// IncDegraded 는 저하 모드 이벤트를 센다.
func (s *Store) IncDegraded(component string) {
	s.degraded.Add(1)
	s.promDegraded.WithLabelValues(component).Inc()
}

// IncUsageDropped 는 큐 포화로 버려진 usage 레코드를 센다.
func (s *Store) IncUsageDropped() {
	s.usageDropped.Add(1)
	s.promDropped.Inc()
}

// UsageTotals 는 누적 모델 토큰 사용량을 반환한다.
func (s *Store) UsageTotals() llm.Usage {
	return llm.Usage{
		InputTokens:  int(s.inputTokens.Load()),
		OutputTokens: int(s.outputTokens.Load()),
	}
}

// Snapshot 는 통계 스냅샷을 반환한다.
func (s *Store) Snapshot() map[string]float64 {
	calls := s.modelCalls.Load()
	durationMs := s.modelDurationMs.Load()
	avgDuration := 0.0
	if calls > 0 {
		avgDuration = float64(durationMs) / float64(calls)
	}
	hits := s.cacheHits.Load()
	misses := s.cacheMisses.Load()
	hitRatio := 0.0
	if hits+misses > 0 {
		hitRatio = float64(hits) / float64(hits+misses)
	}

	snapshot := map[string]float64{
		"total_requests":        float64(s.requests.Load()),
		"rejected_disabled":     float64(s.disabled.Load()),
		"rejected_rate_limited": float64(s.rateLimited.Load()),
		"rejected_budget":       float64(s.budgetExceeded.Load()),
		"rejected_invalid":      float64(s.invalid.Load()),
		"cache_hits":            float64(hits),
		"cache_misses":          float64(misses),
		"cache_hit_ratio":       hitRatio,
		"model_calls":           float64(calls),
		"model_errors":          float64(s.modelErrors.Load()),
		"model_timeouts":        float64(s.modelTimeouts.Load()),
		"input_tokens":          float64(s.inputTokens.Load()),
		"output_tokens":         float64(s.outputTokens.Load()),
		"avg_model_duration_ms": avgDuration,
		"cost_usd":              float64(s.costMicroUSD.Load()) / 1_000_000,
		"degraded_events":       float64(s.degraded.Load()),
		"usage_dropped":         float64(s.usageDropped.Load()),
	}
	for source, counter := range s.answers {
		snapshot["answers_"+source] = float64(counter.Load())
	}
	return snapshot
}
