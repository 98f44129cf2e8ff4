package usage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/park285/directory-assistant-go/internal/config"
)

// ErrUsageNotFound 는 피드백 대상 레코드가 없을 때 반환된다.
var ErrUsageNotFound = errors.New("usage record not found")

// DropReporter 는 큐 포화로 버려진 레코드 수를 집계한다.
type DropReporter interface {
	IncUsageDropped()
}

type pendingRecord struct {
	rec      Record
	inFlight bool
	// feedbackAfterFlush 는 저장 중에 피드백이 도착해 저장 후 UPDATE 가 필요함을 나타낸다.
	feedbackAfterFlush bool
}

// Recorder 는 usage 레코드를 비동기로 적재한다.
// Record 는 절대 블로킹하지 않으며, 큐가 가득 차면 레코드를 버리고 경고를 남긴다.
type Recorder struct {
	repo    Store
	logger  *slog.Logger
	dropped DropReporter
	now     func() time.Time

	queue  chan string
	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	closed  bool
	pending map[string]*pendingRecord
}

// NewRecorder 는 Recorder 를 생성하고 적재 워커를 시작한다.
func NewRecorder(cfg config.DatabaseConfig, repo Store, logger *slog.Logger, dropped DropReporter) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	queueSize := max(1, cfg.UsageQueueSize)
	interval := time.Duration(max(1, cfg.UsageFlushIntervalSeconds)) * time.Second
	maxBackoff := time.Duration(cfg.UsageMaxBackoffSeconds) * time.Second
	if maxBackoff <= 0 {
		maxBackoff = interval
	}
	flushTimeout := defaultFlushTimeout
	if cfg.UsageFlushTimeoutSeconds > 0 {
		flushTimeout = time.Duration(cfg.UsageFlushTimeoutSeconds) * time.Second
	}

	r := &Recorder{
		repo:    repo,
		logger:  logger,
		dropped: dropped,
		now:     time.Now,
		queue:   make(chan string, queueSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		pending: make(map[string]*pendingRecord),
	}

	b := &batcher{
		recorder:            r,
		repo:                repo,
		logger:              logger,
		batchSize:           max(1, cfg.UsageBatchSize),
		maxRetained:         queueSize * 4,
		flushInterval:       interval,
		flushTimeout:        flushTimeout,
		maxBackoff:          maxBackoff,
		errorLogMaxInterval: time.Duration(cfg.UsageErrorLogMaxIntervalSeconds) * time.Second,
	}
	go b.loop(r.queue, r.stopCh, r.doneCh)

	logger.Info(
		"usage_recorder_started",
		"queue_size", queueSize,
		"batch_size", b.batchSize,
		"flush_interval", interval,
		"max_backoff", maxBackoff,
	)
	return r
}

// Record 는 레코드를 큐에 넣고 id 를 반환한다. id 가 비어 있으면 새로 발급한다.
func (r *Recorder) Record(ctx context.Context, rec Record) string {
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if r == nil || r.repo == nil {
		return rec.ID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "usage_record_after_close", "id", rec.ID)
		return rec.ID
	}
	r.pending[rec.ID] = &pendingRecord{rec: rec}
	select {
	case r.queue <- rec.ID:
		r.mu.Unlock()
	default:
		delete(r.pending, rec.ID)
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "usage_queue_full", "id", rec.ID, "source", rec.Source)
		if r.dropped != nil {
			r.dropped.IncUsageDropped()
		}
	}
	return rec.ID
}

// RecordFeedback 은 유용성 피드백을 기록한다.
// 아직 저장 전인 레코드는 메모리에서 갱신하고, 그 외에는 UPDATE 한 번으로 처리한다.
func (r *Recorder) RecordFeedback(ctx context.Context, id string, useful bool) (bool, error) {
	id = strings.TrimSpace(id)
	if r == nil || id == "" {
		return false, ErrUsageNotFound
	}
	now := r.now().UTC()

	r.mu.Lock()
	if p, ok := r.pending[id]; ok {
		p.rec.Useful = &useful
		p.rec.FeedbackAt = &now
		if p.inFlight {
			p.feedbackAfterFlush = true
		}
		r.mu.Unlock()
		return true, nil
	}
	r.mu.Unlock()

	if r.repo == nil {
		return false, ErrUsageNotFound
	}
	found, err := r.repo.SetFeedback(ctx, id, useful, now)
	if err != nil {
		return false, err
	}
	return found, nil
}

// PendingSpend 는 아직 DB 에 반영되지 않은 레코드(대기 중, 저장 중)의 [from, to] 구간 비용 합계다.
// 저장 직후 completeFlush 전까지는 DB 합계와 겹쳐 잠시 더 크게 잡힐 수 있다.
func (r *Recorder) PendingSpend(from, to time.Time) float64 {
	if r == nil {
		return 0
	}
	from, to = from.UTC(), to.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, p := range r.pending {
		at := p.rec.CreatedAt
		if at.Before(from) || at.After(to) {
			continue
		}
		total += p.rec.CostUSD
	}
	return total
}

// Close 는 큐에 남은 레코드를 플러시하고 워커를 중지한다.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

func (r *Recorder) beginFlush(ids []string) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		p, ok := r.pending[id]
		if !ok {
			continue
		}
		p.inFlight = true
		p.feedbackAfterFlush = false
		records = append(records, p.rec)
	}
	return records
}

func (r *Recorder) abortFlush(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if p, ok := r.pending[id]; ok {
			p.inFlight = false
			p.feedbackAfterFlush = false
		}
	}
}

func (r *Recorder) completeFlush(ids []string) {
	type lateFeedback struct {
		id     string
		useful bool
		at     time.Time
	}

	r.mu.Lock()
	var late []lateFeedback
	for _, id := range ids {
		p, ok := r.pending[id]
		if !ok {
			continue
		}
		if p.feedbackAfterFlush && p.rec.Useful != nil && p.rec.FeedbackAt != nil {
			late = append(late, lateFeedback{id: id, useful: *p.rec.Useful, at: *p.rec.FeedbackAt})
		}
		delete(r.pending, id)
	}
	r.mu.Unlock()

	for _, fb := range late {
		ctx, cancel := context.WithTimeout(context.Background(), defaultFlushTimeout)
		if _, err := r.repo.SetFeedback(ctx, fb.id, fb.useful, fb.at); err != nil {
			r.logger.Warn("usage_late_feedback_failed", "id", fb.id, "err", err)
		}
		cancel()
	}
}

func (r *Recorder) forget(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.pending, id)
	}
}
