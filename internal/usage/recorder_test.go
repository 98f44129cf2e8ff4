package usage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/directory-assistant-go/internal/config"
)

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]Record
	feedbacks []string

	started chan struct{}
	gate    chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]Record)}
}

func (f *fakeStore) Insert(_ context.Context, records []Record) error {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range records {
		f.records[rec.ID] = rec
	}
	return nil
}

func (f *fakeStore) SetFeedback(_ context.Context, id string, useful bool, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbacks = append(f.feedbacks, id)
	rec, ok := f.records[id]
	if !ok {
		return false, nil
	}
	rec.Useful = &useful
	rec.FeedbackAt = &at
	f.records[id] = rec
	return true, nil
}

func (f *fakeStore) get(id string) (Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

func (f *fakeStore) feedbackCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.feedbacks)
}

type dropCounter struct {
	n atomic.Int64
}

func (d *dropCounter) IncUsageDropped() { d.n.Add(1) }

func testRecorderConfig(queueSize, batchSize int) config.DatabaseConfig {
	return config.DatabaseConfig{
		UsageQueueSize:            queueSize,
		UsageBatchSize:            batchSize,
		UsageFlushIntervalSeconds: 60,
		UsageFlushTimeoutSeconds:  5,
		UsageMaxBackoffSeconds:    60,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorderFlushesOnClose(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(testRecorderConfig(16, 100), store, discardLogger(), nil)

	id := rec.Record(context.Background(), Record{Identifier: "user-1", Source: "model", CostUSD: 0.01})
	if id == "" {
		t.Fatalf("expected generated id")
	}
	rec.Close()

	got, ok := store.get(id)
	if !ok {
		t.Fatalf("expected record %s to be flushed", id)
	}
	if got.CreatedAt.IsZero() || got.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC created_at, got %v", got.CreatedAt)
	}
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	store := newFakeStore()
	store.started = make(chan struct{}, 1)
	store.gate = make(chan struct{})
	drops := &dropCounter{}
	rec := NewRecorder(testRecorderConfig(1, 1), store, discardLogger(), drops)

	first := rec.Record(context.Background(), Record{Source: "model"})
	<-store.started

	second := rec.Record(context.Background(), Record{Source: "model"})
	third := rec.Record(context.Background(), Record{Source: "model"})

	if drops.n.Load() != 1 {
		t.Fatalf("expected exactly one drop, got %d", drops.n.Load())
	}

	close(store.gate)
	rec.Close()

	for _, id := range []string{first, second} {
		if _, ok := store.get(id); !ok {
			t.Fatalf("expected %s to be stored", id)
		}
	}
	if _, ok := store.get(third); ok {
		t.Fatalf("dropped record must not be stored")
	}
}

func TestRecorderFeedbackOnQueuedRecord(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(testRecorderConfig(16, 100), store, discardLogger(), nil)

	id := rec.Record(context.Background(), Record{Source: "model"})
	found, err := rec.RecordFeedback(context.Background(), id, true)
	if err != nil || !found {
		t.Fatalf("expected feedback accepted, found=%v err=%v", found, err)
	}
	rec.Close()

	got, ok := store.get(id)
	if !ok || got.Useful == nil || !*got.Useful || got.FeedbackAt == nil {
		t.Fatalf("expected useful=true persisted with record, got %+v", got)
	}
	if store.feedbackCalls() != 0 {
		t.Fatalf("queued feedback must not issue an update")
	}
}

func TestRecorderFeedbackOnPersistedRecord(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(testRecorderConfig(16, 100), store, discardLogger(), nil)

	id := rec.Record(context.Background(), Record{Source: "cache"})
	rec.Close()

	found, err := rec.RecordFeedback(context.Background(), id, false)
	if err != nil || !found {
		t.Fatalf("expected feedback on persisted record, found=%v err=%v", found, err)
	}
	got, _ := store.get(id)
	if got.Useful == nil || *got.Useful {
		t.Fatalf("expected useful=false, got %+v", got.Useful)
	}

	// 같은 피드백을 다시 보내도 결과는 같다.
	found, err = rec.RecordFeedback(context.Background(), id, false)
	if err != nil || !found {
		t.Fatalf("expected idempotent feedback, found=%v err=%v", found, err)
	}

	found, err = rec.RecordFeedback(context.Background(), "missing", true)
	if err != nil || found {
		t.Fatalf("expected unknown id not found, found=%v err=%v", found, err)
	}
	if _, err := rec.RecordFeedback(context.Background(), " ", true); err != ErrUsageNotFound {
		t.Fatalf("expected ErrUsageNotFound for empty id, got %v", err)
	}
}

func TestRecorderFeedbackDuringFlush(t *testing.T) {
	store := newFakeStore()
	store.started = make(chan struct{}, 1)
	store.gate = make(chan struct{})
	rec := NewRecorder(testRecorderConfig(16, 1), store, discardLogger(), nil)

	id := rec.Record(context.Background(), Record{Source: "model"})
	<-store.started

	found, err := rec.RecordFeedback(context.Background(), id, true)
	if err != nil || !found {
		t.Fatalf("expected feedback accepted, found=%v err=%v", found, err)
	}

	close(store.gate)
	rec.Close()

	got, ok := store.get(id)
	if !ok || got.Useful == nil || !*got.Useful {
		t.Fatalf("expected feedback applied after flush, got %+v", got)
	}
	if store.feedbackCalls() != 1 {
		t.Fatalf("expected one follow-up update, got %d", store.feedbackCalls())
	}
}

func TestRecorderIgnoresRecordAfterClose(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(testRecorderConfig(4, 4), store, discardLogger(), nil)
	rec.Close()
	rec.Close()

	id := rec.Record(context.Background(), Record{Source: "model"})
	if id == "" {
		t.Fatalf("expected id even after close")
	}
	if _, ok := store.get(id); ok {
		t.Fatalf("record after close must not be stored")
	}
}

func TestBatcherBackoff(t *testing.T) {
	b := &batcher{flushInterval: time.Second, maxBackoff: 4 * time.Second}

	cases := []struct {
		failures int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 4 * time.Second},
	}
	for _, tc := range cases {
		b.consecutiveFlushFailures = tc.failures
		if backoff := b.computeBackoff(); backoff != tc.want {
			t.Fatalf("failures=%d: expected %v, got %v", tc.failures, tc.want, backoff)
		}
	}
}

func TestBatcherShouldLogFailure(t *testing.T) {
	b := &batcher{errorLogMaxInterval: time.Hour}
	b.consecutiveFlushFailures = 1
	if !b.shouldLogFailure() {
		t.Fatalf("expected log on first failure")
	}

	b.consecutiveFlushFailures = 3
	b.lastErrorLoggedAt = time.Now()
	if b.shouldLogFailure() {
		t.Fatalf("did not expect log for non power-of-two")
	}

	b.lastErrorLoggedAt = time.Now().Add(-2 * time.Hour)
	if !b.shouldLogFailure() {
		t.Fatalf("expected log after max interval")
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	if !isPowerOfTwo(1) || !isPowerOfTwo(2) || !isPowerOfTwo(4) {
		t.Fatalf("expected power of two")
	}
	if isPowerOfTwo(3) || isPowerOfTwo(0) {
		t.Fatalf("unexpected power of two")
	}
}

func TestRecorderPendingSpend(t *testing.T) {
	store := newFakeStore()
	store.started = make(chan struct{}, 1)
	store.gate = make(chan struct{})
	rec := NewRecorder(testRecorderConfig(16, 1), store, discardLogger(), nil)

	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()
	rec.Record(ctx, Record{Source: "model", CostUSD: 0.5, CreatedAt: day.Add(time.Hour)})
	<-store.started
	rec.Record(ctx, Record{Source: "model", CostUSD: 0.25, CreatedAt: day.Add(2 * time.Hour)})
	rec.Record(ctx, Record{Source: "model", CostUSD: 4, CreatedAt: day.Add(-time.Hour)})

	if got := rec.PendingSpend(day, day.Add(24*time.Hour)); got != 0.75 {
		t.Fatalf("expected in-flight and queued spend 0.75, got %v", got)
	}

	close(store.gate)
	rec.Close()
	if got := rec.PendingSpend(day.Add(-24*time.Hour), day.Add(24*time.Hour)); got != 0 {
		t.Fatalf("flushed records must leave pending spend, got %v", got)
	}
}
