package usage

import (
	"context"
	"log/slog"
	"time"
)

const defaultFlushTimeout = 5 * time.Second

// batcher 는 큐에서 꺼낸 레코드를 배치로 DB 에 플러시한다.
// 실패한 배치는 보관했다가 백오프 후 다시 시도한다.
type batcher struct {
	recorder            *Recorder
	repo                Store
	logger              *slog.Logger
	batchSize           int
	maxRetained         int
	flushInterval       time.Duration
	flushTimeout        time.Duration
	maxBackoff          time.Duration
	errorLogMaxInterval time.Duration

	retained                 []string
	consecutiveFlushFailures int
	nextFlushAllowedAt       time.Time
	lastErrorLoggedAt        time.Time
	flushSuccessTotal        int
	flushFailureTotal        int
	flushDroppedTotal        int
}

func (b *batcher) loop(queue <-chan string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	ticker := time.NewTicker(b.flushInterval)
	defer func() {
		ticker.Stop()
		close(doneCh)
	}()

	for {
		select {
		case id := <-queue:
			b.retain(id)
			if len(b.retained) >= b.batchSize {
				b.flush(false)
			}
		case <-ticker.C:
			b.flush(false)
		case <-stopCh:
			b.drain(queue)
			b.flush(true)
			return
		}
	}
}

func (b *batcher) drain(queue <-chan string) {
	for {
		select {
		case id := <-queue:
			b.retain(id)
		default:
			return
		}
	}
}

func (b *batcher) retain(id string) {
	b.retained = append(b.retained, id)
	if overflow := len(b.retained) - b.maxRetained; overflow > 0 {
		dropped := b.retained[:overflow]
		b.retained = append([]string(nil), b.retained[overflow:]...)
		b.recorder.forget(dropped)
		b.flushDroppedTotal += overflow
		b.logger.Warn("usage_retained_overflow", "dropped", overflow)
	}
}

func (b *batcher) flush(isShutdown bool) {
	if len(b.retained) == 0 || b.shouldSkipFlush(isShutdown) {
		return
	}

	ids := b.retained
	records := b.recorder.beginFlush(ids)
	if len(records) == 0 {
		b.retained = nil
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.flushTimeout)
	err := b.repo.Insert(ctx, records)
	cancel()

	if err != nil {
		b.flushFailureTotal++
		b.recorder.abortFlush(ids)
		if isShutdown {
			b.recorder.forget(ids)
			b.flushDroppedTotal += len(ids)
			b.retained = nil
			b.logger.Warn("usage_db_shutdown_flush_failed", "dropped", len(ids), "err", err)
			return
		}
		b.registerFailure(err)
		return
	}

	b.flushSuccessTotal++
	b.retained = nil
	b.resetFailures()
	b.recorder.completeFlush(ids)
}

func (b *batcher) shouldSkipFlush(isShutdown bool) bool {
	if isShutdown || b.nextFlushAllowedAt.IsZero() {
		return false
	}
	return time.Now().Before(b.nextFlushAllowedAt)
}

func (b *batcher) registerFailure(firstErr error) {
	b.consecutiveFlushFailures++
	backoff := b.computeBackoff()
	b.nextFlushAllowedAt = time.Now().Add(backoff)

	if b.shouldLogFailure() {
		b.lastErrorLoggedAt = time.Now()
		b.logger.Warn(
			"usage_db_batch_flush_failed",
			"failures", b.consecutiveFlushFailures,
			"backoff", backoff,
			"retained", len(b.retained),
			"err", firstErr,
		)
	}
}

func (b *batcher) computeBackoff() time.Duration {
	backoff := b.flushInterval * time.Duration(1<<max(0, b.consecutiveFlushFailures-1))
	if backoff > b.maxBackoff {
		backoff = b.maxBackoff
	}
	if backoff <= 0 {
		backoff = b.flushInterval
	}
	return backoff
}

func (b *batcher) resetFailures() {
	b.consecutiveFlushFailures = 0
	b.nextFlushAllowedAt = time.Time{}
}

func (b *batcher) shouldLogFailure() bool {
	if b.consecutiveFlushFailures <= 0 {
		return false
	}
	if isPowerOfTwo(b.consecutiveFlushFailures) {
		return true
	}
	if b.errorLogMaxInterval <= 0 {
		return false
	}
	return time.Since(b.lastErrorLoggedAt) >= b.errorLogMaxInterval
}

// isPowerOfTwo 2의 거듭제곱인지 확인
func isPowerOfTwo(value int) bool {
	return value > 0 && (value&(value-1)) == 0
}
