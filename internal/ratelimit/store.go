package ratelimit

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

//go:embed lua/admit.lua
var admitScript string

// CounterStore 는 여러 윈도우를 한 번에 검사하고 증가시키는 카운터 저장소다.
// 반환값은 허용 시 -1, 거부 시 처음 소진된 버킷의 인덱스다.
// 거부된 요청은 어떤 버킷도 증가시키지 않는다.
type CounterStore interface {
	Admit(ctx context.Context, buckets []Bucket) (int, error)
}

// ValkeyStore 는 Lua 스크립트로 검사와 증가를 원자적으로 수행한다.
type ValkeyStore struct {
	client valkey.Client
	script *valkey.Lua
}

// NewValkeyStore 는 Valkey 카운터 저장소를 생성한다.
func NewValkeyStore(client valkey.Client) *ValkeyStore {
	return &ValkeyStore{
		client: client,
		script: valkey.NewLuaScript(admitScript),
	}
}

func (s *ValkeyStore) Admit(ctx context.Context, buckets []Bucket) (int, error) {
	if len(buckets) == 0 {
		return -1, nil
	}
	if s.client == nil {
		return 0, errors.New("valkey client is nil")
	}

	keys := make([]string, 0, len(buckets))
	args := make([]string, 0, len(buckets)*2)
	for _, b := range buckets {
		keys = append(keys, b.Key)
		args = append(args, strconv.Itoa(b.Limit), strconv.FormatInt(ttlSeconds(b.TTL), 10))
	}

	denied, err := s.script.Exec(ctx, s.client, keys, args).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("rate limit script: %w", err)
	}
	if denied <= 0 || int(denied) > len(buckets) {
		return -1, nil
	}
	return int(denied) - 1, nil
}

type memoryCounter struct {
	count     int
	expiresAt time.Time
}

const memorySweepEvery = 1024

// MemoryStore 는 단일 프로세스용 카운터 저장소다.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	counters map[string]*memoryCounter
	calls    int
}

// NewMemoryStore 는 메모리 카운터 저장소를 생성한다.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, counters: make(map[string]*memoryCounter)}
}

func (s *MemoryStore) Admit(_ context.Context, buckets []Bucket) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.calls++
	if s.calls%memorySweepEvery == 0 {
		s.sweep(now)
	}

	for i, b := range buckets {
		if c := s.live(b.Key, now); c != nil && c.count >= b.Limit {
			return i, nil
		}
	}
	for _, b := range buckets {
		c := s.live(b.Key, now)
		if c == nil {
			c = &memoryCounter{expiresAt: now.Add(time.Duration(ttlSeconds(b.TTL)) * time.Second)}
			s.counters[b.Key] = c
		}
		c.count++
	}
	return -1, nil
}

// Count 는 키의 현재 값을 반환한다.
func (s *MemoryStore) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.live(key, s.now()); c != nil {
		return c.count
	}
	return 0
}

func (s *MemoryStore) live(key string, now time.Time) *memoryCounter {
	c, ok := s.counters[key]
	if !ok {
		return nil
	}
	if !now.Before(c.expiresAt) {
		delete(s.counters, key)
		return nil
	}
	return c
}

func (s *MemoryStore) sweep(now time.Time) {
	for key, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, key)
		}
	}
}
