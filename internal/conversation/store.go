package conversation

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/park285/directory-assistant-go/internal/cache"
)

// ErrSessionNotFound 는 세션 미존재 오류다.
var ErrSessionNotFound = errors.New("session not found")

const (
	defaultSessionTTL  = 30 * time.Minute
	defaultMaxSessions = 10000
)

// Store 는 프로세스 메모리 세션 저장소다. 세션은 영속화되지 않는다.
type Store struct {
	sessions *cache.TTLCache[string, *Session]
	maxTurns func() int
	now      func() time.Time
}

// StoreOption 은 Store 옵션이다.
type StoreOption func(*Store)

// WithStoreClock 은 테스트용 시계를 주입한다.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore 는 세션 저장소를 생성한다. maxTurns 는 새 세션의 히스토리 상한을 돌려준다.
func NewStore(ttl time.Duration, maxSessions int, maxTurns func() int, opts ...StoreOption) *Store {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	if maxTurns == nil {
		maxTurns = func() int { return 6 }
	}
	s := &Store{maxTurns: maxTurns, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = cache.NewTTLCache[string, *Session](maxSessions, ttl, cache.WithClock(s.now))
	return s
}

// Open 은 새 세션을 만든다.
func (s *Store) Open() *Session {
	sess := NewSession(uuid.NewString(), s.maxTurns(), s.now())
	s.sessions.Set(sess.ID, sess)
	return sess
}

// Transient 는 저장소에 보관하지 않는 일회성 세션을 만든다.
func (s *Store) Transient() *Session {
	return NewSession("", s.maxTurns(), s.now())
}

// Get 은 세션을 조회하고 만료 시간을 연장한다.
func (s *Store) Get(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionNotFound
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := s.now()
	sess.Touch(now)
	s.sessions.Set(id, sess)
	return sess, nil
}

// End 는 세션을 종료한다. 세션이 있었으면 true.
func (s *Store) End(id string) bool {
	return s.sessions.Delete(strings.TrimSpace(id))
}

// Len 은 보관 중인 세션 수다.
func (s *Store) Len() int {
	return s.sessions.Len()
}
