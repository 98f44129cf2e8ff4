// Package conversation 은 대화 세션 상태(히스토리, active context, 되묻기)를 관리한다.
package conversation

import (
	"sync"
	"time"

	"github.com/park285/directory-assistant-go/internal/llm"
)

// State 는 되묻기(clarification) 상태다.
type State int

const (
	// StateNoPending 은 대기 중인 되묻기가 없는 상태다.
	StateNoPending State = iota
	// StatePending 은 사용자의 슬롯 응답을 기다리는 상태다.
	StatePending
	// StateResolved 는 직전 턴에서 되묻기가 해소된 상태다.
	StateResolved
)

// String 은 상태 이름을 반환한다.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	default:
		return "no_pending"
	}
}

// Slot 은 검색 질문에 필요한 정보 항목이다.
type Slot string

const (
	SlotCity   Slot = "city"
	SlotBudget Slot = "budget"
)

// Candidate 는 active context 에 보관되는 제공자 후보다.
type Candidate struct {
	ListingID   uint    `json:"listing_id"`
	Name        string  `json:"name"`
	City        string  `json:"city"`
	Contact     string  `json:"contact,omitempty"`
	Rating      float64 `json:"rating"`
	ReviewCount int64   `json:"review_count"`
	MinPriceMXN float64 `json:"min_price_mxn,omitempty"`
	Verified    bool    `json:"verified"`
}

// ActiveContext 는 최근 검색형 대화의 주제다.
type ActiveContext struct {
	ServiceType     string      `json:"service_type,omitempty"`
	City            string      `json:"city,omitempty"`
	FocusedProvider string      `json:"focused_provider,omitempty"`
	Candidates      []Candidate `json:"candidates,omitempty"`
}

// IsEmpty 는 기억된 주제가 없는지 확인한다.
func (a ActiveContext) IsEmpty() bool {
	return a.ServiceType == "" && len(a.Candidates) == 0
}

// PendingClarification 은 슬롯 응답을 기다리는 원래 질문이다.
type PendingClarification struct {
	OriginalQuestion string    `json:"original_question"`
	ServiceType      string    `json:"service_type,omitempty"`
	MissingSlots     []Slot    `json:"missing_slots"`
	AskedAt          time.Time `json:"asked_at"`
}

// Session 은 한 사용자의 대화 상태다.
// 히스토리는 maxTurns 크기의 ring buffer 이며 가장 오래된 턴부터 버려진다.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	turns     []llm.Turn
	head      int
	size      int
	active    ActiveContext
	pending   *PendingClarification
	state     State
	updatedAt time.Time
}

// NewSession 은 세션을 생성한다. maxTurns 가 0 이면 히스토리를 보관하지 않는다.
func NewSession(id string, maxTurns int, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		turns:     make([]llm.Turn, max(0, maxTurns)),
		updatedAt: now,
	}
}

// AppendTurn 은 턴을 추가한다.
func (s *Session) AppendTurn(role llm.Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := len(s.turns)
	if capacity == 0 {
		return
	}
	idx := (s.head + s.size) % capacity
	s.turns[idx] = llm.Turn{Role: role, Content: text}
	if s.size < capacity {
		s.size++
		return
	}
	s.head = (s.head + 1) % capacity
}

// History 는 오래된 순서의 턴 사본을 반환한다.
func (s *Session) History() []llm.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked()
}

func (s *Session) historyLocked() []llm.Turn {
	out := make([]llm.Turn, 0, s.size)
	for i := 0; i < s.size; i++ {
		out = append(out, s.turns[(s.head+i)%len(s.turns)])
	}
	return out
}

// SetMaxTurns 는 히스토리 상한을 바꾼다. 줄어들면 오래된 턴부터 버린다.
func (s *Session) SetMaxTurns(maxTurns int) {
	maxTurns = max(0, maxTurns)
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxTurns == len(s.turns) {
		return
	}

	history := s.historyLocked()
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	s.turns = make([]llm.Turn, maxTurns)
	copy(s.turns, history)
	s.head = 0
	s.size = len(history)
}

// SetActiveContext 는 최근 검색 주제와 후보를 기억한다. 첫 후보가 focus 된다.
func (s *Session) SetActiveContext(serviceType, city string, candidates []Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]Candidate, len(candidates))
	copy(copied, candidates)
	s.active = ActiveContext{ServiceType: serviceType, City: city, Candidates: copied}
	if len(copied) > 0 {
		s.active.FocusedProvider = copied[0].Name
	}
}

// Focus 는 후보 중 하나를 현재 대화 대상으로 지정한다.
func (s *Session) Focus(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.FocusedProvider = name
}

// ActiveContext 는 active context 사본을 반환한다.
func (s *Session) ActiveContext() ActiveContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.active
	out.Candidates = append([]Candidate(nil), s.active.Candidates...)
	return out
}

// SetPending 은 되묻기 상태로 전환한다.
func (s *Session) SetPending(original, serviceType string, missing []Slot, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &PendingClarification{
		OriginalQuestion: original,
		ServiceType:      serviceType,
		MissingSlots:     append([]Slot(nil), missing...),
		AskedAt:          now,
	}
	s.state = StatePending
}

// PendingClarification 은 대기 중인 되묻기 사본을 반환한다. 없으면 nil.
func (s *Session) PendingClarification() *PendingClarification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	out := *s.pending
	out.MissingSlots = append([]Slot(nil), s.pending.MissingSlots...)
	return &out
}

// State 는 현재 되묻기 상태를 반환한다.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resolution 은 되묻기 처리 결과다.
type Resolution struct {
	// Resolved 가 true 면 Question 은 원래 질문과 응답을 합친 질문이다.
	Resolved bool
	Question string
	// Abandoned 는 응답이 무관해 되묻기를 포기했음을 나타낸다.
	Abandoned bool
}

// ResolveClarification 은 다음 사용자 턴으로 되묻기를 해소하거나 포기한다.
// 대기 중인 되묻기가 없으면 answer 를 그대로 돌려준다.
func (s *Session) ResolveClarification(answer string, ex *Extractor) Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return Resolution{Question: answer}
	}
	pending := s.pending
	s.pending = nil

	if filled, ok := ex.FillSlot(pending, answer); ok {
		s.state = StateResolved
		return Resolution{Resolved: true, Question: filled}
	}
	s.state = StateNoPending
	return Resolution{Question: answer, Abandoned: true}
}

// ClearResolved 는 해소 상태를 초기화한다.
func (s *Session) ClearResolved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateResolved {
		s.state = StateNoPending
	}
}

// Touch 는 마지막 사용 시각을 갱신한다.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = now
}

// UpdatedAt 은 마지막 사용 시각이다.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}
