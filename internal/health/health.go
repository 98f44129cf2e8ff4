package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/park285/directory-assistant-go/internal/config"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"

	checkTimeout = 2 * time.Second
)

// Component 는 상태 구성 요소다.
type Component struct {
	Status string         `json:"status"`
	Detail map[string]any `json:"detail"`
}

// Response 는 상태 응답 본문이다.
type Response struct {
	Status     string               `json:"status"`
	Components map[string]Component `json:"components"`
}

// PingFunc 는 외부 의존성 연결 확인 함수다.
type PingFunc func(ctx context.Context) error

// SessionCounter 는 열린 대화 세션 수를 제공한다.
type SessionCounter interface {
	Len() int
}

// Checker 는 헬스 상태를 수집한다.
type Checker struct {
	cfg          *config.Config
	counterStore PingFunc
	database     PingFunc
	sessions     SessionCounter
	startedAt    time.Time
	now          func() time.Time
}

// NewChecker: 헬스 체커를 생성합니다. counterStore 가 nil 이면 메모리 백엔드로 본다.
func NewChecker(cfg *config.Config, counterStore PingFunc, database PingFunc, sessions SessionCounter) *Checker {
	return &Checker{
		cfg:          cfg,
		counterStore: counterStore,
		database:     database,
		sessions:     sessions,
		startedAt:    time.Now(),
		now:          time.Now,
	}
}

// Collect 는 헬스 상태를 수집한다.
// deep 이 false 면 외부 의존성은 확인하지 않는다 (liveness).
func (c *Checker) Collect(ctx context.Context, deep bool) Response {
	components := map[string]Component{
		"app":    c.appStatus(),
		"gemini": c.geminiStatus(),
	}

	if deep {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkTimeout)
		defer cancel()

		var (
			mu sync.Mutex
			g  errgroup.Group
		)
		probe := func(name string, fn func(context.Context) Component) {
			g.Go(func() error {
				component := fn(checkCtx)
				mu.Lock()
				components[name] = component
				mu.Unlock()
				return nil
			})
		}
		probe("counter_store", c.counterStoreStatus)
		probe("database", c.databaseStatus)
		_ = g.Wait()
	}

	overall := StatusOK
	for _, component := range components {
		if component.Status != StatusOK {
			overall = StatusDegraded
			break
		}
	}

	return Response{Status: overall, Components: components}
}

func (c *Checker) appStatus() Component {
	detail := map[string]any{
		"uptime_seconds": int(c.now().Sub(c.startedAt).Seconds()),
	}
	if c.sessions != nil {
		detail["open_sessions"] = c.sessions.Len()
	}
	return Component{Status: StatusOK, Detail: detail}
}

func (c *Checker) geminiStatus() Component {
	keyPresent := false
	model := ""
	timeoutSeconds := 0
	if c.cfg != nil {
		keyPresent = c.cfg.Gemini.PrimaryKey() != ""
		model = c.cfg.Gemini.Model
		timeoutSeconds = int(c.cfg.Gemini.Timeout().Seconds())
	}

	status := StatusOK
	if !keyPresent {
		status = StatusDegraded
	}
	return Component{
		Status: status,
		Detail: map[string]any{
			"api_key_present": keyPresent,
			"model":           model,
			"timeout_seconds": timeoutSeconds,
		},
	}
}

func (c *Checker) counterStoreStatus(ctx context.Context) Component {
	if c.counterStore == nil {
		return Component{Status: StatusOK, Detail: map[string]any{"backend": "memory"}}
	}
	detail := map[string]any{"backend": "valkey", "connected": true}
	if err := c.counterStore(ctx); err != nil {
		detail["connected"] = false
		detail["error"] = err.Error()
		return Component{Status: StatusDegraded, Detail: detail}
	}
	return Component{Status: StatusOK, Detail: detail}
}

func (c *Checker) databaseStatus(ctx context.Context) Component {
	if c.database == nil {
		return Component{Status: StatusDegraded, Detail: map[string]any{"connected": false, "error": "not configured"}}
	}
	detail := map[string]any{"connected": true}
	if err := c.database(ctx); err != nil {
		detail["connected"] = false
		detail["error"] = err.Error()
		return Component{Status: StatusDegraded, Detail: detail}
	}
	return Component{Status: StatusOK, Detail: detail}
}
