package answercache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/directory-assistant-go/internal/cache"
	"github.com/park285/directory-assistant-go/internal/textnorm"
)

const (
	keyPrefix         = "assistant:answer:"
	defaultPrefixLen  = 100
	defaultTTL        = 30 * time.Minute
	defaultMemorySize = 5000
)

// Entry 는 캐시된 모델 답변이다.
type Entry struct {
	Answer   string    `json:"answer"`
	Model    string    `json:"model,omitempty"`
	StoredAt time.Time `json:"stored_at"`
}

// Config 는 응답 캐시 설정이다.
type Config struct {
	TTL           time.Duration
	KeyPrefixLen  int
	MemoryMaxSize int
}

// Cache 는 정규화된 질문을 키로 하는 응답 캐시다.
// Valkey 클라이언트가 없으면 프로세스 메모리에 보관한다.
// 저장소 오류는 로그만 남기고 miss 로 취급한다.
type Cache struct {
	client valkey.Client
	memory *cache.TTLCache[string, Entry]
	ttl    time.Duration
	prefix int
	logger *slog.Logger
	now    func() time.Time
}

// New 는 응답 캐시를 생성한다. client 가 nil 이면 메모리 백엔드를 쓴다.
func New(client valkey.Client, cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.KeyPrefixLen <= 0 {
		cfg.KeyPrefixLen = defaultPrefixLen
	}
	if cfg.MemoryMaxSize <= 0 {
		cfg.MemoryMaxSize = defaultMemorySize
	}

	c := &Cache{
		client: client,
		ttl:    cfg.TTL,
		prefix: cfg.KeyPrefixLen,
		logger: logger,
		now:    time.Now,
	}
	if client == nil {
		c.memory = cache.NewTTLCache[string, Entry](cfg.MemoryMaxSize, cfg.TTL)
	}
	return c
}

// Key 는 질문의 캐시 키를 계산한다. 정규화 결과가 비면 빈 문자열이다.
func (c *Cache) Key(question string) string {
	normalized := textnorm.Key(question, c.prefix)
	if normalized == "" {
		return ""
	}
	return keyPrefix + normalized
}

// Lookup 은 캐시된 답변을 조회한다.
func (c *Cache) Lookup(ctx context.Context, question string) (Entry, bool) {
	key := c.Key(question)
	if key == "" {
		return Entry{}, false
	}

	if c.memory != nil {
		return c.memory.Get(key)
	}

	data, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if !valkey.IsValkeyNil(err) {
			c.logger.WarnContext(ctx, "answer_cache_lookup_failed", "key", key, "err", err)
		}
		return Entry{}, false
	}
	entry, err := decodeEntry(data)
	if err != nil {
		c.logger.WarnContext(ctx, "answer_cache_decode_failed", "key", key, "err", err)
		return Entry{}, false
	}
	return entry, true
}

// Store 는 답변을 TTL 과 함께 저장한다. 빈 답변은 저장하지 않는다.
func (c *Cache) Store(ctx context.Context, question string, entry Entry) {
	key := c.Key(question)
	if key == "" || strings.TrimSpace(entry.Answer) == "" {
		return
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = c.now().UTC()
	}

	if c.memory != nil {
		c.memory.Set(key, entry)
		return
	}

	data, err := encodeEntry(entry)
	if err != nil {
		c.logger.WarnContext(ctx, "answer_cache_encode_failed", "key", key, "err", err)
		return
	}
	cmd := c.client.B().Set().Key(key).Value(valkey.BinaryString(data)).Ex(c.ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.WarnContext(ctx, "answer_cache_store_failed", "key", key, "err", err)
	}
}
