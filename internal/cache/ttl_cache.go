package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// TTLCache 는 항목별 만료 시간과 최대 크기를 가진 LRU 캐시다.
// 세션 저장소, 응답 캐시 메모리 백엔드, 컨텍스트 메모이제이션, HTTP limiter 보관에 쓰인다.
type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	order   *list.List
	items   map[K]*list.Element
}

// Option 은 TTLCache 생성 옵션이다.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock 은 만료 판정에 사용할 시계를 지정한다.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewTTLCache 는 기본 만료 시간과 최대 크기를 갖는 TTLCache 를 생성한다.
func NewTTLCache[K comparable, V any](maxSize int, ttl time.Duration, opts ...Option) *TTLCache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[K, V]{
		ttl:     ttl,
		maxSize: maxSize,
		now:     o.now,
		order:   list.New(),
		items:   make(map[K]*list.Element, min(maxSize, 1024)),
	}
}

// Get 은 만료되지 않은 값을 반환하고 최근 사용으로 표시한다.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.lookup(key)
	if !ok {
		return zero, false
	}
	c.order.MoveToFront(element)
	return element.Value.(*entry[K, V]).value, true
}

// Set 은 기본 TTL 로 값을 저장한다.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL 은 항목별 TTL 로 값을 저장한다. ttl <= 0 이면 기본 TTL 을 쓴다.
func (c *TTLCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, value, c.now().Add(ttl))
}

// GetOrCreate 는 값이 있으면 반환하고, 없으면 create 결과를 저장 후 반환한다.
// create 는 잠금 안에서 호출되므로 가벼워야 한다.
func (c *TTLCache[K, V]) GetOrCreate(key K, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.lookup(key); ok {
		ent := element.Value.(*entry[K, V])
		ent.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(element)
		return ent.value
	}
	value := create()
	c.store(key, value, c.now().Add(c.ttl))
	return value
}

// Update 는 기존 값을 fn 으로 갱신한다. 키가 없거나 만료됐으면 false 를 반환한다.
// 남은 TTL 은 유지된다.
func (c *TTLCache[K, V]) Update(key K, fn func(V) V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.lookup(key)
	if !ok {
		return false
	}
	ent := element.Value.(*entry[K, V])
	ent.value = fn(ent.value)
	c.order.MoveToFront(element)
	return true
}

// Delete 는 키를 제거하고 존재 여부를 반환한다.
func (c *TTLCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(element)
	return true
}

func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *TTLCache[K, V]) lookup(key K) (*list.Element, bool) {
	element, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := element.Value.(*entry[K, V])
	if !c.now().Before(ent.expiresAt) {
		c.removeElement(element)
		return nil, false
	}
	return element, true
}

func (c *TTLCache[K, V]) store(key K, value V, expiresAt time.Time) {
	if element, ok := c.items[key]; ok {
		ent := element.Value.(*entry[K, V])
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToFront(element)
		return
	}

	element := c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = element
	c.evictIfNeeded()
}

func (c *TTLCache[K, V]) evictIfNeeded() {
	for len(c.items) > c.maxSize {
		element := c.order.Back()
		if element == nil {
			return
		}
		c.removeElement(element)
	}
}

func (c *TTLCache[K, V]) removeElement(element *list.Element) {
	c.order.Remove(element)
	ent := element.Value.(*entry[K, V])
	delete(c.items, ent.key)
}
