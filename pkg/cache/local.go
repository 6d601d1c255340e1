package cache

import (
	"context"
	"reflect"
	"sync"
	"time"
)

const (
	// LocalPrefix namespaces every key held by the in-process backend.
	LocalPrefix = "cache.local."
	// DefaultCleanupInterval is the default interval for sweeping expired items.
	DefaultCleanupInterval = time.Minute
)

// item represents a cached value and its absolute expiry.
type item struct {
	value     any
	expiresAt time.Time
}

func (it item) expired(now time.Time) bool {
	return !now.Before(it.expiresAt)
}

// LocalBackend is a thread-safe in-process cache with expiration and periodic cleanup.
// Clean only ever affects entries held by this process.
type LocalBackend struct {
	mu              sync.RWMutex
	items           map[string]item
	cleanupInterval time.Duration
	onEvicted       func(key string, value any)
	now             func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
	closed      bool
}

var _ Backend = (*LocalBackend)(nil)

// LocalOption is a functional option for configuring a LocalBackend.
type LocalOption func(*LocalBackend)

// NewLocal creates an in-process backend and starts its cleanup goroutine.
func NewLocal(opts ...LocalOption) *LocalBackend {
	l := &LocalBackend{
		items:           make(map[string]item),
		cleanupInterval: DefaultCleanupInterval,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.cleanupInterval > 0 {
		go l.cleanupLoop()
	}

	return l
}

// WithCleanupInterval sets the sweep interval. A non-positive interval
// disables the sweeper; expired entries are then only dropped on access.
func WithCleanupInterval(interval time.Duration) LocalOption {
	return func(l *LocalBackend) {
		l.cleanupInterval = interval
	}
}

// WithEvictionCallback sets a function called with the caller's key when an
// expired item is swept or an item is removed. It runs after the internal
// lock is released, so it may call back into the cache.
func WithEvictionCallback(onEvicted func(key string, value any)) LocalOption {
	return func(l *LocalBackend) {
		l.onEvicted = onEvicted
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) LocalOption {
	return func(l *LocalBackend) {
		l.now = now
	}
}

func (l *LocalBackend) Variant() Variant { return Local }

func (l *LocalBackend) Ping(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	return nil
}

// Insert stores value under key, overwriting any existing item.
func (l *LocalBackend) Insert(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := CheckValue(value); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	l.items[LocalPrefix+key] = item{value: value, expiresAt: l.now().Add(EffectiveTTL(ttl))}
	return nil
}

// Add stores value only if key holds no live item.
func (l *LocalBackend) Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := CheckValue(value); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, ErrClosed
	}

	now := l.now()
	nsKey := LocalPrefix + key
	if existing, found := l.items[nsKey]; found && !existing.expired(now) {
		return false, nil
	}

	l.items[nsKey] = item{value: value, expiresAt: now.Add(EffectiveTTL(ttl))}
	return true, nil
}

// Get copies the live item under key into dest.
func (l *LocalBackend) Get(ctx context.Context, key string, dest any) (bool, error) {
	target, err := CheckDestination(dest)
	if err != nil {
		return false, err
	}

	nsKey := LocalPrefix + key

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return false, ErrClosed
	}
	cached, found := l.items[nsKey]
	now := l.now()
	l.mu.RUnlock()

	if !found {
		return false, nil
	}
	if cached.expired(now) {
		l.evictIfExpired(nsKey)
		return false, nil
	}

	stored := reflect.ValueOf(cached.value)
	if !stored.Type().AssignableTo(target.Type()) {
		return false, nil
	}
	target.Set(stored)
	return true, nil
}

// Remove deletes the item under key and reports whether a live item existed.
func (l *LocalBackend) Remove(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false, ErrClosed
	}
	var evicted []eviction
	removed := l.remove(LocalPrefix+key, l.now(), &evicted)
	l.mu.Unlock()

	l.notify(evicted)
	return removed, nil
}

// RemoveBatch deletes every key under a single lock.
func (l *LocalBackend) RemoveBatch(ctx context.Context, keys []string) (bool, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false, ErrClosed
	}

	now := l.now()
	removed := false
	var evicted []eviction
	for _, key := range keys {
		if l.remove(LocalPrefix+key, now, &evicted) {
			removed = true
		}
	}
	l.mu.Unlock()

	l.notify(evicted)
	return removed, nil
}

// Clean removes all items held by this process.
func (l *LocalBackend) Clean(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.items = make(map[string]item)
	return nil
}

// Count returns the number of live items.
func (l *LocalBackend) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	n := 0
	for _, cached := range l.items {
		if !cached.expired(now) {
			n++
		}
	}
	return n
}

// Close terminates the cleanup goroutine and drops all items. It is safe
// to call more than once.
func (l *LocalBackend) Close() error {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.items = make(map[string]item)
		l.mu.Unlock()
		close(l.stopCleanup)
	})
	return nil
}

type eviction struct {
	key   string
	value any
}

// remove must be called with the write lock held. Evicted items are
// appended to evicted so callbacks can run after the lock is released.
func (l *LocalBackend) remove(nsKey string, now time.Time, evicted *[]eviction) bool {
	cached, found := l.items[nsKey]
	if !found {
		return false
	}
	delete(l.items, nsKey)
	if l.onEvicted != nil {
		*evicted = append(*evicted, eviction{key: nsKey[len(LocalPrefix):], value: cached.value})
	}
	return !cached.expired(now)
}

func (l *LocalBackend) notify(evicted []eviction) {
	for _, e := range evicted {
		l.onEvicted(e.key, e.value)
	}
}

func (l *LocalBackend) evictIfExpired(nsKey string) {
	var evicted []eviction

	l.mu.Lock()
	// Another writer may have replaced the item since the read lock was dropped.
	if cached, found := l.items[nsKey]; found && cached.expired(l.now()) {
		l.remove(nsKey, l.now(), &evicted)
	}
	l.mu.Unlock()

	l.notify(evicted)
}

func (l *LocalBackend) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.deleteExpired()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *LocalBackend) deleteExpired() {
	var evicted []eviction

	l.mu.Lock()
	now := l.now()
	for nsKey, cached := range l.items {
		if cached.expired(now) {
			l.remove(nsKey, now, &evicted)
		}
	}
	l.mu.Unlock()

	l.notify(evicted)
}
