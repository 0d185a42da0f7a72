package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is the in-process Store used for development and tests. A
// background sweeper evicts expired entries so dedup keys do not accumulate
// without bound.
type MemoryStore struct {
	mu     sync.Mutex
	keys   map[string]memoryEntry
	queues map[string][][]byte
	done   chan struct{}
	once   sync.Once
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		keys:   make(map[string]memoryEntry),
		queues: make(map[string][][]byte),
		done:   make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for k, e := range s.keys {
				if e.expired(now) {
					delete(s.keys, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) MarkSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.keys[key]; ok && !e.expired(now) {
		return false, nil
	}
	entry := memoryEntry{value: "1"}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	s.keys[key] = entry
	return true, nil
}

func (s *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.keys[key]
	return ok && !e.expired(time.Now()), nil
}

func (s *MemoryStore) PushQueue(_ context.Context, queue string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[queue] = append(s.queues[queue], cp)
	return nil
}

func (s *MemoryStore) DrainQueue(_ context.Context, queue string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.queues[queue]
	if len(values) == 0 {
		return nil, nil
	}
	delete(s.queues, queue)
	return values, nil
}

func (s *MemoryStore) QueueLen(_ context.Context, queue string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.queues[queue])), nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.keys[key]
	if !ok || e.expired(time.Now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
