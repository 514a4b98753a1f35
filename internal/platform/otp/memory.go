package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

type entry struct {
	code     string
	expires  time.Time
	attempts int
}

// MemoryStore is a process-local Store used when no Redis URL is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{code: code, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Verify(_ context.Context, key, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expires) {
		delete(s.entries, key)
		return ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(e.code), []byte(code)) != 1 {
		e.attempts++
		if e.attempts >= MaxAttempts {
			delete(s.entries, key)
		}
		return ErrCodeMismatch
	}
	delete(s.entries, key)
	return nil
}

// Ping always succeeds; the store lives in process.
func (s *MemoryStore) Ping(context.Context) error { return nil }
