package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memoryEntry はMemoryStoreが保持するウィンドウと期限。
type memoryEntry struct {
	window  Window
	expires time.Time
}

// MemoryStore はプロセス内のマップにウィンドウを保持するStore。
// プロセスの再起動でウィンドウは失われる。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore は新しいMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Hit はkeyのウィンドウに1リクエストを記録する。
func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, length time.Duration) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.window.Expired(now, length) {
		e = memoryEntry{
			window:  Window{Start: now, Count: 1},
			expires: now.Add(length),
		}
	} else {
		e.window.Count++
	}
	s.entries[key] = e
	return e.window, nil
}

// Sweep は期限切れのウィンドウを削除し、削除した件数を返す。
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len は保持しているウィンドウ数を返す。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
