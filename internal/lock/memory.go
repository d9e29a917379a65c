package lock

import (
	"context"
	"sync"
)

type memoryLocker struct {
	mu   sync.Mutex
	keys map[string]*memoryEntry
}

type memoryEntry struct {
	sem  chan struct{}
	refs int
}

// NewMemoryLocker returns a process-local keyed mutex. Entries are dropped
// once no goroutine holds or waits on them.
func NewMemoryLocker() Locker {
	return &memoryLocker{keys: make(map[string]*memoryEntry)}
}

func (m *memoryLocker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	m.mu.Lock()
	entry, ok := m.keys[key]
	if !ok {
		entry = &memoryEntry{sem: make(chan struct{}, 1)}
		m.keys[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(key, entry, false)
		return nil, nil, ctx.Err()
	}

	held, cancel := context.WithCancel(ctx)
	var once sync.Once
	return held, func() {
		once.Do(func() {
			cancel()
			m.release(key, entry, true)
		})
	}, nil
}

func (m *memoryLocker) Close() error {
	return nil
}

func (m *memoryLocker) release(key string, entry *memoryEntry, held bool) {
	if held {
		<-entry.sem
	}
	m.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.keys, key)
	}
	m.mu.Unlock()
}

func (m *memoryLocker) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}
