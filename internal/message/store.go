package message

import "sync"

// Store is the interface for message persistence backends. Implementations
// assign IDs in increasing order starting at 1.
type Store interface {
	Append(d Draft) (Message, error)
	// Recent returns the last n messages in append order, or all retained
	// messages when n <= 0.
	Recent(n int) ([]Message, error)
	Count() (int, error)
	Close() error
}

// MemoryStore keeps the most recent messages in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	msgs    []Message
	nextID  int64
	maxSize int
}

// NewMemoryStore creates a store that retains up to maxSize messages.
// A maxSize of 0 retains everything.
func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		nextID:  1,
		maxSize: maxSize,
	}
}

// Append assigns the next ID to d and stores it.
func (s *MemoryStore) Append(d Draft) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := d.WithID(s.nextID)
	s.nextID++
	s.msgs = append(s.msgs, m)
	if s.maxSize > 0 && len(s.msgs) > s.maxSize {
		s.msgs = s.msgs[len(s.msgs)-s.maxSize:]
	}
	return m, nil
}

// Recent returns the last n messages.
func (s *MemoryStore) Recent(n int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.msgs
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	result := make([]Message, len(msgs))
	copy(result, msgs)
	return result, nil
}

// Count returns the number of retained messages.
func (s *MemoryStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
