package message

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/rs/zerolog/log"
)

// PebbleStore persists messages in a Pebble key-value store. Keys are the
// message IDs as 8-byte big-endian integers, so iteration order is append
// order and retained IDs are always contiguous.
type PebbleStore struct {
	db      *pebble.DB
	mu      sync.Mutex
	first   uint64
	next    uint64
	maxSize int
}

// OpenPebbleStore opens (or creates) a store in dir that retains up to
// maxSize messages. A maxSize of 0 retains everything.
func OpenPebbleStore(dir string, maxSize int) (*PebbleStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pebble: create data dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble: open: %w", err)
	}
	s := &PebbleStore{db: db, first: 1, next: 1, maxSize: maxSize}

	it, err := db.NewIter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pebble: iterate: %w", err)
	}
	defer func() { _ = it.Close() }()
	if it.First() {
		s.first = decodeKey(it.Key())
	}
	if it.Last() {
		s.next = decodeKey(it.Key()) + 1
	}
	return s, nil
}

func encodeKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func decodeKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[:8])
}

// Append assigns the next ID to d and writes it, evicting the oldest
// messages beyond maxSize.
func (s *PebbleStore) Append(d Draft) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	m := d.WithID(int64(id))
	val, err := json.Marshal(m)
	if err != nil {
		return Message{}, fmt.Errorf("pebble: marshal message: %w", err)
	}
	if err := s.db.Set(encodeKey(id), val, pebble.Sync); err != nil {
		return Message{}, fmt.Errorf("pebble: append message: %w", err)
	}
	s.next++

	if s.maxSize > 0 && s.next-s.first > uint64(s.maxSize) {
		cut := s.next - uint64(s.maxSize)
		if err := s.db.DeleteRange(encodeKey(s.first), encodeKey(cut), pebble.Sync); err != nil {
			log.Warn().Err(err).Msg("pebble: trim failed")
		} else {
			s.first = cut
		}
	}
	return m, nil
}

// Recent returns the last n messages in append order.
func (s *PebbleStore) Recent(n int) ([]Message, error) {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("pebble: iterate: %w", err)
	}
	defer func() { _ = it.Close() }()

	var out []Message
	for valid := it.Last(); valid; valid = it.Prev() {
		if n > 0 && len(out) >= n {
			break
		}
		var m Message
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			log.Warn().Err(err).Msg("pebble: skipping undecodable message")
			continue
		}
		out = append(out, m)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []Message{}
	}
	return out, nil
}

// Count returns the number of retained messages.
func (s *PebbleStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.next - s.first), nil
}

// Close closes the database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
