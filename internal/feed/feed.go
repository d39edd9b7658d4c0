// Package feed holds the merged, deduplicated message list shown to the user.
package feed

import (
	"sync"

	"github.com/christopherjohns/groupchat/internal/message"
	"github.com/google/uuid"
)

// Entry is a single feed item. Entries created locally after a failed send
// carry a LocalID and a zero ID; they never occupy the server's id space.
type Entry struct {
	message.Message
	LocalID string `json:"local_id,omitempty"`
}

// Local reports whether the entry was fabricated by this client.
func (e Entry) Local() bool {
	return e.LocalID != ""
}

// Feed is an append-only sequence of entries with an id index for
// constant-time membership checks. It never holds two entries with the
// same server id. Safe for concurrent use.
type Feed struct {
	mu       sync.RWMutex
	entries  []Entry
	ids      map[int64]int
	onChange func()
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{ids: make(map[int64]int)}
}

// OnChange registers fn to be called after every mutation. Only one hook is
// kept; the last registration wins.
func (f *Feed) OnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Replace swaps the whole feed for msgs, keeping the first occurrence of any
// duplicated id. Local entries survive the swap and follow the snapshot,
// except those the snapshot already holds a matching message for.
func (f *Feed) Replace(msgs []message.Message) {
	f.mu.Lock()
	var pending []Entry
	for _, e := range f.entries {
		if e.Local() {
			pending = append(pending, e)
		}
	}

	f.entries = make([]Entry, 0, len(msgs)+len(pending))
	f.ids = make(map[int64]int, len(msgs))
	for _, m := range msgs {
		if _, dup := f.ids[m.ID]; dup {
			continue
		}
		f.ids[m.ID] = len(f.entries)
		f.entries = append(f.entries, Entry{Message: m})
	}
	claimed := make(map[int64]bool)
	for _, e := range pending {
		if id, ok := matchSnapshot(e, msgs, claimed); ok {
			claimed[id] = true
			continue
		}
		f.entries = append(f.entries, e)
	}
	fn := f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// matchSnapshot finds an unclaimed snapshot message with the local entry's
// content.
func matchSnapshot(e Entry, msgs []message.Message, claimed map[int64]bool) (int64, bool) {
	d := message.Draft{Text: e.Text, Username: e.Username, Timestamp: e.Timestamp}
	for _, m := range msgs {
		if !claimed[m.ID] && d.Matches(m) {
			return m.ID, true
		}
	}
	return 0, false
}

// ApplyIncoming merges an authoritative message. It is a no-op when an
// entry with the same id exists. A pending local entry with identical
// content is replaced in place rather than duplicated. Reports whether the
// feed changed.
func (f *Feed) ApplyIncoming(m message.Message) bool {
	f.mu.Lock()
	if _, ok := f.ids[m.ID]; ok {
		f.mu.Unlock()
		return false
	}
	idx := f.pendingMatch(m)
	if idx >= 0 {
		f.entries[idx] = Entry{Message: m}
	} else {
		idx = len(f.entries)
		f.entries = append(f.entries, Entry{Message: m})
	}
	f.ids[m.ID] = idx
	fn := f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn()
	}
	return true
}

// pendingMatch returns the index of the oldest local entry whose content
// matches m, or -1. Must be called while holding mu.
func (f *Feed) pendingMatch(m message.Message) int {
	for i, e := range f.entries {
		if !e.Local() {
			continue
		}
		d := message.Draft{Text: e.Text, Username: e.Username, Timestamp: e.Timestamp}
		if d.Matches(m) {
			return i
		}
	}
	return -1
}

// AddLocal appends a client-fabricated entry for d and returns it.
func (f *Feed) AddLocal(d message.Draft) Entry {
	e := Entry{
		Message: d.WithID(0),
		LocalID: uuid.NewString(),
	}

	f.mu.Lock()
	f.entries = append(f.entries, e)
	fn := f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn()
	}
	return e
}

// Entries returns a copy of the feed in insertion order.
func (f *Feed) Entries() []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Len returns the number of entries.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Empty reports whether the feed has no entries.
func (f *Feed) Empty() bool {
	return f.Len() == 0
}

// Contains reports whether a server message with id is present.
func (f *Feed) Contains(id int64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ids[id]
	return ok
}
