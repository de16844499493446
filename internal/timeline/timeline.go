package timeline

import (
	"sort"
	"sync"

	"github.com/dmaran/parley/internal/model"
)

// LoadMode selects how a fetched page is merged.
type LoadMode int

const (
	// Replace resets the store to exactly the given page. Used on first open
	// and on resync; stale optimistic leftovers not present in the page are
	// discarded.
	Replace LoadMode = iota
	// PrependOlder merges a pagination page. Already-present ids are dropped
	// silently; the rest are inserted in chronological order.
	PrependOlder
)

// Store holds the ordered message window for the active conversation.
// Ordering key is CreatedAt; ties keep arrival order. Within the window ids
// are unique: every merge is a replace-by-id, never an append of a duplicate.
type Store struct {
	mu   sync.RWMutex
	msgs []model.Message
	ids  map[string]struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{ids: make(map[string]struct{})}
}

// LoadPage merges a REST-fetched page.
func (s *Store) LoadPage(page []model.Message, mode LoadMode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == Replace {
		s.msgs = s.msgs[:0]
		s.ids = make(map[string]struct{}, len(page))
	}
	for _, m := range page {
		if _, ok := s.ids[m.ID]; ok {
			continue
		}
		s.insertLocked(m)
	}
}

// ApplyInbound merges one push-delivered message. An id collision is a
// replace-in-place, which keeps a confirmed record from appearing twice when
// it races an optimistic placeholder resolved out-of-band.
func (s *Store) ApplyInbound(m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[m.ID]; ok {
		if i := s.indexLocked(m.ID); i >= 0 {
			s.msgs[i] = m
		}
		return
	}
	s.insertLocked(m)
}

// ResolvePending swaps the placeholder with the given temp id for the
// confirmed record, preserving its position in the ordered view. Returns
// false if no placeholder with that id is present.
func (s *Store) ResolvePending(tempID string, confirmed model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(tempID)
	if i < 0 {
		return false
	}
	// If the confirmed record already arrived via push, drop the placeholder
	// instead of duplicating the id.
	if _, ok := s.ids[confirmed.ID]; ok && confirmed.ID != tempID {
		s.removeAtLocked(i)
		return true
	}
	delete(s.ids, tempID)
	s.msgs[i] = confirmed
	s.ids[confirmed.ID] = struct{}{}
	return true
}

// DiscardPending removes the placeholder with the given temp id.
func (s *Store) DiscardPending(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(tempID)
	if i < 0 {
		return false
	}
	s.removeAtLocked(i)
	return true
}

// Contains reports whether a message with the given id is in the window.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of messages in the window.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Snapshot returns a copy of the window, oldest first.
func (s *Store) Snapshot() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// NewestCreatedAt returns the newest timestamp in the window, or 0 when empty.
func (s *Store) NewestCreatedAt() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.msgs) == 0 {
		return 0
	}
	return s.msgs[len(s.msgs)-1].CreatedAt
}

// PendingNewerThan returns the still-pending entries with CreatedAt strictly
// greater than ts, oldest first. Resync uses this to carry in-flight sends
// across a Replace.
func (s *Store) PendingNewerThan(ts int64) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, m := range s.msgs {
		if m.Status == model.StatusPending && m.CreatedAt > ts {
			out = append(out, m)
		}
	}
	return out
}

// insertLocked inserts keeping CreatedAt order; equal timestamps go after
// existing entries so arrival order is stable.
func (s *Store) insertLocked(m model.Message) {
	i := sort.Search(len(s.msgs), func(i int) bool {
		return s.msgs[i].CreatedAt > m.CreatedAt
	})
	s.msgs = append(s.msgs, model.Message{})
	copy(s.msgs[i+1:], s.msgs[i:])
	s.msgs[i] = m
	s.ids[m.ID] = struct{}{}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeAtLocked(i int) {
	delete(s.ids, s.msgs[i].ID)
	s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
}
