package inbox

import (
	"sort"
	"sync"

	"github.com/dmaran/parley/internal/model"
)

// Index is the ordered list of conversation and group summaries, most
// recently active first. It lives for the whole session; entries are only
// ever updated, never evicted.
type Index struct {
	mu     sync.RWMutex
	items  []model.ConversationSummary
	selfID string
}

// New creates an index for the given local user id.
func New(selfID string) *Index {
	return &Index{selfID: selfID}
}

// ReplaceKind swaps in a freshly fetched list for one thread kind, keeping
// the other kind's entries. Used by the full list refresh.
func (x *Index) ReplaceKind(kind model.ThreadKind, items []model.ConversationSummary) {
	x.mu.Lock()
	defer x.mu.Unlock()

	kept := x.items[:0]
	for _, it := range x.items {
		if it.Kind != kind {
			kept = append(kept, it)
		}
	}
	x.items = append(kept, items...)
	sort.SliceStable(x.items, func(i, j int) bool {
		return x.items[i].UpdatedAt > x.items[j].UpdatedAt
	})
}

// UpsertFromMessage updates the summary for the message's thread: last
// message snapshot, recency repositioning, and the self unread counter. The
// counter moves only for messages not authored by self on a thread that is
// not the active selection. Returns false when no summary exists; the caller
// must refresh the full list rather than fabricate one from partial data.
func (x *Index) UpsertFromMessage(m model.Message, isOwn bool, active model.Selection) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	threadID := m.ThreadID()
	i := x.indexLocked(threadID)
	if i < 0 {
		return false
	}

	entry := x.items[i]
	snapshot := m
	entry.LastMessage = &snapshot
	if m.CreatedAt > entry.UpdatedAt {
		entry.UpdatedAt = m.CreatedAt
	}
	if !isOwn && active.ID != threadID {
		if entry.Unread == nil {
			entry.Unread = make(map[string]int)
		}
		entry.Unread[x.selfID]++
	}

	// Reposition in place instead of re-sorting the whole list.
	x.items = append(x.items[:i], x.items[i+1:]...)
	pos := sort.Search(len(x.items), func(j int) bool {
		return x.items[j].UpdatedAt <= entry.UpdatedAt
	})
	x.items = append(x.items, model.ConversationSummary{})
	copy(x.items[pos+1:], x.items[pos:])
	x.items[pos] = entry
	return true
}

// ClearUnread zeroes the self unread counter. Idempotent; there is no
// decrement path, so a failed mark-read round-trip leaves the counter as-is.
func (x *Index) ClearUnread(threadID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if i := x.indexLocked(threadID); i >= 0 && x.items[i].Unread != nil {
		x.items[i].Unread[x.selfID] = 0
	}
}

// Get returns the summary for a thread id.
func (x *Index) Get(threadID string) (model.ConversationSummary, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if i := x.indexLocked(threadID); i >= 0 {
		return cloneSummary(x.items[i]), true
	}
	return model.ConversationSummary{}, false
}

// Snapshot returns a copy of the index, most recently active first.
func (x *Index) Snapshot() []model.ConversationSummary {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]model.ConversationSummary, len(x.items))
	for i, it := range x.items {
		out[i] = cloneSummary(it)
	}
	return out
}

// TotalUnread returns the sum of self unread counts across all threads.
func (x *Index) TotalUnread() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	total := 0
	for _, it := range x.items {
		total += it.Unread[x.selfID]
	}
	return total
}

func (x *Index) indexLocked(threadID string) int {
	for i := range x.items {
		if x.items[i].ID == threadID {
			return i
		}
	}
	return -1
}

func cloneSummary(s model.ConversationSummary) model.ConversationSummary {
	if s.Unread != nil {
		unread := make(map[string]int, len(s.Unread))
		for k, v := range s.Unread {
			unread[k] = v
		}
		s.Unread = unread
	}
	return s
}
