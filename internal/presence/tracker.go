package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/dmaran/parley/internal/bus"
)

// Tracker maintains the set of online peers and per-room typing state.
// Presence is independent of message flow; it is only gated by the
// connection lifecycle.
type Tracker struct {
	mu       sync.Mutex
	online   map[string]struct{}
	lastSeen map[string]int64 // unix millis, recorded on offline transitions
	typing   map[string]*typingState
	idle     time.Duration
	bus      *bus.Bus
	now      func() time.Time
}

type typingState struct {
	user  string
	timer *time.Timer
}

// New creates a tracker. idle is the inactivity timeout after which a typing
// flag self-clears, covering a lost stop-typing signal.
func New(b *bus.Bus, idle time.Duration) *Tracker {
	return &Tracker{
		online:   make(map[string]struct{}),
		lastSeen: make(map[string]int64),
		typing:   make(map[string]*typingState),
		idle:     idle,
		bus:      b,
		now:      time.Now,
	}
}

// MarkOnline adds a peer to the online set.
func (t *Tracker) MarkOnline(userID string) {
	t.mu.Lock()
	t.online[userID] = struct{}{}
	t.mu.Unlock()
	t.bus.Emit("presence.online", userID)
}

// MarkOffline removes a peer and records its last-seen timestamp.
func (t *Tracker) MarkOffline(userID string) {
	t.mu.Lock()
	delete(t.online, userID)
	t.lastSeen[userID] = t.now().UnixMilli()
	t.mu.Unlock()
	t.bus.Emit("presence.offline", userID)
}

// SetOnlineList replaces the whole online set from an online_users_list event.
func (t *Tracker) SetOnlineList(userIDs []string) {
	t.mu.Lock()
	t.online = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		t.online[id] = struct{}{}
	}
	t.mu.Unlock()
	t.bus.Emit("presence.list", userIDs)
}

// IsOnline reports whether a peer is currently online.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userID]
	return ok
}

// OnlineList returns the online peer ids, sorted for stable output.
func (t *Tracker) OnlineList() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LastSeen returns the last-seen timestamp for a peer, 0 if never observed.
func (t *Tracker) LastSeen(userID string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen[userID]
}

// Typing flags a user as typing in a room. The flag auto-clears after the
// inactivity timeout; a repeat signal resets the clock.
func (t *Tracker) Typing(roomID, username string) {
	t.mu.Lock()
	if st, ok := t.typing[roomID]; ok {
		st.user = username
		st.timer.Reset(t.idle)
		t.mu.Unlock()
		return
	}
	st := &typingState{user: username}
	st.timer = time.AfterFunc(t.idle, func() { t.StopTyping(roomID) })
	t.typing[roomID] = st
	t.mu.Unlock()
	t.bus.Emit("presence.typing", TypingEvent{RoomID: roomID, Username: username})
}

// StopTyping clears the typing flag for a room.
func (t *Tracker) StopTyping(roomID string) {
	t.mu.Lock()
	st, ok := t.typing[roomID]
	if ok {
		st.timer.Stop()
		delete(t.typing, roomID)
	}
	t.mu.Unlock()
	if ok {
		t.bus.Emit("presence.typing_stopped", TypingEvent{RoomID: roomID, Username: st.user})
	}
}

// TypingUser returns who is typing in a room, if anyone.
func (t *Tracker) TypingUser(roomID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.typing[roomID]; ok {
		return st.user, true
	}
	return "", false
}

// Stop cancels all pending typing timers.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for roomID, st := range t.typing {
		st.timer.Stop()
		delete(t.typing, roomID)
	}
}

// TypingEvent is the payload for presence.typing events.
type TypingEvent struct {
	RoomID   string
	Username string
}
