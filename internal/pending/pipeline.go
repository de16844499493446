package pending

import (
	"sync"
	"time"

	"github.com/dmaran/parley/internal/bus"
	"github.com/dmaran/parley/internal/model"
	"github.com/google/uuid"
)

// TempIDPrefix marks locally assigned ids; the server id space never
// produces them, so a prefixed id can always be told apart.
const TempIDPrefix = "pending-"

// Pipeline owns the in-flight optimistic sends: one PendingEntry per
// submitted message, created at send time and destroyed on confirmation or
// failure. Progress is keyed by temp id only; the server id does not exist
// until the send resolves.
type Pipeline struct {
	mu       sync.Mutex
	entries  map[string]*model.PendingEntry
	bus      *bus.Bus
	selfID   string
	selfName string
	now      func() time.Time
}

// New creates a pipeline for the given local identity.
func New(b *bus.Bus, selfID, selfName string) *Pipeline {
	return &Pipeline{
		entries:  make(map[string]*model.PendingEntry),
		bus:      b,
		selfID:   selfID,
		selfName: selfName,
		now:      time.Now,
	}
}

// Create synthesizes a placeholder message for an optimistic send and
// registers its pending entry at progress zero. The placeholder is
// immediately insertable into the timeline; every other component treats it
// as disposable and replaceable by id.
func (p *Pipeline) Create(sel model.Selection, content string, att *model.Attachment, previewRef string) model.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	tempID := TempIDPrefix + uuid.NewString()
	createdAt := p.now().UnixMilli()

	p.entries[tempID] = &model.PendingEntry{
		TempID:     tempID,
		Selection:  sel,
		PreviewRef: previewRef,
		CreatedAt:  createdAt,
	}

	m := model.Message{
		ID:         tempID,
		SenderID:   p.selfID,
		SenderName: p.selfName,
		Content:    content,
		Attachment: att,
		CreatedAt:  createdAt,
		Status:     model.StatusPending,
	}
	if sel.IsGroup {
		m.GroupID = sel.ID
	} else {
		m.ConversationID = sel.ID
	}
	return m
}

// Progress records an upload progress tick and publishes it.
func (p *Pipeline) Progress(tempID string, loaded, total int64) {
	p.mu.Lock()
	entry, ok := p.entries[tempID]
	if ok {
		entry.Loaded = loaded
		entry.Total = total
	}
	p.mu.Unlock()
	if ok {
		p.bus.Emit("message.progress", ProgressUpdate{TempID: tempID, Loaded: loaded, Total: total})
	}
}

// Resolve removes the entry on confirmation and releases any locally derived
// preview resource. Returns false if the entry is unknown (already resolved
// or discarded).
func (p *Pipeline) Resolve(tempID string) (model.PendingEntry, bool) {
	return p.remove(tempID)
}

// Discard removes the entry on failure. Resubmission is a fresh attempt with
// a new temp id; nothing is retried automatically.
func (p *Pipeline) Discard(tempID string) (model.PendingEntry, bool) {
	return p.remove(tempID)
}

func (p *Pipeline) remove(tempID string) (model.PendingEntry, bool) {
	p.mu.Lock()
	entry, ok := p.entries[tempID]
	if ok {
		delete(p.entries, tempID)
	}
	p.mu.Unlock()

	if !ok {
		return model.PendingEntry{}, false
	}
	if entry.PreviewRef != "" {
		p.bus.Emit("pending.preview_released", entry.PreviewRef)
	}
	return *entry, true
}

// Len returns the number of unresolved entries.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// ProgressUpdate is the payload for message.progress events.
type ProgressUpdate struct {
	TempID string
	Loaded int64
	Total  int64
}
