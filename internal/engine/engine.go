package engine

import (
	"context"
	"sync"

	"github.com/dmaran/parley/internal/bus"
	"github.com/dmaran/parley/internal/dedup"
	"github.com/dmaran/parley/internal/inbox"
	"github.com/dmaran/parley/internal/model"
	"github.com/dmaran/parley/internal/pending"
	"github.com/dmaran/parley/internal/presence"
	"github.com/dmaran/parley/internal/rest"
	"github.com/dmaran/parley/internal/status"
	"github.com/dmaran/parley/internal/timeline"
	"github.com/dmaran/parley/internal/transport"
	"go.uber.org/zap"
)

// Transport is the outbound intent surface of the socket client.
type Transport interface {
	Identify(userID, username string) error
	Join(roomID string) error
	SendMessage(m model.Message) error
	Typing(roomID, username string) error
	StopTyping(roomID string) error
	RequestOnlineUsers() error
	MarkRead(conversationID, messageID string) error
}

// Backend is the REST collaborator: paged history, lists, sends, mark-read.
type Backend interface {
	ListMessages(ctx context.Context, threadID string, isGroup bool, page, pageSize int) ([]model.Message, error)
	ListConversations(ctx context.Context) ([]model.ConversationSummary, error)
	ListGroups(ctx context.Context) ([]model.ConversationSummary, error)
	Send(ctx context.Context, req rest.SendRequest, onProgress rest.ProgressFunc) (model.Message, error)
	MarkRead(ctx context.Context, threadID string, isGroup bool) error
}

// Identity is the local user.
type Identity struct {
	UserID   string
	Username string
}

// Engine reconciles the three racing sources (the event socket, REST
// responses, and local optimistic writes) into one consistent view. All
// state mutation happens on a single dispatch goroutine: transport events,
// REST completions and user intents are funneled into it, so correctness
// rests on idempotent merges by identity, never on arrival order.
type Engine struct {
	bus      *bus.Bus
	logger   *zap.Logger
	socket   Transport
	backend  Backend
	machine  *status.Machine
	window   *dedup.Window
	store    *timeline.Store
	index    *inbox.Index
	pipeline *pending.Pipeline
	tracker  *presence.Tracker

	self     Identity
	pageSize int

	cmds   chan func()
	ctx    context.Context
	cancel context.CancelFunc

	// Selection state. Written only by the dispatch goroutine; the mutex
	// exists for accessor reads from the API layer.
	mu              sync.RWMutex
	active          model.Selection
	gen             uint64 // bumped on every selection change; tags fetches
	page            int
	lastPageDone    bool
	refreshInFlight bool
}

// Params carries the engine's collaborators.
type Params struct {
	Bus      *bus.Bus
	Logger   *zap.Logger
	Socket   Transport
	Backend  Backend
	Machine  *status.Machine
	Window   *dedup.Window
	Store    *timeline.Store
	Index    *inbox.Index
	Pipeline *pending.Pipeline
	Tracker  *presence.Tracker
	Self     Identity
	PageSize int
}

// New creates an engine.
func New(p Params) *Engine {
	if p.PageSize <= 0 {
		p.PageSize = 50
	}
	return &Engine{
		bus:      p.Bus,
		logger:   p.Logger,
		socket:   p.Socket,
		backend:  p.Backend,
		machine:  p.Machine,
		window:   p.Window,
		store:    p.Store,
		index:    p.Index,
		pipeline: p.Pipeline,
		tracker:  p.Tracker,
		self:     p.Self,
		pageSize: p.PageSize,
		cmds:     make(chan func(), 128),
	}
}

// Start launches the dispatch loop and kicks off the initial list refresh.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("transport.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleTransportEvent(evt)
			case fn := <-e.cmds:
				fn()
			case <-e.ctx.Done():
				return
			}
		}
	}()

	e.refreshLists()
}

// Stop halts the dispatch loop.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// post enqueues work onto the dispatch goroutine.
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.ctx.Done():
	}
}

func (e *Engine) handleTransportEvent(evt bus.Event) {
	switch evt.Kind {
	case "transport.connected", "transport.reconnected":
		cur := e.machine.Current()
		if cur == status.Disconnected || cur == status.Reconnecting {
			_ = e.machine.Transition(status.Connecting)
		}
		_ = e.machine.Transition(status.Connected)
		e.onConnected()

	case "transport.disconnected":
		_ = e.machine.Transition(status.Reconnecting)

	case "transport.new_message":
		m, ok := evt.Payload.(model.Message)
		if !ok {
			return
		}
		e.applyInbound(m)

	case "transport.typing":
		sig, ok := evt.Payload.(transport.TypingSignal)
		if !ok || sig.User == e.self.Username {
			return
		}
		e.tracker.Typing(sig.Room, sig.User)

	case "transport.stop_typing":
		if sig, ok := evt.Payload.(transport.TypingSignal); ok {
			e.tracker.StopTyping(sig.Room)
		}

	case "transport.user_status_change":
		st, ok := evt.Payload.(transport.UserStatus)
		if !ok {
			return
		}
		if st.Status == "online" {
			e.tracker.MarkOnline(st.UserID)
		} else {
			e.tracker.MarkOffline(st.UserID)
		}

	case "transport.online_users_list":
		if ids, ok := evt.Payload.([]string); ok {
			e.tracker.SetOnlineList(ids)
		}

	case "transport.message_read":
		mr, ok := evt.Payload.(transport.MessageRead)
		if !ok {
			return
		}
		// Another device of ours read the thread; fold the counter here too.
		if mr.UserID == e.self.UserID {
			e.index.ClearUnread(mr.ConversationID)
		}
		e.bus.Emit("message.read_receipt", mr)
	}
}

// onConnected runs the reconnect protocol: identity, room rejoins, then a
// resync of the active conversation. Safe to repeat: every step is a merge
// by identity.
func (e *Engine) onConnected() {
	if err := e.socket.Identify(e.self.UserID, e.self.Username); err != nil {
		e.logger.Warn("identify failed", zap.Error(err))
	}

	for _, s := range e.index.Snapshot() {
		if err := e.socket.Join(s.ID); err != nil {
			e.logger.Warn("rejoin failed", zap.String("thread", s.ID), zap.Error(err))
			break
		}
	}

	active := e.Active()
	if !active.IsZero() {
		_ = e.socket.Join(active.ID)
		e.fetchPage(active, 1, timeline.Replace, e.generation(), true)
	}

	_ = e.socket.RequestOnlineUsers()
	e.refreshLists()
}

// applyInbound merges one push-delivered message. The dedup window gates it
// before any state is touched.
func (e *Engine) applyInbound(m model.Message) {
	if !e.window.Observe(m.ID) {
		return
	}

	isOwn := m.SenderID == e.self.UserID
	active := e.Active()

	if m.ThreadID() == active.ID {
		e.store.ApplyInbound(m)
	}
	if !e.index.UpsertFromMessage(m, isOwn, active) {
		// Brand-new thread created by an inbound message: never fabricate a
		// summary from partial data, refresh the whole list instead.
		e.refreshLists()
	}
	e.bus.Emit("message.applied", m)
}

// Select makes a thread the active selection: clears its unread counter
// optimistically, joins its room, acknowledges read, and loads its first
// page with a full replace.
func (e *Engine) Select(sel model.Selection) {
	e.post(func() {
		e.mu.Lock()
		e.active = sel
		e.gen++
		gen := e.gen
		e.page = 1
		e.lastPageDone = false
		e.mu.Unlock()

		e.index.ClearUnread(sel.ID)

		if err := e.socket.Join(sel.ID); err != nil {
			e.logger.Warn("join failed", zap.String("thread", sel.ID), zap.Error(err))
		}
		if s, ok := e.index.Get(sel.ID); ok && s.LastMessage != nil {
			_ = e.socket.MarkRead(sel.ID, s.LastMessage.ID)
		}

		go func() {
			if err := e.backend.MarkRead(e.ctx, sel.ID, sel.IsGroup); err != nil {
				// The optimistic clear stands; there is no decrement path.
				e.logger.Warn("mark read failed", zap.String("thread", sel.ID), zap.Error(err))
				e.bus.Emit("error.mark_read", err)
			}
		}()

		e.fetchPage(sel, 1, timeline.Replace, gen, false)
	})
}

// LoadOlder fetches the next older history page for the active selection.
// A short page already told us there is nothing further back.
func (e *Engine) LoadOlder() {
	e.post(func() {
		e.mu.RLock()
		sel := e.active
		gen := e.gen
		next := e.page + 1
		done := e.lastPageDone
		e.mu.RUnlock()

		if sel.IsZero() || done {
			return
		}
		e.fetchPage(sel, next, timeline.PrependOlder, gen, false)
	})
}

// fetchPage launches a tagged page fetch and merges the result back on the
// dispatch goroutine. A completion whose generation no longer matches is a
// stale response for a dead selection: dropped silently, not an error.
func (e *Engine) fetchPage(sel model.Selection, page int, mode timeline.LoadMode, gen uint64, resync bool) {
	go func() {
		msgs, err := e.backend.ListMessages(e.ctx, sel.ID, sel.IsGroup, page, e.pageSize)
		e.post(func() {
			if gen != e.generation() {
				return
			}
			if err != nil {
				e.logger.Warn("page fetch failed", zap.String("thread", sel.ID), zap.Int("page", page), zap.Error(err))
				e.bus.Emit("error.fetch", err)
				return
			}

			var preserved []model.Message
			if resync && mode == timeline.Replace {
				newest := int64(0)
				if len(msgs) > 0 {
					newest = msgs[len(msgs)-1].CreatedAt
				}
				preserved = e.store.PendingNewerThan(newest)
			}

			e.store.LoadPage(msgs, mode)
			for _, p := range preserved {
				e.store.ApplyInbound(p)
			}

			e.mu.Lock()
			if mode == timeline.Replace {
				e.page = 1
			} else {
				e.page = page
			}
			e.lastPageDone = len(msgs) < e.pageSize
			e.mu.Unlock()

			e.bus.Emit("timeline.loaded", sel)
		})
	}()
}

// refreshLists refetches the conversation and group lists. Coalesced: a
// trigger while one refresh is in flight is absorbed by it.
func (e *Engine) refreshLists() {
	e.mu.Lock()
	if e.refreshInFlight {
		e.mu.Unlock()
		return
	}
	e.refreshInFlight = true
	e.mu.Unlock()

	go func() {
		convos, convErr := e.backend.ListConversations(e.ctx)
		groups, groupErr := e.backend.ListGroups(e.ctx)
		e.post(func() {
			e.mu.Lock()
			e.refreshInFlight = false
			e.mu.Unlock()

			if convErr != nil || groupErr != nil {
				e.logger.Warn("list refresh failed", zap.NamedError("conversations", convErr), zap.NamedError("groups", groupErr))
				e.bus.Emit("error.fetch", model.ErrFetchFailed)
			}
			if convErr == nil {
				e.index.ReplaceKind(model.KindDirect, convos)
			}
			if groupErr == nil {
				e.index.ReplaceKind(model.KindGroup, groups)
			}
			e.bus.Emit("inbox.updated", nil)
		})
	}()
}

// Send submits a message for the active selection. The placeholder is
// visible immediately; the REST response resolves or discards it later.
// Returns the assigned temp id.
func (e *Engine) Send(content string, att *rest.Upload, previewRef string) (string, error) {
	reply := make(chan string, 1)
	errc := make(chan error, 1)

	e.post(func() {
		active := e.Active()
		if active.IsZero() {
			errc <- model.ErrSendFailed
			return
		}

		var attMeta *model.Attachment
		if att != nil {
			attMeta = &model.Attachment{
				URL:  previewRef,
				Type: att.ContentType,
				Name: att.Name,
				Size: int64(len(att.Data)),
			}
		}

		placeholder := e.pipeline.Create(active, content, attMeta, previewRef)
		e.store.ApplyInbound(placeholder)
		e.index.UpsertFromMessage(placeholder, true, active)
		reply <- placeholder.ID

		go e.sendRemote(placeholder.ID, rest.SendRequest{
			Content:        content,
			ConversationID: placeholder.ConversationID,
			GroupID:        placeholder.GroupID,
			Attachment:     att,
		})
	})

	select {
	case id := <-reply:
		return id, nil
	case err := <-errc:
		return "", err
	case <-e.ctx.Done():
		return "", e.ctx.Err()
	}
}

func (e *Engine) sendRemote(tempID string, req rest.SendRequest) {
	confirmed, err := e.backend.Send(e.ctx, req, func(loaded, total int64) {
		e.pipeline.Progress(tempID, loaded, total)
	})

	e.post(func() {
		if err != nil {
			e.pipeline.Discard(tempID)
			e.store.DiscardPending(tempID)
			e.logger.Warn("send failed", zap.String("temp_id", tempID), zap.Error(err))
			e.bus.Emit("error.send", SendFailure{TempID: tempID, Err: err})
			return
		}

		e.pipeline.Resolve(tempID)

		active := e.Active()
		if confirmed.ThreadID() == active.ID {
			if !e.store.ResolvePending(tempID, confirmed) {
				// Placeholder gone (a resync replaced the window); the
				// confirmed record still merges idempotently by id.
				e.store.ApplyInbound(confirmed)
			}
		}
		e.index.UpsertFromMessage(confirmed, true, active)

		// Fan out over the socket so the room's peers see it live.
		if err := e.socket.SendMessage(confirmed); err != nil {
			e.logger.Warn("socket fan-out skipped", zap.Error(err))
		}
		_ = e.socket.StopTyping(confirmed.ThreadID())

		e.bus.Emit("message.sent", SendResult{TempID: tempID, ServerID: confirmed.ID})
	})
}

// Typing emits a typing signal for the active selection.
func (e *Engine) Typing() {
	if active := e.Active(); !active.IsZero() {
		_ = e.socket.Typing(active.ID, e.self.Username)
	}
}

// StopTyping clears the local typing signal for the active selection.
func (e *Engine) StopTyping() {
	if active := e.Active(); !active.IsZero() {
		_ = e.socket.StopTyping(active.ID)
	}
}

// Active returns the current selection.
func (e *Engine) Active() model.Selection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

func (e *Engine) generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen
}

// Messages returns the active timeline, oldest first.
func (e *Engine) Messages() []model.Message {
	return e.store.Snapshot()
}

// Conversations returns the index, most recently active first.
func (e *Engine) Conversations() []model.ConversationSummary {
	return e.index.Snapshot()
}

// TotalUnread returns the unread total across all threads.
func (e *Engine) TotalUnread() int {
	return e.index.TotalUnread()
}

// SendFailure is the payload for error.send events.
type SendFailure struct {
	TempID string
	Err    error
}

// SendResult is the payload for message.sent events.
type SendResult struct {
	TempID   string
	ServerID string
}
