package inbox

import (
	"testing"

	"github.com/dmaran/parley/internal/model"
)

const self = "me"

func summary(id string, kind model.ThreadKind, updatedAt int64) model.ConversationSummary {
	return model.ConversationSummary{ID: id, Kind: kind, UpdatedAt: updatedAt, Unread: map[string]int{}}
}

func inbound(threadID string, ts int64) model.Message {
	return model.Message{ID: "msg-" + threadID, ConversationID: threadID, SenderID: "peer", Content: "hey", CreatedAt: ts, Status: model.StatusConfirmed}
}

func seeded() *Index {
	x := New(self)
	x.ReplaceKind(model.KindDirect, []model.ConversationSummary{
		summary("c1", model.KindDirect, 3000),
		summary("c2", model.KindDirect, 2000),
	})
	x.ReplaceKind(model.KindGroup, []model.ConversationSummary{
		summary("g1", model.KindGroup, 1000),
	})
	return x
}

func TestReplaceKindKeepsOtherKind(t *testing.T) {
	x := seeded()
	snap := x.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
	if snap[0].ID != "c1" || snap[2].ID != "g1" {
		t.Errorf("order = %v, want updatedAt desc", []string{snap[0].ID, snap[1].ID, snap[2].ID})
	}

	x.ReplaceKind(model.KindGroup, []model.ConversationSummary{summary("g2", model.KindGroup, 5000)})
	snap = x.Snapshot()
	if len(snap) != 3 || snap[0].ID != "g2" {
		t.Errorf("after group refresh: %v", snap)
	}
}

func TestUpsertIncrementsUnreadForInactivePeerMessage(t *testing.T) {
	x := seeded()

	if !x.UpsertFromMessage(inbound("c2", 4000), false, model.Selection{ID: "c1"}) {
		t.Fatal("summary not found")
	}

	s, _ := x.Get("c2")
	if s.UnreadFor(self) != 1 {
		t.Errorf("unread = %d, want 1", s.UnreadFor(self))
	}
	if s.LastMessage == nil || s.LastMessage.Content != "hey" {
		t.Error("last message snapshot not updated")
	}

	// Freshest thread moves to the front.
	if got := x.Snapshot()[0].ID; got != "c2" {
		t.Errorf("front = %s, want c2", got)
	}
}

func TestUpsertOwnMessageNeverIncrements(t *testing.T) {
	x := seeded()
	m := inbound("c2", 4000)
	m.SenderID = self
	x.UpsertFromMessage(m, true, model.Selection{})

	s, _ := x.Get("c2")
	if s.UnreadFor(self) != 0 {
		t.Errorf("unread = %d, want 0 for own message", s.UnreadFor(self))
	}
}

func TestUpsertActiveSelectionNeverIncrements(t *testing.T) {
	x := seeded()
	x.UpsertFromMessage(inbound("c1", 4000), false, model.Selection{ID: "c1"})

	s, _ := x.Get("c1")
	if s.UnreadFor(self) != 0 {
		t.Errorf("unread = %d, want 0 for active thread", s.UnreadFor(self))
	}
}

func TestUpsertUnknownThreadDefersToRefresh(t *testing.T) {
	x := seeded()
	if x.UpsertFromMessage(inbound("brand-new", 9000), false, model.Selection{}) {
		t.Error("unknown thread should not be fabricated")
	}
	if _, ok := x.Get("brand-new"); ok {
		t.Error("summary appeared out of nowhere")
	}
}

func TestClearUnreadIdempotent(t *testing.T) {
	x := seeded()
	x.UpsertFromMessage(inbound("c2", 4000), false, model.Selection{})
	x.UpsertFromMessage(inbound("c2", 4100), false, model.Selection{})

	x.ClearUnread("c2")
	x.ClearUnread("c2")

	s, _ := x.Get("c2")
	if s.UnreadFor(self) != 0 {
		t.Errorf("unread = %d, want 0", s.UnreadFor(self))
	}
}

func TestTotalUnread(t *testing.T) {
	x := seeded()
	x.UpsertFromMessage(inbound("c2", 4000), false, model.Selection{})
	x.UpsertFromMessage(inbound("g1", 4100), false, model.Selection{})
	x.UpsertFromMessage(inbound("g1", 4200), false, model.Selection{})

	if got := x.TotalUnread(); got != 3 {
		t.Errorf("TotalUnread = %d, want 3", got)
	}
}

func TestNewestMutationIsFirst(t *testing.T) {
	x := seeded()
	x.UpsertFromMessage(inbound("g1", 99999), false, model.Selection{})
	if got := x.Snapshot()[0].ID; got != "g1" {
		t.Errorf("front = %s, want g1", got)
	}
}
