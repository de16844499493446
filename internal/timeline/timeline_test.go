package timeline

import (
	"testing"

	"github.com/dmaran/parley/internal/model"
)

func msg(id string, ts int64) model.Message {
	return model.Message{ID: id, ConversationID: "c1", Content: "body-" + id, CreatedAt: ts, Status: model.StatusConfirmed}
}

func ids(s *Store) []string {
	snap := s.Snapshot()
	out := make([]string, len(snap))
	for i, m := range snap {
		out[i] = m.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLoadPageReplace(t *testing.T) {
	s := New()
	s.ApplyInbound(msg("stale", 500))

	s.LoadPage([]model.Message{msg("m1", 1000), msg("m2", 2000)}, Replace)

	if !equalIDs(ids(s), []string{"m1", "m2"}) {
		t.Errorf("ids = %v, want [m1 m2]", ids(s))
	}
	if s.Contains("stale") {
		t.Error("replace kept an id not present in the page")
	}
}

func TestPrependOlderIdempotent(t *testing.T) {
	s := New()
	s.LoadPage([]model.Message{msg("m3", 3000), msg("m4", 4000)}, Replace)

	older := []model.Message{msg("m1", 1000), msg("m2", 2000)}
	s.LoadPage(older, PrependOlder)
	before := ids(s)

	// Re-merging already-seen pages leaves the store unchanged.
	s.LoadPage(older, PrependOlder)
	s.LoadPage([]model.Message{msg("m3", 3000)}, PrependOlder)

	if !equalIDs(ids(s), before) {
		t.Errorf("ids = %v, want %v", ids(s), before)
	}
	if !equalIDs(before, []string{"m1", "m2", "m3", "m4"}) {
		t.Errorf("ids = %v, want chronological order", before)
	}
}

func TestApplyInboundReplacesByID(t *testing.T) {
	s := New()
	s.ApplyInbound(msg("m1", 1000))
	s.ApplyInbound(msg("m2", 2000))

	updated := msg("m1", 1000)
	updated.Content = "edited"
	s.ApplyInbound(updated)

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len = %d, want 2", len(snap))
	}
	if snap[0].Content != "edited" {
		t.Errorf("content = %q, want edited (replace in place)", snap[0].Content)
	}
}

func TestStableOrderOnEqualTimestamps(t *testing.T) {
	s := New()
	s.ApplyInbound(msg("a", 1000))
	s.ApplyInbound(msg("b", 1000))
	s.ApplyInbound(msg("c", 1000))

	if !equalIDs(ids(s), []string{"a", "b", "c"}) {
		t.Errorf("ids = %v, want arrival order on tie", ids(s))
	}
}

func TestResolvePendingKeepsPosition(t *testing.T) {
	s := New()
	s.ApplyInbound(msg("m1", 1000))
	pend := model.Message{ID: "pending-x", ConversationID: "c1", Content: "hi", CreatedAt: 1500, Status: model.StatusPending}
	s.ApplyInbound(pend)
	s.ApplyInbound(msg("m2", 2000))

	confirmed := msg("srv-9", 1500)
	confirmed.Content = "hi"
	if !s.ResolvePending("pending-x", confirmed) {
		t.Fatal("placeholder not found")
	}

	if !equalIDs(ids(s), []string{"m1", "srv-9", "m2"}) {
		t.Errorf("ids = %v, want swap in place", ids(s))
	}
	if s.Contains("pending-x") {
		t.Error("temp id still present after resolve")
	}
}

func TestResolvePendingAfterPushAlreadyDelivered(t *testing.T) {
	s := New()
	pend := model.Message{ID: "pending-x", ConversationID: "c1", Content: "hi", CreatedAt: 1500, Status: model.StatusPending}
	s.ApplyInbound(pend)

	// Confirmed record arrives over the socket first.
	confirmed := msg("srv-9", 1500)
	confirmed.Content = "hi"
	s.ApplyInbound(confirmed)

	// The REST response resolves afterwards; exactly one copy must remain.
	s.ResolvePending("pending-x", confirmed)

	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	if s.Contains("pending-x") {
		t.Error("placeholder survived")
	}
}

func TestDiscardPending(t *testing.T) {
	s := New()
	pend := model.Message{ID: "pending-x", ConversationID: "c1", CreatedAt: 1500, Status: model.StatusPending}
	s.ApplyInbound(pend)

	if !s.DiscardPending("pending-x") {
		t.Fatal("placeholder not found")
	}
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
	if s.DiscardPending("pending-x") {
		t.Error("second discard reported success")
	}
}

func TestPendingNewerThan(t *testing.T) {
	s := New()
	s.ApplyInbound(msg("m1", 1000))
	old := model.Message{ID: "pending-old", ConversationID: "c1", CreatedAt: 900, Status: model.StatusPending}
	fresh := model.Message{ID: "pending-new", ConversationID: "c1", CreatedAt: 2000, Status: model.StatusPending}
	s.ApplyInbound(old)
	s.ApplyInbound(fresh)

	kept := s.PendingNewerThan(1000)
	if len(kept) != 1 || kept[0].ID != "pending-new" {
		t.Errorf("kept = %v, want only pending-new", kept)
	}
}

func TestNewestCreatedAt(t *testing.T) {
	s := New()
	if s.NewestCreatedAt() != 0 {
		t.Error("empty store should report 0")
	}
	s.ApplyInbound(msg("m1", 1000))
	s.ApplyInbound(msg("m2", 3000))
	s.LoadPage([]model.Message{msg("m0", 500)}, PrependOlder)
	if got := s.NewestCreatedAt(); got != 3000 {
		t.Errorf("NewestCreatedAt = %d, want 3000", got)
	}
}
