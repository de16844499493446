package model

// MessageStatus tracks where a message sits in its delivery lifecycle.
type MessageStatus string

const (
	StatusConfirmed MessageStatus = "confirmed"
	StatusPending   MessageStatus = "pending"
	StatusFailed    MessageStatus = "failed"
)

// ThreadKind discriminates direct conversations from groups.
type ThreadKind string

const (
	KindDirect ThreadKind = "direct"
	KindGroup  ThreadKind = "group"
)

// Attachment describes a file carried by a message. For pending messages the
// URL may be a locally-derived preview reference until the server record
// replaces it.
type Attachment struct {
	URL  string `json:"fileUrl"`
	Type string `json:"fileType"`
	Name string `json:"fileName"`
	Size int64  `json:"fileSize"`
}

// Message is a single chat message. Exactly one of ConversationID and GroupID
// is set. Timestamps are unix milliseconds.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId,omitempty"`
	GroupID        string        `json:"groupId,omitempty"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName"`
	Content        string        `json:"content"`
	Attachment     *Attachment   `json:"attachment,omitempty"`
	CreatedAt      int64         `json:"createdAt"`
	Status         MessageStatus `json:"status"`
}

// ThreadID returns the conversation or group id the message belongs to.
func (m *Message) ThreadID() string {
	if m.GroupID != "" {
		return m.GroupID
	}
	return m.ConversationID
}

// IsGroup reports whether the message belongs to a group thread.
func (m *Message) IsGroup() bool {
	return m.GroupID != ""
}

// Participant is a member of a direct conversation or group.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}

// ConversationSummary is one entry of the conversation index: a denormalized
// last-message snapshot plus per-user unread counters.
type ConversationSummary struct {
	ID           string         `json:"id"`
	Kind         ThreadKind     `json:"kind"`
	Name         string         `json:"name"`
	Participants []Participant  `json:"participants,omitempty"`
	LastMessage  *Message       `json:"lastMessage,omitempty"`
	Unread       map[string]int `json:"unreadCount"`
	UpdatedAt    int64          `json:"updatedAt"`
}

// UnreadFor returns the unread count for the given user id.
func (s *ConversationSummary) UnreadFor(userID string) int {
	if s.Unread == nil {
		return 0
	}
	return s.Unread[userID]
}

// Selection identifies the conversation or group the user is viewing.
// The zero value means nothing is selected.
type Selection struct {
	ID      string `json:"id"`
	IsGroup bool   `json:"isGroup"`
}

// IsZero reports whether no thread is selected.
func (s Selection) IsZero() bool {
	return s.ID == ""
}

// PendingEntry is the ephemeral record for an in-flight optimistic send,
// owned by the pipeline until resolved or discarded. Never persisted.
type PendingEntry struct {
	TempID     string
	Selection  Selection
	PreviewRef string
	Loaded     int64
	Total      int64
	CreatedAt  int64
}
