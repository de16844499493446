package transport

import "encoding/json"

// Kind identifies a socket message type. The set is closed: anything else is
// rejected at the boundary.
type Kind string

const (
	// Server -> client
	KindNewMessage  Kind = "new_message"
	KindTyping      Kind = "typing"
	KindStopTyping  Kind = "stop_typing"
	KindUserStatus  Kind = "user_status_change"
	KindOnlineUsers Kind = "online_users_list"
	KindMessageRead Kind = "message_read"

	// Client -> server
	KindIdentify       Kind = "identify"
	KindJoin           Kind = "join_conversation"
	KindSendMessage    Kind = "send_message"
	KindGetOnlineUsers Kind = "get_online_users"
	KindMarkRead       Kind = "mark_read"
)

// Envelope wraps every socket message with a type tag.
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TypingSignal carries typing/stop_typing payloads. User is empty on stop.
type TypingSignal struct {
	Room string `json:"room"`
	User string `json:"user,omitempty"`
}

// UserStatus carries a peer's online/offline transition.
type UserStatus struct {
	UserID string `json:"userId"`
	Status string `json:"status"` // "online" or "offline"
}

// MessageRead announces that a peer read a message.
type MessageRead struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	UserID         string `json:"userId"`
}

// Identity is the announcement sent after every (re)connect.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// JoinRoom is the join_conversation payload.
type JoinRoom struct {
	RoomID string `json:"roomId"`
}

// MarkReadIntent is the outbound mark_read payload.
type MarkReadIntent struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}
