package transport

import (
	"encoding/json"
	"fmt"

	"github.com/dmaran/parley/internal/model"
)

// DecodeInbound validates an envelope against the closed inbound event set
// and returns its typed payload. Unknown kinds and malformed payloads are
// errors; the caller drops them without mutating any state.
func DecodeInbound(raw []byte) (Kind, any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case KindNewMessage:
		var m model.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return env.Type, nil, fmt.Errorf("decode new_message: %w", err)
		}
		if m.ID == "" || m.ThreadID() == "" {
			return env.Type, nil, fmt.Errorf("new_message missing id or thread")
		}
		if m.Status == "" {
			m.Status = model.StatusConfirmed
		}
		return env.Type, m, nil

	case KindTyping:
		var p TypingSignal
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Type, nil, fmt.Errorf("decode typing: %w", err)
		}
		if p.Room == "" {
			return env.Type, nil, fmt.Errorf("typing missing room")
		}
		return env.Type, p, nil

	case KindStopTyping:
		var p TypingSignal
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Type, nil, fmt.Errorf("decode stop_typing: %w", err)
		}
		if p.Room == "" {
			return env.Type, nil, fmt.Errorf("stop_typing missing room")
		}
		return env.Type, p, nil

	case KindUserStatus:
		var p UserStatus
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Type, nil, fmt.Errorf("decode user_status_change: %w", err)
		}
		if p.UserID == "" {
			return env.Type, nil, fmt.Errorf("user_status_change missing userId")
		}
		return env.Type, p, nil

	case KindOnlineUsers:
		var ids []string
		if err := json.Unmarshal(env.Data, &ids); err != nil {
			return env.Type, nil, fmt.Errorf("decode online_users_list: %w", err)
		}
		return env.Type, ids, nil

	case KindMessageRead:
		var p MessageRead
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return env.Type, nil, fmt.Errorf("decode message_read: %w", err)
		}
		return env.Type, p, nil

	default:
		return env.Type, nil, fmt.Errorf("unknown event kind %q", env.Type)
	}
}

// EncodeOutbound wraps an intent payload in an envelope.
func EncodeOutbound(kind Kind, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		data = b
	}
	return json.Marshal(Envelope{Type: kind, Data: data})
}
