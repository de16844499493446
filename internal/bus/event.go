package bus

import "time"

// Event is a domain notification published on the bus. Kind is a dotted name
// whose leading segment is the namespace, e.g. "transport.connected",
// "message.applied", "presence.typing", "error.send".
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
