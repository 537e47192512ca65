// Package relay implements the topic-based pub/sub transport used for both
// canvas sync and call signaling. Delivery is best-effort, at-most-once,
// in-order per sender within one topic; nothing is persisted.
package relay

import "encoding/json"

// Action identifies the kind of wire frame.
type Action string

const (
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
	ActionPublish     Action = "publish"
)

// Frame is the JSON structure exchanged over the WebSocket. Subscribe and
// unsubscribe frames carry only Topic (plus ExcludeSelf on subscribe);
// publish frames carry the full envelope. On delivery the hub stamps Sender
// with the publishing client's id.
type Frame struct {
	Action      Action          `json:"action,omitempty"`
	Topic       string          `json:"topic"`
	Event       string          `json:"event,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Sender      string          `json:"sender,omitempty"`
	ExcludeSelf bool            `json:"excludeSelf,omitempty"`
}

// Envelope is the delivered form of a published message.
type Envelope struct {
	Topic   string
	Event   string
	Sender  string
	Payload json.RawMessage
}
