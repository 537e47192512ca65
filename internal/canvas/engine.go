package canvas

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/devcanvas/devcanvas/internal/relay"
	"github.com/devcanvas/devcanvas/internal/util"
)

// EventUpdate is the topic event carrying a full document snapshot.
const EventUpdate = "canvas-update"

// BroadcastInterval caps outgoing snapshot sends at roughly 30 per second.
const BroadcastInterval = 33 * time.Millisecond

// Topic is the slice of the relay surface the engine needs. Satisfied by
// *relay.Topic; tests substitute a recorder.
type Topic interface {
	On(event string, fn func(relay.Envelope))
	Send(event string, payload any) error
	Close() error
}

// updatePayload is the wire shape of a canvas-update event.
type updatePayload struct {
	Snapshot json.RawMessage `json:"snapshot"`
}

// Engine owns the local document and keeps it approximately consistent with
// the other participants' copies. Every local mutation triggers a throttled
// full-snapshot broadcast; every received snapshot replaces the local
// document wholesale (last received snapshot wins).
type Engine struct {
	doc   *Document
	topic Topic
	gate  *gate

	// applyingRemote suppresses re-broadcast of changes the engine itself
	// causes while applying a remote snapshot. Without it every apply would
	// trigger the document listener, which would broadcast, which the peer
	// would apply and re-broadcast, endlessly. The topic's excludeSelf
	// subscription is the first line of defense; this flag is the second,
	// since self-suppression is relay configuration, not a protocol
	// guarantee.
	applyingRemote atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the throttle clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.gate = newGate(BroadcastInterval, now) }
}

// NewEngine wires an engine to its document and topic: document mutations
// are broadcast, and inbound canvas-update events are applied. The topic
// should have been opened with excludeSelf.
func NewEngine(doc *Document, topic Topic, opts ...Option) *Engine {
	e := &Engine{
		doc:   doc,
		topic: topic,
		gate:  newGate(BroadcastInterval, nil),
	}
	for _, opt := range opts {
		opt(e)
	}

	doc.Listen(e.onLocalChange)
	topic.On(EventUpdate, e.handleRemote)
	return e
}

// Document returns the engine's local document.
func (e *Engine) Document() *Document {
	return e.doc
}

// onLocalChange runs after every document mutation. Remote-caused changes
// are suppressed by the reentrancy flag; local ones are broadcast through
// the leading-edge throttle, so a burst of edits inside one window produces
// exactly one send carrying the first edit's snapshot.
func (e *Engine) onLocalChange() {
	if e.applyingRemote.Load() {
		return
	}
	if !e.gate.allow() {
		return
	}

	snap, err := e.doc.Snapshot()
	if err != nil {
		util.LogError("failed to snapshot canvas: %v", err)
		return
	}
	// Fire-and-forget: a failed send is logged and never retried.
	if err := e.topic.Send(EventUpdate, updatePayload{Snapshot: json.RawMessage(snap)}); err != nil {
		util.LogWarning("failed to broadcast canvas snapshot: %v", err)
	}
}

// handleRemote applies a received snapshot. The document is replaced in
// full; a malformed payload is logged and dropped with the document left in
// its pre-attempt state. The reentrancy flag is always cleared, even if the
// apply fails.
func (e *Engine) handleRemote(env relay.Envelope) {
	var p updatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		util.LogWarning("dropping malformed canvas update from %s: %v", env.Sender, err)
		return
	}
	if len(p.Snapshot) == 0 {
		util.LogWarning("dropping canvas update without snapshot from %s", env.Sender)
		return
	}

	e.applyingRemote.Store(true)
	defer e.applyingRemote.Store(false)

	if err := e.doc.Restore(Snapshot(p.Snapshot)); err != nil {
		util.LogWarning("failed to apply canvas snapshot from %s: %v", env.Sender, err)
	}
}

// Close detaches the engine from the relay.
func (e *Engine) Close() error {
	return e.topic.Close()
}
