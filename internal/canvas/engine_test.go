package canvas

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devcanvas/devcanvas/internal/relay"
)

// recorderTopic captures sends and lets tests inject inbound envelopes.
type recorderTopic struct {
	mu       sync.Mutex
	handlers map[string][]func(relay.Envelope)
	sent     []json.RawMessage
	closed   bool
}

func newRecorderTopic() *recorderTopic {
	return &recorderTopic{handlers: make(map[string][]func(relay.Envelope))}
}

func (r *recorderTopic) On(event string, fn func(relay.Envelope)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], fn)
}

func (r *recorderTopic) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, data)
	return nil
}

func (r *recorderTopic) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorderTopic) deliver(event string, payload []byte) {
	r.mu.Lock()
	fns := append([]func(relay.Envelope){}, r.handlers[event]...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(relay.Envelope{Event: event, Sender: "peer", Payload: payload})
	}
}

func (r *recorderTopic) sendCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recorderTopic) sentPayload(i int) updatePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var p updatePayload
	if err := json.Unmarshal(r.sent[i], &p); err != nil {
		panic(err)
	}
	return p
}

// remoteUpdate wraps a document's snapshot into a canvas-update payload.
func remoteUpdate(t *testing.T, doc *Document) []byte {
	t.Helper()
	snap, err := doc.Snapshot()
	require.NoError(t, err)
	data, err := json.Marshal(updatePayload{Snapshot: json.RawMessage(snap)})
	require.NoError(t, err)
	return data
}

func TestLocalChangeBroadcasts(t *testing.T) {
	topic := newRecorderTopic()
	engine := NewEngine(NewDocument(), topic)

	engine.Document().Put("shape:1", json.RawMessage(`{"kind":"rect"}`))

	require.Equal(t, 1, topic.sendCount())
	assert.Contains(t, string(topic.sentPayload(0).Snapshot), "shape:1")
}

func TestNoEchoWhileApplyingRemote(t *testing.T) {
	topic := newRecorderTopic()
	NewEngine(NewDocument(), topic)

	remote := NewDocument()
	remote.Put("shape:1", json.RawMessage(`{"kind":"rect"}`))

	topic.deliver(EventUpdate, remoteUpdate(t, remote))

	// Applying a remote snapshot mutates the document, which fires the
	// change listener; the reentrancy flag must swallow that broadcast.
	assert.Equal(t, 0, topic.sendCount())
}

func TestThrottleCeilingLeadingEdge(t *testing.T) {
	now := time.Unix(0, 0)
	topic := newRecorderTopic()
	engine := NewEngine(NewDocument(), topic, WithClock(func() time.Time { return now }))

	// Ten edits inside one window: exactly one send, carrying the first
	// edit's snapshot.
	engine.Document().Put("first", json.RawMessage(`1`))
	for i := 0; i < 9; i++ {
		engine.Document().Put("later", json.RawMessage(`2`))
		now = now.Add(time.Millisecond)
	}

	require.Equal(t, 1, topic.sendCount())
	first := string(topic.sentPayload(0).Snapshot)
	assert.Contains(t, first, "first")
	assert.NotContains(t, first, "later")
}

func TestThrottleReopensAfterWindow(t *testing.T) {
	now := time.Unix(0, 0)
	topic := newRecorderTopic()
	engine := NewEngine(NewDocument(), topic, WithClock(func() time.Time { return now }))

	engine.Document().Put("a", json.RawMessage(`1`))
	now = now.Add(BroadcastInterval)
	engine.Document().Put("b", json.RawMessage(`2`))

	assert.Equal(t, 2, topic.sendCount())
}

func TestMalformedRemoteUpdateDropped(t *testing.T) {
	topic := newRecorderTopic()
	engine := NewEngine(NewDocument(), topic)
	engine.Document().Put("mine", json.RawMessage(`1`))

	topic.deliver(EventUpdate, []byte(`{"snapshot": "{oops"}`))
	topic.deliver(EventUpdate, []byte(`not even json`))
	topic.deliver(EventUpdate, []byte(`{}`))

	// Local state survives every malformed apply attempt.
	_, ok := engine.Document().Get("mine")
	assert.True(t, ok)
	assert.Equal(t, 1, engine.Document().Len())
}

func TestGuardReleasedAfterFailedApply(t *testing.T) {
	topic := newRecorderTopic()
	engine := NewEngine(NewDocument(), topic)

	topic.deliver(EventUpdate, []byte(`{"snapshot": "{oops"}`))

	// A local edit after the failed apply must still broadcast: the
	// reentrancy flag cannot stay stuck.
	engine.Document().Put("a", json.RawMessage(`1`))
	assert.Equal(t, 1, topic.sendCount())
}

func TestBasicConvergence(t *testing.T) {
	topicA := newRecorderTopic()
	engineA := NewEngine(NewDocument(), topicA)

	topicB := newRecorderTopic()
	engineB := NewEngine(NewDocument(), topicB)
	engineB.Document().Put("stale", json.RawMessage(`0`))

	// A mutates to S1 and broadcasts; B applies the broadcast.
	engineA.Document().Put("shape:1", json.RawMessage(`{"x":4}`))
	require.Equal(t, 1, topicA.sendCount())
	payload, err := json.Marshal(topicA.sentPayload(0))
	require.NoError(t, err)
	topicB.deliver(EventUpdate, payload)

	snapA, err := engineA.Document().Snapshot()
	require.NoError(t, err)
	snapB, err := engineB.Document().Snapshot()
	require.NoError(t, err)
	assert.JSONEq(t, string(snapA), string(snapB))
}
