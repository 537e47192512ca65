package relay

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Topic is a handle to one subscribed topic. Handlers registered with On run
// on the client's read pump; Send is fire-and-forget from the caller's point
// of view beyond the write error.
type Topic struct {
	client      *Client
	name        string
	excludeSelf bool

	mu       sync.Mutex
	handlers map[string][]func(Envelope)
	closed   bool
}

// Name returns the topic name.
func (t *Topic) Name() string {
	return t.name
}

// On registers a handler for one event kind.
func (t *Topic) On(event string, fn func(Envelope)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = append(t.handlers[event], fn)
}

// Send publishes an event to the topic. payload is JSON-marshalled.
func (t *Topic) Send(event string, payload any) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	return t.client.write(Frame{
		Action:  ActionPublish,
		Topic:   t.name,
		Event:   event,
		Payload: data,
	})
}

// Close unsubscribes from the topic. Idempotent; handlers stop firing once
// the hub processes the unsubscribe.
func (t *Topic) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.client.mu.Lock()
	delete(t.client.topics, t.name)
	closed := t.client.closed
	t.client.mu.Unlock()

	if closed {
		return nil
	}
	return t.client.write(Frame{Action: ActionUnsubscribe, Topic: t.name})
}

// dispatch fans an envelope out to the handlers for its event.
func (t *Topic) dispatch(env Envelope) {
	// Second line of self-echo defense: the hub should already have
	// excluded our own publishes, but that is its configuration to honor.
	if t.excludeSelf && env.Sender == t.client.id {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	fns := append([]func(Envelope){}, t.handlers[env.Event]...)
	t.mu.Unlock()

	for _, fn := range fns {
		fn(env)
	}
}
