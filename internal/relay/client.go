package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/devcanvas/devcanvas/internal/util"
)

// ErrClosed is returned by operations on a closed client or topic.
var ErrClosed = errors.New("relay: connection closed")

// Client is one participant's connection to the relay. It multiplexes any
// number of topics over a single WebSocket. All exported methods are safe
// for concurrent use; handler callbacks run on the single read-pump
// goroutine, so per-topic delivery order matches arrival order.
type Client struct {
	conn    *websocket.Conn
	id      string
	writeMu sync.Mutex

	mu     sync.Mutex
	topics map[string]*Topic
	closed bool
}

// Dial connects to the relay at wsURL, identifying as clientID. The id is
// what the hub uses to honor excludeSelf subscriptions.
func Dial(ctx context.Context, wsURL, clientID string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL+"?client="+clientID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	c := &Client{
		conn:   conn,
		id:     clientID,
		topics: make(map[string]*Topic),
	}
	go c.readPump()
	return c, nil
}

// ID returns the client identifier presented to the hub.
func (c *Client) ID() string {
	return c.id
}

// OpenTopic subscribes to a named topic and returns its handle. When
// excludeSelf is set the hub will not deliver this client's own publishes
// back to it; the client also filters by sender id as a second line of
// defense, since self-suppression is hub configuration, not protocol.
func (c *Client) OpenTopic(name string, excludeSelf bool) (*Topic, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if t, ok := c.topics[name]; ok {
		c.mu.Unlock()
		return t, nil
	}
	t := &Topic{
		client:      c,
		name:        name,
		excludeSelf: excludeSelf,
		handlers:    make(map[string][]func(Envelope)),
	}
	c.topics[name] = t
	c.mu.Unlock()

	if err := c.write(Frame{Action: ActionSubscribe, Topic: name, ExcludeSelf: excludeSelf}); err != nil {
		c.mu.Lock()
		delete(c.topics, name)
		c.mu.Unlock()
		return nil, err
	}
	return t, nil
}

// Close tears down the connection and all open topics. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.topics = make(map[string]*Topic)
	c.mu.Unlock()
	return c.conn.Close()
}

// write serializes one frame to the WebSocket, guarded by a mutex.
func (c *Client) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	util.Stats.AddPublished(len(data))
	return nil
}

// readPump dispatches inbound frames to topic handlers until the connection
// dies. Malformed frames are logged and dropped, never fatal.
func (c *Client) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			alreadyClosed := c.closed
			c.mu.Unlock()
			if !alreadyClosed {
				util.LogDebug("relay read loop ended: %v", err)
			}
			return
		}
		util.Stats.AddReceived(len(data))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			util.LogWarning("dropping malformed relay frame: %v", err)
			continue
		}

		c.mu.Lock()
		t := c.topics[f.Topic]
		c.mu.Unlock()
		if t == nil {
			continue
		}
		t.dispatch(Envelope{Topic: f.Topic, Event: f.Event, Sender: f.Sender, Payload: f.Payload})
	}
}
