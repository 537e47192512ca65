package relay

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/devcanvas/devcanvas/internal/util"
)

const subscriberBuffer = 64 // outbound frames queued per subscriber before drops

// Hub is the relay's broadcast core: a registry of topics, each with a set
// of subscribers. Publishes fan out to every subscriber of the topic except,
// when requested at subscribe time, the publisher itself. Delivery is
// best-effort: a subscriber that cannot keep up has frames dropped rather
// than stalling the topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]subscription
}

type subscription struct {
	excludeSelf bool
}

// subscriber is one connected client. A dedicated writer goroutine drains
// outbox so a slow connection never blocks a publisher.
type subscriber struct {
	hub      *Hub
	conn     *websocket.Conn
	clientID string
	outbox   chan []byte
	done     chan struct{}
	once     sync.Once
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*subscriber]subscription)}
}

// serve owns one client connection: reads frames and applies them until the
// connection drops, then removes the client from every topic.
func (h *Hub) serve(conn *websocket.Conn, clientID string) {
	sub := &subscriber{
		hub:      h,
		conn:     conn,
		clientID: clientID,
		outbox:   make(chan []byte, subscriberBuffer),
		done:     make(chan struct{}),
	}
	go sub.writeLoop()
	defer sub.close()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}

		switch f.Action {
		case ActionSubscribe:
			h.subscribe(sub, f.Topic, f.ExcludeSelf)
		case ActionUnsubscribe:
			h.unsubscribe(sub, f.Topic)
		case ActionPublish:
			h.publish(sub, f)
		default:
			util.LogDebug("ignoring frame with unknown action %q from %s", f.Action, clientID)
		}
	}
}

func (h *Hub) subscribe(sub *subscriber, topic string, excludeSelf bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[*subscriber]subscription)
		h.topics[topic] = subs
	}
	subs[sub] = subscription{excludeSelf: excludeSelf}
}

func (h *Hub) unsubscribe(sub *subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics[topic], sub)
	if len(h.topics[topic]) == 0 {
		delete(h.topics, topic)
	}
}

// publish stamps the sender id and fans the frame out to the topic.
func (h *Hub) publish(from *subscriber, f Frame) {
	out := Frame{Topic: f.Topic, Event: f.Event, Payload: f.Payload, Sender: from.clientID}
	data, err := json.Marshal(out)
	if err != nil {
		util.LogWarning("failed to encode publish from %s: %v", from.clientID, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub, opts := range h.topics[f.Topic] {
		if sub == from && opts.excludeSelf {
			continue
		}
		select {
		case sub.outbox <- data:
		default:
			// At-most-once: drop rather than stall the topic.
			util.LogDebug("dropping frame for slow subscriber %s on %s", sub.clientID, f.Topic)
		}
	}
}

// remove detaches sub from every topic it is subscribed to.
func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, subs := range h.topics {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

func (s *subscriber) writeLoop() {
	for {
		select {
		case data := <-s.outbox:
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
		s.conn.Close()
	})
}
