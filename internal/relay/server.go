package relay

import (
	"fmt"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes a Hub over a WebSocket endpoint at /ws.
type Server struct {
	hub      *Hub
	listener net.Listener
}

// NewServer creates a server around a fresh hub.
func NewServer() *Server {
	return &Server{hub: NewHub()}
}

// Start begins listening on addr (":0" picks a random port). Returns the
// bound port number.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start relay server: %w", err)
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return port, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		// Anonymous connections still need a stable sender id for
		// excludeSelf to be meaningful.
		clientID = "relay_" + uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	go s.hub.serve(conn, clientID)
}

// Close shuts down the listener, preventing new connections. Existing
// connections keep running until they drop.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}
