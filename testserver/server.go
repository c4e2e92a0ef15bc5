// Package testserver provides a configurable WebSocket server for load testing.
package testserver

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Subprotocols the /ws endpoint negotiates.
var Subprotocols = []string{"graphql-ws", "graphql-transport-ws"}

// Stats is a point-in-time view of server activity.
type Stats struct {
	Connections int64 `json:"connections"`
	Active      int64 `json:"active"`
	Messages    int64 `json:"messages"`
	Rejected    int64 `json:"rejected"`
}

// Option configures a Server.
type Option func(*Server)

// WithRecording keeps every received text frame for Received.
func WithRecording() Option {
	return func(s *Server) { s.recording = true }
}

// Server is a configurable WebSocket test server.
type Server struct {
	mux      *http.ServeMux
	upgrader websocket.Upgrader

	connections atomic.Int64
	active      atomic.Int64
	messages    atomic.Int64
	rejected    atomic.Int64

	recording bool
	mu        sync.Mutex
	received  []string
	headers   []http.Header
}

// NewServer creates a new test server with all endpoints configured.
func NewServer(opts ...Option) *Server {
	s := &Server{
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			Subprotocols: Subprotocols,
			CheckOrigin:  func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/reject/", s.handleReject)
	s.mux.HandleFunc("/close", s.handleClose)
	s.mux.HandleFunc("/fail-rate", s.handleFailRate)
}

// Stats returns current counters.
func (s *Server) Stats() Stats {
	return Stats{
		Connections: s.connections.Load(),
		Active:      s.active.Load(),
		Messages:    s.messages.Load(),
		Rejected:    s.rejected.Load(),
	}
}

// Received returns the recorded text frames in arrival order.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.received)
}

// Handshakes returns the request headers of every recorded upgrade.
func (s *Server) Handshakes() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.headers)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.Stats())
}

// handleWS accepts a session. connection_init is answered with
// connection_ack; other frames are echoed unless ?echo=false.
// ?delay=ms holds the handshake.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if ms, err := strconv.Atoi(q.Get("delay")); err == nil && ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
	echo := q.Get("echo") != "false"

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.connections.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	if s.recording {
		s.mu.Lock()
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()
	}

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.messages.Add(1)
		if s.recording && kind == websocket.TextMessage {
			s.mu.Lock()
			s.received = append(s.received, string(msg))
			s.mu.Unlock()
		}

		if isConnectionInit(msg) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connection_ack"}`)); err != nil {
				return
			}
			continue
		}
		if echo {
			if err := conn.WriteMessage(kind, msg); err != nil {
				return
			}
		}
	}
}

func isConnectionInit(msg []byte) bool {
	var frame struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(msg, &frame) == nil && frame.Type == "connection_init"
}

// handleReject refuses the upgrade with the given status.
// Example: GET /reject/403
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/reject/"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	s.rejected.Add(1)
	http.Error(w, http.StatusText(code), code)
}

// handleClose accepts the upgrade and closes straight away.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.connections.Add(1)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

// handleFailRate rejects a percentage of upgrades with 503.
// Example: GET /fail-rate?rate=10 rejects 10% of handshakes
func (s *Server) handleFailRate(w http.ResponseWriter, r *http.Request) {
	rate, err := strconv.Atoi(r.URL.Query().Get("rate"))
	if err != nil || rate < 0 || rate > 100 {
		rate = 0
	}
	if rand.IntN(100) < rate {
		s.rejected.Add(1)
		http.Error(w, "simulated failure", http.StatusServiceUnavailable)
		return
	}
	s.handleWS(w, r)
}
