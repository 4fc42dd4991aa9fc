/*
File Name:  controlapi.go

Local-only HTTP+WebSocket introspection server (§13 Supplemented Features):
read-only peer list, session states, and delivery-tracker status, plus a
live event stream. Grounded on the teacher's webapi/API.go (mux.Router,
startWebAPI, EncodeJSON pattern); generalized from the teacher's
file-sharing/blockchain endpoints to this engine's mesh state.
*/

package controlapi

import (
	"encoding/hex"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bitchat-mesh/meshcore/delivery"
	"github.com/bitchat-mesh/meshcore/registry"
	"github.com/bitchat-mesh/meshcore/session"
)

// wsUpgrader allows all origins, matching the teacher's WSUpgrader: this
// server is meant to be bound to localhost only, not exposed on an
// untrusted network.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventKind discriminates the live stream's event union.
type EventKind string

const (
	EventMessage         EventKind = "message"
	EventPeerListChanged EventKind = "peer_list_changed"
)

// StreamEvent is one message pushed to every connected WebSocket client.
type StreamEvent struct {
	Kind      EventKind   `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Server exposes mesh introspection over HTTP and a live WS event stream.
type Server struct {
	Router *mux.Router

	registry   *registry.Registry
	sessions   *session.Manager
	deliveries *delivery.Tracker

	mu      sync.Mutex
	clients map[*websocket.Conn]chan StreamEvent
}

// New wires a Server's routes against the given engine collaborators. Every
// route is read-only; the server never mutates engine state.
func New(reg *registry.Registry, sessions *session.Manager, deliveries *delivery.Tracker) *Server {
	s := &Server{
		Router:     mux.NewRouter(),
		registry:   reg,
		sessions:   sessions,
		deliveries: deliveries,
		clients:    make(map[*websocket.Conn]chan StreamEvent),
	}

	s.Router.HandleFunc("/status/peers", s.handlePeers).Methods("GET")
	s.Router.HandleFunc("/status/sessions", s.handleSessions).Methods("GET")
	s.Router.HandleFunc("/status/deliveries", s.handleDeliveries).Methods("GET")
	s.Router.HandleFunc("/stream", s.handleStream).Methods("GET")

	return s
}

// Serve starts the HTTP server on addr. Mirrors the teacher's
// startWebAPI: logs and returns only on listener failure.
func (s *Server) Serve(addr string) {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		log.Printf("controlapi: listener on %s stopped: %v", addr, err)
	}
}

type peerView struct {
	PeerID   string   `json:"peer_id"`
	Nickname string   `json:"nickname"`
	Visible  []string `json:"visible_transports"`
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	var out []peerView
	for _, id := range s.registry.AllPeerIDs() {
		rec, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		var transports []string
		for _, kind := range rec.Transports(now) {
			transports = append(transports, kind.String())
		}
		out = append(out, peerView{
			PeerID:   hex.EncodeToString(id[:]),
			Nickname: rec.Nickname,
			Visible:  transports,
		})
	}
	EncodeJSON(w, r, out)
}

type sessionView struct {
	Fingerprint string `json:"fingerprint"`
	State       string `json:"state"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	var out []sessionView
	for fp, state := range s.sessions.Snapshot() {
		out = append(out, sessionView{
			Fingerprint: hex.EncodeToString(fp[:]),
			State:       state.String(),
		})
	}
	EncodeJSON(w, r, out)
}

type deliveryView struct {
	MessageID string `json:"message_id"`
	PeerID    string `json:"peer_id"`
	State     string `json:"state"`
	Reached   int    `json:"reached"`
	Total     int    `json:"total"`
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	var out []deliveryView
	for _, snap := range s.deliveries.Snapshot() {
		out = append(out, deliveryView{
			MessageID: snap.MessageID,
			PeerID:    hex.EncodeToString(snap.PeerID[:]),
			State:     snap.State.String(),
			Reached:   snap.Reached,
			Total:     snap.Total,
		})
	}
	EncodeJSON(w, r, out)
}

// handleStream upgrades to a WebSocket and relays every Broadcast'd event
// until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("controlapi: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := make(chan StreamEvent, 64)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for event := range ch {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// Broadcast pushes event to every connected WebSocket client. Slow clients
// are dropped rather than blocking the rest of the fan-out.
func (s *Server) Broadcast(event StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		select {
		case ch <- event:
		default:
			delete(s.clients, conn)
			close(ch)
		}
	}
}
