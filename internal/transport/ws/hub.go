// Package ws streams engine telemetry to observers over websockets.
//
// An observer connects, sends SUBSCRIBE (optionally naming the owners it cares about),
// receives the latest snapshot of every matching agent and then the live stream. Slow
// observers lose frames rather than stall the engine.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gridlegion.ai/internal/protocol"
)

const clientQueue = 1024

type Hub struct {
	log *log.Logger

	// LoopbackOnly rejects observers connecting from non-loopback addresses.
	LoopbackOnly bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	clients map[string]*client
	latest  map[string]protocol.AgentSnapshot
}

type client struct {
	id  string
	out chan []byte

	mu     sync.Mutex
	owners map[string]bool // nil: every owner
}

func (c *client) wants(owner string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owners == nil || c.owners[owner]
}

func (c *client) setOwners(owners []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(owners) == 0 {
		c.owners = nil
		return
	}
	c.owners = make(map[string]bool, len(owners))
	for _, o := range owners {
		if o = strings.TrimSpace(o); o != "" {
			c.owners[o] = true
		}
	}
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[string]*client{},
		latest:  map[string]protocol.AgentSnapshot{},
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped counts frames discarded because an observer's queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) AgentChanged(s protocol.AgentSnapshot) {
	h.mu.Lock()
	h.latest[s.AgentID] = s
	h.mu.Unlock()
	h.broadcast(s.Owner, s)
}

func (h *Hub) TaskFinished(r protocol.TaskRecord) { h.broadcast(r.Owner, r) }

func (h *Hub) AgentRemoved(r protocol.AgentRemoved) {
	h.mu.Lock()
	delete(h.latest, r.AgentID)
	h.mu.Unlock()
	h.broadcast(r.Owner, r)
}

func (h *Hub) broadcast(owner string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Printf("ws marshal: %v", err)
		return
	}
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		if !c.wants(owner) {
			continue
		}
		select {
		case c.out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

// Latest returns the most recent snapshot of every live agent, ordered by id.
func (h *Hub) Latest(owners []string) []protocol.AgentSnapshot {
	want := map[string]bool{}
	for _, o := range owners {
		want[o] = true
	}
	h.mu.Lock()
	out := make([]protocol.AgentSnapshot, 0, len(h.latest))
	for _, s := range h.latest {
		if len(want) == 0 || want[s.Owner] {
			out = append(out, s)
		}
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// AgentsHandler serves the latest snapshots as JSON; ?owner= may repeat.
func (h *Hub) AgentsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if h.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(h.Latest(r.URL.Query()["owner"]))
	}
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if h.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		c := &client{
			id:  fmt.Sprintf("O%d", h.nextID.Add(1)),
			out: make(chan []byte, clientQueue),
		}
		c.setOwners(sub.Owners)

		// Register before replaying so nothing between the replay and the live stream is lost.
		h.mu.Lock()
		h.clients[c.id] = c
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.clients, c.id)
			h.mu.Unlock()
		}()
		h.log.Printf("observer connected: id=%s owners=%v", c.id, sub.Owners)

		for _, s := range h.Latest(sub.Owners) {
			if err := writeJSON(conn, s); err != nil {
				return
			}
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := decodeSubscribe(msg); ok {
				c.setOwners(sub.Owners)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		h.log.Printf("observer disconnected: id=%s", c.id)
	}
}

func decodeSubscribe(msg []byte) (protocol.SubscribeMsg, bool) {
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
		return sub, false
	}
	return sub, true
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
