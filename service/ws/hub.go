package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event is the wire envelope for every server-to-client frame.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Conn is one authenticated websocket connection. Writes go through the
// buffered Send channel so broadcasts never block on a slow socket. Every
// send and the close of Send synchronize on the same mutex: once a
// connection is removed from the hub, late sends from concurrent broadcasts
// see the closed flag instead of a closed channel.
type Conn struct {
	ID        string
	AccountID uint
	Role      string
	Send      chan []byte

	sock   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func newConn(sock *websocket.Conn, accountID uint, role string) *Conn {
	return &Conn{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Role:      role,
		Send:      make(chan []byte, 256),
		sock:      sock,
	}
}

// trySend queues a frame without blocking. Returns false when the buffer is
// full or the connection is already closed.
func (c *Conn) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// AccountGroup is the per-account group every connection joins on connect.
func AccountGroup(accountID uint) string {
	return fmt.Sprintf("account:%d", accountID)
}

// RoomGroup is the group for one chat room.
func RoomGroup(chatID uint) string {
	return fmt.Sprintf("chat:%d", chatID)
}

// Hub tracks live connections and their group membership. A connection may
// belong to many groups; a group holds many connections.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	groups map[string]map[string]*Conn
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]*Conn),
		groups: make(map[string]map[string]*Conn),
	}
}

func (h *Hub) Add(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()
}

// Join adds the connection to a group. Joining twice is a no-op.
func (h *Hub) Join(c *Conn, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]*Conn)
		h.groups[group] = members
	}
	members[c.ID] = c
}

func (h *Hub) Leave(c *Conn, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.groups[group]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// Remove drops the connection from the hub and every group, and closes its
// send channel exactly once.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.ID)
	for group, members := range h.groups {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	h.mu.Unlock()
	c.closeSend()
}

// Emit marshals an event envelope and broadcasts it to a group.
func (h *Hub) Emit(group, event string, data interface{}) {
	payload, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		log.Printf("ws: marshal %s event: %v", event, err)
		return
	}
	h.Broadcast(group, payload)
}

// Broadcast sends a frame to every member of a group. A member whose send
// buffer is full is dropped from the hub rather than stalling the others.
func (h *Hub) Broadcast(group string, payload []byte) {
	h.mu.RLock()
	members := make([]*Conn, 0, len(h.groups[group]))
	for _, c := range h.groups[group] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.trySend(payload) {
			log.Printf("ws: dropping slow connection %s (account %d)", c.ID, c.AccountID)
			h.Remove(c)
		}
	}
}

// EmitTo sends an event to a single connection, bypassing groups. Sending to
// an already-removed connection is a no-op.
func (h *Hub) EmitTo(c *Conn, event string, data interface{}) {
	payload, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		log.Printf("ws: marshal %s event: %v", event, err)
		return
	}
	if !c.trySend(payload) {
		h.Remove(c)
	}
}
