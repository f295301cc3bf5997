// Package realtime pushes messages to the live websocket connections of users.
package realtime

import (
	"context"
	"sync"
)

// Message is the envelope written to websocket clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Push results
const (
	ResultDelivered = "delivered"
	ResultNoClient  = "no_client"
	ResultDropped   = "dropped"
)

// Observer is notified of connection & delivery events (metrics).
type Observer interface {
	ClientsChanged(n int)
	Pushed(result string)
}

type nopObserver struct{}

func (nopObserver) ClientsChanged(int) {}
func (nopObserver) Pushed(string)      {}

// Hub tracks the connected clients of every user.
// A user may have several connections (tabs, devices); each gets every message.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[*Client]struct{} // {userID: {client}}
	count   int
	closed  bool
	obs     Observer
}

func NewHub(obs Observer) *Hub {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		obs:     obs,
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, userID)
	}
	h.count = 0
	h.obs.ClientsChanged(0)
}

// Register adds a client. It returns false once the hub is shut down.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.count++
	h.obs.ClientsChanged(h.count)
	return true
}

// Unregister removes a client and closes its send queue. Unknown clients are ignored.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// remove must be called with mu held.
func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	h.count--
	h.obs.ClientsChanged(h.count)
}

// Push queues a message on every connection of userID without blocking.
// Clients whose queue is full are disconnected. It returns the number of connections reached.
func (h *Hub) Push(userID, typ string, data interface{}) int {
	msg := Message{Type: typ, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[userID]
	if len(set) == 0 {
		h.obs.Pushed(ResultNoClient)
		return 0
	}

	var delivered int
	for c := range set {
		select {
		case c.send <- msg:
			delivered++
			h.obs.Pushed(ResultDelivered)
		default:
			h.remove(c)
			h.obs.Pushed(ResultDropped)
		}
	}
	return delivered
}

// ClientCount returns the number of live connections of userID, or of everyone when userID is empty.
func (h *Hub) ClientCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if userID == "" {
		return h.count
	}
	return len(h.clients[userID])
}
