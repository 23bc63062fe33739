package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// Sender is the write side of a client connection. *websocket.Conn
// satisfies it.
type Sender interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a connected sync client
type Client struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	conn Sender

	mu       sync.Mutex
	lastSeen time.Time
}

// Send writes one text message. Writes to the same client are serialized.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// LastSeen returns the last time the client showed activity.
func (c *Client) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

// Registry tracks connected clients
type Registry struct {
	clients map[string]*Client
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry creates a registry. Clients silent for longer than ttl are
// dropped by CleanupStale.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl == 0 {
		ttl = time.Minute // Default 1 minute
	}

	return &Registry{
		clients: make(map[string]*Client),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Add registers a new client for conn
func (r *Registry) Add(conn Sender, remoteAddr string) *Client {
	now := r.now()
	client := &Client{
		ID:          strings.ToLower(ulid.Make().String()),
		RemoteAddr:  remoteAddr,
		ConnectedAt: now,
		conn:        conn,
		lastSeen:    now,
	}

	r.mu.Lock()
	r.clients[client.ID] = client
	r.mu.Unlock()

	return client
}

// Get retrieves a client by ID
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, exists := r.clients[id]
	return client, exists
}

// Touch records activity for a client
func (r *Registry) Touch(id string) {
	if client, ok := r.Get(id); ok {
		client.touch(r.now())
	}
}

// Remove drops a client without closing its connection
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// Len returns the number of connected clients
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clients returns the connected clients in no particular order
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		list = append(list, c)
	}
	return list
}

// CleanupStale closes and removes clients not seen within the ttl
func (r *Registry) CleanupStale() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var stale []*Client
	for id, client := range r.clients {
		if client.LastSeen().Before(cutoff) {
			delete(r.clients, id)
			stale = append(stale, client)
		}
	}
	r.mu.Unlock()

	for _, client := range stale {
		_ = client.conn.Close()
	}
	return len(stale)
}
