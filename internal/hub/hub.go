// Package hub is the server side of the sync protocol. It accepts websocket
// clients, keeps a snapshot of every variable published so far and
// broadcasts each change as a {"z":"set","variables":{...}} message.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livefir/zealtime/internal/remote"
)

// Config configures a Hub
type Config struct {
	Upgrader  *websocket.Upgrader
	Store     *Store // optional; nil keeps the snapshot in memory only
	Logger    *log.Logger
	ClientTTL time.Duration
}

// Option is a functional option for configuring a Hub
type Option func(*Config)

// WithUpgrader sets the websocket upgrader
func WithUpgrader(u *websocket.Upgrader) Option {
	return func(c *Config) {
		c.Upgrader = u
	}
}

// WithStore persists the snapshot in s
func WithStore(s *Store) Option {
	return func(c *Config) {
		c.Store = s
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithClientTTL sets how long a client may stay silent before Sweep drops it
func WithClientTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.ClientTTL = ttl
	}
}

// Hub broadcasts variable changes to every connected client.
type Hub struct {
	config   Config
	registry *Registry

	mu       sync.Mutex
	snapshot map[string]any
}

// New creates a hub, loading the persisted snapshot when a store is set.
func New(ctx context.Context, opts ...Option) (*Hub, error) {
	config := Config{
		Upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		Logger: log.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}

	h := &Hub{
		config:   config,
		registry: NewRegistry(config.ClientTTL),
		snapshot: make(map[string]any),
	}
	if config.Store != nil {
		vars, err := config.Store.Load(ctx)
		if err != nil {
			return nil, err
		}
		h.snapshot = vars
	}
	return h, nil
}

// Registry returns the connected-client registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Snapshot returns a copy of every variable published so far.
func (h *Hub) Snapshot() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.snapshot)
}

// Set merges vars into the snapshot, persists them and broadcasts them.
func (h *Hub) Set(ctx context.Context, vars map[string]any) error {
	if len(vars) == 0 {
		return nil
	}
	data, err := remote.Encode(vars)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.config.Store != nil {
		if err := h.config.Store.Save(ctx, vars); err != nil {
			h.mu.Unlock()
			return err
		}
	}
	maps.Copy(h.snapshot, vars)
	// Broadcast under the lock so clients see sets in the order they merged.
	h.broadcast(data)
	h.mu.Unlock()
	return nil
}

func (h *Hub) broadcast(data []byte) {
	for _, client := range h.registry.Clients() {
		if err := client.Send(data); err != nil {
			h.config.Logger.Printf("hub: send to %s failed: %v", client.ID, err)
			h.registry.Remove(client.ID)
			_ = client.conn.Close()
		}
	}
}

// ServeHTTP upgrades websocket requests and accepts POST bodies holding a
// JSON object of variables to set.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.handleWebSocket(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.handleSet(w, r)
}

func (h *Hub) handleSet(w http.ResponseWriter, r *http.Request) {
	var vars map[string]any
	if err := json.NewDecoder(r.Body).Decode(&vars); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.Set(r.Context(), vars); err != nil {
		h.config.Logger.Printf("hub: set failed: %v", err)
		http.Error(w, "set failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.config.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.config.Logger.Printf("hub: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Register and send the snapshot under the hub lock so no set is missed
	// or delivered twice.
	h.mu.Lock()
	client := h.registry.Add(conn, conn.RemoteAddr().String())
	if len(h.snapshot) > 0 {
		data, err := remote.Encode(h.snapshot)
		if err == nil {
			err = client.Send(data)
		}
		if err != nil {
			h.mu.Unlock()
			h.registry.Remove(client.ID)
			h.config.Logger.Printf("hub: failed to send snapshot: %v", err)
			return
		}
	}
	h.mu.Unlock()
	defer h.registry.Remove(client.ID)

	h.config.Logger.Printf("hub: client %s connected from %s", client.ID, client.RemoteAddr)
	conn.SetPongHandler(func(string) error {
		h.registry.Touch(client.ID)
		return nil
	})

	// Clients only listen; reading keeps control frames flowing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.config.Logger.Printf("hub: websocket error: %v", err)
			}
			break
		}
		h.registry.Touch(client.ID)
	}

	h.config.Logger.Printf("hub: client %s disconnected", client.ID)
}

// Sweep pings every client and drops the ones silent past the ttl.
func (h *Hub) Sweep() int {
	deadline := time.Now().Add(5 * time.Second)
	for _, client := range h.registry.Clients() {
		if ws, ok := client.conn.(*websocket.Conn); ok {
			client.mu.Lock()
			err := ws.WriteControl(websocket.PingMessage, nil, deadline)
			client.mu.Unlock()
			if err != nil {
				h.config.Logger.Printf("hub: ping %s failed: %v", client.ID, err)
			}
		}
	}
	return h.registry.CleanupStale()
}

// Run sweeps every interval until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.Sweep(); n > 0 {
				h.config.Logger.Printf("hub: dropped %d stale clients", n)
			}
		}
	}
}
