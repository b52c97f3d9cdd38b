package gateway

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/soyeahso/rcmesh/internal/postoffice"
)

// Client represents an authenticated WebSocket connection of one process.
type Client struct {
	ConnID      string
	Info        postoffice.ClientInfo
	Socket      *websocket.Conn
	AuthResult  AuthResult
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
	log    *logging.Logger

	boxMu     sync.Mutex
	mailboxes map[string]struct{}
}

// NewClient creates a Client for a newly authenticated WebSocket connection.
func NewClient(conn *websocket.Conn, info postoffice.ClientInfo, authResult AuthResult, log *logging.Logger) *Client {
	return &Client{
		ConnID:      uuid.New().String(),
		Info:        info,
		Socket:      conn,
		AuthResult:  authResult,
		ConnectedAt: time.Now(),
		log:         log,
		mailboxes:   make(map[string]struct{}),
	}
}

// Address returns the sender address of mailbox name on this connection.
func (c *Client) Address(name string) *postoffice.Address {
	return &postoffice.Address{Server: c.Info.Server, Mailbox: name, Character: c.Info.Character}
}

// Mailboxes returns the names this connection has registered, sorted.
func (c *Client) Mailboxes() []string {
	c.boxMu.Lock()
	defer c.boxMu.Unlock()
	names := make([]string, 0, len(c.mailboxes))
	for n := range c.mailboxes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Client) addMailbox(name string) bool {
	c.boxMu.Lock()
	defer c.boxMu.Unlock()
	if _, ok := c.mailboxes[name]; ok {
		return false
	}
	c.mailboxes[name] = struct{}{}
	return true
}

func (c *Client) removeMailbox(name string) bool {
	c.boxMu.Lock()
	defer c.boxMu.Unlock()
	if _, ok := c.mailboxes[name]; !ok {
		return false
	}
	delete(c.mailboxes, name)
	return true
}

// writeWait bounds a single frame write.
const writeWait = 10 * time.Second

// Send writes a frame to the client. Safe for concurrent use.
func (c *Client) Send(frame postoffice.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Socket.WriteJSON(frame)
}

// SendEvent sends a named event with payload.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := postoffice.NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond sends a success response for the given request ID.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := postoffice.NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError sends an error response for the given request ID.
func (c *Client) RespondError(reqID string, errShape postoffice.ErrorShape) error {
	return c.Send(postoffice.NewErrorResponse(reqID, errShape))
}

// ReadFrame reads the next frame from the WebSocket.
func (c *Client) ReadFrame() (postoffice.Frame, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return postoffice.Frame{}, err
	}
	var f postoffice.Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return postoffice.Frame{}, err
	}
	return f, nil
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Socket.Close()
}

// ClientRegistry manages connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID → Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Category(logging.FlagConnections).
		Str("connId", c.ConnID).
		Str("server", c.Info.Server).
		Str("character", c.Info.Character).
		Msg("client connected")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	r.log.Category(logging.FlagConnections).Str("connId", connID).Msg("client disconnected")
}

// Get returns a client by connection ID.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// PerServer counts connected processes by game server name.
func (r *ClientRegistry) PerServer() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int)
	for _, c := range r.clients {
		out[strings.ToLower(c.Info.Server)]++
	}
	return out
}

// CloseAll closes all connected clients.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
