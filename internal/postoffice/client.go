package postoffice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/logging"
)

const (
	handshakeTimeout      = 10 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

// ClientOptions configures a websocket connection to the hub.
type ClientOptions struct {
	URL            string
	Token          string
	Identity       domain.Identity
	Version        string
	RequestTimeout time.Duration
}

// Client is a Transport backed by a websocket connection to the hub.
type Client struct {
	opts   ClientOptions
	conn   *websocket.Conn
	log    *logging.Logger
	connID string
	policy ServerPolicy

	writeMu sync.Mutex

	mu        sync.Mutex
	boxes     map[string]*clientBox
	waiters   map[string]chan Frame
	callbacks map[string]*clientPending
	err       error

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

type clientPending struct {
	from *clientBox
	cb   Callback
}

// Dial connects to the hub, performs the connect handshake, and starts the
// read loop.
func Dial(ctx context.Context, opts ClientOptions, log *logging.Logger) (*Client, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", opts.URL, err)
	}

	c := &Client{
		opts:      opts,
		conn:      conn,
		log:       log.Sub("postoffice"),
		boxes:     make(map[string]*clientBox),
		waiters:   make(map[string]chan Frame),
		callbacks: make(map[string]*clientPending),
		done:      make(chan struct{}),
	}

	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	c.log.Category(logging.FlagConnections).
		Str("connId", c.connID).
		Str("identity", opts.Identity.String()).
		Msg("connected to post office")

	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// handshake answers the hub's challenge with a connect request.
func (c *Client) handshake() error {
	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	var challenge Frame
	if err := c.conn.ReadJSON(&challenge); err != nil {
		return fmt.Errorf("reading challenge: %w", err)
	}
	if challenge.Type != FrameTypeEvent || challenge.Event != EventChallenge {
		return fmt.Errorf("expected %s event, got type=%s event=%s", EventChallenge, challenge.Type, challenge.Event)
	}

	params := ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client: ClientInfo{
			ID:        uuid.New().String(),
			Server:    c.opts.Identity.Server,
			Character: c.opts.Identity.Character,
			Version:   c.opts.Version,
			Platform:  runtime.GOOS,
		},
	}
	if c.opts.Token != "" {
		params.Auth = &ConnectAuth{Token: c.opts.Token}
	}
	req, err := NewRequest(uuid.New().String(), MethodConnect, params)
	if err != nil {
		return fmt.Errorf("creating connect request: %w", err)
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("sending connect: %w", err)
	}

	var res Frame
	if err := c.conn.ReadJSON(&res); err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}
	if res.Type != FrameTypeResponse || res.ID != req.ID {
		return fmt.Errorf("unexpected frame during handshake: type=%s id=%s", res.Type, res.ID)
	}
	if res.OK == nil || !*res.OK {
		if res.Error != nil {
			return fmt.Errorf("connect rejected: %w", res.Error)
		}
		return errors.New("connect rejected")
	}

	var hello HelloOK
	if err := json.Unmarshal(res.Payload, &hello); err != nil {
		return fmt.Errorf("parsing hello: %w", err)
	}
	c.connID = hello.Server.ConnID
	c.policy = hello.Policy
	return nil
}

// ConnID returns the connection id assigned by the hub.
func (c *Client) ConnID() string { return c.connID }

// Identity returns the identity this client registered with.
func (c *Client) Identity() domain.Identity { return c.opts.Identity }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Register adds a mailbox on the hub under this client's identity.
func (c *Client) Register(name string, h Handler) (Dropbox, error) {
	c.mu.Lock()
	if c.isDone() {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := c.boxes[name]; ok {
		c.mu.Unlock()
		return nil, ErrMailboxTaken
	}
	b := &clientBox{client: c, name: name, handler: h}
	c.boxes[name] = b
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
	defer cancel()
	if _, err := c.request(ctx, MethodMailboxAdd, MailboxParams{Name: name}); err != nil {
		c.mu.Lock()
		delete(c.boxes, name)
		c.mu.Unlock()
		b.gate.close()
		var shape *ErrorShape
		if errors.As(err, &shape) && shape.Code == "mailbox_taken" {
			return nil, ErrMailboxTaken
		}
		return nil, fmt.Errorf("registering mailbox %q: %w", name, err)
	}

	c.log.Category(logging.FlagConnections).Str("mailbox", name).Msg("mailbox registered")
	return b, nil
}

// Close ends the connection and waits for running handlers. It must not be
// called from a handler.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	c.writeMu.Unlock()
	err := c.conn.Close()
	c.shutdown(nil)
	c.wg.Wait()
	return err
}

func (c *Client) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// shutdown records the terminal error once and fails everything pending.
func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		pending := c.callbacks
		c.callbacks = make(map[string]*clientPending)
		close(c.done)
		c.mu.Unlock()

		for _, p := range pending {
			c.resolve(p, StatusClosed, nil)
		}
		if err != nil {
			c.log.Category(logging.FlagConnections|logging.FlagError).Err(err).Msg("post office connection lost")
		}
	})
}

func (c *Client) send(f Frame) error {
	if c.isDone() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(f)
}

// request sends a request and waits for its response.
func (c *Client) request(ctx context.Context, method string, params any) (Frame, error) {
	id := uuid.New().String()
	f, err := NewRequest(id, method, params)
	if err != nil {
		return Frame{}, err
	}

	ch := make(chan Frame, 1)
	c.mu.Lock()
	c.waiters[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
	}()

	if err := c.send(f); err != nil {
		return Frame{}, err
	}

	select {
	case res := <-ch:
		if res.OK == nil || !*res.OK {
			if res.Error != nil {
				return res, res.Error
			}
			return res, fmt.Errorf("%s failed", method)
		}
		return res, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.done:
		return Frame{}, ErrClosed
	}
}

// Health asks the hub for its status.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	res, err := c.request(ctx, MethodHealth, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(res.Payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || c.isDone() {
				c.shutdown(nil)
			} else {
				c.shutdown(err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Category(logging.FlagError).Err(err).Msg("invalid frame from post office")
			continue
		}

		switch f.Type {
		case FrameTypeResponse:
			c.handleResponse(f)
		case FrameTypeEvent:
			if f.Event == EventDeliver {
				c.handleDeliver(f)
			}
		default:
			c.log.Debug().Str("type", f.Type).Msg("ignoring frame")
		}
	}
}

func (c *Client) handleResponse(f Frame) {
	c.mu.Lock()
	if ch, ok := c.waiters[f.ID]; ok {
		delete(c.waiters, f.ID)
		c.mu.Unlock()
		ch <- f
		return
	}
	p, ok := c.callbacks[f.ID]
	if ok {
		delete(c.callbacks, f.ID)
	}
	c.mu.Unlock()
	if !ok {
		// fire-and-forget post
		return
	}

	if f.OK == nil || !*f.OK {
		c.resolve(p, StatusNoRecipient, nil)
		return
	}
	var res PostResult
	if err := json.Unmarshal(f.Payload, &res); err != nil {
		c.log.Category(logging.FlagError).Err(err).Msg("invalid post result")
		c.resolve(p, StatusNoRecipient, nil)
		return
	}
	c.resolve(p, res.Status, res.Reply)
}

func (c *Client) handleDeliver(f Frame) {
	var ev DeliverEvent
	if err := json.Unmarshal(f.Payload, &ev); err != nil {
		c.log.Category(logging.FlagError).Err(err).Msg("invalid deliver event")
		return
	}
	c.mu.Lock()
	b := c.boxes[ev.Mailbox]
	c.mu.Unlock()
	if b == nil {
		c.log.Debug().Str("mailbox", ev.Mailbox).Msg("delivery for unknown mailbox")
		return
	}
	msg := ev.Message
	c.async(func() { b.gate.run(func() { b.handler(&msg) }) })
}

func (c *Client) resolve(p *clientPending, status int, reply *Message) {
	c.async(func() { p.from.gate.run(func() { p.cb(status, reply) }) })
}

func (c *Client) async(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

type clientBox struct {
	client  *Client
	name    string
	handler Handler
	gate    gate
}

func (b *clientBox) Name() string { return b.name }

func (b *clientBox) post(to Address, payload []byte, p *clientPending) error {
	if b.gate.isClosed() {
		return ErrClosed
	}
	c := b.client
	id := uuid.New().String()
	f, err := NewRequest(id, MethodPost, PostParams{
		From:      b.name,
		To:        to,
		Payload:   payload,
		WantReply: p != nil && to.Personal(),
	})
	if err != nil {
		return err
	}
	if p != nil {
		c.mu.Lock()
		c.callbacks[id] = p
		c.mu.Unlock()
	}
	if err := c.send(f); err != nil {
		if p != nil {
			c.mu.Lock()
			delete(c.callbacks, id)
			c.mu.Unlock()
		}
		return err
	}
	return nil
}

func (b *clientBox) Post(to Address, payload []byte) error {
	return b.post(to, payload, nil)
}

func (b *clientBox) PostCallback(to Address, payload []byte, cb Callback) error {
	return b.post(to, payload, &clientPending{from: b, cb: cb})
}

func (b *clientBox) PostReply(original *Message, payload []byte) error {
	if b.gate.isClosed() {
		return ErrClosed
	}
	if original == nil || original.Sender == nil {
		return ErrNoSender
	}
	f, err := NewRequest(uuid.New().String(), MethodReply, ReplyParams{
		From:    b.name,
		ReplyTo: original.ID,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	return b.client.send(f)
}

// Remove unregisters the mailbox locally, waits for running handlers, and
// tells the hub. A hub-side failure is logged, not returned.
func (b *clientBox) Remove() {
	if !b.gate.close() {
		return
	}
	c := b.client
	c.mu.Lock()
	if c.boxes[b.name] == b {
		delete(c.boxes, b.name)
	}
	c.mu.Unlock()

	f, err := NewRequest(uuid.New().String(), MethodMailboxRemove, MailboxParams{Name: b.name})
	if err == nil {
		err = c.send(f)
	}
	if err != nil && !errors.Is(err, ErrClosed) {
		c.log.Category(logging.FlagError).Err(err).Str("mailbox", b.name).Msg("mailbox remove failed")
		return
	}
	c.log.Category(logging.FlagConnections).Str("mailbox", b.name).Msg("mailbox removed")
}
