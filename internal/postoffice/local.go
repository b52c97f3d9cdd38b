package postoffice

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/logging"
)

// Local is an in-process post office. Several identities share one Local,
// each through its own Endpoint. Deliveries run on their own goroutines.
type Local struct {
	log          *logging.Logger
	replyTimeout time.Duration

	mu      sync.Mutex
	boxes   map[string][]*localBox // normalized server → mailboxes on it
	pending map[string]*pendingReply
	closed  bool

	wg sync.WaitGroup
}

// LocalOption configures a Local.
type LocalOption func(*Local)

// WithReplyTimeout resolves personal posts with StatusTimeout when no reply
// arrives within d. Zero disables the timeout.
func WithReplyTimeout(d time.Duration) LocalOption {
	return func(l *Local) { l.replyTimeout = d }
}

// NewLocal creates an empty in-process post office.
func NewLocal(log *logging.Logger, opts ...LocalOption) *Local {
	l := &Local{
		log:     log.Sub("postoffice"),
		boxes:   make(map[string][]*localBox),
		pending: make(map[string]*pendingReply),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Endpoint returns the transport used by the process with the given identity.
func (l *Local) Endpoint(id domain.Identity) *LocalEndpoint {
	return &LocalEndpoint{office: l, id: id}
}

// Drain waits until every delivery and callback started so far has returned.
func (l *Local) Drain() { l.wg.Wait() }

// Close resolves outstanding personal posts with StatusClosed and refuses
// further registrations.
func (l *Local) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	pending := l.pending
	l.pending = make(map[string]*pendingReply)
	l.mu.Unlock()

	for _, p := range pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		l.resolve(p, StatusClosed, nil)
	}
	l.wg.Wait()
}

// Mailboxes returns the number of registered mailboxes.
func (l *Local) Mailboxes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, b := range l.boxes {
		n += len(b)
	}
	return n
}

// LocalEndpoint is one identity's view of a Local.
type LocalEndpoint struct {
	office *Local
	id     domain.Identity
}

// Identity returns the identity this endpoint posts as.
func (e *LocalEndpoint) Identity() domain.Identity { return e.id }

// Register adds a mailbox named name for this endpoint's identity.
func (e *LocalEndpoint) Register(name string, h Handler) (Dropbox, error) {
	l := e.office
	server := normalizeServer(e.id.Server)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	for _, b := range l.boxes[server] {
		if b.name == name && b.owner == e {
			return nil, ErrMailboxTaken
		}
	}
	b := &localBox{owner: e, name: name, handler: h}
	l.boxes[server] = append(l.boxes[server], b)
	l.log.Category(logging.FlagConnections).Str("identity", e.id.String()).Str("mailbox", name).Msg("mailbox registered")
	return b, nil
}

type localBox struct {
	owner   *LocalEndpoint
	name    string
	handler Handler
	gate    gate
}

type pendingReply struct {
	from  *localBox
	cb    Callback
	timer *time.Timer
	once  sync.Once
}

func (b *localBox) Name() string { return b.name }

func (b *localBox) address() *Address {
	return &Address{Server: b.owner.id.Server, Mailbox: b.name, Character: b.owner.id.Character}
}

func (b *localBox) newMessage(to Address, payload []byte) *Message {
	return &Message{ID: uuid.New().String(), Sender: b.address(), To: to, Payload: payload}
}

func (b *localBox) Post(to Address, payload []byte) error {
	if b.gate.isClosed() {
		return ErrClosed
	}
	b.owner.office.deliver(b.newMessage(to, payload))
	return nil
}

func (b *localBox) PostCallback(to Address, payload []byte, cb Callback) error {
	if b.gate.isClosed() {
		return ErrClosed
	}
	l := b.owner.office
	msg := b.newMessage(to, payload)

	if !to.Personal() {
		n := l.deliver(msg)
		l.async(func() { b.gate.run(func() { cb(n, nil) }) })
		return nil
	}

	p := &pendingReply{from: b, cb: cb}
	if l.replyTimeout > 0 {
		p.timer = time.AfterFunc(l.replyTimeout, func() {
			if l.take(msg.ID) != nil {
				l.resolve(p, StatusTimeout, nil)
			}
		})
	}
	l.mu.Lock()
	l.pending[msg.ID] = p
	l.mu.Unlock()

	if n := l.deliver(msg); n == 0 && l.take(msg.ID) != nil {
		if p.timer != nil {
			p.timer.Stop()
		}
		l.resolve(p, StatusNoRecipient, nil)
	}
	return nil
}

func (b *localBox) PostReply(original *Message, payload []byte) error {
	if b.gate.isClosed() {
		return ErrClosed
	}
	if original == nil || original.Sender == nil {
		return ErrNoSender
	}
	l := b.owner.office
	p := l.take(original.ID)
	if p == nil {
		l.log.Debug().Str("replyTo", original.ID).Msg("reply has no pending post")
		return nil
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	l.resolve(p, 1, b.newMessage(*original.Sender, payload))
	return nil
}

// Remove unregisters the mailbox and waits for running handlers.
func (b *localBox) Remove() {
	if !b.gate.close() {
		return
	}
	l := b.owner.office
	server := normalizeServer(b.owner.id.Server)
	l.mu.Lock()
	boxes := l.boxes[server]
	for i, other := range boxes {
		if other == b {
			l.boxes[server] = append(boxes[:i:i], boxes[i+1:]...)
			break
		}
	}
	if len(l.boxes[server]) == 0 {
		delete(l.boxes, server)
	}
	l.mu.Unlock()
	l.log.Category(logging.FlagConnections).Str("identity", b.owner.id.String()).Str("mailbox", b.name).Msg("mailbox removed")
}

// deliver hands msg to every matching mailbox and returns how many matched.
func (l *Local) deliver(msg *Message) int {
	l.mu.Lock()
	var targets []*localBox
	for _, b := range l.boxes[normalizeServer(msg.To.Server)] {
		if msg.To.Matches(b.owner.id.Server, b.name, b.owner.id.Character) {
			targets = append(targets, b)
		}
	}
	l.mu.Unlock()

	for _, b := range targets {
		l.async(func() { b.gate.run(func() { b.handler(msg) }) })
	}
	return len(targets)
}

func (l *Local) take(id string) *pendingReply {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pending[id]
	if !ok {
		return nil
	}
	delete(l.pending, id)
	return p
}

// resolve invokes the callback once, through the sending mailbox's gate so it
// never fires after that mailbox has been removed.
func (l *Local) resolve(p *pendingReply, status int, reply *Message) {
	p.once.Do(func() {
		l.async(func() { p.from.gate.run(func() { p.cb(status, reply) }) })
	})
}

func (l *Local) async(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}
