package gateway

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/soyeahso/rcmesh/internal/metrics"
	"github.com/soyeahso/rcmesh/internal/postoffice"
)

// boxKey identifies a mailbox name on one game server.
type boxKey struct {
	server string
	name   string
}

func keyFor(server, name string) boxKey {
	return boxKey{server: strings.ToLower(server), name: name}
}

// heldPost is a personal post waiting for the recipient's reply. Only a
// connection it was delivered to may answer it.
type heldPost struct {
	from    *Client
	reqID   string
	sender  *postoffice.Address
	targets map[string]struct{} // connID
	timer   *time.Timer
}

// Exchange routes posts between connected clients by (server, mailbox,
// character).
type Exchange struct {
	mu      sync.Mutex
	boxes   map[boxKey]map[string]*Client // connID → client
	held    map[string]*heldPost          // hub message id → post
	count   int
	seq     atomic.Int64
	timeout time.Duration

	log     *logging.Logger
	metrics *metrics.Metrics
}

// NewExchange creates an empty exchange. A zero timeout holds personal posts
// until the recipient replies or the sender disconnects.
func NewExchange(timeout time.Duration, m *metrics.Metrics, log *logging.Logger) *Exchange {
	return &Exchange{
		boxes:   make(map[boxKey]map[string]*Client),
		held:    make(map[string]*heldPost),
		timeout: timeout,
		log:     log,
		metrics: m,
	}
}

// Mailboxes returns the number of registered mailboxes across all clients.
func (x *Exchange) Mailboxes() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.count
}

// Add registers mailbox name for c. It fails with ErrMailboxTaken when c
// already holds that name.
func (x *Exchange) Add(c *Client, name string) error {
	if !c.addMailbox(name) {
		return postoffice.ErrMailboxTaken
	}
	k := keyFor(c.Info.Server, name)
	x.mu.Lock()
	set := x.boxes[k]
	if set == nil {
		set = make(map[string]*Client)
		x.boxes[k] = set
	}
	set[c.ConnID] = c
	x.count++
	n := x.count
	x.mu.Unlock()

	x.metrics.SetMailboxes(n)
	x.log.Category(logging.FlagConnections).
		Str("connId", c.ConnID).
		Str("server", c.Info.Server).
		Str("mailbox", name).
		Msg("mailbox registered")
	return nil
}

// Remove unregisters mailbox name of c. Unknown names are ignored.
func (x *Exchange) Remove(c *Client, name string) {
	if !c.removeMailbox(name) {
		return
	}
	x.unlink(c, name)
	x.log.Category(logging.FlagConnections).
		Str("connId", c.ConnID).
		Str("mailbox", name).
		Msg("mailbox removed")
}

func (x *Exchange) unlink(c *Client, name string) {
	k := keyFor(c.Info.Server, name)
	x.mu.Lock()
	if set := x.boxes[k]; set != nil {
		if _, ok := set[c.ConnID]; ok {
			delete(set, c.ConnID)
			x.count--
		}
		if len(set) == 0 {
			delete(x.boxes, k)
		}
	}
	n := x.count
	x.mu.Unlock()
	x.metrics.SetMailboxes(n)
}

// Drop forgets every mailbox and held post of a disconnected client.
func (x *Exchange) Drop(c *Client) {
	for _, name := range c.Mailboxes() {
		c.removeMailbox(name)
		x.unlink(c, name)
	}
	x.mu.Lock()
	for id, h := range x.held {
		if h.from == c {
			if h.timer != nil {
				h.timer.Stop()
			}
			delete(x.held, id)
		}
	}
	x.mu.Unlock()
}

// targets returns the clients whose mailbox matches to.
func (x *Exchange) targets(to postoffice.Address) []*Client {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []*Client
	for _, c := range x.boxes[keyFor(to.Server, to.Mailbox)] {
		if to.Matches(c.Info.Server, to.Mailbox, c.Info.Character) {
			out = append(out, c)
		}
	}
	return out
}

// Post delivers a post from c and answers request reqID. Broadcasts and
// fire-and-forget posts are answered at once with the recipient count; a
// personal post that wants a reply is answered when the reply arrives, or
// with StatusNoRecipient or StatusTimeout. Delivered messages carry a
// hub-assigned id, so request ids only need to be unique per connection.
func (x *Exchange) Post(c *Client, reqID string, p postoffice.PostParams) {
	msg := postoffice.Message{
		ID:      uuid.NewString(),
		Sender:  c.Address(p.From),
		To:      p.To,
		Payload: p.Payload,
	}
	kind := "broadcast"
	if p.To.Personal() {
		kind = "personal"
	}
	x.metrics.MessagePosted(kind)

	targets := x.targets(p.To)
	hold := p.WantReply && p.To.Personal() && len(targets) > 0
	if hold {
		h := &heldPost{from: c, reqID: reqID, sender: msg.Sender, targets: make(map[string]struct{}, len(targets))}
		for _, t := range targets {
			h.targets[t.ConnID] = struct{}{}
		}
		if x.timeout > 0 {
			h.timer = time.AfterFunc(x.timeout, func() { x.expire(msg.ID) })
		}
		x.mu.Lock()
		x.held[msg.ID] = h
		x.mu.Unlock()
	}

	delivered := 0
	for _, t := range targets {
		err := t.SendEvent(postoffice.EventDeliver, postoffice.DeliverEvent{Mailbox: p.To.Mailbox, Message: msg}, x.seq.Add(1))
		if err != nil {
			x.log.Category(logging.FlagError).Err(err).Str("connId", t.ConnID).Msg("deliver failed")
			continue
		}
		delivered++
	}
	x.log.Category(logging.FlagSend).
		Str("from", msg.Sender.String()).
		Str("to", p.To.String()).
		Int("recipients", delivered).
		Msg("post")

	if hold && delivered > 0 {
		return
	}
	if hold {
		x.take(msg.ID)
	}
	if delivered == 0 && p.To.Personal() {
		x.metrics.DeliveryFailed("no_recipient")
		x.respond(c, reqID, postoffice.PostResult{Status: postoffice.StatusNoRecipient})
		return
	}
	x.respond(c, reqID, postoffice.PostResult{Status: delivered})
}

// Reply answers a held post. Replies to unknown or expired posts, and
// replies from a connection the post was not delivered to, are dropped.
func (x *Exchange) Reply(c *Client, reqID string, p postoffice.ReplyParams) {
	h := x.takeFor(p.ReplyTo, c.ConnID)
	if h == nil {
		x.log.Debug().Str("replyTo", p.ReplyTo).Str("connId", c.ConnID).Msg("reply has no held post")
		return
	}
	x.metrics.Ack()
	x.respond(h.from, h.reqID, postoffice.PostResult{
		Status: 1,
		Reply: &postoffice.Message{
			ID:      reqID,
			Sender:  c.Address(p.From),
			To:      *h.sender,
			Payload: p.Payload,
		},
	})
}

func (x *Exchange) expire(id string) {
	h := x.take(id)
	if h == nil {
		return
	}
	x.metrics.DeliveryFailed("timeout")
	x.respond(h.from, h.reqID, postoffice.PostResult{Status: postoffice.StatusTimeout})
}

func (x *Exchange) take(id string) *heldPost {
	return x.takeFor(id, "")
}

// takeFor removes the held post id if connID is one of its targets. An
// empty connID matches any post.
func (x *Exchange) takeFor(id, connID string) *heldPost {
	x.mu.Lock()
	defer x.mu.Unlock()
	h, ok := x.held[id]
	if !ok {
		return nil
	}
	if connID != "" {
		if _, ok := h.targets[connID]; !ok {
			return nil
		}
	}
	delete(x.held, id)
	if h.timer != nil {
		h.timer.Stop()
	}
	return h
}

func (x *Exchange) respond(c *Client, reqID string, res postoffice.PostResult) {
	if err := c.Respond(reqID, res); err != nil {
		x.log.Category(logging.FlagError).Err(err).Str("connId", c.ConnID).Msg("post response failed")
	}
}
