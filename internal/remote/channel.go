package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/hooks"
	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/soyeahso/rcmesh/internal/metrics"
	"github.com/soyeahso/rcmesh/internal/postoffice"
	"github.com/soyeahso/rcmesh/internal/protocol"
)

// Env bundles the collaborators a Channel talks to. Hooks and Metrics may
// be nil.
type Env struct {
	Transport postoffice.Transport
	Session   Session
	Executor  Executor
	Notifier  Notifier
	Log       *logging.Logger
	Hooks     *hooks.Manager
	Metrics   *metrics.Metrics
}

// Channel owns one registered mailbox. Its identity is fixed at
// construction.
type Channel struct {
	kind      *KindInfo
	subName   string
	canonical string

	env *Env
	log *logging.Logger
	box postoffice.Dropbox

	// mu guards box against the handler while Register is in flight.
	// Personal messages that arrive before box is set park in early and
	// are acknowledged once registration returns.
	mu    sync.Mutex
	early []*postoffice.Message

	closeOnce sync.Once
}

// NewChannel registers the mailbox for (kind.Name, subName).
func NewChannel(env *Env, kind *KindInfo, subName string) (*Channel, error) {
	c := &Channel{
		kind:      kind,
		subName:   subName,
		canonical: CanonicalName(kind.Name, subName),
		env:       env,
		log:       env.Log.Sub("channel"),
	}

	box, err := env.Transport.Register(c.canonical, c.handle)
	if err != nil {
		return nil, fmt.Errorf("registering mailbox %q: %w", c.canonical, err)
	}
	c.mu.Lock()
	c.box = box
	early := c.early
	c.early = nil
	c.mu.Unlock()
	for _, in := range early {
		c.ack(box, in)
	}

	c.log.Category(logging.FlagConnections).Str("channel", c.canonical).Msg("connecting")
	env.Metrics.ChannelOpened(kind.Name)
	c.emit(hooks.EventChannelJoined, map[string]any{"channel": c.canonical, "kind": kind.Name})
	return c, nil
}

// Name is the kind name, e.g. "group".
func (c *Channel) Name() string { return c.kind.Name }

// SubName disambiguates instances of a kind, e.g. the group leader.
func (c *Channel) SubName() string { return c.subName }

// CanonicalName is the mailbox name.
func (c *Channel) CanonicalName() string { return c.canonical }

// Kind returns the channel's kind descriptor.
func (c *Channel) Kind() *KindInfo { return c.kind }

// Close unregisters the mailbox. It is safe to call more than once; when it
// returns no inbound handler is running or will run.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		box := c.box
		c.mu.Unlock()
		if box != nil {
			box.Remove()
		}
		c.log.Category(logging.FlagConnections).Str("channel", c.canonical).Msg("disconnecting")
		c.env.Metrics.ChannelClosed(c.kind.Name)
		c.emit(hooks.EventChannelLeft, map[string]any{"channel": c.canonical, "kind": c.kind.Name})
	})
}

func (c *Channel) address() postoffice.Address {
	return postoffice.Address{Server: c.env.Session.Server(), Mailbox: c.canonical}
}

// SendBroadcast posts command to every subscriber of the channel. When
// includeSelf is false the sending process does not execute it.
func (c *Channel) SendBroadcast(command string, includeSelf bool) error {
	c.echo(c.canonical, command)
	to := c.address()
	msg := protocol.Broadcast(command, includeSelf)

	c.log.Category(logging.FlagSend).
		Str("channel", c.canonical).
		Bool("includeSelf", includeSelf).
		Str("command", command).
		Msg("broadcast")
	c.env.Metrics.MessagePosted(protocol.KindBroadcast.String())
	c.emit(hooks.EventMessageSending, map[string]any{
		"channel": c.canonical, "kind": protocol.KindBroadcast.String(), "command": command,
	})

	if err := c.box.Post(to, msg.Marshal()); err != nil {
		return fmt.Errorf("posting to %s: %w", c.canonical, err)
	}
	return nil
}

// SendPersonal posts command to the one subscriber named recipient and
// reports a failure to the user if it is not acknowledged. There is no retry.
func (c *Channel) SendPersonal(recipient, command string) error {
	c.echo(recipient, command)
	to := c.address()
	to.Character = recipient
	msg := protocol.Personal(command)

	c.log.Category(logging.FlagSend).
		Str("channel", c.canonical).
		Str("recipient", recipient).
		Str("command", command).
		Msg("personal")
	c.env.Metrics.MessagePosted(protocol.KindPersonal.String())
	c.emit(hooks.EventMessageSending, map[string]any{
		"channel": c.canonical, "kind": protocol.KindPersonal.String(), "recipient": recipient, "command": command,
	})

	err := c.box.PostCallback(to, msg.Marshal(), func(status int, reply *postoffice.Message) {
		c.personalResult(recipient, status, reply)
	})
	if err != nil {
		return fmt.Errorf("posting to %s on %s: %w", recipient, c.canonical, err)
	}
	return nil
}

func (c *Channel) personalResult(recipient string, status int, reply *postoffice.Message) {
	if status < 0 {
		reason := postoffice.StatusReason(status)
		c.log.Category(logging.FlagError).
			Str("channel", c.canonical).
			Str("recipient", recipient).
			Int("status", status).
			Msg("personal message failed")
		c.env.Metrics.DeliveryFailed(reason)
		c.emit(hooks.EventDeliveryFailed, map[string]any{
			"channel": c.canonical, "recipient": recipient, "status": status, "reason": reason,
		})
		c.env.Notifier.Notify(fmt.Sprintf("Failed sending command to %s on %s.", recipient, c.canonical))
		return
	}

	if reply == nil {
		return
	}
	ack, err := protocol.Unmarshal(reply.Payload)
	if err != nil || ack.Kind != protocol.KindAck {
		c.log.Category(logging.FlagError).Err(err).Str("channel", c.canonical).Msg("unexpected reply payload")
		return
	}
	c.env.Metrics.Ack()
	c.log.Debug().Str("channel", c.canonical).Str("recipient", recipient).Msg("delivered")
}

// handle is the mailbox handler. It runs on a transport goroutine.
func (c *Channel) handle(in *postoffice.Message) {
	if c.env.Session.State() != domain.StateInGame {
		return
	}

	msg, err := protocol.Unmarshal(in.Payload)
	if err != nil {
		c.log.Category(logging.FlagError).Err(err).Str("channel", c.canonical).Str("id", in.ID).Msg("dropping undecodable message")
		return
	}

	from := ""
	if in.Sender != nil {
		from = in.Sender.Character
	}
	c.log.Category(logging.FlagReceive).
		Str("channel", c.canonical).
		Str("kind", msg.Kind.String()).
		Str("from", from).
		Str("command", msg.Command).
		Msg("received")

	switch msg.Kind {
	case protocol.KindBroadcast:
		if !msg.IncludeSelf && c.fromSelf(in) {
			return
		}
		c.dispatch(msg, from)

	case protocol.KindPersonal:
		c.dispatch(msg, from)
		c.mu.Lock()
		box := c.box
		if box == nil {
			c.early = append(c.early, in)
		}
		c.mu.Unlock()
		if box != nil {
			c.ack(box, in)
		}

	case protocol.KindAck:
		// acks only resolve PostCallback
	}
}

func (c *Channel) ack(box postoffice.Dropbox, in *postoffice.Message) {
	if err := box.PostReply(in, protocol.Ack().Marshal()); err != nil {
		c.log.Category(logging.FlagError).Err(err).Str("channel", c.canonical).Msg("ack failed")
	}
}

func (c *Channel) dispatch(msg protocol.Message, from string) {
	c.env.Metrics.MessageReceived(msg.Kind.String())
	c.emit(hooks.EventMessageReceived, map[string]any{
		"channel": c.canonical, "kind": msg.Kind.String(), "from": from, "command": msg.Command,
	})
	c.env.Executor.Execute(msg.Command)
}

func (c *Channel) fromSelf(in *postoffice.Message) bool {
	s := in.Sender
	if s == nil || s.Character == "" {
		return false
	}
	return strings.EqualFold(s.Character, c.env.Session.Character()) &&
		strings.EqualFold(s.Server, c.env.Session.Server())
}

func (c *Channel) echo(target, command string) {
	c.env.Notifier.Notify(fmt.Sprintf("[ -->(%s) ] %s", target, command))
}

func (c *Channel) emit(event string, data map[string]any) {
	if c.env.Hooks != nil {
		c.env.Hooks.EmitAsync(context.Background(), event, data)
	}
}
