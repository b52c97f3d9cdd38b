// Package postoffice is the addressed mailbox transport that channels
// register with. A process registers named mailboxes and posts payloads to
// addresses; the post office routes them to every matching mailbox.
package postoffice

import (
	"errors"
	"strings"
)

// Completion status codes passed to a Callback. Non-negative values are the
// number of recipients the post reached.
const (
	StatusNoRecipient = -1
	StatusTimeout     = -2
	StatusClosed      = -3
)

// StatusReason names a negative completion status for logs and metrics.
func StatusReason(status int) string {
	switch status {
	case StatusNoRecipient:
		return "no_recipient"
	case StatusTimeout:
		return "timeout"
	case StatusClosed:
		return "closed"
	default:
		return "failed"
	}
}

var (
	// ErrMailboxTaken is returned when a process registers the same mailbox twice.
	ErrMailboxTaken = errors.New("postoffice: mailbox already registered")
	// ErrClosed is returned by operations on a closed transport or removed dropbox.
	ErrClosed = errors.New("postoffice: closed")
	// ErrNoSender is returned by PostReply when the original message carries no
	// sender to reply to.
	ErrNoSender = errors.New("postoffice: message has no sender")
)

// Address locates one or more mailboxes. Server scopes every delivery;
// Mailbox empty means the anonymous default mailbox; Character, when set,
// narrows delivery to the one process with that identity.
type Address struct {
	Server    string `json:"server"`
	Mailbox   string `json:"mailbox,omitempty"`
	Character string `json:"character,omitempty"`
}

// Personal reports whether the address targets a single recipient.
func (a Address) Personal() bool { return a.Character != "" }

// Matches reports whether a mailbox registered by (server, character) under
// name would receive a post to a.
func (a Address) Matches(server, name, character string) bool {
	if !strings.EqualFold(a.Server, server) || a.Mailbox != name {
		return false
	}
	return a.Character == "" || strings.EqualFold(a.Character, character)
}

func (a Address) String() string {
	s := a.Server + "/" + a.Mailbox
	if a.Character != "" {
		s += "@" + a.Character
	}
	return s
}

// Message is one delivered payload. Sender is nil when the transport cannot
// identify the origin.
type Message struct {
	ID      string   `json:"id"`
	Sender  *Address `json:"sender,omitempty"`
	To      Address  `json:"to"`
	Payload []byte   `json:"payload,omitempty"`
}

// Handler receives inbound messages for a mailbox. It runs on a transport
// goroutine, never on the goroutine that registered the mailbox.
type Handler func(msg *Message)

// Callback receives the completion of PostCallback. reply is nil unless the
// recipient answered with PostReply.
type Callback func(status int, reply *Message)

// Transport registers mailboxes.
type Transport interface {
	Register(name string, h Handler) (Dropbox, error)
}

// Dropbox is one registered mailbox. Remove blocks until no handler for the
// mailbox is running and guarantees none will start afterwards. Handlers
// must not call Remove on their own dropbox.
type Dropbox interface {
	Name() string
	Post(to Address, payload []byte) error
	PostCallback(to Address, payload []byte, cb Callback) error
	PostReply(original *Message, payload []byte) error
	Remove()
}

func normalizeServer(s string) string { return strings.ToLower(s) }
