// Package protocol frames channel messages for the mailbox transport.
//
// The encoding is the protobuf wire format, written field by field:
//
//	1: kind        varint
//	2: command     bytes
//	3: includeSelf varint (bool)
//
// Unknown fields are skipped so newer peers can add fields.
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Kind is the routing discriminator of a channel message.
type Kind int32

const (
	KindBroadcast Kind = 1
	KindPersonal  Kind = 2
	KindAck       Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindBroadcast:
		return "broadcast"
	case KindPersonal:
		return "personal"
	case KindAck:
		return "ack"
	default:
		return fmt.Sprintf("kind(%d)", int32(k))
	}
}

func (k Kind) valid() bool {
	return k == KindBroadcast || k == KindPersonal || k == KindAck
}

const (
	fieldKind        protowire.Number = 1
	fieldCommand     protowire.Number = 2
	fieldIncludeSelf protowire.Number = 3
)

var (
	// ErrUnknownKind is returned when a message carries no kind or one this
	// build does not understand.
	ErrUnknownKind = errors.New("protocol: unknown message kind")
	// ErrMalformed is returned for truncated or otherwise invalid input.
	ErrMalformed = errors.New("protocol: malformed message")
)

// Message is one command carried over a channel.
type Message struct {
	Kind        Kind
	Command     string
	IncludeSelf bool
}

// Broadcast builds a fan-out message.
func Broadcast(command string, includeSelf bool) Message {
	return Message{Kind: KindBroadcast, Command: command, IncludeSelf: includeSelf}
}

// Personal builds a unicast message that expects an Ack.
func Personal(command string) Message {
	return Message{Kind: KindPersonal, Command: command}
}

// Ack builds the reply to a personal message.
func Ack() Message {
	return Message{Kind: KindAck}
}

// Marshal encodes m. Zero-valued optional fields are omitted.
func (m Message) Marshal() []byte {
	b := make([]byte, 0, len(m.Command)+8)
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind))
	if m.Command != "" {
		b = protowire.AppendTag(b, fieldCommand, protowire.BytesType)
		b = protowire.AppendString(b, m.Command)
	}
	if m.IncludeSelf {
		b = protowire.AppendTag(b, fieldIncludeSelf, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}

// Unmarshal decodes a message produced by Marshal.
func Unmarshal(b []byte) (Message, error) {
	var m Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: kind: %v", ErrMalformed, protowire.ParseError(n))
			}
			m.Kind = Kind(int32(v))
			b = b[n:]
		case num == fieldCommand && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: command: %v", ErrMalformed, protowire.ParseError(n))
			}
			m.Command = v
			b = b[n:]
		case num == fieldIncludeSelf && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: includeSelf: %v", ErrMalformed, protowire.ParseError(n))
			}
			m.IncludeSelf = protowire.DecodeBool(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !m.Kind.valid() {
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownKind, int32(m.Kind))
	}
	return m, nil
}
