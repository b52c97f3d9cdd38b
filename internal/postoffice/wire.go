package postoffice

import "encoding/json"

// Frame types for the WebSocket protocol between clients and the hub.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Methods and events spoken on the wire.
const (
	MethodConnect       = "connect"
	MethodMailboxAdd    = "mailbox.add"
	MethodMailboxRemove = "mailbox.remove"
	MethodPost          = "post"
	MethodReply         = "reply"
	MethodHealth        = "health"

	EventChallenge = "connect.challenge"
	EventDeliver   = "deliver"
)

// Frame is the base envelope for all WebSocket messages.
// The Type field discriminates between request, response, and event frames.
type Frame struct {
	Type string `json:"type"`

	// Request fields
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response fields
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Event fields
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	// Error (response only)
	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the standard error format in response frames.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorShape) Error() string { return e.Code + ": " + e.Message }

// ConnectParams are sent by the client in the initial "connect" request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// ClientInfo identifies the connecting process. Server and Character are
// the identity its mailboxes are registered under.
type ClientInfo struct {
	ID        string `json:"id"`
	Server    string `json:"server"`
	Character string `json:"character"`
	Version   string `json:"version"`
	Platform  string `json:"platform"`
}

// ConnectAuth carries credentials in the connect request.
type ConnectAuth struct {
	Token string `json:"token,omitempty"`
}

// HelloOK is the hub's response payload after successful authentication.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo identifies the hub.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features advertises available RPC methods and events.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy communicates protocol limits to the client.
type ServerPolicy struct {
	MaxPayload     int `json:"maxPayload"`
	ReplyTimeoutMs int `json:"replyTimeoutMs"`
}

// MailboxParams names a mailbox for mailbox.add and mailbox.remove.
type MailboxParams struct {
	Name string `json:"name"`
}

// PostParams is sent with a post request. From is the sending mailbox.
// When WantReply is set on a personal post the response is held until the
// recipient replies or the hub times out.
type PostParams struct {
	From      string  `json:"from"`
	To        Address `json:"to"`
	Payload   []byte  `json:"payload,omitempty"`
	WantReply bool    `json:"wantReply,omitempty"`
}

// PostResult is the response payload of a post request.
type PostResult struct {
	Status int      `json:"status"`
	Reply  *Message `json:"reply,omitempty"`
}

// ReplyParams answers a delivered message.
type ReplyParams struct {
	From    string `json:"from"`
	ReplyTo string `json:"replyTo"`
	Payload []byte `json:"payload,omitempty"`
}

// DeliverEvent is pushed to a client for each message addressed to one of
// its mailboxes.
type DeliverEvent struct {
	Mailbox string  `json:"mailbox"`
	Message Message `json:"message"`
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		OK:      &ok,
		Payload: raw,
	}, nil
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id string, errShape ErrorShape) Frame {
	ok := false
	return Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: &errShape,
	}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: raw,
		Seq:     seq,
	}, nil
}

// ProtocolVersion is the wire protocol version.
const ProtocolVersion = 1
