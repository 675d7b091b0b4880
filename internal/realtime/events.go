package realtime

import (
	"encoding/json"
	"time"
)

type (
	// ConnID identifies one live transport session.
	ConnID string
	// UserID identifies a user; one user may own several connections.
	UserID string
	// RoomID scopes message fan-out and membership.
	RoomID string
)

// Message is the delivery view of an already-persisted message record. The
// core routes it, it never stores it. ID is a ULID, so it doubles as a
// timestamp-derived sequence marker within a room.
type Message struct {
	ID        string    `json:"id"`
	RoomID    RoomID    `json:"room_id"`
	SenderID  UserID    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType tags an outbound event variant.
type EventType string

const (
	EventMessageDelivered EventType = "message_delivered"
	EventPresenceChanged  EventType = "presence_changed"
	EventTypingChanged    EventType = "typing_changed"
	EventIncomingCall     EventType = "incoming_call"
	EventCallStateChanged EventType = "call_state_changed"
	EventCallSignal       EventType = "call_signal"
	EventError            EventType = "error"
)

// Event is one outbound event pushed to connections. Each variant carries a
// fixed schema; the transport encodes the tag plus the variant fields.
type Event interface {
	Type() EventType
}

type MessageDelivered struct {
	RoomID  RoomID  `json:"room_id"`
	Message Message `json:"message"`
}

func (MessageDelivered) Type() EventType { return EventMessageDelivered }

type PresenceChanged struct {
	UserID UserID `json:"user_id"`
	Online bool   `json:"online"`
}

func (PresenceChanged) Type() EventType { return EventPresenceChanged }

type TypingChanged struct {
	RoomID   RoomID `json:"room_id"`
	UserID   UserID `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

func (TypingChanged) Type() EventType { return EventTypingChanged }

type IncomingCall struct {
	CallID   string   `json:"call_id"`
	FromUser UserID   `json:"from_user"`
	Kind     CallKind `json:"kind"`
}

func (IncomingCall) Type() EventType { return EventIncomingCall }

type CallStateChanged struct {
	CallID  string          `json:"call_id"`
	State   CallState       `json:"state"`
	UserID  UserID          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (CallStateChanged) Type() EventType { return EventCallStateChanged }

// CallSignal relays an opaque offer/answer/candidate payload point-to-point
// between two call participants. It is never broadcast.
type CallSignal struct {
	CallID   string          `json:"call_id"`
	FromUser UserID          `json:"from_user"`
	Payload  json.RawMessage `json:"payload"`
}

func (CallSignal) Type() EventType { return EventCallSignal }

// ErrorEvent reports a refused command back to the issuing connection only.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorEvent) Type() EventType { return EventError }
