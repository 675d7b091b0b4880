package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itsvicky-dev/chatio/internal/realtime"
)

// CommandType tags an inbound command variant.
type CommandType string

const (
	CmdJoinRoom       CommandType = "join_room"
	CmdLeaveRoom      CommandType = "leave_room"
	CmdPublishMessage CommandType = "publish_message"
	CmdTypingStart    CommandType = "typing_start"
	CmdTypingStop     CommandType = "typing_stop"
	CmdCallInitiate   CommandType = "call_initiate"
	CmdCallAccept     CommandType = "call_accept"
	CmdCallReject     CommandType = "call_reject"
	CmdCallSignal     CommandType = "call_signal"
	CmdCallEnd        CommandType = "call_end"
)

// Envelope is the wire frame in both directions: a tag plus a fixed payload
// schema per tag, validated here at the boundary.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type RoomCommand struct {
	RoomID realtime.RoomID `json:"room_id"`
}

type PublishCommand struct {
	RoomID realtime.RoomID `json:"room_id"`
	Body   string          `json:"body"`
}

type CallInitiateCommand struct {
	Invitees []realtime.UserID `json:"invitees"`
	Kind     realtime.CallKind `json:"kind"`
}

type CallAcceptCommand struct {
	CallID string          `json:"call_id"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

type CallCommand struct {
	CallID string `json:"call_id"`
}

type CallSignalCommand struct {
	CallID  string          `json:"call_id"`
	ToUser  realtime.UserID `json:"to_user"`
	Payload json.RawMessage `json:"payload"`
}

// encodeEvent frames an outbound event.
func encodeEvent(ev realtime.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Type(), err)
	}
	return json.Marshal(Envelope{Type: string(ev.Type()), Data: data})
}

// errorEvent maps a refused command to the error event pushed back to the
// issuing connection only.
func errorEvent(err error) realtime.ErrorEvent {
	code := "internal"
	switch {
	case errors.Is(err, realtime.ErrNotAuthorized):
		code = "not_authorized"
	case errors.Is(err, realtime.ErrNotFound):
		code = "not_found"
	case errors.Is(err, realtime.ErrInvalidState):
		code = "invalid_state"
	case errors.Is(err, realtime.ErrNoValidParticipants):
		code = "no_valid_participants"
	case errors.Is(err, errBadRequest):
		code = "bad_request"
	}
	return realtime.ErrorEvent{Code: code, Message: err.Error()}
}

var errBadRequest = errors.New("bad request")
