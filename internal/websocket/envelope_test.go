package websocket

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itsvicky-dev/chatio/internal/realtime"
)

func TestEncodeEvent(t *testing.T) {
	req := require.New(t)

	frame, err := encodeEvent(realtime.TypingChanged{
		RoomID:   "general",
		UserID:   "alice",
		IsTyping: true,
	})
	req.NoError(err)

	var env Envelope
	req.NoError(json.Unmarshal(frame, &env))
	req.Equal("typing_changed", env.Type)

	var payload realtime.TypingChanged
	req.NoError(json.Unmarshal(env.Data, &payload))
	req.Equal(realtime.RoomID("general"), payload.RoomID)
	req.Equal(realtime.UserID("alice"), payload.UserID)
	req.True(payload.IsTyping)
}

func TestErrorEventCodes(t *testing.T) {
	req := require.New(t)

	cases := map[string]error{
		"not_authorized":        realtime.ErrNotAuthorized,
		"not_found":             realtime.ErrNotFound,
		"invalid_state":         realtime.ErrInvalidState,
		"no_valid_participants": realtime.ErrNoValidParticipants,
		"bad_request":           errBadRequest,
		"internal":              fmt.Errorf("database on fire"),
	}
	for code, err := range cases {
		ev := errorEvent(fmt.Errorf("context: %w", err))
		req.Equal(code, ev.Code, "for error %v", err)
		req.NotEmpty(ev.Message)
	}
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	req := require.New(t)

	var cmd RoomCommand
	req.ErrorIs(decode(nil, &cmd), errBadRequest)
	req.ErrorIs(decode(json.RawMessage(`{broken`), &cmd), errBadRequest)

	req.NoError(decode(json.RawMessage(`{"room_id":"general"}`), &cmd))
	req.Equal(realtime.RoomID("general"), cmd.RoomID)
}
