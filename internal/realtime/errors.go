package realtime

import "errors"

var (
	// ErrAuthenticationFailed rejects a connection attempt before registration.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrDuplicateConnection is returned when a connection identifier is
	// registered twice. Multiple connections per user are fine; reusing an id
	// is not.
	ErrDuplicateConnection = errors.New("duplicate connection")

	// ErrNotAuthorized refuses an operation on a room the user cannot prove
	// membership of. The connection stays alive.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotFound refuses an operation referencing an unknown room, call or
	// connection.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState refuses a call operation that violates the call state
	// machine, e.g. accepting an already-ended call.
	ErrInvalidState = errors.New("invalid state")

	// ErrNoValidParticipants refuses a call initiation whose invitee set,
	// minus the initiator, is empty.
	ErrNoValidParticipants = errors.New("no valid participants")

	// ErrSendBufferFull is returned by a connection whose outbound queue is
	// full. The router treats it as a transport failure and drops the
	// connection rather than blocking the fan-out path.
	ErrSendBufferFull = errors.New("send buffer full")
)
