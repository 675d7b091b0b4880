package database

import (
	"context"

	"github.com/itsvicky-dev/chatio/internal/realtime"
)

// Member is one durable room member, as the persistence layer knows them.
type Member struct {
	UserID   realtime.UserID `json:"user_id"`
	Username string          `json:"username"`
}

type MembershipRepository interface {
	// IsRoomMember is the authorization pre-check the realtime core trusts
	// before honoring a subscription.
	IsRoomMember(ctx context.Context, userID realtime.UserID, roomID realtime.RoomID) (bool, error)
	GetRoomMembers(ctx context.Context, roomID realtime.RoomID) ([]Member, error)
}

type MessageRepository interface {
	// SaveMessage persists an inbound message and returns the delivery
	// reference the router fans out. The returned ID is a ULID, so message
	// refs within a room sort by creation time.
	SaveMessage(ctx context.Context, roomID realtime.RoomID, senderID realtime.UserID, body string) (realtime.Message, error)
	LoadRecentMessages(ctx context.Context, roomID realtime.RoomID, limit int) ([]realtime.Message, error)
}

type CallRepository interface {
	// SaveCallRecord archives a terminal call snapshot, fire-and-forget
	// from the coordinator's point of view.
	SaveCallRecord(ctx context.Context, rec realtime.CallRecord) error
}

type Database interface {
	MembershipRepository
	MessageRepository
	CallRepository
	Close() error
}
