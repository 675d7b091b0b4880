package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Authorizer is the persistence collaborator's membership pre-check. The
// core never decides room authorization itself.
type Authorizer interface {
	IsRoomMember(ctx context.Context, user UserID, room RoomID) (bool, error)
}

// CallArchiver receives terminal call records, fire-and-forget.
type CallArchiver interface {
	ArchiveCall(ctx context.Context, rec CallRecord) error
}

// LastSeenStore persists last-seen timestamps outside this process, so
// presence queries survive restarts. May be nil.
type LastSeenStore interface {
	Touch(ctx context.Context, user UserID, at time.Time) error
}

// Config tunes the core. Zero values fall back to sane defaults.
type Config struct {
	TypingTTL   time.Duration
	RingTimeout time.Duration
}

// Core is one process's (or shard's) messaging core: connection registry,
// room membership index, presence tracker, typing store, fan-out router and
// call coordinator, wired together and injected into the transport rather
// than living in package-level state.
type Core struct {
	registry *Registry
	rooms    *Rooms
	presence *Presence
	router   *Router
	typing   *Typing
	calls    *Calls
	authz    Authorizer
	lastSeen LastSeenStore
	log      zerolog.Logger
}

func New(cfg Config, authz Authorizer, archiver CallArchiver, lastSeen LastSeenStore, log zerolog.Logger) *Core {
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = 45 * time.Second
	}

	presence := NewPresence(log)
	registry := NewRegistry(presence, log)
	rooms := NewRooms()
	router := NewRouter(registry, rooms, log)

	c := &Core{
		registry: registry,
		rooms:    rooms,
		presence: presence,
		router:   router,
		authz:    authz,
		lastSeen: lastSeen,
		log:      log.With().Str("component", "core").Logger(),
	}
	c.typing = NewTyping(cfg.TypingTTL, func(room RoomID, user UserID, isTyping bool) {
		router.DeliverToRoomExcept(room, user, TypingChanged{RoomID: room, UserID: user, IsTyping: isTyping})
	}, log)

	var archive func(CallRecord)
	if archiver != nil {
		archive = func(rec CallRecord) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := archiver.ArchiveCall(ctx, rec); err != nil {
				c.log.Warn().Err(err).Str("call", rec.ID).Msg("call archive failed")
			}
		}
	}
	c.calls = NewCalls(router, cfg.RingTimeout, archive, log)

	router.OnDrop(c.Disconnect)
	presence.Notify(c.handlePresence)
	return c
}

// Run drives the presence tracker until the context is cancelled. Must be
// running for presence events to flow.
func (c *Core) Run(ctx context.Context) {
	c.presence.Run(ctx)
}

// Connect registers an authenticated connection.
func (c *Core) Connect(conn Conn) error {
	return c.registry.Register(conn)
}

// Disconnect tears a connection down: every disconnect path, normal or not,
// funnels here. Idempotent. Membership is removed before unregistration so
// the offline transition carries the rooms the user was visible in.
func (c *Core) Disconnect(id ConnID) {
	rooms := c.rooms.RemoveConnection(id)
	conn, ok := c.registry.Unregister(id, rooms)
	if !ok {
		return
	}
	conn.Close()
}

// JoinRoom subscribes the connection after proving membership against the
// persistence collaborator.
func (c *Core) JoinRoom(ctx context.Context, id ConnID, room RoomID) error {
	conn, ok := c.registry.Connection(id)
	if !ok {
		return ErrNotFound
	}
	member, err := c.authz.IsRoomMember(ctx, conn.UserID(), room)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotAuthorized
	}
	c.rooms.Subscribe(id, room)
	return nil
}

// LeaveRoom unsubscribes the connection. No-op if it was not subscribed.
func (c *Core) LeaveRoom(id ConnID, room RoomID) {
	c.rooms.Unsubscribe(id, room)
}

// PublishMessage fans an already-persisted message out to the room. The
// publishing connection must hold a live subscription; the publish reports
// success once the membership snapshot has been iterated, regardless of
// individual push failures.
func (c *Core) PublishMessage(id ConnID, msg Message) error {
	if _, ok := c.registry.Connection(id); !ok {
		return ErrNotFound
	}
	if !c.rooms.IsSubscribed(id, msg.RoomID) {
		return ErrNotAuthorized
	}
	c.registry.Touch(id)
	c.router.DeliverToRoom(msg.RoomID, MessageDelivered{RoomID: msg.RoomID, Message: msg})
	return nil
}

// StartTyping begins or refreshes the connection owner's typing signal.
func (c *Core) StartTyping(id ConnID, room RoomID) error {
	conn, ok := c.registry.Connection(id)
	if !ok {
		return ErrNotFound
	}
	if !c.rooms.IsSubscribed(id, room) {
		return ErrNotAuthorized
	}
	c.typing.Start(room, conn.UserID())
	return nil
}

// StopTyping clears the signal. Safe when not typing.
func (c *Core) StopTyping(id ConnID, room RoomID) error {
	conn, ok := c.registry.Connection(id)
	if !ok {
		return ErrNotFound
	}
	c.typing.Stop(room, conn.UserID())
	return nil
}

// InitiateCall starts a call from the connection's owner to the invitees.
func (c *Core) InitiateCall(id ConnID, invitees []UserID, kind CallKind) (string, error) {
	conn, ok := c.registry.Connection(id)
	if !ok {
		return "", ErrNotFound
	}
	return c.calls.Initiate(conn.UserID(), invitees, kind)
}

func (c *Core) AcceptCall(id ConnID, callID string, answer json.RawMessage) error {
	conn, ok := c.registry.Connection(id)
	if !ok {
		return ErrNotFound
	}
	return c.calls.Accept(callID, conn.UserID(), answer)
}

func (c *Core) RejectCall(id ConnID, callID string) error {
	conn, ok := c.registry.Connection(id)
	if !ok {
		return ErrNotFound
	}
	return c.calls.Reject(callID, conn.UserID())
}

func (c *Core) SignalCall(id ConnID, callID string, to UserID, payload json.RawMessage) error {
	conn, ok := c.registry.Connection(id)
	if !ok {
		return ErrNotFound
	}
	return c.calls.Signal(callID, conn.UserID(), to, payload)
}

func (c *Core) EndCall(id ConnID, callID string) error {
	conn, ok := c.registry.Connection(id)
	if !ok {
		return ErrNotFound
	}
	return c.calls.End(callID, conn.UserID())
}

// IsOnline reports derived presence for a user.
func (c *Core) IsOnline(user UserID) bool {
	return c.registry.IsOnline(user)
}

// LastSeen returns in-process last activity for a user.
func (c *Core) LastSeen(user UserID) (time.Time, bool) {
	return c.registry.LastSeen(user)
}

// ActiveUsers lists the distinct online users currently subscribed to a
// room.
func (c *Core) ActiveUsers(room RoomID) []UserID {
	seen := make(map[UserID]struct{})
	var users []UserID
	for _, id := range c.rooms.SubscribersOf(room) {
		conn, ok := c.registry.Connection(id)
		if !ok {
			continue
		}
		if _, dup := seen[conn.UserID()]; dup {
			continue
		}
		seen[conn.UserID()] = struct{}{}
		users = append(users, conn.UserID())
	}
	return users
}

// Touch refreshes activity bookkeeping for a connection.
func (c *Core) Touch(id ConnID) {
	c.registry.Touch(id)
}

// Shutdown closes every live connection and clears ephemeral state.
func (c *Core) Shutdown() {
	c.typing.StopAll()
	for _, conn := range c.registry.All() {
		c.Disconnect(conn.ID())
	}
}

// handlePresence runs on the presence goroutine, one transition at a time.
func (c *Core) handlePresence(t Transition) {
	ev := PresenceChanged{UserID: t.User, Online: t.Online}
	for _, room := range t.Rooms {
		c.router.DeliverToRoom(room, ev)
	}
	if !t.Online {
		c.calls.HandleOffline(t.User)
	}
	if c.lastSeen != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.lastSeen.Touch(ctx, t.User, time.Now()); err != nil {
			c.log.Warn().Err(err).Str("user", string(t.User)).Msg("last-seen update failed")
		}
	}
}
