package realtime

import (
	"errors"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/itsvicky-dev/chatio/internal/metrics"
)

const fanoutShards = 64

// Router fans events out to room subscribers and to individual users.
//
// Delivery is at-least-once per currently-subscribed live connection.
// Connections that disconnect mid-fan-out simply miss the push; queuing for
// offline delivery belongs to an external notification service.
//
// Per-room ordering: each room hashes to one of a fixed set of shard locks
// held across the whole snapshot-and-enqueue pass, so two sequential
// deliveries to the same room reach every subscriber in submission order.
// Enqueues never block (Send is non-blocking), so a slow client cannot hold
// a shard lock and reorder or stall traffic for unrelated rooms.
type Router struct {
	registry *Registry
	rooms    *Rooms
	shards   [fanoutShards]sync.Mutex
	onDrop   func(ConnID)
	log      zerolog.Logger
}

func NewRouter(registry *Registry, rooms *Rooms, log zerolog.Logger) *Router {
	return &Router{
		registry: registry,
		rooms:    rooms,
		log:      log.With().Str("component", "router").Logger(),
	}
}

// OnDrop installs the disconnect handler invoked when a push to a connection
// fails. Not safe to change once delivery has started.
func (r *Router) OnDrop(fn func(ConnID)) {
	r.onDrop = fn
}

// DeliverToRoom pushes the event to every current subscriber of the room.
func (r *Router) DeliverToRoom(room RoomID, ev Event) {
	r.deliver(room, "", ev)
}

// DeliverToRoomExcept pushes the event to every subscriber except the given
// user's connections. Used for typing signals, which the sender already
// knows about.
func (r *Router) DeliverToRoomExcept(room RoomID, except UserID, ev Event) {
	r.deliver(room, except, ev)
}

func (r *Router) deliver(room RoomID, except UserID, ev Event) {
	shard := &r.shards[shardFor(room)]
	shard.Lock()
	defer shard.Unlock()

	var failed []ConnID
	for _, id := range r.rooms.SubscribersOf(room) {
		c, ok := r.registry.Connection(id)
		if !ok {
			// Disconnected between snapshot and push; membership teardown
			// will catch up.
			continue
		}
		if except != "" && c.UserID() == except {
			continue
		}
		if err := c.Send(ev); err != nil {
			if errors.Is(err, ErrSendBufferFull) {
				metrics.SlowClientDisconnects.Inc()
			}
			r.log.Warn().
				Err(err).
				Str("conn", string(id)).
				Str("room", string(room)).
				Msg("push failed, dropping connection")
			failed = append(failed, id)
			continue
		}
		metrics.EventsDelivered.WithLabelValues(string(ev.Type())).Inc()
	}
	r.dropFailed(failed)
}

// DeliverToUser pushes the event directly to every live connection of one
// user, bypassing room membership. Used for incoming-call notices and call
// signaling.
func (r *Router) DeliverToUser(user UserID, ev Event) {
	var failed []ConnID
	for _, c := range r.registry.ConnectionsFor(user) {
		if err := c.Send(ev); err != nil {
			if errors.Is(err, ErrSendBufferFull) {
				metrics.SlowClientDisconnects.Inc()
			}
			r.log.Warn().
				Err(err).
				Str("conn", string(c.ID())).
				Str("user", string(user)).
				Msg("push failed, dropping connection")
			failed = append(failed, c.ID())
			continue
		}
		metrics.EventsDelivered.WithLabelValues(string(ev.Type())).Inc()
	}
	r.dropFailed(failed)
}

// dropFailed treats each failed push as an implicit disconnect. A failure on
// one connection never aborts delivery to the rest of the subscriber set and
// is never surfaced to the publisher. Teardown runs off the fan-out path:
// delivery may itself be running on the presence goroutine, which the
// disconnect feeds transitions back into.
func (r *Router) dropFailed(ids []ConnID) {
	for _, id := range ids {
		metrics.DeliveryFailures.Inc()
		if r.onDrop != nil {
			go r.onDrop(id)
		}
	}
}

func shardFor(room RoomID) uint32 {
	h := fnv.New32a()
	h.Write([]byte(room))
	return h.Sum32() % fanoutShards
}
