package realtime

import "sync"

// Rooms is the room membership index. It keeps both directions of the
// relationship so that fan-out can look up subscribers by room and
// disconnect handling can tear down every subscription of one connection:
//
//  1. byRoom answers "who is subscribed to this room" at fan-out time;
//  2. byConn answers "which rooms does this connection hold" at teardown.
//
// Every mutation updates both maps under one lock, so a reader never
// observes a half-updated membership set. Authorization is the caller's
// job: the index trusts a pre-check against the persistence collaborator.
type Rooms struct {
	mu     sync.RWMutex
	byRoom map[RoomID]map[ConnID]struct{}
	byConn map[ConnID]map[RoomID]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		byRoom: make(map[RoomID]map[ConnID]struct{}),
		byConn: make(map[ConnID]map[RoomID]struct{}),
	}
}

// Subscribe adds the connection to the room. Subscribing twice is a no-op.
func (r *Rooms) Subscribe(id ConnID, room RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.byRoom[room]
	if !ok {
		subs = make(map[ConnID]struct{})
		r.byRoom[room] = subs
	}
	subs[id] = struct{}{}

	rooms, ok := r.byConn[id]
	if !ok {
		rooms = make(map[RoomID]struct{})
		r.byConn[id] = rooms
	}
	rooms[room] = struct{}{}
}

// Unsubscribe removes exactly one relationship. No-op if absent.
func (r *Rooms) Unsubscribe(id ConnID, room RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(id, room)
}

// SubscribersOf snapshots the current subscriber set of a room.
func (r *Rooms) SubscribersOf(room RoomID) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.byRoom[room]
	ids := make([]ConnID, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	return ids
}

// RoomsOf snapshots the rooms one connection is subscribed to.
func (r *Rooms) RoomsOf(id ConnID) []RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byConn[id]
	rooms := make([]RoomID, 0, len(set))
	for room := range set {
		rooms = append(rooms, room)
	}
	return rooms
}

// IsSubscribed reports whether the connection currently holds the room.
func (r *Rooms) IsSubscribed(id ConnID, room RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byConn[id][room]
	return ok
}

// RemoveConnection tears down every subscription held by the connection and
// returns the rooms it was in. Called on every disconnect path so dead
// connections never linger in subscriber sets.
func (r *Rooms) RemoveConnection(id ConnID) []RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byConn[id]
	rooms := make([]RoomID, 0, len(set))
	for room := range set {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		r.drop(id, room)
	}
	return rooms
}

// drop removes one relationship from both maps. Caller holds the lock.
func (r *Rooms) drop(id ConnID, room RoomID) {
	if subs, ok := r.byRoom[room]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(r.byRoom, room)
		}
	}
	if rooms, ok := r.byConn[id]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.byConn, id)
		}
	}
}
