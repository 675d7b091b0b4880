package realtime

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/itsvicky-dev/chatio/internal/metrics"
)

// Registry maps user identities to their live connections and tracks
// last-seen timestamps. Registration and unregistration are the sole
// triggers for presence transitions; the registry never pushes data itself.
type Registry struct {
	mu       sync.RWMutex
	conns    map[ConnID]Conn
	byUser   map[UserID]map[ConnID]Conn
	lastSeen map[UserID]time.Time
	presence *Presence
	log      zerolog.Logger
}

func NewRegistry(presence *Presence, log zerolog.Logger) *Registry {
	return &Registry{
		conns:    make(map[ConnID]Conn),
		byUser:   make(map[UserID]map[ConnID]Conn),
		lastSeen: make(map[UserID]time.Time),
		presence: presence,
		log:      log.With().Str("component", "registry").Logger(),
	}
}

// Register adds a live connection. A user may register any number of
// simultaneous connections; only a reused connection id fails.
func (r *Registry) Register(c Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[c.ID()]; exists {
		return ErrDuplicateConnection
	}

	user := c.UserID()
	r.conns[c.ID()] = c
	set, ok := r.byUser[user]
	if !ok {
		set = make(map[ConnID]Conn)
		r.byUser[user] = set
	}
	set[c.ID()] = c
	r.lastSeen[user] = time.Now()
	metrics.ConnectionsOpen.Inc()

	r.log.Debug().
		Str("conn", string(c.ID())).
		Str("user", string(user)).
		Int("connections", len(set)).
		Msg("connection registered")

	if len(set) == 1 {
		r.presence.emit(Transition{User: user, Online: true})
	}
	return nil
}

// Unregister removes a connection. The caller passes the room subscriptions
// it already tore down, so the offline transition can carry them. No-op if
// the id is already absent; every disconnect path may call it safely.
func (r *Registry) Unregister(id ConnID, rooms []RoomID) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}

	user := c.UserID()
	delete(r.conns, id)
	if set, ok := r.byUser[user]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byUser, user)
		}
	}
	r.lastSeen[user] = time.Now()
	metrics.ConnectionsOpen.Dec()

	r.log.Debug().
		Str("conn", string(id)).
		Str("user", string(user)).
		Msg("connection unregistered")

	if _, stillOnline := r.byUser[user]; !stillOnline {
		r.presence.emit(Transition{User: user, Online: false, Rooms: rooms})
	}
	return c, true
}

// Connection resolves a live connection by id.
func (r *Registry) Connection(id ConnID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// ConnectionsFor returns the live set, possibly empty, of a user's
// connections. Used for direct (non-room) delivery such as call notices.
func (r *Registry) ConnectionsFor(user UserID) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[user]
	conns := make([]Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(user UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[user]) > 0
}

// Touch refreshes the last-seen timestamp for the connection's owner. The
// transport calls it on inbound activity.
func (r *Registry) Touch(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		r.lastSeen[c.UserID()] = time.Now()
	}
}

// LastSeen returns the last registry activity for a user, if any was
// recorded in this process's lifetime.
func (r *Registry) LastSeen(user UserID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lastSeen[user]
	return t, ok
}

// All snapshots every live connection. Used at shutdown.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}
