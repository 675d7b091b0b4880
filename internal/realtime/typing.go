package realtime

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/itsvicky-dev/chatio/internal/metrics"
)

// DefaultTypingTTL matches the refresh cadence clients use.
const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	room RoomID
	user UserID
}

type typingSignal struct {
	version uint64
	timer   *time.Timer
}

// Typing holds the ephemeral typing signals, at most one per (room, user)
// pair. Each signal owns a cancellable timer stamped with a version; a
// refresh bumps the version and re-arms a fresh timer, so a timer that
// already fired and lost the race simply sees a stale version and does
// nothing. Other clients can therefore never observe a stray stop caused by
// a refresh racing an expiry.
//
// Broadcasts run under the tracker lock, keeping the started/stopped edges
// for one signal strictly ordered.
type Typing struct {
	mu        sync.Mutex
	ttl       time.Duration
	signals   map[typingKey]*typingSignal
	broadcast func(room RoomID, user UserID, isTyping bool)
	log       zerolog.Logger
}

// NewTyping builds the tracker. broadcast is invoked on every observable
// typing edge; the core wires it to the router with the sender excluded.
func NewTyping(ttl time.Duration, broadcast func(RoomID, UserID, bool), log zerolog.Logger) *Typing {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Typing{
		ttl:       ttl,
		signals:   make(map[typingKey]*typingSignal),
		broadcast: broadcast,
		log:       log.With().Str("component", "typing").Logger(),
	}
}

// Start creates or refreshes the signal. Only the not-typing to typing
// transition broadcasts; refreshes within the TTL just re-arm the timer, so
// repeated client signals do not multiply event volume.
func (t *Typing) Start(room RoomID, user UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{room: room, user: user}
	if sig, ok := t.signals[key]; ok {
		sig.version++
		sig.timer.Stop()
		sig.timer = t.armTimer(key, sig.version)
		return
	}

	sig := &typingSignal{version: 1}
	sig.timer = t.armTimer(key, sig.version)
	t.signals[key] = sig
	metrics.TypingSignalsActive.Inc()
	t.broadcast(room, user, true)
}

// Stop removes the signal and broadcasts the stopped edge unconditionally.
// Safe to call when not typing.
func (t *Typing) Stop(room RoomID, user UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{room: room, user: user}
	if sig, ok := t.signals[key]; ok {
		sig.timer.Stop()
		delete(t.signals, key)
		metrics.TypingSignalsActive.Dec()
	}
	t.broadcast(room, user, false)
}

// StopAll clears every live signal without broadcasting. Used at shutdown.
func (t *Typing) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, sig := range t.signals {
		sig.timer.Stop()
		delete(t.signals, key)
		metrics.TypingSignalsActive.Dec()
	}
}

func (t *Typing) armTimer(key typingKey, version uint64) *time.Timer {
	return time.AfterFunc(t.ttl, func() {
		t.expire(key, version)
	})
}

// expire fires the automatic stop when the TTL elapses without a refresh.
// The version check discards timers that lost a race with a refresh: the
// refreshed signal already armed a newer timer.
func (t *Typing) expire(key typingKey, version uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sig, ok := t.signals[key]
	if !ok || sig.version != version {
		return
	}
	delete(t.signals, key)
	metrics.TypingSignalsActive.Dec()
	t.log.Debug().
		Str("room", string(key.room)).
		Str("user", string(key.user)).
		Msg("typing signal expired")
	t.broadcast(key.room, key.user, false)
}
