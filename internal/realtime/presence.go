package realtime

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/itsvicky-dev/chatio/internal/metrics"
)

// Transition is one observable presence edge for a user. Intermediate
// connection count changes never produce a Transition.
type Transition struct {
	User   UserID
	Online bool
	// Rooms holds the user's live room subscriptions captured at the edge.
	// Empty for the online edge: a fresh connection has not joined anything
	// yet.
	Rooms []RoomID
}

// TransitionFunc consumes presence transitions. Funcs run on the tracker's
// own goroutine, one transition at a time, in submission order.
type TransitionFunc func(Transition)

// Presence serializes presence transitions through a single goroutine so a
// connect immediately followed by a disconnect can never double-emit or emit
// out of order. The Registry is the sole producer and computes edges under
// its own lock, which fixes the submission order.
type Presence struct {
	edges     chan Transition
	listeners []TransitionFunc
	log       zerolog.Logger
}

func NewPresence(log zerolog.Logger) *Presence {
	return &Presence{
		edges: make(chan Transition, 1024),
		log:   log.With().Str("component", "presence").Logger(),
	}
}

// Notify adds a listener. Not safe to call once Run has started.
func (p *Presence) Notify(fn TransitionFunc) {
	p.listeners = append(p.listeners, fn)
}

// Run drains transitions until the context is cancelled.
func (p *Presence) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.edges:
			if t.Online {
				metrics.UsersOnline.Inc()
			} else {
				metrics.UsersOnline.Dec()
			}
			p.log.Debug().
				Str("user", string(t.User)).
				Bool("online", t.Online).
				Msg("presence transition")
			for _, fn := range p.listeners {
				fn(t)
			}
		}
	}
}

// emit enqueues an edge. Called by the registry while it holds its mutex, so
// enqueue order matches the true mutation order.
func (p *Presence) emit(t Transition) {
	p.edges <- t
}
