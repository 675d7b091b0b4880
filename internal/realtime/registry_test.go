package realtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// newTestRegistry builds a registry with the presence loop running and a
// recorder attached to the transitions.
func newTestRegistry(t *testing.T) (*Registry, *transitionRecorder) {
	t.Helper()
	rec := &transitionRecorder{}
	presence := NewPresence(zerolog.Nop())
	presence.Notify(rec.record)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go presence.Run(ctx)
	return NewRegistry(presence, zerolog.Nop()), rec
}

type transitionRecorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *transitionRecorder) record(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *transitionRecorder) all() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.transitions))
	copy(out, r.transitions)
	return out
}

func TestRegistry_DuplicateConnectionID(t *testing.T) {
	req := require.New(t)
	reg, _ := newTestRegistry(t)

	req.NoError(reg.Register(newFakeConn("c1", "alice")))
	req.ErrorIs(reg.Register(newFakeConn("c1", "alice")), ErrDuplicateConnection)
	// A second device is not a duplicate.
	req.NoError(reg.Register(newFakeConn("c2", "alice")))
}

func TestRegistry_MultiDevice(t *testing.T) {
	req := require.New(t)
	reg, _ := newTestRegistry(t)

	phone := newFakeConn("phone", "alice")
	laptop := newFakeConn("laptop", "alice")
	req.NoError(reg.Register(phone))
	req.NoError(reg.Register(laptop))

	req.Len(reg.ConnectionsFor("alice"), 2)
	req.True(reg.IsOnline("alice"))

	reg.Unregister("phone", nil)
	req.Len(reg.ConnectionsFor("alice"), 1)
	req.True(reg.IsOnline("alice"))

	reg.Unregister("laptop", nil)
	req.Empty(reg.ConnectionsFor("alice"))
	req.False(reg.IsOnline("alice"))
}

func TestRegistry_UnregisterAbsentIsNoop(t *testing.T) {
	req := require.New(t)
	reg, rec := newTestRegistry(t)

	_, ok := reg.Unregister("ghost", nil)
	req.False(ok)
	req.Empty(rec.all())
}

func TestRegistry_LastSeenTracked(t *testing.T) {
	req := require.New(t)
	reg, _ := newTestRegistry(t)

	_, ok := reg.LastSeen("alice")
	req.False(ok)

	req.NoError(reg.Register(newFakeConn("c1", "alice")))
	seen, ok := reg.LastSeen("alice")
	req.True(ok)
	req.WithinDuration(time.Now(), seen, time.Second)
}

func TestPresence_ExactlyOncePerCycle(t *testing.T) {
	req := require.New(t)
	reg, rec := newTestRegistry(t)

	// Three devices connect and disconnect; only the 0→1 and 1→0 edges are
	// observable.
	for _, id := range []ConnID{"c1", "c2", "c3"} {
		req.NoError(reg.Register(newFakeConn(id, "alice")))
	}
	for _, id := range []ConnID{"c1", "c2", "c3"} {
		reg.Unregister(id, nil)
	}

	req.Eventually(func() bool {
		return len(rec.all()) == 2
	}, time.Second, 10*time.Millisecond)

	transitions := rec.all()
	req.True(transitions[0].Online)
	req.False(transitions[1].Online)
	req.Equal(UserID("alice"), transitions[0].User)
}

func TestPresence_ConcurrentChurnStaysPaired(t *testing.T) {
	req := require.New(t)
	reg, rec := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ConnID(fmt.Sprintf("conn-%d", i))
			c := newFakeConn(id, "bob")
			if err := reg.Register(c); err == nil {
				reg.Unregister(id, nil)
			}
		}(i)
	}
	wg.Wait()

	req.False(reg.IsOnline("bob"))
	req.Eventually(func() bool {
		online, offline := 0, 0
		for _, tr := range rec.all() {
			if tr.Online {
				online++
			} else {
				offline++
			}
		}
		return online == offline && online > 0
	}, time.Second, 10*time.Millisecond)

	// Edges must strictly alternate starting with online.
	for i, tr := range rec.all() {
		req.Equal(i%2 == 0, tr.Online, "transition %d out of order", i)
	}
}
