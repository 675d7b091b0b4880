package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// fakeConn records delivered events in memory. Setting failSends makes every
// Send return ErrSendBufferFull, simulating a stalled client.
type fakeConn struct {
	id   ConnID
	user UserID

	mu        sync.Mutex
	events    []Event
	failSends bool
	closed    bool
}

func newFakeConn(id ConnID, user UserID) *fakeConn {
	return &fakeConn{id: id, user: user}
}

func (c *fakeConn) ID() ConnID     { return c.id }
func (c *fakeConn) UserID() UserID { return c.user }

func (c *fakeConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSends {
		return ErrSendBufferFull
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) eventsOfType(t EventType) []Event {
	var out []Event
	for _, ev := range c.Events() {
		if ev.Type() == t {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type authzFunc func(ctx context.Context, user UserID, room RoomID) (bool, error)

func (f authzFunc) IsRoomMember(ctx context.Context, user UserID, room RoomID) (bool, error) {
	return f(ctx, user, room)
}

var allowAll = authzFunc(func(context.Context, UserID, RoomID) (bool, error) {
	return true, nil
})

var denyAll = authzFunc(func(context.Context, UserID, RoomID) (bool, error) {
	return false, nil
})

// recordingArchiver collects terminal call records.
type recordingArchiver struct {
	mu      sync.Mutex
	records []CallRecord
}

func (a *recordingArchiver) ArchiveCall(_ context.Context, rec CallRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *recordingArchiver) Records() []CallRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]CallRecord, len(a.records))
	copy(out, a.records)
	return out
}

// newTestCore wires a full core with the presence loop running.
func newTestCore(t *testing.T, cfg Config, authz Authorizer, archiver CallArchiver) *Core {
	t.Helper()
	core := New(cfg, authz, archiver, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go core.Run(ctx)
	return core
}
