package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestCalls(t *testing.T, ringTimeout time.Duration) (*Calls, *Registry, *recordingArchiver) {
	t.Helper()
	router, registry, _ := newTestRouter(t)
	archiver := &recordingArchiver{}
	calls := NewCalls(router, ringTimeout, func(rec CallRecord) {
		_ = archiver.ArchiveCall(nil, rec)
	}, zerolog.Nop())
	return calls, registry, archiver
}

func TestCalls_NoValidParticipants(t *testing.T) {
	req := require.New(t)
	calls, _, _ := newTestCalls(t, time.Minute)

	_, err := calls.Initiate("alice", nil, CallAudio)
	req.ErrorIs(err, ErrNoValidParticipants)

	// Inviting only yourself is the same as inviting nobody.
	_, err = calls.Initiate("alice", []UserID{"alice"}, CallAudio)
	req.ErrorIs(err, ErrNoValidParticipants)
}

func TestCalls_InviteesAreNotified(t *testing.T) {
	req := require.New(t)
	calls, registry, _ := newTestCalls(t, time.Minute)

	bobPhone := newFakeConn("bob-phone", "bob")
	bobLaptop := newFakeConn("bob-laptop", "bob")
	req.NoError(registry.Register(bobPhone))
	req.NoError(registry.Register(bobLaptop))

	callID, err := calls.Initiate("alice", []UserID{"bob"}, CallVideo)
	req.NoError(err)

	for _, c := range []*fakeConn{bobPhone, bobLaptop} {
		events := c.eventsOfType(EventIncomingCall)
		req.Len(events, 1)
		notice := events[0].(IncomingCall)
		req.Equal(callID, notice.CallID)
		req.Equal(UserID("alice"), notice.FromUser)
		req.Equal(CallVideo, notice.Kind)
	}
}

func TestCalls_AcceptNotifiesInitiatorWithAnswer(t *testing.T) {
	req := require.New(t)
	calls, registry, _ := newTestCalls(t, time.Minute)

	alice := newFakeConn("alice-1", "alice")
	req.NoError(registry.Register(alice))

	callID, err := calls.Initiate("alice", []UserID{"bob"}, CallAudio)
	req.NoError(err)

	answer := json.RawMessage(`{"sdp":"answer"}`)
	req.NoError(calls.Accept(callID, "bob", answer))

	events := alice.eventsOfType(EventCallStateChanged)
	req.Len(events, 1)
	changed := events[0].(CallStateChanged)
	req.Equal(CallActive, changed.State)
	req.Equal(UserID("bob"), changed.UserID)
	req.JSONEq(string(answer), string(changed.Payload))
}

func TestCalls_AcceptInvalid(t *testing.T) {
	req := require.New(t)
	calls, _, _ := newTestCalls(t, time.Minute)

	req.ErrorIs(calls.Accept("missing", "bob", nil), ErrNotFound)

	callID, err := calls.Initiate("alice", []UserID{"bob"}, CallAudio)
	req.NoError(err)

	// A bystander cannot accept.
	req.ErrorIs(calls.Accept(callID, "mallory", nil), ErrInvalidState)

	req.NoError(calls.End(callID, "alice"))
	// Ended sessions are forgotten; accepting one reports NotFound.
	req.ErrorIs(calls.Accept(callID, "bob", nil), ErrNotFound)
}

func TestCalls_AllRejectEndsWithZeroDuration(t *testing.T) {
	req := require.New(t)
	calls, registry, archiver := newTestCalls(t, time.Minute)

	initiator := newFakeConn("u-1", "carol")
	req.NoError(registry.Register(initiator))

	callID, err := calls.Initiate("carol", []UserID{"a", "b"}, CallAudio)
	req.NoError(err)

	req.NoError(calls.Reject(callID, "b"))
	req.NoError(calls.Reject(callID, "a"))

	req.Eventually(func() bool {
		return len(archiver.Records()) == 1
	}, time.Second, 10*time.Millisecond)

	rec := archiver.Records()[0]
	req.Equal(callID, rec.ID)
	req.Equal(time.Duration(0), rec.Duration)
	req.Equal("rejected", rec.Reason)

	// Initiator saw both rejections and the terminal state.
	var rejected, ended int
	for _, ev := range initiator.eventsOfType(EventCallStateChanged) {
		switch ev.(CallStateChanged).State {
		case CallRejected:
			rejected++
		case CallEnded:
			ended++
		}
	}
	req.Equal(2, rejected)
	req.Equal(1, ended)
}

func TestCalls_SignalIsPointToPoint(t *testing.T) {
	req := require.New(t)
	calls, registry, _ := newTestCalls(t, time.Minute)

	alice := newFakeConn("alice-1", "alice")
	bob := newFakeConn("bob-1", "bob")
	carol := newFakeConn("carol-1", "carol")
	for _, c := range []*fakeConn{alice, bob, carol} {
		req.NoError(registry.Register(c))
	}

	callID, err := calls.Initiate("alice", []UserID{"bob", "carol"}, CallVideo)
	req.NoError(err)

	candidate := json.RawMessage(`{"candidate":"..."}`)
	req.NoError(calls.Signal(callID, "alice", "bob", candidate))

	req.Len(bob.eventsOfType(EventCallSignal), 1)
	req.Empty(carol.eventsOfType(EventCallSignal))
	req.Empty(alice.eventsOfType(EventCallSignal))

	req.ErrorIs(calls.Signal(callID, "mallory", "bob", candidate), ErrNotAuthorized)
	req.ErrorIs(calls.Signal(callID, "alice", "mallory", candidate), ErrNotFound)

	req.NoError(calls.End(callID, "alice"))
	req.ErrorIs(calls.Signal(callID, "alice", "bob", candidate), ErrNotFound)
}

func TestCalls_OfflineJoinedParticipantAutoEnds(t *testing.T) {
	req := require.New(t)
	calls, registry, archiver := newTestCalls(t, time.Minute)

	bob := newFakeConn("bob-1", "bob")
	req.NoError(registry.Register(bob))

	callID, err := calls.Initiate("alice", []UserID{"bob"}, CallAudio)
	req.NoError(err)
	req.NoError(calls.Accept(callID, "bob", nil))

	// The initiator's last connection drops: one joined participant left.
	calls.HandleOffline("alice")

	req.Eventually(func() bool {
		return len(archiver.Records()) == 1
	}, time.Second, 10*time.Millisecond)
	req.Equal("abandoned", archiver.Records()[0].Reason)

	events := bob.eventsOfType(EventCallStateChanged)
	req.NotEmpty(events)
	req.Equal(CallEnded, events[len(events)-1].(CallStateChanged).State)
}

func TestCalls_OfflineInitiatorCancelsRinging(t *testing.T) {
	req := require.New(t)
	calls, _, archiver := newTestCalls(t, time.Minute)

	callID, err := calls.Initiate("alice", []UserID{"bob"}, CallAudio)
	req.NoError(err)

	calls.HandleOffline("alice")

	req.Eventually(func() bool {
		return len(archiver.Records()) == 1
	}, time.Second, 10*time.Millisecond)
	req.Equal(callID, archiver.Records()[0].ID)
	req.Equal("abandoned", archiver.Records()[0].Reason)
	req.Equal(time.Duration(0), archiver.Records()[0].Duration)
}

func TestCalls_RingTimeout(t *testing.T) {
	req := require.New(t)
	calls, _, archiver := newTestCalls(t, 50*time.Millisecond)

	_, err := calls.Initiate("alice", []UserID{"bob"}, CallAudio)
	req.NoError(err)

	req.Eventually(func() bool {
		return len(archiver.Records()) == 1
	}, time.Second, 10*time.Millisecond)
	req.Equal("timeout", archiver.Records()[0].Reason)
	req.Equal(time.Duration(0), archiver.Records()[0].Duration)
}

func TestCalls_EndComputesDuration(t *testing.T) {
	req := require.New(t)
	calls, _, archiver := newTestCalls(t, time.Minute)

	callID, err := calls.Initiate("alice", []UserID{"bob"}, CallAudio)
	req.NoError(err)
	req.NoError(calls.Accept(callID, "bob", nil))

	time.Sleep(30 * time.Millisecond)
	req.NoError(calls.End(callID, "bob"))
	req.ErrorIs(calls.End(callID, "bob"), ErrNotFound)

	req.Eventually(func() bool {
		return len(archiver.Records()) == 1
	}, time.Second, 10*time.Millisecond)
	req.GreaterOrEqual(archiver.Records()[0].Duration, 30*time.Millisecond)
}
