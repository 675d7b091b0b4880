package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/itsvicky-dev/chatio/internal/metrics"
)

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

// CallState is the lifecycle state of a call session. CallRejected never
// labels a session; it only tags the event sent to the initiator when one
// invitee declines.
type CallState string

const (
	CallRinging  CallState = "ringing"
	CallActive   CallState = "active"
	CallEnded    CallState = "ended"
	CallRejected CallState = "rejected"
)

// ParticipantStatus tracks one party's relationship to a call.
type ParticipantStatus string

const (
	ParticipantInvited  ParticipantStatus = "invited"
	ParticipantJoined   ParticipantStatus = "joined"
	ParticipantLeft     ParticipantStatus = "left"
	ParticipantRejected ParticipantStatus = "rejected"
)

// CallRecord is the terminal snapshot handed to the call-history
// collaborator once a session ends.
type CallRecord struct {
	ID           string
	Initiator    UserID
	Kind         CallKind
	Participants map[UserID]ParticipantStatus
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
	Reason       string
}

type callSession struct {
	id         string
	initiator  UserID
	kind       CallKind
	state      CallState
	statuses   map[UserID]ParticipantStatus
	startedAt  time.Time
	answeredAt time.Time
	ringTimer  *time.Timer
}

// invitees returns every participant except the initiator.
func (s *callSession) invitees() []UserID {
	users := make([]UserID, 0, len(s.statuses)-1)
	for u := range s.statuses {
		if u != s.initiator {
			users = append(users, u)
		}
	}
	return users
}

func (s *callSession) joinedCount() int {
	n := 0
	for _, st := range s.statuses {
		if st == ParticipantJoined {
			n++
		}
	}
	return n
}

// Calls coordinates call sessions: a Ringing → Active → Ended state machine
// per call, with point-to-point signaling relay between participants. It
// owns each session exclusively until the terminal state, then hands the
// final record to the archive hook and forgets it.
type Calls struct {
	mu          sync.Mutex
	sessions    map[string]*callSession
	router      *Router
	ringTimeout time.Duration
	archive     func(CallRecord)
	log         zerolog.Logger
}

// NewCalls builds the coordinator. archive may be nil; ended calls are then
// dropped instead of handed off.
func NewCalls(router *Router, ringTimeout time.Duration, archive func(CallRecord), log zerolog.Logger) *Calls {
	return &Calls{
		sessions:    make(map[string]*callSession),
		router:      router,
		ringTimeout: ringTimeout,
		archive:     archive,
		log:         log.With().Str("component", "calls").Logger(),
	}
}

// Initiate creates a session in Ringing and notifies every invitee on all
// of their devices. The initiator counts as joined from the start.
func (c *Calls) Initiate(initiator UserID, invitees []UserID, kind CallKind) (string, error) {
	statuses := map[UserID]ParticipantStatus{initiator: ParticipantJoined}
	for _, u := range invitees {
		if u == initiator {
			continue
		}
		statuses[u] = ParticipantInvited
	}
	if len(statuses) == 1 {
		return "", ErrNoValidParticipants
	}

	s := &callSession{
		id:        uuid.NewString(),
		initiator: initiator,
		kind:      kind,
		state:     CallRinging,
		statuses:  statuses,
		startedAt: time.Now(),
	}
	if c.ringTimeout > 0 {
		s.ringTimer = time.AfterFunc(c.ringTimeout, func() {
			c.ringExpired(s.id)
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.id] = s
	metrics.CallsStarted.WithLabelValues(string(kind)).Inc()
	c.log.Info().
		Str("call", s.id).
		Str("initiator", string(initiator)).
		Int("invitees", len(statuses)-1).
		Msg("call initiated")

	notice := IncomingCall{CallID: s.id, FromUser: initiator, Kind: kind}
	for _, u := range s.invitees() {
		c.router.DeliverToUser(u, notice)
	}
	return s.id, nil
}

// Accept marks the invitee joined and relays the answer payload to the
// initiator specifically, never the full room. The first accept moves the
// session to Active.
func (c *Calls) Accept(callID string, user UserID, answer json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	if s.state == CallEnded {
		return ErrInvalidState
	}
	if s.statuses[user] != ParticipantInvited {
		return ErrInvalidState
	}

	s.statuses[user] = ParticipantJoined
	if s.state == CallRinging {
		s.state = CallActive
		s.answeredAt = time.Now()
		if s.ringTimer != nil {
			s.ringTimer.Stop()
		}
	}
	c.router.DeliverToUser(s.initiator, CallStateChanged{
		CallID:  callID,
		State:   CallActive,
		UserID:  user,
		Payload: answer,
	})
	return nil
}

// Reject marks the invitee rejected and tells the initiator. When every
// invitee has rejected, the session ends with zero duration.
func (c *Calls) Reject(callID string, user UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	if s.state == CallEnded {
		return ErrInvalidState
	}
	if s.statuses[user] != ParticipantInvited {
		return ErrInvalidState
	}

	s.statuses[user] = ParticipantRejected
	c.router.DeliverToUser(s.initiator, CallStateChanged{
		CallID: callID,
		State:  CallRejected,
		UserID: user,
	})

	for _, u := range s.invitees() {
		if s.statuses[u] != ParticipantRejected {
			return nil
		}
	}
	c.endLocked(s, "rejected")
	return nil
}

// Signal relays an opaque signaling payload point-to-point. Valid only
// while the session is Ringing or Active, and only between its
// participants.
func (c *Calls) Signal(callID string, from, to UserID, payload json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	if s.state != CallRinging && s.state != CallActive {
		return ErrInvalidState
	}
	if _, ok := s.statuses[from]; !ok {
		return ErrNotAuthorized
	}
	if _, ok := s.statuses[to]; !ok {
		return ErrNotFound
	}

	c.router.DeliverToUser(to, CallSignal{CallID: callID, FromUser: from, Payload: payload})
	return nil
}

// End terminates the session from any non-terminal state.
func (c *Calls) End(callID string, by UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	if s.state == CallEnded {
		return ErrInvalidState
	}
	if _, ok := s.statuses[by]; !ok {
		return ErrNotAuthorized
	}
	c.endLocked(s, "ended")
	return nil
}

// HandleOffline treats a user's presence-offline edge as an implicit leave.
// A ringing call loses its initiator outright; an active call ends once
// fewer than two joined participants remain.
func (c *Calls) HandleOffline(user UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.sessions {
		if s.statuses[user] != ParticipantJoined {
			continue
		}
		s.statuses[user] = ParticipantLeft
		c.log.Debug().
			Str("call", s.id).
			Str("user", string(user)).
			Msg("participant dropped offline")

		if s.state == CallRinging && user == s.initiator {
			c.endLocked(s, "abandoned")
			continue
		}
		if s.state == CallActive && s.joinedCount() < 2 {
			c.endLocked(s, "abandoned")
		}
	}
}

// ringExpired ends a call nobody answered within the ring timeout.
func (c *Calls) ringExpired(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[callID]
	if !ok || s.state != CallRinging {
		return
	}
	c.endLocked(s, "timeout")
}

// endLocked moves the session to Ended, notifies everyone still attached,
// hands the record to the history collaborator and forgets the session.
// Caller holds the lock.
func (c *Calls) endLocked(s *callSession, reason string) {
	s.state = CallEnded
	if s.ringTimer != nil {
		s.ringTimer.Stop()
	}
	endedAt := time.Now()
	var duration time.Duration
	if !s.answeredAt.IsZero() {
		duration = endedAt.Sub(s.answeredAt)
	}

	payload, _ := json.Marshal(struct {
		Reason     string  `json:"reason"`
		DurationMS float64 `json:"duration_ms"`
	}{Reason: reason, DurationMS: float64(duration.Milliseconds())})

	ev := CallStateChanged{CallID: s.id, State: CallEnded, Payload: payload}
	for u, st := range s.statuses {
		if st == ParticipantInvited || st == ParticipantJoined {
			c.router.DeliverToUser(u, ev)
		}
	}

	record := CallRecord{
		ID:           s.id,
		Initiator:    s.initiator,
		Kind:         s.kind,
		Participants: s.statuses,
		StartedAt:    s.startedAt,
		EndedAt:      endedAt,
		Duration:     duration,
		Reason:       reason,
	}
	delete(c.sessions, s.id)
	metrics.CallsEnded.WithLabelValues(reason).Inc()
	c.log.Info().
		Str("call", s.id).
		Str("reason", reason).
		Dur("duration", duration).
		Msg("call ended")

	if c.archive != nil {
		go c.archive(record)
	}
}
