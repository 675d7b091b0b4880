package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/itsvicky-dev/chatio/internal/database"
	"github.com/itsvicky-dev/chatio/internal/realtime"
)

const recentMessageLimit = 50

// Options tunes one client's pumps and queue.
type Options struct {
	SendQueueSize int
	PongWait      time.Duration
	PingInterval  time.Duration
	WriteWait     time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 256
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 54 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	return o
}

// Client binds one websocket connection to the realtime core. It implements
// realtime.Conn: the core enqueues events into the bounded send queue and
// the write pump drains it, so a stalled socket surfaces as
// ErrSendBufferFull instead of blocking a fan-out.
type Client struct {
	id     realtime.ConnID
	user   realtime.UserID
	conn   *websocket.Conn
	send   chan realtime.Event
	done   chan struct{}
	core   *realtime.Core
	db     database.Database
	opts   Options
	log    zerolog.Logger
	closer sync.Once
}

func NewClient(conn *websocket.Conn, user realtime.UserID, core *realtime.Core, db database.Database, opts Options, log zerolog.Logger) *Client {
	opts = opts.withDefaults()
	id := realtime.ConnID(uuid.NewString())
	return &Client{
		id:   id,
		user: user,
		conn: conn,
		send: make(chan realtime.Event, opts.SendQueueSize),
		done: make(chan struct{}),
		core: core,
		db:   db,
		opts: opts,
		log: log.With().
			Str("component", "ws").
			Str("conn", string(id)).
			Str("user", string(user)).
			Logger(),
	}
}

func (c *Client) ID() realtime.ConnID     { return c.id }
func (c *Client) UserID() realtime.UserID { return c.user }

// Send enqueues without blocking. A full queue means the client has stalled;
// the router reacts by dropping the connection.
func (c *Client) Send(ev realtime.Event) error {
	select {
	case <-c.done:
		// Already tearing down; the event is lost like any other push to a
		// dead connection.
		return nil
	case c.send <- ev:
		return nil
	default:
		return realtime.ErrSendBufferFull
	}
}

// Close shuts the transport down. Safe to call from any goroutine, any
// number of times.
func (c *Client) Close() {
	c.closer.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// ReadPump decodes inbound command frames and dispatches them until the
// connection dies, then funnels into the core's disconnect path.
func (c *Client) ReadPump() {
	defer func() {
		c.core.Disconnect(c.id)
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		c.core.Touch(c.id)

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.reportError(fmt.Errorf("%w: malformed frame", errBadRequest))
			continue
		}
		if err := c.handle(env); err != nil {
			c.reportError(err)
		}
	}
}

// WritePump drains the send queue onto the socket and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case ev := <-c.send:
			frame, err := encodeEvent(ev)
			if err != nil {
				c.log.Error().Err(err).Msg("dropping unencodable event")
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn().Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(env Envelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch CommandType(env.Type) {
	case CmdJoinRoom:
		var cmd RoomCommand
		if err := decode(env.Data, &cmd); err != nil {
			return err
		}
		if err := c.core.JoinRoom(ctx, c.id, cmd.RoomID); err != nil {
			return err
		}
		go c.replayRecent(cmd.RoomID)
		return nil

	case CmdLeaveRoom:
		var cmd RoomCommand
		if err := decode(env.Data, &cmd); err != nil {
			return err
		}
		c.core.LeaveRoom(c.id, cmd.RoomID)
		return nil

	case CmdPublishMessage:
		var cmd PublishCommand
		if err := decode(env.Data, &cmd); err != nil {
			return err
		}
		if cmd.Body == "" {
			return fmt.Errorf("%w: empty message body", errBadRequest)
		}
		// Persist first: the core routes references to already-stored
		// messages, it never owns storage.
		msg, err := c.db.SaveMessage(ctx, cmd.RoomID, c.user, cmd.Body)
		if err != nil {
			return fmt.Errorf("failed to persist message: %w", err)
		}
		return c.core.PublishMessage(c.id, msg)

	case CmdTypingStart:
		var cmd RoomCommand
		if err := decode(env.Data, &cmd); err != nil {
			return err
		}
		return c.core.StartTyping(c.id, cmd.RoomID)

	case CmdTypingStop:
		var cmd RoomCommand
		if err := decode(env.Data, &cmd); err != nil {
			return err
		}
		return c.core.StopTyping(c.id, cmd.RoomID)

	case CmdCallInitiate:
		var cmd CallInitiateCommand
		if err := decode(env.Data, &cmd); err != nil {
			return err
		}
		if cmd.Kind != realtime.CallAudio && cmd.Kind != realtime.CallVideo {
			return fmt.Errorf("%w: unknown call kind %q", errBadRequest, cmd.Kind)
		}
		callID, err := c.core.InitiateCall(c.id, cmd.Invitees, cmd.Kind)
		if err != nil {
			return err
		}
		// Ack the initiator with the ringing state so they can reference
		// the call.
		return c.Send(realtime.CallStateChanged{CallID: callID, State: realtime.CallRinging})

	case CmdCallAccept:
		var cmd CallAcceptCommand
		if err := decode(env.Data, &cmd); err != nil {
			return err
		}
		return c.core.AcceptCall(c.id, cmd.CallID, cmd.Answer)

	case CmdCallReject:
		var cmd CallCommand
		if err := decode(env.Data, &cmd); err != nil {
			return err
		}
		return c.core.RejectCall(c.id, cmd.CallID)

	case CmdCallSignal:
		var cmd CallSignalCommand
		if err := decode(env.Data, &cmd); err != nil {
			return err
		}
		return c.core.SignalCall(c.id, cmd.CallID, cmd.ToUser, cmd.Payload)

	case CmdCallEnd:
		var cmd CallCommand
		if err := decode(env.Data, &cmd); err != nil {
			return err
		}
		return c.core.EndCall(c.id, cmd.CallID)

	default:
		return fmt.Errorf("%w: unknown command %q", errBadRequest, env.Type)
	}
}

// replayRecent pushes the room's recent history to this connection only.
func (c *Client) replayRecent(room realtime.RoomID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	messages, err := c.db.LoadRecentMessages(ctx, room, recentMessageLimit)
	if err != nil {
		c.log.Error().Err(err).Str("room", string(room)).Msg("failed to load recent messages")
		return
	}
	for _, msg := range messages {
		if err := c.Send(realtime.MessageDelivered{RoomID: room, Message: msg}); err != nil {
			return
		}
	}
}

func (c *Client) reportError(err error) {
	c.log.Debug().Err(err).Msg("command refused")
	c.Send(errorEvent(err))
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing payload", errBadRequest)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
