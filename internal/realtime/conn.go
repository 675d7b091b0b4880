package realtime

// Conn is one live bidirectional channel to a client process. The transport
// layer implements it; the core only ever enqueues events and closes it.
//
// Send must not block: implementations keep a bounded outbound queue and
// return ErrSendBufferFull when the client cannot keep up, at which point the
// router drops the connection.
type Conn interface {
	ID() ConnID
	UserID() UserID
	Send(ev Event) error
	Close()
}
