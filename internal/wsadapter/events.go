// Package wsadapter is the WebSocket I/O adapter: it owns every socket,
// translating wire traffic into a stream of Events the switchboard core
// consumes and turning the core's Commands into writes on the wire. It is
// the concrete instance of the connection-task / pending-task boundary —
// the core never touches a net.Conn directly.
package wsadapter

import "fmt"

// ConnID identifies one WebSocket connection for the lifetime of the
// process. Assigned at upgrade time and never reused.
type ConnID string

// Event is something that happened on a connection, reported from the
// adapter to the switchboard core.
type Event interface {
	isEvent()
	fmt.Stringer
}

// ConnectionOpened fires once a connection has completed its WebSocket
// handshake and is ready to receive commands.
type ConnectionOpened struct {
	ID ConnID
}

func (ConnectionOpened) isEvent()          {}
func (e ConnectionOpened) String() string { return fmt.Sprintf("connection-opened(%s)", e.ID) }

// ConnectionClosed fires once a connection's read or write loop has exited,
// for any reason (remote close, write failure, adapter shutdown).
type ConnectionClosed struct {
	ID ConnID
}

func (ConnectionClosed) isEvent()          {}
func (e ConnectionClosed) String() string { return fmt.Sprintf("connection-closed(%s)", e.ID) }

// MessageReceived carries one raw frame read from a connection, still
// wire-encoded; the core is responsible for decoding it. IsText reports the
// WebSocket frame type the payload arrived in: true for a Text frame, false
// for Binary. The wire protocol is binary-only, so the core treats a Text
// frame as a protocol violation rather than a normal message.
type MessageReceived struct {
	ID     ConnID
	Raw    []byte
	IsText bool
}

func (MessageReceived) isEvent() {}
func (e MessageReceived) String() string {
	return fmt.Sprintf("message-received(%s, %d bytes, text=%t)", e.ID, len(e.Raw), e.IsText)
}

// ConnectionError reports a transport error observed on a connection. The
// core treats it as terminal for that connection and disconnects it.
type ConnectionError struct {
	ID  ConnID
	Err error
}

func (ConnectionError) isEvent()          {}
func (e ConnectionError) String() string { return fmt.Sprintf("connection-error(%s): %v", e.ID, e.Err) }

// Command is an instruction from the switchboard core to the adapter.
type Command interface {
	isCommand()
	fmt.Stringer
}

// SendMessage asks the adapter to write Raw to connection ID. Delivery is
// best-effort: if the connection has since closed, the command is dropped.
type SendMessage struct {
	ID  ConnID
	Raw []byte
}

func (SendMessage) isCommand()          {}
func (c SendMessage) String() string { return fmt.Sprintf("send-message(%s, %d bytes)", c.ID, len(c.Raw)) }

// CloseConnection asks the adapter to terminate connection ID.
type CloseConnection struct {
	ID ConnID
}

func (CloseConnection) isCommand()          {}
func (c CloseConnection) String() string { return fmt.Sprintf("close-connection(%s)", c.ID) }
