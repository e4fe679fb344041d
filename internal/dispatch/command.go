package dispatch

import (
	"fmt"

	"lantern/internal/protocol"
	"lantern/internal/transport"
)

// CommandKind tags a Command.
type CommandKind int

const (
	KindConnect CommandKind = iota
	KindDisconnect
	KindSend
)

func (k CommandKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindDisconnect:
		return "disconnect"
	case KindSend:
		return "send"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Command is one unit of work for the queue. Build it with Connect,
// Disconnect or Send.
type Command struct {
	Kind       CommandKind
	Descriptor transport.Descriptor // Connect
	OnSuccess  func()               // Connect, run on the consumer after the connected event
	Op         protocol.Operation   // Send
}

// Connect opens a session to d. onSuccess may be nil.
func Connect(d transport.Descriptor, onSuccess func()) Command {
	return Command{Kind: KindConnect, Descriptor: d, OnSuccess: onSuccess}
}

// Disconnect closes the current session, if any.
func Disconnect() Command {
	return Command{Kind: KindDisconnect}
}

// Send writes op to the connected device.
func Send(op protocol.Operation) Command {
	return Command{Kind: KindSend, Op: op}
}

func (c Command) String() string {
	switch c.Kind {
	case KindConnect:
		return fmt.Sprintf("connect(%s)", c.Descriptor)
	case KindSend:
		return fmt.Sprintf("send(%s)", c.Op)
	default:
		return c.Kind.String()
	}
}
