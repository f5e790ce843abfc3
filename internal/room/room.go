// Package room wraps the real-time transport client. The rest of the
// service only sees presence events and a handful of connection
// operations; everything provider-specific stays behind Connector.
package room

import (
	"context"
	"errors"
	"time"

	"github.com/antoniostano/agentdispatch/internal/session"
)

// ErrNoActiveRoom is returned by ping when no session holds a live
// connection.
var ErrNoActiveRoom = errors.New("no active room connection")

// Handler receives presence events for non-agent participants. The
// transport adapter filters out the agent's own identity before
// calling these.
type Handler struct {
	OnParticipantJoined func(identity string)
	OnParticipantLeft   func(identity string)
	OnDisconnected      func()
}

// Conn is one live connection between the agent and a room.
type Conn interface {
	Name() string
	// Ping measures round-trip time to the transport host.
	Ping(ctx context.Context) (time.Duration, error)
	// PublishData sends a reliable data payload into the room.
	PublishData(ctx context.Context, payload []byte) error
	Disconnect() error
}

// Connector joins rooms on behalf of an agent.
type Connector interface {
	Connect(ctx context.Context, cfg session.Config, h Handler) (Conn, error)
}
