package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/antoniostano/agentdispatch/internal/session"
)

// MockConnector is the in-process fallback transport. Tests drive
// presence through the handler it captures on connect.
type MockConnector struct {
	mu sync.Mutex
	// ConnectErr makes the next Connect fail.
	ConnectErr error
	// DisconnectErr makes teardown fail on connections made after it is set.
	DisconnectErr error
	// PingRTT is what mock connections report; defaults to 1ms.
	PingRTT time.Duration

	conns []*MockConn
}

func NewMockConnector() *MockConnector { return &MockConnector{} }

func (c *MockConnector) Connect(_ context.Context, cfg session.Config, h Handler) (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	rtt := c.PingRTT
	if rtt <= 0 {
		rtt = time.Millisecond
	}
	conn := &MockConn{
		roomName:      cfg.RoomName,
		handler:       h,
		rtt:           rtt,
		disconnectErr: c.DisconnectErr,
	}
	c.conns = append(c.conns, conn)
	return conn, nil
}

// LastConn returns the most recent connection, or nil.
func (c *MockConnector) LastConn() *MockConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.conns) == 0 {
		return nil
	}
	return c.conns[len(c.conns)-1]
}

type MockConn struct {
	mu            sync.Mutex
	roomName      string
	handler       Handler
	rtt           time.Duration
	disconnectErr error
	disconnected  bool
	published     [][]byte
}

func (m *MockConn) Name() string { return m.roomName }

func (m *MockConn) Ping(_ context.Context) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disconnected {
		return 0, ErrNoActiveRoom
	}
	return m.rtt, nil
}

func (m *MockConn) PublishData(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disconnected {
		return errors.New("room disconnected")
	}
	m.published = append(m.published, payload)
	return nil
}

func (m *MockConn) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
	return m.disconnectErr
}

// Disconnected reports whether Disconnect has been called.
func (m *MockConn) Disconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnected
}

// Published returns everything sent through PublishData.
func (m *MockConn) Published() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.published))
	copy(out, m.published)
	return out
}

// ParticipantJoined simulates a non-agent participant joining.
func (m *MockConn) ParticipantJoined(identity string) {
	if m.handler.OnParticipantJoined != nil {
		m.handler.OnParticipantJoined(identity)
	}
}

// ParticipantLeft simulates a non-agent participant leaving.
func (m *MockConn) ParticipantLeft(identity string) {
	if m.handler.OnParticipantLeft != nil {
		m.handler.OnParticipantLeft(identity)
	}
}
