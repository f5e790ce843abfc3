package session

import (
	"sync"
	"time"
)

type MonitorState string

const (
	MonitorActive       MonitorState = "active"
	MonitorCountingDown MonitorState = "counting_down"
	MonitorEnded        MonitorState = "ended"
)

// DefaultIdleTimeout is how long a session survives with zero
// participants before it tears itself down.
const DefaultIdleTimeout = 60 * time.Second

// Monitor keeps one session alive while any non-agent participant is
// present and tears it down after a fixed idle period at zero presence.
//
// A monitor serves exactly one session. It starts counting down
// immediately, because an agent session begins before any participant
// has confirmed. All transitions are serialized under one mutex; a
// generation counter makes a timer that lost the cancel race fire as a
// no-op.
type Monitor struct {
	mu       sync.Mutex
	delay    time.Duration
	teardown func() error

	presence int
	state    MonitorState
	timer    *time.Timer
	gen      uint64

	done        chan struct{}
	teardownErr error
}

// NewMonitor builds a monitor around a teardown action. The action is
// invoked at most once, outside the monitor lock. A non-positive delay
// falls back to DefaultIdleTimeout.
func NewMonitor(delay time.Duration, teardown func() error) *Monitor {
	if delay <= 0 {
		delay = DefaultIdleTimeout
	}
	if teardown == nil {
		teardown = func() error { return nil }
	}
	return &Monitor{
		delay:    delay,
		teardown: teardown,
		state:    MonitorCountingDown,
		done:     make(chan struct{}),
	}
}

// Start arms the initial countdown. Call once, right after the session
// successfully starts.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != MonitorCountingDown || m.timer != nil {
		return
	}
	m.armLocked()
}

// ParticipantJoined records one more non-agent participant and cancels
// any pending teardown.
func (m *Monitor) ParticipantJoined() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == MonitorEnded {
		return
	}
	m.presence++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
		m.gen++
	}
	m.state = MonitorActive
}

// ParticipantLeft records a departure. The count clamps at zero, so a
// duplicated or out-of-order leave event is a no-op and never re-arms
// an already-running countdown.
func (m *Monitor) ParticipantLeft() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == MonitorEnded {
		return
	}
	if m.presence == 0 {
		return
	}
	m.presence--
	if m.presence == 0 && m.state == MonitorActive {
		m.armLocked()
	}
}

// armLocked schedules a single teardown m.delay from now. Caller holds
// the lock. At most one timer exists at any instant.
func (m *Monitor) armLocked() {
	m.state = MonitorCountingDown
	m.gen++
	gen := m.gen
	m.timer = time.AfterFunc(m.delay, func() { m.fire(gen) })
}

func (m *Monitor) fire(gen uint64) {
	m.mu.Lock()
	if m.state != MonitorCountingDown || gen != m.gen {
		// A join cancelled this countdown between scheduling and firing.
		m.mu.Unlock()
		return
	}
	m.state = MonitorEnded
	m.timer = nil
	m.mu.Unlock()

	err := m.teardown()

	m.mu.Lock()
	m.teardownErr = err
	m.mu.Unlock()
	close(m.done)
}

// State reports the current lifecycle state.
func (m *Monitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Presence reports the current non-agent participant count.
func (m *Monitor) Presence() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.presence
}

// Done is closed once teardown has run, successfully or not.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// TeardownErr reports the teardown failure, if any. Only meaningful
// after Done is closed.
func (m *Monitor) TeardownErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teardownErr
}
