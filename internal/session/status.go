package session

import "sync"

type State string

const (
	StateUnknown State = "unknown"
	StateWaiting State = "waiting"
	StateJoined  State = "joined"
	StateIdle    State = "idle"
	StateError   State = "error"
)

// Status is the externally visible tuple for one session.
type Status struct {
	Joined    bool
	RoomName  string
	AgentName string
	State     State
}

// Registry keeps per-session status records plus a pointer to the most
// recently started session, which backs the status endpoint.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Status
	latestID string
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Status)}
}

// Begin registers a fresh session in the waiting state and makes it
// the latest one.
func (r *Registry) Begin(sessionID, roomName, agentName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[sessionID] = &Status{
		RoomName:  roomName,
		AgentName: agentName,
		State:     StateWaiting,
	}
	r.latestID = sessionID
}

// Set unconditionally overwrites the join flag and state for a session.
// Unknown session IDs are ignored.
func (r *Registry) Set(sessionID string, joined bool, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok {
		return
	}
	s.Joined = joined
	s.State = state
}

// Get returns a copy of one session's status.
func (r *Registry) Get(sessionID string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[sessionID]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// Latest returns the most recently started session's status, or the
// default unknown tuple when no session has ever started.
func (r *Registry) Latest() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byID[r.latestID]; ok {
		return *s
	}
	return Status{State: StateUnknown}
}
