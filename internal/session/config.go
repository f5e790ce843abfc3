package session

import (
	"errors"
	"strings"
)

// ErrMissingFields is returned verbatim to intake callers.
var ErrMissingFields = errors.New("room_name, agent_name, and join_token are required")

// Config carries everything a session needs to start. It is immutable
// once the session is running; the session owns it until teardown.
type Config struct {
	RoomName      string         `json:"room_name"`
	AgentName     string         `json:"agent_name"`
	JoinToken     string         `json:"join_token"`
	AdminToken    string         `json:"admin_token,omitempty"`
	InitialPrompt string         `json:"initial_prompt,omitempty"`
	UserMetadata  map[string]any `json:"user_metadata,omitempty"`
}

// Validate enforces the intake contract: room, agent identity and a
// join credential are all required.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RoomName) == "" ||
		strings.TrimSpace(c.AgentName) == "" ||
		strings.TrimSpace(c.JoinToken) == "" {
		return ErrMissingFields
	}
	return nil
}
