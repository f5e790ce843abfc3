package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/antoniostano/agentdispatch/internal/session"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrNoPendingJobs = errors.New("no pending jobs")
)

// Job is a durably queued request to start a session. Jobs are never
// deleted; the store keeps the full history.
type Job struct {
	ID            string         `json:"id"`
	RoomName      string         `json:"room_name"`
	AgentName     string         `json:"agent_name"`
	JoinToken     string         `json:"join_token"`
	AdminToken    string         `json:"admin_token,omitempty"`
	InitialPrompt string         `json:"initial_prompt,omitempty"`
	UserMetadata  map[string]any `json:"user_metadata,omitempty"`
	Status        Status         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SessionConfig rebuilds the session configuration the job was
// enqueued with.
func (j Job) SessionConfig() session.Config {
	return session.Config{
		RoomName:      j.RoomName,
		AgentName:     j.AgentName,
		JoinToken:     j.JoinToken,
		AdminToken:    j.AdminToken,
		InitialPrompt: j.InitialPrompt,
		UserMetadata:  j.UserMetadata,
	}
}

// CallLogEntry is one audit row describing how a dispatched call ended.
type CallLogEntry struct {
	RoomName     string
	AgentName    string
	UserMetadata map[string]any
	ResultStatus string
	ErrorMessage string
	LogTime      time.Time
}

// Store persists job records and the call audit log.
//
// ClaimPending atomically claims the oldest pending job so that two
// pollers can never start the same job twice; it returns
// ErrNoPendingJobs when the queue is empty.
type Store interface {
	Enqueue(ctx context.Context, cfg session.Config) (Job, error)
	ClaimPending(ctx context.Context) (Job, error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkError(ctx context.Context, jobID string) error
	Get(ctx context.Context, jobID string) (Job, error)
	AppendCallLog(ctx context.Context, entry CallLogEntry) error
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
