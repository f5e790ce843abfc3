package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/agentdispatch/internal/session"
)

// MemoryStore is the storeless-deployment fallback. Claims are
// serialized under one mutex, which gives the same at-most-once claim
// guarantee the postgres store gets from row locking.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	order   []string
	claimed map[string]bool
	log     []CallLogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*Job),
		claimed: make(map[string]bool),
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, cfg session.Config) (Job, error) {
	now := time.Now().UTC()
	j := &Job{
		ID:            uuid.NewString(),
		RoomName:      cfg.RoomName,
		AgentName:     cfg.AgentName,
		JoinToken:     cfg.JoinToken,
		AdminToken:    cfg.AdminToken,
		InitialPrompt: cfg.InitialPrompt,
		UserMetadata:  cfg.UserMetadata,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)
	return *j, nil
}

func (s *MemoryStore) ClaimPending(_ context.Context) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		j := s.jobs[id]
		if j.Status != StatusPending || s.claimed[id] {
			continue
		}
		s.claimed[id] = true
		j.UpdatedAt = time.Now().UTC()
		return *j, nil
	}
	return Job{}, ErrNoPendingJobs
}

func (s *MemoryStore) MarkCompleted(_ context.Context, jobID string) error {
	return s.setStatus(jobID, StatusCompleted)
}

func (s *MemoryStore) MarkError(_ context.Context, jobID string) error {
	return s.setStatus(jobID, StatusError)
}

func (s *MemoryStore) setStatus(jobID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

func (s *MemoryStore) AppendCallLog(_ context.Context, entry CallLogEntry) error {
	if entry.LogTime.IsZero() {
		entry.LogTime = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
	return nil
}

// CallLog returns a copy of the audit log, oldest first.
func (s *MemoryStore) CallLog() []CallLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallLogEntry, len(s.log))
	copy(out, s.log)
	return out
}

func (s *MemoryStore) Close() error { return nil }
