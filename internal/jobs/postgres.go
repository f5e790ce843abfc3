package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antoniostano/agentdispatch/internal/session"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initJobSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initJobSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_jobs (
			id TEXT PRIMARY KEY,
			room_name TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			join_token TEXT NOT NULL,
			admin_token TEXT NOT NULL DEFAULT '',
			initial_prompt TEXT NOT NULL DEFAULT '',
			user_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			status TEXT NOT NULL,
			claimed_at TIMESTAMPTZ NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_jobs_pending ON agent_jobs (created_at) WHERE status = 'pending';`,
		`CREATE TABLE IF NOT EXISTS agent_call_log (
			id BIGSERIAL PRIMARY KEY,
			room_name TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			user_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			result_status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			log_time TIMESTAMPTZ NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init job schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Enqueue(ctx context.Context, cfg session.Config) (Job, error) {
	now := time.Now().UTC()
	j := Job{
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
	meta := j.UserMetadata
	if meta == nil {
		meta = map[string]any{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_jobs (
			id, room_name, agent_name, join_token, admin_token, initial_prompt,
			user_metadata, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		j.ID,
		j.RoomName,
		j.AgentName,
		j.JoinToken,
		j.AdminToken,
		j.InitialPrompt,
		meta,
		string(j.Status),
		j.CreatedAt,
		j.UpdatedAt,
	)
	if err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	return j, nil
}

// ClaimPending marks the oldest unclaimed pending job as claimed and
// returns it. FOR UPDATE SKIP LOCKED makes concurrent claimers pick
// disjoint rows instead of blocking or double-claiming.
func (s *PostgresStore) ClaimPending(ctx context.Context) (Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE agent_jobs
		    SET claimed_at = now(), updated_at = now()
		  WHERE id = (
		        SELECT id FROM agent_jobs
		         WHERE status = 'pending' AND claimed_at IS NULL
		         ORDER BY created_at
		         LIMIT 1
		           FOR UPDATE SKIP LOCKED
		  )
		RETURNING id, room_name, agent_name, join_token, admin_token, initial_prompt,
		          user_metadata, status, created_at, updated_at`,
	)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNoPendingJobs
		}
		return Job{}, fmt.Errorf("claim pending job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, jobID string) error {
	return s.setStatus(ctx, jobID, StatusCompleted)
}

func (s *PostgresStore) MarkError(ctx context.Context, jobID string) error {
	return s.setStatus(ctx, jobID, StatusError)
}

func (s *PostgresStore) setStatus(ctx context.Context, jobID string, status Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_jobs SET status = $2, updated_at = now() WHERE id = $1`,
		jobID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, room_name, agent_name, join_token, admin_token, initial_prompt,
		        user_metadata, status, created_at, updated_at
		   FROM agent_jobs WHERE id = $1`,
		jobID,
	)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) AppendCallLog(ctx context.Context, entry CallLogEntry) error {
	if entry.LogTime.IsZero() {
		entry.LogTime = time.Now().UTC()
	}
	meta := entry.UserMetadata
	if meta == nil {
		meta = map[string]any{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_call_log (room_name, agent_name, user_metadata, result_status, error_message, log_time)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.RoomName,
		entry.AgentName,
		meta,
		entry.ResultStatus,
		entry.ErrorMessage,
		entry.LogTime,
	)
	if err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		j      Job
		status string
	)
	if err := row.Scan(
		&j.ID,
		&j.RoomName,
		&j.AgentName,
		&j.JoinToken,
		&j.AdminToken,
		&j.InitialPrompt,
		&j.UserMetadata,
		&status,
		&j.CreatedAt,
		&j.UpdatedAt,
	); err != nil {
		return Job{}, err
	}
	j.Status = Status(status)
	return j, nil
}
