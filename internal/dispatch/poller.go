package dispatch

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/antoniostano/agentdispatch/internal/jobs"
)

// Poller drains the job queue: each cycle it claims at most one
// pending job and starts a session for it.
type Poller struct {
	store      jobs.Store
	dispatcher *Dispatcher
	interval   time.Duration
}

func NewPoller(store jobs.Store, dispatcher *Dispatcher, interval time.Duration) *Poller {
	return &Poller{store: store, dispatcher: dispatcher, interval: interval}
}

// Run polls until the context is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	log.Printf("job poller: polling every %s", p.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	job, err := p.store.ClaimPending(ctx)
	if err != nil {
		if !errors.Is(err, jobs.ErrNoPendingJobs) {
			log.Printf("job poller: claim failed: %v", err)
		}
		return
	}
	p.dispatcher.metrics.JobEvents.WithLabelValues("claimed").Inc()
	log.Printf("job poller: claimed job %s (room %s)", job.ID, job.RoomName)

	if _, err := p.dispatcher.StartSession(ctx, job.SessionConfig()); err != nil {
		log.Printf("job poller: job %s failed to start: %v", job.ID, err)
		if merr := p.store.MarkError(ctx, job.ID); merr != nil {
			log.Printf("job poller: job %s: mark error failed: %v", job.ID, merr)
		}
		if lerr := p.store.AppendCallLog(ctx, jobs.CallLogEntry{
			RoomName:     job.RoomName,
			AgentName:    job.AgentName,
			UserMetadata: job.UserMetadata,
			ResultStatus: string(jobs.StatusError),
			ErrorMessage: err.Error(),
		}); lerr != nil {
			log.Printf("job poller: job %s: call log append failed: %v", job.ID, lerr)
		}
		p.dispatcher.metrics.JobEvents.WithLabelValues("error").Inc()
		return
	}

	if err := p.store.MarkCompleted(ctx, job.ID); err != nil {
		log.Printf("job poller: job %s: mark completed failed: %v", job.ID, err)
	}
	if err := p.store.AppendCallLog(ctx, jobs.CallLogEntry{
		RoomName:     job.RoomName,
		AgentName:    job.AgentName,
		UserMetadata: job.UserMetadata,
		ResultStatus: string(jobs.StatusCompleted),
	}); err != nil {
		log.Printf("job poller: job %s: call log append failed: %v", job.ID, err)
	}
	p.dispatcher.metrics.JobEvents.WithLabelValues("completed").Inc()
}
