package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/agentdispatch/internal/observability"
	"github.com/antoniostano/agentdispatch/internal/pipeline"
	"github.com/antoniostano/agentdispatch/internal/room"
	"github.com/antoniostano/agentdispatch/internal/session"
)

// Providers bundles the voice pipeline backends a session needs.
type Providers struct {
	STT     pipeline.STTProvider
	TTS     pipeline.TTSProvider
	Brain   pipeline.Brain
	VoiceID string
	ModelID string
}

// Dispatcher starts sessions: it joins the room, brings up the voice
// pipeline and hands presence events to a fresh lifecycle monitor that
// ends the session on idle.
type Dispatcher struct {
	connector   room.Connector
	providers   Providers
	statuses    *session.Registry
	metrics     *observability.Metrics
	idleTimeout time.Duration

	mu     sync.Mutex
	active *activeSession
}

type activeSession struct {
	id      string
	conn    room.Conn
	monitor *session.Monitor
	pipe    *pipeline.Pipeline
}

func New(connector room.Connector, providers Providers, statuses *session.Registry, metrics *observability.Metrics, idleTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		connector:   connector,
		providers:   providers,
		statuses:    statuses,
		metrics:     metrics,
		idleTimeout: idleTimeout,
	}
}

// StartSession validates the configuration and brings one session up.
// It returns the session ID once the agent has joined and the pipeline
// is running; the session then lives on its own until the monitor
// tears it down.
func (d *Dispatcher) StartSession(ctx context.Context, cfg session.Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	d.statuses.Begin(id, cfg.RoomName, cfg.AgentName)
	d.metrics.SessionEvents.WithLabelValues("created").Inc()
	start := time.Now()

	as := &activeSession{id: id}
	as.monitor = session.NewMonitor(d.idleTimeout, func() error { return d.teardown(as) })

	h := room.Handler{
		OnParticipantJoined: func(identity string) {
			d.metrics.PresenceEvents.WithLabelValues("joined").Inc()
			as.monitor.ParticipantJoined()
		},
		OnParticipantLeft: func(identity string) {
			d.metrics.PresenceEvents.WithLabelValues("left").Inc()
			as.monitor.ParticipantLeft()
		},
		OnDisconnected: func() {
			if as.monitor.State() == session.MonitorEnded {
				return
			}
			// Transport dropped underneath us; the session cannot recover.
			log.Printf("session %s: room connection lost", id)
			d.statuses.Set(id, false, session.StateError)
			d.metrics.SessionEvents.WithLabelValues("connection_lost").Inc()
		},
	}

	conn, err := d.connector.Connect(ctx, cfg, h)
	if err != nil {
		d.statuses.Set(id, false, session.StateError)
		d.metrics.SessionEvents.WithLabelValues("start_error").Inc()
		return "", fmt.Errorf("session start: %w", err)
	}
	as.conn = conn
	d.statuses.Set(id, true, session.StateJoined)

	pipe := pipeline.New(d.providers.STT, d.providers.TTS, d.providers.Brain, conn, pipeline.Config{
		SessionID:     id,
		VoiceID:       d.providers.VoiceID,
		ModelID:       d.providers.ModelID,
		InitialPrompt: cfg.InitialPrompt,
	})
	if err := pipe.Start(ctx); err != nil {
		_ = conn.Disconnect()
		d.statuses.Set(id, false, session.StateError)
		d.metrics.SessionEvents.WithLabelValues("start_error").Inc()
		return "", fmt.Errorf("session start: %w", err)
	}
	as.pipe = pipe

	d.mu.Lock()
	d.active = as
	d.mu.Unlock()

	as.monitor.Start()
	d.metrics.ActiveSessions.Inc()
	d.metrics.SessionEvents.WithLabelValues("joined").Inc()
	d.metrics.ObserveSessionStart(time.Since(start))
	log.Printf("session %s: agent %s joined room %s", id, cfg.AgentName, cfg.RoomName)
	return id, nil
}

// teardown is the monitor's teardown action: it ends the session after
// the idle window elapses with no participants.
func (d *Dispatcher) teardown(as *activeSession) error {
	d.mu.Lock()
	if d.active == as {
		d.active = nil
	}
	d.mu.Unlock()
	d.metrics.ActiveSessions.Dec()

	var firstErr error
	if as.pipe != nil {
		if err := as.pipe.Close(); err != nil {
			firstErr = err
		}
	}
	if as.conn != nil {
		if err := as.conn.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		d.statuses.Set(as.id, false, session.StateError)
		d.metrics.SessionEvents.WithLabelValues("teardown_error").Inc()
		log.Printf("session %s: teardown failed: %v", as.id, firstErr)
		return firstErr
	}
	d.statuses.Set(as.id, false, session.StateIdle)
	d.metrics.SessionEvents.WithLabelValues("idle_teardown").Inc()
	log.Printf("session %s: idle teardown complete", as.id)
	return nil
}

// Ping measures round-trip time on the most recent live session's
// connection.
func (d *Dispatcher) Ping(ctx context.Context) (time.Duration, error) {
	d.mu.Lock()
	as := d.active
	d.mu.Unlock()
	if as == nil {
		return 0, room.ErrNoActiveRoom
	}
	return as.conn.Ping(ctx)
}
