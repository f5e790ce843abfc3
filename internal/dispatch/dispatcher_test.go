package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/antoniostano/agentdispatch/internal/jobs"
	"github.com/antoniostano/agentdispatch/internal/observability"
	"github.com/antoniostano/agentdispatch/internal/pipeline"
	"github.com/antoniostano/agentdispatch/internal/room"
	"github.com/antoniostano/agentdispatch/internal/session"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_dispatch_%d", time.Now().UnixNano()))
}

func testProviders() Providers {
	mock := pipeline.NewMockProvider()
	return Providers{STT: mock, TTS: mock, Brain: mock, VoiceID: "voice", ModelID: "model"}
}

func testConfig() session.Config {
	return session.Config{RoomName: "room-1", AgentName: "agent-1", JoinToken: "tok"}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStartSessionJoinsAndReportsStatus(t *testing.T) {
	connector := room.NewMockConnector()
	statuses := session.NewRegistry()
	d := New(connector, testProviders(), statuses, testMetrics(), time.Minute)

	id, err := d.StartSession(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	st, ok := statuses.Get(id)
	if !ok {
		t.Fatalf("no status for session %s", id)
	}
	if !st.Joined || st.State != session.StateJoined {
		t.Fatalf("status = %+v, want joined", st)
	}
	if st.RoomName != "room-1" || st.AgentName != "agent-1" {
		t.Fatalf("status names = %q/%q", st.RoomName, st.AgentName)
	}
	if _, err := d.Ping(context.Background()); err != nil {
		t.Fatalf("Ping on live session: %v", err)
	}

	conn := connector.LastConn()
	waitFor(t, time.Second, func() bool { return len(conn.Published()) > 0 })
}

func TestStartSessionRejectsIncompleteConfig(t *testing.T) {
	d := New(room.NewMockConnector(), testProviders(), session.NewRegistry(), testMetrics(), time.Minute)
	_, err := d.StartSession(context.Background(), session.Config{RoomName: "only-room"})
	if !errors.Is(err, session.ErrMissingFields) {
		t.Fatalf("err = %v, want ErrMissingFields", err)
	}
}

func TestStartSessionConnectFailureSetsErrorStatus(t *testing.T) {
	connector := room.NewMockConnector()
	connector.ConnectErr = errors.New("refused")
	statuses := session.NewRegistry()
	d := New(connector, testProviders(), statuses, testMetrics(), time.Minute)

	if _, err := d.StartSession(context.Background(), testConfig()); err == nil {
		t.Fatal("expected start error")
	}
	st := statuses.Latest()
	if st.Joined || st.State != session.StateError {
		t.Fatalf("status = %+v, want error", st)
	}
	if _, err := d.Ping(context.Background()); !errors.Is(err, room.ErrNoActiveRoom) {
		t.Fatalf("Ping err = %v, want ErrNoActiveRoom", err)
	}
}

func TestIdleTeardownEndsSession(t *testing.T) {
	connector := room.NewMockConnector()
	statuses := session.NewRegistry()
	d := New(connector, testProviders(), statuses, testMetrics(), 30*time.Millisecond)

	id, err := d.StartSession(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	conn := connector.LastConn()

	waitFor(t, time.Second, func() bool { return conn.Disconnected() })
	st, _ := statuses.Get(id)
	if st.Joined || st.State != session.StateIdle {
		t.Fatalf("status = %+v, want idle after teardown", st)
	}
	if _, err := d.Ping(context.Background()); !errors.Is(err, room.ErrNoActiveRoom) {
		t.Fatalf("Ping after teardown = %v, want ErrNoActiveRoom", err)
	}
}

func TestParticipantPresenceDefersTeardown(t *testing.T) {
	connector := room.NewMockConnector()
	statuses := session.NewRegistry()
	d := New(connector, testProviders(), statuses, testMetrics(), 40*time.Millisecond)

	id, err := d.StartSession(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	conn := connector.LastConn()
	conn.ParticipantJoined("caller")

	time.Sleep(80 * time.Millisecond)
	if conn.Disconnected() {
		t.Fatal("session torn down while a participant was present")
	}
	st, _ := statuses.Get(id)
	if st.State != session.StateJoined {
		t.Fatalf("state = %q, want joined", st.State)
	}

	conn.ParticipantLeft("caller")
	waitFor(t, time.Second, func() bool { return conn.Disconnected() })
}

func TestTeardownFailureSetsErrorStatus(t *testing.T) {
	connector := room.NewMockConnector()
	connector.DisconnectErr = errors.New("server unreachable")
	statuses := session.NewRegistry()
	d := New(connector, testProviders(), statuses, testMetrics(), 20*time.Millisecond)

	id, err := d.StartSession(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		st, _ := statuses.Get(id)
		return st.State == session.StateError
	})
}

func TestPollerRunsOldestJobToCompletion(t *testing.T) {
	store := jobs.NewMemoryStore()
	first, err := store.Enqueue(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Enqueue(context.Background(), session.Config{
		RoomName: "room-2", AgentName: "agent-2", JoinToken: "tok2",
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	connector := room.NewMockConnector()
	d := New(connector, testProviders(), session.NewRegistry(), testMetrics(), time.Minute)
	p := NewPoller(store, d, time.Second)

	p.pollOnce(context.Background())

	got, err := store.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.StatusCompleted {
		t.Fatalf("first job status = %q, want completed", got.Status)
	}
	if conn := connector.LastConn(); conn == nil || conn.Name() != "room-1" {
		t.Fatal("expected a session for the oldest job's room")
	}
	log := store.CallLog()
	if len(log) != 1 || log[0].ResultStatus != string(jobs.StatusCompleted) {
		t.Fatalf("call log = %+v, want one completed entry", log)
	}
}

func TestPollerMarksFailedStartAsError(t *testing.T) {
	store := jobs.NewMemoryStore()
	job, err := store.Enqueue(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	connector := room.NewMockConnector()
	connector.ConnectErr = errors.New("refused")
	d := New(connector, testProviders(), session.NewRegistry(), testMetrics(), time.Minute)
	p := NewPoller(store, d, time.Second)

	p.pollOnce(context.Background())

	got, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.StatusError {
		t.Fatalf("status = %q, want error", got.Status)
	}
	log := store.CallLog()
	if len(log) != 1 || log[0].ResultStatus != string(jobs.StatusError) || log[0].ErrorMessage == "" {
		t.Fatalf("call log = %+v, want one error entry with a message", log)
	}
}

func TestPollerIgnoresEmptyQueue(t *testing.T) {
	store := jobs.NewMemoryStore()
	d := New(room.NewMockConnector(), testProviders(), session.NewRegistry(), testMetrics(), time.Minute)
	p := NewPoller(store, d, time.Second)
	p.pollOnce(context.Background())
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	store := jobs.NewMemoryStore()
	d := New(room.NewMockConnector(), testProviders(), session.NewRegistry(), testMetrics(), time.Minute)
	p := NewPoller(store, d, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
