package session

import "testing"

func TestRegistryDefaultIsUnknown(t *testing.T) {
	r := NewRegistry()
	got := r.Latest()
	if got.Joined || got.RoomName != "" || got.AgentName != "" || got.State != StateUnknown {
		t.Fatalf("Latest() = %+v, want default unknown tuple", got)
	}
}

func TestRegistryBeginAndSet(t *testing.T) {
	r := NewRegistry()
	r.Begin("s1", "r1", "a1")

	got := r.Latest()
	if got.State != StateWaiting || got.RoomName != "r1" || got.AgentName != "a1" || got.Joined {
		t.Fatalf("Latest() after Begin = %+v", got)
	}

	r.Set("s1", true, StateJoined)
	got = r.Latest()
	if !got.Joined || got.State != StateJoined {
		t.Fatalf("Latest() after Set = %+v", got)
	}
}

func TestRegistryLatestTracksNewestSession(t *testing.T) {
	r := NewRegistry()
	r.Begin("s1", "r1", "a1")
	r.Set("s1", true, StateJoined)
	r.Begin("s2", "r2", "a2")

	got := r.Latest()
	if got.RoomName != "r2" || got.State != StateWaiting {
		t.Fatalf("Latest() = %+v, want s2 waiting", got)
	}

	// The older session keeps its own record.
	s1, ok := r.Get("s1")
	if !ok || s1.State != StateJoined {
		t.Fatalf("Get(s1) = %+v ok=%v, want joined", s1, ok)
	}
}

func TestRegistrySetUnknownIDIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.Set("missing", true, StateJoined)
	if got := r.Latest(); got.State != StateUnknown {
		t.Fatalf("Latest() = %+v, want unknown", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"complete", Config{RoomName: "r1", AgentName: "a1", JoinToken: "t1"}, false},
		{"missing room", Config{AgentName: "a1", JoinToken: "t1"}, true},
		{"missing agent", Config{RoomName: "r1", JoinToken: "t1"}, true},
		{"missing token", Config{RoomName: "r1", AgentName: "a1"}, true},
		{"whitespace token", Config{RoomName: "r1", AgentName: "a1", JoinToken: "  "}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if tc.wantErr && err.Error() != "room_name, agent_name, and join_token are required" {
				t.Fatalf("Validate() message = %q", err.Error())
			}
		})
	}
}
