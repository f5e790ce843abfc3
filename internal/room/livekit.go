package room

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/antoniostano/agentdispatch/internal/session"
)

// LiveKitConnector joins LiveKit rooms with a caller-provided join
// token. When an API key/secret pair is configured it also gets an
// admin client for room cleanup after idle teardown.
type LiveKitConnector struct {
	url        string
	httpClient *http.Client
	svc        *lksdk.RoomServiceClient
}

func NewLiveKitConnector(url, apiKey, apiSecret string) *LiveKitConnector {
	c := &LiveKitConnector{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	if apiKey != "" && apiSecret != "" {
		c.svc = lksdk.NewRoomServiceClient(httpURL(c.url), apiKey, apiSecret)
	}
	return c
}

func (c *LiveKitConnector) Connect(ctx context.Context, cfg session.Config, h Handler) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agentIdentity := cfg.AgentName
	cb := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				log.Printf("room %s: subscribed to %s track from %s", cfg.RoomName, track.Kind(), rp.Identity())
			},
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			if rp.Identity() == agentIdentity {
				return
			}
			if h.OnParticipantJoined != nil {
				h.OnParticipantJoined(rp.Identity())
			}
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			if rp.Identity() == agentIdentity {
				return
			}
			if h.OnParticipantLeft != nil {
				h.OnParticipantLeft(rp.Identity())
			}
		},
		OnDisconnected: func() {
			if h.OnDisconnected != nil {
				h.OnDisconnected()
			}
		},
	}

	lkRoom, err := lksdk.ConnectToRoomWithToken(c.url, cfg.JoinToken, cb, lksdk.WithAutoSubscribe(true))
	if err != nil {
		return nil, fmt.Errorf("connect to room %q: %w", cfg.RoomName, err)
	}

	// Participants already in the room never fire OnParticipantConnected,
	// so seed presence from the current roster.
	for _, rp := range lkRoom.GetRemoteParticipants() {
		if rp.Identity() == agentIdentity {
			continue
		}
		if h.OnParticipantJoined != nil {
			h.OnParticipantJoined(rp.Identity())
		}
	}

	return &liveKitConn{
		connector: c,
		roomName:  cfg.RoomName,
		lkRoom:    lkRoom,
	}, nil
}

type liveKitConn struct {
	connector *LiveKitConnector
	roomName  string
	lkRoom    *lksdk.Room
}

func (r *liveKitConn) Name() string { return r.roomName }

// Ping measures a round trip to the signal host. It does not need an
// authenticated endpoint; reachability plus latency is all the status
// surface reports.
func (r *liveKitConn) Ping(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpURL(r.connector.url), nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	res, err := r.connector.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ping transport host: %w", err)
	}
	_ = res.Body.Close()
	return time.Since(start), nil
}

func (r *liveKitConn) PublishData(_ context.Context, payload []byte) error {
	return r.lkRoom.LocalParticipant.PublishData(payload, lksdk.WithDataPublishReliable(true))
}

func (r *liveKitConn) Disconnect() error {
	r.lkRoom.Disconnect()
	if svc := r.connector.svc; svc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := svc.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: r.roomName}); err != nil {
			return fmt.Errorf("delete room %q: %w", r.roomName, err)
		}
	}
	return nil
}

func httpURL(wsURL string) string {
	switch {
	case strings.HasPrefix(wsURL, "wss://"):
		return "https://" + strings.TrimPrefix(wsURL, "wss://")
	case strings.HasPrefix(wsURL, "ws://"):
		return "http://" + strings.TrimPrefix(wsURL, "ws://")
	default:
		return wsURL
	}
}
