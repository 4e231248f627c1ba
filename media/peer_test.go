/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/tejzpr/amoura-go-sdk/amourasdk"
)

// loopbackNegotiator answers offers with a local pion peer that sends audio
type loopbackNegotiator struct {
	mu    sync.Mutex
	pc    *webrtc.PeerConnection
	calls int
}

func (n *loopbackNegotiator) Negotiate(ctx context.Context, creds Credentials, offer string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++

	if n.pc == nil {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
		if err != nil {
			return "", err
		}
		track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio", "remote")
		if err != nil {
			return "", err
		}
		if _, err := pc.AddTrack(track); err != nil {
			return "", err
		}
		n.pc = pc
	}

	pc := n.pc
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return pc.LocalDescription().SDP, nil
}

func (n *loopbackNegotiator) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pc != nil {
		_ = n.pc.Close()
	}
}

func newTestPeerEngine(t *testing.T, neg Negotiator) *PeerEngine {
	t.Helper()
	cfg := DefaultPeerConfig()
	cfg.ICEServers = nil
	cfg.Negotiator = neg
	e, err := NewPeerEngine(cfg)
	if err != nil {
		t.Fatalf("NewPeerEngine failed: %v", err)
	}
	return e
}

func TestNewPeerEngine(t *testing.T) {
	t.Run("requires a negotiator", func(t *testing.T) {
		if _, err := NewPeerEngine(DefaultPeerConfig()); err == nil {
			t.Error("Expected an error without a negotiator")
		}
	})

	t.Run("starts disconnected", func(t *testing.T) {
		e := newTestPeerEngine(t, &loopbackNegotiator{})
		if e.ConnectionState() != ConnectionStateDisconnected {
			t.Errorf("Expected disconnected, got %s", e.ConnectionState())
		}
		if err := e.Leave(context.Background()); err != nil {
			t.Errorf("Expected Leave on an idle engine to succeed, got %v", err)
		}
	})
}

func TestPeerEngineTracks(t *testing.T) {
	e := newTestPeerEngine(t, &loopbackNegotiator{})

	mic, err := e.CreateMicrophoneTrack(context.Background())
	if err != nil {
		t.Fatalf("CreateMicrophoneTrack failed: %v", err)
	}
	if mic.Kind() != TrackKindAudio || !strings.HasPrefix(mic.ID(), "audio-") {
		t.Errorf("Unexpected microphone track %s (%s)", mic.ID(), mic.Kind())
	}
	if !mic.Enabled() {
		t.Error("Expected a new track to be enabled")
	}

	mic.SetEnabled(false)
	if mic.Enabled() {
		t.Error("Expected track disabled")
	}
	if err := mic.(*SampleTrack).WriteSample(pionmedia.Sample{Data: []byte{0x01}, Duration: 20 * time.Millisecond}); err != nil {
		t.Errorf("Expected writes to a disabled track to be dropped, got %v", err)
	}

	_ = mic.Close()
	mic.SetEnabled(true)
	if mic.Enabled() {
		t.Error("Expected a closed track to stay disabled")
	}

	cam, err := e.CreateCameraTrack(context.Background())
	if err != nil {
		t.Fatalf("CreateCameraTrack failed: %v", err)
	}
	if cam.Kind() != TrackKindVideo {
		t.Errorf("Expected video, got %s", cam.Kind())
	}
}

func TestPeerEnginePermissions(t *testing.T) {
	cfg := DefaultPeerConfig()
	cfg.Negotiator = &loopbackNegotiator{}
	cfg.AllowCamera = false
	cfg.AllowMicrophone = false
	e, err := NewPeerEngine(cfg)
	if err != nil {
		t.Fatalf("NewPeerEngine failed: %v", err)
	}

	if _, err := e.CreateMicrophoneTrack(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for microphone, got %v", err)
	}
	if _, err := e.CreateCameraTrack(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for camera, got %v", err)
	}
}

func TestPeerEngineJoinLoopback(t *testing.T) {
	neg := &loopbackNegotiator{}
	defer neg.close()
	e := newTestPeerEngine(t, neg)

	var mu sync.Mutex
	var events []RemoteEvent
	e.OnRemote(func(ev RemoteEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Join(ctx, Credentials{Channel: "ch-1", UID: 42}); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if e.ConnectionState() != ConnectionStateConnected {
		t.Errorf("Expected connected, got %s", e.ConnectionState())
	}
	if err := e.Join(ctx, Credentials{Channel: "ch-2"}); err == nil {
		t.Error("Expected a second join to fail")
	}

	mu.Lock()
	if len(events) < 2 || events[0].Type != RemoteUserJoined || events[1].Type != RemoteUserPublished || events[1].Kind != TrackKindAudio {
		t.Errorf("Expected user-joined then audio user-published, got %+v", events)
	}
	mu.Unlock()

	mic, err := e.CreateMicrophoneTrack(ctx)
	if err != nil {
		t.Fatalf("CreateMicrophoneTrack failed: %v", err)
	}
	if err := e.Publish(ctx, mic); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := e.Publish(ctx, mic); err != nil {
		t.Fatalf("Republishing the same track failed: %v", err)
	}
	neg.mu.Lock()
	rounds := neg.calls
	neg.mu.Unlock()
	if rounds != 2 {
		t.Errorf("Expected 2 negotiation rounds, got %d", rounds)
	}

	if err := e.Unpublish(ctx, mic); err != nil {
		t.Fatalf("Unpublish failed: %v", err)
	}

	if err := e.Leave(ctx); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if e.ConnectionState() != ConnectionStateDisconnected {
		t.Errorf("Expected disconnected after leave, got %s", e.ConnectionState())
	}
}

type failingNegotiator struct{}

func (failingNegotiator) Negotiate(context.Context, Credentials, string) (string, error) {
	return "", errors.New("media server unavailable")
}

func TestPeerEngineJoinFailure(t *testing.T) {
	e := newTestPeerEngine(t, failingNegotiator{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Join(ctx, Credentials{Channel: "ch-1"}); err == nil {
		t.Fatal("Expected join to fail")
	}
	if e.ConnectionState() != ConnectionStateDisconnected {
		t.Errorf("Expected disconnected after a failed join, got %s", e.ConnectionState())
	}
}

func TestRemoteSendingKinds(t *testing.T) {
	answer := strings.Join([]string{
		"v=0",
		"o=- 0 0 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"m=audio 9 UDP/TLS/RTP/SAVPF 111",
		"a=sendrecv",
		"m=video 0 UDP/TLS/RTP/SAVPF 96",
		"a=sendonly",
		"m=video 9 UDP/TLS/RTP/SAVPF 97",
		"a=recvonly",
		"",
	}, "\r\n")

	kinds, err := remoteSendingKinds(answer)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !kinds[TrackKindAudio] {
		t.Error("Expected audio to be sending")
	}
	if kinds[TrackKindVideo] {
		t.Error("Expected video not to be sending")
	}

	if _, err := remoteSendingKinds("not sdp"); err == nil {
		t.Error("Expected an error for invalid sdp")
	}
}

func TestHTTPNegotiator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/media/channels/ch-1/sdp" {
			t.Errorf("Expected POST /media/channels/ch-1/sdp, got %s %s", r.Method, r.URL.Path)
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["type"] != "offer" || body["sdp"] != "offer-sdp" || body["token"] != "tok" || body["uid"] != float64(7) {
			t.Errorf("Unexpected body %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"type": "answer", "sdp": "answer-sdp"})
	}))
	defer server.Close()

	core, err := amourasdk.NewClient("test-token", &amourasdk.Config{BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create core client: %v", err)
	}
	neg := NewHTTPNegotiator(core)

	answer, err := neg.Negotiate(context.Background(), Credentials{Channel: "ch-1", Token: "tok", UID: 7}, "offer-sdp")
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}
	if answer != "answer-sdp" {
		t.Errorf("Expected answer-sdp, got %q", answer)
	}

	if _, err := neg.Negotiate(context.Background(), Credentials{}, "offer-sdp"); err == nil {
		t.Error("Expected an error without a channel")
	}
}
