/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/tejzpr/amoura-go-sdk/amourasdk"
)

// PeerConfig holds configuration for the pion media engine
type PeerConfig struct {
	// ICEServers is the list of ICE servers (STUN/TURN) to use
	ICEServers []webrtc.ICEServer

	// AllowMicrophone and AllowCamera are the capture permission policy.
	// A disallowed device fails track creation with ErrPermissionDenied.
	AllowMicrophone bool
	AllowCamera     bool

	// Negotiator exchanges the offer for the media server's answer
	Negotiator Negotiator

	// Logger for engine diagnostics. If nil, logging is discarded.
	Logger amourasdk.Logger
}

// DefaultPeerConfig returns a PeerConfig with sensible defaults
func DefaultPeerConfig() *PeerConfig {
	return &PeerConfig{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		AllowMicrophone: true,
		AllowCamera:     true,
	}
}

// PeerEngine is an Engine backed by a pion PeerConnection to the media server
type PeerEngine struct {
	api    *webrtc.API
	config *PeerConfig
	logger amourasdk.Logger

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	state     ConnectionState
	creds     Credentials
	senders   map[string]*webrtc.RTPSender
	remote    map[TrackKind]bool
	announced bool
	onRemote  func(RemoteEvent)
}

// NewPeerEngine creates a pion engine with the default codecs and interceptors
func NewPeerEngine(config *PeerConfig) (*PeerEngine, error) {
	if config == nil {
		config = DefaultPeerConfig()
	}
	if config.Negotiator == nil {
		return nil, fmt.Errorf("peer engine requires a negotiator")
	}
	logger := config.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
	)

	return &PeerEngine{
		api:     api,
		config:  config,
		logger:  logger,
		state:   ConnectionStateDisconnected,
		senders: make(map[string]*webrtc.RTPSender),
		remote:  make(map[TrackKind]bool),
	}, nil
}

// OnRemote implements Engine
func (e *PeerEngine) OnRemote(handler func(RemoteEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRemote = handler
}

func (e *PeerEngine) emit(ev RemoteEvent) {
	e.mu.Lock()
	handler := e.onRemote
	e.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

// CreateMicrophoneTrack implements Engine with an Opus sample track
func (e *PeerEngine) CreateMicrophoneTrack(ctx context.Context) (LocalTrack, error) {
	if !e.config.AllowMicrophone {
		return nil, ErrPermissionDenied
	}
	return newSampleTrack(TrackKindAudio, webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	})
}

// CreateCameraTrack implements Engine with a VP8 sample track
func (e *PeerEngine) CreateCameraTrack(ctx context.Context) (LocalTrack, error) {
	if !e.config.AllowCamera {
		return nil, ErrPermissionDenied
	}
	return newSampleTrack(TrackKindVideo, webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	})
}

// Join implements Engine. The channel is considered connected once the
// media server has answered the offer.
func (e *PeerEngine) Join(ctx context.Context, creds Credentials) error {
	e.mu.Lock()
	if e.state.Live() {
		e.mu.Unlock()
		return fmt.Errorf("peer engine already joined to %s", e.creds.Channel)
	}
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.config.ICEServers})
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	e.pc = pc
	e.creds = creds
	e.state = ConnectionStateConnecting
	e.remote = make(map[TrackKind]bool)
	e.announced = false
	e.mu.Unlock()

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.logger.Printf("MediaEngine: remote %s track %s", track.Kind(), track.Codec().MimeType)
		kind := TrackKindAudio
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			kind = TrackKindVideo
		}
		e.markRemote(kind, true)
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		e.logger.Printf("MediaEngine: connection state %s", s.String())
		if s == webrtc.PeerConnectionStateFailed {
			e.mu.Lock()
			current := e.pc == pc && e.state == ConnectionStateConnected
			e.mu.Unlock()
			if current {
				e.emit(RemoteEvent{Type: RemoteUserLeft})
			}
		}
	})

	addRecvOnlyTransceivers(pc, e.logger)

	if err := e.negotiate(ctx, pc); err != nil {
		e.mu.Lock()
		e.pc = nil
		e.state = ConnectionStateDisconnected
		e.mu.Unlock()
		_ = pc.Close()
		return err
	}

	e.mu.Lock()
	if e.pc == pc {
		e.state = ConnectionStateConnected
	}
	e.mu.Unlock()
	return nil
}

// addRecvOnlyTransceivers makes every offer carry audio and video m-lines
// so the counterparty's media is received before anything is published.
func addRecvOnlyTransceivers(pc *webrtc.PeerConnection, logger amourasdk.Logger) {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			logger.Printf("MediaEngine: AddTransceiver(%s) error: %v", kind, err)
		}
	}
}

// negotiate runs one offer/answer round with the media server
func (e *PeerEngine) negotiate(ctx context.Context, pc *webrtc.PeerConnection) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		return fmt.Errorf("local description is nil after gathering")
	}

	e.mu.Lock()
	creds := e.creds
	e.mu.Unlock()

	answer, err := e.config.Negotiator.Negotiate(ctx, creds, local.SDP)
	if err != nil {
		return fmt.Errorf("negotiation failed: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	kinds, err := remoteSendingKinds(answer)
	if err != nil {
		e.logger.Printf("MediaEngine: could not inspect answer: %v", err)
		return nil
	}
	for _, kind := range []TrackKind{TrackKindAudio, TrackKindVideo} {
		e.markRemote(kind, kinds[kind])
	}
	return nil
}

// markRemote records whether the remote side sends kind and emits the change
func (e *PeerEngine) markRemote(kind TrackKind, sending bool) {
	e.mu.Lock()
	uid := e.creds.UID
	var events []RemoteEvent
	if sending && !e.announced {
		e.announced = true
		events = append(events, RemoteEvent{Type: RemoteUserJoined, UID: uid})
	}
	if e.remote[kind] != sending {
		e.remote[kind] = sending
		typ := RemoteUserUnpublished
		if sending {
			typ = RemoteUserPublished
		}
		events = append(events, RemoteEvent{Type: typ, UID: uid, Kind: kind})
	}
	e.mu.Unlock()

	for _, ev := range events {
		e.emit(ev)
	}
}

// remoteSendingKinds returns the media kinds the answer says the remote sends
func remoteSendingKinds(answer string) (map[TrackKind]bool, error) {
	var desc sdp.SessionDescription
	if err := desc.UnmarshalString(answer); err != nil {
		return nil, err
	}
	kinds := make(map[TrackKind]bool)
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Port.Value == 0 {
			continue
		}
		_, sendrecv := md.Attribute("sendrecv")
		_, sendonly := md.Attribute("sendonly")
		if !sendrecv && !sendonly {
			continue
		}
		switch md.MediaName.Media {
		case "audio":
			kinds[TrackKindAudio] = true
		case "video":
			kinds[TrackKindVideo] = true
		}
	}
	return kinds, nil
}

// Publish implements Engine by adding the tracks and renegotiating
func (e *PeerEngine) Publish(ctx context.Context, tracks ...LocalTrack) error {
	e.mu.Lock()
	pc := e.pc
	if pc == nil {
		e.mu.Unlock()
		return fmt.Errorf("peer engine is not joined")
	}
	added := 0
	for _, t := range tracks {
		st, ok := t.(*SampleTrack)
		if !ok {
			e.mu.Unlock()
			return fmt.Errorf("unsupported track type %T", t)
		}
		if _, exists := e.senders[st.ID()]; exists {
			continue
		}
		sender, err := pc.AddTrack(st.local)
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("failed to add %s track: %w", st.Kind(), err)
		}
		e.senders[st.ID()] = sender
		added++
		go drainRTCP(sender)
	}
	e.mu.Unlock()

	if added == 0 {
		return nil
	}
	return e.negotiate(ctx, pc)
}

// drainRTCP reads RTCP from the sender so interceptors keep running
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// Unpublish implements Engine
func (e *PeerEngine) Unpublish(ctx context.Context, tracks ...LocalTrack) error {
	e.mu.Lock()
	pc := e.pc
	if pc == nil {
		e.mu.Unlock()
		return nil
	}
	removed := 0
	for _, t := range tracks {
		sender, ok := e.senders[t.ID()]
		if !ok {
			continue
		}
		delete(e.senders, t.ID())
		if err := pc.RemoveTrack(sender); err != nil {
			e.logger.Printf("MediaEngine: remove %s track: %v", t.Kind(), err)
			continue
		}
		removed++
	}
	e.mu.Unlock()

	if removed == 0 {
		return nil
	}
	return e.negotiate(ctx, pc)
}

// Leave implements Engine
func (e *PeerEngine) Leave(ctx context.Context) error {
	e.mu.Lock()
	pc := e.pc
	e.pc = nil
	e.state = ConnectionStateDisconnected
	e.senders = make(map[string]*webrtc.RTPSender)
	e.remote = make(map[TrackKind]bool)
	e.announced = false
	e.mu.Unlock()

	if pc == nil {
		return nil
	}
	if err := pc.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}

// ConnectionState implements Engine
func (e *PeerEngine) ConnectionState() ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SampleTrack is a local track fed with encoded samples by the caller
type SampleTrack struct {
	kind  TrackKind
	local *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func newSampleTrack(kind TrackKind, codec webrtc.RTPCodecCapability) (*SampleTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(codec, string(kind)+"-"+uuid.NewString(), "amoura-"+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s track: %w", kind, err)
	}
	return &SampleTrack{kind: kind, local: local, enabled: true}, nil
}

// ID implements LocalTrack
func (t *SampleTrack) ID() string { return t.local.ID() }

// Kind implements LocalTrack
func (t *SampleTrack) Kind() TrackKind { return t.kind }

// SetEnabled implements LocalTrack
func (t *SampleTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.enabled = enabled
	}
}

// Enabled implements LocalTrack
func (t *SampleTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Stop implements LocalTrack
func (t *SampleTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.enabled = false
}

// Close implements LocalTrack
func (t *SampleTrack) Close() error {
	t.Stop()
	return nil
}

// WriteSample sends an encoded sample. Samples written while the track is
// disabled or stopped are dropped.
func (t *SampleTrack) WriteSample(sample pionmedia.Sample) error {
	t.mu.Lock()
	enabled := t.enabled
	t.mu.Unlock()
	if !enabled {
		return nil
	}
	return t.local.WriteSample(sample)
}
