/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package media owns the local capture tracks and the media channel
// connection of a call. The Adapter drives an Engine through join, publish
// and leave, and tells the backend when billing should start and stop. It
// has no knowledge of call session state.
package media

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tejzpr/amoura-go-sdk/amourasdk"
	"github.com/tejzpr/amoura-go-sdk/calls"
)

var (
	// ErrJoinInProgress is returned when a join is attempted while another is running
	ErrJoinInProgress = errors.New("media: join already in progress")

	// ErrJoinSuperseded is returned by a join abandoned because Leave was called.
	// It wraps context.Canceled so callers can treat it as a benign race.
	ErrJoinSuperseded = fmt.Errorf("media: join superseded by leave: %w", context.Canceled)

	// ErrAlreadyJoined is returned when joining while another call holds the channel
	ErrAlreadyJoined = errors.New("media: already joined to another call")

	// ErrNotJoined is returned by toggles when no call is joined
	ErrNotJoined = errors.New("media: not joined")

	// ErrMissingCredentials is returned when a descriptor has no channel
	ErrMissingCredentials = errors.New("media: call has no channel credentials")
)

// Adapter events
const (
	EventUserJoined        = "user-joined"
	EventUserLeft          = "user-left"
	EventRemoteTrack       = "remote-track"
	EventDuration          = "duration"
	EventCameraUnavailable = "camera-unavailable"
)

// API is the part of the calls client the adapter needs
type API interface {
	Initiate(ctx context.Context, calleeID string, callType calls.CallType, confirmReturnCall bool) (*calls.InitiateResult, error)
	Start(ctx context.Context, callID string) (*calls.Descriptor, error)
	End(ctx context.Context, callID string, opts *calls.EndOptions) error
}

// Broadcaster sends events to the counterparty over the push channel
type Broadcaster interface {
	Emit(name string, data interface{}) error
}

// Config holds the configuration for the media Adapter
type Config struct {
	// EndTimeout bounds the best-effort end notification during Leave
	EndTimeout time.Duration

	// JoinSettleTimeout is how long Leave waits for an in-flight join
	JoinSettleTimeout time.Duration

	// DurationTick is the interval of duration events while joined
	DurationTick time.Duration
}

// DefaultConfig returns the default configuration for the media Adapter
func DefaultConfig() *Config {
	return &Config{
		EndTimeout:        5 * time.Second,
		JoinSettleTimeout: 2 * time.Second,
		DurationTick:      time.Second,
	}
}

// JoinOptions modify how a call is joined
type JoinOptions struct {
	// OneWayReceiver joins a video call without publishing the camera
	OneWayReceiver bool

	// Rejoin skips the start notification for a call already billed
	Rejoin bool
}

// Joined describes a successful join
type Joined struct {
	Call           *calls.Descriptor
	VideoPublished bool
	CameraDenied   bool
}

// Remote is a remote participant in the channel
type Remote struct {
	UID      uint32
	HasAudio bool
	HasVideo bool
}

// Adapter is the media session adapter. One Adapter serves one call at a time.
type Adapter struct {
	engine  Engine
	api     API
	signal  Broadcaster
	config  *Config
	logger  amourasdk.Logger
	emitter *amourasdk.EventEmitter

	mu             sync.Mutex
	joining        bool
	joinDone       chan struct{}
	leaveRequested bool
	leaving        bool
	leaveDone      chan struct{}

	call      *calls.Descriptor
	audio     LocalTrack
	video     LocalTrack
	remotes   map[uint32]*Remote
	muted     bool
	videoOn   bool
	startedAt time.Time
	stopTick  chan struct{}
}

// NewAdapter creates an Adapter. signal may be nil, in which case video
// state changes are not broadcast.
func NewAdapter(engine Engine, api API, signal Broadcaster, logger amourasdk.Logger, config *Config) *Adapter {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = nopLogger{}
	}
	a := &Adapter{
		engine:  engine,
		api:     api,
		signal:  signal,
		config:  config,
		logger:  logger,
		emitter: amourasdk.NewEventEmitter(),
		remotes: make(map[uint32]*Remote),
	}
	engine.OnRemote(a.handleRemote)
	return a
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// On registers a handler for an adapter event
func (a *Adapter) On(event string, handler amourasdk.EventHandler) {
	a.emitter.On(event, handler)
}

// Off removes all handlers for an adapter event
func (a *Adapter) Off(event string) {
	a.emitter.Off(event)
}

// Initiate reserves a call on the backend. It never touches media.
func (a *Adapter) Initiate(ctx context.Context, calleeID string, callType calls.CallType, confirmReturnCall bool) (*calls.InitiateResult, error) {
	return a.api.Initiate(ctx, calleeID, callType, confirmReturnCall)
}

// Join acquires the local tracks, joins the media channel, publishes and,
// unless rejoining, tells the backend to start billing. Every failure path
// stops and closes the tracks it created and leaves the channel.
func (a *Adapter) Join(ctx context.Context, desc *calls.Descriptor, opts JoinOptions) (*Joined, error) {
	if desc == nil || desc.CallID == "" || desc.ChannelName == "" {
		return nil, ErrMissingCredentials
	}

	a.mu.Lock()
	if a.joining {
		a.mu.Unlock()
		return nil, ErrJoinInProgress
	}
	if a.call != nil {
		current := a.call
		a.mu.Unlock()
		if current.CallID == desc.CallID {
			return &Joined{Call: current, VideoPublished: a.VideoEnabled()}, nil
		}
		return nil, ErrAlreadyJoined
	}
	a.joining = true
	a.joinDone = make(chan struct{})
	a.leaveRequested = false
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.joining = false
		close(a.joinDone)
		a.mu.Unlock()
	}()

	var tracks []LocalTrack
	fail := func(err error) (*Joined, error) {
		a.releaseTracks(tracks...)
		if a.engine.ConnectionState().Live() {
			leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.EndTimeout)
			if lerr := a.engine.Leave(leaveCtx); lerr != nil {
				a.logger.Printf("MediaAdapter: leave after failed join: %v", lerr)
			}
			cancel()
		}
		a.reset()
		return nil, err
	}

	audio, err := a.engine.CreateMicrophoneTrack(ctx)
	if err != nil {
		return fail(fmt.Errorf("microphone: %w", err))
	}
	tracks = append(tracks, audio)

	var video LocalTrack
	cameraDenied := false
	if desc.CallType == calls.CallTypeVideo && !opts.OneWayReceiver {
		video, err = a.engine.CreateCameraTrack(ctx)
		switch {
		case errors.Is(err, ErrPermissionDenied):
			cameraDenied = true
			video = nil
			a.logger.Printf("MediaAdapter: camera unavailable for %s, continuing without video", desc.CallID)
			a.emitter.Emit(EventCameraUnavailable, desc.CallID)
		case err != nil:
			return fail(fmt.Errorf("camera: %w", err))
		default:
			tracks = append(tracks, video)
		}
	}

	if a.superseded() {
		return fail(ErrJoinSuperseded)
	}

	creds := Credentials{
		AppID:   desc.AppID,
		Channel: desc.ChannelName,
		Token:   desc.Token,
		UID:     desc.UID,
	}
	if err := a.engine.Join(ctx, creds); err != nil {
		return fail(fmt.Errorf("join channel: %w", err))
	}
	if a.superseded() {
		return fail(ErrJoinSuperseded)
	}

	if err := a.engine.Publish(ctx, tracks...); err != nil {
		return fail(fmt.Errorf("publish: %w", err))
	}
	if a.superseded() {
		return fail(ErrJoinSuperseded)
	}

	joined := *desc
	if !opts.Rejoin {
		started, err := a.api.Start(ctx, desc.CallID)
		if err != nil {
			return fail(fmt.Errorf("start call: %w", err))
		}
		if started != nil {
			if started.StartedAt != nil {
				joined.StartedAt = started.StartedAt
			}
			if started.Billing != (calls.BillingHints{}) {
				joined.Billing = started.Billing
			}
		}
	}

	a.mu.Lock()
	if a.leaveRequested {
		a.mu.Unlock()
		return fail(ErrJoinSuperseded)
	}
	a.call = &joined
	a.audio = audio
	a.video = video
	a.muted = false
	a.videoOn = video != nil
	a.startedAt = time.Now()
	if joined.StartedAt != nil && opts.Rejoin {
		a.startedAt = *joined.StartedAt
	}
	a.stopTick = make(chan struct{})
	go a.tick(a.stopTick, a.startedAt)
	a.mu.Unlock()

	a.logger.Printf("MediaAdapter: joined %s (channel %s)", joined.CallID, joined.ChannelName)
	return &Joined{Call: &joined, VideoPublished: video != nil, CameraDenied: cameraDenied}, nil
}

func (a *Adapter) superseded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.leaveRequested
}

// LeaveOptions modify how a joined call is ended
type LeaveOptions struct {
	// Reason is sent with the end notification. Empty means "hangup".
	Reason string

	// SkipEnd leaves the channel without notifying the backend, for calls
	// the server has already ended.
	SkipEnd bool
}

// Leave hangs up: best-effort end notification, channel leave, then track
// disposal and state reset. It is safe to call repeatedly and while a join
// is still running.
func (a *Adapter) Leave(ctx context.Context) error {
	return a.LeaveWith(ctx, LeaveOptions{})
}

// LeaveWith is Leave with an explicit end reason. A join that does not
// settle within JoinSettleTimeout is left to clean up after itself, since
// the engine is never left while it is still joining.
func (a *Adapter) LeaveWith(ctx context.Context, opts LeaveOptions) error {
	a.mu.Lock()
	if a.leaving {
		done := a.leaveDone
		a.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return nil
	}
	if a.joining {
		a.leaveRequested = true
		done := a.joinDone
		a.mu.Unlock()

		timer := time.NewTimer(a.config.JoinSettleTimeout)
		settled := false
		select {
		case <-done:
			settled = true
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
		if !settled {
			a.logger.Printf("MediaAdapter: join did not settle within %v, it will leave on its own", a.config.JoinSettleTimeout)
			return nil
		}
		a.mu.Lock()
		if a.joining || a.leaving {
			// a new join or leave started while we waited
			a.mu.Unlock()
			return nil
		}
	}

	call := a.call
	audio, video := a.audio, a.video
	startedAt := a.startedAt
	a.call = nil
	a.audio = nil
	a.video = nil
	a.leaving = true
	a.leaveDone = make(chan struct{})
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.leaving = false
		close(a.leaveDone)
		a.mu.Unlock()
	}()

	if call != nil && !opts.SkipEnd {
		a.notifyEnd(ctx, call.CallID, opts.Reason, startedAt)
	}

	if a.engine.ConnectionState().Live() {
		if err := a.engine.Leave(context.WithoutCancel(ctx)); err != nil {
			a.logger.Printf("MediaAdapter: leave channel: %v", err)
		}
	}

	a.releaseTracks(audio, video)
	a.reset()
	return nil
}

func (a *Adapter) notifyEnd(ctx context.Context, callID, reason string, startedAt time.Time) {
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.EndTimeout)
	defer cancel()

	if reason == "" {
		reason = "hangup"
	}
	opts := &calls.EndOptions{Reason: reason}
	if !startedAt.IsZero() {
		opts.DurationSeconds = int(time.Since(startedAt).Seconds())
	}
	if err := a.api.End(endCtx, callID, opts); err != nil && !calls.IsBenign(err) {
		a.logger.Printf("MediaAdapter: end notification for %s failed: %v", callID, err)
	}
}

func (a *Adapter) releaseTracks(tracks ...LocalTrack) {
	for _, t := range tracks {
		if t == nil {
			continue
		}
		t.Stop()
		if err := t.Close(); err != nil {
			a.logger.Printf("MediaAdapter: close %s track: %v", t.Kind(), err)
		}
	}
}

func (a *Adapter) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopTick != nil {
		close(a.stopTick)
		a.stopTick = nil
	}
	a.remotes = make(map[uint32]*Remote)
	a.muted = false
	a.videoOn = false
	a.startedAt = time.Time{}
}

func (a *Adapter) tick(stop chan struct{}, startedAt time.Time) {
	if a.config.DurationTick <= 0 {
		return
	}
	ticker := time.NewTicker(a.config.DurationTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.emitter.Emit(EventDuration, time.Since(startedAt).Truncate(time.Second))
		case <-stop:
			return
		}
	}
}

// ToggleMute flips the microphone and returns the new muted state
func (a *Adapter) ToggleMute() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.audio == nil {
		return false, ErrNotJoined
	}
	a.muted = !a.muted
	a.audio.SetEnabled(!a.muted)
	return a.muted, nil
}

// ToggleVideo flips the camera and returns whether video is now on. The
// first enable on a call joined without video creates and publishes a camera
// track. The new state is broadcast to the counterparty.
func (a *Adapter) ToggleVideo(ctx context.Context) (bool, error) {
	a.mu.Lock()
	call := a.call
	if call == nil {
		a.mu.Unlock()
		return false, ErrNotJoined
	}
	if a.video != nil {
		a.videoOn = !a.videoOn
		a.video.SetEnabled(a.videoOn)
		on := a.videoOn
		a.mu.Unlock()
		a.broadcastVideoState(call.CallID, on)
		return on, nil
	}
	a.mu.Unlock()

	cam, err := a.engine.CreateCameraTrack(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			a.emitter.Emit(EventCameraUnavailable, call.CallID)
		}
		return false, fmt.Errorf("camera: %w", err)
	}
	if err := a.engine.Publish(ctx, cam); err != nil {
		a.releaseTracks(cam)
		return false, fmt.Errorf("publish camera: %w", err)
	}

	a.mu.Lock()
	if a.call == nil || a.call.CallID != call.CallID || a.video != nil {
		a.mu.Unlock()
		_ = a.engine.Unpublish(context.WithoutCancel(ctx), cam)
		a.releaseTracks(cam)
		return false, ErrNotJoined
	}
	a.video = cam
	a.videoOn = true
	a.mu.Unlock()

	a.broadcastVideoState(call.CallID, true)
	return true, nil
}

func (a *Adapter) broadcastVideoState(callID string, enabled bool) {
	if a.signal == nil {
		return
	}
	payload := calls.EventPayload{CallID: callID, Enabled: enabled}
	if err := a.signal.Emit(calls.EventVideoStateUpdate, payload); err != nil {
		a.logger.Printf("MediaAdapter: broadcast video state: %v", err)
	}
}

func (a *Adapter) handleRemote(ev RemoteEvent) {
	a.mu.Lock()
	if a.call == nil && !a.joining {
		a.mu.Unlock()
		return
	}
	var emit string
	switch ev.Type {
	case RemoteUserJoined:
		if _, ok := a.remotes[ev.UID]; !ok {
			a.remotes[ev.UID] = &Remote{UID: ev.UID}
			emit = EventUserJoined
		}
	case RemoteUserPublished, RemoteUserUnpublished:
		r, ok := a.remotes[ev.UID]
		if !ok {
			r = &Remote{UID: ev.UID}
			a.remotes[ev.UID] = r
		}
		on := ev.Type == RemoteUserPublished
		if ev.Kind == TrackKindVideo {
			r.HasVideo = on
		} else {
			r.HasAudio = on
		}
		emit = EventRemoteTrack
	case RemoteUserLeft:
		delete(a.remotes, ev.UID)
		emit = EventUserLeft
	}
	a.mu.Unlock()

	if emit != "" {
		a.emitter.Emit(emit, ev)
	}
}

// ActiveCallID returns the id of the joined call, or "" when not joined
func (a *Adapter) ActiveCallID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.call == nil {
		return ""
	}
	return a.call.CallID
}

// Joining reports whether a join is in flight
func (a *Adapter) Joining() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.joining
}

// Muted reports whether the microphone is muted
func (a *Adapter) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}

// VideoEnabled reports whether the camera is publishing
func (a *Adapter) VideoEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.videoOn
}

// Duration returns the time since the call was joined
func (a *Adapter) Duration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startedAt.IsZero() {
		return 0
	}
	return time.Since(a.startedAt)
}

// Remotes returns the remote participants ordered by uid
func (a *Adapter) Remotes() []Remote {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Remote, 0, len(a.remotes))
	for _, r := range a.remotes {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// ConnectionState returns the media channel state
func (a *Adapter) ConnectionState() ConnectionState {
	return a.engine.ConnectionState()
}
