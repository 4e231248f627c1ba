/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package callsession coordinates the life of a call on this client. A
// single goroutine owns the session State and applies every local intent,
// effect outcome, timer and signaling event through Reduce, so the callId
// check and the phase rules are enforced in one place.
package callsession

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/tejzpr/amoura-go-sdk/activecall"
	"github.com/tejzpr/amoura-go-sdk/amourasdk"
	"github.com/tejzpr/amoura-go-sdk/calls"
	"github.com/tejzpr/amoura-go-sdk/media"
	"github.com/tejzpr/amoura-go-sdk/profiles"
	"github.com/tejzpr/amoura-go-sdk/signaling"
)

// Coordinator events
const (
	// EventState carries a View after every state change
	EventState = "state"
	// EventToast carries a short user-facing message
	EventToast = "toast"
	// EventCallOpen carries the View once the media channel is joined
	EventCallOpen = "call-open"
	// EventCallClosed carries the id of a call whose view should close
	EventCallClosed = "call-closed"
)

// ErrClosed is returned by intents after Close
var ErrClosed = errors.New("callsession: coordinator closed")

// API is the part of the calls client the coordinator uses
type API interface {
	Initiate(ctx context.Context, calleeID string, callType calls.CallType, confirmReturnCall bool) (*calls.InitiateResult, error)
	Accept(ctx context.Context, callID string) (*calls.Descriptor, error)
	Decline(ctx context.Context, callID string, reason calls.DeclineReason) error
	End(ctx context.Context, callID string, opts *calls.EndOptions) error
	Convert(ctx context.Context, callID string, newType calls.CallType) (*calls.Descriptor, error)
	RequestVideoUpgrade(ctx context.Context, callID string, oneWay bool) error
	RespondVideoUpgrade(ctx context.Context, callID string, accepted, oneWay bool) error
	GetActiveCall(ctx context.Context) (*calls.Descriptor, error)
	Rejoin(ctx context.Context, callID string) (*calls.Descriptor, error)
	AcceptCallback(ctx context.Context, requestID string) (*calls.Callback, error)
	RejectCallback(ctx context.Context, requestID string) error
}

// Media is the media session the coordinator drives
type Media interface {
	Join(ctx context.Context, desc *calls.Descriptor, opts media.JoinOptions) (*media.Joined, error)
	LeaveWith(ctx context.Context, opts media.LeaveOptions) error
	ToggleMute() (bool, error)
	ToggleVideo(ctx context.Context) (bool, error)
	ActiveCallID() string
	Muted() bool
	VideoEnabled() bool
	Duration() time.Duration
	On(event string, handler amourasdk.EventHandler)
}

// Signal is the push channel delivering call events
type Signal interface {
	Subscribe(names ...string) (<-chan *signaling.Event, func())
}

// ProfileSource resolves counterparty display data
type ProfileSource interface {
	Get(ctx context.Context, userID string) (*profiles.Profile, error)
}

// Identity tells the coordinator who the local user is
type Identity interface {
	UserID() (string, error)
	Authenticated() bool
}

// Options are the collaborators of a Coordinator. Signal, Profiles and
// Store are optional.
type Options struct {
	Identity Identity
	API      API
	Media    Media
	Signal   Signal
	Profiles ProfileSource
	Store    activecall.Store
	Logger   amourasdk.Logger
}

// Config holds the configuration for the Coordinator
type Config struct {
	// RingTimeout is how long an incoming call rings before it is declined
	RingTimeout time.Duration

	// JoinTimeout bounds the joining_media phase
	JoinTimeout time.Duration

	// RequestTimeout bounds each REST call made on behalf of an effect
	RequestTimeout time.Duration

	// EndTimeout bounds the end notification for calls without media
	EndTimeout time.Duration

	// InboxSize is the buffer of the event loop
	InboxSize int
}

// DefaultConfig returns the default configuration for the Coordinator
func DefaultConfig() *Config {
	return &Config{
		RingTimeout:    30 * time.Second,
		JoinTimeout:    30 * time.Second,
		RequestTimeout: 15 * time.Second,
		EndTimeout:     5 * time.Second,
		InboxSize:      64,
	}
}

type envelope struct {
	ev    Event
	reply chan error
}

// Coordinator is the call session coordinator
type Coordinator struct {
	api      API
	media    Media
	signal   Signal
	profiles ProfileSource
	store    activecall.Store
	identity Identity
	logger   amourasdk.Logger
	config   *Config
	emitter  *amourasdk.EventEmitter

	mu      sync.RWMutex
	state   State
	started bool

	inbox  chan envelope
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// timers is owned by the loop goroutine
	timers map[TimerKind]*time.Timer

	unsubscribe func()
	closeOnce   sync.Once
}

// New creates a Coordinator. Call Start to begin processing events.
func New(opts Options, config *Config) (*Coordinator, error) {
	if opts.API == nil || opts.Media == nil || opts.Identity == nil {
		return nil, fmt.Errorf("callsession: API, Media and Identity are required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.InboxSize <= 0 {
		config.InboxSize = DefaultConfig().InboxSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		api:      opts.API,
		media:    opts.Media,
		signal:   opts.Signal,
		profiles: opts.Profiles,
		store:    opts.Store,
		identity: opts.Identity,
		logger:   logger,
		config:   config,
		emitter:  amourasdk.NewEventEmitter(),
		inbox:    make(chan envelope, config.InboxSize),
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[TimerKind]*time.Timer),
	}, nil
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// On registers a handler for a coordinator event. Every event is emitted
// from the event loop, so handlers never run concurrently with each other.
// They must not call the coordinator's intent or toggle methods directly.
func (c *Coordinator) On(event string, handler amourasdk.EventHandler) {
	c.emitter.On(event, handler)
}

// Off removes all handlers for a coordinator event
func (c *Coordinator) Off(event string) {
	c.emitter.Off(event)
}

// Start subscribes to call events, starts the event loop and attempts to
// rejoin a call left running by a previous process. A failed rejoin is
// not an error.
func (c *Coordinator) Start(ctx context.Context) error {
	selfID, err := c.identity.UserID()
	if err != nil {
		return fmt.Errorf("callsession: resolve local user: %w", err)
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("callsession: already started")
	}
	c.started = true
	c.state = NewState(selfID)
	c.mu.Unlock()

	if c.signal != nil {
		events, cancel := c.signal.Subscribe(calls.CallEvents...)
		c.unsubscribe = cancel
		c.wg.Add(1)
		go c.pump(events)
	}
	c.media.On(media.EventUserLeft, func(interface{}) {
		c.post(PeerLeft{CallID: c.media.ActiveCallID()})
	})

	c.wg.Add(1)
	go c.loop()

	c.rejoinOnLoad(ctx, selfID)
	return nil
}

// Close stops the event loop. A joined call is left running on the server
// so that it can be rejoined.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.cancel()
		c.wg.Wait()
	})
	return nil
}

// pump turns pushed signaling events into reducer events
func (c *Coordinator) pump(events <-chan *signaling.Event) {
	defer c.wg.Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			var payload calls.EventPayload
			if err := ev.Decode(&payload); err != nil {
				c.logger.Printf("Coordinator: dropping malformed %s event: %v", ev.Name, err)
				continue
			}
			c.post(SignalEvent{Name: ev.Name, Payload: payload})
		case <-c.ctx.Done():
			return
		}
	}
}

// post queues an event without waiting for it to be applied
func (c *Coordinator) post(ev Event) {
	select {
	case c.inbox <- envelope{ev: ev}:
	case <-c.ctx.Done():
	}
}

// dispatch queues an intent and waits for the reducer's verdict
func (c *Coordinator) dispatch(ctx context.Context, ev Event) error {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	if !started {
		return fmt.Errorf("callsession: not started")
	}

	reply := make(chan error, 1)
	select {
	case c.inbox <- envelope{ev: ev, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Coordinator) loop() {
	defer c.wg.Done()
	for {
		select {
		case env := <-c.inbox:
			c.apply(env)
		case <-c.ctx.Done():
			for kind := range c.timers {
				c.stopTimer(kind)
			}
			return
		}
	}
}

// refresh asks the loop to publish the view, and a toast when set, after
// a change made outside Reduce such as a mute toggle
type refresh struct{ toast string }

func (refresh) event() {}

func (c *Coordinator) apply(env envelope) {
	if r, ok := env.ev.(refresh); ok {
		if r.toast != "" {
			c.toast(r.toast)
		}
		c.emitter.Emit(EventState, c.View())
		return
	}

	c.mu.Lock()
	prev := c.state
	next, effects, err := Reduce(prev, env.ev)
	if err == nil {
		c.state = next
	}
	c.mu.Unlock()

	if env.reply != nil {
		env.reply <- err
	}
	if err != nil {
		return
	}

	if prev.Phase != next.Phase {
		c.logger.Printf("Coordinator: %s -> %s (call %q)", prev.Phase, next.Phase, firstNonEmpty(next.CallID(), prev.CallID()))
	}
	c.syncTimers(next.Phase)
	for _, eff := range effects {
		c.execute(next, eff)
	}
	if !reflect.DeepEqual(prev, next) {
		c.emitter.Emit(EventState, c.View())
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// State returns a copy of the current state
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// View returns the rendering snapshot, including live media flags
func (c *Coordinator) View() View {
	v := c.State().view()
	if v.Phase == PhaseActive {
		v.Muted = c.media.Muted()
		v.VideoOn = c.media.VideoEnabled()
		v.Duration = c.media.Duration()
	}
	return v
}

// StartCall places a call. It returns once the call is being reserved;
// progress is reported through EventState.
func (c *Coordinator) StartCall(ctx context.Context, calleeID string, callType calls.CallType, confirmReturnCall bool) error {
	return c.dispatch(ctx, StartCallIntent{CalleeID: calleeID, CallType: callType, ConfirmReturnCall: confirmReturnCall})
}

// AcceptCall answers the ringing call. An empty callID accepts whichever call rings.
func (c *Coordinator) AcceptCall(ctx context.Context, callID string) error {
	return c.dispatch(ctx, AcceptIntent{CallID: callID})
}

// DeclineCall rejects the ringing call
func (c *Coordinator) DeclineCall(ctx context.Context, callID string) error {
	return c.dispatch(ctx, DeclineIntent{CallID: callID})
}

// EndCall hangs up, cancels or declines the current call. Calling it when
// no call is live is a no-op.
func (c *Coordinator) EndCall(ctx context.Context, callID string) error {
	return c.dispatch(ctx, EndIntent{CallID: callID})
}

// ConvertCall switches the active call's type. The change is shown at once
// and rolled back if the server rejects it.
func (c *Coordinator) ConvertCall(ctx context.Context, newType calls.CallType) error {
	return c.dispatch(ctx, ConvertIntent{NewType: newType})
}

// RequestVideoUpgrade asks the counterparty to move the call to video
func (c *Coordinator) RequestVideoUpgrade(ctx context.Context, oneWay bool) error {
	return c.dispatch(ctx, UpgradeRequestIntent{OneWay: oneWay})
}

// RespondVideoUpgrade answers the counterparty's video request
func (c *Coordinator) RespondVideoUpgrade(ctx context.Context, accepted, oneWay bool) error {
	return c.dispatch(ctx, UpgradeRespondIntent{Accepted: accepted, OneWay: oneWay})
}

// AcceptCallback accepts the pending callback request and places the return call
func (c *Coordinator) AcceptCallback(ctx context.Context, requestID string) error {
	return c.dispatch(ctx, AcceptCallbackIntent{RequestID: requestID})
}

// RejectCallback rejects the pending callback request
func (c *Coordinator) RejectCallback(ctx context.Context, requestID string) error {
	return c.dispatch(ctx, RejectCallbackIntent{RequestID: requestID})
}

// ToggleMute flips the microphone of the active call
func (c *Coordinator) ToggleMute() (bool, error) {
	if phase := c.State().Phase; phase != PhaseActive {
		return false, fmt.Errorf("%w: cannot mute in phase %s", ErrIllegalTransition, phase)
	}
	muted, err := c.media.ToggleMute()
	if err != nil {
		return false, err
	}
	c.post(refresh{})
	return muted, nil
}

// ToggleVideo flips the camera of the active call
func (c *Coordinator) ToggleVideo(ctx context.Context) (bool, error) {
	if phase := c.State().Phase; phase != PhaseActive {
		return false, fmt.Errorf("%w: cannot toggle video in phase %s", ErrIllegalTransition, phase)
	}
	on, err := c.media.ToggleVideo(ctx)
	if err != nil {
		if errors.Is(err, media.ErrPermissionDenied) {
			c.post(refresh{toast: msgCameraUnavailable})
		}
		return false, err
	}
	c.post(refresh{})
	return on, nil
}

func (c *Coordinator) toast(msg string) {
	c.logger.Printf("Coordinator: toast %q", msg)
	c.emitter.Emit(EventToast, msg)
}
