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
	"testing"
	"time"

	"github.com/tejzpr/amoura-go-sdk/calls"
)

type fakeTrack struct {
	id   string
	kind TrackKind

	mu      sync.Mutex
	enabled bool
	stops   int
	closes  int
}

func (t *fakeTrack) ID() string      { return t.id }
func (t *fakeTrack) Kind() TrackKind { return t.kind }

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

func (t *fakeTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *fakeTrack) counts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops, t.closes
}

// fakeEngine records every call. When block is set, Join signals entered
// and waits for release.
type fakeEngine struct {
	mu         sync.Mutex
	state      ConnectionState
	micErr     error
	camErr     error
	joinErr    error
	publishErr error
	block      bool
	entered    chan struct{}
	release    chan struct{}
	joins      int
	leaves     int
	publishes  int
	unpublish  int
	tracks     []*fakeTrack
	creds      Credentials
	onRemote   func(RemoteEvent)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		state:   ConnectionStateDisconnected,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (e *fakeEngine) newTrack(kind TrackKind) *fakeTrack {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := &fakeTrack{id: fmt.Sprintf("%s-%d", kind, len(e.tracks)), kind: kind, enabled: true}
	e.tracks = append(e.tracks, t)
	return t
}

func (e *fakeEngine) CreateMicrophoneTrack(ctx context.Context) (LocalTrack, error) {
	if e.micErr != nil {
		return nil, e.micErr
	}
	return e.newTrack(TrackKindAudio), nil
}

func (e *fakeEngine) CreateCameraTrack(ctx context.Context) (LocalTrack, error) {
	if e.camErr != nil {
		return nil, e.camErr
	}
	return e.newTrack(TrackKindVideo), nil
}

func (e *fakeEngine) Join(ctx context.Context, creds Credentials) error {
	e.mu.Lock()
	e.joins++
	e.creds = creds
	e.state = ConnectionStateConnecting
	block := e.block
	e.mu.Unlock()

	if block {
		e.entered <- struct{}{}
		<-e.release
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.joinErr != nil {
		e.state = ConnectionStateDisconnected
		return e.joinErr
	}
	e.state = ConnectionStateConnected
	return nil
}

func (e *fakeEngine) Publish(ctx context.Context, tracks ...LocalTrack) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishes++
	return e.publishErr
}

func (e *fakeEngine) Unpublish(ctx context.Context, tracks ...LocalTrack) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unpublish++
	return nil
}

func (e *fakeEngine) Leave(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leaves++
	e.state = ConnectionStateDisconnected
	return nil
}

func (e *fakeEngine) ConnectionState() ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *fakeEngine) OnRemote(handler func(RemoteEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRemote = handler
}

func (e *fakeEngine) remote(ev RemoteEvent) {
	e.mu.Lock()
	handler := e.onRemote
	e.mu.Unlock()
	handler(ev)
}

func (e *fakeEngine) leaveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leaves
}

func (e *fakeEngine) allTracks() []*fakeTrack {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*fakeTrack(nil), e.tracks...)
}

type fakeAPI struct {
	mu       sync.Mutex
	startErr error
	endErr   error
	starts   []string
	ends     []string
	endOpts  []*calls.EndOptions
}

func (f *fakeAPI) Initiate(ctx context.Context, calleeID string, callType calls.CallType, confirm bool) (*calls.InitiateResult, error) {
	return &calls.InitiateResult{Status: calls.InitiateOK, Call: &calls.Descriptor{CallID: "c-" + calleeID}}, nil
}

func (f *fakeAPI) Start(ctx context.Context, callID string) (*calls.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, callID)
	if f.startErr != nil {
		return nil, f.startErr
	}
	now := time.Now()
	return &calls.Descriptor{CallID: callID, Status: calls.StatusStarted, StartedAt: &now}, nil
}

func (f *fakeAPI) End(ctx context.Context, callID string, opts *calls.EndOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends = append(f.ends, callID)
	f.endOpts = append(f.endOpts, opts)
	return f.endErr
}

func (f *fakeAPI) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts), len(f.ends)
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
	data   []interface{}
}

func (b *fakeBroadcaster) Emit(name string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, name)
	b.data = append(b.data, data)
	return nil
}

func testDescriptor(id string, t calls.CallType) *calls.Descriptor {
	return &calls.Descriptor{
		CallID:      id,
		ChannelName: "ch-" + id,
		Token:       "tok",
		UID:         1,
		AppID:       "app",
		CallType:    t,
		CallerID:    "u1",
		CalleeID:    "u2",
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
