/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned when a capture device may not be used
var ErrPermissionDenied = errors.New("media: device permission denied")

// TrackKind is the media kind of a track
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// ConnectionState is the state of the media channel connection
type ConnectionState string

const (
	ConnectionStateDisconnected  ConnectionState = "disconnected"
	ConnectionStateConnecting    ConnectionState = "connecting"
	ConnectionStateConnected     ConnectionState = "connected"
	ConnectionStateDisconnecting ConnectionState = "disconnecting"
)

// Live reports whether a leave is needed to tear the channel down
func (s ConnectionState) Live() bool {
	return s == ConnectionStateConnected || s == ConnectionStateConnecting
}

// RemoteEventType identifies a remote participant event
type RemoteEventType string

const (
	RemoteUserJoined      RemoteEventType = "user-joined"
	RemoteUserPublished   RemoteEventType = "user-published"
	RemoteUserUnpublished RemoteEventType = "user-unpublished"
	RemoteUserLeft        RemoteEventType = "user-left"
)

// RemoteEvent reports a change in a remote participant
type RemoteEvent struct {
	Type RemoteEventType
	UID  uint32
	Kind TrackKind
}

// Credentials are the server-issued media channel credentials
type Credentials struct {
	AppID   string
	Channel string
	Token   string
	UID     uint32
}

// LocalTrack is a local capture track owned by the adapter
type LocalTrack interface {
	ID() string
	Kind() TrackKind
	SetEnabled(enabled bool)
	Enabled() bool
	// Stop releases the capture device
	Stop()
	// Close releases the track itself
	Close() error
}

// Engine is the real-time media SDK boundary. Implementations need not be
// safe for overlapping Join/Leave calls; the Adapter serializes them.
type Engine interface {
	CreateMicrophoneTrack(ctx context.Context) (LocalTrack, error)
	CreateCameraTrack(ctx context.Context) (LocalTrack, error)
	Join(ctx context.Context, creds Credentials) error
	Publish(ctx context.Context, tracks ...LocalTrack) error
	Unpublish(ctx context.Context, tracks ...LocalTrack) error
	Leave(ctx context.Context) error
	ConnectionState() ConnectionState
	// OnRemote sets the callback for remote participant events
	OnRemote(handler func(RemoteEvent))
}
