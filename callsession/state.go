/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package callsession

import (
	"time"

	"github.com/tejzpr/amoura-go-sdk/calls"
)

// Session is the client's view of the one live call
type Session struct {
	// Attempt identifies an outgoing call before the server assigned a CallID
	Attempt      uint64
	CallID       string
	Role         calls.Role
	CallType     calls.CallType
	Counterparty calls.Party
	Billing      calls.BillingHints
	AllowOneWay  bool

	// Call holds the latest descriptor, including media credentials
	Call *calls.Descriptor

	// Rejoin marks a call recovered after reload
	Rejoin bool

	// AcceptIssued is set once the local accept request was sent
	AcceptIssued bool

	// JoinIssued is set once the media join was requested
	JoinIssued bool

	// CancelRequested records a hang-up while the call was still being reserved
	CancelRequested bool

	// PendingConvert is set while an optimistic convert awaits the server
	PendingConvert *PendingConvert

	// Upgrade is set while a video upgrade request is unanswered
	Upgrade *UpgradeRequest

	// RemoteVideo mirrors the counterparty's camera state
	RemoteVideo bool
}

// PendingConvert holds what to restore when a convert is rejected
type PendingConvert struct {
	From        calls.CallType
	To          calls.CallType
	PrevBilling calls.BillingHints
}

// UpgradeRequest is an unanswered video upgrade request
type UpgradeRequest struct {
	// Outgoing is true when this user asked for video
	Outgoing bool
	OneWay   bool
	From     string
}

// BusyNotice records that the callee was on another call
type BusyNotice struct {
	CallID   string
	CalleeID string
}

// Confirmation records a return call that needs explicit confirmation
type Confirmation struct {
	CalleeID string
	CallType calls.CallType
	Message  string
}

// Ended describes how the last call finished
type Ended struct {
	CallID string
	Reason string
}

// Ending reasons recorded in Ended
const (
	ReasonHangup     = "hangup"
	ReasonRemoteEnd  = "ended"
	ReasonDeclined   = "declined"
	ReasonTimeout    = "timeout"
	ReasonMissed     = "missed"
	ReasonBusy       = "busy"
	ReasonPeerLeft   = "peer-left"
	ReasonJoinFailed = "join-failed"
	ReasonCancelled  = "cancelled"
	ReasonFailed     = "failed"
)

// State is the whole coordinator state. It is a value; Reduce never
// mutates the State it is given.
type State struct {
	SelfID  string
	Phase   Phase
	Session *Session

	Busy                *BusyNotice
	Callback            *calls.Callback
	PendingConfirmation *Confirmation
	LastEnded           *Ended

	attempts uint64
}

// NewState returns the idle state for selfID
func NewState(selfID string) State {
	return State{SelfID: selfID, Phase: PhaseIdle}
}

// CallID returns the id of the live call, or ""
func (s State) CallID() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.CallID
}

// mutate returns a copy of s whose Session may be changed freely
func (s State) mutate() (State, *Session) {
	if s.Session == nil {
		return s, nil
	}
	sess := *s.Session
	s.Session = &sess
	return s, &sess
}

// View is the rendering-facing snapshot of the coordinator
type View struct {
	Phase        Phase
	CallID       string
	Role         calls.Role
	CallType     calls.CallType
	Counterparty calls.Party
	Billing      calls.BillingHints
	AllowOneWay  bool

	// UIOpen is true only once the media channel is joined
	UIOpen bool

	Converting  bool
	Upgrade     *UpgradeRequest
	RemoteVideo bool
	Muted       bool
	VideoOn     bool
	Duration    time.Duration

	Busy                *BusyNotice
	Callback            *calls.Callback
	PendingConfirmation *Confirmation
	LastEnded           *Ended
}

func (s State) view() View {
	v := View{
		Phase:               s.Phase,
		UIOpen:              s.Phase == PhaseActive,
		Busy:                s.Busy,
		Callback:            s.Callback,
		PendingConfirmation: s.PendingConfirmation,
		LastEnded:           s.LastEnded,
	}
	if sess := s.Session; sess != nil {
		v.CallID = sess.CallID
		v.Role = sess.Role
		v.CallType = sess.CallType
		v.Counterparty = sess.Counterparty
		v.Billing = sess.Billing
		v.AllowOneWay = sess.AllowOneWay
		v.Converting = sess.PendingConvert != nil
		v.Upgrade = sess.Upgrade
		v.RemoteVideo = sess.RemoteVideo
	}
	return v
}
