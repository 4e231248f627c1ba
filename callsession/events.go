/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package callsession

import (
	"github.com/tejzpr/amoura-go-sdk/calls"
	"github.com/tejzpr/amoura-go-sdk/media"
)

// Event is an input to Reduce: a local intent, the outcome of an effect,
// a timer or a pushed signaling event.
type Event interface {
	event()
}

// Local intents

// StartCallIntent places a call to CalleeID
type StartCallIntent struct {
	CalleeID          string
	CallType          calls.CallType
	ConfirmReturnCall bool
}

// AcceptIntent answers the ringing call
type AcceptIntent struct{ CallID string }

// DeclineIntent rejects the ringing call
type DeclineIntent struct{ CallID string }

// EndIntent hangs up or cancels the current call. An empty CallID means
// whichever call is current.
type EndIntent struct{ CallID string }

// ConvertIntent switches the active call to another call type
type ConvertIntent struct{ NewType calls.CallType }

// UpgradeRequestIntent asks the counterparty to turn on video
type UpgradeRequestIntent struct{ OneWay bool }

// UpgradeRespondIntent answers the counterparty's video request
type UpgradeRespondIntent struct {
	Accepted bool
	OneWay   bool
}

// AcceptCallbackIntent accepts the pending callback request
type AcceptCallbackIntent struct{ RequestID string }

// RejectCallbackIntent rejects the pending callback request
type RejectCallbackIntent struct{ RequestID string }

// Effect outcomes

// InitiateDone carries the result of reserving an outgoing call
type InitiateDone struct {
	Attempt uint64
	Result  *calls.InitiateResult
	Err     error
}

// AcceptDone carries the result of the accept request
type AcceptDone struct {
	CallID string
	Call   *calls.Descriptor
	Err    error
}

// JoinDone carries the result of joining the media channel
type JoinDone struct {
	CallID string
	Joined *media.Joined
	Err    error
}

// TeardownDone reports that the media and server side of a call are released
type TeardownDone struct{ CallID string }

// ConvertDone carries the result of a convert request
type ConvertDone struct {
	CallID string
	Call   *calls.Descriptor
	Err    error
}

// UpgradeRequestDone carries the result of a video upgrade request
type UpgradeRequestDone struct {
	CallID string
	Err    error
}

// CallbackAccepted carries the result of accepting a callback request
type CallbackAccepted struct {
	RequestID string
	Callback  *calls.Callback
	Err       error
}

// ProfileLoaded carries display data for a call participant
type ProfileLoaded struct {
	UserID string
	Party  calls.Party
}

// RejoinReady carries a confirmed running call recovered on load
type RejoinReady struct{ Call *calls.Descriptor }

// RingTimeout fires when an incoming call rang unanswered
type RingTimeout struct{ CallID string }

// JoinTimeout fires when joining the media channel took too long
type JoinTimeout struct{ CallID string }

// PeerLeft reports the counterparty dropped out of the media channel
type PeerLeft struct{ CallID string }

// SignalEvent is a call event pushed by the signaling channel
type SignalEvent struct {
	Name    string
	Payload calls.EventPayload
}

func (StartCallIntent) event()      {}
func (AcceptIntent) event()         {}
func (DeclineIntent) event()        {}
func (EndIntent) event()            {}
func (ConvertIntent) event()        {}
func (UpgradeRequestIntent) event() {}
func (UpgradeRespondIntent) event() {}
func (AcceptCallbackIntent) event() {}
func (RejectCallbackIntent) event() {}
func (InitiateDone) event()         {}
func (AcceptDone) event()           {}
func (JoinDone) event()             {}
func (TeardownDone) event()         {}
func (ConvertDone) event()          {}
func (UpgradeRequestDone) event()   {}
func (CallbackAccepted) event()     {}
func (ProfileLoaded) event()        {}
func (RejoinReady) event()          {}
func (RingTimeout) event()          {}
func (JoinTimeout) event()          {}
func (PeerLeft) event()             {}
func (SignalEvent) event()          {}

// Effect is work requested by Reduce and carried out by the Coordinator
type Effect interface {
	effect()
}

// TimerKind names a coordinator timer
type TimerKind int

const (
	TimerRing TimerKind = iota
	TimerJoin
)

// DoInitiate reserves an outgoing call
type DoInitiate struct {
	Attempt           uint64
	CalleeID          string
	CallType          calls.CallType
	ConfirmReturnCall bool
}

// DoAccept accepts an incoming call on the server
type DoAccept struct{ CallID string }

// DoDecline declines an incoming call on the server
type DoDecline struct {
	CallID string
	Reason calls.DeclineReason
}

// DoJoin joins the media channel
type DoJoin struct {
	Call    *calls.Descriptor
	Options media.JoinOptions
}

// DoTeardown releases the call. NotifyEnd tells the server the call ended
// here, with Reason; it is false for calls the server already ended.
type DoTeardown struct {
	CallID    string
	Reason    string
	NotifyEnd bool
}

// DoConvert asks the server to convert the call type
type DoConvert struct {
	CallID  string
	NewType calls.CallType
}

// DoRequestUpgrade sends a video upgrade request
type DoRequestUpgrade struct {
	CallID string
	OneWay bool
}

// DoRespondUpgrade answers a video upgrade request
type DoRespondUpgrade struct {
	CallID   string
	Accepted bool
	OneWay   bool
}

// DoEnableVideo turns the local camera on if it is off
type DoEnableVideo struct{ CallID string }

// DoAcceptCallback accepts a callback request
type DoAcceptCallback struct{ RequestID string }

// DoRejectCallback rejects a callback request
type DoRejectCallback struct{ RequestID string }

// DoLoadProfile resolves display data for a participant
type DoLoadProfile struct{ UserID string }

// DoPersist stores the active call id for reload recovery
type DoPersist struct{ CallID string }

// DoClearPersisted removes the stored active call id
type DoClearPersisted struct{}

// DoArmTimer starts a timer for CallID
type DoArmTimer struct {
	Timer  TimerKind
	CallID string
}

// DoToast shows a short message to the user
type DoToast struct{ Message string }

// DoOpenCallUI opens the active call view
type DoOpenCallUI struct{ CallID string }

// DoCloseCallUI closes the active call view
type DoCloseCallUI struct{ CallID string }

func (DoInitiate) effect()       {}
func (DoAccept) effect()         {}
func (DoDecline) effect()        {}
func (DoJoin) effect()           {}
func (DoTeardown) effect()       {}
func (DoConvert) effect()        {}
func (DoRequestUpgrade) effect() {}
func (DoRespondUpgrade) effect() {}
func (DoEnableVideo) effect()    {}
func (DoAcceptCallback) effect() {}
func (DoRejectCallback) effect() {}
func (DoLoadProfile) effect()    {}
func (DoPersist) effect()        {}
func (DoClearPersisted) effect() {}
func (DoArmTimer) effect()       {}
func (DoToast) effect()          {}
func (DoOpenCallUI) effect()     {}
func (DoCloseCallUI) effect()    {}
