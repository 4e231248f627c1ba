/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package callsession

import "fmt"

// Phase is the position of the current call in the session state machine
type Phase int

const (
	// PhaseIdle means no call is being coordinated
	PhaseIdle Phase = iota
	// PhaseOutgoingInitiating is after startCall, before the server reserved the call
	PhaseOutgoingInitiating
	// PhaseOutgoingWaiting is while the callee's phone rings
	PhaseOutgoingWaiting
	// PhaseIncomingRinging is while a call to this user rings
	PhaseIncomingRinging
	// PhaseJoiningMedia is from acceptance until the media channel is joined
	PhaseJoiningMedia
	// PhaseActive is a joined call with media flowing
	PhaseActive
	// PhaseEnded is while a finished call is torn down
	PhaseEnded
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOutgoingInitiating:
		return "outgoing_initiating"
	case PhaseOutgoingWaiting:
		return "outgoing_waiting"
	case PhaseIncomingRinging:
		return "incoming_ringing"
	case PhaseJoiningMedia:
		return "joining_media"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// validTransitions defines which phase transitions are allowed
var validTransitions = map[Phase][]Phase{
	PhaseIdle:               {PhaseOutgoingInitiating, PhaseIncomingRinging, PhaseJoiningMedia},
	PhaseOutgoingInitiating: {PhaseOutgoingWaiting, PhaseEnded, PhaseIdle},
	PhaseOutgoingWaiting:    {PhaseJoiningMedia, PhaseEnded, PhaseIdle},
	PhaseIncomingRinging:    {PhaseJoiningMedia, PhaseIdle},
	PhaseJoiningMedia:       {PhaseActive, PhaseEnded, PhaseIdle},
	PhaseActive:             {PhaseEnded},
	PhaseEnded:              {PhaseIdle},
}

// CanTransitionTo checks if a transition from p to next is valid
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range validTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Live reports whether a call exists in this phase
func (p Phase) Live() bool {
	return p != PhaseIdle
}

// HasMedia reports whether the media channel may be held in this phase
func (p Phase) HasMedia() bool {
	return p == PhaseJoiningMedia || p == PhaseActive
}
