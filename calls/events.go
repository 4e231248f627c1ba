/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calls

// Signaling event names carrying call state
const (
	EventIncomingCall         = "incoming-call"
	EventCallAccepted         = "call-accepted"
	EventCallDeclined         = "call-declined"
	EventCallEnded            = "call-ended"
	EventCallMissed           = "call-missed"
	EventCallBusy             = "call-busy"
	EventCallbackRequest      = "callback-request"
	EventCallConverted        = "call-converted"
	EventVideoUpgradeRequest  = "video-upgrade-request"
	EventVideoUpgradeResponse = "video-upgrade-response"
	EventParticipantRejoin    = "participant-rejoin"
	EventVideoStateUpdate     = "video-state-update"
	EventCallTransaction      = "call-transaction"
)

// CallEvents lists every call event the session coordinator consumes
var CallEvents = []string{
	EventIncomingCall,
	EventCallAccepted,
	EventCallDeclined,
	EventCallEnded,
	EventCallMissed,
	EventCallBusy,
	EventCallbackRequest,
	EventCallConverted,
	EventVideoUpgradeRequest,
	EventVideoUpgradeResponse,
	EventParticipantRejoin,
	EventVideoStateUpdate,
}

// EventPayload is the union of fields carried by call events. Every event
// carries CallID except callback-request, which carries RequestID.
type EventPayload struct {
	CallID      string        `json:"callId,omitempty"`
	CallerID    string        `json:"callerId,omitempty"`
	CalleeID    string        `json:"calleeId,omitempty"`
	Caller      *Party        `json:"caller,omitempty"`
	Callee      *Party        `json:"callee,omitempty"`
	CallType    CallType      `json:"callType,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	NewCallType CallType      `json:"newCallType,omitempty"`
	OneWay      bool          `json:"oneWay,omitempty"`
	Accepted    bool          `json:"accepted,omitempty"`
	Enabled     bool          `json:"enabled,omitempty"`
	UserID      string        `json:"userId,omitempty"`
	RequestID   string        `json:"requestId,omitempty"`
	RequesterID string        `json:"requesterId,omitempty"`
	Requester   *Party        `json:"requester,omitempty"`
	Billing     *BillingHints `json:"billing,omitempty"`
	ChannelName string        `json:"channelName,omitempty"`
	Token       string        `json:"token,omitempty"`
	UID         uint32        `json:"uid,omitempty"`
	Transaction *Transaction  `json:"transaction,omitempty"`
}

// RoleFor derives userID's role from the payload's caller/callee ids
func (p *EventPayload) RoleFor(userID string) (Role, bool) {
	return roleFor(userID, p.CallerID, p.CalleeID)
}

// Counterparty returns the party that is not userID
func (p *EventPayload) Counterparty(userID string) Party {
	return counterparty(userID, p.CallerID, p.CalleeID, p.Caller, p.Callee)
}
