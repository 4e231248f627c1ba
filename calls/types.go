/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calls

import "time"

// CallType is the media type of a call
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// Valid reports whether t is a known call type
func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

// Role is the local user's side of a call
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// Party is the display data for one side of a call
type Party struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Pricing holds per-minute rates by call type
type Pricing struct {
	VoicePerMinute float64 `json:"voicePerMinute"`
	VideoPerMinute float64 `json:"videoPerMinute"`
}

// BillingHints are advisory numbers for display. Billing itself is done
// by the backend.
type BillingHints struct {
	RequiredReserve      float64 `json:"requiredReserve,omitempty"`
	Pricing              Pricing `json:"pricing"`
	FreeMinutesRemaining float64 `json:"freeMinutesRemaining,omitempty"`
	RatePerMinute        float64 `json:"ratePerMinute,omitempty"`
}

// RateFor returns the per-minute rate for t, falling back to RatePerMinute
// when the pricing table has no entry.
func (b BillingHints) RateFor(t CallType) float64 {
	switch t {
	case CallTypeVideo:
		if b.Pricing.VideoPerMinute > 0 {
			return b.Pricing.VideoPerMinute
		}
	case CallTypeVoice:
		if b.Pricing.VoicePerMinute > 0 {
			return b.Pricing.VoicePerMinute
		}
	}
	return b.RatePerMinute
}

// WithCallType returns a copy whose RatePerMinute matches t
func (b BillingHints) WithCallType(t CallType) BillingHints {
	b.RatePerMinute = b.RateFor(t)
	return b
}

// Descriptor is the normalized server view of a call, including the media
// channel credentials once the server has issued them.
type Descriptor struct {
	CallID      string       `json:"callId"`
	ChannelName string       `json:"channelName,omitempty"`
	Token       string       `json:"token,omitempty"`
	UID         uint32       `json:"uid,omitempty"`
	AppID       string       `json:"appId,omitempty"`
	CallType    CallType     `json:"callType,omitempty"`
	CallerID    string       `json:"callerId,omitempty"`
	CalleeID    string       `json:"calleeId,omitempty"`
	Caller      *Party       `json:"caller,omitempty"`
	Callee      *Party       `json:"callee,omitempty"`
	Status      string       `json:"status,omitempty"`
	AllowOneWay bool         `json:"allowOneWay,omitempty"`
	Billing     BillingHints `json:"billing"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
}

// Call statuses reported by the backend
const (
	StatusRinging = "ringing"
	StatusStarted = "started"
	StatusEnded   = "ended"
)

// RoleFor derives userID's role from the caller/callee ids. ok is false
// when userID is neither party.
func (d *Descriptor) RoleFor(userID string) (Role, bool) {
	return roleFor(userID, d.CallerID, d.CalleeID)
}

// Counterparty returns the party that is not userID.
func (d *Descriptor) Counterparty(userID string) Party {
	return counterparty(userID, d.CallerID, d.CalleeID, d.Caller, d.Callee)
}

func roleFor(userID, callerID, calleeID string) (Role, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == callerID:
		return RoleCaller, true
	case userID == calleeID:
		return RoleCallee, true
	}
	return "", false
}

func counterparty(userID, callerID, calleeID string, caller, callee *Party) Party {
	if userID == callerID {
		if callee != nil {
			p := *callee
			if p.ID == "" {
				p.ID = calleeID
			}
			return p
		}
		return Party{ID: calleeID}
	}
	if caller != nil {
		p := *caller
		if p.ID == "" {
			p.ID = callerID
		}
		return p
	}
	return Party{ID: callerID}
}

// Transaction is one billing ledger entry for a call
type Transaction struct {
	ID        string    `json:"id"`
	CallID    string    `json:"callId"`
	Kind      string    `json:"kind"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency,omitempty"`
	Minutes   float64   `json:"minutes,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Key identifies the transaction for de-duplication
func (t Transaction) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.CallID + ":" + t.Kind
}

// Callback describes an accepted callback request
type Callback struct {
	RequestID   string   `json:"requestId"`
	RequesterID string   `json:"requesterId"`
	Requester   *Party   `json:"requester,omitempty"`
	CallType    CallType `json:"callType,omitempty"`
}
