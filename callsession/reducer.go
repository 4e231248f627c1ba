/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package callsession

import (
	"errors"
	"fmt"

	"github.com/tejzpr/amoura-go-sdk/calls"
	"github.com/tejzpr/amoura-go-sdk/media"
)

var (
	// ErrCallInProgress is returned when a call is placed while another is live
	ErrCallInProgress = errors.New("callsession: a call is already in progress")

	// ErrIllegalTransition is returned for an action the current phase does not allow
	ErrIllegalTransition = errors.New("callsession: illegal transition")

	// ErrUnknownCall is returned when an action names a call that is not current
	ErrUnknownCall = errors.New("callsession: unknown call")

	// ErrInvalidCall is returned for malformed call requests
	ErrInvalidCall = errors.New("callsession: invalid call request")
)

// User-facing messages
const (
	msgCallFailed        = "Call failed"
	msgDeclined          = "Call declined"
	msgNoAnswer          = "No answer"
	msgMissed            = "Missed call"
	msgBusy              = "User is on another call"
	msgJoinFailed        = "Could not connect the call"
	msgPeerLeft          = "The other person left the call"
	msgCameraUnavailable = "Camera unavailable, continuing with audio"
	msgConvertFailed     = "Could not switch call type"
	msgUpgradeDeclined   = "Video request declined"
	msgUpgradeFailed     = "Could not send video request"
	msgPeerRejoined      = "The other person reconnected"
	msgCallbackFailed    = "Could not accept callback"
)

// Reduce applies ev to s and returns the next state and the effects to run.
// Signaling events are applied only when their callId matches the live
// call; incoming-call and callback-request are the exceptions since they
// introduce new ids. Events that do not apply return s unchanged.
func Reduce(s State, ev Event) (State, []Effect, error) {
	switch e := ev.(type) {
	case StartCallIntent:
		return s.startCall(e, nil)
	case AcceptIntent:
		return s.accept(e)
	case DeclineIntent:
		return s.decline(e)
	case EndIntent:
		return s.end(e)
	case ConvertIntent:
		return s.convert(e)
	case UpgradeRequestIntent:
		return s.requestUpgrade(e)
	case UpgradeRespondIntent:
		return s.respondUpgrade(e)
	case AcceptCallbackIntent:
		return s.acceptCallback(e)
	case RejectCallbackIntent:
		return s.rejectCallback(e)
	case InitiateDone:
		return s.initiateDone(e)
	case AcceptDone:
		return s.acceptDone(e)
	case JoinDone:
		return s.joinDone(e)
	case TeardownDone:
		return s.teardownDone(e)
	case ConvertDone:
		return s.convertDone(e)
	case UpgradeRequestDone:
		return s.upgradeRequestDone(e)
	case CallbackAccepted:
		return s.callbackAccepted(e)
	case ProfileLoaded:
		return s.profileLoaded(e)
	case RejoinReady:
		return s.rejoinReady(e)
	case RingTimeout:
		if s.Phase != PhaseIncomingRinging || e.CallID != s.CallID() {
			return s, nil, nil
		}
		return s.idle(ReasonTimeout), []Effect{DoDecline{CallID: e.CallID, Reason: calls.DeclineReasonTimeout}}, nil
	case JoinTimeout:
		if s.Phase != PhaseJoiningMedia || e.CallID != s.CallID() {
			return s, nil, nil
		}
		return s.joinFailed(nil)
	case PeerLeft:
		if s.Phase != PhaseActive || e.CallID == "" || e.CallID != s.CallID() {
			return s, nil, nil
		}
		next, effects, err := s.finish(ReasonPeerLeft, true)
		return next, append(effects, DoToast{Message: msgPeerLeft}), err
	case SignalEvent:
		if !s.matches(e) {
			return s, nil, nil
		}
		return s.signal(e)
	}
	return s, nil, nil
}

// matches is the single reconciliation precondition for pushed events
func (s State) matches(e SignalEvent) bool {
	switch e.Name {
	case calls.EventIncomingCall, calls.EventCallbackRequest:
		return true
	}
	return s.Session != nil && e.Payload.CallID != "" && e.Payload.CallID == s.Session.CallID
}

func (s State) enter(next Phase) (State, error) {
	if !s.Phase.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: %s to %s", ErrIllegalTransition, s.Phase, next)
	}
	s.Phase = next
	return s, nil
}

// idle drops the session. Only used from phases that never held media.
func (s State) idle(reason string) State {
	callID := s.CallID()
	s.Phase = PhaseIdle
	s.Session = nil
	if callID != "" {
		s.LastEnded = &Ended{CallID: callID, Reason: reason}
	}
	return s
}

// finish moves the call to PhaseEnded and requests its teardown
func (s State) finish(reason string, notifyEnd bool) (State, []Effect, error) {
	callID := s.CallID()
	wasActive := s.Phase == PhaseActive
	next, err := s.enter(PhaseEnded)
	if err != nil {
		return s, nil, err
	}
	next.LastEnded = &Ended{CallID: callID, Reason: reason}
	effects := []Effect{DoTeardown{CallID: callID, Reason: reason, NotifyEnd: notifyEnd}}
	if wasActive {
		effects = append(effects, DoCloseCallUI{CallID: callID})
	}
	return next, effects, nil
}

func (s State) startCall(e StartCallIntent, effects []Effect) (State, []Effect, error) {
	if s.Phase != PhaseIdle {
		return s, effects, ErrCallInProgress
	}
	if e.CalleeID == "" || e.CalleeID == s.SelfID {
		return s, effects, fmt.Errorf("%w: callee %q", ErrInvalidCall, e.CalleeID)
	}
	callType := e.CallType
	if callType == "" {
		callType = calls.CallTypeVoice
	}
	if !callType.Valid() {
		return s, effects, fmt.Errorf("%w: call type %q", ErrInvalidCall, callType)
	}

	next, err := s.enter(PhaseOutgoingInitiating)
	if err != nil {
		return s, effects, err
	}
	next.attempts++
	next.Session = &Session{
		Attempt:      next.attempts,
		Role:         calls.RoleCaller,
		CallType:     callType,
		Counterparty: calls.Party{ID: e.CalleeID},
	}
	next.Busy = nil
	next.PendingConfirmation = nil
	next.LastEnded = nil
	return next, append(effects,
		DoInitiate{Attempt: next.attempts, CalleeID: e.CalleeID, CallType: callType, ConfirmReturnCall: e.ConfirmReturnCall},
		DoLoadProfile{UserID: e.CalleeID},
	), nil
}

func (s State) initiateDone(e InitiateDone) (State, []Effect, error) {
	if s.Phase != PhaseOutgoingInitiating || s.Session == nil || s.Session.Attempt != e.Attempt {
		return s, nil, nil
	}
	sess := s.Session

	if e.Err != nil || e.Result == nil {
		next := s.idle(ReasonFailed)
		if sess.CancelRequested || calls.IsBenign(e.Err) {
			return next, nil, nil
		}
		msg := msgCallFailed
		if e.Err != nil {
			msg = calls.UserMessage(e.Err)
		}
		return next, []Effect{DoToast{Message: msg}}, nil
	}

	if !e.Result.OK() {
		next := s.idle(ReasonFailed)
		switch e.Result.Status {
		case calls.InitiateConfirmationRequired:
			next.PendingConfirmation = &Confirmation{
				CalleeID: sess.Counterparty.ID,
				CallType: sess.CallType,
				Message:  e.Result.Message,
			}
		case calls.InitiateUserBusy:
			next.Busy = &BusyNotice{CalleeID: sess.Counterparty.ID}
		}
		if sess.CancelRequested {
			return next, nil, nil
		}
		msg := e.Result.Message
		if msg == "" {
			msg = msgCallFailed
		}
		return next, []Effect{DoToast{Message: msg}}, nil
	}

	next, ns := s.mutate()
	call := e.Result.Call
	ns.CallID = call.CallID
	ns.Call = call
	if call.CallType.Valid() {
		ns.CallType = call.CallType
	}
	ns.Billing = call.Billing
	if e.Result.Billing != nil {
		ns.Billing = *e.Result.Billing
	}
	ns.Billing = ns.Billing.WithCallType(ns.CallType)
	ns.AllowOneWay = call.AllowOneWay
	if _, ok := call.RoleFor(s.SelfID); ok {
		ns.Counterparty = mergeParty(ns.Counterparty, call.Counterparty(s.SelfID))
	}

	next, err := next.enter(PhaseOutgoingWaiting)
	if err != nil {
		return s, nil, err
	}
	if ns.CancelRequested {
		return next.finish(ReasonCancelled, true)
	}
	return next, nil, nil
}

func (s State) accept(e AcceptIntent) (State, []Effect, error) {
	if e.CallID != "" && s.Session != nil && e.CallID != s.CallID() {
		return s, nil, ErrUnknownCall
	}
	if s.Phase == PhaseJoiningMedia && s.Session.AcceptIssued {
		return s, nil, nil
	}
	if s.Phase != PhaseIncomingRinging {
		return s, nil, fmt.Errorf("%w: cannot accept in phase %s", ErrIllegalTransition, s.Phase)
	}

	next, ns := s.mutate()
	ns.AcceptIssued = true
	next, err := next.enter(PhaseJoiningMedia)
	if err != nil {
		return s, nil, err
	}
	return next, []Effect{
		DoAccept{CallID: ns.CallID},
		DoArmTimer{Timer: TimerJoin, CallID: ns.CallID},
	}, nil
}

func (s State) acceptDone(e AcceptDone) (State, []Effect, error) {
	if s.Phase != PhaseJoiningMedia || e.CallID != s.CallID() {
		return s, nil, nil
	}
	if e.Err != nil && !calls.IsBenign(e.Err) {
		toast := DoToast{Message: calls.UserMessage(e.Err)}
		if s.Session.JoinIssued {
			next, effects, err := s.finish(ReasonFailed, true)
			return next, append(effects, toast), err
		}
		return s.idle(ReasonFailed), []Effect{toast}, nil
	}
	next, ns := s.mutate()
	if e.Call != nil {
		ns.Call = mergeDescriptor(ns.Call, e.Call)
		if e.Call.CallType.Valid() {
			ns.CallType = e.Call.CallType
		}
		if e.Call.Billing != (calls.BillingHints{}) {
			ns.Billing = e.Call.Billing.WithCallType(ns.CallType)
		}
		if e.Call.AllowOneWay {
			ns.AllowOneWay = true
		}
	}
	return next.issueJoin(nil)
}

// issueJoin requests the media join once credentials are known. It runs
// at most once per call.
func (s State) issueJoin(effects []Effect) (State, []Effect, error) {
	next, ns := s.mutate()
	if ns == nil || ns.JoinIssued || ns.Call == nil || ns.Call.ChannelName == "" {
		return s, effects, nil
	}
	ns.JoinIssued = true
	call := *ns.Call
	call.CallID = ns.CallID
	call.CallType = ns.CallType
	call.AllowOneWay = ns.AllowOneWay
	opts := media.JoinOptions{
		Rejoin:         ns.Rejoin,
		OneWayReceiver: ns.AllowOneWay && ns.Role == calls.RoleCallee,
	}
	return next, append(effects, DoJoin{Call: &call, Options: opts}), nil
}

func (s State) joinDone(e JoinDone) (State, []Effect, error) {
	if e.CallID != s.CallID() {
		// a join that outlived its call still holds the channel
		if e.Err == nil && e.Joined != nil && e.CallID != "" {
			return s, []Effect{DoTeardown{CallID: e.CallID, Reason: ReasonCancelled, NotifyEnd: true}}, nil
		}
		return s, nil, nil
	}
	if s.Phase != PhaseJoiningMedia {
		return s, nil, nil
	}
	if e.Err != nil || e.Joined == nil {
		return s.joinFailed(e.Err)
	}

	next, ns := s.mutate()
	if c := e.Joined.Call; c != nil {
		ns.Call = mergeDescriptor(ns.Call, c)
		if c.Billing != (calls.BillingHints{}) {
			ns.Billing = c.Billing.WithCallType(ns.CallType)
		}
	}
	next, err := next.enter(PhaseActive)
	if err != nil {
		return s, nil, err
	}
	effects := []Effect{
		DoPersist{CallID: ns.CallID},
		DoOpenCallUI{CallID: ns.CallID},
	}
	if e.Joined.CameraDenied {
		effects = append(effects, DoToast{Message: msgCameraUnavailable})
	}
	return next, effects, nil
}

// joinFailed unwinds a call whose media join failed or timed out. A
// recovered call fails silently and forgets the stored id.
func (s State) joinFailed(err error) (State, []Effect, error) {
	if s.Session.Rejoin {
		next, effects, ferr := s.finish(ReasonJoinFailed, false)
		return next, append(effects, DoClearPersisted{}), ferr
	}
	next, effects, ferr := s.finish(ReasonJoinFailed, true)
	if err != nil && calls.IsBenign(err) {
		return next, effects, ferr
	}
	return next, append(effects, DoToast{Message: msgJoinFailed}), ferr
}

func (s State) teardownDone(e TeardownDone) (State, []Effect, error) {
	if s.Phase != PhaseEnded || e.CallID != s.CallID() {
		return s, nil, nil
	}
	next, err := s.enter(PhaseIdle)
	if err != nil {
		return s, nil, err
	}
	next.Session = nil
	return next, []Effect{DoClearPersisted{}}, nil
}

func (s State) decline(e DeclineIntent) (State, []Effect, error) {
	if s.Phase == PhaseIdle {
		return s, nil, nil
	}
	if e.CallID != "" && e.CallID != s.CallID() {
		return s, nil, ErrUnknownCall
	}
	if s.Phase != PhaseIncomingRinging {
		return s, nil, fmt.Errorf("%w: cannot decline in phase %s", ErrIllegalTransition, s.Phase)
	}
	callID := s.CallID()
	return s.idle(ReasonDeclined), []Effect{DoDecline{CallID: callID, Reason: calls.DeclineReasonDeclined}}, nil
}

func (s State) end(e EndIntent) (State, []Effect, error) {
	if s.Phase == PhaseIdle || s.Phase == PhaseEnded {
		return s, nil, nil
	}
	if e.CallID != "" && e.CallID != s.CallID() {
		return s, nil, nil
	}
	switch s.Phase {
	case PhaseOutgoingInitiating:
		next, ns := s.mutate()
		ns.CancelRequested = true
		return next, nil, nil
	case PhaseOutgoingWaiting:
		return s.finish(ReasonCancelled, true)
	case PhaseIncomingRinging:
		callID := s.CallID()
		return s.idle(ReasonDeclined), []Effect{DoDecline{CallID: callID, Reason: calls.DeclineReasonDeclined}}, nil
	default:
		return s.finish(ReasonHangup, true)
	}
}

func (s State) convert(e ConvertIntent) (State, []Effect, error) {
	if s.Phase != PhaseActive {
		return s, nil, fmt.Errorf("%w: cannot convert in phase %s", ErrIllegalTransition, s.Phase)
	}
	if !e.NewType.Valid() {
		return s, nil, fmt.Errorf("%w: call type %q", ErrInvalidCall, e.NewType)
	}
	if s.Session.PendingConvert != nil {
		return s, nil, fmt.Errorf("%w: convert already pending", ErrIllegalTransition)
	}
	if s.Session.CallType == e.NewType {
		return s, nil, nil
	}
	next, ns := s.mutate()
	ns.PendingConvert = &PendingConvert{From: ns.CallType, To: e.NewType, PrevBilling: ns.Billing}
	ns.CallType = e.NewType
	ns.Billing = ns.Billing.WithCallType(e.NewType)
	return next, []Effect{DoConvert{CallID: ns.CallID, NewType: e.NewType}}, nil
}

func (s State) convertDone(e ConvertDone) (State, []Effect, error) {
	if s.Phase != PhaseActive || e.CallID != s.CallID() || s.Session.PendingConvert == nil {
		return s, nil, nil
	}
	next, ns := s.mutate()
	pending := ns.PendingConvert
	ns.PendingConvert = nil
	if e.Err != nil {
		ns.CallType = pending.From
		ns.Billing = pending.PrevBilling
		if calls.IsBenign(e.Err) {
			return next, nil, nil
		}
		return next, []Effect{DoToast{Message: msgConvertFailed}}, nil
	}
	if c := e.Call; c != nil {
		if c.CallType.Valid() {
			ns.CallType = c.CallType
		}
		if c.Billing != (calls.BillingHints{}) {
			ns.Billing = c.Billing
		}
		ns.Billing = ns.Billing.WithCallType(ns.CallType)
		ns.Call = mergeDescriptor(ns.Call, c)
	}
	return next, nil, nil
}

func (s State) requestUpgrade(e UpgradeRequestIntent) (State, []Effect, error) {
	if s.Phase != PhaseActive {
		return s, nil, fmt.Errorf("%w: cannot request video in phase %s", ErrIllegalTransition, s.Phase)
	}
	if s.Session.CallType == calls.CallTypeVideo || s.Session.Upgrade != nil {
		return s, nil, fmt.Errorf("%w: video already on or requested", ErrIllegalTransition)
	}
	next, ns := s.mutate()
	ns.Upgrade = &UpgradeRequest{Outgoing: true, OneWay: e.OneWay, From: s.SelfID}
	return next, []Effect{DoRequestUpgrade{CallID: ns.CallID, OneWay: e.OneWay}}, nil
}

func (s State) upgradeRequestDone(e UpgradeRequestDone) (State, []Effect, error) {
	if s.Phase != PhaseActive || e.CallID != s.CallID() || e.Err == nil {
		return s, nil, nil
	}
	if s.Session.Upgrade == nil || !s.Session.Upgrade.Outgoing {
		return s, nil, nil
	}
	next, ns := s.mutate()
	ns.Upgrade = nil
	return next, []Effect{DoToast{Message: msgUpgradeFailed}}, nil
}

func (s State) respondUpgrade(e UpgradeRespondIntent) (State, []Effect, error) {
	if s.Phase != PhaseActive || s.Session.Upgrade == nil || s.Session.Upgrade.Outgoing {
		return s, nil, fmt.Errorf("%w: no video request to answer", ErrIllegalTransition)
	}
	next, ns := s.mutate()
	oneWay := e.OneWay || ns.Upgrade.OneWay
	ns.Upgrade = nil
	effects := []Effect{DoRespondUpgrade{CallID: ns.CallID, Accepted: e.Accepted, OneWay: oneWay}}
	if e.Accepted {
		ns.upgradeToVideo(oneWay)
		if !oneWay {
			effects = append(effects, DoEnableVideo{CallID: ns.CallID})
		}
	}
	return next, effects, nil
}

func (ns *Session) upgradeToVideo(oneWay bool) {
	ns.CallType = calls.CallTypeVideo
	ns.AllowOneWay = oneWay
	ns.Billing = ns.Billing.WithCallType(calls.CallTypeVideo)
}

func (s State) acceptCallback(e AcceptCallbackIntent) (State, []Effect, error) {
	if s.Callback == nil || (e.RequestID != "" && e.RequestID != s.Callback.RequestID) {
		return s, nil, ErrUnknownCall
	}
	requestID := s.Callback.RequestID
	s.Callback = nil
	return s, []Effect{DoAcceptCallback{RequestID: requestID}}, nil
}

func (s State) rejectCallback(e RejectCallbackIntent) (State, []Effect, error) {
	if s.Callback == nil || (e.RequestID != "" && e.RequestID != s.Callback.RequestID) {
		return s, nil, ErrUnknownCall
	}
	requestID := s.Callback.RequestID
	s.Callback = nil
	return s, []Effect{DoRejectCallback{RequestID: requestID}}, nil
}

// callbackAccepted places the return call once the server agreed to it
func (s State) callbackAccepted(e CallbackAccepted) (State, []Effect, error) {
	if e.Err != nil {
		if calls.IsBenign(e.Err) {
			return s, nil, nil
		}
		return s, []Effect{DoToast{Message: msgCallbackFailed}}, nil
	}
	if e.Callback == nil || e.Callback.RequesterID == "" || s.Phase != PhaseIdle {
		return s, nil, nil
	}
	next, effects, err := s.startCall(StartCallIntent{
		CalleeID:          e.Callback.RequesterID,
		CallType:          e.Callback.CallType,
		ConfirmReturnCall: true,
	}, nil)
	if err != nil {
		return s, nil, nil
	}
	if p := e.Callback.Requester; p != nil {
		next.Session.Counterparty = mergeParty(next.Session.Counterparty, *p)
	}
	return next, effects, nil
}

func (s State) profileLoaded(e ProfileLoaded) (State, []Effect, error) {
	if s.Session == nil || s.Session.Counterparty.ID != e.UserID {
		return s, nil, nil
	}
	next, ns := s.mutate()
	ns.Counterparty = mergeParty(ns.Counterparty, e.Party)
	return next, nil, nil
}

func (s State) rejoinReady(e RejoinReady) (State, []Effect, error) {
	if s.Phase != PhaseIdle || e.Call == nil || e.Call.CallID == "" {
		return s, nil, nil
	}
	call := e.Call
	role, ok := call.RoleFor(s.SelfID)
	if !ok {
		role = calls.RoleCaller
	}
	callType := call.CallType
	if !callType.Valid() {
		callType = calls.CallTypeVoice
	}

	next, err := s.enter(PhaseJoiningMedia)
	if err != nil {
		return s, nil, err
	}
	next.Session = &Session{
		CallID:       call.CallID,
		Role:         role,
		CallType:     callType,
		Counterparty: call.Counterparty(s.SelfID),
		Billing:      call.Billing.WithCallType(callType),
		AllowOneWay:  call.AllowOneWay,
		Call:         call,
		Rejoin:       true,
		AcceptIssued: true,
	}
	effects := []Effect{DoArmTimer{Timer: TimerJoin, CallID: call.CallID}}
	if id := next.Session.Counterparty.ID; id != "" {
		effects = append(effects, DoLoadProfile{UserID: id})
	}
	return next.issueJoin(effects)
}

func (s State) signal(e SignalEvent) (State, []Effect, error) {
	p := e.Payload
	switch e.Name {
	case calls.EventIncomingCall:
		return s.incoming(p)
	case calls.EventCallbackRequest:
		return s.callbackRequest(p)
	case calls.EventCallAccepted:
		return s.accepted(p)
	case calls.EventCallDeclined:
		switch s.Phase {
		case PhaseOutgoingWaiting:
			if p.Reason == string(calls.DeclineReasonTimeout) {
				return s.idle(ReasonMissed), []Effect{DoToast{Message: msgNoAnswer}}, nil
			}
			return s.idle(ReasonDeclined), []Effect{DoToast{Message: msgDeclined}}, nil
		case PhaseIncomingRinging:
			return s.idle(ReasonDeclined), nil, nil
		case PhaseJoiningMedia:
			return s.finish(ReasonDeclined, false)
		}
	case calls.EventCallMissed:
		switch s.Phase {
		case PhaseOutgoingWaiting:
			return s.idle(ReasonMissed), []Effect{DoToast{Message: msgNoAnswer}}, nil
		case PhaseIncomingRinging:
			return s.idle(ReasonMissed), []Effect{DoToast{Message: msgMissed}}, nil
		case PhaseJoiningMedia:
			return s.finish(ReasonMissed, false)
		}
	case calls.EventCallBusy:
		if s.Phase == PhaseOutgoingWaiting {
			calleeID := s.Session.Counterparty.ID
			next := s.idle(ReasonBusy)
			next.Busy = &BusyNotice{CallID: p.CallID, CalleeID: calleeID}
			return next, []Effect{DoToast{Message: msgBusy}}, nil
		}
	case calls.EventCallEnded:
		reason := p.Reason
		if reason == "" {
			reason = ReasonRemoteEnd
		}
		switch s.Phase {
		case PhaseOutgoingWaiting, PhaseIncomingRinging:
			return s.idle(reason), nil, nil
		case PhaseJoiningMedia, PhaseActive:
			return s.finish(reason, false)
		}
	case calls.EventCallConverted:
		return s.converted(p)
	case calls.EventVideoUpgradeRequest:
		if s.Phase != PhaseActive || (p.UserID != "" && p.UserID == s.SelfID) {
			return s, nil, nil
		}
		next, ns := s.mutate()
		ns.Upgrade = &UpgradeRequest{Outgoing: false, OneWay: p.OneWay, From: p.UserID}
		return next, nil, nil
	case calls.EventVideoUpgradeResponse:
		if s.Phase != PhaseActive || s.Session.Upgrade == nil || !s.Session.Upgrade.Outgoing {
			return s, nil, nil
		}
		next, ns := s.mutate()
		ns.Upgrade = nil
		if !p.Accepted {
			return next, []Effect{DoToast{Message: msgUpgradeDeclined}}, nil
		}
		ns.upgradeToVideo(p.OneWay)
		return next, []Effect{DoEnableVideo{CallID: ns.CallID}}, nil
	case calls.EventParticipantRejoin:
		if s.Phase == PhaseActive && p.UserID != s.SelfID {
			return s, []Effect{DoToast{Message: msgPeerRejoined}}, nil
		}
	case calls.EventVideoStateUpdate:
		if !s.Phase.HasMedia() || (p.UserID != "" && p.UserID == s.SelfID) {
			return s, nil, nil
		}
		next, ns := s.mutate()
		ns.RemoteVideo = p.Enabled
		return next, nil, nil
	}
	return s, nil, nil
}

func (s State) incoming(p calls.EventPayload) (State, []Effect, error) {
	if p.CallID == "" || s.Phase != PhaseIdle {
		return s, nil, nil
	}
	if s.LastEnded != nil && s.LastEnded.CallID == p.CallID {
		return s, nil, nil
	}
	if role, ok := p.RoleFor(s.SelfID); ok && role != calls.RoleCallee {
		return s, nil, nil
	}
	callType := p.CallType
	if !callType.Valid() {
		callType = calls.CallTypeVoice
	}
	var billing calls.BillingHints
	if p.Billing != nil {
		billing = *p.Billing
	}

	next, err := s.enter(PhaseIncomingRinging)
	if err != nil {
		return s, nil, err
	}
	counterparty := p.Counterparty(s.SelfID)
	next.Session = &Session{
		CallID:       p.CallID,
		Role:         calls.RoleCallee,
		CallType:     callType,
		Counterparty: counterparty,
		Billing:      billing.WithCallType(callType),
		AllowOneWay:  p.OneWay,
		Call:         mergePayload(nil, p),
	}
	next.Busy = nil
	next.LastEnded = nil
	effects := []Effect{DoArmTimer{Timer: TimerRing, CallID: p.CallID}}
	if counterparty.ID != "" {
		effects = append(effects, DoLoadProfile{UserID: counterparty.ID})
	}
	return next, effects, nil
}

func (s State) callbackRequest(p calls.EventPayload) (State, []Effect, error) {
	if p.RequestID == "" {
		return s, nil, nil
	}
	if s.Callback != nil && s.Callback.RequestID == p.RequestID {
		return s, nil, nil
	}
	requesterID := p.RequesterID
	if requesterID == "" && p.Requester != nil {
		requesterID = p.Requester.ID
	}
	if requesterID == "" {
		requesterID = p.UserID
	}
	s.Callback = &calls.Callback{
		RequestID:   p.RequestID,
		RequesterID: requesterID,
		Requester:   p.Requester,
		CallType:    p.CallType,
	}
	return s, nil, nil
}

// accepted handles call-accepted from either role. The role is re-derived
// from the event's ids.
func (s State) accepted(p calls.EventPayload) (State, []Effect, error) {
	switch s.Phase {
	case PhaseOutgoingWaiting, PhaseIncomingRinging:
		next, ns := s.mutate()
		adoptPayload(ns, p, s.SelfID)
		next, err := next.enter(PhaseJoiningMedia)
		if err != nil {
			return s, nil, err
		}
		return next.issueJoin([]Effect{DoArmTimer{Timer: TimerJoin, CallID: ns.CallID}})
	case PhaseJoiningMedia:
		if s.Session.JoinIssued {
			return s, nil, nil
		}
		next, ns := s.mutate()
		adoptPayload(ns, p, s.SelfID)
		return next.issueJoin(nil)
	}
	return s, nil, nil
}

func (s State) converted(p calls.EventPayload) (State, []Effect, error) {
	if !s.Phase.HasMedia() {
		return s, nil, nil
	}
	newType := p.NewCallType
	if !newType.Valid() {
		newType = p.CallType
	}
	if !newType.Valid() {
		return s, nil, nil
	}
	next, ns := s.mutate()
	ns.CallType = newType
	ns.PendingConvert = nil
	if p.Billing != nil {
		ns.Billing = *p.Billing
	}
	ns.Billing = ns.Billing.WithCallType(newType)
	if newType == calls.CallTypeVideo && p.OneWay {
		ns.AllowOneWay = true
	}
	if ns.Call != nil {
		call := *ns.Call
		call.CallType = newType
		ns.Call = &call
	}
	return next, nil, nil
}

func adoptPayload(ns *Session, p calls.EventPayload, selfID string) {
	if role, ok := p.RoleFor(selfID); ok {
		ns.Role = role
		ns.Counterparty = mergeParty(ns.Counterparty, p.Counterparty(selfID))
	}
	if p.CallType.Valid() {
		ns.CallType = p.CallType
	}
	if p.Billing != nil {
		ns.Billing = p.Billing.WithCallType(ns.CallType)
	}
	if p.OneWay {
		ns.AllowOneWay = true
	}
	ns.Call = mergePayload(ns.Call, p)
}

func mergeParty(cur, upd calls.Party) calls.Party {
	if upd.ID != "" && upd.ID != cur.ID {
		return upd
	}
	if upd.Name != "" {
		cur.Name = upd.Name
	}
	if upd.Avatar != "" {
		cur.Avatar = upd.Avatar
	}
	return cur
}

// mergePayload copies the call fields an event carries into a new descriptor
func mergePayload(d *calls.Descriptor, p calls.EventPayload) *calls.Descriptor {
	var out calls.Descriptor
	if d != nil {
		out = *d
	}
	if out.CallID == "" {
		out.CallID = p.CallID
	}
	if p.ChannelName != "" {
		out.ChannelName = p.ChannelName
	}
	if p.Token != "" {
		out.Token = p.Token
	}
	if p.UID != 0 {
		out.UID = p.UID
	}
	if p.CallType.Valid() {
		out.CallType = p.CallType
	}
	if p.CallerID != "" {
		out.CallerID = p.CallerID
	}
	if p.CalleeID != "" {
		out.CalleeID = p.CalleeID
	}
	if p.Caller != nil {
		out.Caller = p.Caller
	}
	if p.Callee != nil {
		out.Callee = p.Callee
	}
	if p.Billing != nil {
		out.Billing = *p.Billing
	}
	return &out
}

// mergeDescriptor overlays the non-empty fields of upd onto base
func mergeDescriptor(base, upd *calls.Descriptor) *calls.Descriptor {
	if base == nil {
		c := *upd
		return &c
	}
	out := *base
	if upd.CallID != "" {
		out.CallID = upd.CallID
	}
	if upd.ChannelName != "" {
		out.ChannelName = upd.ChannelName
	}
	if upd.Token != "" {
		out.Token = upd.Token
	}
	if upd.UID != 0 {
		out.UID = upd.UID
	}
	if upd.AppID != "" {
		out.AppID = upd.AppID
	}
	if upd.CallType.Valid() {
		out.CallType = upd.CallType
	}
	if upd.CallerID != "" {
		out.CallerID = upd.CallerID
	}
	if upd.CalleeID != "" {
		out.CalleeID = upd.CalleeID
	}
	if upd.Caller != nil {
		out.Caller = upd.Caller
	}
	if upd.Callee != nil {
		out.Callee = upd.Callee
	}
	if upd.Status != "" {
		out.Status = upd.Status
	}
	if upd.AllowOneWay {
		out.AllowOneWay = true
	}
	if upd.Billing != (calls.BillingHints{}) {
		out.Billing = upd.Billing
	}
	if upd.StartedAt != nil {
		out.StartedAt = upd.StartedAt
	}
	return &out
}
