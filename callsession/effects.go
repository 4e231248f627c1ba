/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package callsession

import (
	"context"
	"errors"
	"time"

	"github.com/tejzpr/amoura-go-sdk/activecall"
	"github.com/tejzpr/amoura-go-sdk/calls"
	"github.com/tejzpr/amoura-go-sdk/media"
)

// execute runs one effect. Network and media work runs on its own
// goroutine and reports back through the inbox; the rest runs inline.
func (c *Coordinator) execute(s State, eff Effect) {
	switch e := eff.(type) {
	case DoInitiate:
		c.request(func(ctx context.Context) Event {
			res, err := c.api.Initiate(ctx, e.CalleeID, e.CallType, e.ConfirmReturnCall)
			return InitiateDone{Attempt: e.Attempt, Result: res, Err: err}
		})
	case DoAccept:
		c.request(func(ctx context.Context) Event {
			call, err := c.api.Accept(ctx, e.CallID)
			return AcceptDone{CallID: e.CallID, Call: call, Err: err}
		})
	case DoDecline:
		c.request(func(ctx context.Context) Event {
			if err := c.api.Decline(ctx, e.CallID, e.Reason); err != nil && !calls.IsBenign(err) {
				c.logger.Printf("Coordinator: decline %s (%s) failed: %v", e.CallID, e.Reason, err)
			}
			return nil
		})
	case DoJoin:
		c.spawn(func() {
			joined, err := c.media.Join(c.ctx, e.Call, e.Options)
			if err != nil {
				c.logger.Printf("Coordinator: join %s failed: %v", e.Call.CallID, err)
			}
			c.post(JoinDone{CallID: e.Call.CallID, Joined: joined, Err: err})
		})
	case DoTeardown:
		c.spawn(func() {
			c.teardown(e)
			c.post(TeardownDone{CallID: e.CallID})
		})
	case DoConvert:
		c.request(func(ctx context.Context) Event {
			call, err := c.api.Convert(ctx, e.CallID, e.NewType)
			return ConvertDone{CallID: e.CallID, Call: call, Err: err}
		})
	case DoRequestUpgrade:
		c.request(func(ctx context.Context) Event {
			err := c.api.RequestVideoUpgrade(ctx, e.CallID, e.OneWay)
			return UpgradeRequestDone{CallID: e.CallID, Err: err}
		})
	case DoRespondUpgrade:
		c.request(func(ctx context.Context) Event {
			if err := c.api.RespondVideoUpgrade(ctx, e.CallID, e.Accepted, e.OneWay); err != nil && !calls.IsBenign(err) {
				c.logger.Printf("Coordinator: video upgrade response for %s failed: %v", e.CallID, err)
				return refresh{toast: calls.UserMessage(err)}
			}
			return nil
		})
	case DoEnableVideo:
		c.request(func(ctx context.Context) Event {
			if c.media.ActiveCallID() != e.CallID || c.media.VideoEnabled() {
				return nil
			}
			if _, err := c.media.ToggleVideo(ctx); err != nil {
				c.logger.Printf("Coordinator: enable video for %s: %v", e.CallID, err)
			}
			return refresh{}
		})
	case DoAcceptCallback:
		c.request(func(ctx context.Context) Event {
			cb, err := c.api.AcceptCallback(ctx, e.RequestID)
			return CallbackAccepted{RequestID: e.RequestID, Callback: cb, Err: err}
		})
	case DoRejectCallback:
		c.request(func(ctx context.Context) Event {
			if err := c.api.RejectCallback(ctx, e.RequestID); err != nil && !calls.IsBenign(err) {
				c.logger.Printf("Coordinator: reject callback %s failed: %v", e.RequestID, err)
			}
			return nil
		})
	case DoLoadProfile:
		if c.profiles == nil {
			return
		}
		c.request(func(ctx context.Context) Event {
			p, err := c.profiles.Get(ctx, e.UserID)
			if err != nil {
				c.logger.Printf("Coordinator: profile %s: %v", e.UserID, err)
				return nil
			}
			return ProfileLoaded{UserID: e.UserID, Party: calls.Party{ID: p.ID, Name: p.DisplayName, Avatar: p.Avatar}}
		})
	case DoPersist:
		c.persist(s.SelfID, e.CallID)
	case DoClearPersisted:
		c.persist(s.SelfID, "")
	case DoArmTimer:
		c.arm(e.Timer, e.CallID)
	case DoToast:
		c.toast(e.Message)
	case DoOpenCallUI:
		c.emitter.Emit(EventCallOpen, c.View())
	case DoCloseCallUI:
		c.emitter.Emit(EventCallClosed, e.CallID)
	}
}

func (c *Coordinator) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// request runs fn with a bounded context and posts the event it returns
func (c *Coordinator) request(fn func(ctx context.Context) Event) {
	c.spawn(func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.config.RequestTimeout)
		defer cancel()
		if ev := fn(ctx); ev != nil {
			c.post(ev)
		}
	})
}

// teardown releases a finished call. A call held by the media session is
// ended by its Leave, which notifies the server before leaving the
// channel. Otherwise the end request goes out first and Leave only settles
// an in-flight join.
func (c *Coordinator) teardown(e DoTeardown) {
	ctx := context.WithoutCancel(c.ctx)
	if e.NotifyEnd && c.media.ActiveCallID() != e.CallID {
		endCtx, cancel := context.WithTimeout(ctx, c.config.EndTimeout)
		err := c.api.End(endCtx, e.CallID, &calls.EndOptions{Reason: e.Reason})
		cancel()
		if err != nil && !calls.IsBenign(err) {
			c.logger.Printf("Coordinator: end %s failed: %v", e.CallID, err)
		}
	}
	opts := media.LeaveOptions{Reason: e.Reason, SkipEnd: !e.NotifyEnd}
	if err := c.media.LeaveWith(ctx, opts); err != nil {
		c.logger.Printf("Coordinator: leave %s: %v", e.CallID, err)
	}
}

// persist stores callID as the active call, or clears it when empty
func (c *Coordinator) persist(selfID, callID string) {
	if c.store == nil || selfID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.config.RequestTimeout)
	defer cancel()
	var err error
	if callID == "" {
		err = c.store.Clear(ctx, selfID)
	} else {
		err = c.store.Set(ctx, selfID, callID)
	}
	if err != nil {
		c.logger.Printf("Coordinator: active call store: %v", err)
	}
}

func (c *Coordinator) arm(kind TimerKind, callID string) {
	c.stopTimer(kind)
	var (
		d  time.Duration
		ev Event
	)
	switch kind {
	case TimerRing:
		d, ev = c.config.RingTimeout, RingTimeout{CallID: callID}
	case TimerJoin:
		d, ev = c.config.JoinTimeout, JoinTimeout{CallID: callID}
	}
	if d <= 0 {
		return
	}
	c.timers[kind] = time.AfterFunc(d, func() { c.post(ev) })
}

func (c *Coordinator) stopTimer(kind TimerKind) {
	if t, ok := c.timers[kind]; ok {
		t.Stop()
		delete(c.timers, kind)
	}
}

// syncTimers stops timers whose phase has been left
func (c *Coordinator) syncTimers(phase Phase) {
	if phase != PhaseIncomingRinging {
		c.stopTimer(TimerRing)
	}
	if phase != PhaseJoiningMedia {
		c.stopTimer(TimerJoin)
	}
}

// rejoinOnLoad recovers a call that was active when the previous process
// stopped. Every failure forgets the stored id without telling the user.
func (c *Coordinator) rejoinOnLoad(ctx context.Context, selfID string) {
	if c.store == nil || !c.identity.Authenticated() {
		return
	}
	stored, err := c.store.Get(ctx, selfID)
	if err != nil {
		if !errors.Is(err, activecall.ErrNoActiveCall) {
			c.logger.Printf("Coordinator: read active call: %v", err)
		}
		return
	}

	forget := func(reason string) {
		c.logger.Printf("Coordinator: not rejoining %s: %s", stored, reason)
		if err := c.store.Clear(ctx, selfID); err != nil {
			c.logger.Printf("Coordinator: clear active call: %v", err)
		}
	}

	active, err := c.api.GetActiveCall(ctx)
	switch {
	case err != nil:
		forget(err.Error())
		return
	case active == nil:
		forget("no active call on server")
		return
	case active.CallID != stored || active.Status != calls.StatusStarted:
		forget("server reports " + active.CallID + " " + active.Status)
		return
	}

	desc, err := c.api.Rejoin(ctx, stored)
	if err != nil {
		forget(err.Error())
		return
	}
	if desc == nil || desc.ChannelName == "" {
		forget("no media credentials")
		return
	}
	c.logger.Printf("Coordinator: rejoining %s", stored)
	c.post(RejoinReady{Call: mergeDescriptor(active, desc)})
}
