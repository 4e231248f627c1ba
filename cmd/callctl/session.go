/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package main

import (
	"context"
	"fmt"

	"github.com/tejzpr/amoura-go-sdk/callsession"
)

// session is a started coordinator plus what must be released with it
type session struct {
	*callsession.Coordinator
	release func()
}

// startSession connects the push channel and starts the call coordinator.
// Phase changes and toasts are logged.
func (a *app) startSession(ctx context.Context) (*session, error) {
	selfID, err := a.client.Core().UserID()
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("active call store: %w", err)
	}

	sig := a.client.Signaling()
	if err := sig.JoinRoom(selfID); err != nil {
		closeStore()
		return nil, err
	}
	if err := sig.Connect(ctx); err != nil {
		closeStore()
		return nil, fmt.Errorf("signaling: %w", err)
	}

	config := callsession.DefaultConfig()
	config.RingTimeout = a.cfg.RingTimeout
	coordinator, err := a.client.CallSession(store, config)
	if err != nil {
		_ = sig.Disconnect()
		closeStore()
		return nil, err
	}

	var last callsession.Phase
	coordinator.On(callsession.EventState, func(data interface{}) {
		v := data.(callsession.View)
		if v.Phase == last {
			return
		}
		last = v.Phase
		a.log.Infow("call state", "phase", v.Phase.String(), "call", v.CallID, "type", v.CallType, "with", v.Counterparty.ID)
	})
	coordinator.On(callsession.EventToast, func(data interface{}) {
		a.log.Warnf("%v", data)
	})
	coordinator.On(callsession.EventCallOpen, func(data interface{}) {
		v := data.(callsession.View)
		a.log.Infow("call connected", "call", v.CallID, "rate", v.Billing.RatePerMinute)
	})

	if err := coordinator.Start(ctx); err != nil {
		_ = sig.Disconnect()
		closeStore()
		return nil, err
	}
	return &session{
		Coordinator: coordinator,
		release: func() {
			_ = coordinator.Close()
			_ = sig.Disconnect()
			closeStore()
		},
	}, nil
}

// hangUp ends whatever call is live and waits for the coordinator to settle
func (s *session) hangUp(ctx context.Context) {
	idle := make(chan struct{})
	s.On(callsession.EventState, func(data interface{}) {
		if data.(callsession.View).Phase == callsession.PhaseIdle {
			select {
			case <-idle:
			default:
				close(idle)
			}
		}
	})
	if !s.State().Phase.Live() {
		return
	}
	if err := s.EndCall(ctx, ""); err != nil {
		return
	}
	select {
	case <-idle:
	case <-ctx.Done():
	}
}
