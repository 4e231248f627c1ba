/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/tejzpr/amoura-go-sdk/callsession"
)

var (
	listenAutoAccept bool
	listenCallbacks  bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Wait for incoming calls until interrupted",
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().BoolVar(&listenAutoAccept, "auto-accept", false, "answer every incoming call")
	listenCmd.Flags().BoolVar(&listenCallbacks, "accept-callbacks", false, "accept callback requests and call back")
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := current.startSession(ctx)
	if err != nil {
		return err
	}
	defer s.release()

	// Handlers run on the coordinator's loop, so intents are sent from
	// their own goroutines.
	var ringing, callback string
	s.On(callsession.EventState, func(data interface{}) {
		v := data.(callsession.View)
		if v.Phase == callsession.PhaseIncomingRinging && v.CallID != ringing {
			ringing = v.CallID
			current.log.Infow("incoming call", "call", v.CallID, "from", v.Counterparty.ID, "name", v.Counterparty.Name, "type", v.CallType)
			if listenAutoAccept {
				go func(callID string) {
					if err := s.AcceptCall(ctx, callID); err != nil {
						current.log.Warnw("accept failed", "call", callID, "error", err)
					}
				}(v.CallID)
			}
		}
		if v.Callback != nil && v.Callback.RequestID != callback {
			callback = v.Callback.RequestID
			current.log.Infow("callback requested", "request", callback, "from", v.Callback.RequesterID)
			if listenCallbacks {
				go func(requestID string) {
					if err := s.AcceptCallback(ctx, requestID); err != nil {
						current.log.Warnw("accept callback failed", "request", requestID, "error", err)
					}
				}(callback)
			}
		}
	})

	current.log.Infof("listening for calls, press Ctrl+C to stop")
	<-ctx.Done()

	hangupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hangUp(hangupCtx)
	return nil
}
