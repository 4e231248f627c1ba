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

	"github.com/tejzpr/amoura-go-sdk/calls"
	"github.com/tejzpr/amoura-go-sdk/callsession"
)

var (
	callVideo         bool
	callConfirmReturn bool
)

var callCmd = &cobra.Command{
	Use:   "call <userId>",
	Short: "Call a user and stay on the call until either side hangs up",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func init() {
	callCmd.Flags().BoolVar(&callVideo, "video", false, "place a video call")
	callCmd.Flags().BoolVar(&callConfirmReturn, "confirm-return", false, "confirm a return call that needs confirmation")
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := current.startSession(ctx)
	if err != nil {
		return err
	}
	defer s.release()

	// A call that returns to idle after being live is over
	done := make(chan callsession.View, 1)
	var live bool
	s.On(callsession.EventState, func(data interface{}) {
		v := data.(callsession.View)
		if v.Phase.Live() {
			live = true
			return
		}
		if live {
			select {
			case done <- v:
			default:
			}
		}
	})

	callType := calls.CallTypeVoice
	if callVideo {
		callType = calls.CallTypeVideo
	}
	if err := s.StartCall(ctx, args[0], callType, callConfirmReturn); err != nil {
		return err
	}

	select {
	case v := <-done:
		if v.PendingConfirmation != nil {
			current.log.Infof("return call needs confirmation, retry with --confirm-return")
		}
		if v.LastEnded != nil {
			current.log.Infow("call finished", "call", v.LastEnded.CallID, "reason", v.LastEnded.Reason)
		}
	case <-ctx.Done():
		hangupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hangUp(hangupCtx)
	}
	return nil
}
