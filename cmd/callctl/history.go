/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tejzpr/amoura-go-sdk/calls"
)

var transactionsCmd = &cobra.Command{
	Use:   "transactions <callId>",
	Short: "List the billing transactions of a call",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransactions,
}

var transactionsFollow bool

func init() {
	transactionsCmd.Flags().BoolVar(&transactionsFollow, "follow", false, "keep printing transactions pushed for the call until interrupted")
}

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the call the server considers active for this user",
	RunE:  runActive,
}

func runTransactions(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	callID := args[0]
	ledger, err := calls.NewLedger(current.client.Calls(), 512)
	if err != nil {
		return err
	}

	// follow before loading; pushes that overlap the listing are applied once
	var following chan error
	if transactionsFollow {
		selfID, err := current.client.Core().UserID()
		if err != nil {
			return fmt.Errorf("resolve user: %w", err)
		}
		sig := current.client.Signaling()
		if err := sig.JoinRoom(selfID); err != nil {
			return err
		}
		following = make(chan error, 1)
		go func() {
			following <- ledger.Follow(ctx, sig, callID, func(tx calls.Transaction) {
				current.log.Infow("transaction", "kind", tx.Kind, "amount", tx.Amount, "currency", tx.Currency, "total", ledger.Total())
			})
		}()
		if err := sig.Connect(ctx); err != nil {
			return fmt.Errorf("signaling: %w", err)
		}
		defer sig.Disconnect()
	}

	if _, err := ledger.Load(ctx, callID); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tMINUTES\tAMOUNT")
	for _, tx := range ledger.Items() {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%.2f %s\n", tx.CreatedAt.Format(time.RFC3339), tx.Kind, tx.Minutes, tx.Amount, tx.Currency)
	}
	fmt.Fprintf(w, "\t\tTOTAL\t%.2f\n", ledger.Total())
	if err := w.Flush(); err != nil {
		return err
	}

	if following == nil {
		return nil
	}
	current.log.Infof("following transactions for %s, press Ctrl+C to stop", callID)
	if err := <-following; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runActive(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	call, err := current.client.Calls().GetActiveCall(ctx)
	if err != nil {
		return err
	}
	if call == nil {
		fmt.Println("no active call")
		return nil
	}
	fmt.Printf("call:    %s\n", call.CallID)
	fmt.Printf("type:    %s\n", call.CallType)
	fmt.Printf("status:  %s\n", call.Status)
	fmt.Printf("caller:  %s\n", call.CallerID)
	fmt.Printf("callee:  %s\n", call.CalleeID)
	if call.StartedAt != nil {
		fmt.Printf("started: %s\n", call.StartedAt.Format(time.RFC3339))
	}
	return nil
}
