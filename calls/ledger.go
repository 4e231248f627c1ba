/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calls

import (
	"context"
	"sort"
	"sync"

	"github.com/tejzpr/amoura-go-sdk/dedup"
	"github.com/tejzpr/amoura-go-sdk/signaling"
)

// EventSource delivers pushed signaling events
type EventSource interface {
	Subscribe(names ...string) (<-chan *signaling.Event, func())
}

// Ledger is one view's list of call transactions. Transactions arrive both
// from GetTransactions and from pushed call-transaction events; each is
// applied once. The view keeps the newest size transactions, and the seen
// set holds exactly the keys of the retained ones.
type Ledger struct {
	api  *Client
	size int

	mu    sync.Mutex
	seen  *dedup.Set
	items []Transaction
}

// NewLedger creates a ledger retaining up to size transactions
func NewLedger(api *Client, size int) (*Ledger, error) {
	if size <= 0 {
		size = dedup.DefaultSize
	}
	// one spare slot so the set never evicts on its own before Apply trims
	seen, err := dedup.New(size + 1)
	if err != nil {
		return nil, err
	}
	return &Ledger{api: api, size: size, seen: seen}, nil
}

// Load fetches callID's transactions and applies the ones not seen yet,
// newest first so a listing longer than the view fills it with the latest.
// It returns the number applied.
func (l *Ledger) Load(ctx context.Context, callID string) (int, error) {
	txs, err := l.api.GetTransactions(ctx, callID)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	applied := 0
	for _, tx := range txs {
		if l.Apply(tx) {
			applied++
		}
	}
	return applied, nil
}

// Apply adds tx unless it was already applied or is older than everything
// a full view retains, and reports whether it was added.
func (l *Ledger) Apply(tx Transaction) bool {
	key := tx.Key()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen.Contains(key) {
		return false
	}
	if len(l.items) >= l.size && !tx.CreatedAt.After(l.items[0].CreatedAt) {
		return false
	}
	l.seen.Seen(key)
	l.items = append(l.items, tx)
	sort.SliceStable(l.items, func(i, j int) bool {
		return l.items[i].CreatedAt.Before(l.items[j].CreatedAt)
	})
	for len(l.items) > l.size {
		l.seen.Forget(l.items[0].Key())
		l.items[0] = Transaction{}
		l.items = l.items[1:]
	}
	return true
}

// Follow applies pushed call-transaction events for callID, or for every
// call when callID is empty, until ctx is done or the source closes.
// onApply, when set, is called for each transaction added.
func (l *Ledger) Follow(ctx context.Context, src EventSource, callID string, onApply func(Transaction)) error {
	events, cancel := src.Subscribe(EventCallTransaction)
	defer cancel()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			var p EventPayload
			if err := ev.Decode(&p); err != nil || p.Transaction == nil {
				continue
			}
			tx := *p.Transaction
			if tx.CallID == "" {
				tx.CallID = p.CallID
			}
			if callID != "" && tx.CallID != callID {
				continue
			}
			if l.Apply(tx) && onApply != nil {
				onApply(tx)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Items returns the applied transactions, oldest first
func (l *Ledger) Items() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transaction, len(l.items))
	copy(out, l.items)
	return out
}

// Total sums the applied amounts
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, tx := range l.items {
		total += tx.Amount
	}
	return total
}

// Reset clears the view
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
	l.seen.Reset()
}
