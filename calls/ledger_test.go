/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calls

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/tejzpr/amoura-go-sdk/signaling"
)

func TestLedger(t *testing.T) {
	now := time.Now()
	client, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"transactions": []Transaction{
				{ID: "t2", CallID: "c1", Kind: "charge", Amount: 2, CreatedAt: now.Add(time.Minute)},
				{ID: "t1", CallID: "c1", Kind: "reserve", Amount: 10, CreatedAt: now},
			},
		})
	})

	l, err := NewLedger(client, 0)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	// a pushed event can arrive before the REST listing
	if !l.Apply(Transaction{ID: "t2", CallID: "c1", Kind: "charge", Amount: 2, CreatedAt: now.Add(time.Minute)}) {
		t.Fatal("Expected first push to apply")
	}

	n, err := l.Load(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 new transaction from load, got %d", n)
	}

	if l.Apply(Transaction{ID: "t1"}) {
		t.Error("Expected duplicate push to be ignored")
	}

	items := l.Items()
	if len(items) != 2 || items[0].ID != "t1" || items[1].ID != "t2" {
		t.Errorf("Expected [t1 t2] oldest first, got %+v", items)
	}
	if l.Total() != 12 {
		t.Errorf("Expected total 12, got %v", l.Total())
	}

	l.Reset()
	if len(l.Items()) != 0 {
		t.Error("Expected empty ledger after reset")
	}
	if !l.Apply(Transaction{ID: "t1", Amount: 1}) {
		t.Error("Expected keys forgotten after reset")
	}
}

func TestLedgerWindow(t *testing.T) {
	now := time.Now()
	listing := []Transaction{
		{ID: "t1", CallID: "c1", Kind: "reserve", Amount: 10, CreatedAt: now},
		{ID: "t2", CallID: "c1", Kind: "charge", Amount: 2, CreatedAt: now.Add(time.Minute)},
		{ID: "t3", CallID: "c1", Kind: "charge", Amount: 3, CreatedAt: now.Add(2 * time.Minute)},
	}
	client, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": listing})
	})

	l, err := NewLedger(client, 2)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	// pushes race ahead of the listing
	if !l.Apply(listing[2]) {
		t.Fatal("Expected pushed t3 to apply")
	}

	for i := 0; i < 3; i++ {
		n, err := l.Load(context.Background(), "c1")
		if err != nil {
			t.Fatalf("Load %d: %v", i, err)
		}
		if i == 0 && n != 1 {
			t.Errorf("Expected only t2 to be new on first load, got %d", n)
		}
		if i > 0 && n != 0 {
			t.Errorf("Expected reload %d to apply nothing, got %d", i, n)
		}
	}

	if l.Apply(listing[1]) || l.Apply(listing[0]) {
		t.Error("Expected re-pushed transactions to be ignored")
	}
	items := l.Items()
	if len(items) != 2 || items[0].ID != "t2" || items[1].ID != "t3" {
		t.Errorf("Expected the newest [t2 t3], got %+v", items)
	}
	if l.Total() != 5 {
		t.Errorf("Expected total 5, got %v", l.Total())
	}

	if !l.Apply(Transaction{ID: "t4", CallID: "c1", Kind: "charge", Amount: 4, CreatedAt: now.Add(3 * time.Minute)}) {
		t.Fatal("Expected a newer transaction to apply")
	}
	if n, _ := l.Load(context.Background(), "c1"); n != 0 {
		t.Errorf("Expected reload after t4 to apply nothing, got %d", n)
	}
	items = l.Items()
	if len(items) != 2 || items[0].ID != "t3" || items[1].ID != "t4" {
		t.Errorf("Expected [t3 t4], got %+v", items)
	}
}

type fakeEventSource struct {
	ch chan *signaling.Event
}

func (f *fakeEventSource) Subscribe(names ...string) (<-chan *signaling.Event, func()) {
	return f.ch, func() {}
}

func pushTransaction(t *testing.T, ch chan *signaling.Event, p EventPayload) {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	ch <- &signaling.Event{Name: EventCallTransaction, Data: data}
}

func TestLedgerFollow(t *testing.T) {
	l, err := NewLedger(nil, 0)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	src := &fakeEventSource{ch: make(chan *signaling.Event, 8)}
	now := time.Now()

	pushTransaction(t, src.ch, EventPayload{CallID: "c1", Transaction: &Transaction{ID: "t1", Kind: "charge", Amount: 2, CreatedAt: now}})
	pushTransaction(t, src.ch, EventPayload{CallID: "c1", Transaction: &Transaction{ID: "t1", Kind: "charge", Amount: 2, CreatedAt: now}})
	pushTransaction(t, src.ch, EventPayload{CallID: "c2", Transaction: &Transaction{ID: "t9", Kind: "charge", Amount: 9, CreatedAt: now}})
	pushTransaction(t, src.ch, EventPayload{CallID: "c1"})
	pushTransaction(t, src.ch, EventPayload{CallID: "c1", Transaction: &Transaction{ID: "t2", Kind: "charge", Amount: 3, CreatedAt: now.Add(time.Minute)}})
	close(src.ch)

	var applied []string
	if err := l.Follow(context.Background(), src, "c1", func(tx Transaction) {
		applied = append(applied, tx.ID)
	}); err != nil {
		t.Fatalf("Follow: %v", err)
	}

	if len(applied) != 2 || applied[0] != "t1" || applied[1] != "t2" {
		t.Errorf("Expected [t1 t2] applied once each, got %v", applied)
	}
	items := l.Items()
	if len(items) != 2 || items[0].CallID != "c1" {
		t.Errorf("Expected two c1 transactions with the event's call id, got %+v", items)
	}
	if l.Total() != 5 {
		t.Errorf("Expected total 5, got %v", l.Total())
	}
}

func TestLedgerFollowStopsOnCancel(t *testing.T) {
	l, _ := NewLedger(nil, 0)
	src := &fakeEventSource{ch: make(chan *signaling.Event)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Follow(ctx, src, "", nil); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestTransactionKey(t *testing.T) {
	if (Transaction{ID: "x", CallID: "c"}).Key() != "x" {
		t.Error("Expected id key")
	}
	if (Transaction{CallID: "c", Kind: "charge"}).Key() != "c:charge" {
		t.Error("Expected callId:kind fallback key")
	}
}
