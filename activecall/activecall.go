/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package activecall persists the id of the call a user is currently in,
// so a restarted client can rejoin it. At most one id is stored per user
// and it is cleared whenever no call is active.
package activecall

import (
	"context"
	"errors"
	"sync"
)

// ErrNoActiveCall is returned by Get when nothing is stored for the user.
var ErrNoActiveCall = errors.New("no active call stored")

// Store persists the active call marker keyed by user id.
type Store interface {
	// Get returns the stored call id or ErrNoActiveCall.
	Get(ctx context.Context, userID string) (string, error)
	// Set stores callID, replacing any previous value.
	Set(ctx context.Context, userID, callID string) error
	// Clear removes the marker. Clearing an absent marker is not an error.
	Clear(ctx context.Context, userID string) error
}

// MemoryStore keeps markers in process memory. It does not survive restarts
// and is intended for tests and short-lived tools.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: make(map[string]string)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.calls[userID]
	if !ok {
		return "", ErrNoActiveCall
	}
	return id, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, userID, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[userID] = callID
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.calls, userID)
	return nil
}
