/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package amoura

import (
	"context"
	"testing"

	"github.com/tejzpr/amoura-go-sdk/activecall"
	"github.com/tejzpr/amoura-go-sdk/amourasdk"
	"github.com/tejzpr/amoura-go-sdk/callsession"
)

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient("", nil); err == nil {
		t.Fatal("Expected error for empty access token")
	}
}

func TestPluginsAreCached(t *testing.T) {
	client, err := NewClient("test-token", nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if client.Calls() != client.Calls() {
		t.Error("Expected Calls() to return the same instance")
	}
	if client.Profiles() != client.Profiles() {
		t.Error("Expected Profiles() to return the same instance")
	}
	if client.Signaling() != client.Signaling() {
		t.Error("Expected Signaling() to return the same instance")
	}
	if client.Calls().Core() != client.Core() {
		t.Error("Expected Calls to share the core client")
	}
}

func TestMediaReturnsSingleton(t *testing.T) {
	client, err := NewClient("test-token", nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	first, err := client.Media()
	if err != nil {
		t.Fatalf("Expected no error from Media(), got: %v", err)
	}
	second, err := client.Media()
	if err != nil {
		t.Fatalf("Expected no error from second Media() call, got: %v", err)
	}
	if first != second {
		t.Error("Expected repeated Media() calls to return the same instance")
	}
	if id := first.ActiveCallID(); id != "" {
		t.Errorf("Expected no active call, got %q", id)
	}
}

func TestCallSessionReturnsSingleton(t *testing.T) {
	config := amourasdk.DefaultConfig()
	config.UserID = "u1"
	client, err := NewClient("test-token", config)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	store := activecall.NewMemoryStore()
	session, err := client.CallSession(store, nil)
	if err != nil {
		t.Fatalf("Expected no error from CallSession(), got: %v", err)
	}
	again, err := client.CallSession(nil, nil)
	if err != nil {
		t.Fatalf("Expected no error from second CallSession() call, got: %v", err)
	}
	if again != session {
		t.Error("Expected repeated CallSession() calls to return the same instance")
	}

	// Start resolves the local user and finds nothing to rejoin
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Expected Start to succeed, got: %v", err)
	}
	defer session.Close()

	state := session.State()
	if state.SelfID != "u1" {
		t.Errorf("Expected self id u1, got %q", state.SelfID)
	}
	if state.Phase != callsession.PhaseIdle {
		t.Errorf("Expected phase idle, got %s", state.Phase)
	}
}
