/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package amourasdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		accessToken string
		config      *Config
		expectError bool
	}{
		{
			name:        "Valid with default config",
			accessToken: "valid-token",
			config:      nil,
			expectError: false,
		},
		{
			name:        "Valid with custom config",
			accessToken: "valid-token",
			config: &Config{
				BaseURL: "https://api.example.com",
				Timeout: 60 * time.Second,
				DefaultHeaders: map[string]string{
					"X-Custom-Header": "value",
				},
			},
			expectError: false,
		},
		{
			name:        "Empty access token",
			accessToken: "",
			config:      nil,
			expectError: true,
		},
		{
			name:        "Invalid base URL",
			accessToken: "valid-token",
			config: &Config{
				BaseURL: ":",
				Timeout: 30 * time.Second,
			},
			expectError: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(tc.accessToken, tc.config)

			if tc.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if client.GetAccessToken() != tc.accessToken {
				t.Errorf("Expected AccessToken %q, got %q", tc.accessToken, client.GetAccessToken())
			}

			expected := DefaultConfig()
			if tc.config != nil {
				expected = tc.config
			}
			if client.BaseURL.String() != expected.BaseURL {
				t.Errorf("Expected BaseURL %q, got %q", expected.BaseURL, client.BaseURL.String())
			}
			if client.GetHTTPClient().Timeout != expected.Timeout {
				t.Errorf("Expected Timeout %v, got %v", expected.Timeout, client.GetHTTPClient().Timeout)
			}
			if client.GetLogger() == nil {
				t.Error("Expected a default logger")
			}
		})
	}
}

func TestSocketURLDefault(t *testing.T) {
	client, _ := NewClient("token", &Config{BaseURL: "https://api.example.com"})
	if client.SocketURL() != DefaultConfig().SocketURL {
		t.Errorf("Expected default socket URL, got %q", client.SocketURL())
	}

	client, _ = NewClient("token", &Config{BaseURL: "https://api.example.com", SocketURL: "ws://localhost:9/socket"})
	if client.SocketURL() != "ws://localhost:9/socket" {
		t.Errorf("Expected custom socket URL, got %q", client.SocketURL())
	}
}

func TestRequestWithContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Expected Authorization header 'Bearer test-token', got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Expected Content-Type 'application/json', got %q", got)
		}
		if got := r.Header.Get("X-Custom-Header"); got != "custom-value" {
			t.Errorf("Expected X-Custom-Header 'custom-value', got %q", got)
		}
		if !strings.HasPrefix(r.Header.Get("X-Tracking-Id"), "amoura-go-sdk_") {
			t.Errorf("Expected X-Tracking-Id with SDK prefix, got %q", r.Header.Get("X-Tracking-Id"))
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected method POST, got %s", r.Method)
		}
		if r.URL.Path != "/calls/c1/accept" {
			t.Errorf("Expected path '/calls/c1/accept', got %q", r.URL.Path)
		}

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["hello"] != "world" {
			t.Errorf("Expected body hello=world, got %v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status": "success"}`)
	}))
	defer server.Close()

	client, _ := NewClient("test-token", &Config{
		BaseURL:        server.URL,
		Timeout:        5 * time.Second,
		DefaultHeaders: map[string]string{"X-Custom-Header": "custom-value"},
		HttpClient:     server.Client(),
	})

	var out struct {
		Status string `json:"status"`
	}
	err := client.Do(context.Background(), http.MethodPost, "/calls/c1/accept", nil, map[string]string{"hello": "world"}, &out)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if out.Status != "success" {
		t.Errorf("Expected status 'success', got %q", out.Status)
	}
}

func TestRequestWithRetry(t *testing.T) {
	t.Run("Retries transient status then succeeds", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{}`)
		}))
		defer server.Close()

		client, _ := NewClient("t", &Config{
			BaseURL:        server.URL,
			MaxRetries:     3,
			RetryBaseDelay: time.Millisecond,
		})
		if err := client.Do(context.Background(), http.MethodGet, "calls/active", nil, nil, nil); err != nil {
			t.Fatalf("Expected success after retries, got %v", err)
		}
		if atomic.LoadInt32(&calls) != 3 {
			t.Errorf("Expected 3 attempts, got %d", calls)
		}
	})

	t.Run("Does not retry client errors", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"message":"already accepted","code":"CALL_ALREADY_ACCEPTED"}`)
		}))
		defer server.Close()

		client, _ := NewClient("t", &Config{
			BaseURL:        server.URL,
			MaxRetries:     3,
			RetryBaseDelay: time.Millisecond,
		})
		err := client.Do(context.Background(), http.MethodPost, "calls/c1/accept", nil, nil, nil)
		if !IsConflict(err) {
			t.Fatalf("Expected conflict error, got %v", err)
		}
		if ErrorCode(err) != "CALL_ALREADY_ACCEPTED" {
			t.Errorf("Expected code CALL_ALREADY_ACCEPTED, got %q", ErrorCode(err))
		}
		if atomic.LoadInt32(&calls) != 1 {
			t.Errorf("Expected 1 attempt, got %d", calls)
		}
	})

	t.Run("Context cancellation stops retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client, _ := NewClient("t", &Config{
			BaseURL:        server.URL,
			MaxRetries:     5,
			RetryBaseDelay: time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := client.RequestWithRetry(ctx, http.MethodGet, "x", nil, nil)
		if err == nil {
			t.Fatal("Expected context error")
		}
	})
}

func TestParseResponseEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, _ := NewClient("t", &Config{BaseURL: server.URL})
	var out map[string]string
	if err := client.Do(context.Background(), http.MethodPost, "calls/c1/end", nil, nil, &out); err != nil {
		t.Errorf("Expected empty body to be accepted, got %v", err)
	}
}

func TestEventEmitter(t *testing.T) {
	e := NewEventEmitter()
	var got []string
	e.On("state", func(data interface{}) { got = append(got, "state:"+data.(string)) })
	e.On("*", func(data interface{}) { got = append(got, "any:"+data.(string)) })
	e.On("state", nil)

	e.Emit("state", "idle")
	e.Emit("toast", "hi")

	want := []string{"state:idle", "any:idle", "any:hi"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if e.HandlerCount("state") != 1 {
		t.Errorf("Expected 1 state handler, got %d", e.HandlerCount("state"))
	}

	e.Off("state")
	if e.HandlerCount("state") != 0 {
		t.Errorf("Expected handlers removed, got %d", e.HandlerCount("state"))
	}
}
