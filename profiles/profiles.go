/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package profiles looks up the public profile of other users.
package profiles

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tejzpr/amoura-go-sdk/amourasdk"
)

// Profile is a user's public profile
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Avatar      string    `json:"avatar,omitempty"`
	Age         int       `json:"age,omitempty"`
	City        string    `json:"city,omitempty"`
	Online      bool      `json:"online,omitempty"`
	Premium     bool      `json:"premium,omitempty"`
	LastSeen    time.Time `json:"lastSeen,omitempty"`
}

// Config holds the configuration for the Profiles plugin
type Config struct {
	// CacheSize is the number of profiles kept in memory. Zero disables caching.
	CacheSize int
}

// DefaultConfig returns the default configuration for the Profiles plugin
func DefaultConfig() *Config {
	return &Config{
		CacheSize: 256,
	}
}

// Client is the profiles API client
type Client struct {
	core   *amourasdk.Client
	config *Config
	cache  *lru.Cache[string, *Profile]
}

// New creates a new Profiles plugin
func New(core *amourasdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	c := &Client{
		core:   core,
		config: config,
	}
	if config.CacheSize > 0 {
		c.cache, _ = lru.New[string, *Profile](config.CacheSize)
	}
	return c
}

// Get returns a single profile by user ID
func (c *Client) Get(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if c.cache != nil {
		if p, ok := c.cache.Get(userID); ok {
			return p, nil
		}
	}

	var profile Profile
	if err := c.core.Do(ctx, http.MethodGet, "users/"+url.PathEscape(userID)+"/profile", nil, nil, &profile); err != nil {
		return nil, fmt.Errorf("error fetching profile: %w", err)
	}
	if profile.ID == "" {
		profile.ID = userID
	}

	if c.cache != nil {
		c.cache.Add(userID, &profile)
	}
	return &profile, nil
}

// Invalidate drops a cached profile
func (c *Client) Invalidate(userID string) {
	if c.cache != nil {
		c.cache.Remove(userID)
	}
}
