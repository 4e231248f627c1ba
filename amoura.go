/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package amoura

import (
	"fmt"
	"sync"

	"github.com/tejzpr/amoura-go-sdk/activecall"
	"github.com/tejzpr/amoura-go-sdk/amourasdk"
	"github.com/tejzpr/amoura-go-sdk/calls"
	"github.com/tejzpr/amoura-go-sdk/callsession"
	"github.com/tejzpr/amoura-go-sdk/media"
	"github.com/tejzpr/amoura-go-sdk/profiles"
	"github.com/tejzpr/amoura-go-sdk/signaling"
)

// AmouraClient is the top-level client for the Amoura API
type AmouraClient struct {
	// Core client for the Amoura API
	core *amourasdk.Client

	// Plugins
	callsClient     *calls.Client
	profilesClient  *profiles.Client
	signalingClient *signaling.Client

	// Media and session wiring is built once, on first use
	mediaMu      sync.Mutex
	mediaAdapter *media.Adapter
	sessionMu    sync.Mutex
	coordinator  *callsession.Coordinator
}

// NewClient creates a new Amoura client with the given access token and optional configuration
func NewClient(accessToken string, config *amourasdk.Config) (*AmouraClient, error) {
	core, err := amourasdk.NewClient(accessToken, config)
	if err != nil {
		return nil, err
	}

	return &AmouraClient{core: core}, nil
}

// Calls returns the Calls plugin
func (c *AmouraClient) Calls() *calls.Client {
	if c.callsClient == nil {
		c.callsClient = calls.New(c.core, nil)
	}
	return c.callsClient
}

// Profiles returns the Profiles plugin
func (c *AmouraClient) Profiles() *profiles.Client {
	if c.profilesClient == nil {
		c.profilesClient = profiles.New(c.core, nil)
	}
	return c.profilesClient
}

// Signaling returns the Signaling plugin. Call Connect on it before
// starting a call session.
func (c *AmouraClient) Signaling() *signaling.Client {
	if c.signalingClient == nil {
		c.signalingClient = signaling.New(c.core, nil)
	}
	return c.signalingClient
}

// Media returns the media session adapter, backed by a pion peer
// connection that negotiates through the REST API.
//
// For a different media engine, build the adapter directly with
// media.NewAdapter.
func (c *AmouraClient) Media() (*media.Adapter, error) {
	c.mediaMu.Lock()
	defer c.mediaMu.Unlock()

	if c.mediaAdapter != nil {
		return c.mediaAdapter, nil
	}

	peerConfig := media.DefaultPeerConfig()
	peerConfig.Negotiator = media.NewHTTPNegotiator(c.core)
	peerConfig.Logger = c.core.GetLogger()
	engine, err := media.NewPeerEngine(peerConfig)
	if err != nil {
		return nil, fmt.Errorf("media engine: %w", err)
	}

	c.mediaAdapter = media.NewAdapter(engine, c.Calls(), c.Signaling(), c.core.GetLogger(), nil)
	return c.mediaAdapter, nil
}

// CallSession returns the call session coordinator wired to the Calls,
// Signaling, Profiles and Media plugins. store keeps the active call id
// for rejoin after restart; nil uses an in-memory store. config may be nil.
//
// The coordinator is created once; later calls return it and ignore
// their arguments.
//
//	session, err := client.CallSession(nil, nil)
//	client.Signaling().Connect(ctx)
//	session.Start(ctx)
//	defer session.Close()
func (c *AmouraClient) CallSession(store activecall.Store, config *callsession.Config) (*callsession.Coordinator, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	if c.coordinator != nil {
		return c.coordinator, nil
	}

	adapter, err := c.Media()
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = activecall.NewMemoryStore()
	}

	coordinator, err := callsession.New(callsession.Options{
		Identity: c.core,
		API:      c.Calls(),
		Media:    adapter,
		Signal:   c.Signaling(),
		Profiles: c.Profiles(),
		Store:    store,
		Logger:   c.core.GetLogger(),
	}, config)
	if err != nil {
		return nil, err
	}
	c.coordinator = coordinator
	return c.coordinator, nil
}

// Core returns the core Amoura client
func (c *AmouraClient) Core() *amourasdk.Client {
	return c.core
}
