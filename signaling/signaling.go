/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package signaling is the realtime push channel to the Amoura backend.
// It keeps a websocket open for the signed-in user, re-joins the user's
// room after every reconnect and dispatches named events to handlers and
// subscribers. Delivery is at-least-once; consumers must tolerate duplicates.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tejzpr/amoura-go-sdk/amourasdk"
)

// Lifecycle pseudo-events dispatched by the client itself.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventReconnect  = "reconnect"

	// EventJoin is the control frame that binds the connection to a user room.
	EventJoin = "join"
)

// ErrNotConnected is returned when a frame is sent without a live connection.
var ErrNotConnected = errors.New("signaling: not connected")

// Config holds the configuration for the Signaling plugin
type Config struct {
	URL                         string        // Websocket endpoint; empty uses the core client's SocketURL
	PingInterval                time.Duration // Interval between ping messages
	PongTimeout                 time.Duration // Timeout for receiving a pong response
	HandshakeTimeout            time.Duration // Timeout for the websocket handshake
	BackoffTimeMax              time.Duration // Maximum time between connection attempts
	BackoffTimeReset            time.Duration // Initial time before the first retry
	MaxRetries                  int           // Number of times to retry a dropped connection before giving up
	InitialConnectionMaxRetries int           // Number of times to retry before giving up on the initial connection
	SubscriptionBuffer          int           // Channel capacity for Subscribe; a backlog beyond it is queued
}

// DefaultConfig returns the default configuration for the Signaling plugin
func DefaultConfig() *Config {
	return &Config{
		PingInterval:                25 * time.Second,
		PongTimeout:                 10 * time.Second,
		HandshakeTimeout:            10 * time.Second,
		BackoffTimeMax:              32 * time.Second,
		BackoffTimeReset:            1 * time.Second,
		MaxRetries:                  10,
		InitialConnectionMaxRetries: 5,
		SubscriptionBuffer:          64,
	}
}

// EventHandler is a function that handles a pushed event
type EventHandler func(event *Event)

// Event is one frame on the wire.
type Event struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %q has no data", e.Name)
	}
	return json.Unmarshal(e.Data, v)
}

// subscription queues events without bound so the read loop never blocks
// on a slow consumer and no event is lost. forward drains the queue into ch.
type subscription struct {
	names map[string]bool
	ch    chan *Event

	mu    sync.Mutex
	queue []*Event
	wake  chan struct{}
	done  chan struct{}
}

func (s *subscription) push(event *Event) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) forward() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		event := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- event:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) backlog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Client is the Signaling websocket client
type Client struct {
	core   *amourasdk.Client
	config *Config
	logger amourasdk.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	connected      bool
	connecting     bool
	hasConnected   bool
	closeCh        chan struct{}
	room           string
	retryCount     int
	currentBackoff time.Duration

	writeMu sync.Mutex

	handlersMu    sync.RWMutex
	eventHandlers map[string][]EventHandler

	subsMu  sync.Mutex
	subs    map[int]*subscription
	nextSub int
}

// New creates a new Signaling plugin
func New(core *amourasdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.SubscriptionBuffer <= 0 {
		config.SubscriptionBuffer = defaults.SubscriptionBuffer
	}
	if config.BackoffTimeReset <= 0 {
		config.BackoffTimeReset = defaults.BackoffTimeReset
	}
	if config.BackoffTimeMax <= 0 {
		config.BackoffTimeMax = defaults.BackoffTimeMax
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = defaults.PongTimeout
	}

	var logger amourasdk.Logger
	if core != nil {
		logger = core.GetLogger()
	}
	if logger == nil {
		logger = discardLogger{}
	}

	return &Client{
		core:           core,
		config:         config,
		logger:         logger,
		closeCh:        make(chan struct{}),
		currentBackoff: config.BackoffTimeReset,
		eventHandlers:  make(map[string][]EventHandler),
		subs:           make(map[int]*subscription),
	}
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// Connect establishes the websocket connection, retrying with exponential
// backoff. It returns once connected or when retries are exhausted.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.connecting {
		c.mu.Unlock()
		return fmt.Errorf("connection attempt already in progress")
	}
	c.connecting = true
	c.mu.Unlock()

	return c.connectWithBackoff(ctx)
}

// Disconnect closes the websocket connection and stops reconnecting.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.connected && !c.connecting {
		c.mu.Unlock()
		return nil
	}

	close(c.closeCh)
	c.closeCh = make(chan struct{})

	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connecting = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Disconnected by client"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		c.dispatch(&Event{Name: EventDisconnect, Timestamp: time.Now().UnixMilli()})
	}
	return nil
}

// IsConnected returns whether the client currently holds a live connection
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// JoinRoom binds the connection to userID's room. The room is remembered
// and re-joined automatically after every reconnect.
func (c *Client) JoinRoom(userID string) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	c.mu.Lock()
	c.room = userID
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.Emit(EventJoin, map[string]string{"userId": userID})
}

// Room returns the room joined with JoinRoom.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Emit sends a named event to the backend.
func (c *Client) Emit(name string, data interface{}) error {
	frame := &Event{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", name, err)
		}
		frame.Data = raw
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.writeFrame(conn, frame)
}

func (c *Client) writeFrame(conn *websocket.Conn, frame *Event) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send %s: %w", frame.Name, err)
	}
	return nil
}

// On registers an event handler for a named event. The "*" name receives
// every event. Handlers run on the read loop in arrival order and must not block.
func (c *Client) On(eventName string, handler EventHandler) {
	if handler == nil {
		return
	}
	c.handlersMu.Lock()
	c.eventHandlers[eventName] = append(c.eventHandlers[eventName], handler)
	c.handlersMu.Unlock()
}

// Off removes all handlers for a named event
func (c *Client) Off(eventName string) {
	c.handlersMu.Lock()
	delete(c.eventHandlers, eventName)
	c.handlersMu.Unlock()
}

// ClearHandlers removes every registered handler.
func (c *Client) ClearHandlers() {
	c.handlersMu.Lock()
	c.eventHandlers = make(map[string][]EventHandler)
	c.handlersMu.Unlock()
}

// Subscribe returns a channel receiving the named events, or every event
// when no names are given. Events are delivered in order and never dropped;
// a subscriber that falls behind builds a backlog instead of stalling the
// read loop. cancel closes the channel and discards the backlog.
func (c *Client) Subscribe(names ...string) (<-chan *Event, func()) {
	size := c.config.SubscriptionBuffer
	if size < 0 {
		size = 0
	}
	sub := &subscription{
		ch:   make(chan *Event, size),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	if len(names) > 0 {
		sub.names = make(map[string]bool, len(names))
		for _, n := range names {
			sub.names[n] = true
		}
	}

	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	c.subsMu.Unlock()
	go sub.forward()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
			close(sub.done)
		})
	}
	return sub.ch, cancel
}

// dispatch delivers an event to handlers and then to subscribers
func (c *Client) dispatch(event *Event) {
	c.handlersMu.RLock()
	handlers := make([]EventHandler, 0, len(c.eventHandlers[event.Name])+len(c.eventHandlers["*"]))
	handlers = append(handlers, c.eventHandlers[event.Name]...)
	handlers = append(handlers, c.eventHandlers["*"]...)
	c.handlersMu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, sub := range c.subs {
		if sub.names != nil && !sub.names[event.Name] {
			continue
		}
		sub.push(event)
		if n := sub.backlog(); n > 0 && n%(c.config.SubscriptionBuffer+1) == 0 {
			c.logger.Printf("Signaling: subscriber is %d events behind", n)
		}
	}
}

func (c *Client) socketURL() string {
	if c.config.URL != "" {
		return c.config.URL
	}
	if c.core != nil {
		return c.core.SocketURL()
	}
	return amourasdk.DefaultConfig().SocketURL
}

// connectWithBackoff attempts to connect with exponential backoff
func (c *Client) connectWithBackoff(ctx context.Context) error {
	c.mu.Lock()
	closeCh := c.closeCh
	c.retryCount = 0
	c.currentBackoff = c.config.BackoffTimeReset
	maxRetries := c.config.MaxRetries
	if !c.hasConnected {
		maxRetries = c.config.InitialConnectionMaxRetries
	}
	c.mu.Unlock()

	var err error
	for {
		err = c.attemptConnection(ctx, closeCh)
		if err == nil {
			return nil
		}

		c.mu.Lock()
		c.retryCount++
		attempts := c.retryCount
		backoff := c.currentBackoff
		c.currentBackoff *= 2
		if c.currentBackoff > c.config.BackoffTimeMax {
			c.currentBackoff = c.config.BackoffTimeMax
		}
		c.mu.Unlock()

		if attempts > maxRetries {
			break
		}
		c.logger.Printf("Signaling: connect attempt %d failed: %v (retrying in %v)", attempts, err, backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-closeCh:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			c.mu.Lock()
			c.connecting = false
			c.mu.Unlock()
			return ctx.Err()
		}
	}

	c.mu.Lock()
	c.connecting = false
	attempts := c.retryCount
	c.mu.Unlock()
	return fmt.Errorf("failed to connect after %d attempts: %w", attempts, err)
}

// attemptConnection makes a single connection attempt
func (c *Client) attemptConnection(ctx context.Context, closeCh chan struct{}) error {
	conn, err := c.dialWebSocket(ctx, c.socketURL())
	if err != nil {
		return err
	}

	readWindow := c.config.PingInterval + c.config.PongTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	c.mu.Lock()
	select {
	case <-closeCh:
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	default:
	}
	reconnected := c.hasConnected
	c.conn = conn
	c.connected = true
	c.connecting = false
	c.hasConnected = true
	room := c.room
	c.mu.Unlock()

	if room != "" {
		if err := c.writeFrame(conn, &Event{
			ID:        uuid.NewString(),
			Name:      EventJoin,
			Data:      mustJSON(map[string]string{"userId": room}),
			Timestamp: time.Now().UnixMilli(),
		}); err != nil {
			c.logger.Printf("Signaling: failed to join room %s: %v", room, err)
		}
	}

	done := make(chan struct{})
	go c.startPingPong(conn, closeCh, done)
	go c.listen(conn, done)

	lifecycle := EventConnect
	if reconnected {
		lifecycle = EventReconnect
	}
	c.dispatch(&Event{Name: lifecycle, Timestamp: time.Now().UnixMilli()})
	return nil
}

// dialWebSocket establishes a websocket connection with auth headers
func (c *Client) dialWebSocket(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	headers := http.Header{}
	if c.core != nil {
		headers.Set("Authorization", "Bearer "+c.core.GetAccessToken())
	}
	headers.Set("X-Tracking-Id", "amoura-go-sdk_"+uuid.NewString())

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	if c.core != nil && c.core.GetHTTPClient() != nil {
		if transport, ok := c.core.GetHTTPClient().Transport.(*http.Transport); ok {
			dialer.NetDialContext = transport.DialContext
			dialer.TLSClientConfig = transport.TLSClientConfig
		}
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to websocket: %w", err)
	}
	return conn, nil
}

// listen reads frames until the connection fails
func (c *Client) listen(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.handleConnectionError(conn, err)
			return
		}

		var event Event
		if err := json.Unmarshal(message, &event); err != nil {
			c.logger.Printf("Signaling: dropping malformed frame: %v", err)
			continue
		}
		if event.Name == "" {
			continue
		}
		c.dispatch(&event)
	}
}

// handleConnectionError marks the connection dead and reconnects unless
// the disconnect was requested by the caller
func (c *Client) handleConnectionError(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	closeCh := c.closeCh
	deliberate := false
	select {
	case <-closeCh:
		deliberate = true
	default:
		c.connecting = true
	}
	c.mu.Unlock()

	_ = conn.Close()
	c.logger.Printf("Signaling: connection lost: %v", err)
	c.dispatch(&Event{Name: EventDisconnect, Timestamp: time.Now().UnixMilli()})

	if !deliberate {
		go func() {
			if err := c.connectWithBackoff(context.Background()); err != nil {
				c.logger.Printf("Signaling: giving up reconnecting: %v", err)
			}
		}()
	}
}

// startPingPong keeps the connection alive until it closes
func (c *Client) startPingPong(conn *websocket.Conn, closeCh, done chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.config.PongTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte(fmt.Sprintf("%d", time.Now().UnixMilli())), deadline); err != nil {
				_ = conn.Close()
				return
			}
		case <-closeCh:
			return
		case <-done:
			return
		}
	}
}

func mustJSON(v interface{}) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}
