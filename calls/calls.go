/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package calls is the REST surface of the call backend: reserving,
// answering, starting, ending and converting calls, plus the shared call
// types and signaling event contracts.
package calls

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tejzpr/amoura-go-sdk/amourasdk"
)

// Backend error codes with a defined meaning for callers
const (
	CodeUserOffline                    = "USER_OFFLINE"
	CodeUserBusy                       = "USER_BUSY"
	CodePremiumRequired                = "PREMIUM_REQUIRED"
	CodeInsufficientFunds              = "INSUFFICIENT_FUNDS"
	CodeReturnCallConfirmationRequired = "RETURN_CALL_CONFIRMATION_REQUIRED"
	CodeCallAlreadyAccepted            = "CALL_ALREADY_ACCEPTED"
	CodeCallAlreadyEnded               = "CALL_ALREADY_ENDED"
)

// InitiateStatus is the outcome of reserving a call
type InitiateStatus string

const (
	InitiateOK                   InitiateStatus = "ok"
	InitiateUserOffline          InitiateStatus = "user_offline"
	InitiateUserBusy             InitiateStatus = "user_busy"
	InitiatePremiumRequired      InitiateStatus = "premium_required"
	InitiateInsufficientFunds    InitiateStatus = "insufficient_funds"
	InitiateConfirmationRequired InitiateStatus = "confirmation_required"
)

var initiateStatusByCode = map[string]InitiateStatus{
	CodeUserOffline:                    InitiateUserOffline,
	CodeUserBusy:                       InitiateUserBusy,
	CodePremiumRequired:                InitiatePremiumRequired,
	CodeInsufficientFunds:              InitiateInsufficientFunds,
	CodeReturnCallConfirmationRequired: InitiateConfirmationRequired,
}

var initiateMessages = map[InitiateStatus]string{
	InitiateUserOffline:          "User is offline",
	InitiateUserBusy:             "User is on another call",
	InitiatePremiumRequired:      "Upgrade to premium to make calls",
	InitiateInsufficientFunds:    "Insufficient balance for this call",
	InitiateConfirmationRequired: "Confirm to return this call",
}

// InitiateResult is the typed outcome of Initiate. Call is set only when
// Status is InitiateOK.
type InitiateResult struct {
	Status  InitiateStatus
	Call    *Descriptor
	Message string
	Billing *BillingHints
}

// OK reports whether the call was reserved
func (r *InitiateResult) OK() bool {
	return r != nil && r.Status == InitiateOK && r.Call != nil
}

// DeclineReason tells the backend why a call was not answered
type DeclineReason string

const (
	DeclineReasonDeclined DeclineReason = "declined"
	DeclineReasonTimeout  DeclineReason = "timeout"
	DeclineReasonBusy     DeclineReason = "busy"
)

// EndOptions carries the optional end-call fields
type EndOptions struct {
	Reason          string `json:"reason,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// Config holds the configuration for the Calls plugin
type Config struct {
	// RequestTimeout bounds each call when the caller's context has no deadline
	RequestTimeout time.Duration
}

// DefaultConfig returns the default configuration for the Calls plugin
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout: 15 * time.Second,
	}
}

// Client is the calls API client
type Client struct {
	core   *amourasdk.Client
	config *Config
}

// New creates a new Calls plugin
func New(core *amourasdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		core:   core,
		config: config,
	}
}

// Core returns the underlying REST client
func (c *Client) Core() *amourasdk.Client {
	return c.core
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, v interface{}) error {
	if _, ok := ctx.Deadline(); !ok && c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}
	return c.core.Do(ctx, method, path, params, body, v)
}

// wireCall accepts both the flat and the nested media credential layouts
// and the legacy "id" key.
type wireCall struct {
	Descriptor
	ID    string `json:"id,omitempty"`
	Media *struct {
		ChannelName string `json:"channelName"`
		Token       string `json:"token"`
		UID         uint32 `json:"uid"`
		AppID       string `json:"appId"`
	} `json:"media,omitempty"`
}

type wireEnvelope struct {
	Call    *wireCall     `json:"call,omitempty"`
	Billing *BillingHints `json:"billing,omitempty"`
	wireCall
}

func (w *wireCall) normalize() *Descriptor {
	d := w.Descriptor
	if d.CallID == "" {
		d.CallID = w.ID
	}
	if w.Media != nil {
		if d.ChannelName == "" {
			d.ChannelName = w.Media.ChannelName
		}
		if d.Token == "" {
			d.Token = w.Media.Token
		}
		if d.UID == 0 {
			d.UID = w.Media.UID
		}
		if d.AppID == "" {
			d.AppID = w.Media.AppID
		}
	}
	if d.Caller != nil && d.CallerID == "" {
		d.CallerID = d.Caller.ID
	}
	if d.Callee != nil && d.CalleeID == "" {
		d.CalleeID = d.Callee.ID
	}
	if d.Billing.RatePerMinute == 0 {
		d.Billing = d.Billing.WithCallType(d.CallType)
	}
	return &d
}

// normalize unwraps an optional {"call": ...} envelope
func (e *wireEnvelope) normalize() *Descriptor {
	var d *Descriptor
	if e.Call != nil {
		d = e.Call.normalize()
	} else {
		d = e.wireCall.normalize()
	}
	if e.Billing != nil && d.Billing == (BillingHints{}) {
		d.Billing = e.Billing.WithCallType(d.CallType)
	}
	return d
}

func (c *Client) callRequest(ctx context.Context, method, path string, body interface{}) (*Descriptor, error) {
	var env wireEnvelope
	if err := c.do(ctx, method, path, nil, body, &env); err != nil {
		return nil, err
	}
	return env.normalize(), nil
}

// Initiate reserves a call to calleeID. Known refusals (offline, busy,
// premium required, insufficient funds, confirmation required) come back
// as a typed result with a nil error. Other failures are returned as errors.
func (c *Client) Initiate(ctx context.Context, calleeID string, callType CallType, confirmReturnCall bool) (*InitiateResult, error) {
	if calleeID == "" {
		return nil, fmt.Errorf("callee ID is required")
	}
	if !callType.Valid() {
		return nil, fmt.Errorf("invalid call type %q", callType)
	}

	body := map[string]interface{}{
		"calleeId": calleeID,
		"callType": callType,
	}
	if confirmReturnCall {
		body["confirmReturnCall"] = true
	}

	desc, err := c.callRequest(ctx, http.MethodPost, "calls/initiate", body)
	if err != nil {
		if status, ok := classifyInitiateError(err); ok {
			return &InitiateResult{Status: status, Message: initiateMessages[status]}, nil
		}
		return nil, fmt.Errorf("error initiating call: %w", err)
	}
	if desc.CallID == "" {
		return nil, fmt.Errorf("error initiating call: response has no call id")
	}
	if desc.CallType == "" {
		desc.CallType = callType
		desc.Billing = desc.Billing.WithCallType(callType)
	}
	if desc.CalleeID == "" {
		desc.CalleeID = calleeID
	}
	billing := desc.Billing
	return &InitiateResult{Status: InitiateOK, Call: desc, Billing: &billing}, nil
}

func classifyInitiateError(err error) (InitiateStatus, bool) {
	if status, ok := initiateStatusByCode[amourasdk.ErrorCode(err)]; ok {
		return status, true
	}
	if amourasdk.IsPaymentRequired(err) {
		return InitiateInsufficientFunds, true
	}
	return "", false
}

// Accept answers an incoming call and returns its media credentials
func (c *Client) Accept(ctx context.Context, callID string) (*Descriptor, error) {
	if callID == "" {
		return nil, fmt.Errorf("call ID is required")
	}
	desc, err := c.callRequest(ctx, http.MethodPost, "calls/"+url.PathEscape(callID)+"/accept", nil)
	if err != nil {
		return nil, fmt.Errorf("error accepting call: %w", err)
	}
	if desc.CallID == "" {
		desc.CallID = callID
	}
	return desc, nil
}

// Decline refuses an incoming call
func (c *Client) Decline(ctx context.Context, callID string, reason DeclineReason) error {
	if callID == "" {
		return fmt.Errorf("call ID is required")
	}
	if reason == "" {
		reason = DeclineReasonDeclined
	}
	body := map[string]interface{}{"reason": reason}
	if err := c.do(ctx, http.MethodPost, "calls/"+url.PathEscape(callID)+"/decline", nil, body, nil); err != nil {
		return fmt.Errorf("error declining call: %w", err)
	}
	return nil
}

// Start tells the backend media is connected so billing can begin
func (c *Client) Start(ctx context.Context, callID string) (*Descriptor, error) {
	if callID == "" {
		return nil, fmt.Errorf("call ID is required")
	}
	desc, err := c.callRequest(ctx, http.MethodPost, "calls/"+url.PathEscape(callID)+"/start", nil)
	if err != nil {
		return nil, fmt.Errorf("error starting call: %w", err)
	}
	if desc.CallID == "" {
		desc.CallID = callID
	}
	return desc, nil
}

// End reports that the call is over. It is also used to cancel an
// unanswered outgoing call.
func (c *Client) End(ctx context.Context, callID string, opts *EndOptions) error {
	if callID == "" {
		return fmt.Errorf("call ID is required")
	}
	if opts == nil {
		opts = &EndOptions{}
	}
	if err := c.do(ctx, http.MethodPost, "calls/"+url.PathEscape(callID)+"/end", nil, opts, nil); err != nil {
		return fmt.Errorf("error ending call: %w", err)
	}
	return nil
}

// Convert switches an active call to newType and returns the updated call
func (c *Client) Convert(ctx context.Context, callID string, newType CallType) (*Descriptor, error) {
	if callID == "" {
		return nil, fmt.Errorf("call ID is required")
	}
	if !newType.Valid() {
		return nil, fmt.Errorf("invalid call type %q", newType)
	}
	body := map[string]interface{}{"newCallType": newType}
	desc, err := c.callRequest(ctx, http.MethodPost, "calls/"+url.PathEscape(callID)+"/convert", body)
	if err != nil {
		return nil, fmt.Errorf("error converting call: %w", err)
	}
	if desc.CallID == "" {
		desc.CallID = callID
	}
	if desc.CallType == "" {
		desc.CallType = newType
	}
	return desc, nil
}

// RequestVideoUpgrade asks the counterparty to switch a voice call to video
func (c *Client) RequestVideoUpgrade(ctx context.Context, callID string, oneWay bool) error {
	if callID == "" {
		return fmt.Errorf("call ID is required")
	}
	body := map[string]interface{}{"oneWay": oneWay}
	if err := c.do(ctx, http.MethodPost, "calls/"+url.PathEscape(callID)+"/video-upgrade", nil, body, nil); err != nil {
		return fmt.Errorf("error requesting video upgrade: %w", err)
	}
	return nil
}

// RespondVideoUpgrade answers a video upgrade request
func (c *Client) RespondVideoUpgrade(ctx context.Context, callID string, accepted, oneWay bool) error {
	if callID == "" {
		return fmt.Errorf("call ID is required")
	}
	body := map[string]interface{}{"accepted": accepted, "oneWay": oneWay}
	if err := c.do(ctx, http.MethodPost, "calls/"+url.PathEscape(callID)+"/video-upgrade/respond", nil, body, nil); err != nil {
		return fmt.Errorf("error responding to video upgrade: %w", err)
	}
	return nil
}

// GetActiveCall returns the user's current call, or nil when there is none
func (c *Client) GetActiveCall(ctx context.Context) (*Descriptor, error) {
	var env wireEnvelope
	err := c.do(ctx, http.MethodGet, "calls/active", nil, nil, &env)
	if amourasdk.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching active call: %w", err)
	}
	desc := env.normalize()
	if desc.CallID == "" {
		return nil, nil
	}
	return desc, nil
}

// Rejoin re-issues media credentials for a call that is still running
func (c *Client) Rejoin(ctx context.Context, callID string) (*Descriptor, error) {
	if callID == "" {
		return nil, fmt.Errorf("call ID is required")
	}
	desc, err := c.callRequest(ctx, http.MethodPost, "calls/"+url.PathEscape(callID)+"/rejoin", nil)
	if err != nil {
		return nil, fmt.Errorf("error rejoining call: %w", err)
	}
	if desc.CallID == "" {
		desc.CallID = callID
	}
	return desc, nil
}

// GetTransactions lists the billing transactions recorded for a call
func (c *Client) GetTransactions(ctx context.Context, callID string) ([]Transaction, error) {
	if callID == "" {
		return nil, fmt.Errorf("call ID is required")
	}
	var resp struct {
		Items        []Transaction `json:"items"`
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, "calls/"+url.PathEscape(callID)+"/transactions", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("error fetching call transactions: %w", err)
	}
	if resp.Items != nil {
		return resp.Items, nil
	}
	return resp.Transactions, nil
}

// AcceptCallback accepts a callback request. The caller is expected to place
// the return call with confirmation afterwards.
func (c *Client) AcceptCallback(ctx context.Context, requestID string) (*Callback, error) {
	if requestID == "" {
		return nil, fmt.Errorf("request ID is required")
	}
	var cb Callback
	if err := c.do(ctx, http.MethodPost, "callbacks/"+url.PathEscape(requestID)+"/accept", nil, nil, &cb); err != nil {
		return nil, fmt.Errorf("error accepting callback: %w", err)
	}
	if cb.RequestID == "" {
		cb.RequestID = requestID
	}
	if cb.RequesterID == "" && cb.Requester != nil {
		cb.RequesterID = cb.Requester.ID
	}
	return &cb, nil
}

// RejectCallback rejects a callback request
func (c *Client) RejectCallback(ctx context.Context, requestID string) error {
	if requestID == "" {
		return fmt.Errorf("request ID is required")
	}
	if err := c.do(ctx, http.MethodPost, "callbacks/"+url.PathEscape(requestID)+"/reject", nil, nil, nil); err != nil {
		return fmt.Errorf("error rejecting callback: %w", err)
	}
	return nil
}
