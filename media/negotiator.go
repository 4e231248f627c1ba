/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tejzpr/amoura-go-sdk/amourasdk"
)

// Negotiator exchanges an SDP offer for the media server's answer
type Negotiator interface {
	Negotiate(ctx context.Context, creds Credentials, offer string) (answer string, err error)
}

// HTTPNegotiator posts offers to the media channel endpoint of the REST API
type HTTPNegotiator struct {
	core *amourasdk.Client
}

// NewHTTPNegotiator creates a negotiator using the core client
func NewHTTPNegotiator(core *amourasdk.Client) *HTTPNegotiator {
	return &HTTPNegotiator{core: core}
}

type sdpExchange struct {
	Type  string `json:"type"`
	SDP   string `json:"sdp"`
	UID   uint32 `json:"uid,omitempty"`
	Token string `json:"token,omitempty"`
	AppID string `json:"appId,omitempty"`
}

// Negotiate implements Negotiator
func (n *HTTPNegotiator) Negotiate(ctx context.Context, creds Credentials, offer string) (string, error) {
	if creds.Channel == "" {
		return "", fmt.Errorf("channel name is required")
	}
	req := sdpExchange{
		Type:  "offer",
		SDP:   offer,
		UID:   creds.UID,
		Token: creds.Token,
		AppID: creds.AppID,
	}
	var resp sdpExchange
	path := "media/channels/" + url.PathEscape(creds.Channel) + "/sdp"
	if err := n.core.Do(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return "", fmt.Errorf("error exchanging sdp: %w", err)
	}
	if resp.SDP == "" {
		return "", fmt.Errorf("media server returned an empty answer")
	}
	return resp.SDP, nil
}
