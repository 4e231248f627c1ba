/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package amourasdk

import (
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// TokenClaims are the claims the SDK reads from an access token.
// Signature verification is the backend's job; the client only needs
// the subject and expiry to know who it is and whether it is signed in.
type TokenClaims struct {
	jwt.Claims
	UserID string `json:"userId,omitempty"`
}

// User returns the user ID carried by the token, preferring the
// explicit userId claim over sub.
func (c *TokenClaims) User() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Claims.Subject
}

// Expired reports whether the token expiry is at or before now.
// Tokens without an exp claim never expire.
func (c *TokenClaims) Expired(now time.Time) bool {
	if c.Expiry == nil {
		return false
	}
	return !now.Before(c.Expiry.Time())
}

var supportedTokenAlgorithms = []jose.SignatureAlgorithm{
	jose.HS256, jose.HS384, jose.HS512,
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.EdDSA,
}

// ParseAccessToken decodes the claims of a signed access token without
// verifying the signature.
func ParseAccessToken(token string) (*TokenClaims, error) {
	parsed, err := jwt.ParseSigned(token, supportedTokenAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("error parsing access token: %w", err)
	}
	claims := &TokenClaims{}
	if err := parsed.UnsafeClaimsWithoutVerification(claims); err != nil {
		return nil, fmt.Errorf("error reading access token claims: %w", err)
	}
	if claims.User() == "" {
		return nil, fmt.Errorf("access token has no subject")
	}
	return claims, nil
}

// UserID returns the authenticated user's ID from the access token.
// If Config.UserID is set it wins, which supports opaque tokens.
func (c *Client) UserID() (string, error) {
	if c.Config != nil && c.Config.UserID != "" {
		return c.Config.UserID, nil
	}
	claims, err := ParseAccessToken(c.accessToken)
	if err != nil {
		return "", err
	}
	return claims.User(), nil
}

// Authenticated reports whether the client holds a usable identity:
// a known user ID and, for JWT access tokens, an unexpired one.
func (c *Client) Authenticated() bool {
	if c.Config != nil && c.Config.UserID != "" {
		return true
	}
	claims, err := ParseAccessToken(c.accessToken)
	if err != nil {
		return false
	}
	return !claims.Expired(time.Now())
}
