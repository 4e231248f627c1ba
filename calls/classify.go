/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calls

import (
	"context"
	"errors"
	"strings"

	"github.com/tejzpr/amoura-go-sdk/amourasdk"
)

// benignCodes are backend codes reporting that another path already got
// the call into the requested state.
var benignCodes = map[string]bool{
	CodeCallAlreadyAccepted: true,
	CodeCallAlreadyEnded:    true,
}

// IsBenign reports whether err is a known race that should be cleaned up
// silently instead of shown to the user.
func IsBenign(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if benignCodes[amourasdk.ErrorCode(err)] {
		return true
	}
	return isLegacyAttendFailure(err)
}

// isLegacyAttendFailure matches the "failed to attend" wording the backend
// returns after an accept that actually went through.
// TODO: drop once the accept endpoint reports CALL_ALREADY_ACCEPTED for this case.
func isLegacyAttendFailure(err error) bool {
	var apiErr *amourasdk.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "" {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "attend")
}

// UserMessage maps err to the short message shown in a toast
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case amourasdk.IsAuthError(err):
		return "Please sign in again"
	case amourasdk.IsPaymentRequired(err):
		return initiateMessages[InitiateInsufficientFunds]
	case amourasdk.IsRateLimited(err):
		return "Too many attempts, try again shortly"
	case amourasdk.IsServerError(err):
		return "Call service unavailable"
	}
	if status, ok := initiateStatusByCode[amourasdk.ErrorCode(err)]; ok {
		return initiateMessages[status]
	}
	return "Call failed"
}
