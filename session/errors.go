// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import "errors"

var (
	ErrNilParameter                 = errors.New("nil parameter")
	ErrNoSession                    = errors.New("no session")
	ErrSignInCallbackFailed         = errors.New("sign-in callback failed")
	ErrConfigMismatch               = errors.New("configuration does not match the existing session manager")
	ErrForcedSignOutCallbackMissing = errors.New("forced sign-out callback missing")
)
