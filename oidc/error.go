// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter          = errors.New("invalid parameter")
	ErrNilParameter              = errors.New("nil parameter")
	ErrInvalidCACert             = errors.New("invalid CA certificate")
	ErrInvalidIssuer             = errors.New("invalid issuer")
	ErrIdGeneratorFailed         = errors.New("id generation failed")
	ErrExpiredState              = errors.New("state is expired")
	ErrResponseStateInvalid      = errors.New("oidc response state")
	ErrMissingIdToken            = errors.New("id_token is missing")
	ErrIdTokenVerificationFailed = errors.New("id_token verification failed")
	ErrInvalidNonce              = errors.New("invalid nonce")
	ErrInvalidAudience           = errors.New("invalid audience")
	ErrInvalidSubject            = errors.New("invalid subject")
	ErrNotFound                  = errors.New("not found")
	ErrLoginFailed               = errors.New("login failed")
	ErrUserInfoFailed            = errors.New("user info failed")
	ErrDiscoveryFailed           = errors.New("provider discovery failed")
	ErrConfigurationIncomplete   = errors.New("configuration incomplete")
	ErrCorruptRecord             = errors.New("corrupt session record")
	ErrNoRefreshToken            = errors.New("refresh_token is missing")
	ErrNoEndSessionEndpoint      = errors.New("end_session_endpoint is missing")
	ErrRevocationFailed          = errors.New("token revocation failed")
	ErrNavigationFailed          = errors.New("navigation failed")
)

// AuthError is an OAuth2 error response returned by the provider to the
// redirect URI.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthError struct {
	Code        string
	Description string
	Uri         string
	State       string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// Unwrap lets errors.Is(err, ErrLoginFailed) match any provider error
// response.
func (e *AuthError) Unwrap() error {
	return ErrLoginFailed
}
