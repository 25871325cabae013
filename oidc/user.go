// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// User is the session record for an authenticated user: the tokens and
// identity claims issued by the provider.  Token fields redact themselves
// when printed or marshaled; use ToStorageString to serialize a User.
type User struct {
	// IDToken is the id_token from the most recent sign-in or renew.
	IDToken IdToken

	// SessionState is the provider's session_state, when it sends one.
	SessionState string

	// AccessToken is the oauth access_token.
	AccessToken AccessToken

	// RefreshToken is the optional oauth refresh_token.
	RefreshToken RefreshToken

	// TokenType is typically "Bearer".
	TokenType string

	// Scope is the space separated scope granted.
	Scope string

	// Profile holds the id_token claims, merged with the userinfo claims.
	Profile map[string]interface{}

	// ExpiresAt is the access token expiry as unix seconds.  Zero means the
	// provider did not say when it expires.
	ExpiresAt int64
}

// storedUser is the storage schema for a User.
type storedUser struct {
	IDToken      string                 `json:"id_token,omitempty"`
	SessionState string                 `json:"session_state,omitempty"`
	AccessToken  string                 `json:"access_token"`
	RefreshToken string                 `json:"refresh_token,omitempty"`
	TokenType    string                 `json:"token_type,omitempty"`
	Scope        string                 `json:"scope,omitempty"`
	Profile      map[string]interface{} `json:"profile,omitempty"`
	ExpiresAt    int64                  `json:"expires_at,omitempty"`
}

// ToStorageString serializes the User for a storage.Store.
func (u *User) ToStorageString() (string, error) {
	const op = "User.ToStorageString"
	if u == nil {
		return "", fmt.Errorf("%s: user is nil: %w", op, ErrNilParameter)
	}
	b, err := json.Marshal(storedUser{
		IDToken:      string(u.IDToken),
		SessionState: u.SessionState,
		AccessToken:  string(u.AccessToken),
		RefreshToken: string(u.RefreshToken),
		TokenType:    u.TokenType,
		Scope:        u.Scope,
		Profile:      u.Profile,
		ExpiresAt:    u.ExpiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("%s: unable to marshal user: %w", op, err)
	}
	return string(b), nil
}

// UserFromStorageString parses a User written by ToStorageString.  A value
// that is not a JSON object or that has no access token is reported as
// ErrCorruptRecord.
func UserFromStorageString(s string) (*User, error) {
	const op = "UserFromStorageString"
	var su storedUser
	if err := json.Unmarshal([]byte(s), &su); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrCorruptRecord, err)
	}
	if su.AccessToken == "" {
		return nil, fmt.Errorf("%s: access_token is missing: %w", op, ErrCorruptRecord)
	}
	return &User{
		IDToken:      IdToken(su.IDToken),
		SessionState: su.SessionState,
		AccessToken:  AccessToken(su.AccessToken),
		RefreshToken: RefreshToken(su.RefreshToken),
		TokenType:    su.TokenType,
		Scope:        su.Scope,
		Profile:      su.Profile,
		ExpiresAt:    su.ExpiresAt,
	}, nil
}

// ExpiresIn returns the number of seconds until the access token expires,
// relative to now.  It returns zero and false when the expiry is unknown.
func (u *User) ExpiresIn(now time.Time) (int64, bool) {
	if u == nil || u.ExpiresAt == 0 {
		return 0, false
	}
	return u.ExpiresAt - now.Unix(), true
}

// Expired reports whether the access token has expired at now.  A User
// without a known expiry never expires.
func (u *User) Expired(now time.Time) bool {
	in, ok := u.ExpiresIn(now)
	if !ok {
		return false
	}
	return in <= 0
}

// Subject returns the "sub" claim of the profile.
func (u *User) Subject() string {
	if u == nil || u.Profile == nil {
		return ""
	}
	sub, _ := u.Profile["sub"].(string)
	return sub
}

// StaticTokenSource returns a TokenSource for the User's access token,
// suitable for calling APIs or the provider's userinfo endpoint.
func (u *User) StaticTokenSource() oauth2.TokenSource {
	t := &oauth2.Token{
		AccessToken: string(u.AccessToken),
		TokenType:   u.TokenType,
	}
	if u.ExpiresAt != 0 {
		t.Expiry = time.Unix(u.ExpiresAt, 0)
	}
	return oauth2.StaticTokenSource(t)
}
