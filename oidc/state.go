// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// signinRequestType marks a stored state as belonging to a redirect sign-in.
const signinRequestType = "si:r"

// signinState represents one authorization code flow attempt for a user. It
// contains the data needed to uniquely represent that one-time flow across
// the redirect to the provider and back.  The id is sent as the oauth
// "state" parameter and is used as the storage key, so the callback can find
// it again.  The id and nonce cannot be equal.
type signinState struct {
	// ID is a unique identifier and an opaque value used to maintain state
	// between the request and the callback.
	ID string `json:"id"`

	// Nonce is a unique nonce used to associate the session with an
	// id_token, and to mitigate replay attacks.
	Nonce string `json:"nonce"`

	// CodeVerifier is the PKCE verifier; only its S256 challenge is sent
	// with the authorization request.
	CodeVerifier string `json:"code_verifier"`

	RedirectURI string `json:"redirect_uri"`
	Authority   string `json:"authority"`
	ClientID    string `json:"client_id"`

	// Created is unix seconds.
	Created int64 `json:"created"`

	RequestType string `json:"request_type"`
}

// newSigninState creates a state with a fresh id, nonce and PKCE verifier.
func newSigninState(c *Config, now time.Time) (*signinState, error) {
	const op = "newSigninState"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state's nonce: %w", op, err)
	}
	id, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state's id: %w", op, err)
	}
	return &signinState{
		ID:           id,
		Nonce:        nonce,
		CodeVerifier: oauth2.GenerateVerifier(),
		RedirectURI:  c.RedirectURI,
		Authority:    c.Authority,
		ClientID:     c.ClientID,
		Created:      now.Unix(),
		RequestType:  signinRequestType,
	}, nil
}

func (s *signinState) toStorageString() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("signinState.toStorageString: %w", err)
	}
	return string(b), nil
}

func signinStateFromStorageString(v string) (*signinState, error) {
	const op = "signinStateFromStorageString"
	var s signinState
	if err := json.Unmarshal([]byte(v), &s); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrCorruptRecord, err)
	}
	if s.ID == "" || s.Nonce == "" || s.ID == s.Nonce {
		return nil, fmt.Errorf("%s: id and nonce must be set and differ: %w", op, ErrCorruptRecord)
	}
	return &s, nil
}

// isStale returns true once the state is older than age.
func (s *signinState) isStale(now time.Time, age time.Duration) bool {
	return time.Unix(s.Created, 0).Add(age).Before(now)
}
