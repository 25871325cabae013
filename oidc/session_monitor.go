// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// sessionMonitor polls the provider's userinfo endpoint with the loaded
// user's access token to notice sign-outs and session changes made outside
// this process.  A 401 means the user is signed out at the provider;
// a different "sub" means another user signed in.
type sessionMonitor struct {
	ctx      context.Context
	client   *Client
	interval time.Duration
	logger   hclog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newSessionMonitor(ctx context.Context, c *Client, interval time.Duration) *sessionMonitor {
	return &sessionMonitor{
		ctx:      ctx,
		client:   c,
		interval: interval,
		logger:   c.logger.Named("monitor"),
	}
}

// start monitors the session of u, replacing any monitor already running.
func (m *sessionMonitor) start(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	go m.run(ctx, u)
}

// stop cancels monitoring without waiting: it's called from event handlers
// running on the monitor's own goroutine.
func (m *sessionMonitor) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *sessionMonitor) stopLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *sessionMonitor) run(ctx context.Context, u *User) {
	ticker := m.client.clock.NewTicker(m.interval)
	defer ticker.Stop()

	signedIn := true
	sub := u.Subject()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
		if u.Expired(m.client.clock.Now()) {
			// an expired token can't tell a signed out session apart
			continue
		}
		current, signedOut, err := m.client.checkSession(ctx, u.AccessToken)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err != nil:
			m.logger.Debug("unable to check session", "error", err)
		case signedOut:
			if signedIn {
				signedIn = false
				m.logger.Debug("user signed out at provider", "sub", sub)
				m.client.events.Raise(m.ctx, Event{Kind: UserSignedOut})
			}
		case !signedIn:
			signedIn, sub = true, current
			m.logger.Debug("user signed in at provider", "sub", sub)
			m.client.events.Raise(m.ctx, Event{Kind: UserSignedIn})
		case current != sub:
			m.logger.Debug("user session changed at provider", "from", sub, "to", current)
			sub = current
			m.client.events.Raise(m.ctx, Event{Kind: UserSessionChanged})
		}
	}
}

// checkSession asks the provider's userinfo endpoint who the token belongs
// to.  signedOut is true when the provider rejects the token.
func (c *Client) checkSession(ctx context.Context, token AccessToken) (sub string, signedOut bool, err error) {
	const op = "Client.checkSession"
	_, md, err := c.discover(ctx)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	if md.UserInfoURL == "" {
		return "", false, fmt.Errorf("%s: provider has no userinfo endpoint: %w", op, ErrUserInfoFailed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, md.UserInfoURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w: %s", op, ErrUserInfoFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+string(token))
	resp, err := c.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w: %s", op, ErrUserInfoFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", true, nil
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", false, fmt.Errorf("%s: provider responded %s: %w", op, resp.Status, ErrUserInfoFailed)
	}
	var claims struct {
		Subject string `json:"sub"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return "", false, fmt.Errorf("%s: %w: %s", op, ErrUserInfoFailed, err)
	}
	return claims.Subject, false, nil
}
