// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// minExpiringDelay is the earliest AccessTokenExpiring is raised after a
// user is loaded, even when the token is already within the notification
// window.
const minExpiringDelay = time.Second

// accessTokenTimer raises AccessTokenExpiring and then AccessTokenExpired
// for the loaded user's access token.  Loading a user replaces any timer
// already running.
type accessTokenTimer struct {
	ctx              context.Context
	events           *Events
	clock            clockwork.Clock
	notificationTime time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newAccessTokenTimer(ctx context.Context, events *Events, clock clockwork.Clock, notificationTime time.Duration) *accessTokenTimer {
	return &accessTokenTimer{
		ctx:              ctx,
		events:           events,
		clock:            clock,
		notificationTime: notificationTime,
	}
}

// load arms the timer for u.  A user without a known expiry only cancels
// the previous timer.
func (t *accessTokenTimer) load(u *User) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	in, ok := u.ExpiresIn(t.clock.Now())
	if !ok {
		return
	}
	expiresIn := time.Duration(in) * time.Second
	expiring := expiresIn - t.notificationTime
	if expiring < minExpiringDelay {
		expiring = minExpiringDelay
	}
	expired := expiresIn + time.Second

	ctx, cancel := context.WithCancel(t.ctx)
	t.cancel = cancel
	go t.run(ctx, expiring, expired)
}

// unload cancels the running timer, if any.  It does not wait for the
// timer's goroutine: unload may be called by one of its event handlers.
func (t *accessTokenTimer) unload() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *accessTokenTimer) stopLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *accessTokenTimer) run(ctx context.Context, expiring, expired time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-t.clock.After(expiring):
	}
	t.events.Raise(t.ctx, Event{Kind: AccessTokenExpiring})

	if remaining := expired - expiring; remaining > 0 {
		select {
		case <-ctx.Done():
			return
		case <-t.clock.After(remaining):
		}
	}
	if ctx.Err() != nil {
		return
	}
	t.events.Raise(t.ctx, Event{Kind: AccessTokenExpired})
}
