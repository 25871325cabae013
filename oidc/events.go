// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"sync"
)

// EventKind identifies the kind of session Event raised by a Client.
type EventKind int

const (
	UnknownEvent EventKind = iota

	// AccessTokenExpiring is raised shortly before the access token
	// expires.  See Config.AccessTokenExpiringNotificationTime.
	AccessTokenExpiring

	// AccessTokenExpired is raised once the access token has expired.
	AccessTokenExpired

	// UserLoaded is raised when a user is stored after a sign-in or renew.
	UserLoaded

	// UserUnloaded is raised when the stored user is removed.
	UserUnloaded

	// UserSignedIn is raised when the session monitor sees the user signed
	// in at the provider again.
	UserSignedIn

	// UserSignedOut is raised when the session monitor sees the user signed
	// out at the provider.
	UserSignedOut

	// UserSessionChanged is raised when the session monitor sees a different
	// user at the provider.
	UserSessionChanged

	// SilentRenewError is raised when an automatic renew fails.
	SilentRenewError
)

// String returns the event kind's name.
func (k EventKind) String() string {
	switch k {
	case AccessTokenExpiring:
		return "access-token-expiring"
	case AccessTokenExpired:
		return "access-token-expired"
	case UserLoaded:
		return "user-loaded"
	case UserUnloaded:
		return "user-unloaded"
	case UserSignedIn:
		return "user-signed-in"
	case UserSignedOut:
		return "user-signed-out"
	case UserSessionChanged:
		return "user-session-changed"
	case SilentRenewError:
		return "silent-renew-error"
	default:
		return "unknown"
	}
}

// Event is one notification from a Client's event stream.
type Event struct {
	Kind EventKind

	// User is set for UserLoaded.
	User *User

	// Err is set for SilentRenewError.
	Err error
}

// EventHandler receives events.  Handlers run one at a time, in emission
// order, and must not block for long.
type EventHandler func(ctx context.Context, e Event)

type queuedEvent struct {
	ctx context.Context
	e   Event
}

type subscription struct {
	id      int
	handler EventHandler
}

// Events is an ordered, synchronous event stream.
//
// Raise delivers the event to every subscribed handler before it returns,
// unless another Raise is already delivering: then the event is queued and
// delivered by that caller once the current event has reached every handler.
// A handler may therefore Raise (directly, or by calling back into the
// Client) without deadlocking, and events are never interleaved.
type Events struct {
	mu          sync.Mutex
	subs        []subscription
	nextID      int
	queue       []queuedEvent
	dispatching bool
}

// NewEvents creates an empty event stream.
func NewEvents() *Events {
	return &Events{}
}

// Subscribe adds a handler and returns the function that removes it.
func (e *Events) Subscribe(h EventHandler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription{id: id, handler: h})
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.subs {
				if s.id == id {
					e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Raise emits an event to all subscribers.
func (e *Events) Raise(ctx context.Context, ev Event) {
	e.mu.Lock()
	e.queue = append(e.queue, queuedEvent{ctx: ctx, e: ev})
	if e.dispatching {
		e.mu.Unlock()
		return
	}
	e.dispatching = true
	for len(e.queue) > 0 {
		next := e.queue[0]
		e.queue = e.queue[1:]
		subs := make([]subscription, len(e.subs))
		copy(subs, e.subs)
		e.mu.Unlock()
		e.deliver(next, subs)
		e.mu.Lock()
	}
	e.dispatching = false
	e.mu.Unlock()
}

func (e *Events) deliver(q queuedEvent, subs []subscription) {
	// a panicking handler must not leave the stream stuck in dispatching
	defer func() {
		if r := recover(); r != nil {
			e.mu.Lock()
			e.dispatching = false
			e.queue = nil
			e.mu.Unlock()
			panic(r)
		}
	}()
	for _, s := range subs {
		s.handler(q.ctx, q.e)
	}
}
