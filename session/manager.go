// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fcid/fcauth/oidc"
	"github.com/fcid/fcauth/storage"
	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
)

// ProtocolClient is the part of *oidc.Client a Manager uses.
type ProtocolClient interface {
	SigninRedirect(ctx context.Context) error
	SigninRedirectCallback(ctx context.Context, callbackURL string) (*oidc.User, error)
	SignoutRedirect(ctx context.Context) error
	Resume(ctx context.Context) error
	Events() *oidc.Events
	Done()
}

// Manager owns one authenticated session: its protocol client and the
// Router subscribed to the client's events.
type Manager struct {
	config *oidc.Config
	client ProtocolClient
	router *Router
	logger hclog.Logger
	clock  clockwork.Clock

	ownsClient  bool
	unsubscribe func()
	closeOnce   sync.Once
}

// New creates a Manager for the configuration, subscribes its Router to the
// protocol client's events and resumes any session already in the store.
//
// Supported options:
//
//	WithLogger
//	WithClock
//	WithNavigator
//	WithForcedSignOut
//	WithProtocolClient
func New(ctx context.Context, c *oidc.Config, opt ...Option) (*Manager, error) {
	const op = "session.New"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	opts := getManagerOpts(opt...)
	m := &Manager{
		config: c,
		client: opts.withProtocolClient,
		logger: opts.withLogger.Named("session"),
		clock:  opts.withClock,
	}
	if m.client == nil {
		client, err := oidc.NewClient(c,
			oidc.WithLogger(opts.withLogger),
			oidc.WithClock(opts.withClock),
			oidc.WithNavigator(opts.withNavigator),
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		m.client = client
		m.ownsClient = true
	}
	router, err := NewRouter(m.SignOut, opts.withForcedSignOut, m.logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.router = router
	m.unsubscribe = m.client.Events().Subscribe(router.Handle)

	if err := m.client.Resume(ctx); err != nil {
		m.logger.Warn("unable to resume stored session", "key", m.Key(), "error", err)
	}
	return m, nil
}

// Config returns the Manager's configuration.
func (m *Manager) Config() *oidc.Config { return m.config }

// Key returns the storage key of the session record.
func (m *Manager) Key() string { return m.config.UserStoreKey() }

// Close unsubscribes the Router and stops a protocol client the Manager
// created.  It's safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.unsubscribe()
		if m.ownsClient {
			m.client.Done()
		}
	})
	return nil
}

// LoadUser reads the session record from the store.  A missing record is
// ErrNoSession and an unparseable one is oidc.ErrCorruptRecord.
func (m *Manager) LoadUser(ctx context.Context) (*oidc.User, error) {
	const op = "Manager.LoadUser"
	raw, err := m.config.UserStore.Get(ctx, m.Key())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, ErrNoSession)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	u, err := oidc.UserFromStorageString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// User returns the session record, or nil when there is no readable one.
func (m *Manager) User(ctx context.Context) *oidc.User {
	u, err := m.LoadUser(ctx)
	if err != nil {
		m.logUnreadable(err)
		return nil
	}
	return u
}

// IsAuthenticated reports whether a session record exists and its access
// token has not expired.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	u := m.User(ctx)
	return u != nil && !u.Expired(m.clock.Now())
}

// AccessToken returns the stored access token, or "" when there is no
// readable session record.  The token is returned even when it has expired.
func (m *Manager) AccessToken(ctx context.Context) string {
	u := m.User(ctx)
	if u == nil {
		return ""
	}
	return string(u.AccessToken)
}

func (m *Manager) logUnreadable(err error) {
	if errors.Is(err, ErrNoSession) {
		return
	}
	m.logger.Warn("unable to read session record", "key", m.Key(), "error", err)
}

// SignIn starts an authorization code sign-in by navigating to the
// provider.
func (m *Manager) SignIn(ctx context.Context) error {
	const op = "Manager.SignIn"
	if err := m.client.SigninRedirect(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SignInCallback completes a sign-in from the URL the provider redirected
// to.  Every failure wraps ErrSignInCallbackFailed along with the protocol
// client's error.
func (m *Manager) SignInCallback(ctx context.Context, callbackURL string) (*oidc.User, error) {
	const op = "Manager.SignInCallback"
	u, err := m.client.SigninRedirectCallback(ctx, callbackURL)
	if err != nil {
		m.logger.Error("sign-in callback failed", "error", err)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrSignInCallbackFailed, err)
	}
	return u, nil
}

// SigninRedirectCallback lets a Manager be used as a callback.Completer.
func (m *Manager) SigninRedirectCallback(ctx context.Context, callbackURL string) (*oidc.User, error) {
	return m.SignInCallback(ctx, callbackURL)
}

// SignOut removes the session record and navigates to the provider's end
// session endpoint.
func (m *Manager) SignOut(ctx context.Context) error {
	const op = "Manager.SignOut"
	if err := m.client.SignoutRedirect(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
