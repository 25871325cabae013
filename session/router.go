// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"

	"github.com/fcid/fcauth/oidc"
	"github.com/hashicorp/go-hclog"
)

// ForcedSignOutFunc is invoked when the session record is unloaded, whether
// by a sign-out or by the provider ending the session.  It is called on the
// goroutine delivering the event and may call back into the Manager.
type ForcedSignOutFunc func(ctx context.Context) error

// Router maps each session event to a reaction: a diagnostic log line, the
// forced sign-out callback, or a sign-out redirect.
type Router struct {
	signOut       func(ctx context.Context) error
	forcedSignOut ForcedSignOutFunc
	logger        hclog.Logger
}

// NewRouter creates a Router.  signOut is required; a nil forcedSignOut is
// allowed and reported each time a UserUnloaded event is routed.
func NewRouter(signOut func(ctx context.Context) error, forcedSignOut ForcedSignOutFunc, logger hclog.Logger) (*Router, error) {
	const op = "session.NewRouter"
	if signOut == nil {
		return nil, fmt.Errorf("%s: sign-out func is nil: %w", op, ErrNilParameter)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Router{
		signOut:       signOut,
		forcedSignOut: forcedSignOut,
		logger:        logger,
	}, nil
}

// Route reacts to a single event.  A panic in the forced sign-out callback
// is not recovered.
func (r *Router) Route(ctx context.Context, e oidc.Event) error {
	const op = "Router.Route"
	switch e.Kind {
	case oidc.AccessTokenExpiring, oidc.AccessTokenExpired:
		r.logger.Debug("access token", "event", e.Kind)
	case oidc.UserLoaded:
		r.logger.Info("user loaded", "sub", e.User.Subject())
	case oidc.UserSignedIn, oidc.UserSessionChanged:
		r.logger.Info("provider session", "event", e.Kind)
	case oidc.SilentRenewError:
		r.logger.Warn("silent renew failed", "error", e.Err)
	case oidc.UserUnloaded:
		if r.forcedSignOut == nil {
			r.logger.Error("user unloaded but no forced sign-out callback is registered")
			return fmt.Errorf("%s: %w", op, ErrForcedSignOutCallbackMissing)
		}
		if err := r.forcedSignOut(ctx); err != nil {
			r.logger.Error("forced sign-out callback failed", "error", err)
			return fmt.Errorf("%s: forced sign-out: %w", op, err)
		}
	case oidc.UserSignedOut:
		r.logger.Info("user signed out at the provider")
		if err := r.signOut(ctx); err != nil {
			r.logger.Error("sign-out redirect failed", "error", err)
			return fmt.Errorf("%s: %w", op, err)
		}
	default:
		r.logger.Debug("ignoring event", "event", e.Kind)
	}
	return nil
}

// Handle is an oidc.EventHandler.  Route already logs every error it
// returns.
func (r *Router) Handle(ctx context.Context, e oidc.Event) {
	_ = r.Route(ctx, e)
}
