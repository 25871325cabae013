// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"github.com/fcid/fcauth/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// managerOptions is the set of available options for New and GetOrCreate
type managerOptions struct {
	withLogger         hclog.Logger
	withClock          clockwork.Clock
	withNavigator      oidc.Navigator
	withForcedSignOut  ForcedSignOutFunc
	withProtocolClient ProtocolClient
	withStrictConfig   bool
}

// managerDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func managerDefaults() managerOptions {
	return managerOptions{
		withLogger: hclog.NewNullLogger(),
		withClock:  clockwork.NewRealClock(),
	}
}

// getManagerOpts gets the defaults and applies the opt overrides passed in
func getManagerOpts(opt ...Option) managerOptions {
	opts := managerDefaults()
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(&opts)
	}
	return opts
}

// WithLogger provides an optional logger for: New, GetOrCreate
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithClock provides an optional clock used for expiry checks and the
// protocol client's timers.
func WithClock(c clockwork.Clock) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok && c != nil {
			o.withClock = c
		}
	}
}

// WithNavigator provides the Navigator the protocol client uses to send the
// user to the provider.
func WithNavigator(n oidc.Navigator) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok && n != nil {
			o.withNavigator = n
		}
	}
}

// WithForcedSignOut provides the callback invoked when the session record is
// unloaded.
func WithForcedSignOut(fn ForcedSignOutFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok {
			o.withForcedSignOut = fn
		}
	}
}

// WithProtocolClient replaces the *oidc.Client a Manager would otherwise
// create.  The Manager does not call Done on a client it was given.
func WithProtocolClient(c ProtocolClient) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok && c != nil {
			o.withProtocolClient = c
		}
	}
}

// WithStrictConfig makes GetOrCreate fail with ErrConfigMismatch rather than
// ignore a configuration that differs from the existing Manager's.
func WithStrictConfig() Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok {
			o.withStrictConfig = true
		}
	}
}
