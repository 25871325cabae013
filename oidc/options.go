// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithLogger provides an optional logger for: Client
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithClock provides an optional clock for: Client
func WithClock(c clockwork.Clock) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && c != nil {
			o.withClock = c
		}
	}
}

// WithNavigator provides an optional Navigator for: Client
func WithNavigator(n Navigator) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && n != nil {
			o.withNavigator = n
		}
	}
}
