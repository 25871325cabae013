// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestApplyOpts(t *testing.T) {
	// Let's make sure we don't panic on nil options
	anonymousOpts := struct {
		Names []string
	}{
		nil,
	}
	ApplyOpts(anonymousOpts, nil)
}

func Test_getClientOpts(t *testing.T) {
	t.Parallel()
	t.Run("defaults", func(t *testing.T) {
		assert := assert.New(t)
		opts := getClientOpts()
		assert.Equal(clientDefaults().withNavigator, opts.withNavigator)
		assert.NotNil(opts.withLogger)
		assert.NotNil(opts.withClock)
	})
	t.Run("overrides", func(t *testing.T) {
		assert := assert.New(t)
		logger := hclog.NewNullLogger()
		clock := clockwork.NewFakeClockAt(time.Unix(1000, 0))
		nav := &TestNavigator{}
		opts := getClientOpts(WithLogger(logger), WithClock(clock), WithNavigator(nav))
		assert.Equal(logger, opts.withLogger)
		assert.Equal(clock, opts.withClock)
		assert.Equal(nav, opts.withNavigator)
	})
	t.Run("nil-values-ignored", func(t *testing.T) {
		assert := assert.New(t)
		opts := getClientOpts(WithLogger(nil), WithClock(nil), WithNavigator(nil), nil)
		assert.Equal(clientDefaults().withNavigator, opts.withNavigator)
		assert.NotNil(opts.withLogger)
		assert.NotNil(opts.withClock)
	})
	t.Run("config-options-ignored", func(t *testing.T) {
		assert := assert.New(t)
		opts := getClientOpts(WithAuthority("https://idp.example"), WithScope("email"))
		assert.Equal(clientDefaults().withNavigator, opts.withNavigator)
	})
}
