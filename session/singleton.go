// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/fcid/fcauth/oidc"
)

var (
	instanceMu sync.Mutex
	instance   *Manager
)

// GetOrCreate returns the process-wide Manager, creating it with New on the
// first call.  Later calls return the same Manager; a differing
// configuration is ignored with a warning, or rejected with
// ErrConfigMismatch when WithStrictConfig is used.
func GetOrCreate(ctx context.Context, c *oidc.Config, opt ...Option) (*Manager, error) {
	const op = "session.GetOrCreate"
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		if !instance.config.Equal(c) {
			if getManagerOpts(opt...).withStrictConfig {
				return nil, fmt.Errorf("%s: existing session %s: %w", op, instance.Key(), ErrConfigMismatch)
			}
			instance.logger.Warn("ignoring configuration, a session manager already exists", "key", instance.Key())
		}
		return instance, nil
	}
	m, err := New(ctx, c, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	instance = m
	return instance, nil
}

// Reset closes and forgets the process-wide Manager, if any.
func Reset() error {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		return nil
	}
	err := instance.Close()
	instance = nil
	return err
}
