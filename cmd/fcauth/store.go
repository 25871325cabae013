// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fcid/fcauth/storage"
	redisstore "github.com/fcid/fcauth/storage/redis"
	"github.com/fcid/fcauth/storage/sqlite"
	"github.com/hashicorp/go-hclog"
)

const (
	redisConnectAttempts = 3
	redisConnectInterval = time.Second
)

// closeableStore is a store holding a database connection.
type closeableStore interface {
	storage.Store
	Close() error
}

// openStore opens the redis store when FCAUTH_REDIS_URL is set and the
// sqlite store otherwise.
func openStore(ctx context.Context, c *config, logger hclog.Logger) (closeableStore, error) {
	const op = "openStore"
	if c.RedisURL != "" {
		client, err := redisstore.Connect(ctx, c.RedisURL, redisConnectAttempts, redisConnectInterval)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s, err := redisstore.New(client)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Debug("using redis store")
		return s, nil
	}
	s, err := sqlite.Open(ctx, c.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.Debug("using sqlite store", "path", c.SQLitePath)
	return s, nil
}
