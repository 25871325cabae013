// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package redis provides a storage.Store backed by Redis, which lets several
// processes on different hosts observe the same session record.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fcid/fcauth/storage"
	"github.com/redis/go-redis/v9"
)

// ErrNotReady is returned by Connect when the server never answered a ping.
var ErrNotReady = errors.New("redis not ready")

// Store is a storage.Store backed by a Redis client.
type Store struct {
	db            redis.UniversalClient
	prefix        string
	scanBatchSize int64
}

// ensure that Store implements the storage.Store interface
var _ storage.Store = (*Store)(nil)

// New wraps an existing client.
//
// Supported options:
//
//	WithPrefix
//	WithScanBatchSize
func New(client redis.UniversalClient, opt ...Option) (*Store, error) {
	const op = "redis.New"
	if client == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, storage.ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	return &Store{
		db:            client,
		prefix:        opts.withPrefix,
		scanBatchSize: opts.withScanBatchSize,
	}, nil
}

// Connect parses url, then pings the server up to attempts times, waiting
// interval between tries.
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	const op = "redis.Connect"
	connOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse url: %w", op, err)
	}
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		client := redis.NewClient(connOpts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w: %w", op, ErrNotReady, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("%s: %w", op, ErrNotReady)
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements storage.Store.Get.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	const op = "redis.(Store).Get"
	if key == "" {
		return "", fmt.Errorf("%s: key is empty: %w", op, storage.ErrInvalidParameter)
	}
	v, err := s.db.Get(ctx, s.prefix+key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", fmt.Errorf("%s: %q: %w", op, key, storage.ErrNotFound)
	case err != nil:
		return "", fmt.Errorf("%s: unable to read %q: %w", op, key, err)
	}
	return v, nil
}

// Set implements storage.Store.Set.  Values never expire on their own; the
// session record carries its own expiry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	const op = "redis.(Store).Set"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, storage.ErrInvalidParameter)
	}
	if err := s.db.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("%s: unable to write %q: %w", op, key, err)
	}
	return nil
}

// Remove implements storage.Store.Remove.
func (s *Store) Remove(ctx context.Context, key string) error {
	const op = "redis.(Store).Remove"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, storage.ErrInvalidParameter)
	}
	if err := s.db.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("%s: unable to delete %q: %w", op, key, err)
	}
	return nil
}

// Keys implements storage.Store.Keys using SCAN, so it never blocks the
// server.  The configured prefix is stripped from the returned keys.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	const op = "redis.(Store).Keys"
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.db.Scan(ctx, cursor, s.prefix+"*", s.scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: unable to scan keys: %w", op, err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return keys, nil
}
