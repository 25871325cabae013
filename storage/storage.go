// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
storage is a package that provides the key/value persistence used to hold
session records and in-flight sign-in state.

A Store plays the part a browser's localStorage plays for a web client: a
flat string keyed namespace shared by everything in the process.  The Memory
store is the default.  See the sqlite and redis subpackages for durable
implementations.
*/
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the key does not map to any stored value.
	ErrNotFound = errors.New("not found")

	// ErrInvalidParameter indicates an empty key or other invalid input.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Store defines a string key/value store.  Implementations must be
// concurrently safe.
type Store interface {
	// Get returns the value stored at key, or an error wrapping ErrNotFound
	// when there is none.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key, replacing any existing value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes the value at key.  Removing a missing key is not an
	// error.
	Remove(ctx context.Context, key string) error

	// Keys returns every key currently stored.
	Keys(ctx context.Context) ([]string, error)
}
