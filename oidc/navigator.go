// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
)

// Navigator sends the user's browser to a URL.  Navigate returns once the
// navigation has started; it does not wait for the user to come back.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, url string) error

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(ctx context.Context, url string) error {
	return f(ctx, url)
}

// noNavigator is used when the Client was created without WithNavigator.
type noNavigator struct{}

func (noNavigator) Navigate(context.Context, string) error {
	return errors.New("no navigator configured")
}
