// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fcid/fcauth/oidc"
)

// Completer completes an authorization code flow from the URL the provider
// redirected the user to.  *oidc.Client is a Completer.
type Completer interface {
	SigninRedirectCallback(ctx context.Context, callbackURL string) (*oidc.User, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, callbackURL string) (*oidc.User, error)

// SigninRedirectCallback implements Completer.
func (f CompleterFunc) SigninRedirectCallback(ctx context.Context, callbackURL string) (*oidc.User, error) {
	return f(ctx, callbackURL)
}

// AuthCode creates an oidc authorization code callback handler which hands
// the request's "code" and "state" parameters (from either the query or a
// form_post body) to the Completer.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
func AuthCode(ctx context.Context, c Completer, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: completer is nil: %w", op, oidc.ErrInvalidParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrInvalidParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		// get parameters from either the body or query parameters.
		// FormValue prioritizes body values, if found
		reqState := req.FormValue("state")

		callbackURL := *req.URL
		callbackURL.RawQuery = req.Form.Encode()
		callbackURL.Fragment = ""

		u, err := c.SigninRedirectCallback(ctx, callbackURL.String())
		if err != nil {
			var authErr *oidc.AuthError
			if errors.As(err, &authErr) {
				eFn(reqState, &AuthenErrorResponse{
					Error:       authErr.Code,
					Description: authErr.Description,
					Uri:         authErr.Uri,
				}, nil, w, req)
				return
			}
			eFn(reqState, nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		sFn(reqState, u, w, req)
	}, nil
}
