// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/fcid/fcauth/oidc"
)

// LoginResp is used by AuthCodeWithChannel.  The callback writes its response
// to the returned <-chan LoginResp.
type LoginResp struct {
	User  *oidc.User // User is populated when the callback successfully completes the sign-in.
	Error error      // Error is populated when there's an error during the callback
}

// AuthCodeWithChannel creates an oidc authorization code callback handler
// which, like AuthCode, responds using the sFn and eFn.  It also reports the
// result of the first callback it handles on the returned channel; later
// callbacks are answered but not reported.  It's most appropriate when
// implementing a solution that invokes a localhost http listener within the
// same process that kicked off the authorization code flow.
func AuthCodeWithChannel(ctx context.Context, c Completer, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (<-chan LoginResp, http.HandlerFunc, error) {
	const op = "callback.AuthCodeWithChannel"
	switch {
	case sFn == nil:
		return nil, nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrInvalidParameter)
	case eFn == nil:
		return nil, nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrInvalidParameter)
	}
	doneCh := make(chan LoginResp, 1)
	var once sync.Once
	report := func(r LoginResp) {
		once.Do(func() {
			doneCh <- r
			close(doneCh)
		})
	}

	h, err := AuthCode(ctx, c,
		func(state string, u *oidc.User, w http.ResponseWriter, req *http.Request) {
			defer report(LoginResp{User: u})
			sFn(state, u, w, req)
		},
		func(state string, r *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
			responseErr := e
			if responseErr == nil && r != nil {
				responseErr = fmt.Errorf("%s: %s: %s: %w", op, r.Error, r.Description, oidc.ErrLoginFailed)
			}
			defer report(LoginResp{Error: responseErr})
			eFn(state, r, e, w, req)
		},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return doneCh, h, nil
}
