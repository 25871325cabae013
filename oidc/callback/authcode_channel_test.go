// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fcid/fcauth/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthCodeWithChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("invalid", func(t *testing.T) {
		assert := assert.New(t)
		c := CompleterFunc(func(context.Context, string) (*oidc.User, error) { return nil, nil })
		for _, args := range []struct {
			c   Completer
			sFn SuccessResponseFunc
			eFn ErrorResponseFunc
		}{
			{nil, testSuccessFn, testFailFn},
			{c, nil, testFailFn},
			{c, testSuccessFn, nil},
		} {
			_, _, err := AuthCodeWithChannel(ctx, args.c, args.sFn, args.eFn)
			assert.Truef(errors.Is(err, oidc.ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", oidc.ErrInvalidParameter, err)
		}
	})
	t.Run("success-reported-once", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		client, callbackURL := testClient(t, tp)
		ch, h, err := AuthCodeWithChannel(ctx, client, testSuccessFn, testFailFn)
		require.NoError(err)

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, callbackURL, nil))
		assert.Equal(http.StatusOK, w.Code)

		// a replay is answered, but the first result stands
		w = httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, callbackURL, nil))
		assert.Equal(http.StatusInternalServerError, w.Code)

		resp, ok := <-ch
		require.True(ok)
		require.NoError(resp.Error)
		assert.Equal("alice@example.com", resp.User.Subject())
		_, ok = <-ch
		assert.False(ok)
	})
	t.Run("provider-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		tp.SetAuthError("access_denied")
		client, callbackURL := testClient(t, tp)
		ch, h, err := AuthCodeWithChannel(ctx, client, testSuccessFn, testFailFn)
		require.NoError(err)

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, callbackURL, nil))
		assert.Equal(http.StatusUnauthorized, w.Code)

		resp := <-ch
		require.Error(resp.Error)
		assert.Nil(resp.User)
		assert.Truef(errors.Is(resp.Error, oidc.ErrLoginFailed), "wanted \"%s\" but got \"%s\"", oidc.ErrLoginFailed, resp.Error)
		assert.Contains(resp.Error.Error(), "access_denied")
	})
}
