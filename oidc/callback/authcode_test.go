// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fcid/fcauth/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := CompleterFunc(func(context.Context, string) (*oidc.User, error) { return nil, nil })

	tests := []struct {
		name      string
		c         Completer
		sFn       SuccessResponseFunc
		eFn       ErrorResponseFunc
		wantErr   bool
		wantIsErr error
	}{
		{"valid", c, testSuccessFn, testFailFn, false, nil},
		{"nil-c", nil, testSuccessFn, testFailFn, true, oidc.ErrInvalidParameter},
		{"nil-sFn", c, nil, testFailFn, true, oidc.ErrInvalidParameter},
		{"nil-eFn", c, testSuccessFn, nil, true, oidc.ErrInvalidParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := AuthCode(ctx, tt.c, tt.sFn, tt.eFn)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
}

// testClient returns a client for the test provider and starts a sign-in,
// returning the callback URL the provider redirected to.
func testClient(t *testing.T, tp *oidc.TestProvider) (*oidc.Client, string) {
	t.Helper()
	require := require.New(t)
	c, err := oidc.NewConfig("https://app.example", "test-client",
		oidc.WithAuthority(tp.Addr()),
		oidc.WithProviderCA(tp.CACert()),
		oidc.WithSupportedSigningAlgs(oidc.ES256),
		oidc.WithMonitorSession(false),
	)
	require.NoError(err)
	nav := &oidc.TestNavigator{}
	client, err := oidc.NewClient(c, oidc.WithNavigator(nav))
	require.NoError(err)
	t.Cleanup(client.Done)
	require.NoError(client.SigninRedirect(context.Background()))
	return client, tp.FollowAuthURL(t, nav.Last())
}

func Test_AuthCodeResponses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		client, callbackURL := testClient(t, tp)
		h, err := AuthCode(ctx, client, testSuccessFn, testFailFn)
		require.NoError(err)

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, callbackURL, nil))
		assert.Equal(http.StatusOK, w.Code)
		assert.Equal("login successful: alice@example.com", w.Body.String())

		_, err = client.GetUser(ctx)
		assert.NoError(err)
	})
	t.Run("form-post", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		client, callbackURL := testClient(t, tp)
		h, err := AuthCode(ctx, client, testSuccessFn, testFailFn)
		require.NoError(err)

		u, err := url.Parse(callbackURL)
		require.NoError(err)
		body := u.RawQuery
		u.RawQuery = ""
		req := httptest.NewRequest(http.MethodPost, u.String(), strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		h(w, req)
		assert.Equal(http.StatusOK, w.Code)
	})
	t.Run("provider-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		tp.SetAuthError("access_denied")
		client, callbackURL := testClient(t, tp)
		h, err := AuthCode(ctx, client, testSuccessFn, testFailFn)
		require.NoError(err)

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, callbackURL, nil))
		assert.Equal(http.StatusUnauthorized, w.Code)
		var got AuthenErrorResponse
		require.NoError(json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal("access_denied", got.Error)
		assert.Equal("authentication failed", got.Description)
	})
	t.Run("replayed", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		client, callbackURL := testClient(t, tp)
		h, err := AuthCode(ctx, client, testSuccessFn, testFailFn)
		require.NoError(err)

		h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, callbackURL, nil))
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, callbackURL, nil))
		assert.Equal(http.StatusInternalServerError, w.Code)
		var got AuthenErrorResponse
		require.NoError(json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal("internal-callback-error", got.Error)
		assert.Contains(got.Description, oidc.ErrNotFound.Error())
	})
}
