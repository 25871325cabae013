// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package fcauth_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fcid/fcauth/oidc"
	"github.com/fcid/fcauth/oidc/callback"
	"github.com/fcid/fcauth/session"
	"github.com/fcid/fcauth/storage/sqlite"
)

func Example_session() {
	ctx := context.Background()

	// Keep the session record in a sqlite database so it survives restarts
	store, err := sqlite.Open(ctx, "fcauth.db")
	if err != nil {
		// handle error
	}
	defer store.Close()

	// Create a new Config for the host's origin
	c, err := oidc.NewConfig(
		"http://localhost:8250",
		"your_client_id",
		oidc.WithAuthority("https://your-issuer.example/realm"),
		oidc.WithUserStore(store),
	)
	if err != nil {
		// handle error
	}

	// Create the session manager.  The navigator sends the user to the
	// provider; the forced sign-out callback runs whenever the session ends.
	m, err := session.New(ctx, c,
		session.WithNavigator(oidc.NavigatorFunc(func(_ context.Context, url string) error {
			fmt.Println("open url to kick-off authentication: ", url)
			return nil
		})),
		session.WithForcedSignOut(func(context.Context) error {
			fmt.Println("signed out")
			return nil
		}),
	)
	if err != nil {
		// handle error
	}
	defer m.Close()

	// Create a http.Handler for OIDC authentication response redirects
	callbackHandler, err := callback.AuthCode(ctx, m,
		func(state string, u *oidc.User, w http.ResponseWriter, req *http.Request) {
			fmt.Fprintf(w, "welcome %s", u.Subject())
		},
		func(state string, r *callback.AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	)
	if err != nil {
		// handle error
	}
	http.HandleFunc(oidc.DefaultRedirectPath, callbackHandler)

	if !m.IsAuthenticated(ctx) {
		if err := m.SignIn(ctx); err != nil {
			// handle error
		}
	}

	// Call an API with the session's access token
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.example/v1/me", nil)
	if err != nil {
		// handle error
	}
	req.Header.Set("Authorization", "Bearer "+m.AccessToken(ctx))
}
