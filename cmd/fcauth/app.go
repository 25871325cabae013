// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/fcid/fcauth/oidc"
	"github.com/fcid/fcauth/oidc/callback"
	"github.com/fcid/fcauth/session"
	"github.com/fcid/fcauth/storage"
	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
)

// errNotAuthenticated is returned by commands which need a session once
// they've told the user there isn't one.
var errNotAuthenticated = errors.New("not authenticated")

var commands = []string{"login", "status", "token", "logout"}

func isCommand(name string) bool {
	for _, c := range commands {
		if c == name {
			return true
		}
	}
	return false
}

type app struct {
	cfg       *config
	logger    hclog.Logger
	out       io.Writer
	errOut    io.Writer
	navigator oidc.Navigator
	clock     clockwork.Clock
}

func (a *app) run(ctx context.Context, name string) error {
	store, err := openStore(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := a.newManager(ctx, store)
	if err != nil {
		return err
	}
	defer m.Close()

	switch name {
	case "login":
		return a.login(ctx, m)
	case "status":
		return a.status(ctx, m)
	case "token":
		return a.token(ctx, m)
	case "logout":
		return a.logout(ctx, m)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (a *app) newManager(ctx context.Context, store storage.Store) (*session.Manager, error) {
	c, err := a.cfg.oidcConfig(store)
	if err != nil {
		return nil, err
	}
	return session.New(ctx, c,
		session.WithLogger(a.logger),
		session.WithClock(a.clock),
		session.WithNavigator(a.navigator),
		session.WithForcedSignOut(func(context.Context) error {
			fmt.Fprintln(a.errOut, "Session ended.")
			return nil
		}),
	)
}

// login runs the authorization code flow: it serves the redirect URI on
// localhost and waits for the callback, ctrl-c or the login timeout.
func (a *app) login(ctx context.Context, m *session.Manager) error {
	const op = "login"
	loginCh, handler, err := callback.AuthCodeWithChannel(ctx, m, successResponse(a.errOut), failedResponse(a.errOut))
	if err != nil {
		return fmt.Errorf("%s: error creating auth code handler: %w", op, err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc(oidc.DefaultRedirectPath, handler)

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", a.cfg.Port))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	defer srv.Close()

	srvCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvCh <- err
		}
	}()

	if err := m.SignIn(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	select {
	case err := <-srvCh:
		return fmt.Errorf("%s: server closed with error: %w", op, err)
	case resp := <-loginCh:
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", op, resp.Error)
		}
		fmt.Fprintf(a.out, "Signed in as %s\n", displayName(resp.User))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: interrupted", op)
	case <-a.clock.After(a.cfg.LoginTimeout):
		return fmt.Errorf("%s: timed out waiting for response from provider", op)
	}
}

func (a *app) status(ctx context.Context, m *session.Manager) error {
	u := m.User(ctx)
	switch {
	case u == nil:
		fmt.Fprintln(a.out, "Not signed in")
		return errNotAuthenticated
	case !m.IsAuthenticated(ctx):
		fmt.Fprintf(a.out, "Session for %s has expired\n", displayName(u))
		return errNotAuthenticated
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", displayName(u))
	if in, ok := u.ExpiresIn(a.clock.Now()); ok {
		fmt.Fprintf(a.out, "Access token expires in %s\n", time.Duration(in)*time.Second)
	}
	if u.Scope != "" {
		fmt.Fprintf(a.out, "Scope: %s\n", u.Scope)
	}
	return nil
}

func (a *app) token(ctx context.Context, m *session.Manager) error {
	if !m.IsAuthenticated(ctx) {
		fmt.Fprintln(a.errOut, "Not signed in, or the session has expired. Run: fcauth login")
		return errNotAuthenticated
	}
	fmt.Fprintln(a.out, m.AccessToken(ctx))
	return nil
}

func (a *app) logout(ctx context.Context, m *session.Manager) error {
	const op = "logout"
	if m.User(ctx) == nil {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	err := m.SignOut(ctx)
	switch {
	case errors.Is(err, oidc.ErrNoEndSessionEndpoint):
		fmt.Fprintln(a.out, "Signed out locally; the provider has no end session endpoint")
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func displayName(u *oidc.User) string {
	if u == nil {
		return ""
	}
	for _, claim := range []string{"email", "preferred_username", "name"} {
		if v, ok := u.Profile[claim].(string); ok && v != "" {
			return v
		}
	}
	return u.Subject()
}
