// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"sync"
	"testing"

	"github.com/fcid/fcauth/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

// fakeClient is a ProtocolClient which records calls and, like
// *oidc.Client, removes the record and raises UserUnloaded on sign-out.
type fakeClient struct {
	config *oidc.Config
	events *oidc.Events

	mu           sync.Mutex
	signIns      int
	signOuts     int
	resumes      int
	done         int
	callbackUser *oidc.User
	callbackErr  error
	signInErr    error
	resumeErr    error
}

func newFakeClient(c *oidc.Config) *fakeClient {
	return &fakeClient{config: c, events: oidc.NewEvents()}
}

func (f *fakeClient) SigninRedirect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signIns++
	return f.signInErr
}

func (f *fakeClient) SigninRedirectCallback(context.Context, string) (*oidc.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callbackUser, f.callbackErr
}

func (f *fakeClient) SignoutRedirect(ctx context.Context) error {
	f.mu.Lock()
	f.signOuts++
	f.mu.Unlock()
	if err := f.config.UserStore.Remove(ctx, f.config.UserStoreKey()); err != nil {
		return err
	}
	f.events.Raise(ctx, oidc.Event{Kind: oidc.UserUnloaded})
	return nil
}

func (f *fakeClient) Resume(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return f.resumeErr
}

func (f *fakeClient) Events() *oidc.Events { return f.events }

func (f *fakeClient) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done++
}

func (f *fakeClient) counts() (signIns, signOuts, resumes, done int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signIns, f.signOuts, f.resumes, f.done
}

func testConfig(t *testing.T, clientID string, opt ...oidc.Option) *oidc.Config {
	t.Helper()
	opt = append([]oidc.Option{oidc.WithAuthority("https://idp.example/realm")}, opt...)
	c, err := oidc.NewConfig("https://app.example", clientID, opt...)
	require.NoError(t, err)
	return c
}

func testLogger(t *testing.T) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{Name: t.Name(), Level: hclog.Trace})
}

// storeUser writes a session record directly, as another process would.
func storeUser(t *testing.T, c *oidc.Config, u *oidc.User) {
	t.Helper()
	raw, err := u.ToStorageString()
	require.NoError(t, err)
	require.NoError(t, c.UserStore.Set(context.Background(), c.UserStoreKey(), raw))
}

// forcedSignOutCounter returns a ForcedSignOutFunc and a func reporting how
// many times it ran.
func forcedSignOutCounter() (ForcedSignOutFunc, func() int) {
	var mu sync.Mutex
	n := 0
	return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			n++
			return nil
		}, func() int {
			mu.Lock()
			defer mu.Unlock()
			return n
		}
}
