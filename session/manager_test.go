// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fcid/fcauth/oidc"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	t.Run("nil-config", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := New(ctx, nil)
		require.Error(err)
		assert.Truef(errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
	})
	t.Run("invalid-config", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		c.CheckSessionInterval = 0
		_, err := New(ctx, c)
		require.Error(err)
		assert.Truef(errors.Is(err, oidc.ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", oidc.ErrInvalidParameter, err)
	})
	t.Run("resumes", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		fc := newFakeClient(c)
		m, err := New(ctx, c, WithProtocolClient(fc), WithLogger(testLogger(t)))
		require.NoError(err)
		defer m.Close()
		_, _, resumes, _ := fc.counts()
		assert.Equal(1, resumes)
		assert.Equal("oidc.user:https://idp.example/realm:app1", m.Key())
		assert.Equal(c, m.Config())
	})
	t.Run("resume-failure-is-logged", func(t *testing.T) {
		require := require.New(t)
		c := testConfig(t, "app1")
		fc := newFakeClient(c)
		fc.resumeErr = oidc.ErrCorruptRecord
		m, err := New(ctx, c, WithProtocolClient(fc))
		require.NoError(err)
		require.NoError(m.Close())
	})
	t.Run("default-client", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, err := New(ctx, testConfig(t, "app1"))
		require.NoError(err)
		defer m.Close()
		_, ok := m.client.(*oidc.Client)
		assert.True(ok)
		assert.True(m.ownsClient)
	})
}

func TestManager_Queries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stored-session", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		clock := clockwork.NewFakeClockAt(time.Now())
		c := testConfig(t, "app1")
		storeUser(t, c, &oidc.User{AccessToken: "tok123", ExpiresAt: clock.Now().Unix() + 3600})
		m, err := New(ctx, c, WithProtocolClient(newFakeClient(c)), WithClock(clock))
		require.NoError(err)
		defer m.Close()

		assert.True(m.IsAuthenticated(ctx))
		assert.Equal("tok123", m.AccessToken(ctx))
		require.NotNil(m.User(ctx))

		clock.Advance(3601 * time.Second)
		assert.False(m.IsAuthenticated(ctx))
		assert.Equal("tok123", m.AccessToken(ctx))
		assert.NotNil(m.User(ctx))
	})
	t.Run("unknown-expiry", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		storeUser(t, c, &oidc.User{AccessToken: "tok"})
		m, err := New(ctx, c, WithProtocolClient(newFakeClient(c)))
		require.NoError(err)
		defer m.Close()
		assert.True(m.IsAuthenticated(ctx))
	})
	t.Run("no-session", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		m, err := New(ctx, c, WithProtocolClient(newFakeClient(c)))
		require.NoError(err)
		defer m.Close()

		assert.False(m.IsAuthenticated(ctx))
		assert.Nil(m.User(ctx))
		assert.Equal("", m.AccessToken(ctx))
		_, err = m.LoadUser(ctx)
		require.Error(err)
		assert.Truef(errors.Is(err, ErrNoSession), "wanted \"%s\" but got \"%s\"", ErrNoSession, err)
	})
	t.Run("corrupt-record", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		require.NoError(c.UserStore.Set(ctx, c.UserStoreKey(), "{not json"))
		m, err := New(ctx, c, WithProtocolClient(newFakeClient(c)), WithLogger(testLogger(t)))
		require.NoError(err)
		defer m.Close()

		assert.False(m.IsAuthenticated(ctx))
		assert.Nil(m.User(ctx))
		assert.Equal("", m.AccessToken(ctx))
		_, err = m.LoadUser(ctx)
		require.Error(err)
		assert.Truef(errors.Is(err, oidc.ErrCorruptRecord), "wanted \"%s\" but got \"%s\"", oidc.ErrCorruptRecord, err)
		assert.False(errors.Is(err, ErrNoSession))
	})
	t.Run("other-session-key", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		other := testConfig(t, "app2", oidc.WithUserStore(c.UserStore))
		storeUser(t, other, &oidc.User{AccessToken: "tok"})
		m, err := New(ctx, c, WithProtocolClient(newFakeClient(c)))
		require.NoError(err)
		defer m.Close()
		assert.False(m.IsAuthenticated(ctx))
	})
}

func TestManager_Commands(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sign-in", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		fc := newFakeClient(c)
		m, err := New(ctx, c, WithProtocolClient(fc))
		require.NoError(err)
		defer m.Close()

		require.NoError(m.SignIn(ctx))
		fc.signInErr = oidc.ErrConfigurationIncomplete
		err = m.SignIn(ctx)
		require.Error(err)
		assert.Truef(errors.Is(err, oidc.ErrConfigurationIncomplete), "wanted \"%s\" but got \"%s\"", oidc.ErrConfigurationIncomplete, err)
		signIns, _, _, _ := fc.counts()
		assert.Equal(2, signIns)
	})
	t.Run("sign-in-callback", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		fc := newFakeClient(c)
		fc.callbackUser = &oidc.User{AccessToken: "tok"}
		m, err := New(ctx, c, WithProtocolClient(fc))
		require.NoError(err)
		defer m.Close()

		u, err := m.SignInCallback(ctx, "https://app.example/callback?code=c&state=s")
		require.NoError(err)
		assert.Equal(fc.callbackUser, u)

		fc.callbackUser, fc.callbackErr = nil, oidc.ErrExpiredState
		_, err = m.SignInCallback(ctx, "https://app.example/callback?code=c&state=s")
		require.Error(err)
		assert.Truef(errors.Is(err, ErrSignInCallbackFailed), "wanted \"%s\" but got \"%s\"", ErrSignInCallbackFailed, err)
		assert.Truef(errors.Is(err, oidc.ErrExpiredState), "wanted \"%s\" but got \"%s\"", oidc.ErrExpiredState, err)
	})
	t.Run("sign-out", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		storeUser(t, c, &oidc.User{AccessToken: "tok"})
		fc := newFakeClient(c)
		forced, forcedCount := forcedSignOutCounter()
		m, err := New(ctx, c, WithProtocolClient(fc), WithForcedSignOut(forced))
		require.NoError(err)
		defer m.Close()

		require.NoError(m.SignOut(ctx))
		assert.False(m.IsAuthenticated(ctx))
		assert.Equal(1, forcedCount())
	})
}

func TestManager_Events(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("signed-out-redirects-once", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		storeUser(t, c, &oidc.User{AccessToken: "tok"})
		fc := newFakeClient(c)
		forced, forcedCount := forcedSignOutCounter()
		m, err := New(ctx, c, WithProtocolClient(fc), WithForcedSignOut(forced))
		require.NoError(err)
		defer m.Close()

		fc.events.Raise(ctx, oidc.Event{Kind: oidc.UserSignedOut})
		_, signOuts, _, _ := fc.counts()
		assert.Equal(1, signOuts)
		assert.Equal(1, forcedCount())
		assert.False(m.IsAuthenticated(ctx))
	})
	t.Run("forced-sign-out-reenters-manager", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		storeUser(t, c, &oidc.User{AccessToken: "tok"})
		fc := newFakeClient(c)
		var m *Manager
		var sawAuthenticated *bool
		forced := func(ctx context.Context) error {
			b := m.IsAuthenticated(ctx)
			sawAuthenticated = &b
			return m.SignIn(ctx)
		}
		m, err := New(ctx, c, WithProtocolClient(fc), WithForcedSignOut(forced))
		require.NoError(err)
		defer m.Close()

		fc.events.Raise(ctx, oidc.Event{Kind: oidc.UserUnloaded})
		require.NotNil(sawAuthenticated)
		assert.True(*sawAuthenticated)
		signIns, _, _, _ := fc.counts()
		assert.Equal(1, signIns)
	})
	t.Run("close-unsubscribes", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "app1")
		fc := newFakeClient(c)
		m, err := New(ctx, c, WithProtocolClient(fc))
		require.NoError(err)
		require.NoError(m.Close())
		require.NoError(m.Close())

		fc.events.Raise(ctx, oidc.Event{Kind: oidc.UserSignedOut})
		_, signOuts, _, done := fc.counts()
		assert.Equal(0, signOuts)
		assert.Equal(0, done)
	})
}

func TestManager_ProviderSession(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	tp := oidc.StartTestProvider(t)
	c, err := oidc.NewConfig("https://app.example", "test-client",
		oidc.WithAuthority(tp.Addr()),
		oidc.WithProviderCA(tp.CACert()),
		oidc.WithSupportedSigningAlgs(oidc.ES256),
		oidc.WithMonitorSession(false),
		oidc.WithAutomaticSilentRenew(false),
	)
	require.NoError(err)
	nav := &oidc.TestNavigator{}
	forced, forcedCount := forcedSignOutCounter()
	m, err := New(ctx, c, WithNavigator(nav), WithForcedSignOut(forced), WithLogger(testLogger(t)))
	require.NoError(err)
	defer m.Close()
	assert.False(m.IsAuthenticated(ctx))

	require.NoError(m.SignIn(ctx))
	u, err := m.SignInCallback(ctx, tp.FollowAuthURL(t, nav.Last()))
	require.NoError(err)
	assert.Equal("alice@example.com", u.Subject())
	assert.True(m.IsAuthenticated(ctx))
	assert.Equal(string(u.AccessToken), m.AccessToken(ctx))

	require.NoError(m.SignOut(ctx))
	assert.False(m.IsAuthenticated(ctx))
	assert.Equal(1, forcedCount())
	assert.True(strings.HasPrefix(nav.Last(), tp.Addr()+"/logout"))
}
