// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/fcid/fcauth/storage"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
)

// Client is the OIDC protocol client for a single session: it drives the
// authorization code flow (with PKCE) through redirects, persists the
// resulting User in the configured store, keeps it fresh and raises session
// Events.
type Client struct {
	config    *Config
	store     storage.Store
	navigator Navigator
	logger    hclog.Logger
	clock     clockwork.Clock
	events    *Events
	client    *http.Client

	mu       sync.Mutex
	provider *oidc.Provider
	metadata providerMetadata

	timer    *accessTokenTimer
	monitor  *sessionMonitor
	renewing atomic.Bool

	// backgroundCtx is the context used by the client for background
	// activities like: token timers, silent renew and session monitoring.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// providerMetadata holds the discovery fields go-oidc doesn't expose.
type providerMetadata struct {
	UserInfoURL   string `json:"userinfo_endpoint"`
	EndSessionURL string `json:"end_session_endpoint"`
	RevocationURL string `json:"revocation_endpoint"`
}

// NewClient creates a Client.  No request is made to the provider until
// the first operation that needs its metadata.
//
// Supported options:
//
//	WithNavigator
//	WithLogger
//	WithClock
//
// See Client.Done() which must be called to release the client's resources.
func NewClient(c *Config, opt ...Option) (*Client, error) {
	const op = "NewClient"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	opts := getClientOpts(opt...)

	httpClient, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := &Client{
		config:              c,
		store:               c.UserStore,
		navigator:           opts.withNavigator,
		logger:              opts.withLogger.Named("oidc"),
		clock:               opts.withClock,
		events:              NewEvents(),
		client:              httpClient,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}
	cl.timer = newAccessTokenTimer(ctx, cl.events, cl.clock, c.AccessTokenExpiringNotificationTime)
	if c.MonitorSession {
		cl.monitor = newSessionMonitor(ctx, cl, c.CheckSessionInterval)
	}
	if c.AutomaticSilentRenew {
		cl.events.Subscribe(cl.silentRenew)
	}
	return cl, nil
}

// Done with the client's background resources and must be called for every
// Client created
func (c *Client) Done() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backgroundCtxCancel != nil {
		c.timer.unload()
		if c.monitor != nil {
			c.monitor.stop()
		}
		c.backgroundCtxCancel()
		c.backgroundCtxCancel = nil
	}
}

// Config returns the client's configuration.
func (c *Client) Config() *Config { return c.config }

// Events returns the client's event stream.
func (c *Client) Events() *Events { return c.events }

// discover returns the provider, fetching its discovery document the first
// time it is needed.
func (c *Client) discover(ctx context.Context) (*oidc.Provider, providerMetadata, error) {
	const op = "Client.discover"
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider != nil {
		return c.provider, c.metadata, nil
	}
	p, err := oidc.NewProvider(HTTPClientContext(ctx, c.client), c.config.Authority) // makes http req to issuer for discovery
	if err != nil {
		return nil, providerMetadata{}, fmt.Errorf("%s: %w: %s", op, ErrDiscoveryFailed, err)
	}
	var md providerMetadata
	if err := p.Claims(&md); err != nil {
		return nil, providerMetadata{}, fmt.Errorf("%s: unable to read provider metadata: %w: %s", op, ErrDiscoveryFailed, err)
	}
	c.provider, c.metadata = p, md
	c.logger.Debug("discovered provider", "authority", c.config.Authority)
	return p, md, nil
}

func (c *Client) oauth2Config(p *oidc.Provider) *oauth2.Config {
	ep := p.Endpoint()
	// public client: client_id goes in the request body, there's no secret
	ep.AuthStyle = oauth2.AuthStyleInParams
	return &oauth2.Config{
		ClientID:    c.config.ClientID,
		RedirectURL: c.config.RedirectURI,
		Endpoint:    ep,
		Scopes:      c.config.Scopes(),
	}
}

// SigninRedirect starts an authorization code flow: it persists a new
// sign-in state and navigates to the provider's authorization endpoint.  It
// returns once the navigation has started.
func (c *Client) SigninRedirect(ctx context.Context) error {
	const op = "Client.SigninRedirect"
	if c.config.ClientID == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrConfigurationIncomplete)
	}
	p, _, err := c.discover(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.ClearStaleState(ctx); err != nil {
		c.logger.Warn("unable to clear stale sign-in state", "error", err)
	}

	s, err := newSigninState(c.config, c.clock.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	raw, err := s.toStorageString()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.store.Set(ctx, StateStoreKey(s.ID), raw); err != nil {
		return fmt.Errorf("%s: unable to store sign-in state: %w", op, err)
	}

	authURL := c.oauth2Config(p).AuthCodeURL(s.ID,
		oidc.Nonce(s.Nonce),
		oauth2.S256ChallengeOption(s.CodeVerifier),
	)
	c.logger.Debug("navigating to authorization endpoint", "state", s.ID)
	if err := c.navigator.Navigate(ctx, authURL); err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrNavigationFailed, err)
	}
	return nil
}

// SigninRedirectCallback completes the flow started by SigninRedirect.  The
// callbackURL is the URL the provider redirected the user to; its query
// carries the "code" and "state" (or "error") parameters.
//
// On success the User is stored and UserLoaded is raised.  A provider error
// response is returned as an *AuthError.
func (c *Client) SigninRedirectCallback(ctx context.Context, callbackURL string) (*User, error) {
	const op = "Client.SigninRedirectCallback"
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("%s: callback url is invalid: %w", op, ErrInvalidParameter)
	}
	params := u.Query()
	if len(params) == 0 && u.Fragment != "" {
		params, _ = url.ParseQuery(u.Fragment)
	}
	stateID := params.Get("state")
	if stateID == "" {
		return nil, fmt.Errorf("%s: no state in response: %w", op, ErrResponseStateInvalid)
	}

	s, err := c.takeState(ctx, stateID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if code := params.Get("error"); code != "" {
		return nil, fmt.Errorf("%s: %w", op, &AuthError{
			Code:        code,
			Description: params.Get("error_description"),
			Uri:         params.Get("error_uri"),
			State:       stateID,
		})
	}
	if s.isStale(c.clock.Now(), c.config.StaleStateAge) {
		return nil, fmt.Errorf("%s: sign-in state is expired: %w", op, ErrExpiredState)
	}
	if s.Authority != c.config.Authority || s.ClientID != c.config.ClientID {
		return nil, fmt.Errorf("%s: sign-in state belongs to another client: %w", op, ErrResponseStateInvalid)
	}
	code := params.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%s: no code in response: %w", op, ErrInvalidParameter)
	}

	p, md, err := c.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	oauth2Config := c.oauth2Config(p)
	oauth2Config.RedirectURL = s.RedirectURI
	tk, err := oauth2Config.Exchange(HTTPClientContext(ctx, c.client), code, oauth2.VerifierOption(s.CodeVerifier))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, err)
	}

	user, err := c.userFromToken(ctx, p, md, tk, s.Nonce, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.SessionState = params.Get("session_state")
	if err := c.StoreUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("user signed in", "sub", user.Subject())
	c.load(ctx, user, true)
	return user, nil
}

// takeState reads and removes the sign-in state for stateID.  A state is
// only ever usable once.
func (c *Client) takeState(ctx context.Context, stateID string) (*signinState, error) {
	const op = "Client.takeState"
	key := StateStoreKey(stateID)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: no matching state found in storage: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: unable to read state: %w", op, err)
	}
	if err := c.store.Remove(ctx, key); err != nil {
		c.logger.Warn("unable to remove sign-in state", "state", stateID, "error", err)
	}
	s, err := signinStateFromStorageString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s.ID != stateID {
		return nil, fmt.Errorf("%s: stored state does not match response state: %w", op, ErrResponseStateInvalid)
	}
	return s, nil
}

// ClearStaleState removes every sign-in state older than the configured
// StaleStateAge, along with any that can't be parsed.
func (c *Client) ClearStaleState(ctx context.Context) error {
	const op = "Client.ClearStaleState"
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("%s: unable to list keys: %w", op, err)
	}
	now := c.clock.Now()
	var result *multierror.Error
	for _, k := range keys {
		if !strings.HasPrefix(k, stateStoreKeyPrefix) || strings.HasPrefix(k, userStoreKeyPrefix) {
			continue
		}
		raw, err := c.store.Get(ctx, k)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			continue
		case err != nil:
			result = multierror.Append(result, err)
			continue
		}
		if s, err := signinStateFromStorageString(raw); err == nil && !s.isStale(now, c.config.StaleStateAge) {
			continue
		}
		c.logger.Debug("removing stale sign-in state", "key", k)
		if err := c.store.Remove(ctx, k); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// userFromToken builds a User from a token response.  When previous is set
// the response is a refresh: the subject must not change and anything the
// response omits is carried over.
func (c *Client) userFromToken(ctx context.Context, p *oidc.Provider, md providerMetadata, tk *oauth2.Token, nonce string, previous *User) (*User, error) {
	const op = "Client.userFromToken"
	profile := map[string]interface{}{}
	if previous != nil {
		for k, v := range previous.Profile {
			profile[k] = v
		}
	}

	rawIDToken, _ := tk.Extra("id_token").(string)
	switch {
	case rawIDToken == "" && previous == nil:
		return nil, fmt.Errorf("%s: id_token is missing from token response: %w", op, ErrMissingIdToken)
	case rawIDToken == "":
		rawIDToken = string(previous.IDToken)
	default:
		claims, err := c.verifyIDToken(ctx, p, rawIDToken, nonce)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if previous != nil && previous.Subject() != "" && claims["sub"] != previous.Subject() {
			return nil, fmt.Errorf("%s: renewed id_token is for another subject: %w", op, ErrInvalidSubject)
		}
		for k, v := range claims {
			profile[k] = v
		}
	}

	if previous == nil && c.config.LoadUserInfo && md.UserInfoURL != "" {
		info, err := p.UserInfo(HTTPClientContext(ctx, c.client), oauth2.StaticTokenSource(tk))
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrUserInfoFailed, err)
		}
		if info.Subject != profile["sub"] {
			return nil, fmt.Errorf("%s: userinfo subject does not match id_token: %w", op, ErrInvalidSubject)
		}
		var infoClaims map[string]interface{}
		if err := info.Claims(&infoClaims); err != nil {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrUserInfoFailed, err)
		}
		for k, v := range infoClaims {
			profile[k] = v
		}
	}

	user := &User{
		IDToken:      IdToken(rawIDToken),
		AccessToken:  AccessToken(tk.AccessToken),
		RefreshToken: RefreshToken(tk.RefreshToken),
		TokenType:    tk.Type(),
		Scope:        c.config.Scope,
		Profile:      profile,
	}
	if scope, ok := tk.Extra("scope").(string); ok && scope != "" {
		user.Scope = scope
	}
	if user.RefreshToken == "" && previous != nil {
		user.RefreshToken = previous.RefreshToken
	}
	switch {
	case tk.ExpiresIn > 0:
		user.ExpiresAt = c.clock.Now().Add(time.Duration(tk.ExpiresIn) * time.Second).Unix()
	case !tk.Expiry.IsZero():
		user.ExpiresAt = tk.Expiry.Unix()
	}
	return user, nil
}

// verifyIDToken verifies the id_token's signature, issuer, audience and
// expiry and, when nonce is not empty, its nonce.  It returns the claims.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (c *Client) verifyIDToken(ctx context.Context, p *oidc.Provider, raw string, nonce string) (map[string]interface{}, error) {
	const op = "Client.verifyIDToken"
	algs := make([]string, 0, len(c.config.SupportedSigningAlgs))
	for _, a := range c.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	verifier := p.Verifier(&oidc.Config{
		ClientID:             c.config.ClientID,
		SupportedSigningAlgs: algs,
		Now:                  c.clock.Now,
	})
	idt, err := verifier.Verify(HTTPClientContext(ctx, c.client), raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrIdTokenVerificationFailed, err)
	}
	if nonce != "" && idt.Nonce != nonce {
		return nil, fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}
	var claims map[string]interface{}
	if err := idt.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to read id_token claims: %w", op, err)
	}
	return claims, nil
}

// SigninSilent renews the stored User with its refresh token, without any
// navigation.  On success the renewed User is stored and UserLoaded is
// raised.
func (c *Client) SigninSilent(ctx context.Context) (*User, error) {
	const op = "Client.SigninSilent"
	user, err := c.GetUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user.RefreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoRefreshToken)
	}
	p, md, err := c.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ts := c.oauth2Config(p).TokenSource(HTTPClientContext(ctx, c.client), &oauth2.Token{
		RefreshToken: string(user.RefreshToken),
	})
	tk, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to refresh token: %w", op, err)
	}
	renewed, err := c.userFromToken(ctx, p, md, tk, "", user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	renewed.SessionState = user.SessionState
	if err := c.StoreUser(ctx, renewed); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("user renewed", "sub", renewed.Subject())
	c.load(ctx, renewed, true)
	return renewed, nil
}

// silentRenew is subscribed to the client's events when
// AutomaticSilentRenew is set.  Only one renew runs at a time.
func (c *Client) silentRenew(_ context.Context, e Event) {
	if e.Kind != AccessTokenExpiring {
		return
	}
	if !c.renewing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.renewing.Store(false)
		ctx := c.backgroundCtx
		if _, err := c.SigninSilent(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("silent renew failed", "error", err)
			c.events.Raise(ctx, Event{Kind: SilentRenewError, Err: err})
		}
	}()
}

// SignoutRedirect removes the stored User (raising UserUnloaded), revokes its
// access token when RevokeAccessTokenOnSignout is set and navigates to the
// provider's end session endpoint.  It returns once the navigation has
// started.
func (c *Client) SignoutRedirect(ctx context.Context) error {
	const op = "Client.SignoutRedirect"
	_, md, err := c.discover(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	user, err := c.GetUser(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("signing out without a readable user", "error", err)
		}
		user = nil
	}
	if err := c.RemoveUser(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if c.config.RevokeAccessTokenOnSignout && user != nil && md.RevocationURL != "" {
		if err := c.revoke(ctx, md.RevocationURL, user.AccessToken); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if md.EndSessionURL == "" {
		return fmt.Errorf("%s: %w", op, ErrNoEndSessionEndpoint)
	}
	endSession, err := url.Parse(md.EndSessionURL)
	if err != nil {
		return fmt.Errorf("%s: end_session_endpoint is invalid: %w", op, ErrInvalidParameter)
	}
	q := endSession.Query()
	if user != nil && user.IDToken != "" {
		q.Set("id_token_hint", string(user.IDToken))
	}
	if c.config.PostLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", c.config.PostLogoutRedirectURI)
	}
	q.Set("client_id", c.config.ClientID)
	endSession.RawQuery = q.Encode()

	c.logger.Debug("navigating to end session endpoint")
	if err := c.navigator.Navigate(ctx, endSession.String()); err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrNavigationFailed, err)
	}
	return nil
}

// revoke revokes an access token.  See: https://tools.ietf.org/html/rfc7009
func (c *Client) revoke(ctx context.Context, endpoint string, token AccessToken) error {
	const op = "Client.revoke"
	form := url.Values{
		"token":           {string(token)},
		"token_type_hint": {"access_token"},
		"client_id":       {c.config.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrRevocationFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrRevocationFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: provider responded %s: %w", op, resp.Status, ErrRevocationFailed)
	}
	return nil
}

// GetUser reads the stored User.  A missing record is an error wrapping
// storage.ErrNotFound; an unreadable one wraps ErrCorruptRecord.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	const op = "Client.GetUser"
	raw, err := c.store.Get(ctx, c.config.UserStoreKey())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	u, err := UserFromStorageString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// StoreUser writes the User under the configuration's UserStoreKey.  It
// raises no event.
func (c *Client) StoreUser(ctx context.Context, u *User) error {
	const op = "Client.StoreUser"
	raw, err := u.ToStorageString()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.store.Set(ctx, c.config.UserStoreKey(), raw); err != nil {
		return fmt.Errorf("%s: unable to store user: %w", op, err)
	}
	return nil
}

// RemoveUser deletes the stored User, stops its timers and monitoring and
// raises UserUnloaded.
func (c *Client) RemoveUser(ctx context.Context) error {
	const op = "Client.RemoveUser"
	if err := c.store.Remove(ctx, c.config.UserStoreKey()); err != nil {
		return fmt.Errorf("%s: unable to remove user: %w", op, err)
	}
	c.timer.unload()
	if c.monitor != nil {
		c.monitor.stop()
	}
	c.logger.Debug("user unloaded")
	c.events.Raise(ctx, Event{Kind: UserUnloaded})
	return nil
}

// Resume arms the token timers and the session monitor for a User already
// in the store, for example one stored by a previous process.  It raises no
// event.  A missing User is not an error.
func (c *Client) Resume(ctx context.Context) error {
	const op = "Client.Resume"
	user, err := c.GetUser(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}
	c.load(ctx, user, false)
	return nil
}

func (c *Client) load(ctx context.Context, u *User, raise bool) {
	c.timer.load(u)
	if c.monitor != nil {
		c.monitor.start(u)
	}
	if raise {
		c.events.Raise(ctx, Event{Kind: UserLoaded, User: u})
	}
}

// clientOptions is the set of available options for a Client
type clientOptions struct {
	withNavigator Navigator
	withLogger    hclog.Logger
	withClock     clockwork.Clock
}

// clientDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func clientDefaults() clientOptions {
	return clientOptions{
		withNavigator: noNavigator{},
		withLogger:    hclog.NewNullLogger(),
		withClock:     clockwork.NewRealClock(),
	}
}

// getClientOpts gets the defaults and applies the opt overrides passed in.
func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
