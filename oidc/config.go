// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/fcid/fcauth/oidc/internal/strutils"
	"github.com/fcid/fcauth/storage"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultAuthority is the identity provider used when none is configured.
	DefaultAuthority = "https://sso.chinambse.com/realms/FC-Applications"

	// DefaultRedirectPath is appended to the host origin to build the
	// default redirect URI.
	DefaultRedirectPath = "/fcid-callback"

	// DefaultScope is requested when no scope is configured.
	DefaultScope = "openid profile email"

	// ResponseTypeCode is the only supported response type: the
	// authorization code flow.
	ResponseTypeCode = "code"

	// DefaultCheckSessionInterval is how often the session monitor polls the
	// provider.
	DefaultCheckSessionInterval = 2 * time.Second

	// DefaultAccessTokenExpiringNotificationTime is how long before the
	// access token expires that AccessTokenExpiring is raised.
	DefaultAccessTokenExpiringNotificationTime = 60 * time.Second

	// DefaultStaleStateAge is how long an unfinished sign-in state is kept.
	DefaultStaleStateAge = 900 * time.Second
)

// Config represents the configuration of a single authenticated session
// against an OIDC provider using the authorization code flow with PKCE.
//
// A Config is immutable once created; see NewConfig.
type Config struct {
	// Authority is the provider's issuer URL, used for discovery.
	Authority string

	// ClientID is the relying party id.  An empty ClientID is accepted, but
	// a sign-in will fail with ErrConfigurationIncomplete.
	ClientID string

	// RedirectURI is where the provider sends the user after
	// authentication.
	RedirectURI string

	// PostLogoutRedirectURI is where the provider sends the user after
	// signing out.
	PostLogoutRedirectURI string

	// ResponseType is always "code"
	ResponseType string

	// Scope is a space separated list of scopes.  The required "openid"
	// scope is always requested.
	Scope string

	// AutomaticSilentRenew renews the access token with the refresh token
	// when it is about to expire.
	AutomaticSilentRenew bool

	// RevokeAccessTokenOnSignout revokes the access token at the provider
	// during sign-out.
	RevokeAccessTokenOnSignout bool

	// MonitorSession polls the provider to detect sign-outs and session
	// changes made outside this process.
	MonitorSession bool

	// CheckSessionInterval is the session monitor's polling interval.
	CheckSessionInterval time.Duration

	// AccessTokenExpiringNotificationTime is how long before expiry the
	// AccessTokenExpiring event is raised.
	AccessTokenExpiringNotificationTime time.Duration

	// StaleStateAge is how long an unfinished sign-in state stays valid.
	StaleStateAge time.Duration

	// LoadUserInfo merges the userinfo endpoint's claims into the user's
	// profile after sign-in.
	LoadUserInfo bool

	// SupportedSigningAlgs is a list of supported id_token signing
	// algorithms.
	SupportedSigningAlgs []Alg

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// UserStore persists the session record and in-flight sign-in state.
	UserStore storage.Store
}

// NewConfig composes a new Config by overlaying the options on the
// defaults.  The origin is the host's origin (scheme://host[:port]) and is
// used to derive the default redirect URIs.
//
// Supported options:
//
//	WithAuthority
//	WithRedirectURI
//	WithPostLogoutRedirectURI
//	WithScope
//	WithAutomaticSilentRenew
//	WithRevokeAccessTokenOnSignout
//	WithMonitorSession
//	WithCheckSessionInterval
//	WithAccessTokenExpiringNotificationTime
//	WithStaleStateAge
//	WithLoadUserInfo
//	WithSupportedSigningAlgs
//	WithProviderCA
//	WithUserStore
func NewConfig(origin string, clientID string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	origin = strings.TrimSuffix(origin, "/")
	opts := getConfigOpts(origin, opt...)
	c := &Config{
		Authority:                           opts.withAuthority,
		ClientID:                            clientID,
		RedirectURI:                         opts.withRedirectURI,
		PostLogoutRedirectURI:               opts.withPostLogoutRedirectURI,
		ResponseType:                        ResponseTypeCode,
		Scope:                               opts.withScope,
		AutomaticSilentRenew:                opts.withAutomaticSilentRenew,
		RevokeAccessTokenOnSignout:          opts.withRevokeAccessTokenOnSignout,
		MonitorSession:                      opts.withMonitorSession,
		CheckSessionInterval:                opts.withCheckSessionInterval,
		AccessTokenExpiringNotificationTime: opts.withAccessTokenExpiringNotificationTime,
		StaleStateAge:                       opts.withStaleStateAge,
		LoadUserInfo:                        opts.withLoadUserInfo,
		SupportedSigningAlgs:                opts.withSupportedSigningAlgs,
		ProviderCA:                          opts.withProviderCA,
		UserStore:                           opts.withUserStore,
	}
	if c.UserStore == nil {
		c.UserStore = storage.NewMemory()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the configuration.  Every problem found is reported.  It
// verifies the URIs are well formed, but it doesn't verify the Authority is
// discoverable via an http request.  An empty ClientID is not a validation
// error.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if err := validateURL("authority", c.Authority); err != nil {
		result = multierror.Append(result, err)
	}
	if err := validateURL("redirect URI", c.RedirectURI); err != nil {
		result = multierror.Append(result, err)
	}
	if c.PostLogoutRedirectURI != "" {
		if err := validateURL("post logout redirect URI", c.PostLogoutRedirectURI); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.ResponseType != ResponseTypeCode {
		result = multierror.Append(result, fmt.Errorf("unsupported response type %q: %w", c.ResponseType, ErrInvalidParameter))
	}
	if c.CheckSessionInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("check session interval must be positive: %w", ErrInvalidParameter))
	}
	if c.AccessTokenExpiringNotificationTime < 0 {
		result = multierror.Append(result, fmt.Errorf("access token expiring notification time is negative: %w", ErrInvalidParameter))
	}
	if c.StaleStateAge <= 0 {
		result = multierror.Append(result, fmt.Errorf("stale state age must be positive: %w", ErrInvalidParameter))
	}
	if len(c.SupportedSigningAlgs) == 0 {
		result = multierror.Append(result, fmt.Errorf("supported algorithms is empty: %w", ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			result = multierror.Append(result, fmt.Errorf("unsupported algorithm %s: %w", a, ErrInvalidParameter))
		}
	}
	if c.UserStore == nil {
		result = multierror.Append(result, fmt.Errorf("user store is nil: %w", ErrNilParameter))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is empty: %w", name, ErrInvalidParameter)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %s is invalid: %w", name, raw, ErrInvalidParameter)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) || u.Host == "" {
		return fmt.Errorf("%s %s is not an absolute http or https URL: %w", name, raw, ErrInvalidParameter)
	}
	return nil
}

// UserStoreKey returns the key the session record is stored under for
// this configuration.
func (c *Config) UserStoreKey() string {
	return UserStoreKey(c.Authority, c.ClientID)
}

// Scopes returns the configured scopes, always including "openid" first.
func (c *Config) Scopes() []string {
	scopes := append([]string{oidc.ScopeOpenID}, strings.Fields(c.Scope)...)
	return strutils.RemoveDuplicatesStable(scopes, false)
}

// Equal reports whether both configurations address the same session the
// same way: same record key, redirect URIs, scope and store.
func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.UserStoreKey() == other.UserStoreKey() &&
		c.RedirectURI == other.RedirectURI &&
		c.PostLogoutRedirectURI == other.PostLogoutRedirectURI &&
		c.Scope == other.Scope &&
		c.UserStore == other.UserStore
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value successfully: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}
	return &http.Client{
		Transport: tr,
	}, nil
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// configOptions is the set of available options
type configOptions struct {
	withAuthority                           string
	withRedirectURI                         string
	withPostLogoutRedirectURI               string
	withScope                               string
	withAutomaticSilentRenew                bool
	withRevokeAccessTokenOnSignout          bool
	withMonitorSession                      bool
	withCheckSessionInterval                time.Duration
	withAccessTokenExpiringNotificationTime time.Duration
	withStaleStateAge                       time.Duration
	withLoadUserInfo                        bool
	withSupportedSigningAlgs                []Alg
	withProviderCA                          string
	withUserStore                           storage.Store
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults(origin string) configOptions {
	return configOptions{
		withAuthority:                           DefaultAuthority,
		withRedirectURI:                         origin + DefaultRedirectPath,
		withPostLogoutRedirectURI:               origin,
		withScope:                               DefaultScope,
		withAutomaticSilentRenew:                true,
		withRevokeAccessTokenOnSignout:          true,
		withMonitorSession:                      true,
		withCheckSessionInterval:                DefaultCheckSessionInterval,
		withAccessTokenExpiringNotificationTime: DefaultAccessTokenExpiringNotificationTime,
		withStaleStateAge:                       DefaultStaleStateAge,
		withLoadUserInfo:                        true,
		withSupportedSigningAlgs:                []Alg{RS256},
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(origin string, opt ...Option) configOptions {
	opts := configDefaults(origin)
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAuthority overrides the default authority.  An empty value keeps the
// default.
func WithAuthority(authority string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && authority != "" {
			o.withAuthority = authority
		}
	}
}

// WithRedirectURI overrides the default redirect URI.  An empty value keeps
// the default.
func WithRedirectURI(uri string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && uri != "" {
			o.withRedirectURI = uri
		}
	}
}

// WithPostLogoutRedirectURI overrides the default post logout redirect URI.
// An empty value keeps the default.
func WithPostLogoutRedirectURI(uri string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && uri != "" {
			o.withPostLogoutRedirectURI = uri
		}
	}
}

// WithScope overrides the default space separated scope.
func WithScope(scope string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && scope != "" {
			o.withScope = scope
		}
	}
}

// WithAutomaticSilentRenew enables or disables silent renew.
func WithAutomaticSilentRenew(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAutomaticSilentRenew = enabled
		}
	}
}

// WithRevokeAccessTokenOnSignout enables or disables access token
// revocation during sign-out.
func WithRevokeAccessTokenOnSignout(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRevokeAccessTokenOnSignout = enabled
		}
	}
}

// WithMonitorSession enables or disables the session monitor.
func WithMonitorSession(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withMonitorSession = enabled
		}
	}
}

// WithCheckSessionInterval sets the session monitor's polling interval.
func WithCheckSessionInterval(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withCheckSessionInterval = d
		}
	}
}

// WithAccessTokenExpiringNotificationTime sets how long before expiry the
// AccessTokenExpiring event is raised.
func WithAccessTokenExpiringNotificationTime(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAccessTokenExpiringNotificationTime = d
		}
	}
}

// WithStaleStateAge sets how long an unfinished sign-in remains valid.
func WithStaleStateAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withStaleStateAge = d
		}
	}
}

// WithLoadUserInfo enables or disables merging userinfo claims.
func WithLoadUserInfo(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLoadUserInfo = enabled
		}
	}
}

// WithSupportedSigningAlgs sets the accepted id_token signing algorithms.
func WithSupportedSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSupportedSigningAlgs = algs
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithUserStore provides the store used for the session record.
func WithUserStore(s storage.Store) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withUserStore = s
		}
	}
}
