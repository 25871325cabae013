// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fcid/fcauth/oidc/internal/strutils"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local provider which supports the authorization code
// flow with PKCE, refresh, revocation and end session, making it easy to
// drive a Client end to end in tests.  Its TLS certificate is self signed:
// configure clients with WithProviderCA(p.CACert()).
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string
	jwks       *jose.JSONWebKeySet

	mu                  sync.Mutex
	clientID            string
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}
	customClaims        map[string]interface{}
	expectedAuthCode    string
	expiresIn           time.Duration
	omitIDToken         bool
	omitRefreshToken    bool
	disableUserInfo     bool
	disableEndSession   bool
	sessionSignedOut    bool
	authError           string
	tokenError          string

	// per flow bookkeeping
	nonce         string
	codeChallenge string
	refreshToken  string
	accessTokens  []string
	revoked       []string
	endSessions   []url.Values

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// StartTestProvider creates and starts a disposable TestProvider.  It's
// stopped when the test completes.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:                t,
		clientID:         "test-client",
		replySubject:     "alice@example.com",
		expectedAuthCode: "test-auth-code",
		expiresIn:        5 * time.Minute,
		replyUserinfo: map[string]interface{}{
			"email":       "alice@example.com",
			"given_name":  "Alice",
			"family_name": "Example",
		},
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the provider's base URL, which is also its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http client which trusts the provider and doesn't
// follow redirects.
func (p *TestProvider) HTTPClient() *http.Client {
	c := p.httpServer.Client()
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// SetClientID sets the client id the provider accepts.  Defaults to
// "test-client".
func (p *TestProvider) SetClientID(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
}

// SetAllowedRedirectURIs restricts the redirect URIs the provider accepts.
// By default any redirect URI is accepted.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetReplySubject sets the "sub" of issued id_tokens and userinfo replies.
func (p *TestProvider) SetReplySubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetUserInfoReply sets the claims returned by the userinfo endpoint along
// with "sub".
func (p *TestProvider) SetUserInfoReply(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = claims
}

// SetCustomClaims adds claims to issued id_tokens.
func (p *TestProvider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// SetExpiresIn sets the lifetime of issued tokens.  Zero omits expires_in
// from token responses.
func (p *TestProvider) SetExpiresIn(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = d
}

// SetAuthError makes /auth redirect back with the error code.
func (p *TestProvider) SetAuthError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authError = code
}

// SetTokenError makes /token fail with the error code.
func (p *TestProvider) SetTokenError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenError = code
}

// OmitIDTokens forces an error state where the /token endpoint does not
// return an id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitRefreshTokens stops /token from issuing refresh tokens.
func (p *TestProvider) OmitRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = true
}

// DisableUserInfo makes the userinfo endpoint return 404 and omits it from
// the discovery document.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// DisableEndSession omits the end session endpoint from the discovery
// document.
func (p *TestProvider) DisableEndSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableEndSession = true
}

// SetSessionSignedOut makes the userinfo endpoint reject every token, as it
// does once the user signed out at the provider.
func (p *TestProvider) SetSessionSignedOut(signedOut bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionSignedOut = signedOut
}

// AccessTokens returns every access token issued, oldest first.
func (p *TestProvider) AccessTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.accessTokens...)
}

// RevokedTokens returns every token revoked, oldest first.
func (p *TestProvider) RevokedTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revoked...)
}

// EndSessions returns the query of every end session request, oldest first.
func (p *TestProvider) EndSessions() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.endSessions...)
}

// FollowAuthURL plays the user's browser: it requests authURL from the
// provider and returns the callback URL the provider redirects to.
func (p *TestProvider) FollowAuthURL(t *testing.T, authURL string) string {
	t.Helper()
	require := require.New(t)
	resp, err := p.HTTPClient().Get(authURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	loc := resp.Header.Get("Location")
	require.NotEmpty(loc)
	return loc
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	params := url.Values{
		"state": {qv.Get("state")},
		"error": {errorCode},
	}
	if errorMessage != "" {
		params.Set("error_description", errorMessage)
	}
	http.Redirect(w, req, withQuery(qv.Get("redirect_uri"), params), http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

func withQuery(raw string, params url.Values) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *TestProvider) redirectAllowed(uri string) bool {
	return len(p.allowedRedirectURIs) == 0 || strutils.StrListContains(p.allowedRedirectURIs, uri)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		reply := struct {
			Issuer             string   `json:"issuer"`
			AuthEndpoint       string   `json:"authorization_endpoint"`
			TokenEndpoint      string   `json:"token_endpoint"`
			JWKSURI            string   `json:"jwks_uri"`
			UserinfoEndpoint   string   `json:"userinfo_endpoint,omitempty"`
			EndSessionEndpoint string   `json:"end_session_endpoint,omitempty"`
			RevocationEndpoint string   `json:"revocation_endpoint"`
			SigningAlgs        []string `json:"id_token_signing_alg_values_supported"`
			ChallengeMethods   []string `json:"code_challenge_methods_supported"`
		}{
			Issuer:             p.Addr(),
			AuthEndpoint:       p.Addr() + "/auth",
			TokenEndpoint:      p.Addr() + "/token",
			JWKSURI:            p.Addr() + "/certs",
			UserinfoEndpoint:   p.Addr() + "/userinfo",
			EndSessionEndpoint: p.Addr() + "/logout",
			RevocationEndpoint: p.Addr() + "/revoke",
			SigningAlgs:        []string{string(ES256)},
			ChallengeMethods:   []string{"S256"},
		}
		if p.disableUserInfo {
			reply.UserinfoEndpoint = ""
		}
		if p.disableEndSession {
			reply.EndSessionEndpoint = ""
		}

		if err := p.writeJSON(w, &reply); err != nil {
			return
		}

	case "/auth":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		qv := req.URL.Query()

		if qv.Get("response_type") != "code" {
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		}
		if !strutils.StrListContains(strings.Fields(qv.Get("scope")), "openid") {
			p.writeAuthErrorResponse(w, req, "invalid_scope", "")
			return
		}
		if qv.Get("client_id") != p.clientID {
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
			return
		}
		if p.authError != "" {
			p.writeAuthErrorResponse(w, req, p.authError, "authentication failed")
			return
		}
		if qv.Get("state") == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		}
		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" || !p.redirectAllowed(redirectURI) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if qv.Get("code_challenge_method") != "S256" || qv.Get("code_challenge") == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "S256 code challenge required")
			return
		}
		p.nonce = qv.Get("nonce")
		p.codeChallenge = qv.Get("code_challenge")

		http.Redirect(w, req, withQuery(redirectURI, url.Values{
			"state":         {qv.Get("state")},
			"code":          {p.expectedAuthCode},
			"session_state": {"test-session-state"},
		}), http.StatusFound)

	case "/certs":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if err := p.writeJSON(w, p.jwks); err != nil {
			return
		}

	case "/token":
		if req.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if p.tokenError != "" {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, p.tokenError, "")
			return
		}
		if req.FormValue("client_id") != p.clientID {
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "unknown client")
			return
		}

		var nonce string
		switch req.FormValue("grant_type") {
		case "authorization_code":
			switch {
			case !p.redirectAllowed(req.FormValue("redirect_uri")):
				_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
				return
			case req.FormValue("code") != p.expectedAuthCode:
				_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
				return
			case s256Challenge(req.FormValue("code_verifier")) != p.codeChallenge:
				_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "code verifier does not match challenge")
				return
			}
			nonce = p.nonce
			p.codeChallenge = ""
		case "refresh_token":
			if p.refreshToken == "" || req.FormValue("refresh_token") != p.refreshToken {
				_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected refresh token")
				return
			}
		default:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "bad grant_type")
			return
		}

		now := time.Now()
		stdClaims := jwt.Claims{
			Subject:   p.replySubject,
			Issuer:    p.Addr(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			Expiry:    jwt.NewNumericDate(now.Add(p.expiresIn + time.Minute)),
			Audience:  jwt.Audience{p.clientID},
		}
		privateClaims := map[string]interface{}{}
		for k, v := range p.customClaims {
			privateClaims[k] = v
		}
		if nonce != "" {
			privateClaims["nonce"] = nonce
		}

		accessToken, err := NewID(WithPrefix("at"))
		require.NoError(p.t, err)
		p.accessTokens = append(p.accessTokens, accessToken)

		reply := struct {
			AccessToken  string `json:"access_token"`
			TokenType    string `json:"token_type"`
			IDToken      string `json:"id_token,omitempty"`
			RefreshToken string `json:"refresh_token,omitempty"`
			ExpiresIn    int64  `json:"expires_in,omitempty"`
			Scope        string `json:"scope"`
		}{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			IDToken:     TestSignJWT(p.t, p.ecdsaPrivateKey, stdClaims, privateClaims),
			ExpiresIn:   int64(p.expiresIn / time.Second),
			Scope:       DefaultScope,
		}
		if p.omitIDToken {
			reply.IDToken = ""
		}
		if !p.omitRefreshToken {
			rt, err := NewID(WithPrefix("rt"))
			require.NoError(p.t, err)
			p.refreshToken = rt
			reply.RefreshToken = rt
		}
		if err := p.writeJSON(w, &reply); err != nil {
			return
		}

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if p.sessionSignedOut || token == "" || !strutils.StrListContains(p.accessTokens, token) || strutils.StrListContains(p.revoked, token) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply := map[string]interface{}{"sub": p.replySubject}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		if err := p.writeJSON(w, reply); err != nil {
			return
		}

	case "/revoke":
		if req.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.revoked = append(p.revoked, req.FormValue("token"))
		w.WriteHeader(http.StatusOK)

	case "/logout":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.endSessions = append(p.endSessions, req.URL.Query())
		p.sessionSignedOut = true
		if to := req.URL.Query().Get("post_logout_redirect_uri"); to != "" {
			http.Redirect(w, req, to, http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func s256Challenge(verifier string) string {
	if verifier == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key: pub,
			},
		},
	}
}
