// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for keeping an authenticated OIDC session on the client
side, using the authorization code flow with PKCE.

Primary types provided by the package

* Config: the immutable configuration of one session (authority, client id,
redirect URIs, scope, renew and monitoring settings) and the storage.Store the
session is persisted in.

* Client: drives the flow.  SigninRedirect navigates to the provider,
SigninRedirectCallback completes the flow, SigninSilent renews the tokens with
the refresh token and SignoutRedirect ends the session at the provider.

* User: the persisted session record (tokens, profile claims and expiry).  It
is stored under UserStoreKey(authority, clientID).

* Events: the Client's ordered event stream (UserLoaded, UserUnloaded,
AccessTokenExpiring, UserSignedOut, ...).

* Navigator: sends the user's browser to a URL.  A CLI opens a browser, a web
server issues a redirect.

* Alg: represents asymmetric signing algorithms

The oidc/callback package

The callback package includes the ability to create a http.HandlerFunc which
can be used for the 3rd leg of the flow where the authorization code is
exchanged for tokens.

Testing

StartTestProvider runs a local provider which supports everything the Client
uses; see its setters for the error states it can be forced into.
*/
package oidc
