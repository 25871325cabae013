// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
session is a package for owning the single authenticated OIDC session of a
process.

A Manager owns exactly one protocol client (an *oidc.Client unless
WithProtocolClient is used) and exactly one Router subscribed to its events.
Queries (IsAuthenticated, User, AccessToken) read the session record directly
from the configured store under oidc.UserStoreKey and never fail.  Commands
(SignIn, SignInCallback, SignOut) delegate to the protocol client and return
its errors.

A Manager is normally created once with New and passed to whatever needs it.
GetOrCreate keeps a process-wide Manager for hosts which can't do that; the
first configuration wins, see WithStrictConfig and Reset.
*/
package session
