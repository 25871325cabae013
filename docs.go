// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// fcauth provides a collection of related packages which keep a single
// authenticated OIDC session for a process: the protocol client (oidc), its
// callback handlers (oidc/callback), the session manager (session) and the
// stores the session record is kept in (storage).
//
// See cmd/fcauth for a command line host.
package fcauth
