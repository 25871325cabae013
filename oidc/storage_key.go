// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

const (
	// userStoreKeyPrefix prefixes the key of every stored session record.
	userStoreKeyPrefix = "oidc.user:"

	// stateStoreKeyPrefix prefixes the key of every in-flight sign-in state.
	stateStoreKeyPrefix = "oidc."
)

// UserStoreKey returns the key a session record for the authority and
// client id is stored under: "oidc.user:{authority}:{client_id}".
//
// Both the Client (which writes the record) and anything reading the record
// directly from a store must derive the key with this function.
func UserStoreKey(authority, clientID string) string {
	return userStoreKeyPrefix + authority + ":" + clientID
}

// StateStoreKey returns the key an in-flight sign-in state is stored under.
func StateStoreKey(stateID string) string {
	return stateStoreKeyPrefix + stateID
}
