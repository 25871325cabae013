// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_newSigninState(t *testing.T) {
	t.Parallel()
	now := time.Now()
	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := testConfig(t, "https://idp.example/realm", "app1")
		got, err := newSigninState(c, now)
		require.NoError(err)
		assert.NotEmpty(got.ID)
		assert.NotEmpty(got.Nonce)
		assert.NotEqualf(got.ID, got.Nonce, "%s id should not equal %s nonce", got.ID, got.Nonce)
		assert.NotEmpty(got.CodeVerifier)
		assert.Equal(c.RedirectURI, got.RedirectURI)
		assert.Equal(c.Authority, got.Authority)
		assert.Equal("app1", got.ClientID)
		assert.Equal(now.Unix(), got.Created)
		assert.Equal(signinRequestType, got.RequestType)
	})
	t.Run("nil-config", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := newSigninState(nil, now)
		require.Error(err)
		assert.Truef(errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
	})
}

func Test_signinStateStorage(t *testing.T) {
	t.Parallel()
	t.Run("round-trip", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, err := newSigninState(testConfig(t, "https://idp.example/realm", "app1"), time.Now())
		require.NoError(err)
		raw, err := s.toStorageString()
		require.NoError(err)
		got, err := signinStateFromStorageString(raw)
		require.NoError(err)
		assert.Equal(s, got)
	})
	tests := []struct {
		name string
		raw  string
	}{
		{"not-json", "not json"},
		{"missing-nonce", `{"id":"st_1"}`},
		{"id-equals-nonce", `{"id":"same","nonce":"same"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			_, err := signinStateFromStorageString(tt.raw)
			require.Error(err)
			assert.Truef(errors.Is(err, ErrCorruptRecord), "wanted \"%s\" but got \"%s\"", ErrCorruptRecord, err)
		})
	}
}

func Test_signinState_isStale(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	now := time.Now()
	s := &signinState{Created: now.Add(-10 * time.Minute).Unix()}
	assert.False(s.isStale(now, 15*time.Minute))
	assert.True(s.isStale(now, 5*time.Minute))
}
