// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package strutils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrListContains(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	scopes := strings.Fields("openid profile email")
	assert.True(StrListContains(scopes, "openid"))
	assert.False(StrListContains(scopes, "offline_access"))
	assert.False(StrListContains(nil, "openid"))
}

func TestRemoveDuplicatesStable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name            string
		input           []string
		caseInsensitive bool
		want            []string
	}{
		{"empty", []string{}, false, []string{}},
		{"openid-first", []string{"openid", "email", "openid"}, false, []string{"openid", "email"}},
		{"case-sensitive", []string{"Email", "email"}, false, []string{"Email", "email"}},
		{"case-insensitive", []string{"Email", "email", "profile"}, true, []string{"Email", "profile"}},
		{"blanks", []string{" ", "email", "", "email "}, false, []string{"email"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RemoveDuplicatesStable(tt.input, tt.caseInsensitive))
		})
	}
}
