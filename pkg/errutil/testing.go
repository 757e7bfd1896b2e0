// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error whose effective code
// (the deepest one in the chain) is code.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err is an oops error carrying key=value.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	ctx := oopsErr.Context()
	require.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertNoSecrets asserts that none of secrets appears in the error text or
// in any value of its oops context. Errors end up in logs, so passwords and
// one-time codes must never be attached to them.
func AssertNoSecrets(t testing.TB, err error, secrets ...string) {
	t.Helper()
	require.Error(t, err)

	var sb strings.Builder
	sb.WriteString(err.Error())
	if oopsErr, ok := oops.AsOops(err); ok {
		for k, v := range oopsErr.Context() {
			fmt.Fprintf(&sb, " %s=%v", k, v)
		}
	}
	dump := sb.String()
	for _, secret := range secrets {
		assert.NotContains(t, dump, secret, "error leaks a secret")
	}
}
