package sip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationHappyPath(t *testing.T) {
	r := newRegistration()
	assert.Equal(t, RegStateIdle, r.State())

	require.NoError(t, r.transition("start"))
	assert.Equal(t, RegStateRegistering, r.State())

	require.NoError(t, r.transition("success"))
	assert.Equal(t, RegStateRegistered, r.State())
}

func TestRegistrationFailureThenRetry(t *testing.T) {
	r := newRegistration()
	require.NoError(t, r.transition("start"))
	require.NoError(t, r.transition("failure"))
	assert.Equal(t, RegStateRegisterFailed, r.State())

	require.NoError(t, r.transition("start"))
	assert.Equal(t, RegStateRegistering, r.State())
}

func TestRegistrationRenewAndStop(t *testing.T) {
	r := newRegistration()
	require.NoError(t, r.transition("start"))
	require.NoError(t, r.transition("success"))

	require.NoError(t, r.transition("renew"))
	assert.Equal(t, RegStateRegistering, r.State())
	require.NoError(t, r.transition("success"))

	require.NoError(t, r.transition("stop"))
	assert.Equal(t, RegStateUnregistering, r.State())

	require.NoError(t, r.transition("unregistered"))
	assert.Equal(t, RegStateUnregistered, r.State())
}

func TestRegistrationStartResetsAuthState(t *testing.T) {
	r := newRegistration()
	require.NoError(t, r.transition("start"))
	r.auth.markAttempted()
	assert.False(t, r.auth.shouldRetry())

	require.NoError(t, r.transition("failure"))
	require.NoError(t, r.transition("start"))
	assert.True(t, r.auth.shouldRetry())
}

func TestRegistrationInvalidTransitionErrors(t *testing.T) {
	r := newRegistration()
	err := r.transition("success")
	assert.Error(t, err)
	assert.Equal(t, RegStateIdle, r.State())
}
