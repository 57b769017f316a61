package sip

import (
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutgoingDialogUACHappyPath(t *testing.T) {
	d := newOutgoingDialog(nil, sip.Uri{User: "bob", Host: "example.com"})
	assert.Equal(t, DialogStateNull, d.State())
	assert.True(t, d.IsOutgoing())

	require.NoError(t, d.transition("invite"))
	assert.Equal(t, DialogStateCalling, d.State())

	require.NoError(t, d.transition("ringing"))
	assert.Equal(t, DialogStateEarly, d.State())

	require.NoError(t, d.transition("answered"))
	assert.Equal(t, DialogStateConfirmed, d.State())

	require.NoError(t, d.transition("bye"))
	assert.Equal(t, DialogStateTerminated, d.State())
}

func TestOutgoingDialogCancelFromCalling(t *testing.T) {
	d := newOutgoingDialog(nil, sip.Uri{User: "bob", Host: "example.com"})
	require.NoError(t, d.transition("invite"))
	require.NoError(t, d.transition("cancelled"))
	assert.Equal(t, DialogStateTerminated, d.State())
}

func TestOutgoingDialogFailureFromEarly(t *testing.T) {
	d := newOutgoingDialog(nil, sip.Uri{User: "bob", Host: "example.com"})
	require.NoError(t, d.transition("invite"))
	require.NoError(t, d.transition("ringing"))
	require.NoError(t, d.transition("call_failed"))
	assert.Equal(t, DialogStateFailed, d.State())

	require.NoError(t, d.transition("fail_terminate"))
	assert.Equal(t, DialogStateTerminated, d.State())
}

func TestIncomingDialogUASHappyPath(t *testing.T) {
	from := FromAddress{User: "alice", Host: "example.com"}
	d := newIncomingDialog(nil, "call-id-1", from)
	assert.False(t, d.IsOutgoing())
	assert.Equal(t, "call-id-1", d.CallID())

	require.NoError(t, d.transition("incoming"))
	assert.Equal(t, DialogStateIncoming, d.State())

	require.NoError(t, d.transition("answer"))
	assert.Equal(t, DialogStateConfirmed, d.State())
}

func TestIncomingDialogReject(t *testing.T) {
	d := newIncomingDialog(nil, "call-id-2", FromAddress{})
	require.NoError(t, d.transition("incoming"))
	require.NoError(t, d.transition("reject"))
	assert.Equal(t, DialogStateTerminated, d.State())
}

func TestDialogTransitionRejectsInvalidEvent(t *testing.T) {
	d := newOutgoingDialog(nil, sip.Uri{User: "bob", Host: "example.com"})
	err := d.transition("answer")
	assert.Error(t, err)
	assert.Equal(t, DialogStateNull, d.State())
}

func TestMediaSessionNilBeforeAttached(t *testing.T) {
	d := newOutgoingDialog(nil, sip.Uri{User: "bob", Host: "example.com"})
	assert.Nil(t, d.MediaSession())
}
