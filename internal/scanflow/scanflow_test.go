package scanflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	sess := &Session{}
	assert.Equal(t, StateIdle, sess.State())

	require.NoError(t, sess.Start())
	assert.Equal(t, StateScanning, sess.State())

	sess.Advance(StateResolving)
	sess.Advance(StateRedeeming)
	sess.Advance(StateResult)
	assert.Equal(t, StateResult, sess.State())

	sess.Reset()
	assert.Equal(t, StateIdle, sess.State())
}

func TestSessionRejectsConcurrentStart(t *testing.T) {
	sess := &Session{}
	require.NoError(t, sess.Start())

	err := sess.Start()
	assert.ErrorIs(t, err, ErrScanInProgress)

	sess.Reset()
	assert.NoError(t, sess.Start())
}

func TestSessionCancelOnlyWhileScanning(t *testing.T) {
	sess := &Session{}

	// Idle: nothing to cancel.
	assert.ErrorIs(t, sess.Cancel(), ErrNotCancellable)

	require.NoError(t, sess.Start())
	assert.NoError(t, sess.Cancel())
	assert.Equal(t, StateIdle, sess.State())

	// Once resolving, the scan runs to completion.
	require.NoError(t, sess.Start())
	sess.Advance(StateResolving)
	assert.ErrorIs(t, sess.Cancel(), ErrNotCancellable)
}

func TestSessionIllegalTransitionPanics(t *testing.T) {
	sess := &Session{}
	require.NoError(t, sess.Start())

	assert.Panics(t, func() {
		sess.Advance(StateRedeeming) // skips Resolving
	})
}

func TestTrackerOneSessionPerTerminal(t *testing.T) {
	tracker := NewTracker()

	a := tracker.Session("pos-1")
	b := tracker.Session("pos-2")
	assert.NotSame(t, a, b)

	require.NoError(t, a.Start())
	// Terminal 2 is unaffected by terminal 1's scan.
	assert.NoError(t, b.Start())

	assert.Same(t, a, tracker.Session("pos-1"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "scanning", StateScanning.String())
	assert.Equal(t, "resolving", StateResolving.String())
	assert.Equal(t, "redeeming", StateRedeeming.String())
	assert.Equal(t, "result", StateResult.String())
}
