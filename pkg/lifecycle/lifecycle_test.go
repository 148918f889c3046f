/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	started := 0
	stopped := 0

	lc := New("service1",
		WithStart(func() { started++ }),
		WithStop(func() { stopped++ }),
	)

	require.Equal(t, StateNotStarted, lc.State())

	lc.Start()
	require.Equal(t, StateStarted, lc.State())
	require.Equal(t, 1, started)

	// A second Start has no effect.
	lc.Start()
	require.Equal(t, 1, started)

	lc.Stop()
	require.Equal(t, StateStopped, lc.State())
	require.Equal(t, 1, stopped)

	// A second Stop has no effect.
	lc.Stop()
	require.Equal(t, 1, stopped)
}

func TestLifecycle_StopBeforeStart(t *testing.T) {
	stopped := false

	lc := New("service1", WithStop(func() { stopped = true }))

	lc.Stop()
	require.False(t, stopped)
	require.Equal(t, StateNotStarted, lc.State())
}
