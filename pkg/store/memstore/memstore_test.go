/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fedgate/fedgate/pkg/store/spi"
)

func TestStore_PutGet(t *testing.T) {
	s := New()

	key := []string{"_fedgate", "remoteDocument", "https://example.com/doc"}

	_, err := s.Get(key)
	require.ErrorIs(t, err, spi.ErrNotFound)

	require.NoError(t, s.Put(key, []byte("value1")))

	value, err := s.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("value1"), value)

	require.NoError(t, s.Put(key, []byte("value2")))

	value, err = s.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("value2"), value)
}

func TestStore_TTL(t *testing.T) {
	s := New()

	key := []string{"expiring"}

	require.NoError(t, s.Put(key, []byte("value"), spi.WithTTL(50*time.Millisecond)))

	value, err := s.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("value"), value)

	time.Sleep(100 * time.Millisecond)

	_, err = s.Get(key)
	require.ErrorIs(t, err, spi.ErrNotFound)
}

func TestStore_PutIfAbsent(t *testing.T) {
	s := New()

	key := []string{"_fedgate", "activityIdempotence", "urn:uuid:1234"}

	stored, err := s.PutIfAbsent(key, []byte("1"))
	require.NoError(t, err)
	require.True(t, stored)

	stored, err = s.PutIfAbsent(key, []byte("1"))
	require.NoError(t, err)
	require.False(t, stored)
}

func TestStore_Delete(t *testing.T) {
	s := New()

	key := []string{"key"}

	require.NoError(t, s.Put(key, []byte("value")))
	require.NoError(t, s.Delete(key))

	_, err := s.Get(key)
	require.ErrorIs(t, err, spi.ErrNotFound)

	// Deleting a non-existent key is not an error.
	require.NoError(t, s.Delete(key))
}

func TestStore_KeyPathEncoding(t *testing.T) {
	s := New()

	// Key paths with separator-like segments must not collide.
	require.NoError(t, s.Put([]string{"a/b", "c"}, []byte("1")))

	_, err := s.Get([]string{"a", "b/c"})
	require.ErrorIs(t, err, spi.ErrNotFound)
}
