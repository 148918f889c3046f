/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/fedgate/fedgate/pkg/lifecycle"
	"github.com/fedgate/fedgate/pkg/queue/spi"
)

func TestQueue_EnqueueListen(t *testing.T) {
	q := New(Config{})
	defer func() {
		require.NoError(t, q.Close())
	}()

	var mutex sync.Mutex

	var received []string

	require.NoError(t, q.Listen(func(msg *message.Message) {
		mutex.Lock()
		received = append(received, string(msg.Payload))
		mutex.Unlock()
	}))

	require.NoError(t, q.Enqueue(message.NewMessage(watermill.NewUUID(), []byte("payload1"))))
	require.NoError(t, q.Enqueue(message.NewMessage(watermill.NewUUID(), []byte("payload2"))))

	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()

		return len(received) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_Delay(t *testing.T) {
	q := New(Config{})
	defer func() {
		require.NoError(t, q.Close())
	}()

	var mutex sync.Mutex

	var receivedAt time.Time

	require.NoError(t, q.Listen(func(msg *message.Message) {
		mutex.Lock()
		receivedAt = time.Now()
		mutex.Unlock()
	}))

	delay := 100 * time.Millisecond
	enqueuedAt := time.Now()

	require.NoError(t, q.Enqueue(message.NewMessage(watermill.NewUUID(), []byte("delayed")),
		spi.WithDelay(delay)))

	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()

		return !receivedAt.IsZero()
	}, time.Second, 10*time.Millisecond)

	require.GreaterOrEqual(t, receivedAt.Sub(enqueuedAt), delay)
}

func TestQueue_SingleListener(t *testing.T) {
	q := New(Config{})
	defer func() {
		require.NoError(t, q.Close())
	}()

	require.NoError(t, q.Listen(func(*message.Message) {}))
	require.Error(t, q.Listen(func(*message.Message) {}))
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q := New(Config{})

	require.NoError(t, q.Close())

	err := q.Enqueue(message.NewMessage(watermill.NewUUID(), []byte("payload")))
	require.ErrorIs(t, err, lifecycle.ErrNotStarted)
}
