/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fedgate/fedgate/pkg/activitypub/keys"
	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
	"github.com/fedgate/fedgate/pkg/queue/memqueue"
	"github.com/fedgate/fedgate/pkg/store/memstore"
)

func TestExtractInboxes(t *testing.T) {
	personalInbox1 := mustParseURL(t, "https://remote.example/users/a/inbox")
	personalInbox2 := mustParseURL(t, "https://remote.example/users/b/inbox")
	sharedInbox := mustParseURL(t, "https://remote.example/inbox")

	recipientWithBoth1 := vocab.NewActor(vocab.TypePerson,
		vocab.WithID(mustParseURL(t, "https://remote.example/users/a")),
		vocab.WithInbox(personalInbox1),
		vocab.WithSharedInbox(sharedInbox),
	)

	recipientWithBoth2 := vocab.NewActor(vocab.TypePerson,
		vocab.WithID(mustParseURL(t, "https://remote.example/users/b")),
		vocab.WithInbox(personalInbox2),
		vocab.WithSharedInbox(sharedInbox),
	)

	recipientWithoutInbox := vocab.NewActor(vocab.TypePerson,
		vocab.WithID(mustParseURL(t, "https://remote.example/users/c")),
	)

	t.Run("Personal inboxes", func(t *testing.T) {
		inboxes := ExtractInboxes([]*vocab.ActorType{recipientWithBoth1, recipientWithBoth2}, false)
		require.Len(t, inboxes, 2)
		require.Equal(t, personalInbox1.String(), inboxes[0].String())
		require.Equal(t, personalInbox2.String(), inboxes[1].String())
	})

	t.Run("Shared inbox preferred and deduplicated", func(t *testing.T) {
		inboxes := ExtractInboxes([]*vocab.ActorType{recipientWithBoth1, recipientWithBoth2}, true)
		require.Len(t, inboxes, 1)
		require.Equal(t, sharedInbox.String(), inboxes[0].String())
	})

	t.Run("Recipients without an inbox are dropped", func(t *testing.T) {
		inboxes := ExtractInboxes([]*vocab.ActorType{recipientWithoutInbox}, false)
		require.Empty(t, inboxes)

		inboxes = ExtractInboxes([]*vocab.ActorType{recipientWithoutInbox, recipientWithBoth1}, true)
		require.Len(t, inboxes, 1)
	})
}

func newSender(t *testing.T) *Sender {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return &Sender{
		KeyID:      mustParseURL(t, "https://"+localHost+"/users/service#main-key"),
		PrivateKey: privateKey,
	}
}

func newRecipient(t *testing.T, inbox string) *vocab.ActorType {
	t.Helper()

	return vocab.NewActor(vocab.TypePerson,
		vocab.WithID(mustParseURL(t, remoteActorIRI)),
		vocab.WithInbox(mustParseURL(t, inbox)),
	)
}

func TestSendActivity_Immediate(t *testing.T) {
	var mutex sync.Mutex

	var posts []*http.Request

	var bodies [][]byte

	f := newTestFederation(t, &Options{
		Store: memstore.New(),
		HTTPClient: &http.Client{
			Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				body, err := io.ReadAll(req.Body)
				if err != nil {
					return nil, err
				}

				mutex.Lock()
				posts = append(posts, req)
				bodies = append(bodies, body)
				mutex.Unlock()

				return httpResponse(http.StatusAccepted, nil), nil
			}),
		},
	})

	ctx := f.NewContext(mustParseURL(t, "https://"+localHost), nil)

	t.Run("Success", func(t *testing.T) {
		activity := vocab.NewActivity(vocab.TypeCreate,
			vocab.WithActor(mustParseURL(t, "https://"+localHost+"/users/service")),
			vocab.WithObject(vocab.Document{"type": "Note"}),
		)

		err := ctx.SendActivity(context.Background(), newSender(t),
			[]*vocab.ActorType{newRecipient(t, remoteActorIRI+"/inbox")}, activity)
		require.NoError(t, err)

		mutex.Lock()
		defer mutex.Unlock()

		require.Len(t, posts, 1)
		require.Equal(t, "/person/inbox", posts[0].URL.Path)
		require.Equal(t, "application/ld+json", posts[0].Header.Get("Content-Type"))
		require.NotEmpty(t, posts[0].Header.Get("Signature"))
		require.NotEmpty(t, posts[0].Header.Get("Digest"))

		// A minted urn:uuid ID is added when the activity has none.
		doc, err := vocab.UnmarshalToDoc(bodies[0])
		require.NoError(t, err)
		require.Contains(t, doc["id"], "urn:uuid:")
	})

	t.Run("No actor -> error before I/O", func(t *testing.T) {
		activity := vocab.NewActivity(vocab.TypeCreate)

		err := ctx.SendActivity(context.Background(), newSender(t),
			[]*vocab.ActorType{newRecipient(t, remoteActorIRI+"/inbox")}, activity)
		require.Error(t, err)
		require.Contains(t, err.Error(), "actor")
	})

	t.Run("No recipients -> no-op success", func(t *testing.T) {
		activity := vocab.NewActivity(vocab.TypeCreate,
			vocab.WithActor(mustParseURL(t, "https://"+localHost+"/users/service")),
		)

		mutex.Lock()
		postsBefore := len(posts)
		mutex.Unlock()

		err := ctx.SendActivity(context.Background(), newSender(t), nil, activity)
		require.NoError(t, err)

		mutex.Lock()
		defer mutex.Unlock()

		require.Len(t, posts, postsBefore)
	})
}

func TestSendActivity_RetrySchedule(t *testing.T) {
	var attempts int32

	var errorCalls int32

	backoff := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}

	f := newTestFederation(t, &Options{
		Store:           memstore.New(),
		Queue:           memqueue.New(memqueue.Config{}),
		BackoffSchedule: backoff,
		OnOutboxError: func(err error, activity *vocab.ActivityType) {
			require.NotNil(t, activity)
			atomic.AddInt32(&errorCalls, 1)
		},
		HTTPClient: &http.Client{
			Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				atomic.AddInt32(&attempts, 1)

				return httpResponse(http.StatusInternalServerError, nil), nil
			}),
		},
	})

	ctx := f.NewContext(mustParseURL(t, "https://"+localHost), nil)

	activity := vocab.NewActivity(vocab.TypeCreate,
		vocab.WithID(mustParseURL(t, "urn:uuid:00000000-0000-0000-0000-00000000000a")),
		vocab.WithActor(mustParseURL(t, "https://"+localHost+"/users/service")),
	)

	err := ctx.SendActivity(context.Background(), newSender(t),
		[]*vocab.ActorType{newRecipient(t, remoteActorIRI+"/inbox")}, activity)
	require.NoError(t, err)

	// Trials 0, 1 and 2: one initial attempt plus one retry per backoff entry.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&errorCalls) == 3
	}, time.Second, 10*time.Millisecond)

	// The schedule is exhausted; no further attempts are made.
	time.Sleep(300 * time.Millisecond)

	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	require.Equal(t, int32(3), atomic.LoadInt32(&errorCalls))
}

func TestSendActivity_QueuedSuccess(t *testing.T) {
	var attempts int32

	f := newTestFederation(t, &Options{
		Store: memstore.New(),
		Queue: memqueue.New(memqueue.Config{}),
		HTTPClient: &http.Client{
			Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				atomic.AddInt32(&attempts, 1)

				return httpResponse(http.StatusAccepted, nil), nil
			}),
		},
	})

	ctx := f.NewContext(mustParseURL(t, "https://"+localHost), nil)

	activity := vocab.NewActivity(vocab.TypeCreate,
		vocab.WithActor(mustParseURL(t, "https://"+localHost+"/users/service")),
	)

	err := ctx.SendActivity(context.Background(), newSender(t),
		[]*vocab.ActorType{newRecipient(t, remoteActorIRI+"/inbox")}, activity)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestOutboxMessage_RoundTrip(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	msg := &outboxMessage{
		Type:       outboxMessageType,
		KeyID:      "https://" + localHost + "/users/service#main-key",
		PrivateKey: keys.NewJWK(privateKey),
		Activity:   vocab.Document{"id": "urn:uuid:1234", "type": "Create"},
		Inbox:      remoteActorIRI + "/inbox",
		Trial:      2,
	}

	msgBytes, err := json.Marshal(msg)
	require.NoError(t, err)

	unmarshalled := &outboxMessage{}
	require.NoError(t, json.Unmarshal(msgBytes, unmarshalled))

	require.Equal(t, msg.Type, unmarshalled.Type)
	require.Equal(t, msg.KeyID, unmarshalled.KeyID)
	require.Equal(t, msg.Inbox, unmarshalled.Inbox)
	require.Equal(t, msg.Trial, unmarshalled.Trial)

	imported, err := unmarshalled.PrivateKey.RSAPrivateKey()
	require.NoError(t, err)
	require.Zero(t, imported.N.Cmp(privateKey.N))
}
