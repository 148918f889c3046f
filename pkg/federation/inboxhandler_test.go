/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedgate/fedgate/pkg/activitypub/httpsig"
	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
)

type inboxFixture struct {
	federation    *Federation
	peer          *remotePeer
	listenerCalls int32
	errorCalls    int32
	listenerErr   error
}

func newInboxFixture(t *testing.T) *inboxFixture {
	t.Helper()

	fixture := &inboxFixture{
		peer: newRemotePeer(t),
	}

	fixture.federation = newTestFederation(t, &Options{
		HTTPClient: &http.Client{
			Transport: fixture.peer.roundTrip(nil),
		},
	})

	fixture.federation.SetActorDispatcher("/users/{handle}",
		func(ctx context.Context, rctx *RequestContext, handle string,
			publicKey *vocab.PublicKeyType) (*vocab.ActorType, error) {
			actorURI, err := rctx.ActorURI(handle)
			if err != nil {
				return nil, err
			}

			return vocab.NewActor(vocab.TypePerson, vocab.WithID(actorURI)), nil
		})

	fixture.federation.SetInboxListeners("/users/{handle}/inbox", "/inbox").
		On(vocab.TypeCreate, func(ctx context.Context, rctx *RequestContext,
			activity *vocab.ActivityType) error {
			atomic.AddInt32(&fixture.listenerCalls, 1)

			return fixture.listenerErr
		}).
		OnError(func(ctx context.Context, rctx *RequestContext,
			activity *vocab.ActivityType, err error) {
			atomic.AddInt32(&fixture.errorCalls, 1)
		})

	return fixture
}

func (f *inboxFixture) newActivity(t *testing.T, id string) []byte {
	t.Helper()

	activity := vocab.NewActivity(vocab.TypeCreate,
		vocab.WithID(mustParseURL(t, id)),
		vocab.WithActor(mustParseURL(t, remoteActorIRI)),
		vocab.WithObject(vocab.Document{"type": "Note", "content": "hello"}),
	)

	activityBytes, err := activity.MarshalJSON()
	require.NoError(t, err)

	return activityBytes
}

// signedPost builds a signed POST of the given body to the given inbox path.
func (f *inboxFixture) signedPost(t *testing.T, path string, body []byte) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "https://"+localHost+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/activity+json")

	signer := httpsig.NewSigner(httpsig.DefaultPostSignerConfig())
	require.NoError(t, signer.SignRequest(f.peer.privateKey, remoteKeyIRI, req, body))

	return req
}

func (f *inboxFixture) post(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()

	f.federation.Fetch(w, req, nil)

	return w
}

func TestInbox_UnsignedPost(t *testing.T) {
	fixture := newInboxFixture(t)

	body := fixture.newActivity(t, "urn:uuid:00000000-0000-0000-0000-000000000001")

	req := httptest.NewRequest(http.MethodPost, "https://"+localHost+"/users/john/inbox",
		bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/activity+json")

	w := fixture.post(req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, atomic.LoadInt32(&fixture.listenerCalls))
}

func TestInbox_SignedPost(t *testing.T) {
	fixture := newInboxFixture(t)

	body := fixture.newActivity(t, "urn:uuid:00000000-0000-0000-0000-000000000002")

	w := fixture.post(fixture.signedPost(t, "/users/john/inbox", body))

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, int32(1), atomic.LoadInt32(&fixture.listenerCalls))

	// A second POST of the same activity is deduplicated: still 202, no second dispatch.
	w = fixture.post(fixture.signedPost(t, "/users/john/inbox", body))

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, int32(1), atomic.LoadInt32(&fixture.listenerCalls))
}

func TestInbox_SharedInbox(t *testing.T) {
	fixture := newInboxFixture(t)

	body := fixture.newActivity(t, "urn:uuid:00000000-0000-0000-0000-000000000003")

	w := fixture.post(fixture.signedPost(t, "/inbox", body))

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, int32(1), atomic.LoadInt32(&fixture.listenerCalls))
}

func TestInbox_NoMatchingListener(t *testing.T) {
	fixture := newInboxFixture(t)

	activity := vocab.NewActivity(vocab.TypeLike,
		vocab.WithID(mustParseURL(t, "urn:uuid:00000000-0000-0000-0000-000000000004")),
		vocab.WithActor(mustParseURL(t, remoteActorIRI)),
	)

	body, err := activity.MarshalJSON()
	require.NoError(t, err)

	w := fixture.post(fixture.signedPost(t, "/users/john/inbox", body))

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Zero(t, atomic.LoadInt32(&fixture.listenerCalls))
}

func TestInbox_ListenerError(t *testing.T) {
	fixture := newInboxFixture(t)
	fixture.listenerErr = fmt.Errorf("injected listener error")

	body := fixture.newActivity(t, "urn:uuid:00000000-0000-0000-0000-000000000005")

	w := fixture.post(fixture.signedPost(t, "/users/john/inbox", body))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, int32(1), atomic.LoadInt32(&fixture.errorCalls))

	// The idempotence key remains set, so the sender's retry is deduplicated.
	w = fixture.post(fixture.signedPost(t, "/users/john/inbox", body))

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, int32(1), atomic.LoadInt32(&fixture.listenerCalls))
}

func TestInbox_InvalidContentType(t *testing.T) {
	fixture := newInboxFixture(t)

	req := httptest.NewRequest(http.MethodPost, "https://"+localHost+"/users/john/inbox",
		bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")

	w := fixture.post(req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInbox_MalformedBody(t *testing.T) {
	fixture := newInboxFixture(t)

	body := []byte("not json")

	w := fixture.post(fixture.signedPost(t, "/users/john/inbox", body))

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, int32(1), atomic.LoadInt32(&fixture.errorCalls))
	require.Zero(t, atomic.LoadInt32(&fixture.listenerCalls))
}

func TestInbox_GetMethod(t *testing.T) {
	fixture := newInboxFixture(t)

	req := httptest.NewRequest(http.MethodGet, "https://"+localHost+"/users/john/inbox", nil)

	w := fixture.post(req)

	require.Equal(t, http.StatusNotFound, w.Code)
}
