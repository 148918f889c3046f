/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedgate/fedgate/pkg/activitypub/httpsig"
	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
)

func TestRequestContext_SignedKeyMemoization(t *testing.T) {
	peer := newRemotePeer(t)

	f := newTestFederation(t, &Options{
		HTTPClient: &http.Client{
			Transport: peer.roundTrip(nil),
		},
	})

	t.Run("Valid signature -> same value on every call", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "https://"+localHost+"/users/john", nil)

		signer := httpsig.NewSigner(httpsig.DefaultGetSignerConfig())
		require.NoError(t, signer.SignRequest(peer.privateKey, remoteKeyIRI, req, nil))

		rctx := f.newRequestContext(req, nil)

		key1 := rctx.SignedKey()
		require.NotNil(t, key1)

		key2 := rctx.SignedKey()
		require.Same(t, key1, key2)

		owner1 := rctx.SignedKeyOwner()
		require.NotNil(t, owner1)
		require.Same(t, owner1, rctx.SignedKeyOwner())

		require.Equal(t, remoteActorIRI, owner1.ID().String())
	})

	t.Run("Unsigned request -> nil on every call", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "https://"+localHost+"/users/john", nil)

		rctx := f.newRequestContext(req, nil)

		require.Nil(t, rctx.SignedKey())
		require.Nil(t, rctx.SignedKey())
		require.Nil(t, rctx.SignedKeyOwner())
	})
}

func TestRequestContext_GetActor(t *testing.T) {
	f := newTestFederation(t, nil)

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f.SetActorDispatcher("/users/{handle}",
		func(ctx context.Context, rctx *RequestContext, handle string,
			publicKey *vocab.PublicKeyType) (*vocab.ActorType, error) {
			if handle == "unknown" {
				return nil, nil
			}

			// A re-entrant call logs a recursion warning but still proceeds.
			if handle == "john" {
				other, err := rctx.GetActor(ctx, "unknown")
				require.NoError(t, err)
				require.Nil(t, other)
			}

			actorURI, err := rctx.ActorURI(handle)
			if err != nil {
				return nil, err
			}

			return vocab.NewActor(vocab.TypePerson,
				vocab.WithID(actorURI),
				vocab.WithPublicKey(publicKey),
			), nil
		}).
		SetKeyPairDispatcher(func(ctx context.Context, data interface{}, handle string) (*KeyPair, error) {
			if handle == "unknown" {
				return nil, nil
			}

			return &KeyPair{PrivateKey: privateKey, PublicKey: &privateKey.PublicKey}, nil
		})

	req := httptest.NewRequest(http.MethodGet, "https://"+localHost+"/users/john", nil)
	rctx := f.newRequestContext(req, nil)

	actor, err := rctx.GetActor(context.Background(), "john")
	require.NoError(t, err)
	require.NotNil(t, actor)

	// The key-pair dispatcher's public key is passed through as a CryptographicKey
	// with the #main-key ID.
	require.NotNil(t, actor.PublicKey())
	require.Equal(t, "https://"+localHost+"/users/john#main-key", actor.PublicKey().ID.String())
	require.Equal(t, "https://"+localHost+"/users/john", actor.PublicKey().Owner.String())
}

func TestRequestContext_GetObject(t *testing.T) {
	f := newTestFederation(t, nil)

	f.SetObjectDispatcher(vocab.TypeNote, "/notes/{id}",
		func(ctx context.Context, rctx *RequestContext, values map[string]string) (*vocab.ObjectType, error) {
			return vocab.NewObject(vocab.WithType(vocab.TypeNote)), nil
		})

	req := httptest.NewRequest(http.MethodGet, "https://"+localHost+"/notes/1", nil)
	rctx := f.newRequestContext(req, nil)

	t.Run("Success", func(t *testing.T) {
		object, err := rctx.GetObject(context.Background(), vocab.TypeNote, map[string]string{"id": "1"})
		require.NoError(t, err)
		require.NotNil(t, object)
	})

	t.Run("Missing parameter -> error", func(t *testing.T) {
		_, err := rctx.GetObject(context.Background(), vocab.TypeNote, map[string]string{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "id")
	})

	t.Run("Unregistered type -> error", func(t *testing.T) {
		_, err := rctx.GetObject(context.Background(), vocab.TypeCreate, map[string]string{"id": "1"})
		require.Error(t, err)
	})
}

func TestContext_ActorKey(t *testing.T) {
	f := newTestFederation(t, nil)

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f.SetActorDispatcher("/users/{handle}", nil).
		SetKeyPairDispatcher(func(ctx context.Context, data interface{}, handle string) (*KeyPair, error) {
			if handle != "john" {
				return nil, nil
			}

			return &KeyPair{PrivateKey: privateKey, PublicKey: &privateKey.PublicKey}, nil
		})

	ctx := f.NewContext(mustParseURL(t, "https://"+localHost), nil)

	key, err := ctx.ActorKey(context.Background(), "john")
	require.NoError(t, err)
	require.NotNil(t, key)
	require.Contains(t, key.PublicKeyPem, "BEGIN PUBLIC KEY")

	// An unknown handle yields no key.
	key, err = ctx.ActorKey(context.Background(), "jane")
	require.NoError(t, err)
	require.Nil(t, key)
}
