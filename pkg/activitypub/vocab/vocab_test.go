/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeChain(t *testing.T) {
	require.Equal(t, []Type{TypeCreate, TypeActivity, TypeObject}, TypeChain(TypeCreate))
	require.Equal(t, []Type{TypeInvite, TypeOffer, TypeActivity, TypeObject}, TypeChain(TypeInvite))
	require.Equal(t, []Type{TypeObject}, TypeChain(TypeObject))
	require.Equal(t, []Type{"Custom", TypeObject}, TypeChain("Custom"))
}

func TestTypeIRI(t *testing.T) {
	require.Equal(t, "https://www.w3.org/ns/activitystreams#Create", TypeIRI(TypeCreate))
}

func TestActivityType_RoundTrip(t *testing.T) {
	activityJSON := `{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "urn:uuid:f1d71e2b-22e4-4d4b-b7c3-847160e09a1a",
		"type": "Create",
		"actor": "https://example.com/person",
		"to": "https://www.w3.org/ns/activitystreams#Public",
		"object": {
			"type": "Note",
			"content": "Hello world"
		},
		"customProperty": "custom value"
	}`

	activity := &ActivityType{}
	require.NoError(t, json.Unmarshal([]byte(activityJSON), activity))

	require.Equal(t, "urn:uuid:f1d71e2b-22e4-4d4b-b7c3-847160e09a1a", activity.ID().String())
	require.True(t, activity.Type().Is(TypeCreate))
	require.Equal(t, "https://example.com/person", activity.Actor().String())
	require.Equal(t, "Hello world", activity.Object()["content"])

	// Additional (non-reserved) properties must survive a round trip.
	activityBytes, err := json.Marshal(activity)
	require.NoError(t, err)

	doc, err := UnmarshalToDoc(activityBytes)
	require.NoError(t, err)
	require.Equal(t, "custom value", doc["customProperty"])
	require.Equal(t, "https://example.com/person", doc["actor"])
}

func TestNewActivity(t *testing.T) {
	actorIRI := mustParseURL(t, "https://example.com/users/john")
	to := mustParseURL(t, "https://remote.example/person")

	activity := NewActivity(TypeFollow, WithActor(actorIRI), WithTo(to))

	require.Nil(t, activity.ID())
	require.True(t, activity.Type().Is(TypeFollow))
	require.Equal(t, actorIRI.String(), activity.Actor().String())

	id := mustParseURL(t, "urn:uuid:1234")
	activity.SetID(id)
	require.Equal(t, id.String(), activity.ID().String())
}

func TestActorType(t *testing.T) {
	actorJSON := `{
		"@context": ["https://www.w3.org/ns/activitystreams", "https://w3id.org/security/v1"],
		"id": "https://example.com/users/john",
		"type": "Person",
		"preferredUsername": "john",
		"inbox": "https://example.com/users/john/inbox",
		"endpoints": {"sharedInbox": "https://example.com/inbox"},
		"publicKey": {
			"id": "https://example.com/users/john#main-key",
			"owner": "https://example.com/users/john",
			"publicKeyPem": "-----BEGIN PUBLIC KEY-----"
		},
		"url": "https://example.com/@john"
	}`

	actor := &ActorType{}
	require.NoError(t, json.Unmarshal([]byte(actorJSON), actor))

	require.Equal(t, "john", actor.PreferredUsername())
	require.Equal(t, "https://example.com/users/john/inbox", actor.Inbox().String())
	require.Equal(t, "https://example.com/inbox", actor.SharedInbox().String())
	require.Equal(t, "https://example.com/users/john#main-key", actor.PublicKey().ID.String())

	profileURL, ok := actor.Value("url")
	require.True(t, ok)
	require.Equal(t, "https://example.com/@john", profileURL)
}

func TestActorType_NoSharedInbox(t *testing.T) {
	actor := NewActor(TypeService,
		WithID(mustParseURL(t, "https://example.com/users/service")),
		WithInbox(mustParseURL(t, "https://example.com/users/service/inbox")),
	)

	require.Nil(t, actor.SharedInbox())
	require.NotNil(t, actor.Inbox())
}

func TestOrderedCollection(t *testing.T) {
	collection := NewOrderedCollection(
		WithID(mustParseURL(t, "https://example.com/users/john/followers")),
		WithTotalItems(10),
		WithFirst(mustParseURL(t, "https://example.com/users/john/followers?cursor=0")),
	)

	collectionBytes, err := json.Marshal(collection)
	require.NoError(t, err)

	doc, err := UnmarshalToDoc(collectionBytes)
	require.NoError(t, err)
	require.Equal(t, "OrderedCollection", doc["type"])
	require.Equal(t, float64(10), doc["totalItems"])
	require.NotContains(t, doc, "last")
}

func TestOrderedCollectionPage_EmptyItems(t *testing.T) {
	page := NewOrderedCollectionPage(
		WithID(mustParseURL(t, "https://example.com/users/john/followers?cursor=0")),
	)

	pageBytes, err := json.Marshal(page)
	require.NoError(t, err)

	doc, err := UnmarshalToDoc(pageBytes)
	require.NoError(t, err)

	// An empty page serializes 'orderedItems' as an empty array rather than omitting it.
	require.Contains(t, doc, "orderedItems")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)

	return u
}
