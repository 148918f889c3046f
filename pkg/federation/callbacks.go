/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
	"github.com/fedgate/fedgate/pkg/nodeinfo"
)

// KeyPair holds the key material of a local actor.
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// ActorDispatcher returns the actor for the given handle, or nil if the actor does
// not exist. The public key of the actor (from the key-pair dispatcher, if one is
// registered) is passed so that the dispatcher can attach it to the actor.
type ActorDispatcher func(ctx context.Context, rctx *RequestContext, handle string,
	publicKey *vocab.PublicKeyType) (*vocab.ActorType, error)

// KeyPairDispatcher returns the key pair of the actor with the given handle, or nil
// if the actor does not exist.
type KeyPairDispatcher func(ctx context.Context, data interface{}, handle string) (*KeyPair, error)

// ActorAuthorizer determines whether the requester is allowed to view the actor with
// the given handle. The key and key owner are the results of HTTP-signature
// verification on the request, and are nil when the request is unsigned.
type ActorAuthorizer func(ctx context.Context, rctx *RequestContext, handle string,
	key *vocab.PublicKeyType, keyOwner *vocab.ActorType) (bool, error)

// ObjectDispatcher returns the object for the given template variable values, or nil
// if the object does not exist.
type ObjectDispatcher func(ctx context.Context, rctx *RequestContext,
	values map[string]string) (*vocab.ObjectType, error)

// ObjectAuthorizer determines whether the requester is allowed to view the object
// with the given template variable values.
type ObjectAuthorizer func(ctx context.Context, rctx *RequestContext, values map[string]string,
	key *vocab.PublicKeyType, keyOwner *vocab.ActorType) (bool, error)

// CollectionPage holds one page of a collection.
type CollectionPage struct {
	// Items contains the items of the page.
	Items []vocab.Document

	// NextCursor is the cursor of the next page, or nil if this is the last page.
	NextCursor *string
}

// CollectionDispatcher returns the page of a collection identified by the given
// cursor, or nil if the collection does not exist for the handle.
type CollectionDispatcher func(ctx context.Context, rctx *RequestContext, handle,
	cursor string) (*CollectionPage, error)

// CollectionCounter returns the total number of items in the collection, or a
// negative value if the total is unknown.
type CollectionCounter func(ctx context.Context, rctx *RequestContext, handle string) (int, error)

// CollectionCursor returns an edge cursor of the collection, or nil if the collection
// is empty.
type CollectionCursor func(ctx context.Context, rctx *RequestContext, handle string) (*string, error)

// CollectionAuthorizer determines whether the requester is allowed to view the
// collection of the actor with the given handle.
type CollectionAuthorizer func(ctx context.Context, rctx *RequestContext, handle string,
	key *vocab.PublicKeyType, keyOwner *vocab.ActorType) (bool, error)

// InboxListener handles an activity that was posted to an inbox. Listeners are
// registered per activity type; an activity is dispatched to the listener of the most
// specific type in its type chain.
type InboxListener func(ctx context.Context, rctx *RequestContext, activity *vocab.ActivityType) error

// InboxErrorHandler is invoked when an inbox listener returns an error, or when the
// posted document cannot be parsed (in which case the activity is nil).
type InboxErrorHandler func(ctx context.Context, rctx *RequestContext, activity *vocab.ActivityType, err error)

// NodeInfoDispatcher returns the NodeInfo document describing this server.
type NodeInfoDispatcher func(ctx context.Context, rctx *RequestContext) (*nodeinfo.NodeInfo, error)

// OutboxErrorHandler is invoked each time the delivery of an activity to a remote
// inbox fails. The activity is nil if the queued message could not be deserialized.
type OutboxErrorHandler func(err error, activity *vocab.ActivityType)

type actorRecord struct {
	dispatcher ActorDispatcher
	keyPair    KeyPairDispatcher
	authorize  ActorAuthorizer
}

type objectRecord struct {
	dispatcher ObjectDispatcher
	parameters []string
	authorize  ObjectAuthorizer
}

type collectionRecord struct {
	dispatcher  CollectionDispatcher
	counter     CollectionCounter
	firstCursor CollectionCursor
	lastCursor  CollectionCursor
	authorize   CollectionAuthorizer
}

type inboxListenerEntry struct {
	activityType vocab.Type
	listener     InboxListener
}

type inboxRecord struct {
	listeners []*inboxListenerEntry
	onError   InboxErrorHandler
}

func (r *inboxRecord) listenerFor(activityType vocab.Type) (InboxListener, bool) {
	for _, entry := range r.listeners {
		if entry.activityType == activityType {
			return entry.listener, true
		}
	}

	return nil, false
}

// ActorCallbackSetters sets the optional callbacks of the actor dispatcher.
type ActorCallbackSetters struct {
	record *actorRecord
}

// SetKeyPairDispatcher sets the dispatcher that provides the key material of local actors.
func (s *ActorCallbackSetters) SetKeyPairDispatcher(dispatcher KeyPairDispatcher) *ActorCallbackSetters {
	s.record.keyPair = dispatcher

	return s
}

// Authorize sets the predicate that gates access to the actor.
func (s *ActorCallbackSetters) Authorize(authorize ActorAuthorizer) *ActorCallbackSetters {
	s.record.authorize = authorize

	return s
}

// ObjectCallbackSetters sets the optional callbacks of an object dispatcher.
type ObjectCallbackSetters struct {
	record *objectRecord
}

// Authorize sets the predicate that gates access to the object.
func (s *ObjectCallbackSetters) Authorize(authorize ObjectAuthorizer) *ObjectCallbackSetters {
	s.record.authorize = authorize

	return s
}

// CollectionCallbackSetters sets the optional callbacks of a collection dispatcher.
type CollectionCallbackSetters struct {
	record *collectionRecord
}

// SetCounter sets the callback that provides the collection's total number of items.
func (s *CollectionCallbackSetters) SetCounter(counter CollectionCounter) *CollectionCallbackSetters {
	s.record.counter = counter

	return s
}

// SetFirstCursor sets the callback that provides the cursor of the collection's first page.
func (s *CollectionCallbackSetters) SetFirstCursor(cursor CollectionCursor) *CollectionCallbackSetters {
	s.record.firstCursor = cursor

	return s
}

// SetLastCursor sets the callback that provides the cursor of the collection's last page.
func (s *CollectionCallbackSetters) SetLastCursor(cursor CollectionCursor) *CollectionCallbackSetters {
	s.record.lastCursor = cursor

	return s
}

// Authorize sets the predicate that gates access to the collection.
func (s *CollectionCallbackSetters) Authorize(authorize CollectionAuthorizer) *CollectionCallbackSetters {
	s.record.authorize = authorize

	return s
}

// InboxListenerSetter registers the listeners for activities posted to an inbox.
type InboxListenerSetter struct {
	record *inboxRecord
}

// On registers the listener for the given activity type. Registering the same type
// twice panics.
func (s *InboxListenerSetter) On(activityType vocab.Type, listener InboxListener) *InboxListenerSetter {
	if _, ok := s.record.listenerFor(activityType); ok {
		panic(fmt.Errorf("an inbox listener for type [%s] is already registered", activityType))
	}

	s.record.listeners = append(s.record.listeners, &inboxListenerEntry{
		activityType: activityType,
		listener:     listener,
	})

	return s
}

// OnError sets the handler that is invoked when an inbox listener returns an error.
// A second call replaces the previous handler.
func (s *InboxListenerSetter) OnError(handler InboxErrorHandler) *InboxListenerSetter {
	s.record.onError = handler

	return s
}
