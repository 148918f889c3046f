/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package federation implements a registry-and-router subsystem that turns an HTTP
// server into an ActivityPub-compatible federated peer. The host application registers
// dispatchers for the federation surfaces (actors, objects, collections, inboxes,
// WebFinger, NodeInfo), routes inbound requests through Fetch, and sends outbound
// activities through SendActivity.
package federation

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/piprate/json-gold/ld"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/activitypub/client"
	"github.com/fedgate/fedgate/pkg/activitypub/client/transport"
	"github.com/fedgate/fedgate/pkg/activitypub/httpsig"
	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
	"github.com/fedgate/fedgate/pkg/docloader"
	"github.com/fedgate/fedgate/pkg/federation/router"
	"github.com/fedgate/fedgate/pkg/metrics"
	queuespi "github.com/fedgate/fedgate/pkg/queue/spi"
	storespi "github.com/fedgate/fedgate/pkg/store/spi"
)

var logger = log.New("federation")

// Route names of the federation surfaces.
const (
	routeWebFinger         = "webfinger"
	routeNodeInfoWellKnown = "nodeinfo-wellknown"
	routeNodeInfo          = "nodeinfo"
	routeActor             = "actor"
	routeOutbox            = "outbox"
	routeFollowing         = "following"
	routeFollowers         = "followers"
	routeInbox             = "inbox"
	routeSharedInbox       = "sharedInbox"

	objectRoutePrefix = "object:"
)

const (
	// WebFingerPath is the fixed path of the WebFinger endpoint.
	WebFingerPath = "/.well-known/webfinger"
	// NodeInfoWellKnownPath is the fixed path of the NodeInfo discovery endpoint.
	NodeInfoWellKnownPath = "/.well-known/nodeinfo"
)

const handleVariable = "handle"

const idempotenceTTL = 2 * 24 * time.Hour

// KVPrefixes holds the key prefixes under which the registry stores its state.
type KVPrefixes struct {
	ActivityIdempotence []string
	RemoteDocument      []string
}

func defaultKVPrefixes() *KVPrefixes {
	return &KVPrefixes{
		ActivityIdempotence: []string{"_fedgate", "activityIdempotence"},
		RemoteDocument:      []string{"_fedgate", "remoteDocument"},
	}
}

func defaultBackoffSchedule() []time.Duration {
	return []time.Duration{
		3 * time.Second,
		15 * time.Second,
		time.Minute,
		15 * time.Minute,
		time.Hour,
	}
}

// AuthDocumentLoaderFactory produces a document loader whose requests are signed with
// the given key material.
type AuthDocumentLoaderFactory func(keyID *url.URL, privateKey *rsa.PrivateKey) ld.DocumentLoader

// Options holds the configuration parameters of the federation registry.
type Options struct {
	// Store is the key-value store that holds the registry's persistent state. Required.
	Store storespi.Store

	// KVPrefixes overrides the key prefixes under which the registry stores its state.
	KVPrefixes *KVPrefixes

	// Queue is the message queue for outbound deliveries. If no queue is provided then
	// all deliveries are performed immediately.
	Queue queuespi.Queue

	// DocumentLoader overrides the default JSON-LD document loader. The default loader
	// fetches documents over HTTP and caches them in the store under the
	// RemoteDocument prefix.
	DocumentLoader ld.DocumentLoader

	// AuthDocumentLoaderFactory overrides the factory for authenticated document loaders.
	AuthDocumentLoaderFactory AuthDocumentLoaderFactory

	// TreatHTTPS causes context URLs to be built with the https scheme even when the
	// inbound request arrived over http, which is the case behind a TLS-terminating proxy.
	TreatHTTPS bool

	// OnOutboxError is invoked on each failed delivery of an outbound activity.
	OnOutboxError OutboxErrorHandler

	// BackoffSchedule holds the delays between successive delivery attempts. A failed
	// delivery is retried at most len(BackoffSchedule) times.
	BackoffSchedule []time.Duration

	// Metrics records operation timings. Defaults to a no-op provider.
	Metrics metrics.Provider

	// HTTPClient is the client used for outbound requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Federation is the registry at the core of the federation middleware. It is long-lived
// and must be fully configured (via the Set* registration methods) before the first
// call to Fetch or SendActivity.
type Federation struct {
	store             storespi.Store
	kvPrefixes        *KVPrefixes
	queue             queuespi.Queue
	router            *router.Router
	documentLoader    ld.DocumentLoader
	authLoaderFactory AuthDocumentLoaderFactory
	treatHTTPS        bool
	onOutboxError     OutboxErrorHandler
	backoffSchedule   []time.Duration
	metrics           metrics.Provider
	httpClient        *http.Client
	client            *client.Client
	verifier          *httpsig.Verifier

	actor              *actorRecord
	objects            map[string]*objectRecord
	outbox             *collectionRecord
	following          *collectionRecord
	followers          *collectionRecord
	inbox              *inboxRecord
	nodeInfoDispatcher NodeInfoDispatcher

	queueStarted uint32
}

// New returns a new federation registry.
func New(opts *Options) (*Federation, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("a key-value store is required")
	}

	f := &Federation{
		store:             opts.Store,
		kvPrefixes:        opts.KVPrefixes,
		queue:             opts.Queue,
		router:            router.New(),
		documentLoader:    opts.DocumentLoader,
		authLoaderFactory: opts.AuthDocumentLoaderFactory,
		treatHTTPS:        opts.TreatHTTPS,
		onOutboxError:     opts.OnOutboxError,
		backoffSchedule:   opts.BackoffSchedule,
		metrics:           opts.Metrics,
		httpClient:        opts.HTTPClient,
		objects:           make(map[string]*objectRecord),
	}

	if f.kvPrefixes == nil {
		f.kvPrefixes = defaultKVPrefixes()
	}

	if f.backoffSchedule == nil {
		f.backoffSchedule = defaultBackoffSchedule()
	}

	if f.metrics == nil {
		f.metrics = metrics.NewNoOp()
	}

	if f.httpClient == nil {
		f.httpClient = http.DefaultClient
	}

	if f.documentLoader == nil {
		f.documentLoader = docloader.NewCachingLoader(f.store, f.kvPrefixes.RemoteDocument,
			ld.NewDefaultDocumentLoader(f.httpClient))
	}

	if f.authLoaderFactory == nil {
		f.authLoaderFactory = f.newAuthDocumentLoader
	}

	f.client = client.New(client.Config{}, transport.New(f.httpClient, nil, &url.URL{},
		transport.DefaultSigner(), transport.DefaultSigner()))

	f.verifier = httpsig.NewVerifier(httpsig.DefaultVerifierConfig(), f.client)

	mustAddRoute(f.router, WebFingerPath, routeWebFinger)
	mustAddRoute(f.router, NodeInfoWellKnownPath, routeNodeInfoWellKnown)

	return f, nil
}

// SetNodeInfoDispatcher registers the NodeInfo dispatcher at the given path. The path
// template must have no variables. This method panics on a duplicate registration or
// an invalid template.
func (f *Federation) SetNodeInfoDispatcher(path string, dispatcher NodeInfoDispatcher) {
	if f.nodeInfoDispatcher != nil {
		panic(fmt.Errorf("a NodeInfo dispatcher is already registered"))
	}

	f.addRouteWithVariables(path, routeNodeInfo)

	f.nodeInfoDispatcher = dispatcher
}

// SetActorDispatcher registers the actor dispatcher at the given path. The path
// template must have exactly one variable, {handle}. This method panics on a duplicate
// registration or an invalid template.
func (f *Federation) SetActorDispatcher(path string, dispatcher ActorDispatcher) *ActorCallbackSetters {
	if f.actor != nil {
		panic(fmt.Errorf("an actor dispatcher is already registered"))
	}

	f.addRouteWithVariables(path, routeActor, handleVariable)

	f.actor = &actorRecord{dispatcher: dispatcher}

	return &ActorCallbackSetters{record: f.actor}
}

// SetObjectDispatcher registers a dispatcher for objects of the given type at the
// given path. The path template must have at least one variable. This method panics on
// a duplicate registration or an invalid template.
func (f *Federation) SetObjectDispatcher(objectType vocab.Type, path string,
	dispatcher ObjectDispatcher) *ObjectCallbackSetters {
	typeIRI := vocab.TypeIRI(objectType)

	if _, ok := f.objects[typeIRI]; ok {
		panic(fmt.Errorf("an object dispatcher for type [%s] is already registered", objectType))
	}

	parameters := f.addRoute(path, objectRoutePrefix+typeIRI)

	if len(parameters) == 0 {
		panic(router.NewError("the object path template [%s] must have at least one variable", path))
	}

	record := &objectRecord{dispatcher: dispatcher, parameters: parameters}

	f.objects[typeIRI] = record

	return &ObjectCallbackSetters{record: record}
}

// SetOutboxDispatcher registers the outbox collection dispatcher at the given path.
// The path template must have exactly one variable, {handle}.
func (f *Federation) SetOutboxDispatcher(path string, dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	return f.setCollectionDispatcher(&f.outbox, path, routeOutbox, dispatcher)
}

// SetFollowingDispatcher registers the following collection dispatcher at the given
// path. The path template must have exactly one variable, {handle}.
func (f *Federation) SetFollowingDispatcher(path string, dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	return f.setCollectionDispatcher(&f.following, path, routeFollowing, dispatcher)
}

// SetFollowersDispatcher registers the followers collection dispatcher at the given
// path. The path template must have exactly one variable, {handle}.
func (f *Federation) SetFollowersDispatcher(path string, dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	return f.setCollectionDispatcher(&f.followers, path, routeFollowers, dispatcher)
}

func (f *Federation) setCollectionDispatcher(record **collectionRecord, path, name string,
	dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	if *record != nil {
		panic(fmt.Errorf("a dispatcher for route [%s] is already registered", name))
	}

	f.addRouteWithVariables(path, name, handleVariable)

	*record = &collectionRecord{dispatcher: dispatcher}

	return &CollectionCallbackSetters{record: *record}
}

// SetInboxListeners registers the personal (and optionally shared) inbox endpoints.
// The personal inbox template must have exactly one variable, {handle}; the shared
// inbox template must have no variables. This method panics on a duplicate
// registration or an invalid template.
func (f *Federation) SetInboxListeners(inboxPath string, sharedInboxPath ...string) *InboxListenerSetter {
	if f.inbox != nil {
		panic(fmt.Errorf("inbox listeners are already registered"))
	}

	f.addRouteWithVariables(inboxPath, routeInbox, handleVariable)

	if len(sharedInboxPath) > 0 {
		f.addRouteWithVariables(sharedInboxPath[0], routeSharedInbox)
	}

	f.inbox = &inboxRecord{}

	return &InboxListenerSetter{record: f.inbox}
}

// addRoute registers a route and returns its variables, panicking on error.
func (f *Federation) addRoute(path, name string) []string {
	variables, err := f.router.Add(path, name)
	if err != nil {
		panic(err)
	}

	return variables
}

// addRouteWithVariables registers a route whose variable set must exactly equal the
// given variables, panicking on a mismatch.
func (f *Federation) addRouteWithVariables(path, name string, variables ...string) {
	actual := f.addRoute(path, name)

	if !sameVariables(actual, variables) {
		panic(router.NewError("the path template [%s] for route [%s] must have the variables %v but has %v",
			path, name, variables, actual))
	}
}

func mustAddRoute(r *router.Router, path, name string) {
	if _, err := r.Add(path, name); err != nil {
		panic(err)
	}
}

func sameVariables(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}

	expectedSet := make(map[string]struct{}, len(expected))

	for _, v := range expected {
		expectedSet[v] = struct{}{}
	}

	for _, v := range actual {
		if _, ok := expectedSet[v]; !ok {
			return false
		}
	}

	return true
}

// NewContext returns a Context bound to the given base URL.
func (f *Federation) NewContext(base *url.URL, data interface{}) *Context {
	return &Context{
		federation: f,
		base:       f.canonicalBase(base),
		data:       data,
	}
}

func (f *Federation) canonicalBase(u *url.URL) *url.URL {
	base := &url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
	}

	if f.treatHTTPS {
		base.Scheme = "https"
	}

	return base
}

func (f *Federation) newAuthDocumentLoader(keyID *url.URL, privateKey *rsa.PrivateKey) ld.DocumentLoader {
	t := transport.New(f.httpClient, privateKey, keyID,
		httpsig.NewSigner(httpsig.DefaultGetSignerConfig()),
		httpsig.NewSigner(httpsig.DefaultPostSignerConfig()))

	return docloader.NewCachingLoader(f.store, f.kvPrefixes.RemoteDocument, docloader.NewTransportLoader(t))
}

// ensureQueueListener starts the outbound queue listener if it has not been started.
// The flag is set exactly once for the lifetime of the registry.
func (f *Federation) ensureQueueListener() error {
	if !atomic.CompareAndSwapUint32(&f.queueStarted, 0, 1) {
		return nil
	}

	logger.Info("Starting outbound delivery listener")

	if err := f.queue.Listen(f.handleOutboxMessage); err != nil {
		return fmt.Errorf("listen on outbound queue: %w", err)
	}

	return nil
}

func (f *Federation) invokeOutboxErrorHandler(err error, activity *vocab.ActivityType) {
	if f.onOutboxError == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Outbox error handler panicked", log.WithError(fmt.Errorf("%v", r)))
		}
	}()

	f.onOutboxError(err, activity)
}

func (f *Federation) inboxErrorHandler(ctx context.Context, rctx *RequestContext,
	activity *vocab.ActivityType, err error) {
	if f.inbox == nil || f.inbox.onError == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Inbox error handler panicked", log.WithError(fmt.Errorf("%v", r)))
		}
	}()

	f.inbox.onError(ctx, rctx, activity, err)
}

func (f *Federation) idempotenceKey(activityID string) []string {
	return append(append([]string{}, f.kvPrefixes.ActivityIdempotence...), activityID)
}

func (f *Federation) claimActivity(activityID string) (bool, error) {
	claimed, err := f.store.PutIfAbsent(f.idempotenceKey(activityID), []byte("1"),
		storespi.WithTTL(idempotenceTTL))
	if err != nil {
		return false, fmt.Errorf("claim activity [%s]: %w", activityID, err)
	}

	if !claimed {
		logger.Debug("Ignoring duplicate activity", logfields.WithActivityID(activityID))
	}

	return claimed, nil
}
