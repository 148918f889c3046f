/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/piprate/json-gold/ld"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/activitypub/keys"
	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
	"github.com/fedgate/fedgate/pkg/federation/router"
)

// mainKeyFragment is the URL fragment identifying an actor's primary key.
const mainKeyFragment = "main-key"

// Context provides the URL builders and outbound operations of the federation
// registry, bound to a base URL and opaque user data.
type Context struct {
	federation *Federation
	base       *url.URL
	data       interface{}

	// documentLoader, when set, overrides the registry's default loader (e.g. with an
	// actor's authenticated loader for personal-inbox dispatch).
	documentLoader ld.DocumentLoader
}

// Data returns the opaque user data that the context was created with.
func (c *Context) Data() interface{} {
	return c.data
}

// NodeInfoURI returns the URI of the NodeInfo document.
func (c *Context) NodeInfoURI() (*url.URL, error) {
	if c.federation.nodeInfoDispatcher == nil {
		return nil, router.NewError("no NodeInfo dispatcher is registered")
	}

	return c.buildURI(routeNodeInfo, nil)
}

// ActorURI returns the URI of the actor with the given handle.
func (c *Context) ActorURI(handle string) (*url.URL, error) {
	if c.federation.actor == nil {
		return nil, router.NewError("no actor dispatcher is registered")
	}

	return c.buildURI(routeActor, map[string]string{handleVariable: handle})
}

// ObjectURI returns the URI of the object of the given type with the given template
// variable values.
func (c *Context) ObjectURI(objectType vocab.Type, values map[string]string) (*url.URL, error) {
	typeIRI := vocab.TypeIRI(objectType)

	if _, ok := c.federation.objects[typeIRI]; !ok {
		return nil, router.NewError("no object dispatcher for type [%s] is registered", objectType)
	}

	return c.buildURI(objectRoutePrefix+typeIRI, values)
}

// OutboxURI returns the URI of the outbox of the actor with the given handle.
func (c *Context) OutboxURI(handle string) (*url.URL, error) {
	if c.federation.outbox == nil {
		return nil, router.NewError("no outbox dispatcher is registered")
	}

	return c.buildURI(routeOutbox, map[string]string{handleVariable: handle})
}

// FollowingURI returns the URI of the following collection of the actor with the given handle.
func (c *Context) FollowingURI(handle string) (*url.URL, error) {
	if c.federation.following == nil {
		return nil, router.NewError("no following dispatcher is registered")
	}

	return c.buildURI(routeFollowing, map[string]string{handleVariable: handle})
}

// FollowersURI returns the URI of the followers collection of the actor with the given handle.
func (c *Context) FollowersURI(handle string) (*url.URL, error) {
	if c.federation.followers == nil {
		return nil, router.NewError("no followers dispatcher is registered")
	}

	return c.buildURI(routeFollowers, map[string]string{handleVariable: handle})
}

// InboxURI returns the URI of the personal inbox of the actor with the given handle.
func (c *Context) InboxURI(handle string) (*url.URL, error) {
	if c.federation.inbox == nil {
		return nil, router.NewError("no inbox listeners are registered")
	}

	return c.buildURI(routeInbox, map[string]string{handleVariable: handle})
}

// SharedInboxURI returns the URI of the shared inbox.
func (c *Context) SharedInboxURI() (*url.URL, error) {
	if !c.federation.router.Has(routeSharedInbox) {
		return nil, router.NewError("no shared inbox is registered")
	}

	return c.buildURI(routeSharedInbox, nil)
}

// HandleFromActorURI returns the handle of the actor with the given URI. False is
// returned if the URI has a different origin or does not match the actor route.
func (c *Context) HandleFromActorURI(u *url.URL) (string, bool) {
	if u.Host != c.base.Host {
		return "", false
	}

	match, ok := c.federation.router.Route(u.Path)
	if !ok || match.Name != routeActor {
		return "", false
	}

	return match.Values[handleVariable], true
}

// ActorKey returns the public key of the actor with the given handle, or nil if no
// key-pair dispatcher is registered or the dispatcher does not know the handle.
func (c *Context) ActorKey(ctx context.Context, handle string) (*vocab.PublicKeyType, error) {
	if c.federation.actor == nil || c.federation.actor.keyPair == nil {
		return nil, nil
	}

	keyPair, err := c.federation.actor.keyPair(ctx, c.data, handle)
	if err != nil {
		return nil, fmt.Errorf("key pair for handle [%s]: %w", handle, err)
	}

	if keyPair == nil {
		return nil, nil
	}

	actorURI, err := c.ActorURI(handle)
	if err != nil {
		return nil, err
	}

	pemKey, err := keys.EncodePublicKeyPEM(keyPair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key for handle [%s]: %w", handle, err)
	}

	keyID := mainKeyID(actorURI)

	return vocab.NewPublicKey(
		vocab.WithID(keyID),
		vocab.WithOwner(actorURI),
		vocab.WithPublicKeyPem(pemKey),
	), nil
}

// DocumentLoader returns the JSON-LD document loader of this context, which is the
// registry's default loader unless it has been swapped for an authenticated one.
func (c *Context) DocumentLoader() ld.DocumentLoader {
	if c.documentLoader != nil {
		return c.documentLoader
	}

	return c.federation.documentLoader
}

// AuthenticatedDocumentLoader returns a document loader whose requests are signed
// with the given key material.
func (c *Context) AuthenticatedDocumentLoader(keyID *url.URL, privateKey interface{}) (ld.DocumentLoader, error) {
	rsaKey, err := asRSAPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	return c.federation.authLoaderFactory(keyID, rsaKey), nil
}

// ActorDocumentLoader returns a document loader whose requests are signed with the
// key material of the actor with the given handle. A key-pair dispatcher must be
// registered.
func (c *Context) ActorDocumentLoader(ctx context.Context, handle string) (ld.DocumentLoader, error) {
	if c.federation.actor == nil || c.federation.actor.keyPair == nil {
		return nil, fmt.Errorf("no key-pair dispatcher is registered")
	}

	keyPair, err := c.federation.actor.keyPair(ctx, c.data, handle)
	if err != nil {
		return nil, fmt.Errorf("key pair for handle [%s]: %w", handle, err)
	}

	if keyPair == nil {
		return nil, fmt.Errorf("no key pair for handle [%s]", handle)
	}

	actorURI, err := c.ActorURI(handle)
	if err != nil {
		return nil, err
	}

	return c.federation.authLoaderFactory(mainKeyID(actorURI), keyPair.PrivateKey), nil
}

// SendActivity delivers the activity to the inboxes of the given recipients on behalf
// of the actor with the given handle.
func (c *Context) SendActivity(ctx context.Context, sender *Sender, recipients []*vocab.ActorType,
	activity *vocab.ActivityType, opts ...SendOpt) error {
	resolved, err := c.resolveSender(ctx, sender)
	if err != nil {
		return err
	}

	return c.federation.sendActivity(ctx, resolved, recipients, activity, opts...)
}

func (c *Context) resolveSender(ctx context.Context, sender *Sender) (*resolvedSender, error) {
	if sender == nil {
		return nil, fmt.Errorf("a sender is required")
	}

	if sender.KeyID != nil && sender.PrivateKey != nil {
		return &resolvedSender{keyID: sender.KeyID, privateKey: sender.PrivateKey}, nil
	}

	if c.federation.actor == nil || c.federation.actor.keyPair == nil {
		return nil, fmt.Errorf("no key-pair dispatcher is registered")
	}

	keyPair, err := c.federation.actor.keyPair(ctx, c.data, sender.Handle)
	if err != nil {
		return nil, fmt.Errorf("key pair for handle [%s]: %w", sender.Handle, err)
	}

	if keyPair == nil {
		return nil, fmt.Errorf("no key pair for handle [%s]", sender.Handle)
	}

	actorURI, err := c.ActorURI(sender.Handle)
	if err != nil {
		return nil, err
	}

	return &resolvedSender{keyID: mainKeyID(actorURI), privateKey: keyPair.PrivateKey}, nil
}

func (c *Context) buildURI(name string, values map[string]string) (*url.URL, error) {
	path, err := c.federation.router.Build(name, values)
	if err != nil {
		return nil, err
	}

	u := *c.base
	u.Path = path

	return &u, nil
}

func mainKeyID(actorURI *url.URL) *url.URL {
	keyID := *actorURI
	keyID.Fragment = mainKeyFragment

	return &keyID
}

// RequestContext extends Context with the inbound request and the results of
// HTTP-signature verification.
type RequestContext struct {
	*Context

	request *http.Request
	url     *url.URL

	fromActorDispatcher  bool
	fromObjectDispatcher bool

	sigState int
	sigKey   *vocab.PublicKeyType
	sigOwner *vocab.ActorType
}

const (
	sigUnresolved = iota
	sigResolved
)

func (f *Federation) newRequestContext(req *http.Request, data interface{}) *RequestContext {
	base := &url.URL{
		Scheme: "http",
		Host:   req.Host,
	}

	if req.TLS != nil {
		base.Scheme = "https"
	}

	requestURL := *req.URL
	requestURL.Scheme = base.Scheme
	requestURL.Host = base.Host

	return &RequestContext{
		Context: f.NewContext(base, data),
		request: req,
		url:     &requestURL,
	}
}

// Request returns the inbound HTTP request.
func (c *RequestContext) Request() *http.Request {
	return c.request
}

// URL returns the parsed URL of the inbound request.
func (c *RequestContext) URL() *url.URL {
	return c.url
}

// GetActor invokes the actor dispatcher for the given handle. A re-entrant call from
// within the dispatcher logs a recursion warning but still proceeds.
func (c *RequestContext) GetActor(ctx context.Context, handle string) (*vocab.ActorType, error) {
	if c.federation.actor == nil {
		return nil, router.NewError("no actor dispatcher is registered")
	}

	if c.fromActorDispatcher {
		logger.Warn("The actor dispatcher invoked getActor for its own handle, which may cause"+
			" an infinite loop", logfields.WithHandle(handle))
	}

	key, err := c.ActorKey(ctx, handle)
	if err != nil {
		return nil, err
	}

	rctx := c.shallowCopy()
	rctx.fromActorDispatcher = true

	return c.federation.actor.dispatcher(ctx, rctx, handle, key)
}

// GetObject invokes the object dispatcher for the given type with the given template
// variable values. A re-entrant call from within the dispatcher logs a recursion
// warning but still proceeds.
func (c *RequestContext) GetObject(ctx context.Context, objectType vocab.Type,
	values map[string]string) (*vocab.ObjectType, error) {
	record, ok := c.federation.objects[vocab.TypeIRI(objectType)]
	if !ok {
		return nil, router.NewError("no object dispatcher for type [%s] is registered", objectType)
	}

	for _, parameter := range record.parameters {
		if _, ok := values[parameter]; !ok {
			return nil, fmt.Errorf("missing value for parameter [%s] of object type [%s]",
				parameter, objectType)
		}
	}

	if c.fromObjectDispatcher {
		logger.Warn("The object dispatcher invoked getObject for its own type, which may cause"+
			" an infinite loop", logfields.WithParameter(objectType))
	}

	rctx := c.shallowCopy()
	rctx.fromObjectDispatcher = true

	return record.dispatcher(ctx, rctx, values)
}

// SignedKey verifies the HTTP signature on the request and returns the public key
// that signed it, or nil if the request has no valid signature. Verification runs at
// most once per request; subsequent calls return the memoized result.
func (c *RequestContext) SignedKey() *vocab.PublicKeyType {
	c.resolveSignature()

	return c.sigKey
}

// SignedKeyOwner returns the actor that owns the key returned by SignedKey, or nil if
// the request has no valid signature.
func (c *RequestContext) SignedKeyOwner() *vocab.ActorType {
	c.resolveSignature()

	return c.sigOwner
}

func (c *RequestContext) resolveSignature() {
	if c.sigState != sigUnresolved {
		return
	}

	c.sigState = sigResolved

	if c.request.Header.Get("Signature") == "" && c.request.Header.Get("Authorization") == "" {
		return
	}

	// The Go HTTP server moves the Host header into Request.Host, but the signature
	// covers the 'host' header, so restore it before verification.
	if c.request.Header.Get("Host") == "" && c.request.Host != "" {
		c.request.Header.Set("Host", c.request.Host)
	}

	key, owner, err := c.federation.verifier.VerifyRequest(c.request)
	if err != nil {
		logger.Debug("HTTP signature verification failed", log.WithError(err),
			logfields.WithRequestURL(c.url))

		return
	}

	c.sigKey = key
	c.sigOwner = owner
}

func (c *RequestContext) shallowCopy() *RequestContext {
	copied := *c

	return &copied
}
