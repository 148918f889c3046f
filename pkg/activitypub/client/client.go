/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bluele/gcache"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/activitypub/client/transport"
	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
	"github.com/fedgate/fedgate/pkg/errors"
)

var logger = log.New("client")

const (
	defaultCacheSize       = 100
	defaultCacheExpiration = time.Minute

	acceptHeader           = "Accept"
	activityStreamsAccepts = "application/activity+json, application/ld+json"
)

type httpTransport interface {
	Get(ctx context.Context, req *transport.Request) (*http.Response, error)
}

// Config contains configuration parameters for the client.
type Config struct {
	CacheSize       int
	CacheExpiration time.Duration
}

// Client implements an ActivityPub client which retrieves ActivityPub objects (such as
// actors and public keys) from remote sources.
type Client struct {
	httpTransport

	actorCache     gcache.Cache
	publicKeyCache gcache.Cache
}

// New returns a new ActivityPub client.
func New(cfg Config, t httpTransport) *Client {
	c := &Client{
		httpTransport: t,
	}

	cacheSize := cfg.CacheSize

	if cacheSize == 0 {
		cacheSize = defaultCacheSize
	}

	cacheExpiration := cfg.CacheExpiration

	if cacheExpiration == 0 {
		cacheExpiration = defaultCacheExpiration
	}

	logger.Debug("Creating object caches", logfields.WithSize(cacheSize),
		logfields.WithCacheExpiration(cacheExpiration))

	c.actorCache = gcache.New(cacheSize).ARC().
		Expiration(cacheExpiration).
		LoaderFunc(func(i interface{}) (interface{}, error) {
			return c.loadActor(i.(string))
		}).Build()

	c.publicKeyCache = gcache.New(cacheSize).ARC().
		Expiration(cacheExpiration).
		LoaderFunc(func(i interface{}) (interface{}, error) {
			return c.loadPublicKey(i.(string))
		}).Build()

	return c
}

// GetActor returns the actor at the given IRI. The actor is cached for a short period
// so that bursts of requests (such as signature verifications) don't each hit the remote.
func (c *Client) GetActor(_ context.Context, actorIRI *url.URL) (*vocab.ActorType, error) {
	result, err := c.actorCache.Get(actorIRI.String())
	if err != nil {
		return nil, fmt.Errorf("get actor [%s]: %w", actorIRI, err)
	}

	return result.(*vocab.ActorType), nil
}

// GetPublicKey returns the public key at the given IRI.
func (c *Client) GetPublicKey(_ context.Context, keyIRI *url.URL) (*vocab.PublicKeyType, error) {
	result, err := c.publicKeyCache.Get(keyIRI.String())
	if err != nil {
		return nil, fmt.Errorf("get public key [%s]: %w", keyIRI, err)
	}

	return result.(*vocab.PublicKeyType), nil
}

func (c *Client) loadActor(actorIRI string) (*vocab.ActorType, error) {
	respBytes, err := c.get(actorIRI)
	if err != nil {
		return nil, err
	}

	actor := &vocab.ActorType{}

	if err := json.Unmarshal(respBytes, actor); err != nil {
		return nil, fmt.Errorf("unmarshal actor: %w", err)
	}

	return actor, nil
}

func (c *Client) loadPublicKey(keyIRI string) (*vocab.PublicKeyType, error) {
	respBytes, err := c.get(keyIRI)
	if err != nil {
		return nil, err
	}

	// A key IRI usually dereferences to the owning actor, with the key embedded in
	// the 'publicKey' property.
	actor := &vocab.ActorType{}

	if err := json.Unmarshal(respBytes, actor); err == nil && actor.PublicKey() != nil &&
		actor.PublicKey().ID.String() == keyIRI {
		return actor.PublicKey(), nil
	}

	pubKey := &vocab.PublicKeyType{}

	if err := json.Unmarshal(respBytes, pubKey); err != nil {
		return nil, fmt.Errorf("unmarshal public key: %w", err)
	}

	return pubKey, nil
}

func (c *Client) get(iri string) ([]byte, error) {
	u, err := url.Parse(iri)
	if err != nil {
		return nil, fmt.Errorf("parse IRI [%s]: %w", iri, err)
	}

	req := transport.NewRequest(u)
	req.Header.Set(acceptHeader, activityStreamsAccepts)

	resp, err := c.Get(context.Background(), req)
	if err != nil {
		return nil, errors.NewTransientf("transport GET [%s]: %w", iri, err)
	}

	defer func() {
		if e := resp.Body.Close(); e != nil {
			logger.Warn("Error closing response body", log.WithError(e))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return nil, errors.ErrNotFound
		}

		return nil, errors.NewTransientf("request to [%s] returned status code %d", iri, resp.StatusCode)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransientf("read response body from [%s]: %w", iri, err)
	}

	return respBytes, nil
}
