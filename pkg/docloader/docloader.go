/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package docloader provides JSON-LD document loaders: a transport-backed loader that
// retrieves remote documents (optionally with signed requests) and a caching loader
// that stores retrieved documents in a key-value store.
package docloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/piprate/json-gold/ld"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/activitypub/client/transport"
	"github.com/fedgate/fedgate/pkg/store/spi"
)

var logger = log.New("docloader")

const defaultCacheExpiration = 24 * time.Hour

type httpTransport interface {
	Get(ctx context.Context, req *transport.Request) (*http.Response, error)
}

// NewDefault returns a document loader that retrieves documents with the default
// HTTP client and no request signatures.
func NewDefault() ld.DocumentLoader {
	return ld.NewDefaultDocumentLoader(http.DefaultClient)
}

// TransportLoader retrieves remote JSON-LD documents over the given transport. When
// the transport is configured with key material, every request is signed, which
// allows peers in authorized-fetch mode to serve private documents.
type TransportLoader struct {
	transport httpTransport
}

// NewTransportLoader returns a new transport-backed document loader.
func NewTransportLoader(t httpTransport) *TransportLoader {
	return &TransportLoader{transport: t}
}

// LoadDocument retrieves the document at the given URL.
func (l *TransportLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	docURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("parse document URL [%s]: %w", u, err)
	}

	req := transport.NewRequest(docURL)
	req.Header.Set("Accept", transport.ActivityStreamsContentType)

	resp, err := l.transport.Get(context.Background(), req)
	if err != nil {
		return nil, fmt.Errorf("get document [%s]: %w", u, err)
	}

	defer func() {
		if e := resp.Body.Close(); e != nil {
			logger.Warn("Error closing response body", log.WithError(e))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request to [%s] returned status code %d", u, resp.StatusCode)
	}

	docBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body from [%s]: %w", u, err)
	}

	var document interface{}

	if err := json.Unmarshal(docBytes, &document); err != nil {
		return nil, fmt.Errorf("unmarshal document from [%s]: %w", u, err)
	}

	return &ld.RemoteDocument{
		DocumentURL: u,
		Document:    document,
	}, nil
}

type cachedDocument struct {
	Document    json.RawMessage `json:"document"`
	ContextURL  string          `json:"contextUrl,omitempty"`
	DocumentURL string          `json:"documentUrl"`
	ExpiresAt   time.Time       `json:"expiresAt"`
}

// CachingLoader wraps a document loader with a cache held in a key-value store under
// the given key prefix.
type CachingLoader struct {
	store      spi.Store
	keyPrefix  []string
	next       ld.DocumentLoader
	expiration time.Duration
}

// NewCachingLoader returns a new caching document loader.
func NewCachingLoader(store spi.Store, keyPrefix []string, next ld.DocumentLoader) *CachingLoader {
	return &CachingLoader{
		store:      store,
		keyPrefix:  keyPrefix,
		next:       next,
		expiration: defaultCacheExpiration,
	}
}

// LoadDocument returns the cached document at the given URL, retrieving and caching
// it if no unexpired cache entry exists.
func (l *CachingLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	key := append(append([]string{}, l.keyPrefix...), u)

	value, err := l.store.Get(key)
	if err == nil {
		var cached cachedDocument

		if e := json.Unmarshal(value, &cached); e == nil && cached.ExpiresAt.After(time.Now()) {
			var document interface{}

			if e := json.Unmarshal(cached.Document, &document); e == nil {
				return &ld.RemoteDocument{
					DocumentURL: cached.DocumentURL,
					ContextURL:  cached.ContextURL,
					Document:    document,
				}, nil
			}
		}
	} else if !errors.Is(err, spi.ErrNotFound) {
		logger.Warn("Error loading document from cache", logfields.WithTarget(u), log.WithError(err))
	}

	doc, err := l.next.LoadDocument(u)
	if err != nil {
		return nil, err
	}

	docBytes, err := json.Marshal(doc.Document)
	if err != nil {
		return nil, fmt.Errorf("marshal document [%s]: %w", u, err)
	}

	cacheBytes, err := json.Marshal(&cachedDocument{
		Document:    docBytes,
		ContextURL:  doc.ContextURL,
		DocumentURL: doc.DocumentURL,
		ExpiresAt:   time.Now().Add(l.expiration),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry [%s]: %w", u, err)
	}

	if err := l.store.Put(key, cacheBytes, spi.WithTTL(l.expiration)); err != nil {
		logger.Warn("Error caching document", logfields.WithTarget(u), log.WithError(err))
	}

	return doc, nil
}
