/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
)

const (
	varyHeader = "Accept, Signature"

	activityStreamsContentType = "application/activity+json"

	notFoundResponse            = "Not Found.\n"
	notAcceptableResponse       = "Not Acceptable.\n"
	unauthorizedResponse        = "Unauthorized.\n"
	badRequestResponse          = "Bad Request.\n"
	internalServerErrorResponse = "Internal Server Error.\n"
	acceptedResponse            = "Accepted.\n"
)

// FetchOptions holds the per-request options of Fetch.
type FetchOptions struct {
	// ContextData is the opaque user data exposed by the request context.
	ContextData interface{}

	// OnNotFound overrides the response for requests that match no registered surface.
	OnNotFound http.HandlerFunc

	// OnNotAcceptable overrides the response for requests whose Accept header has no
	// ActivityStreams-compatible media type.
	OnNotAcceptable http.HandlerFunc

	// OnUnauthorized overrides the response for unauthorized requests.
	OnUnauthorized http.HandlerFunc
}

func (o *FetchOptions) notFound(w http.ResponseWriter, req *http.Request) {
	if o.OnNotFound != nil {
		o.OnNotFound(w, req)

		return
	}

	writeText(w, http.StatusNotFound, notFoundResponse)
}

func (o *FetchOptions) notAcceptable(w http.ResponseWriter, req *http.Request) {
	if o.OnNotAcceptable != nil {
		o.OnNotAcceptable(w, req)

		return
	}

	w.Header().Set("Vary", varyHeader)

	writeText(w, http.StatusNotAcceptable, notAcceptableResponse)
}

func (o *FetchOptions) unauthorized(w http.ResponseWriter, req *http.Request) {
	if o.OnUnauthorized != nil {
		o.OnUnauthorized(w, req)

		return
	}

	w.Header().Set("Vary", varyHeader)

	writeText(w, http.StatusUnauthorized, unauthorizedResponse)
}

// Fetch routes the inbound request to the registered surface handler. Requests that
// match no registered route are delegated to opts.OnNotFound.
func (f *Federation) Fetch(w http.ResponseWriter, req *http.Request, opts *FetchOptions) {
	if opts == nil {
		opts = &FetchOptions{}
	}

	match, ok := f.router.Route(req.URL.Path)
	if !ok {
		opts.notFound(w, req)

		return
	}

	logger.Debug("Routing request", logfields.WithRequestURL(req.URL),
		logfields.WithRouteName(match.Name))

	ctx := req.Context()
	rctx := f.newRequestContext(req, opts.ContextData)

	switch match.Name {
	case routeWebFinger:
		f.handleWebFinger(ctx, rctx, w, req, opts)
	case routeNodeInfoWellKnown:
		f.handleNodeInfoWellKnown(w, req, rctx, opts)
	case routeNodeInfo:
		f.handleNodeInfo(ctx, rctx, w, req)
	case routeActor:
		f.handleActor(ctx, rctx, w, req, match.Values[handleVariable], opts)
	case routeOutbox:
		f.handleCollection(ctx, rctx, w, req, f.outbox, match.Values[handleVariable], opts)
	case routeFollowing:
		f.handleCollection(ctx, rctx, w, req, f.following, match.Values[handleVariable], opts)
	case routeFollowers:
		f.handleCollection(ctx, rctx, w, req, f.followers, match.Values[handleVariable], opts)
	case routeInbox:
		f.handleInbox(ctx, rctx, w, req, match.Values[handleVariable], opts)
	case routeSharedInbox:
		f.handleInbox(ctx, rctx, w, req, "", opts)
	default:
		if typeIRI, ok := strings.CutPrefix(match.Name, objectRoutePrefix); ok {
			f.handleObject(ctx, rctx, w, req, typeIRI, match.Values, opts)

			return
		}

		opts.notFound(w, req)
	}
}

func (f *Federation) handleActor(ctx context.Context, rctx *RequestContext, w http.ResponseWriter,
	req *http.Request, handle string, opts *FetchOptions) {
	if f.actor == nil {
		opts.notFound(w, req)

		return
	}

	if !acceptsActivityStreams(req) {
		opts.notAcceptable(w, req)

		return
	}

	key, err := rctx.ActorKey(ctx, handle)
	if err != nil {
		logger.Error("Error retrieving actor key", logfields.WithHandle(handle), log.WithError(err))

		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	actor, err := f.actor.dispatcher(ctx, rctx, handle, key)
	if err != nil {
		logger.Error("Error invoking actor dispatcher", logfields.WithHandle(handle), log.WithError(err))

		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	if f.actor.authorize != nil {
		ok, err := f.actor.authorize(ctx, rctx, handle, rctx.SignedKey(), rctx.SignedKeyOwner())
		if err != nil {
			logger.Error("Error authorizing request", logfields.WithHandle(handle), log.WithError(err))

			writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

			return
		}

		if !ok {
			opts.unauthorized(w, req)

			return
		}
	}

	if actor == nil {
		opts.notFound(w, req)

		return
	}

	writeJSONLD(w, actor)
}

func (f *Federation) handleObject(ctx context.Context, rctx *RequestContext, w http.ResponseWriter,
	req *http.Request, typeIRI string, values map[string]string, opts *FetchOptions) {
	record, ok := f.objects[typeIRI]
	if !ok {
		opts.notFound(w, req)

		return
	}

	if !acceptsActivityStreams(req) {
		opts.notAcceptable(w, req)

		return
	}

	object, err := record.dispatcher(ctx, rctx, values)
	if err != nil {
		logger.Error("Error invoking object dispatcher", logfields.WithTarget(typeIRI), log.WithError(err))

		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	if record.authorize != nil {
		ok, err := record.authorize(ctx, rctx, values, rctx.SignedKey(), rctx.SignedKeyOwner())
		if err != nil {
			logger.Error("Error authorizing request", logfields.WithTarget(typeIRI), log.WithError(err))

			writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

			return
		}

		if !ok {
			opts.unauthorized(w, req)

			return
		}
	}

	if object == nil {
		opts.notFound(w, req)

		return
	}

	writeJSONLD(w, object)
}

func (f *Federation) handleCollection(ctx context.Context, rctx *RequestContext, w http.ResponseWriter,
	req *http.Request, record *collectionRecord, handle string, opts *FetchOptions) {
	if record == nil {
		opts.notFound(w, req)

		return
	}

	if !acceptsActivityStreams(req) {
		opts.notAcceptable(w, req)

		return
	}

	if record.authorize != nil {
		ok, err := record.authorize(ctx, rctx, handle, rctx.SignedKey(), rctx.SignedKeyOwner())
		if err != nil {
			logger.Error("Error authorizing request", logfields.WithHandle(handle), log.WithError(err))

			writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

			return
		}

		if !ok {
			opts.unauthorized(w, req)

			return
		}
	}

	if !req.URL.Query().Has("cursor") {
		f.handleCollectionIndex(ctx, rctx, w, req, record, handle)

		return
	}

	f.handleCollectionPage(ctx, rctx, w, req, record, handle, req.URL.Query().Get("cursor"), opts)
}

func (f *Federation) handleCollectionIndex(ctx context.Context, rctx *RequestContext,
	w http.ResponseWriter, req *http.Request, record *collectionRecord, handle string) {
	collectionURI := rctx.URL()

	// The first/last links point at the collection URL (sans query) with the edge cursors.
	linkURL := *collectionURI
	linkURL.RawQuery = ""

	collectionOpts := []vocab.Opt{vocab.WithID(collectionURI)}

	if record.counter != nil {
		totalItems, err := record.counter(ctx, rctx, handle)
		if err != nil {
			logger.Error("Error invoking collection counter", logfields.WithHandle(handle), log.WithError(err))

			writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

			return
		}

		if totalItems >= 0 {
			collectionOpts = append(collectionOpts, vocab.WithTotalItems(totalItems))
		}
	}

	if record.firstCursor != nil {
		cursor, err := record.firstCursor(ctx, rctx, handle)
		if err != nil {
			logger.Error("Error invoking first-cursor callback", logfields.WithHandle(handle), log.WithError(err))

			writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

			return
		}

		if cursor != nil {
			collectionOpts = append(collectionOpts, vocab.WithFirst(withCursor(&linkURL, *cursor)))
		}
	}

	if record.lastCursor != nil {
		cursor, err := record.lastCursor(ctx, rctx, handle)
		if err != nil {
			logger.Error("Error invoking last-cursor callback", logfields.WithHandle(handle), log.WithError(err))

			writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

			return
		}

		if cursor != nil {
			collectionOpts = append(collectionOpts, vocab.WithLast(withCursor(&linkURL, *cursor)))
		}
	}

	writeJSONLD(w, vocab.NewOrderedCollection(collectionOpts...))
}

func (f *Federation) handleCollectionPage(ctx context.Context, rctx *RequestContext,
	w http.ResponseWriter, req *http.Request, record *collectionRecord, handle, cursor string,
	opts *FetchOptions) {
	page, err := record.dispatcher(ctx, rctx, handle, cursor)
	if err != nil {
		logger.Error("Error invoking collection dispatcher", logfields.WithHandle(handle), log.WithError(err))

		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	if page == nil {
		opts.notFound(w, req)

		return
	}

	pageOpts := []vocab.Opt{
		vocab.WithID(rctx.URL()),
		vocab.WithItems(page.Items...),
	}

	if page.NextCursor != nil {
		// The next link points at the collection URL (sans query) with the new cursor.
		collectionURL := *rctx.URL()
		collectionURL.RawQuery = ""

		pageOpts = append(pageOpts, vocab.WithNext(withCursor(&collectionURL, *page.NextCursor)))
	}

	writeJSONLD(w, vocab.NewOrderedCollectionPage(pageOpts...))
}

// acceptsActivityStreams returns true if the request's Accept header includes an
// ActivityStreams-compatible media type.
func acceptsActivityStreams(req *http.Request) bool {
	accept := req.Header.Get("Accept")
	if accept == "" {
		return true
	}

	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}

		switch mediaType {
		case "application/activity+json", "application/ld+json", "application/json", "*/*", "application/*":
			return true
		}
	}

	return false
}

func withCursor(u fmt.Stringer, cursor string) *url.URL {
	pageURL, err := url.Parse(fmt.Sprintf("%s?cursor=%s", u, url.QueryEscape(cursor)))
	if err != nil {
		// The base URL was already parsed and the cursor is query-escaped.
		panic(err)
	}

	return pageURL
}

func writeJSONLD(w http.ResponseWriter, doc interface{}) {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		logger.Error("Error marshalling response", log.WithError(err))

		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	w.Header().Set("Content-Type", activityStreamsContentType)
	w.Header().Set("Vary", varyHeader)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(docBytes); err != nil {
		logger.Warn("Unable to write response", log.WithError(err))
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		logger.Warn("Unable to write response", log.WithError(err))
	}
}
