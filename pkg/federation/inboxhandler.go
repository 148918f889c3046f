/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
)

// handleInbox processes an activity posted to a personal inbox (handle set) or to the
// shared inbox (handle empty).
func (f *Federation) handleInbox(ctx context.Context, rctx *RequestContext, w http.ResponseWriter,
	req *http.Request, handle string, opts *FetchOptions) {
	if f.inbox == nil || req.Method != http.MethodPost {
		opts.notFound(w, req)

		return
	}

	if !isActivityStreamsContentType(req.Header.Get("Content-Type")) {
		writeText(w, http.StatusBadRequest, badRequestResponse)

		return
	}

	if rctx.SignedKey() == nil {
		opts.unauthorized(w, req)

		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		logger.Warn("Error reading request body", logfields.WithRequestURL(rctx.URL()), log.WithError(err))

		writeText(w, http.StatusBadRequest, badRequestResponse)

		return
	}

	activity := &vocab.ActivityType{}

	if err := json.Unmarshal(body, activity); err != nil || activity.ID() == nil {
		if err == nil {
			err = fmt.Errorf("activity has no ID")
		}

		logger.Debug("Error parsing activity", logfields.WithRequestURL(rctx.URL()), log.WithError(err))

		f.inboxErrorHandler(ctx, rctx, nil, err)

		writeText(w, http.StatusBadRequest, badRequestResponse)

		return
	}

	// The personal inbox dispatches with the actor's authenticated document loader so
	// that listeners can dereference protected remote objects. The shared inbox keeps
	// the registry default.
	if handle != "" {
		loader, err := rctx.ActorDocumentLoader(ctx, handle)
		if err != nil {
			logger.Debug("Using the default document loader for the inbox listener",
				logfields.WithHandle(handle), log.WithError(err))
		} else {
			rctx.documentLoader = loader
		}
	}

	claimed, err := f.claimActivity(activity.ID().String())
	if err != nil {
		logger.Error("Error claiming activity", logfields.WithActivityID(activity.ID().String()),
			log.WithError(err))

		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	if !claimed {
		// The activity was already processed.
		writeText(w, http.StatusAccepted, acceptedResponse)

		return
	}

	listener := f.resolveListener(activity)
	if listener == nil {
		logger.Debug("No listener registered for activity", logfields.WithActivityID(activity.ID().String()),
			logfields.WithActivityType(activity.Type().String()))

		writeText(w, http.StatusAccepted, acceptedResponse)

		return
	}

	startTime := time.Now()

	if err := f.invokeListener(ctx, rctx, listener, activity); err != nil {
		logger.Warn("Inbox listener returned an error", logfields.WithActivityID(activity.ID().String()),
			log.WithError(err))

		f.inboxErrorHandler(ctx, rctx, activity, err)

		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	f.metrics.InboxHandlerTime(activity.Type().String(), time.Since(startTime))

	writeText(w, http.StatusAccepted, acceptedResponse)
}

// resolveListener returns the listener of the most specific type in the activity's
// type chain, or nil if no listener matches.
func (f *Federation) resolveListener(activity *vocab.ActivityType) InboxListener {
	for _, declaredType := range activity.Type().Types() {
		for _, t := range vocab.TypeChain(declaredType) {
			if listener, ok := f.inbox.listenerFor(t); ok {
				return listener
			}
		}
	}

	return nil
}

func (f *Federation) invokeListener(ctx context.Context, rctx *RequestContext,
	listener InboxListener, activity *vocab.ActivityType) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inbox listener panicked: %v", r)
		}
	}()

	return listener(ctx, rctx, activity)
}

func isActivityStreamsContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == "application/activity+json" || mediaType == "application/ld+json"
}
