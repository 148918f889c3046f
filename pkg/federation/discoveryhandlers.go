/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/nodeinfo"
	"github.com/fedgate/fedgate/pkg/webfinger/model"
)

const (
	acctScheme           = "acct:"
	profilePageRel       = "http://webfinger.net/rel/profile-page"
	nodeInfoSchemaRel    = "http://nodeinfo.diaspora.software/ns/schema/" + nodeinfo.V2_1
	selfRel              = "self"
	profilePageMediaType = "text/html"
)

// handleWebFinger resolves a 'resource' query parameter of the form
// acct:<handle>@<host> (or an actor URI) to a JRD document describing the actor.
func (f *Federation) handleWebFinger(ctx context.Context, rctx *RequestContext,
	w http.ResponseWriter, req *http.Request, opts *FetchOptions) {
	if f.actor == nil {
		opts.notFound(w, req)

		return
	}

	resource := req.URL.Query().Get("resource")
	if resource == "" {
		writeText(w, http.StatusBadRequest, badRequestResponse)

		return
	}

	handle, err := f.parseResource(rctx, resource)
	if err != nil {
		logger.Debug("Invalid WebFinger resource", logfields.WithParameter(resource), log.WithError(err))

		writeText(w, http.StatusBadRequest, badRequestResponse)

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

	if actor == nil {
		opts.notFound(w, req)

		return
	}

	actorURI, err := rctx.ActorURI(handle)
	if err != nil {
		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	jrd := &model.JRD{
		Subject: fmt.Sprintf("%s%s@%s", acctScheme, handle, rctx.base.Host),
		Aliases: []string{actorURI.String()},
		Links: []model.Link{
			{
				Rel:  selfRel,
				Type: activityStreamsContentType,
				Href: actorURI.String(),
			},
		},
	}

	// Add a profile-page link when the actor declares a web URL.
	if profileURL, ok := actor.Value("url"); ok {
		if profile, ok := profileURL.(string); ok {
			jrd.Links = append(jrd.Links, model.Link{
				Rel:  profilePageRel,
				Type: profilePageMediaType,
				Href: profile,
			})
		}
	}

	writeJRD(w, jrd)
}

// parseResource extracts the actor handle from a WebFinger resource, which is either
// an acct: URI or an actor URI of this host.
func (f *Federation) parseResource(rctx *RequestContext, resource string) (string, error) {
	if strings.HasPrefix(resource, acctScheme) {
		account := strings.TrimPrefix(resource, acctScheme)

		handle, host, found := strings.Cut(account, "@")
		if !found || handle == "" || host == "" {
			return "", fmt.Errorf("malformed acct resource [%s]", resource)
		}

		if host != rctx.base.Host {
			return "", fmt.Errorf("resource [%s] is not for this host", resource)
		}

		return handle, nil
	}

	resourceURL, err := url.Parse(resource)
	if err != nil || !strings.HasPrefix(resourceURL.Scheme, "http") {
		return "", fmt.Errorf("malformed resource [%s]", resource)
	}

	handle, ok := rctx.HandleFromActorURI(resourceURL)
	if !ok {
		return "", fmt.Errorf("resource [%s] does not identify a local actor", resource)
	}

	return handle, nil
}

// handleNodeInfoWellKnown serves the JRD document that points at the registered
// NodeInfo path.
func (f *Federation) handleNodeInfoWellKnown(w http.ResponseWriter, req *http.Request,
	rctx *RequestContext, opts *FetchOptions) {
	if f.nodeInfoDispatcher == nil {
		opts.notFound(w, req)

		return
	}

	nodeInfoURI, err := rctx.NodeInfoURI()
	if err != nil {
		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	writeJRD(w, &model.JRD{
		Links: []model.Link{
			{
				Rel:  nodeInfoSchemaRel,
				Href: nodeInfoURI.String(),
			},
		},
	})
}

// handleNodeInfo serves the dispatcher's NodeInfo document after schema validation.
func (f *Federation) handleNodeInfo(ctx context.Context, rctx *RequestContext,
	w http.ResponseWriter, req *http.Request) {
	info, err := f.nodeInfoDispatcher(ctx, rctx)
	if err != nil {
		logger.Error("Error invoking NodeInfo dispatcher", log.WithError(err))

		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	if err := info.Validate(); err != nil {
		logger.Error("NodeInfo dispatcher returned an invalid document", log.WithError(err))

		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	infoBytes, err := json.Marshal(info)
	if err != nil {
		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	w.Header().Set("Content-Type", nodeinfo.ContentType(info.Version))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(infoBytes); err != nil {
		logger.Warn("Unable to write response", log.WithError(err))
	}
}

func writeJRD(w http.ResponseWriter, jrd *model.JRD) {
	jrdBytes, err := json.Marshal(jrd)
	if err != nil {
		writeText(w, http.StatusInternalServerError, internalServerErrorResponse)

		return
	}

	w.Header().Set("Content-Type", model.ContentType)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(jrdBytes); err != nil {
		logger.Warn("Unable to write response", log.WithError(err))
	}
}
