/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
)

var logger = log.New("httpserver")

const (
	healthCheckEndpoint = "/healthcheck"

	shutdownTimeout = 5 * time.Second
)

// Server implements an HTTP server.
type Server struct {
	httpServer *http.Server
	started    uint32
	certFile   string
	keyFile    string
}

// New returns a new HTTP server that serves the given handlers. Paths not claimed by
// any of the handlers fall through to the catch-all handler.
func New(addr, certFile, keyFile string, catchAll http.Handler, handlers ...Handler) *Server {
	router := mux.NewRouter()

	for _, handler := range handlers {
		logger.Info("Registering handler", logfields.WithTarget(handler.Path()))

		router.HandleFunc(handler.Path(), handler.Handler()).Methods(handler.Method())
	}

	router.HandleFunc(healthCheckEndpoint, healthCheckHandler).Methods(http.MethodGet)

	if catchAll != nil {
		router.PathPrefix("/").Handler(catchAll)
	}

	handler := cors.New(
		cors.Options{
			AllowedMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
			},
			AllowedHeaders: []string{"*"},
		},
	).Handler(router)

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
		certFile: certFile,
		keyFile:  keyFile,
	}
}

// Handler defines an HTTP handler for a fixed path and method.
type Handler interface {
	Path() string
	Method() string
	Handler() http.HandlerFunc
}

// Start starts the HTTP server in a separate Go routine.
func (s *Server) Start() error {
	if !atomic.CompareAndSwapUint32(&s.started, 0, 1) {
		return errors.New("server already started")
	}

	go func() {
		logger.Info("Listening for requests")

		var err error

		if s.certFile != "" && s.keyFile != "" {
			err = s.httpServer.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			logger.Error("Server stopped", log.WithError(err))
		}
	}()

	return nil
}

// Stop stops the HTTP server, giving in-flight requests a grace period to complete.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&s.started, 1, 0) {
		return errors.New("server not started")
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(&healthCheckResp{
		Status:      "success",
		CurrentTime: time.Now(),
	}); err != nil {
		logger.Error("Error writing health check response", log.WithError(err))
	}
}

type healthCheckResp struct {
	Status      string    `json:"status"`
	CurrentTime time.Time `json:"currentTime"`
}
