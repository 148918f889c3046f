/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
	"github.com/fedgate/fedgate/pkg/federation"
	"github.com/fedgate/fedgate/pkg/httpserver"
	"github.com/fedgate/fedgate/pkg/metrics"
	"github.com/fedgate/fedgate/pkg/nodeinfo"
	"github.com/fedgate/fedgate/pkg/queue/amqpqueue"
	"github.com/fedgate/fedgate/pkg/queue/memqueue"
	queuespi "github.com/fedgate/fedgate/pkg/queue/spi"
	"github.com/fedgate/fedgate/pkg/store/memstore"
	"github.com/fedgate/fedgate/pkg/store/mongostore"
	storespi "github.com/fedgate/fedgate/pkg/store/spi"
)

var logger = log.New("fedgate-server")

const (
	actorPath       = "/users/{handle}"
	inboxPath       = "/users/{handle}/inbox"
	sharedInboxPath = "/inbox"
	outboxPath      = "/users/{handle}/outbox"
	followersPath   = "/users/{handle}/followers"
	nodeInfoPath    = "/nodeinfo/2.1"

	serverVersion = "0.1.0"

	rsaKeyBits = 2048
)

// GetStartCmd returns the command that starts the server.
func GetStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the federation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := getServerParameters(cmd)
			if err != nil {
				return err
			}

			return startServer(params)
		},
	}

	createFlags(cmd)

	return cmd
}

func startServer(params *serverParameters) error {
	store, err := createStore(params)
	if err != nil {
		return err
	}

	queue, err := createQueue(params)
	if err != nil {
		return err
	}

	node, err := newNode(params)
	if err != nil {
		return err
	}

	f, err := federation.New(&federation.Options{
		Store:      store,
		Queue:      queue,
		TreatHTTPS: true,
		Metrics:    metrics.NewPrometheus(prometheus.DefaultRegisterer),
		OnOutboxError: func(err error, activity *vocab.ActivityType) {
			if activity != nil {
				logger.Warn("Delivery failed", logfields.WithActivityID(activity.ID().String()),
					log.WithError(err))
			} else {
				logger.Warn("Delivery failed", log.WithError(err))
			}
		},
	})
	if err != nil {
		return err
	}

	node.register(f)

	server := httpserver.New(params.hostURL, params.tlsCertFile, params.tlsKeyFile,
		http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.Fetch(w, req, &federation.FetchOptions{})
		}))

	if err := server.Start(); err != nil {
		return err
	}

	logger.Info("Server started", logfields.WithTarget(params.hostURL),
		logfields.WithHandle(node.handle))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-interrupt

	return server.Stop(context.Background())
}

func createStore(params *serverParameters) (storespi.Store, error) {
	switch params.databaseType {
	case databaseTypeMem:
		return memstore.New(), nil
	case databaseTypeMongoDB:
		return mongostore.New(params.databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database type [%s]", params.databaseType)
	}
}

func createQueue(params *serverParameters) (queuespi.Queue, error) {
	switch params.queueType {
	case queueTypeMem:
		return memqueue.New(memqueue.Config{}), nil
	case queueTypeAMQP:
		return amqpqueue.New(amqpqueue.Config{
			URI:       params.queueURL,
			QueueName: "fedgate-outbox",
		})
	default:
		return nil, fmt.Errorf("unsupported queue type [%s]", params.queueType)
	}
}

// node holds the state of the single service actor that this reference server exposes.
type node struct {
	handle    string
	keyPair   *federation.KeyPair
	mutex     sync.RWMutex
	followers []*url.URL
}

func newNode(params *serverParameters) (*node, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate actor key: %w", err)
	}

	return &node{
		handle: params.actorHandle,
		keyPair: &federation.KeyPair{
			PrivateKey: privateKey,
			PublicKey:  &privateKey.PublicKey,
		},
	}, nil
}

func (n *node) register(f *federation.Federation) {
	f.SetActorDispatcher(actorPath, n.actorDispatcher).
		SetKeyPairDispatcher(n.keyPairDispatcher)

	f.SetFollowersDispatcher(followersPath, n.followersDispatcher).
		SetCounter(n.followersCounter)

	f.SetOutboxDispatcher(outboxPath, n.outboxDispatcher)

	f.SetInboxListeners(inboxPath, sharedInboxPath).
		On(vocab.TypeFollow, n.handleFollow).
		On(vocab.TypeUndo, n.handleUndo).
		OnError(func(ctx context.Context, rctx *federation.RequestContext,
			activity *vocab.ActivityType, err error) {
			logger.Warn("Error handling inbox activity", log.WithError(err))
		})

	f.SetNodeInfoDispatcher(nodeInfoPath, n.nodeInfoDispatcher)
}

func (n *node) actorDispatcher(ctx context.Context, rctx *federation.RequestContext,
	handle string, publicKey *vocab.PublicKeyType) (*vocab.ActorType, error) {
	if handle != n.handle {
		return nil, nil
	}

	actorURI, err := rctx.ActorURI(handle)
	if err != nil {
		return nil, err
	}

	inboxURI, err := rctx.InboxURI(handle)
	if err != nil {
		return nil, err
	}

	sharedInboxURI, err := rctx.SharedInboxURI()
	if err != nil {
		return nil, err
	}

	outboxURI, err := rctx.OutboxURI(handle)
	if err != nil {
		return nil, err
	}

	followersURI, err := rctx.FollowersURI(handle)
	if err != nil {
		return nil, err
	}

	return vocab.NewActor(vocab.TypeService,
		vocab.WithID(actorURI),
		vocab.WithPreferredUsername(handle),
		vocab.WithInbox(inboxURI),
		vocab.WithOutbox(outboxURI),
		vocab.WithFollowers(followersURI),
		vocab.WithSharedInbox(sharedInboxURI),
		vocab.WithPublicKey(publicKey),
	), nil
}

func (n *node) keyPairDispatcher(ctx context.Context, data interface{}, handle string) (*federation.KeyPair, error) {
	if handle != n.handle {
		return nil, nil
	}

	return n.keyPair, nil
}

func (n *node) followersDispatcher(ctx context.Context, rctx *federation.RequestContext,
	handle, cursor string) (*federation.CollectionPage, error) {
	if handle != n.handle {
		return nil, nil
	}

	n.mutex.RLock()
	defer n.mutex.RUnlock()

	items := make([]vocab.Document, len(n.followers))

	for i, follower := range n.followers {
		items[i] = vocab.Document{"id": follower.String()}
	}

	return &federation.CollectionPage{Items: items}, nil
}

func (n *node) followersCounter(ctx context.Context, rctx *federation.RequestContext,
	handle string) (int, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	return len(n.followers), nil
}

func (n *node) outboxDispatcher(ctx context.Context, rctx *federation.RequestContext,
	handle, cursor string) (*federation.CollectionPage, error) {
	if handle != n.handle {
		return nil, nil
	}

	return &federation.CollectionPage{}, nil
}

// handleFollow accepts every follow request and records the follower.
func (n *node) handleFollow(ctx context.Context, rctx *federation.RequestContext,
	activity *vocab.ActivityType) error {
	follower := activity.Actor().URL()
	if follower == nil {
		return fmt.Errorf("follow activity has no actor")
	}

	n.mutex.Lock()
	n.followers = append(n.followers, follower)
	n.mutex.Unlock()

	logger.Info("Accepting follow request", logfields.WithActorID(follower.String()))

	actorURI, err := rctx.ActorURI(n.handle)
	if err != nil {
		return err
	}

	accept := vocab.NewActivity(vocab.TypeAccept,
		vocab.WithActor(actorURI),
		vocab.WithObject(vocab.MustMarshalToDoc(activity)),
		vocab.WithTo(follower),
	)

	recipient := rctx.SignedKeyOwner()
	if recipient == nil {
		return fmt.Errorf("no signed key owner for follow activity")
	}

	return rctx.SendActivity(ctx, &federation.Sender{Handle: n.handle},
		[]*vocab.ActorType{recipient}, accept)
}

func (n *node) handleUndo(ctx context.Context, rctx *federation.RequestContext,
	activity *vocab.ActivityType) error {
	follower := activity.Actor().URL()
	if follower == nil {
		return fmt.Errorf("undo activity has no actor")
	}

	n.mutex.Lock()
	defer n.mutex.Unlock()

	for i, existing := range n.followers {
		if existing.String() == follower.String() {
			n.followers = append(n.followers[:i], n.followers[i+1:]...)

			logger.Info("Removed follower", logfields.WithActorID(follower.String()))

			break
		}
	}

	return nil
}

func (n *node) nodeInfoDispatcher(ctx context.Context,
	rctx *federation.RequestContext) (*nodeinfo.NodeInfo, error) {
	return nodeinfo.NewNodeInfo(
		nodeinfo.Software{
			Name:    "fedgate",
			Version: serverVersion,
		},
		nodeinfo.Usage{
			Users: nodeinfo.Users{Total: 1},
		},
	), nil
}
