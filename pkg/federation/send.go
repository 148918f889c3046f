/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/activitypub/client/transport"
	"github.com/fedgate/fedgate/pkg/activitypub/httpsig"
	"github.com/fedgate/fedgate/pkg/activitypub/keys"
	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
	"github.com/fedgate/fedgate/pkg/errors"
	queuespi "github.com/fedgate/fedgate/pkg/queue/spi"
)

// Sender identifies the actor on whose behalf an activity is sent: either a local
// handle (resolved through the key-pair dispatcher) or explicit key material.
type Sender struct {
	Handle     string
	KeyID      *url.URL
	PrivateKey *rsa.PrivateKey
}

type resolvedSender struct {
	keyID      *url.URL
	privateKey *rsa.PrivateKey
}

// SendOptions holds the options for sending an activity.
type SendOptions struct {
	// PreferSharedInbox delivers to a recipient's shared inbox when it declares one.
	PreferSharedInbox bool

	// Immediate delivers to all inboxes in parallel and waits for completion instead
	// of enqueueing the deliveries. This is the only mode when no queue is configured.
	Immediate bool
}

// SendOpt sets an option for sending an activity.
type SendOpt func(opts *SendOptions)

// WithPreferSharedInbox delivers to a recipient's shared inbox when it declares one.
func WithPreferSharedInbox() SendOpt {
	return func(opts *SendOptions) {
		opts.PreferSharedInbox = true
	}
}

// WithImmediate delivers to all inboxes in parallel and waits for completion instead
// of enqueueing the deliveries.
func WithImmediate() SendOpt {
	return func(opts *SendOptions) {
		opts.Immediate = true
	}
}

// ExtractInboxes returns the de-duplicated set of inboxes of the given recipients.
// When preferSharedInbox is set, a recipient's shared inbox replaces its personal
// inbox if one is declared. Recipients with no inbox are dropped.
func ExtractInboxes(recipients []*vocab.ActorType, preferSharedInbox bool) []*url.URL {
	var inboxes []*url.URL

	seen := make(map[string]struct{})

	for _, recipient := range recipients {
		inbox := recipient.Inbox()

		if preferSharedInbox && recipient.SharedInbox() != nil {
			inbox = recipient.SharedInbox()
		}

		if inbox == nil {
			continue
		}

		if _, ok := seen[inbox.String()]; ok {
			continue
		}

		seen[inbox.String()] = struct{}{}

		inboxes = append(inboxes, inbox)
	}

	return inboxes
}

func (f *Federation) sendActivity(ctx context.Context, sender *resolvedSender,
	recipients []*vocab.ActorType, activity *vocab.ActivityType, opts ...SendOpt) error {
	options := &SendOptions{}

	for _, opt := range opts {
		opt(options)
	}

	if activity.Actor() == nil {
		return fmt.Errorf("the activity must have an actor")
	}

	if activity.ID() == nil {
		// The ID is required for both signing context and receiver idempotence.
		activity = cloneWithID(activity, newActivityID())
	}

	inboxes := ExtractInboxes(recipients, options.PreferSharedInbox)
	if len(inboxes) == 0 {
		logger.Debug("No inboxes to deliver to", logfields.WithActivityID(activity.ID().String()))

		return nil
	}

	activityBytes, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	if options.Immediate || f.queue == nil {
		return f.deliverAll(ctx, sender, activityBytes, inboxes)
	}

	if err := f.ensureQueueListener(); err != nil {
		return err
	}

	for _, inbox := range inboxes {
		if err := f.enqueueDelivery(&outboxMessage{
			Type:       outboxMessageType,
			KeyID:      sender.keyID.String(),
			PrivateKey: keys.NewJWK(sender.privateKey),
			Activity:   vocab.MustMarshalToDoc(activity),
			Inbox:      inbox.String(),
			Trial:      0,
		}, 0); err != nil {
			return err
		}
	}

	return nil
}

func (f *Federation) deliverAll(ctx context.Context, sender *resolvedSender,
	activityBytes []byte, inboxes []*url.URL) error {
	var wg sync.WaitGroup

	errChan := make(chan error, len(inboxes))

	for _, inbox := range inboxes {
		wg.Add(1)

		go func(inbox *url.URL) {
			defer wg.Done()

			if err := f.deliver(ctx, sender.keyID, sender.privateKey, activityBytes, inbox); err != nil {
				errChan <- fmt.Errorf("deliver to [%s]: %w", inbox, err)
			}
		}(inbox)
	}

	wg.Wait()

	close(errChan)

	for err := range errChan {
		if err != nil {
			return err
		}
	}

	return nil
}

// deliver signs and posts the serialized activity to the given inbox.
func (f *Federation) deliver(ctx context.Context, keyID *url.URL, privateKey *rsa.PrivateKey,
	activityBytes []byte, inbox *url.URL) error {
	startTime := time.Now()

	t := transport.New(f.httpClient, privateKey, keyID,
		httpsig.NewSigner(httpsig.DefaultGetSignerConfig()),
		httpsig.NewSigner(httpsig.DefaultPostSignerConfig()))

	req := transport.NewRequest(inbox)
	req.Header.Set("Content-Type", transport.ActivityStreamsContentType)

	resp, err := t.Post(ctx, req, activityBytes)
	if err != nil {
		return errors.NewTransient(err)
	}

	defer func() {
		if e := resp.Body.Close(); e != nil {
			logger.Warn("Error closing response body", log.WithError(e))
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		// Read and discard the body so that the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)

		err := fmt.Errorf("delivery to [%s] returned status code %d", inbox, resp.StatusCode)

		if resp.StatusCode >= http.StatusInternalServerError ||
			resp.StatusCode == http.StatusTooManyRequests {
			return errors.NewTransient(err)
		}

		return err
	}

	f.metrics.OutboxDeliveryTime(time.Since(startTime))

	return nil
}

const outboxMessageType = "outbox"

// outboxMessage is the JSON shape of a queued delivery. It must round-trip through
// JSON since the queue may persist it across process restarts.
type outboxMessage struct {
	Type       string         `json:"type"`
	KeyID      string         `json:"keyId"`
	PrivateKey *keys.JWK      `json:"privateKey"`
	Activity   vocab.Document `json:"activity"`
	Inbox      string         `json:"inbox"`
	Trial      int            `json:"trial"`
}

func (f *Federation) enqueueDelivery(msg *outboxMessage, delay time.Duration) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbox message: %w", err)
	}

	var opts []queuespi.Option

	if delay > 0 {
		opts = append(opts, queuespi.WithDelay(delay))
	}

	if err := f.queue.Enqueue(message.NewMessage(watermill.NewUUID(), msgBytes), opts...); err != nil {
		return fmt.Errorf("enqueue delivery to [%s]: %w", msg.Inbox, err)
	}

	return nil
}

// handleOutboxMessage replays a queued delivery. On failure the message is re-enqueued
// with the next delay from the backoff schedule until the schedule is exhausted.
func (f *Federation) handleOutboxMessage(msg *message.Message) {
	outMsg := &outboxMessage{}

	if err := json.Unmarshal(msg.Payload, outMsg); err != nil {
		logger.Error("Error unmarshalling outbox message. The message will be dropped.",
			logfields.WithMessageID(msg.UUID), log.WithError(err))

		f.invokeOutboxErrorHandler(err, nil)

		return
	}

	activity := &vocab.ActivityType{}

	if err := vocab.UnmarshalFromDoc(outMsg.Activity, activity); err != nil {
		logger.Error("Error unmarshalling activity. The message will be dropped.",
			logfields.WithMessageID(msg.UUID), log.WithError(err))

		f.invokeOutboxErrorHandler(err, nil)

		return
	}

	err := f.replayDelivery(outMsg)
	if err == nil {
		logger.Debug("Delivered activity", logfields.WithActivityID(activity.ID().String()),
			logfields.WithInboxURL(outMsg.Inbox))

		return
	}

	logger.Warn("Error delivering activity", logfields.WithActivityID(activity.ID().String()),
		logfields.WithInboxURL(outMsg.Inbox), logfields.WithTotalAttempts(outMsg.Trial+1),
		log.WithError(err))

	f.invokeOutboxErrorHandler(err, activity)

	if outMsg.Trial >= len(f.backoffSchedule) {
		logger.Warn("Giving up on delivery", logfields.WithActivityID(activity.ID().String()),
			logfields.WithInboxURL(outMsg.Inbox), logfields.WithTotalAttempts(outMsg.Trial+1))

		return
	}

	delay := f.backoffSchedule[outMsg.Trial]

	retryMsg := *outMsg
	retryMsg.Trial++

	if err := f.enqueueDelivery(&retryMsg, delay); err != nil {
		logger.Error("Error re-enqueueing delivery", logfields.WithInboxURL(outMsg.Inbox),
			log.WithError(err))
	}
}

func (f *Federation) replayDelivery(msg *outboxMessage) error {
	privateKey, err := msg.PrivateKey.RSAPrivateKey()
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}

	keyID, err := url.Parse(msg.KeyID)
	if err != nil {
		return fmt.Errorf("parse key ID [%s]: %w", msg.KeyID, err)
	}

	inbox, err := url.Parse(msg.Inbox)
	if err != nil {
		return fmt.Errorf("parse inbox URL [%s]: %w", msg.Inbox, err)
	}

	activityBytes, err := json.Marshal(msg.Activity)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	return f.deliver(context.Background(), keyID, privateKey, activityBytes, inbox)
}

func cloneWithID(activity *vocab.ActivityType, id *url.URL) *vocab.ActivityType {
	doc := vocab.MustMarshalToDoc(activity)

	cloned := &vocab.ActivityType{}

	if err := vocab.UnmarshalFromDoc(doc, cloned); err != nil {
		// The document was just produced by marshalling an activity.
		panic(err)
	}

	cloned.SetID(id)

	return cloned
}

func newActivityID() *url.URL {
	id, err := url.Parse("urn:uuid:" + uuid.NewString())
	if err != nil {
		// A newly generated UUID URN always parses.
		panic(err)
	}

	return id
}

func asRSAPrivateKey(key interface{}) (*rsa.PrivateKey, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *keys.JWK:
		return k.RSAPrivateKey()
	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
}
