/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package amqpqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	wmamqp "github.com/ThreeDotsLabs/watermill-amqp/v2/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/lifecycle"
	"github.com/fedgate/fedgate/pkg/queue/spi"
	"github.com/fedgate/fedgate/pkg/queue/wmlogger"
)

var logger = log.New("amqpqueue")

const (
	defaultMaxConnectRetries = 25
	defaultMaxConnectTime    = 3 * time.Minute

	waitQueueSuffix = "-wait"

	metadataDeadLetterExchange   = "x-dead-letter-exchange"
	metadataDeadLetterRoutingKey = "x-dead-letter-routing-key"
)

// Config holds the configuration for the AMQP queue.
type Config struct {
	// URI is the connection URI of the AMQP broker.
	URI string

	// QueueName is the name of the queue from which the listener consumes.
	QueueName string

	// MaxConnectRetries is the maximum number of retries when connecting to the broker.
	MaxConnectRetries uint64
}

// Queue implements a message queue backed by an AMQP broker.
//
// Delayed messages are posted to a 'wait' queue with a per-message expiration. The
// 'wait' queue has no consumers, so a message sits there until it expires, at which
// point the broker dead-letters it to the main queue, where it is finally consumed.
type Queue struct {
	*lifecycle.Lifecycle
	Config

	publisher      message.Publisher
	subscriber     message.Subscriber
	waitSubscriber *wmamqp.Subscriber
	waitQueueName  string
	handler        spi.Handler
	mutex          sync.Mutex
	done           chan struct{}
}

// New connects to the AMQP broker at cfg.URI, declares the main and wait queues, and
// returns a new queue.
func New(cfg Config) (*Queue, error) {
	if cfg.MaxConnectRetries == 0 {
		cfg.MaxConnectRetries = defaultMaxConnectRetries
	}

	q := &Queue{
		Config:        cfg,
		waitQueueName: cfg.QueueName + waitQueueSuffix,
		done:          make(chan struct{}),
	}

	q.Lifecycle = lifecycle.New("amqpqueue", lifecycle.WithStop(q.stop))

	if err := q.connect(); err != nil {
		return nil, fmt.Errorf("connect to AMQP broker [%s]: %w", cfg.URI, err)
	}

	// Declare the wait queue so that it exists before the first delayed message is
	// posted. There are no consumers of this queue; expired messages are dead-lettered
	// to the main queue.
	if err := q.waitSubscriber.SubscribeInitialize(q.waitQueueName); err != nil {
		return nil, fmt.Errorf("initialize wait queue [%s]: %w", q.waitQueueName, err)
	}

	q.Start()

	return q, nil
}

// Enqueue adds the message to the queue. A delayed message is posted to the wait
// queue with an expiration equal to the delay.
func (q *Queue) Enqueue(msg *message.Message, opts ...spi.Option) error {
	if q.State() != lifecycle.StateStarted {
		return lifecycle.ErrNotStarted
	}

	options := spi.NewOptions(opts...)

	if options.Delay <= 0 {
		return q.publisher.Publish(q.QueueName, msg)
	}

	msg.Metadata.Set(metadataExpiration, options.Delay.String())

	logger.Debug("Posting message to the wait queue", logfields.WithMessageID(msg.UUID),
		logfields.WithQueue(q.waitQueueName), logfields.WithBackoffDelay(options.Delay))

	return q.publisher.Publish(q.waitQueueName, msg)
}

// Listen registers the consumer of the queue and starts delivery.
func (q *Queue) Listen(handle spi.Handler) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.handler != nil {
		return fmt.Errorf("a listener is already registered")
	}

	q.handler = handle

	msgChan, err := q.subscriber.Subscribe(context.Background(), q.QueueName)
	if err != nil {
		return fmt.Errorf("subscribe to queue [%s]: %w", q.QueueName, err)
	}

	go q.deliver(msgChan)

	return nil
}

// Close stops delivery and closes the connection to the broker.
func (q *Queue) Close() error {
	q.Stop()

	return nil
}

func (q *Queue) connect() error {
	wmLogger := wmlogger.New()

	return backoff.RetryNotify(
		func() error {
			publisher, err := wmamqp.NewPublisher(q.newQueueConfig(), wmLogger)
			if err != nil {
				return fmt.Errorf("create publisher: %w", err)
			}

			subscriber, err := wmamqp.NewSubscriber(q.newQueueConfig(), wmLogger)
			if err != nil {
				return fmt.Errorf("create subscriber: %w", err)
			}

			waitSubscriber, err := wmamqp.NewSubscriber(q.newWaitQueueConfig(), wmLogger)
			if err != nil {
				return fmt.Errorf("create wait queue subscriber: %w", err)
			}

			q.publisher = publisher
			q.subscriber = subscriber
			q.waitSubscriber = waitSubscriber

			return nil
		},
		backoff.WithMaxRetries(newConnectBackOff(), q.MaxConnectRetries),
		func(err error, duration time.Duration) {
			logger.Info("Error connecting to AMQP broker. Retrying.",
				log.WithError(err), logfields.WithBackoffDelay(duration))
		},
	)
}

func (q *Queue) stop() {
	close(q.done)

	if err := q.subscriber.Close(); err != nil {
		logger.Warn("Error closing subscriber", log.WithError(err))
	}

	if err := q.waitSubscriber.Close(); err != nil {
		logger.Warn("Error closing wait queue subscriber", log.WithError(err))
	}

	if err := q.publisher.Close(); err != nil {
		logger.Warn("Error closing publisher", log.WithError(err))
	}
}

func (q *Queue) deliver(msgChan <-chan *message.Message) {
	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				return
			}

			logger.Debug("Delivering message to listener", logfields.WithMessageID(msg.UUID))

			q.handler(msg)

			msg.Ack()
		case <-q.done:
			return
		}
	}
}

func (q *Queue) newQueueConfig() wmamqp.Config {
	cfg := wmamqp.NewDurableQueueConfig(q.URI)
	cfg.Marshaler = &expirationMarshaler{}

	return cfg
}

func (q *Queue) newWaitQueueConfig() wmamqp.Config {
	cfg := q.newQueueConfig()

	// Expired messages in the wait queue are routed to the main queue via the
	// default exchange.
	cfg.Queue.Arguments = amqp.Table{
		metadataDeadLetterExchange:   "",
		metadataDeadLetterRoutingKey: q.QueueName,
	}

	return cfg
}

func newConnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = defaultMaxConnectTime

	return b
}
