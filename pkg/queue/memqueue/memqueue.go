/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memqueue

import (
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/lifecycle"
	"github.com/fedgate/fedgate/pkg/queue/spi"
)

var logger = log.New("memqueue")

const (
	defaultBufferSize  = 100
	defaultConcurrency = 5
)

// Config holds the configuration for the in-memory queue.
type Config struct {
	// BufferSize is the size of the Go channel buffer that holds pending messages.
	BufferSize int

	// Concurrency specifies the number of goroutines that deliver messages to the listener.
	Concurrency int
}

// Queue implements an in-memory message queue. Delayed messages are held back with
// timers. This implementation works only on a single node and does not survive a
// restart; a persistent queue (such as AMQP) should be used in production.
type Queue struct {
	*lifecycle.Lifecycle
	Config

	msgChan chan *message.Message
	handler spi.Handler
	mutex   sync.Mutex
	done    chan struct{}
}

// New returns a new in-memory queue.
func New(cfg Config) *Queue {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	q := &Queue{
		Config:  cfg,
		msgChan: make(chan *message.Message, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	q.Lifecycle = lifecycle.New("memqueue", lifecycle.WithStop(q.stop))

	// The queue accepts messages immediately.
	q.Start()

	return q
}

// Enqueue adds the message to the queue. A delayed message is held back by a timer
// until its delay has elapsed.
func (q *Queue) Enqueue(msg *message.Message, opts ...spi.Option) error {
	if q.State() != lifecycle.StateStarted {
		return lifecycle.ErrNotStarted
	}

	options := spi.NewOptions(opts...)

	if options.Delay <= 0 {
		q.post(msg)

		return nil
	}

	logger.Debug("Holding back message", logfields.WithMessageID(msg.UUID),
		logfields.WithBackoffDelay(options.Delay))

	time.AfterFunc(options.Delay, func() {
		q.post(msg)
	})

	return nil
}

// Listen registers the consumer of the queue and starts delivery.
func (q *Queue) Listen(handle spi.Handler) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.handler != nil {
		return fmt.Errorf("a listener is already registered")
	}

	q.handler = handle

	for i := 0; i < q.Concurrency; i++ {
		go q.deliver()
	}

	return nil
}

// Close stops delivery and releases all resources.
func (q *Queue) Close() error {
	q.Stop()

	return nil
}

func (q *Queue) post(msg *message.Message) {
	select {
	case q.msgChan <- msg:
	case <-q.done:
		logger.Debug("Not delivering message since the queue is closed",
			logfields.WithMessageID(msg.UUID))
	}
}

func (q *Queue) stop() {
	close(q.done)
}

func (q *Queue) deliver() {
	for {
		select {
		case msg := <-q.msgChan:
			logger.Debug("Delivering message to listener", logfields.WithMessageID(msg.UUID))

			q.handler(msg)

			msg.Ack()
		case <-q.done:
			return
		}
	}
}
