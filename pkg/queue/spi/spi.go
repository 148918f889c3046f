/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package spi

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Handler is invoked for each message delivered from the queue. Messages are
// delivered at least once, so handlers must be prepared for duplicates.
type Handler func(msg *message.Message)

// Options holds the options for an Enqueue operation.
type Options struct {
	Delay time.Duration
}

// Option sets an option for an Enqueue operation.
type Option func(opts *Options)

// WithDelay sets the minimum duration that must elapse before the message is
// delivered to the listener.
func WithDelay(delay time.Duration) Option {
	return func(opts *Options) {
		opts.Delay = delay
	}
}

// NewOptions returns the resolved options for an Enqueue operation.
func NewOptions(opts ...Option) *Options {
	options := &Options{}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

// Queue is a durable message queue with a single listener. The queue honors the
// delay hint on enqueued messages within a reasonable tolerance.
type Queue interface {
	// Enqueue adds the message to the queue.
	Enqueue(msg *message.Message, opts ...Option) error

	// Listen registers the consumer of the queue. Only one listener may be
	// registered; a second call returns an error.
	Listen(handle Handler) error

	// Close releases all resources held by the queue.
	Close() error
}
