/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package spi

import (
	"errors"
	"time"
)

// ErrNotFound is returned from Get when no value exists for the given key.
var ErrNotFound = errors.New("not found")

// Options holds the options for a Put operation.
type Options struct {
	TTL time.Duration
}

// Option sets an option for a Put operation.
type Option func(opts *Options)

// WithTTL sets the time-to-live of the entry. After the TTL has elapsed the entry
// is no longer returned from Get. A zero TTL means that the entry never expires.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = ttl
	}
}

// NewOptions returns the resolved options for a Put operation.
func NewOptions(opts ...Option) *Options {
	options := &Options{}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

// Store defines a key-value store. Keys are ordered sequences of strings (key paths)
// and values are opaque byte slices. Implementations must be safe for concurrent use
// and may be shared with other processes.
type Store interface {
	// Get returns the value for the given key path, or ErrNotFound if no (unexpired)
	// entry exists.
	Get(key []string) ([]byte, error)

	// Put stores the value under the given key path, replacing any existing entry.
	Put(key []string, value []byte, opts ...Option) error

	// PutIfAbsent stores the value only if no (unexpired) entry exists for the key path.
	// It returns true if the value was stored and false if an entry already existed.
	PutIfAbsent(key []string, value []byte, opts ...Option) (bool, error)

	// Delete removes the entry for the given key path. Deleting a non-existent key
	// is not an error.
	Delete(key []string) error
}
