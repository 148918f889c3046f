/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memstore

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/bluele/gcache"

	"github.com/fedgate/fedgate/pkg/store/spi"
)

const defaultMaxSize = 10000

// Store implements an in-memory key-value store with per-entry TTL. This implementation
// works only on a single node. In order to share state across a cluster, a persistent
// store (such as MongoDB) should instead be used.
type Store struct {
	cache gcache.Cache
	mutex sync.Mutex
}

// New returns a new in-memory key-value store.
func New() *Store {
	return &Store{
		cache: gcache.New(defaultMaxSize).ARC().Build(),
	}
}

// Get returns the value for the given key path, or spi.ErrNotFound if no unexpired
// entry exists.
func (s *Store) Get(key []string) ([]byte, error) {
	v, err := s.cache.Get(encodeKey(key))
	if err != nil {
		if errors.Is(err, gcache.KeyNotFoundError) {
			return nil, spi.ErrNotFound
		}

		return nil, err
	}

	return v.([]byte), nil
}

// Put stores the value under the given key path.
func (s *Store) Put(key []string, value []byte, opts ...spi.Option) error {
	options := spi.NewOptions(opts...)

	if options.TTL > 0 {
		return s.cache.SetWithExpire(encodeKey(key), value, options.TTL)
	}

	return s.cache.Set(encodeKey(key), value)
}

// PutIfAbsent stores the value only if no unexpired entry exists for the key path.
func (s *Store) PutIfAbsent(key []string, value []byte, opts ...spi.Option) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.cache.Get(encodeKey(key))
	if err == nil {
		return false, nil
	}

	if !errors.Is(err, gcache.KeyNotFoundError) {
		return false, err
	}

	return true, s.Put(key, value, opts...)
}

// Delete removes the entry for the given key path.
func (s *Store) Delete(key []string) error {
	s.cache.Remove(encodeKey(key))

	return nil
}

func encodeKey(key []string) string {
	segments := make([]string, len(key))

	for i, k := range key {
		segments[i] = url.PathEscape(k)
	}

	return strings.Join(segments, "/")
}
