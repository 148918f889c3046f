/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mongostore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fedgate/fedgate/pkg/store/spi"
)

const (
	defaultDatabase   = "fedgate"
	defaultCollection = "kvstore"
	connectTimeout    = 10 * time.Second
)

// Store implements a key-value store backed by a MongoDB collection. Entries with a
// TTL are reaped by a TTL index on the 'expiresAt' field. The store may be shared
// with other processes.
type Store struct {
	coll *mongo.Collection
}

type entry struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	ExpiresAt *time.Time `bson:"expiresAt,omitempty"`
}

// New connects to MongoDB at the given URI and returns a new key-value store.
func New(uri string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB [%s]: %w", uri, err)
	}

	coll := client.Database(defaultDatabase).Collection(defaultCollection)

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, fmt.Errorf("create TTL index: %w", err)
	}

	return &Store{coll: coll}, nil
}

// Get returns the value for the given key path, or spi.ErrNotFound if no unexpired
// entry exists.
func (s *Store) Get(key []string) ([]byte, error) {
	var e entry

	err := s.coll.FindOne(context.Background(), bson.M{"_id": encodeKey(key)}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, spi.ErrNotFound
		}

		return nil, fmt.Errorf("find entry: %w", err)
	}

	// The TTL monitor reaps expired documents periodically, so an expired entry may
	// still be present.
	if e.ExpiresAt != nil && !e.ExpiresAt.After(time.Now()) {
		return nil, spi.ErrNotFound
	}

	return e.Value, nil
}

// Put stores the value under the given key path, replacing any existing entry.
func (s *Store) Put(key []string, value []byte, opts ...spi.Option) error {
	e := newEntry(key, value, opts...)

	_, err := s.coll.ReplaceOne(context.Background(), bson.M{"_id": e.Key}, e,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("replace entry: %w", err)
	}

	return nil
}

// PutIfAbsent stores the value only if no unexpired entry exists for the key path.
func (s *Store) PutIfAbsent(key []string, value []byte, opts ...spi.Option) (bool, error) {
	e := newEntry(key, value, opts...)

	// An expired entry that the TTL monitor has not yet reaped is removed first so
	// that it does not block the insert.
	_, err := s.coll.DeleteOne(context.Background(), bson.M{
		"_id":       e.Key,
		"expiresAt": bson.M{"$lte": time.Now()},
	})
	if err != nil {
		return false, fmt.Errorf("delete expired entry: %w", err)
	}

	setOnInsert := bson.M{"value": e.Value}

	if e.ExpiresAt != nil {
		setOnInsert["expiresAt"] = e.ExpiresAt
	}

	result, err := s.coll.UpdateOne(context.Background(),
		bson.M{"_id": e.Key},
		bson.M{"$setOnInsert": setOnInsert},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("upsert entry: %w", err)
	}

	return result.UpsertedCount > 0, nil
}

// Delete removes the entry for the given key path.
func (s *Store) Delete(key []string) error {
	_, err := s.coll.DeleteOne(context.Background(), bson.M{"_id": encodeKey(key)})
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	return nil
}

func newEntry(key []string, value []byte, opts ...spi.Option) *entry {
	options := spi.NewOptions(opts...)

	e := &entry{
		Key:   encodeKey(key),
		Value: value,
	}

	if options.TTL > 0 {
		expiresAt := time.Now().Add(options.TTL)
		e.ExpiresAt = &expiresAt
	}

	return e
}

func encodeKey(key []string) string {
	segments := make([]string, len(key))

	for i, k := range key {
		segments[i] = url.PathEscape(k)
	}

	return strings.Join(segments, "/")
}
