/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"net/url"
)

// PublicKeyType defines a public key object.
type PublicKeyType struct {
	ID           *URLProperty `json:"id"`
	Owner        *URLProperty `json:"owner"`
	PublicKeyPem string       `json:"publicKeyPem"`
}

// NewPublicKey returns a new public key object.
func NewPublicKey(opts ...Opt) *PublicKeyType {
	options := NewOptions(opts...)

	return &PublicKeyType{
		ID:           NewURLProperty(options.ID),
		Owner:        NewURLProperty(options.Owner),
		PublicKeyPem: options.PublicKeyPem,
	}
}

// EndpointsType defines the additional endpoints of an actor.
type EndpointsType struct {
	SharedInbox *URLProperty `json:"sharedInbox,omitempty"`
}

// ActorType defines an 'actor'.
type ActorType struct {
	*ObjectType

	actor *actorType
}

type actorType struct {
	PreferredUsername string         `json:"preferredUsername,omitempty"`
	PublicKey         *PublicKeyType `json:"publicKey,omitempty"`
	Inbox             *URLProperty   `json:"inbox,omitempty"`
	Outbox            *URLProperty   `json:"outbox,omitempty"`
	Followers         *URLProperty   `json:"followers,omitempty"`
	Following         *URLProperty   `json:"following,omitempty"`
	Endpoints         *EndpointsType `json:"endpoints,omitempty"`
}

func reservedActorProperties() []string {
	return []string{
		"preferredUsername", "publicKey", "inbox", "outbox",
		"followers", "following", "endpoints",
	}
}

// NewActor returns a new actor with the given type.
func NewActor(t Type, opts ...Opt) *ActorType {
	options := NewOptions(opts...)

	var endpoints *EndpointsType

	if options.SharedInbox != nil {
		endpoints = &EndpointsType{SharedInbox: NewURLProperty(options.SharedInbox)}
	}

	return &ActorType{
		ObjectType: &ObjectType{
			object: &objectType{
				Context: NewContextProperty(ContextActivityStreams, ContextSecurity),
				ID:      NewURLProperty(options.ID),
				Type:    NewTypeProperty(t),
			},
		},
		actor: &actorType{
			PreferredUsername: options.PreferredUsername,
			PublicKey:         options.PublicKey,
			Inbox:             NewURLProperty(options.Inbox),
			Outbox:            NewURLProperty(options.Outbox),
			Followers:         NewURLProperty(options.Followers),
			Following:         NewURLProperty(options.Following),
			Endpoints:         endpoints,
		},
	}
}

// PreferredUsername returns the actor's preferred username.
func (t *ActorType) PreferredUsername() string {
	if t == nil || t.actor == nil {
		return ""
	}

	return t.actor.PreferredUsername
}

// PublicKey returns the actor's public key.
func (t *ActorType) PublicKey() *PublicKeyType {
	if t == nil || t.actor == nil {
		return nil
	}

	return t.actor.PublicKey
}

// Inbox returns the URL of the actor's inbox.
func (t *ActorType) Inbox() *url.URL {
	if t == nil || t.actor == nil {
		return nil
	}

	return t.actor.Inbox.URL()
}

// Outbox returns the URL of the actor's outbox.
func (t *ActorType) Outbox() *url.URL {
	if t == nil || t.actor == nil {
		return nil
	}

	return t.actor.Outbox.URL()
}

// Followers returns the URL of the actor's followers collection.
func (t *ActorType) Followers() *url.URL {
	if t == nil || t.actor == nil {
		return nil
	}

	return t.actor.Followers.URL()
}

// Following returns the URL of the actor's following collection.
func (t *ActorType) Following() *url.URL {
	if t == nil || t.actor == nil {
		return nil
	}

	return t.actor.Following.URL()
}

// SharedInbox returns the URL of the actor's shared inbox, or nil if the actor
// does not declare one.
func (t *ActorType) SharedInbox() *url.URL {
	if t == nil || t.actor == nil || t.actor.Endpoints == nil {
		return nil
	}

	return t.actor.Endpoints.SharedInbox.URL()
}

// MarshalJSON marshals the actor.
func (t *ActorType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.ObjectType, t.actor)
}

// UnmarshalJSON unmarshals the actor.
func (t *ActorType) UnmarshalJSON(bytes []byte) error {
	header := &actorType{}

	err := json.Unmarshal(bytes, header)
	if err != nil {
		return err
	}

	obj := &ObjectType{}

	err = json.Unmarshal(bytes, obj)
	if err != nil {
		return err
	}

	for _, prop := range reservedActorProperties() {
		delete(obj.additional, prop)
	}

	t.ObjectType = obj
	t.actor = header

	return nil
}
