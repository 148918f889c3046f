/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"net/url"
)

// ActivityType defines an 'activity'.
type ActivityType struct {
	*ObjectType

	activity *activityType
}

type activityType struct {
	Actor *URLProperty `json:"actor,omitempty"`

	// Object is either an embedded document or an IRI string.
	Object interface{} `json:"object,omitempty"`
}

func reservedActivityProperties() []string {
	return []string{"actor", "object"}
}

// NewActivity returns a new activity with the given type.
func NewActivity(t Type, opts ...Opt) *ActivityType {
	options := NewOptions(opts...)

	return &ActivityType{
		ObjectType: &ObjectType{
			object: &objectType{
				Context: NewContextProperty(ContextActivityStreams),
				ID:      NewURLProperty(options.ID),
				Type:    NewTypeProperty(t),
				To:      NewURLCollectionProperty(options.To...),
			},
		},
		activity: &activityType{
			Actor:  NewURLProperty(options.Actor),
			Object: options.Object,
		},
	}
}

// Actor returns the actor of the activity.
func (t *ActivityType) Actor() *URLProperty {
	if t == nil || t.activity == nil {
		return nil
	}

	return t.activity.Actor
}

// SetActor sets the actor of the activity.
func (t *ActivityType) SetActor(iri *url.URL) {
	t.activity.Actor = NewURLProperty(iri)
}

// Object returns the embedded object of the activity, or nil if the activity has no
// object or references it by IRI.
func (t *ActivityType) Object() Document {
	if t == nil || t.activity == nil {
		return nil
	}

	if doc, ok := t.activity.Object.(map[string]interface{}); ok {
		return doc
	}

	if doc, ok := t.activity.Object.(Document); ok {
		return doc
	}

	return nil
}

// ObjectIRI returns the IRI of the activity's object when the object is referenced by
// IRI rather than embedded.
func (t *ActivityType) ObjectIRI() *url.URL {
	if t == nil || t.activity == nil {
		return nil
	}

	iri, ok := t.activity.Object.(string)
	if !ok {
		return nil
	}

	u, err := url.Parse(iri)
	if err != nil {
		return nil
	}

	return u
}

// MarshalJSON marshals the activity.
func (t *ActivityType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.ObjectType, t.activity)
}

// UnmarshalJSON unmarshals the activity.
func (t *ActivityType) UnmarshalJSON(bytes []byte) error {
	header := &activityType{}

	err := json.Unmarshal(bytes, header)
	if err != nil {
		return err
	}

	obj := &ObjectType{}

	err = json.Unmarshal(bytes, obj)
	if err != nil {
		return err
	}

	for _, prop := range reservedActivityProperties() {
		delete(obj.additional, prop)
	}

	t.ObjectType = obj
	t.activity = header

	return nil
}
