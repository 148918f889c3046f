/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"net/url"
)

// ObjectType defines an 'object'.
type ObjectType struct {
	object     *objectType
	additional Document
}

// NewObject returns a new 'object'.
func NewObject(opts ...Opt) *ObjectType {
	options := NewOptions(opts...)

	return &ObjectType{
		object: &objectType{
			Context: NewContextProperty(options.Context...),
			ID:      NewURLProperty(options.ID),
			Type:    NewTypeProperty(options.Types...),
			To:      NewURLCollectionProperty(options.To...),
		},
	}
}

type objectType struct {
	Context *ContextProperty       `json:"@context,omitempty"`
	ID      *URLProperty           `json:"id,omitempty"`
	Type    *TypeProperty          `json:"type,omitempty"`
	To      *URLCollectionProperty `json:"to,omitempty"`
}

func reservedObjectProperties() []string {
	return []string{"@context", "id", "type", "to"}
}

// Context returns the context property.
func (t *ObjectType) Context() *ContextProperty {
	if t == nil || t.object == nil {
		return nil
	}

	return t.object.Context
}

// ID returns the object's ID.
func (t *ObjectType) ID() *URLProperty {
	if t == nil || t.object == nil {
		return nil
	}

	return t.object.ID
}

// SetID sets the object's ID.
func (t *ObjectType) SetID(id *url.URL) {
	t.object.ID = NewURLProperty(id)
}

// Type returns the type of the object.
func (t *ObjectType) Type() *TypeProperty {
	if t == nil || t.object == nil {
		return nil
	}

	return t.object.Type
}

// To returns the URLs to which the object should be sent.
func (t *ObjectType) To() []*url.URL {
	if t == nil || t.object == nil {
		return nil
	}

	return t.object.To.URLs()
}

// Value returns the value of an additional (non-reserved) property.
func (t *ObjectType) Value(key string) (interface{}, bool) {
	if t == nil {
		return nil, false
	}

	v, ok := t.additional[key]

	return v, ok
}

// MarshalJSON marshals the object.
func (t *ObjectType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.object, t.additional)
}

// UnmarshalJSON unmarshals the object.
func (t *ObjectType) UnmarshalJSON(bytes []byte) error {
	header := &objectType{}

	err := json.Unmarshal(bytes, header)
	if err != nil {
		return err
	}

	doc := make(Document)

	err = json.Unmarshal(bytes, &doc)
	if err != nil {
		return err
	}

	// Delete all of the reserved ActivityStreams fields.
	for _, prop := range reservedObjectProperties() {
		delete(doc, prop)
	}

	t.object = header
	t.additional = doc

	return nil
}
