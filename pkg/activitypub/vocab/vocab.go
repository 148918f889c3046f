/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import "encoding/json"

// Context defines the object context.
type Context = string

const (
	// ContextActivityStreams is the ActivityStreams context.
	ContextActivityStreams Context = "https://www.w3.org/ns/activitystreams"
	// ContextSecurity is the security context.
	ContextSecurity Context = "https://w3id.org/security/v1"
)

// PublicIRI indicates that the object is public, i.e. it may be viewed by anyone.
const PublicIRI = "https://www.w3.org/ns/activitystreams#Public"

// Type indicates the type of the object.
type Type = string

const (
	// TypeObject defines the 'Object' type.
	TypeObject Type = "Object"
	// TypeActivity defines the 'Activity' type.
	TypeActivity Type = "Activity"

	// TypePerson defines the 'Person' actor type.
	TypePerson Type = "Person"
	// TypeService defines the 'Service' actor type.
	TypeService Type = "Service"
	// TypeApplication defines the 'Application' actor type.
	TypeApplication Type = "Application"
	// TypeGroup defines the 'Group' actor type.
	TypeGroup Type = "Group"
	// TypeOrganization defines the 'Organization' actor type.
	TypeOrganization Type = "Organization"

	// TypeNote defines the 'Note' object type.
	TypeNote Type = "Note"

	// TypeOrderedCollection defines the 'OrderedCollection' type.
	TypeOrderedCollection Type = "OrderedCollection"
	// TypeOrderedCollectionPage defines the 'OrderedCollectionPage' type.
	TypeOrderedCollectionPage Type = "OrderedCollectionPage"

	// TypeCreate defines the 'Create' activity type.
	TypeCreate Type = "Create"
	// TypeUpdate defines the 'Update' activity type.
	TypeUpdate Type = "Update"
	// TypeDelete defines the 'Delete' activity type.
	TypeDelete Type = "Delete"
	// TypeFollow defines the 'Follow' activity type.
	TypeFollow Type = "Follow"
	// TypeAccept defines the 'Accept' activity type.
	TypeAccept Type = "Accept"
	// TypeReject defines the 'Reject' activity type.
	TypeReject Type = "Reject"
	// TypeAnnounce defines the 'Announce' activity type.
	TypeAnnounce Type = "Announce"
	// TypeLike defines the 'Like' activity type.
	TypeLike Type = "Like"
	// TypeOffer defines the 'Offer' activity type.
	TypeOffer Type = "Offer"
	// TypeInvite defines the 'Invite' activity type.
	TypeInvite Type = "Invite"
	// TypeUndo defines the 'Undo' activity type.
	TypeUndo Type = "Undo"
)

// TypeIRI returns the canonical IRI of the given type in the ActivityStreams namespace.
func TypeIRI(t Type) string {
	return ContextActivityStreams + "#" + t
}

// superType maps each type to its immediate super type. Types not present in the map
// derive directly from 'Object'.
//
//nolint:gochecknoglobals
var superType = map[Type]Type{
	TypeActivity:              TypeObject,
	TypeCreate:                TypeActivity,
	TypeUpdate:                TypeActivity,
	TypeDelete:                TypeActivity,
	TypeFollow:                TypeActivity,
	TypeAccept:                TypeActivity,
	TypeReject:                TypeActivity,
	TypeAnnounce:              TypeActivity,
	TypeLike:                  TypeActivity,
	TypeOffer:                 TypeActivity,
	TypeUndo:                  TypeActivity,
	TypeInvite:                TypeOffer,
	TypePerson:                TypeObject,
	TypeService:               TypeObject,
	TypeApplication:           TypeObject,
	TypeGroup:                 TypeObject,
	TypeOrganization:          TypeObject,
	TypeNote:                  TypeObject,
	TypeOrderedCollection:     TypeObject,
	TypeOrderedCollectionPage: TypeOrderedCollection,
}

// TypeChain returns the given type followed by each of its super types, ending
// at 'Object'. For example, the chain of 'Invite' is [Invite Offer Activity Object].
func TypeChain(t Type) []Type {
	chain := []Type{t}

	for t != TypeObject {
		super, ok := superType[t]
		if !ok {
			super = TypeObject
		}

		chain = append(chain, super)

		t = super
	}

	return chain
}

// Document defines a JSON document as a map.
type Document map[string]interface{}

// MergeWith merges the given document with this document. Any duplicate fields
// in this document are overwritten by the fields in the given document.
func (doc Document) MergeWith(other Document) {
	for k, v := range other {
		doc[k] = v
	}
}

// MarshalToDoc marshals the given object to a Document.
func MarshalToDoc(obj interface{}) (Document, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}

	return UnmarshalToDoc(b)
}

// MustMarshalToDoc marshals the given object to a Document. This function panics on error.
func MustMarshalToDoc(obj interface{}) Document {
	doc, err := MarshalToDoc(obj)
	if err != nil {
		panic(err)
	}

	return doc
}

// UnmarshalToDoc unmarshals the given bytes to a Document.
func UnmarshalToDoc(raw []byte) (Document, error) {
	var doc Document

	err := json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// UnmarshalFromDoc unmarshals the given document to the given object.
func UnmarshalFromDoc(doc Document, obj interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, obj)
}

// MarshalJSON marshals the given objects into a single JSON document. The fields
// of each of the given objects are merged, with fields of later objects overwriting
// those of earlier ones.
func MarshalJSON(o interface{}, others ...interface{}) ([]byte, error) {
	doc, err := MarshalToDoc(o)
	if err != nil {
		return nil, err
	}

	for _, other := range others {
		otherDoc, e := MarshalToDoc(other)
		if e != nil {
			return nil, e
		}

		doc.MergeWith(otherDoc)
	}

	return json.Marshal(doc)
}
