/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

// OrderedCollectionType defines an 'OrderedCollection' index document.
type OrderedCollectionType struct {
	Context    *ContextProperty `json:"@context,omitempty"`
	ID         *URLProperty     `json:"id,omitempty"`
	Type       *TypeProperty    `json:"type,omitempty"`
	TotalItems *int             `json:"totalItems,omitempty"`
	First      *URLProperty     `json:"first,omitempty"`
	Last       *URLProperty     `json:"last,omitempty"`
}

// NewOrderedCollection returns a new ordered collection index document.
func NewOrderedCollection(opts ...Opt) *OrderedCollectionType {
	options := NewOptions(opts...)

	return &OrderedCollectionType{
		Context:    NewContextProperty(ContextActivityStreams),
		ID:         NewURLProperty(options.ID),
		Type:       NewTypeProperty(TypeOrderedCollection),
		TotalItems: options.TotalItems,
		First:      NewURLProperty(options.First),
		Last:       NewURLProperty(options.Last),
	}
}

// OrderedCollectionPageType defines an 'OrderedCollectionPage' document.
type OrderedCollectionPageType struct {
	Context      *ContextProperty `json:"@context,omitempty"`
	ID           *URLProperty     `json:"id,omitempty"`
	Type         *TypeProperty    `json:"type,omitempty"`
	OrderedItems []Document       `json:"orderedItems"`
	Next         *URLProperty     `json:"next,omitempty"`
}

// NewOrderedCollectionPage returns a new ordered collection page document.
func NewOrderedCollectionPage(opts ...Opt) *OrderedCollectionPageType {
	options := NewOptions(opts...)

	items := options.Items
	if items == nil {
		items = []Document{}
	}

	return &OrderedCollectionPageType{
		Context:      NewContextProperty(ContextActivityStreams),
		ID:           NewURLProperty(options.ID),
		Type:         NewTypeProperty(TypeOrderedCollectionPage),
		OrderedItems: items,
		Next:         NewURLProperty(options.Next),
	}
}
