/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import "encoding/json"

// ContextProperty holds one or more contexts.
type ContextProperty struct {
	contexts []Context
}

// NewContextProperty returns a new 'context' property. Nil is returned if no contexts were provided.
func NewContextProperty(contexts ...Context) *ContextProperty {
	if len(contexts) == 0 {
		return nil
	}

	return &ContextProperty{contexts: contexts}
}

// String returns the string representation of the context property.
func (p *ContextProperty) String() string {
	if p == nil || len(p.contexts) == 0 {
		return ""
	}

	return p.contexts[0]
}

// Contexts returns all contexts.
func (p *ContextProperty) Contexts() []Context {
	if p == nil {
		return nil
	}

	return p.contexts
}

// Contains returns true if the property contains all of the given contexts.
func (p *ContextProperty) Contains(contexts ...Context) bool {
	if p == nil || len(contexts) == 0 {
		return false
	}

	for _, c := range contexts {
		if !p.contains(c) {
			return false
		}
	}

	return true
}

func (p *ContextProperty) contains(c Context) bool {
	for _, pc := range p.contexts {
		if pc == c {
			return true
		}
	}

	return false
}

// MarshalJSON marshals the context property.
func (p *ContextProperty) MarshalJSON() ([]byte, error) {
	if len(p.contexts) == 1 {
		return json.Marshal(p.contexts[0])
	}

	return json.Marshal(p.contexts)
}

// UnmarshalJSON unmarshals the context property.
func (p *ContextProperty) UnmarshalJSON(bytes []byte) error {
	var c Context

	err := json.Unmarshal(bytes, &c)
	if err == nil {
		p.contexts = []Context{c}

		return nil
	}

	var contexts []Context

	err = json.Unmarshal(bytes, &contexts)
	if err != nil {
		return err
	}

	p.contexts = contexts

	return nil
}
