/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package docloader

import (
	"fmt"
	"testing"

	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/require"

	"github.com/fedgate/fedgate/pkg/store/memstore"
)

type mockLoader struct {
	loads int
	doc   *ld.RemoteDocument
	err   error
}

func (m *mockLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	m.loads++

	if m.err != nil {
		return nil, m.err
	}

	return m.doc, nil
}

func TestCachingLoader(t *testing.T) {
	keyPrefix := []string{"_fedgate", "remoteDocument"}

	t.Run("Caches loaded document", func(t *testing.T) {
		next := &mockLoader{
			doc: &ld.RemoteDocument{
				DocumentURL: "https://example.com/doc",
				Document:    map[string]interface{}{"id": "https://example.com/doc"},
			},
		}

		loader := NewCachingLoader(memstore.New(), keyPrefix, next)

		doc, err := loader.LoadDocument("https://example.com/doc")
		require.NoError(t, err)
		require.Equal(t, "https://example.com/doc", doc.DocumentURL)
		require.Equal(t, 1, next.loads)

		cached, err := loader.LoadDocument("https://example.com/doc")
		require.NoError(t, err)
		require.Equal(t, doc.DocumentURL, cached.DocumentURL)
		require.Equal(t, doc.Document, cached.Document)
		require.Equal(t, 1, next.loads)
	})

	t.Run("Load error -> error", func(t *testing.T) {
		errExpected := fmt.Errorf("injected load error")

		loader := NewCachingLoader(memstore.New(), keyPrefix, &mockLoader{err: errExpected})

		_, err := loader.LoadDocument("https://example.com/doc")
		require.ErrorIs(t, err, errExpected)
	})
}
