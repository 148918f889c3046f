/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-fed/httpsig"

	logfields "github.com/fedgate/fedgate/internal/pkg/log"
	"github.com/fedgate/fedgate/pkg/activitypub/keys"
	"github.com/fedgate/fedgate/pkg/activitypub/vocab"
)

// DefaultVerifierConfig returns the default configuration for verifying HTTP requests.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		Algorithms: []httpsig.Algorithm{httpsig.RSA_SHA256},
	}
}

// VerifierConfig contains the configuration for verifying HTTP requests.
type VerifierConfig struct {
	Algorithms []httpsig.Algorithm
}

type actorRetriever interface {
	GetActor(ctx context.Context, actorIRI *url.URL) (*vocab.ActorType, error)
	GetPublicKey(ctx context.Context, keyIRI *url.URL) (*vocab.PublicKeyType, error)
}

// Verifier verifies signatures of HTTP requests.
type Verifier struct {
	VerifierConfig
	retriever actorRetriever
}

// NewVerifier returns a new HTTP signature verifier.
func NewVerifier(cfg VerifierConfig, retriever actorRetriever) *Verifier {
	return &Verifier{
		VerifierConfig: cfg,
		retriever:      retriever,
	}
}

// VerifyRequest verifies the HTTP signature on the request and returns the public key
// for the key ID in the request header, along with the actor that owns the key. The
// actor may then be used to verify that it matches the actor in a posted activity.
func (v *Verifier) VerifyRequest(req *http.Request) (*vocab.PublicKeyType, *vocab.ActorType, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return nil, nil, fmt.Errorf("new verifier: %w", err)
	}

	pubKey, owner, err := v.loadAndVerifyPublicKey(req.Context(), verifier.KeyId())
	if err != nil {
		return nil, nil, fmt.Errorf("unable to verify public key for ID [%s]: %w", verifier.KeyId(), err)
	}

	pk, err := keys.DecodePublicKeyPEM(pubKey.PublicKeyPem)
	if err != nil {
		return nil, nil, fmt.Errorf("parse public key for ID [%s]: %w", verifier.KeyId(), err)
	}

	// TODO: Resolve the algorithm from the keyId according to
	// https://tools.ietf.org/html/draft-cavage-http-signatures-12#section-2.5.
	// Use the first algorithm for now.
	algo := v.Algorithms[0]

	logger.Debug("Verifying HTTP signature", logfields.WithKeyID(verifier.KeyId()))

	if err := verifier.Verify(pk, algo); err != nil {
		return nil, nil, fmt.Errorf("verify signature: %w", err)
	}

	return pubKey, owner, nil
}

func (v *Verifier) loadAndVerifyPublicKey(ctx context.Context, keyID string) (*vocab.PublicKeyType, *vocab.ActorType, error) {
	keyIRI, err := url.Parse(keyID)
	if err != nil {
		return nil, nil, fmt.Errorf("parse key IRI [%s]: %w", keyID, err)
	}

	pubKey, err := v.retriever.GetPublicKey(ctx, keyIRI)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve public key for ID [%s]: %w", keyID, err)
	}

	// Ensure that the public key ID matches the key ID of the specified owner. Otherwise it could
	// be an attempt to impersonate an actor.
	actor, err := v.retriever.GetActor(ctx, pubKey.Owner.URL())
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve actor [%s]: %w", pubKey.Owner, err)
	}

	if actor.PublicKey() == nil {
		return nil, nil, fmt.Errorf("unable to verify owner [%s] of public key [%s] since owner has no key",
			actor.ID(), keyID)
	}

	if actor.PublicKey().ID.String() != pubKey.ID.String() {
		return nil, nil, fmt.Errorf("public key of actor does not match the public key ID in the request: [%s]",
			actor.PublicKey().ID)
	}

	return pubKey, actor, nil
}
