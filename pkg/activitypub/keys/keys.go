/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
)

// JWK holds an RSA key in JSON Web Key format (RFC 7517). Private key parameters
// are omitted from the JSON for a public key.
type JWK struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	D   string `json:"d,omitempty"`
	P   string `json:"p,omitempty"`
	Q   string `json:"q,omitempty"`
	DP  string `json:"dp,omitempty"`
	DQ  string `json:"dq,omitempty"`
	QI  string `json:"qi,omitempty"`
}

// NewJWK exports the given RSA private key to JWK format.
func NewJWK(key *rsa.PrivateKey) *JWK {
	return &JWK{
		Kty: "RSA",
		N:   encodeBigInt(key.N),
		E:   encodeBigInt(big.NewInt(int64(key.E))),
		D:   encodeBigInt(key.D),
		P:   encodeBigInt(key.Primes[0]),
		Q:   encodeBigInt(key.Primes[1]),
		DP:  encodeBigInt(key.Precomputed.Dp),
		DQ:  encodeBigInt(key.Precomputed.Dq),
		QI:  encodeBigInt(key.Precomputed.Qinv),
	}
}

// RSAPrivateKey imports the JWK as an RSA private key.
func (j *JWK) RSAPrivateKey() (*rsa.PrivateKey, error) {
	if j.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type [%s]", j.Kty)
	}

	if j.D == "" || j.P == "" || j.Q == "" {
		return nil, fmt.Errorf("missing private key parameters")
	}

	n, err := decodeBigInt(j.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}

	e, err := decodeBigInt(j.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	d, err := decodeBigInt(j.D)
	if err != nil {
		return nil, fmt.Errorf("decode private exponent: %w", err)
	}

	p, err := decodeBigInt(j.P)
	if err != nil {
		return nil, fmt.Errorf("decode prime: %w", err)
	}

	q, err := decodeBigInt(j.Q)
	if err != nil {
		return nil, fmt.Errorf("decode prime: %w", err)
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{
			N: n,
			E: int(e.Int64()),
		},
		D:      d,
		Primes: []*big.Int{p, q},
	}

	key.Precompute()

	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("validate key: %w", err)
	}

	return key, nil
}

// EncodePublicKeyPEM encodes the given RSA public key in PKIX PEM format, which is
// the format used by the 'publicKeyPem' property of an actor.
func EncodePublicKeyPEM(key *rsa.PublicKey) (string, error) {
	keyBytes, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: keyBytes,
	})), nil
}

// DecodePublicKeyPEM decodes an RSA public key in PKIX PEM format.
func DecodePublicKeyPEM(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("invalid PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKIX public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}

	return rsaPub, nil
}

func encodeBigInt(i *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(i.Bytes())
}

func decodeBigInt(value string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(b), nil
}
