// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ncrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// SigningKeySize and VerifyingKeySize are the byte lengths of an
// Ed25519 private and public key, respectively.
const (
	SigningKeySize  = ed25519.PrivateKeySize
	VerifyingKeySize = ed25519.PublicKeySize
	SignatureSize   = ed25519.SignatureSize
)

// SigningKey is an Ed25519 private key used to sign device certificates
// and message envelopes.
type SigningKey struct {
	key ed25519.PrivateKey
}

// VerifyingKey is an Ed25519 public key.
type VerifyingKey struct {
	key ed25519.PublicKey
}

// GenerateSigningKey creates a fresh Ed25519 keypair.
func GenerateSigningKey() (SigningKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return SigningKey{}, fmt.Errorf("ncrypto: generate signing key: %w", err)
	}
	return SigningKey{key: priv}, nil
}

// SigningKeyFromSeed deterministically derives a signing key from a
// 32-byte seed, for device keys that are themselves wrapped by
// lib/secret rather than freshly random each load.
func SigningKeyFromSeed(seed []byte) (SigningKey, error) {
	if len(seed) != ed25519.SeedSize {
		return SigningKey{}, fmt.Errorf("ncrypto: signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return SigningKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Public returns the VerifyingKey corresponding to k.
func (k SigningKey) Public() VerifyingKey {
	pub, ok := k.key.Public().(ed25519.PublicKey)
	if !ok {
		panic("ncrypto: ed25519 key produced unexpected public key type")
	}
	return VerifyingKey{key: pub}
}

// Seed returns the 32-byte seed this key was derived from, for storage
// behind lib/secret.
func (k SigningKey) Seed() []byte { return k.key.Seed() }

// Sign computes a detached Ed25519 signature over message.
func (k SigningKey) Sign(message []byte) []byte {
	return ed25519.Sign(k.key, message)
}

// Bytes returns the raw public key.
func (k VerifyingKey) Bytes() []byte { return []byte(k.key) }

// VerifyingKeyFromBytes wraps a raw 32-byte Ed25519 public key.
func VerifyingKeyFromBytes(raw []byte) (VerifyingKey, error) {
	if len(raw) != VerifyingKeySize {
		return VerifyingKey{}, fmt.Errorf("ncrypto: verifying key must be %d bytes, got %d", VerifyingKeySize, len(raw))
	}
	key := make(ed25519.PublicKey, VerifyingKeySize)
	copy(key, raw)
	return VerifyingKey{key: key}, nil
}

// Verify reports whether sig is a valid Ed25519 signature over message
// under k.
func (k VerifyingKey) Verify(message, sig []byte) bool {
	if len(k.key) != VerifyingKeySize {
		return false
	}
	return ed25519.Verify(k.key, message, sig)
}

// IsZero reports whether k is the uninitialized zero value.
func (k VerifyingKey) IsZero() bool { return len(k.key) == 0 }

// Equal reports whether two verifying keys are byte-identical.
func (k VerifyingKey) Equal(other VerifyingKey) bool {
	return k.key.Equal(other.key)
}
