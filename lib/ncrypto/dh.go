// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ncrypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// DHKeySize is the byte length of an X25519 private or public key.
const DHKeySize = curve25519.PointSize

// DHPrivateKey is an X25519 private key used for header key agreement.
type DHPrivateKey struct {
	scalar [DHKeySize]byte
	public DHPublicKey
}

// DHPublicKey is an X25519 public key.
type DHPublicKey struct {
	point [DHKeySize]byte
}

// GenerateDHKey creates a fresh X25519 keypair.
func GenerateDHKey() (DHPrivateKey, error) {
	var scalar [DHKeySize]byte
	if _, err := io.ReadFull(rand.Reader, scalar[:]); err != nil {
		return DHPrivateKey{}, fmt.Errorf("ncrypto: generate dh key: %w", err)
	}
	return dhKeyFromScalar(scalar)
}

// DHKeyFromSeed derives an X25519 keypair from a 32-byte seed.
func DHKeyFromSeed(seed []byte) (DHPrivateKey, error) {
	if len(seed) != DHKeySize {
		return DHPrivateKey{}, fmt.Errorf("ncrypto: dh seed must be %d bytes, got %d", DHKeySize, len(seed))
	}
	var scalar [DHKeySize]byte
	copy(scalar[:], seed)
	return dhKeyFromScalar(scalar)
}

func dhKeyFromScalar(scalar [DHKeySize]byte) (DHPrivateKey, error) {
	point, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return DHPrivateKey{}, fmt.Errorf("ncrypto: derive dh public key: %w", err)
	}
	var pub DHPublicKey
	copy(pub.point[:], point)
	return DHPrivateKey{scalar: scalar, public: pub}, nil
}

// Public returns the DHPublicKey corresponding to k.
func (k DHPrivateKey) Public() DHPublicKey { return k.public }

// Seed returns the 32-byte scalar this key was derived from, for
// storage behind lib/secret.
func (k DHPrivateKey) Seed() []byte { return k.scalar[:] }

// SharedSecret performs X25519 Diffie-Hellman between k and peer,
// returning the 32-byte shared point. Callers must not use this raw
// output directly as a symmetric key; hash it first (see DeriveKey).
func (k DHPrivateKey) SharedSecret(peer DHPublicKey) ([]byte, error) {
	secret, err := curve25519.X25519(k.scalar[:], peer.point[:])
	if err != nil {
		return nil, fmt.Errorf("ncrypto: x25519 agreement: %w", err)
	}
	return secret, nil
}

// Bytes returns the raw public key.
func (k DHPublicKey) Bytes() []byte { return k.point[:] }

// DHPublicKeyFromBytes wraps a raw 32-byte X25519 public key.
func DHPublicKeyFromBytes(raw []byte) (DHPublicKey, error) {
	if len(raw) != DHKeySize {
		return DHPublicKey{}, fmt.Errorf("ncrypto: dh public key must be %d bytes, got %d", DHKeySize, len(raw))
	}
	var pub DHPublicKey
	copy(pub.point[:], raw)
	return pub, nil
}

// IsZero reports whether k is the uninitialized zero value.
func (k DHPublicKey) IsZero() bool { return k.point == [DHKeySize]byte{} }

// Equal reports whether two public keys are byte-identical.
func (k DHPublicKey) Equal(other DHPublicKey) bool { return k.point == other.point }
