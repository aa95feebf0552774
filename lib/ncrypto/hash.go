// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ncrypto

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// DigestSize is the output length of every hash in this package.
const DigestSize = 32

// Hash returns BLAKE3(data): the hash used to derive content
// identifiers, group ids, and the root-of-trust anchor for a device
// key.
func Hash(data []byte) [DigestSize]byte {
	h := blake3.New()
	_, _ = h.Write(data) // blake3.Hasher.Write never errors
	var out [DigestSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// KeyedHash returns keyed BLAKE3(key, data): the construction used to
// derive a group's mailbox id from its group id, and to derive
// per-use symmetric keys from a shared secret without a separate KDF
// dependency.
func KeyedHash(key, data []byte) ([DigestSize]byte, error) {
	if len(key) != DigestSize {
		return [DigestSize]byte{}, fmt.Errorf("ncrypto: keyed hash key must be %d bytes, got %d", DigestSize, len(key))
	}
	h, err := blake3.NewKeyed(key)
	if err != nil {
		return [DigestSize]byte{}, fmt.Errorf("ncrypto: init keyed blake3: %w", err)
	}
	_, _ = h.Write(data)
	var out [DigestSize]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// DeriveKey produces a DigestSize-byte symmetric key from a raw X25519
// shared secret and a context label, via keyed BLAKE3. The label is
// hashed first to fill the keyed-hash key slot, rather than padded or
// truncated into it directly, so callers can pass any short
// human-readable string.
func DeriveKey(sharedSecret []byte, label string) [DigestSize]byte {
	labelKey := Hash([]byte(label))
	derived, err := KeyedHash(labelKey[:], sharedSecret)
	if err != nil {
		// labelKey is always DigestSize bytes; KeyedHash only fails on
		// a malformed key.
		panic("ncrypto: derive key: " + err.Error())
	}
	return derived
}
