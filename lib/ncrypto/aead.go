// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ncrypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEADKeySize and AEADNonceSize are the key and nonce lengths for
// XChaCha20-Poly1305, the AEAD used for every message body and every
// management-log entry in the core.
const (
	AEADKeySize   = chacha20poly1305.KeySize
	AEADNonceSize = chacha20poly1305.NonceSizeX
	AEADTagSize   = chacha20poly1305.Overhead
)

// NewAEADNonce returns a fresh random nonce sized for Seal/Open.
func NewAEADNonce() ([]byte, error) {
	nonce := make([]byte, AEADNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("ncrypto: generate aead nonce: %w", err)
	}
	return nonce, nil
}

// Seal encrypts and authenticates plaintext under key, nonce, and
// associatedData, returning ciphertext with the Poly1305 tag appended.
func Seal(key, nonce, plaintext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("ncrypto: init xchacha20-poly1305: %w", err)
	}
	if len(nonce) != AEADNonceSize {
		return nil, fmt.Errorf("ncrypto: aead nonce must be %d bytes, got %d", AEADNonceSize, len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, associatedData), nil
}

// Open decrypts and authenticates ciphertext produced by Seal. A
// non-nil error always means authentication failed or the input was
// malformed; callers must not distinguish the two, to avoid leaking
// which check failed.
func Open(key, nonce, ciphertext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("ncrypto: init xchacha20-poly1305: %w", err)
	}
	if len(nonce) != AEADNonceSize {
		return nil, fmt.Errorf("ncrypto: aead nonce must be %d bytes, got %d", AEADNonceSize, len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("ncrypto: aead open: authentication failed")
	}
	return plaintext, nil
}
