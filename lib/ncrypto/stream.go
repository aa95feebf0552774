// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ncrypto

import (
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// StreamNonceSize is the nonce length for the unauthenticated XChaCha20
// stream used to wrap per-recipient header keys. It is intentionally
// unauthenticated: the wrapped key is only ever used once, to decrypt
// a body that is itself authenticated under XChaCha20-Poly1305, so a
// malleable wrap cannot be exploited without also forging the body
// tag.
const StreamNonceSize = chacha20.NonceSizeX

// WrapKey XORs key with an XChaCha20 keystream derived from
// wrapKey/nonce. Used both to wrap and, symmetrically, to unwrap: the
// cipher is a pure keystream XOR, so encryption and decryption are the
// same operation.
func WrapKey(wrapKey, nonce, key []byte) ([]byte, error) {
	cipher, err := chacha20.NewUnauthenticatedCipher(wrapKey, nonce)
	if err != nil {
		return nil, fmt.Errorf("ncrypto: init xchacha20 stream: %w", err)
	}
	out := make([]byte, len(key))
	cipher.XORKeyStream(out, key)
	return out, nil
}
