// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"fmt"

	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/store"
)

// loadSigningKey reconstructs the live Ed25519 signing key from a
// loaded identity's secret-buffer seed.
func loadSigningKey(id store.Identity) (ncrypto.SigningKey, error) {
	key, err := ncrypto.SigningKeyFromSeed(id.DeviceSigningSeed.Bytes())
	if err != nil {
		return ncrypto.SigningKey{}, fmt.Errorf("worker: reconstruct signing key: %w", err)
	}
	return key, nil
}

// loadMediumKeys reconstructs the current medium X25519 private key
// and, if a rotation overlap is in progress, the previous one, in the
// order header-decryption should try them.
func loadMediumKeys(id store.Identity) ([]ncrypto.DHPrivateKey, error) {
	current, err := ncrypto.DHKeyFromSeed(id.MediumSecretCurrent.Bytes())
	if err != nil {
		return nil, fmt.Errorf("worker: reconstruct medium key: %w", err)
	}
	keys := []ncrypto.DHPrivateKey{current}
	if id.MediumSecretPrevious != nil {
		previous, err := ncrypto.DHKeyFromSeed(id.MediumSecretPrevious.Bytes())
		if err != nil {
			return nil, fmt.Errorf("worker: reconstruct previous medium key: %w", err)
		}
		keys = append(keys, previous)
	}
	return keys, nil
}
