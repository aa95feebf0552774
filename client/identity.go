// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"

	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/store"
)

// loadSigningKey reconstructs the live Ed25519 signing key from a
// loaded identity's secret-buffer seed. Mirrors worker's own
// unexported helper of the same name; kept as a small duplication
// rather than an import of worker's internals.
func loadSigningKey(id store.Identity) (ncrypto.SigningKey, error) {
	key, err := ncrypto.SigningKeyFromSeed(id.DeviceSigningSeed.Bytes())
	if err != nil {
		return ncrypto.SigningKey{}, fmt.Errorf("client: reconstruct signing key: %w", err)
	}
	return key, nil
}
