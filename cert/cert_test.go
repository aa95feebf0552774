// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ncrypto"
)

func mustKey(t *testing.T) ncrypto.SigningKey {
	t.Helper()
	k, err := ncrypto.GenerateSigningKey()
	require.NoError(t, err)
	return k
}

func TestSelfSignedRootVerifies(t *testing.T) {
	root := mustKey(t)
	now := time.Now()
	rootCert := SignSelf(root, now.Add(24*time.Hour))
	chain := Chain{This: rootCert}

	require.NoError(t, Verify(chain, RootHash(root.Public()), now))
}

func TestDelegatedChainVerifies(t *testing.T) {
	root := mustKey(t)
	device := mustKey(t)
	now := time.Now()

	rootCert := SignSelf(root, now.Add(24*time.Hour))
	deviceCert := Sign(root, device.Public(), now.Add(time.Hour), false)

	chain := Chain{Ancestors: []Certificate{rootCert}, This: deviceCert}
	require.NoError(t, Verify(chain, RootHash(root.Public()), now))
}

func TestChainRejectsNonIssuingIntermediate(t *testing.T) {
	root := mustKey(t)
	intermediate := mustKey(t)
	leaf := mustKey(t)
	now := time.Now()

	rootCert := SignSelf(root, now.Add(24*time.Hour))
	// intermediate cannot issue further certificates.
	intermediateCert := Sign(root, intermediate.Public(), now.Add(24*time.Hour), false)
	leafCert := Sign(intermediate, leaf.Public(), now.Add(time.Hour), false)

	chain := Chain{Ancestors: []Certificate{rootCert, intermediateCert}, This: leafCert}
	require.ErrorContains(t, Verify(chain, RootHash(root.Public()), now), "trusted-signer set")
}

func TestChainAllowsIssuingIntermediate(t *testing.T) {
	root := mustKey(t)
	intermediate := mustKey(t)
	leaf := mustKey(t)
	now := time.Now()

	rootCert := SignSelf(root, now.Add(24*time.Hour))
	intermediateCert := Sign(root, intermediate.Public(), now.Add(24*time.Hour), true)
	leafCert := Sign(intermediate, leaf.Public(), now.Add(time.Hour), false)

	chain := Chain{Ancestors: []Certificate{rootCert, intermediateCert}, This: leafCert}
	require.NoError(t, Verify(chain, RootHash(root.Public()), now))
}

func TestChainRejectsExpiredLeaf(t *testing.T) {
	root := mustKey(t)
	device := mustKey(t)
	now := time.Now()

	rootCert := SignSelf(root, now.Add(24*time.Hour))
	deviceCert := Sign(root, device.Public(), now.Add(-time.Hour), false)

	chain := Chain{Ancestors: []Certificate{rootCert}, This: deviceCert}
	require.Error(t, Verify(chain, RootHash(root.Public()), now), "expected failure: leaf certificate expired")
}

func TestChainIgnoresExpiredAncestorWithoutFailing(t *testing.T) {
	root := mustKey(t)
	expiredIntermediate := mustKey(t)
	otherIntermediate := mustKey(t)
	leaf := mustKey(t)
	now := time.Now()

	rootCert := SignSelf(root, now.Add(24*time.Hour))
	// This ancestor is expired and must be skipped, not fail the chain.
	expiredCert := Sign(root, expiredIntermediate.Public(), now.Add(-time.Hour), true)
	// The actual issuer of the leaf is a separate, valid intermediate.
	otherCert := Sign(root, otherIntermediate.Public(), now.Add(24*time.Hour), true)
	leafCert := Sign(otherIntermediate, leaf.Public(), now.Add(time.Hour), false)

	chain := Chain{Ancestors: []Certificate{rootCert, expiredCert, otherCert}, This: leafCert}
	require.NoError(t, Verify(chain, RootHash(root.Public()), now))
}

func TestChainRejectsUnanchoredRoot(t *testing.T) {
	root := mustKey(t)
	impostor := mustKey(t)
	device := mustKey(t)
	now := time.Now()

	rootCert := SignSelf(root, now.Add(24*time.Hour))
	deviceCert := Sign(root, device.Public(), now.Add(time.Hour), false)
	chain := Chain{Ancestors: []Certificate{rootCert}, This: deviceCert}

	require.Error(t, Verify(chain, RootHash(impostor.Public()), now), "expected failure: root hash does not match any certificate")
}

func TestChainRejectsTamperedSignature(t *testing.T) {
	root := mustKey(t)
	device := mustKey(t)
	now := time.Now()

	rootCert := SignSelf(root, now.Add(24*time.Hour))
	deviceCert := Sign(root, device.Public(), now.Add(time.Hour), false)
	deviceCert.Signature[0] ^= 1

	chain := Chain{Ancestors: []Certificate{rootCert}, This: deviceCert}
	require.Error(t, Verify(chain, RootHash(root.Public()), now), "expected failure: tampered signature")
}

func TestChainEncodeDecodeRoundTrip(t *testing.T) {
	root := mustKey(t)
	device := mustKey(t)
	now := time.Now()

	rootCert := SignSelf(root, now.Add(24*time.Hour))
	deviceCert := Sign(root, device.Public(), now.Add(time.Hour), false)
	chain := Chain{Ancestors: []Certificate{rootCert}, This: deviceCert}

	data := codec.Marshal(chain)
	var decoded Chain
	require.NoError(t, codec.Unmarshal(data, &decoded))
	require.NoError(t, Verify(decoded, RootHash(root.Public()), now), "verify after round trip")
}
