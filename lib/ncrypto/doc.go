// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ncrypto wraps the primitives the nullspace core builds on:
// Ed25519 signatures, X25519 key agreement, XChaCha20 as an
// unauthenticated stream cipher, XChaCha20-Poly1305 as an AEAD, and
// BLAKE3 hashing in both plain and keyed modes.
//
// Every function here is a thin wrapper over golang.org/x/crypto and
// github.com/zeebo/blake3 — the package exists to fix the exact
// construction (nonce sizes, key derivation inputs, error handling) in
// one place rather than scattering cipher.NewX calls across the
// codebase. None of it invents cryptography; it names the pieces the
// rest of the tree is built from.
package ncrypto
