// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for device
// enrollment bundles. It wraps filippo.io/age for the operations
// enrollment needs: generate an x25519 keypair for a joining device,
// encrypt a bundle to that device's public key, and decrypt on
// arrival.
//
// Ciphertext is base64-encoded for storage or transmission as a plain
// string. Callers pass plaintext []byte to [Encrypt] and receive a
// base64 string; [Decrypt] accepts a base64 string and returns
// plaintext. Private keys and decrypted plaintext are returned as
// [secret.Buffer] values backed by mmap memory outside the Go heap
// (locked against swap, excluded from core dumps, zeroed on Close).
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair in a secret.Buffer
//   - [Encrypt] / [EncryptDeviceBundle] -- encrypt to age public key recipients
//   - [Decrypt] / [DecryptDeviceBundle] -- decrypt with a secret.Buffer key
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
//
// Used by the client package's device-bundle export/import path
// (new-device enrollment).
//
// Depends on lib/secret for secure memory allocation.
package sealed
