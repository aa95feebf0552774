// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cert represents device certificates and certificate chains,
// and verifies a chain against a trusted root hash.
//
// A Certificate binds a device's signing key to an expiry and an
// issuing right. A Chain is a flat ordered list of certificates with
// an explicit leaf — never a parent-pointer graph — because chains
// here are built and verified by a single left-to-right fold over a
// trusted-signer set, not by graph traversal. See Verify.
package cert
