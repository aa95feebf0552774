// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope is the crypto composition layer: it builds the
// wire-level envelopes the client sends and receives out of the
// primitives in lib/ncrypto, without performing any network I/O or
// consulting the store itself.
//
// Three layers compose here. Header encryption (see HeaderEncrypt,
// HeaderDecryptAny) is a multi-recipient DH envelope that provides
// confidentiality to anyone holding one of the addressed medium
// secrets, with no authentication of its own. Device signing (see
// DeviceSign, DeviceVerify) binds a payload to a sender's device
// certificate chain. Group encryption (see PackageGroupMessage,
// UnpackageGroupMessage) authenticates a payload to a group instead of
// a header recipient set, using a shared symmetric key and an inner
// signature that additionally binds the payload to a group id.
//
// Every Verify-shaped function here takes a root hash or key material
// as a plain argument rather than resolving it itself — directory and
// server lookups are the caller's job (see package worker), so this
// package stays free of network I/O and is straightforward to test
// against fixed inputs.
package envelope
