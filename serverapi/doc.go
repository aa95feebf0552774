// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package serverapi defines the abstract per-user server collaborator
// the core drives to authenticate, publish medium keys, and move bytes
// through mailboxes.
//
// A server is never trusted with plaintext or identity: every value
// it accepts or returns is either already encrypted, already signed,
// or opaque routing metadata (a mailbox id, a timestamp cursor). The
// core is responsible for everything the server must not be trusted
// to check.
package serverapi
