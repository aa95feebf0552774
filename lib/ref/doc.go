// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated identifier value types for the
// nullspace messaging core: usernames, server names, group
// identifiers, and mailbox identifiers.
//
// Each type wraps a string (or byte array) behind a constructor that
// validates format. Username, ServerName and GroupID expose
// String/MarshalText/UnmarshalText so the identifier round-trips
// through the codec and through JSON (group-invite payloads,
// diagnostics) without callers ever handling an unvalidated raw
// string; MailboxID and RootHash provide String only. The zero value of every type is invalid;
// check IsZero before using a value that may not have been parsed.
package ref
