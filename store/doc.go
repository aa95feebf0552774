// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the client's single source of truth: the local
// identity, conversations and their messages, groups and their
// rosters, and per-mailbox poll cursors. Everything else in this
// module — the worker loops, the event loop, the client façade —
// mutates state only through a *Store, never by holding it directly.
//
// Storage is SQLite via lib/sqlitepool, one database file per
// identity. Blob columns (the identity's cert chain, a group's
// descriptor and keys) hold the lib/codec canonical encoding of the
// corresponding Go value, never JSON — only the group-management
// event payload is JSON, because it crosses the wire and needs to
// stay schema-evolvable there.
//
// Change notification is a watch cell (see [Notifier]): writers bump a
// generation counter after their transaction commits, and any number
// of waiters wake up and re-derive what changed by reading the store
// again. This is level-triggered and coalescing by design — a waiter
// that was asleep through three writes wakes once, not three times.
package store
