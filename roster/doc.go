// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package roster folds a group's verified management-event log into
// its current membership. Replay is the entry point; the package also
// has Apply, ActiveAdmin, GroupMembers and FromGroupMembers. None of
// them takes a context, touches a store, or performs I/O — the
// worker loop is responsible for gathering the verified event
// sequence and for persisting the result.
package roster
