// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the façade a host application drives: it owns the
// local store, wires the background loops in package worker together
// under one errgroup, and exposes registration, conversation, and
// group operations as plain synchronous methods on [Client].
//
// A Client is constructed once with [New] and then run with [Run],
// which blocks until ctx is cancelled or one of its background loops
// returns a terminal error. Every other method is safe to call
// concurrently with Run and with itself; each opens its own store
// transaction and dials servers independently, mirroring the pattern
// package worker already uses internally.
//
// Registration and enrollment methods are grounded on the same
// sequencing the original nullspace-client's internal RPC surface
// used: DeviceAuth then publish a medium key for a brand-new account,
// or import an already-issued device certificate chain sealed in a
// bundle for an existing one. Group operations fold locally-applied
// management events through package roster the same way the receive
// loop's GroupManagementDispatcher folds incoming ones, so a group's
// creator sees its own membership changes without waiting on a round
// trip through its own mailbox.
package client
