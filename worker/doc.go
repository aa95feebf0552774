// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker implements the client's background loops: draining
// the outbound send queue, long-polling mailboxes for new entries,
// and rotating the medium-term key pair. Every loop is a plain
// function of a shared [Context] and a [context.Context] for
// cancellation — callers race them together (see the client package)
// so that any one loop's terminal error stops the others.
//
// The receive loop's adaptive long-poll backoff is grounded on the
// AIMD timeout scheme used elsewhere in the corpus for mailbox-style
// polling, generalizing a simpler fixed long-poll/retry split into a
// floor-to-ceiling range that grows on idle polls and shrinks on
// errors.
package worker
