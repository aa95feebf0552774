// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package event watches the local store for change and turns it into a
// small ordered stream of push events for a UI to consume, scaling the
// teacher's single-room watch-cell idiom up to the whole store: instead
// of one long-poll position per room, Loop keeps one snapshot of
// everything worth telling the UI about (identity presence,
// conversation activity, group roster versions) and diffs it against
// the store every time the store's notifier wakes.
package event
