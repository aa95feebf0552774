// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import "github.com/nullspace-chat/core/lib/ref"

// Event is one of State, ConvoUpdated, or GroupUpdated — the closed
// set of notifications Loop.Next can return.
type Event interface {
	isEvent()
}

// State reports a change in the local identity's login status.
type State struct {
	LoggedIn bool
}

func (State) isEvent() {}

// ConvoUpdated reports that new messages became visible in a
// conversation's history, or that the conversation itself was just
// created.
type ConvoUpdated struct {
	ConvoID string
}

func (ConvoUpdated) isEvent() {}

// GroupUpdated reports that a group's roster changed, or that the
// group itself was just created.
type GroupUpdated struct {
	GroupID ref.GroupID
}

func (GroupUpdated) isEvent() {}
