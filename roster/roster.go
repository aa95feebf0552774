// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roster

import (
	"github.com/nullspace-chat/core/envelope"
	"github.com/nullspace-chat/core/lib/ref"
	"github.com/nullspace-chat/core/store"
)

// VerifiedManagementEvent pairs one management-log entry with the
// sender identity its signature and chain have already been checked
// against. Replay trusts Sender without re-verifying it — callers
// build this slice only from entries that passed
// envelope.GroupSigned.Verify.
type VerifiedManagementEvent struct {
	Sender ref.Username
	Event  envelope.ManagementEvent
}

// Member is one user's standing in a replayed roster.
type Member struct {
	Username ref.Username
	Status   store.MemberStatus
	IsAdmin  bool
}

// Roster is the membership derived from replaying a group's
// management log, keyed by username.
type Roster map[ref.Username]Member

// GroupMembers converts the roster to store rows for groupID, the
// shape store.ReplaceRoster persists.
func (r Roster) GroupMembers(groupID ref.GroupID) []store.GroupMember {
	members := make([]store.GroupMember, 0, len(r))
	for _, m := range r {
		members = append(members, store.GroupMember{
			GroupID:  groupID,
			Username: m.Username,
			Status:   m.Status,
			IsAdmin:  m.IsAdmin,
		})
	}
	return members
}

// ActiveAdmin reports whether u is currently an admin in good
// standing: present, not banned, and flagged as admin.
func (r Roster) ActiveAdmin(u ref.Username) bool {
	m, ok := r[u]
	if !ok {
		return false
	}
	return m.IsAdmin && (m.Status == store.MemberPending || m.Status == store.MemberAccepted)
}

// FromGroupMembers rebuilds a Roster from the rows store.ReplaceRoster
// persisted, letting callers apply one more verified event onto an
// already-persisted roster instead of replaying the whole log.
func FromGroupMembers(members []store.GroupMember) Roster {
	r := make(Roster, len(members))
	for _, m := range members {
		r[m.Username] = Member{Username: m.Username, Status: m.Status, IsAdmin: m.IsAdmin}
	}
	return r
}

// Replay folds an ordered, verified management-event sequence into
// the resulting roster, starting from the group's founding admin as
// the sole accepted member. Events whose precondition fails are
// silently dropped: the log is adversarial, and an unauthorized event
// must never corrupt state.
func Replay(initAdmin ref.Username, events []VerifiedManagementEvent) Roster {
	r := Roster{
		initAdmin: {Username: initAdmin, Status: store.MemberAccepted, IsAdmin: true},
	}
	for _, ev := range events {
		r.Apply(ev)
	}
	return r
}

// Apply folds one verified management event into the roster in place.
func (r Roster) Apply(ev VerifiedManagementEvent) {
	sender := ev.Sender
	target := ev.Event.Username

	switch ev.Event.Kind {
	case envelope.EventInviteSent:
		senderMember, ok := r[sender]
		if !ok || !(senderMember.Status == store.MemberPending || senderMember.Status == store.MemberAccepted) {
			return
		}
		if targetMember, exists := r[target]; exists &&
			(targetMember.Status == store.MemberAccepted || targetMember.Status == store.MemberBanned) {
			return
		}
		r[target] = Member{Username: target, Status: store.MemberPending, IsAdmin: false}

	case envelope.EventInviteAccepted:
		if senderMember, ok := r[sender]; ok && senderMember.Status == store.MemberBanned {
			return
		}
		m := r[sender]
		m.Username = sender
		m.Status = store.MemberAccepted
		r[sender] = m

	case envelope.EventLeave:
		if senderMember, ok := r[sender]; ok && senderMember.Status == store.MemberBanned {
			return
		}
		delete(r, sender)

	case envelope.EventBan:
		if !r.ActiveAdmin(sender) {
			return
		}
		m := r[target]
		m.Username = target
		m.Status = store.MemberBanned
		r[target] = m

	case envelope.EventUnban:
		if !r.ActiveAdmin(sender) {
			return
		}
		m := r[target]
		m.Username = target
		m.Status = store.MemberPending
		r[target] = m

	case envelope.EventAddAdmin:
		if !r.ActiveAdmin(sender) {
			return
		}
		targetMember, ok := r[target]
		if !ok || targetMember.Status != store.MemberAccepted {
			return
		}
		targetMember.IsAdmin = true
		r[target] = targetMember

	case envelope.EventRemoveAdmin:
		if !r.ActiveAdmin(sender) {
			return
		}
		targetMember, ok := r[target]
		if !ok {
			return
		}
		targetMember.IsAdmin = false
		r[target] = targetMember
	}
}
