// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nullspace-chat/core/cert"
	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ncrypto"
	"github.com/nullspace-chat/core/lib/ref"
)

// GroupDescriptor is the immutable record a group id is derived from
// (spec.md §3): a random nonce for uniqueness, the group's founding
// admin, its creation time, the server hosting its mailboxes, and the
// symmetric key that encrypts its management log (distinct from the
// rotating group_key_current used for chat messages).
type GroupDescriptor struct {
	Nonce         [32]byte
	InitAdmin     ref.Username
	CreatedAt     time.Time
	ServerName    ref.ServerName
	ManagementKey []byte
}

// Encode writes the descriptor as (nonce32, init_admin, created_at,
// server_name, management_key32).
func (d GroupDescriptor) Encode(w *codec.Writer) {
	w.FixedBytes(d.Nonce[:])
	w.String(d.InitAdmin.String())
	w.Int64(d.CreatedAt.Unix())
	w.String(d.ServerName.String())
	w.FixedBytes(d.ManagementKey)
}

// Decode reads a descriptor written by Encode.
func (d *GroupDescriptor) Decode(r *codec.Reader) error {
	nonce := r.FixedBytes(32)
	initAdminRaw := r.String()
	createdAt := r.Int64()
	serverNameRaw := r.String()
	managementKey := r.FixedBytes(ncrypto.AEADKeySize)
	if err := r.Err(); err != nil {
		return err
	}
	initAdmin, err := ref.ParseUsername(initAdminRaw)
	if err != nil {
		return fmt.Errorf("envelope: group descriptor init admin: %w", err)
	}
	serverName, err := ref.ParseServerName(serverNameRaw)
	if err != nil {
		return fmt.Errorf("envelope: group descriptor server name: %w", err)
	}
	copy(d.Nonce[:], nonce)
	d.InitAdmin = initAdmin
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.ServerName = serverName
	d.ManagementKey = append([]byte(nil), managementKey...)
	return nil
}

// DeriveGroupID computes group_id = BLAKE3(encode(descriptor)).
func DeriveGroupID(d GroupDescriptor) ref.GroupID {
	digest := ncrypto.Hash(codec.Marshal(d))
	return ref.GroupID(digest)
}

// DeriveMailboxIDs computes the two mailbox ids derived from a group
// id: one for chat and rekey traffic, one for the management log. The
// group id itself, being a fixed 32-byte digest, serves as the keying
// material for the keyed hash — there is no separate "medium key" for
// a group, only the id.
func DeriveMailboxIDs(groupID ref.GroupID) (messages, management ref.MailboxID, err error) {
	messagesDigest, err := ncrypto.KeyedHash(groupID.Bytes(), []byte("group-messages"))
	if err != nil {
		return ref.MailboxID{}, ref.MailboxID{}, fmt.Errorf("envelope: derive messages mailbox id: %w", err)
	}
	managementDigest, err := ncrypto.KeyedHash(groupID.Bytes(), []byte("group-management"))
	if err != nil {
		return ref.MailboxID{}, ref.MailboxID{}, fmt.Errorf("envelope: derive management mailbox id: %w", err)
	}
	return ref.MailboxID(messagesDigest), ref.MailboxID(managementDigest), nil
}

// GroupSigned is the signed value carried inside a group chat or
// management message (spec.md §4.6): the signature covers group id,
// sender, and blob, but — unlike Signed — not the certificate chain,
// since the chain is refreshed independently of any one message.
type GroupSigned struct {
	GroupID   ref.GroupID
	Sender    ref.Username
	Chain     cert.Chain
	Blob      []byte
	Signature []byte
}

func (s GroupSigned) signedFields() []byte {
	w := codec.NewWriter()
	w.FixedBytes(s.GroupID.Bytes())
	w.String(s.Sender.String())
	w.WriteBytes(s.Blob)
	return w.Bytes()
}

// Encode writes the full signed value.
func (s GroupSigned) Encode(w *codec.Writer) {
	w.FixedBytes(s.GroupID.Bytes())
	w.String(s.Sender.String())
	s.Chain.Encode(w)
	w.WriteBytes(s.Blob)
	w.WriteBytes(s.Signature)
}

// Decode reads a full signed value.
func (s *GroupSigned) Decode(r *codec.Reader) error {
	groupIDBytes := r.FixedBytes(32)
	senderRaw := r.String()
	var chain cert.Chain
	if err := chain.Decode(r); err != nil {
		return err
	}
	blob := r.ReadBytes()
	sig := r.ReadBytes()
	if err := r.Err(); err != nil {
		return err
	}
	sender, err := ref.ParseUsername(senderRaw)
	if err != nil {
		return fmt.Errorf("envelope: group signed sender: %w", err)
	}
	var groupID ref.GroupID
	copy(groupID[:], groupIDBytes)
	s.GroupID = groupID
	s.Sender = sender
	s.Chain = chain
	s.Blob = append([]byte(nil), blob...)
	s.Signature = append([]byte(nil), sig...)
	return nil
}

// Verify checks the signed value's certificate chain against rootHash
// and its signature against the chain's leaf key. It does not check
// GroupID against any expectation — callers do that separately, since
// the expected id is known before decryption even starts.
func (s GroupSigned) Verify(rootHash [ncrypto.DigestSize]byte, now time.Time) error {
	if err := cert.Verify(s.Chain, rootHash, now); err != nil {
		return fmt.Errorf("envelope: group signed: chain: %w", err)
	}
	if !s.Chain.Leaf().Verify(s.signedFields(), s.Signature) {
		return errors.New("envelope: group signed: signature does not verify")
	}
	return nil
}

func groupSign(signingKey ncrypto.SigningKey, groupID ref.GroupID, sender ref.Username, chain cert.Chain, blob []byte) GroupSigned {
	s := GroupSigned{GroupID: groupID, Sender: sender, Chain: chain, Blob: blob}
	s.Signature = signingKey.Sign(s.signedFields())
	return s
}

// errNoGroupKeyMatched is returned by UnpackageGroupMessage when no
// candidate key (current, or previous during a rotation overlap)
// opens the body.
var errNoGroupKeyMatched = errors.New("envelope: group message: no group key opened the body")

// packageGroupBlob seals blob under key and frames it as
// (nonce24, ct), the wire body shared by chat and management messages
// on a group's mailboxes.
func packageGroupBlob(signingKey ncrypto.SigningKey, groupID ref.GroupID, sender ref.Username, chain cert.Chain, key, blob []byte) ([]byte, error) {
	signed := groupSign(signingKey, groupID, sender, chain, blob)
	plaintext := codec.Marshal(signed)
	nonce, err := ncrypto.NewAEADNonce()
	if err != nil {
		return nil, fmt.Errorf("envelope: package group blob: %w", err)
	}
	ct, err := ncrypto.Seal(key, nonce, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("envelope: package group blob: %w", err)
	}
	w := codec.NewWriter()
	w.FixedBytes(nonce)
	w.WriteBytes(ct)
	return w.Bytes(), nil
}

// unpackageGroupBlob tries each of keys in turn (group_key_current,
// then group_key_previous during a rotation overlap) and returns the
// decoded GroupSigned value from the first that opens. A nil entry in
// keys is skipped, so callers can pass a possibly-absent previous key
// without special-casing it.
func unpackageGroupBlob(keys [][]byte, expectedGroupID ref.GroupID, body []byte) (GroupSigned, error) {
	r := codec.NewReader(body)
	nonce := r.FixedBytes(ncrypto.AEADNonceSize)
	ct := r.ReadBytes()
	if err := r.Err(); err != nil {
		return GroupSigned{}, fmt.Errorf("envelope: unpackage group blob: %w", err)
	}

	var lastErr error = errNoGroupKeyMatched
	for _, key := range keys {
		if key == nil {
			continue
		}
		plaintext, err := ncrypto.Open(key, nonce, ct, nil)
		if err != nil {
			lastErr = err
			continue
		}
		var signed GroupSigned
		if err := codec.Unmarshal(plaintext, &signed); err != nil {
			return GroupSigned{}, fmt.Errorf("envelope: unpackage group blob: decode: %w", err)
		}
		if !signed.GroupID.Equal(expectedGroupID) {
			return GroupSigned{}, fmt.Errorf("envelope: unpackage group blob: group id mismatch")
		}
		return signed, nil
	}
	return GroupSigned{}, lastErr
}

// GroupMessageKind is the mailbox entry kind a chat message is sent
// under, on a group's messages mailbox.
const GroupMessageKind = "v1.group_message"

// PackageGroupMessage builds the wire body for one outbound group chat
// message, encrypted under groupKey (group_key_current) and signed
// over groupID and sender.
func PackageGroupMessage(signingKey ncrypto.SigningKey, groupID ref.GroupID, sender ref.Username, chain cert.Chain, groupKey []byte, event MessageEvent) ([]byte, error) {
	return packageGroupBlob(signingKey, groupID, sender, chain, groupKey, packageMessageContent(event))
}

// UnpackageGroupMessage decrypts a group chat message body against
// groupKeyCurrent and, on failure, groupKeyPrevious (nil if the group
// has never rotated). It verifies the embedded group id but not the
// signature or chain — callers finish verification with
// GroupSigned.Verify once they have resolved the sender's root hash.
func UnpackageGroupMessage(groupKeyCurrent, groupKeyPrevious []byte, expectedGroupID ref.GroupID, body []byte) (GroupSigned, error) {
	return unpackageGroupBlob([][]byte{groupKeyCurrent, groupKeyPrevious}, expectedGroupID, body)
}

// GroupRekeyKind is the mailbox entry kind a rekey message is sent
// under, on a group's messages mailbox.
const GroupRekeyKind = "v1.group_rekey"

// tagAEADKey is the tagged-form discriminant some rekey senders in the
// corpus wrap their payload in (spec.md §4.6): implementations must
// accept both this form and the bare tuple form.
const tagAEADKey = "v1.aead_key"

// RekeyPayload is the signed inner content of a group rekey message:
// the group the new key belongs to, and the new group_key_current.
type RekeyPayload struct {
	GroupID     ref.GroupID
	NewGroupKey []byte
}

// Encode writes the payload as (group_id, new_group_key_32), the bare
// tuple form new writes use.
func (p RekeyPayload) Encode(w *codec.Writer) {
	w.FixedBytes(p.GroupID.Bytes())
	w.FixedBytes(p.NewGroupKey)
}

// Decode reads a payload written by Encode.
func (p *RekeyPayload) Decode(r *codec.Reader) error {
	groupIDBytes := r.FixedBytes(32)
	key := r.FixedBytes(ncrypto.AEADKeySize)
	if err := r.Err(); err != nil {
		return err
	}
	var groupID ref.GroupID
	copy(groupID[:], groupIDBytes)
	p.GroupID = groupID
	p.NewGroupKey = append([]byte(nil), key...)
	return nil
}

// PackageRekey builds a header-encrypted, device-signed rekey message
// addressed to the group's current medium public keys, in the bare
// tuple wire form.
func PackageRekey(signingKey ncrypto.SigningKey, sender ref.Username, chain cert.Chain, recipientMPKs []ncrypto.DHPublicKey, payload RekeyPayload) ([]byte, error) {
	blob := codec.Marshal(payload)
	signed := DeviceSign(signingKey, sender, chain, blob)
	envelope, err := HeaderEncrypt(recipientMPKs, signed)
	if err != nil {
		return nil, fmt.Errorf("envelope: package rekey: %w", err)
	}
	return envelope, nil
}

// UnpackageRekey decodes a rekey payload out of an already
// device-verified Signed value's Body, accepting either the tagged
// ("v1.aead_key", …) form or the bare tuple form (spec.md §4.6:
// "implementations must accept both forms present in the corpus").
// Acceptance against the roster (sender must be an active admin) is
// the caller's responsibility, not this package's — this function only
// decodes.
func UnpackageRekey(signed Signed) (RekeyPayload, error) {
	if tag, payload, err := unmarshalTagged(signed.Body); err == nil && tag == tagAEADKey {
		var p RekeyPayload
		if err := codec.Unmarshal(payload, &p); err != nil {
			return RekeyPayload{}, fmt.Errorf("envelope: unpackage rekey: tagged form: %w", err)
		}
		return p, nil
	}
	var p RekeyPayload
	if err := codec.Unmarshal(signed.Body, &p); err != nil {
		return RekeyPayload{}, fmt.Errorf("envelope: unpackage rekey: bare form: %w", err)
	}
	return p, nil
}

// GroupManageMIME is the MIME type a management event's MessageEvent
// carries, marking the JSON body as a management-log entry rather than
// ordinary chat content.
const GroupManageMIME = "application/vnd.nullspace.v1.group_manage"

// GroupManagementKind is the mailbox entry kind a management message
// is sent under, on a group's management mailbox.
const GroupManagementKind = "v1.group_management"

// ManagementEventKind discriminates the variants of the group
// management log (spec.md §4.7).
type ManagementEventKind string

const (
	EventInviteSent     ManagementEventKind = "invite_sent"
	EventInviteAccepted ManagementEventKind = "invite_accepted"
	EventLeave          ManagementEventKind = "leave"
	EventBan            ManagementEventKind = "ban"
	EventUnban          ManagementEventKind = "unban"
	EventAddAdmin       ManagementEventKind = "add_admin"
	EventRemoveAdmin    ManagementEventKind = "remove_admin"
)

// ManagementEvent is one entry of a group's management log. Username
// is unused for InviteAccepted and Leave, which act on the sender.
//
// The wire form is externally tagged, matching the corpus's
// GroupManageMsg enum exactly: a payload-carrying variant encodes as a
// single-key object ({"invite_sent":"@u"}, {"ban":"@u"}, …) and a
// payload-less variant encodes as its bare kind string
// ("invite_accepted", "leave") — never {"kind":...,"username":...}.
// This is a multi-implementation wire format (spec.md §1), so the
// encoding must match byte-for-byte what any other implementation of
// the format emits, not merely round-trip against itself.
type ManagementEvent struct {
	Kind     ManagementEventKind
	Username ref.Username
}

func (e ManagementEvent) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventInviteAccepted, EventLeave:
		return json.Marshal(string(e.Kind))
	case EventInviteSent, EventBan, EventUnban, EventAddAdmin, EventRemoveAdmin:
		return json.Marshal(map[ManagementEventKind]ref.Username{e.Kind: e.Username})
	default:
		return nil, fmt.Errorf("envelope: management event: unknown kind %q", e.Kind)
	}
}

func (e *ManagementEvent) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch kind := ManagementEventKind(bare); kind {
		case EventInviteAccepted, EventLeave:
			*e = ManagementEvent{Kind: kind}
			return nil
		default:
			return fmt.Errorf("envelope: management event: unknown kind %q", bare)
		}
	}

	var obj map[ManagementEventKind]ref.Username
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("envelope: management event: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("envelope: management event: expected exactly one tag, got %d", len(obj))
	}
	for kind, username := range obj {
		switch kind {
		case EventInviteSent, EventBan, EventUnban, EventAddAdmin, EventRemoveAdmin:
			*e = ManagementEvent{Kind: kind, Username: username}
			return nil
		default:
			return fmt.Errorf("envelope: management event: unknown kind %q", kind)
		}
	}
	return nil
}

// PackageManagement builds the wire body for one outbound management
// event, encrypted under the group's static management key (not the
// rotating group_key_current) and structured identically to a chat
// message otherwise.
func PackageManagement(signingKey ncrypto.SigningKey, groupID ref.GroupID, sender ref.Username, chain cert.Chain, managementKey []byte, event ManagementEvent, sentAt time.Time) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("envelope: package management: encode event: %w", err)
	}
	msgEvent := MessageEvent{SentAt: sentAt, MIME: GroupManageMIME, Body: body}
	return packageGroupBlob(signingKey, groupID, sender, chain, managementKey, packageMessageContent(msgEvent))
}

// UnpackageManagement decrypts a management message body against the
// group's management key and returns the decoded event once the
// caller has verified the returned GroupSigned's chain and signature.
func UnpackageManagement(managementKey []byte, expectedGroupID ref.GroupID, body []byte) (GroupSigned, ManagementEvent, error) {
	signed, err := unpackageGroupBlob([][]byte{managementKey}, expectedGroupID, body)
	if err != nil {
		return GroupSigned{}, ManagementEvent{}, err
	}
	msgEvent, err := UnpackageMessageContent(signed.Blob)
	if err != nil {
		return GroupSigned{}, ManagementEvent{}, err
	}
	if msgEvent.MIME != GroupManageMIME {
		return GroupSigned{}, ManagementEvent{}, fmt.Errorf("envelope: unpackage management: unexpected mime %q", msgEvent.MIME)
	}
	var event ManagementEvent
	if err := json.Unmarshal(msgEvent.Body, &event); err != nil {
		return GroupSigned{}, ManagementEvent{}, fmt.Errorf("envelope: unpackage management: decode event: %w", err)
	}
	return signed, event, nil
}
