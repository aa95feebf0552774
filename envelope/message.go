// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"fmt"
	"time"

	"github.com/nullspace-chat/core/lib/codec"
	"github.com/nullspace-chat/core/lib/ref"
)

// tagMessageContent is the inner tag both direct and group chat
// messages carry (spec.md §4.5, §4.6): the wrapper around a
// MessageEvent, distinguishing it from other things that can appear
// inside a device- or group-signed blob (a rekey payload, in
// principle other future content types).
const tagMessageContent = "v1.message_content"

// MessageEvent is the plaintext content of a direct message or a
// group chat message. Recipient is meaningful only for direct
// messages — the addressee a DM was encrypted to — and is left zero
// for group messages, which are broadcast to a mailbox rather than
// addressed to one recipient.
type MessageEvent struct {
	Recipient ref.Username
	SentAt    time.Time
	MIME      string
	Body      []byte
}

// Encode writes the event as (recipient, sent_at_ns, mime, body).
func (e MessageEvent) Encode(w *codec.Writer) {
	w.String(e.Recipient.String())
	w.Int64(e.SentAt.UnixNano())
	w.String(e.MIME)
	w.WriteBytes(e.Body)
}

// Decode reads an event written by Encode.
func (e *MessageEvent) Decode(r *codec.Reader) error {
	recipientRaw := r.String()
	sentAtNanos := r.Int64()
	mime := r.String()
	body := r.ReadBytes()
	if err := r.Err(); err != nil {
		return err
	}
	var recipient ref.Username
	if recipientRaw != "" {
		parsed, err := ref.ParseUsername(recipientRaw)
		if err != nil {
			return fmt.Errorf("envelope: message event recipient: %w", err)
		}
		recipient = parsed
	}
	e.Recipient = recipient
	e.SentAt = time.Unix(0, sentAtNanos).UTC()
	e.MIME = mime
	e.Body = append([]byte(nil), body...)
	return nil
}

// packageMessageContent wraps event in the "v1.message_content" tag
// shared by direct messages and group chat messages.
func packageMessageContent(event MessageEvent) []byte {
	return marshalTagged(tagMessageContent, codec.Marshal(event))
}

// UnpackageMessageContent unwraps a "v1.message_content"-tagged blob
// and decodes the event inside it. Callers pass the Body of an
// already chain- and signature-verified Signed or GroupSigned value.
func UnpackageMessageContent(blob []byte) (MessageEvent, error) {
	tag, payload, err := unmarshalTagged(blob)
	if err != nil {
		return MessageEvent{}, fmt.Errorf("envelope: message content: %w", err)
	}
	if tag != tagMessageContent {
		return MessageEvent{}, fmt.Errorf("envelope: message content: unexpected inner tag %q", tag)
	}
	var event MessageEvent
	if err := codec.Unmarshal(payload, &event); err != nil {
		return MessageEvent{}, fmt.Errorf("envelope: message content: decode event: %w", err)
	}
	return event, nil
}
