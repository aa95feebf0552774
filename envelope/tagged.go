// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import "github.com/nullspace-chat/core/lib/codec"

// marshalTagged encodes an externally-tagged variant as spec.md §4.1
// describes it in the corpus's concrete form: a string discriminant
// followed by a length-prefixed payload, e.g.
// encode(("v1.message_content", encode(event))).
func marshalTagged(tag string, payload []byte) []byte {
	w := codec.NewWriter()
	w.String(tag)
	w.WriteBytes(payload)
	return w.Bytes()
}

// unmarshalTagged decodes a tagged variant produced by marshalTagged.
// It does not require the whole input to be consumed, since callers
// use it to probe whether data is in tagged form at all before falling
// back to a bare, untagged decode (see UnpackageRekey).
func unmarshalTagged(data []byte) (tag string, payload []byte, err error) {
	r := codec.NewReader(data)
	tag = r.String()
	payload = r.ReadBytes()
	if err := r.Err(); err != nil {
		return "", nil, err
	}
	return tag, append([]byte(nil), payload...), nil
}
