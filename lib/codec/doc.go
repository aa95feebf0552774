// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the nullspace core's canonical binary
// encoding.
//
// Every hash and every signature in the core is computed over this
// encoding, so it must be bit-exact across independent
// implementations: given the same logical value, every encoder must
// produce the same bytes, and decoding must recover exactly the value
// that was encoded.
//
// The encoding covers five primitives, composed to build every wire
// type in the repository:
//
//   - Fixed-width integers: little-endian, written at their natural
//     width (Uint8/Uint16/Uint32/Uint64/Int64).
//   - Byte strings: a ULEB128-encoded length prefix followed by the
//     raw bytes.
//   - Ordered sequences: a ULEB128-encoded element count followed by
//     each element's encoding in order.
//   - Tuples: the concatenation of each field's encoding, in
//     declaration order. There is no type tag or field separator —
//     the schema (the Go struct) supplies the shape.
//   - Externally-tagged variants: a ULEB128-encoded tag followed by
//     the payload's encoding. The tag identifies which of several
//     alternative shapes follows; unknown tags are a decode error at
//     the variant site, never a panic.
//
// Every encodable type implements Encode(*Writer) and a matching
// decode function that accepts a *Reader. There is no reflection-based
// fallback: unlike a CBOR encoding derived from struct tags, this
// package requires exact control over field order and integer width,
// because those choices are part of what a hash or signature commits
// to.
//
//	w := codec.NewWriter()
//	cert.Encode(w)
//	data := w.Bytes()
//
//	r := codec.NewReader(data)
//	err := cert.Decode(r)
package codec
