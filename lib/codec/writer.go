// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import "encoding/binary"

// Encodable is implemented by every type with a canonical wire form.
type Encodable interface {
	Encode(w *Writer)
}

// Writer accumulates the canonical encoding of a value. The zero value
// is not usable; construct one with NewWriter.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Bytes returns the accumulated encoding. The returned slice aliases
// the Writer's internal buffer and must not be mutated.
func (w *Writer) Bytes() []byte { return w.buf }

// Uint8 writes a single byte.
func (w *Writer) Uint8(v uint8) { w.buf = append(w.buf, v) }

// Uint16 writes v as 2 little-endian bytes.
func (w *Writer) Uint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// Uint32 writes v as 4 little-endian bytes.
func (w *Writer) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// Uint64 writes v as 8 little-endian bytes.
func (w *Writer) Uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// Int64 writes v as 8 little-endian bytes, reinterpreting the sign bit.
func (w *Writer) Int64(v int64) { w.Uint64(uint64(v)) }

// Bool writes a boolean as a single byte, 0 or 1.
func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
	} else {
		w.Uint8(0)
	}
}

// Uvarint writes v as a ULEB128 varint. Used directly for sequence
// lengths and variant tags, and available to callers that need a
// compact integer field.
func (w *Writer) Uvarint(v uint64) {
	w.buf = putUvarint(w.buf, v)
}

// WriteBytes writes a length-prefixed byte string: a ULEB128 length
// followed by the raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.Uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// FixedBytes writes b verbatim with no length prefix, for fields whose
// length is fixed by the type (a public key, a nonce, a digest).
func (w *Writer) FixedBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// String writes a length-prefixed UTF-8 string.
func (w *Writer) String(s string) {
	w.WriteBytes([]byte(s))
}

// SeqLen writes the element count that precedes an ordered sequence.
// Callers then encode each element in order with no further framing.
func (w *Writer) SeqLen(n int) {
	w.Uvarint(uint64(n))
}

// Tag writes the discriminant of an externally-tagged variant. Callers
// then encode the payload for that tag with no further framing.
func (w *Writer) Tag(tag uint64) {
	w.Uvarint(tag)
}

// Marshal encodes v and returns the resulting bytes.
func Marshal(v Encodable) []byte {
	w := NewWriter()
	v.Encode(w)
	return w.Bytes()
}
