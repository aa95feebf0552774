// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"fmt"
)

// Decodable is implemented by every type with a canonical wire form.
type Decodable interface {
	Decode(r *Reader) error
}

// Reader consumes a canonical encoding produced by Writer. A Reader
// reports the first error it encounters and then returns that error
// (or a zero value) from every subsequent call, so callers can read a
// whole tuple and check err once at the end.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader returns a Reader over data. data is not copied; the caller
// must not mutate it while the Reader is in use.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// Err returns the first error encountered during decoding, or nil.
func (r *Reader) Err() error { return r.err }

// Remaining reports the number of unconsumed bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.fail(fmt.Errorf("codec: need %d bytes, have %d", n, len(r.buf)-r.pos))
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint16 reads 2 little-endian bytes.
func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Uint32 reads 4 little-endian bytes.
func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Uint64 reads 8 little-endian bytes.
func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Int64 reads 8 little-endian bytes as a signed integer.
func (r *Reader) Int64() int64 { return int64(r.Uint64()) }

// Bool reads a single byte and reports whether it is nonzero. A byte
// other than 0 or 1 is a decode error.
func (r *Reader) Bool() bool {
	v := r.Uint8()
	if v > 1 {
		r.fail(fmt.Errorf("codec: invalid bool byte %d", v))
		return false
	}
	return v == 1
}

// Uvarint reads a ULEB128 varint.
func (r *Reader) Uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := takeUvarint(r.buf[r.pos:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.pos += n
	return v
}

// maxByteStringLen guards against a corrupt or hostile length prefix
// forcing an oversized allocation before the backing bytes are even
// checked for presence.
const maxByteStringLen = 64 << 20

// ReadBytes reads a length-prefixed byte string. The returned slice
// aliases the Reader's input and must be copied if retained beyond the
// current decode.
func (r *Reader) ReadBytes() []byte {
	n := r.Uvarint()
	if r.err != nil {
		return nil
	}
	if n > maxByteStringLen {
		r.fail(fmt.Errorf("codec: byte string length %d exceeds limit", n))
		return nil
	}
	return r.take(int(n))
}

// FixedBytes reads exactly n bytes with no length prefix.
func (r *Reader) FixedBytes(n int) []byte {
	return r.take(n)
}

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String() string {
	b := r.ReadBytes()
	if b == nil {
		return ""
	}
	return string(b)
}

// SeqLen reads the element count preceding an ordered sequence.
func (r *Reader) SeqLen() int {
	n := r.Uvarint()
	if n > maxByteStringLen {
		r.fail(fmt.Errorf("codec: sequence length %d exceeds limit", n))
		return 0
	}
	return int(n)
}

// Tag reads the discriminant of an externally-tagged variant.
func (r *Reader) Tag() uint64 { return r.Uvarint() }

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v Decodable) error {
	r := NewReader(data)
	if err := v.Decode(r); err != nil {
		return err
	}
	if err := r.Err(); err != nil {
		return err
	}
	if r.Remaining() != 0 {
		return fmt.Errorf("codec: %d trailing bytes after decode", r.Remaining())
	}
	return nil
}
