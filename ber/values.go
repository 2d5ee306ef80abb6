// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ber

import (
	"golang.org/x/exp/constraints"
)

// All Encode functions write in reverse: the value first, then the length,
// then the tag. Each returns the number of bytes it added to buf, so callers
// can frame a constructed value with EncodeSequence.

// EncodeHeader writes the length and tag of a TLV whose value of length bytes
// has already been written.
func EncodeHeader(buf *Buffer, tag Tag, length int) int {
	start := buf.Pos()
	EncodeLength(buf, length)
	EncodeTag(buf, tag)
	return buf.Pos() - start
}

// EncodeSequence frames everything written to buf since start as the value
// of a constructed TLV with the given tag.
//
//	start := buf.Pos()
//	ber.EncodeOctetString(buf, ber.TagOctetString, []byte("cookie"))
//	ber.EncodeInteger(buf, ber.TagInteger, 32)
//	ber.EncodeSequence(buf, ber.TagSequence, start)
func EncodeSequence(buf *Buffer, tag Tag, start int) int {
	length := buf.Pos() - start
	return length + EncodeHeader(buf, tag, length)
}

// EncodeOctetString writes value as an OCTET STRING (or any primitive string
// type) under tag. A zero-length value is encoded as a zero-length TLV.
func EncodeOctetString(buf *Buffer, tag Tag, value []byte) int {
	buf.PutBytes(value)
	return len(value) + EncodeHeader(buf, tag, len(value))
}

// EncodeString is EncodeOctetString for a string.
func EncodeString(buf *Buffer, tag Tag, value string) int {
	buf.PutString(value)
	return len(value) + EncodeHeader(buf, tag, len(value))
}

// EncodeBoolean writes a BOOLEAN. True is encoded as 0xff.
func EncodeBoolean(buf *Buffer, tag Tag, value bool) int {
	if value {
		buf.Put(0xff)
	} else {
		buf.Put(0x00)
	}
	return 1 + EncodeHeader(buf, tag, 1)
}

// EncodeInteger writes value as a minimal two's-complement INTEGER.
func EncodeInteger(buf *Buffer, tag Tag, value int64) int {
	n := putInteger(buf, value)
	return n + EncodeHeader(buf, tag, n)
}

// EncodeEnumerated writes an ENUMERATED. It is EncodeInteger with the
// universal ENUMERATED tag.
func EncodeEnumerated(buf *Buffer, value int64) int {
	return EncodeInteger(buf, TagEnumerated, value)
}

// EncodeNull writes a zero-length TLV, used for NULL and for presence-only
// context tags.
func EncodeNull(buf *Buffer, tag Tag) int {
	return EncodeHeader(buf, tag, 0)
}

// IntegerSize returns the number of content octets of value's minimal
// encoding.
func IntegerSize(value int64) int {
	n := 1
	for value > 127 || value < -128 {
		n++
		value >>= 8
	}
	return n
}

// putInteger writes the content octets of value.
//
// ITU-T Rec. X.690 (2002) 8.3.2
// If the contents octets of an integer value encoding consist of more than
// one octet, then the bits of the first octet and bit 8 of the second octet:
//
//	a) shall not all be ones; and
//	b) shall not all be zero
func putInteger(buf *Buffer, value int64) int {
	n := IntegerSize(value)
	for i := 0; i < n; i++ {
		buf.Put(byte(value))
		value >>= 8
	}
	return n
}

// ParseBoolean decodes the contents of a BOOLEAN. Any non-zero octet is true.
func ParseBoolean(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, ErrInvalidBoolean
	}
	return b[0] != 0, nil
}

// ParseInt64 treats the given bytes as a big-endian, signed integer and
// returns the result. Non-minimal encodings are rejected.
func ParseInt64(b []byte) (int64, error) {
	switch {
	case len(b) == 0:
		// X.690 8.3.1: the contents octets shall consist of one or more octets.
		return 0, ErrEmptyInteger
	case len(b) > 8:
		return 0, ErrIntegerTooLarge
	case len(b) > 1 && (b[0] == 0x00 && b[1]&0x80 == 0 || b[0] == 0xff && b[1]&0x80 != 0):
		return 0, ErrNonMinimalInteger
	}
	var ret int64
	for _, c := range b {
		ret <<= 8
		ret |= int64(c)
	}
	// Shift up and down in order to sign extend the result.
	ret <<= 64 - uint8(len(b))*8
	ret >>= 64 - uint8(len(b))*8
	return ret, nil
}

// ParseInteger decodes an INTEGER and checks it against [min, max], returning
// an *IntegerError when it falls outside.
func ParseInteger[T constraints.Signed](b []byte, min, max T) (T, error) {
	v, err := ParseInt64(b)
	if err != nil {
		return 0, err
	}
	if v < int64(min) || v > int64(max) {
		return 0, &IntegerError{Value: v, Min: int64(min), Max: int64(max)}
	}
	return T(v), nil
}
