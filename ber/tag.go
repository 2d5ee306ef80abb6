// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ber

import "fmt"

// Class is the class of a tag (bits 8 and 7 of the identifier octet).
type Class byte

const (
	ClassUniversal   Class = 0x00
	ClassApplication Class = 0x40
	ClassContext     Class = 0x80
	ClassPrivate     Class = 0xc0
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "UNIVERSAL"
	case ClassApplication:
		return "APPLICATION"
	case ClassContext:
		return "CONTEXT"
	case ClassPrivate:
		return "PRIVATE"
	default:
		return fmt.Sprintf("Class(%#x)", byte(c))
	}
}

const (
	classMask       = 0xc0
	constructedBit  = 0x20
	numberMask      = 0x1f
	highTagNumber   = 0x1f
	maxLowTagNumber = 30
)

// Tag identifies a TLV. For tag numbers up to 30 the value of a Tag is the
// identifier octet itself, so the usual LDAP tags can be written as byte
// literals (0x30, 0x60, 0xa0...). Higher tag numbers keep the leading
// identifier octet in the low byte and the number above it.
type Tag uint32

// Universal tags used by LDAP.
const (
	TagBoolean     Tag = 0x01
	TagInteger     Tag = 0x02
	TagBitString   Tag = 0x03
	TagOctetString Tag = 0x04
	TagNull        Tag = 0x05
	TagOID         Tag = 0x06
	TagEnumerated  Tag = 0x0a
	TagUTF8String  Tag = 0x0c
	TagSequence    Tag = 0x30
	TagSet         Tag = 0x31
)

// NewTag builds a Tag from its parts.
func NewTag(class Class, constructed bool, number int) Tag {
	first := Tag(class) & classMask
	if constructed {
		first |= constructedBit
	}
	if number <= maxLowTagNumber {
		return first | Tag(number)
	}
	return first | highTagNumber | Tag(number)<<8
}

// ApplicationTag returns the [APPLICATION n] tag.
func ApplicationTag(number int, constructed bool) Tag {
	return NewTag(ClassApplication, constructed, number)
}

// ContextTag returns the [n] context-specific tag.
func ContextTag(number int, constructed bool) Tag {
	return NewTag(ClassContext, constructed, number)
}

// Class returns the tag class.
func (t Tag) Class() Class {
	return Class(byte(t) & classMask)
}

// Constructed reports whether the constructed bit is set.
func (t Tag) Constructed() bool {
	return byte(t)&constructedBit != 0
}

// Number returns the tag number.
func (t Tag) Number() int {
	if byte(t)&numberMask == highTagNumber {
		return int(t >> 8)
	}
	return int(byte(t) & numberMask)
}

// Primitive returns t with the constructed bit cleared.
func (t Tag) Primitive() Tag {
	return t &^ constructedBit
}

func (t Tag) String() string {
	if t.Class() == ClassUniversal {
		return fmt.Sprintf("%#02x", uint32(t))
	}
	kind := "P"
	if t.Constructed() {
		kind = "C"
	}
	return fmt.Sprintf("[%s %d %s]", t.Class(), t.Number(), kind)
}

// EncodeTag writes the identifier octets of t.
func EncodeTag(buf *Buffer, t Tag) {
	if byte(t)&numberMask != highTagNumber {
		buf.Put(byte(t))
		return
	}
	putBase128(buf, uint64(t>>8))
	buf.Put(byte(t))
}

// putBase128 writes n as big-endian base-128 groups with the continuation bit
// set on every group but the last.
func putBase128(buf *Buffer, n uint64) {
	buf.Put(byte(n & 0x7f))
	for n >>= 7; n > 0; n >>= 7 {
		buf.Put(byte(n&0x7f) | 0x80)
	}
}
