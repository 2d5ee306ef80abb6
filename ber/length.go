// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ber

import "math"

const (
	lengthLongForm   = 0x80
	lengthReserved   = 0xff
	maxShortLength   = 127
	maxLengthOctets  = 4
	maxEncodedLength = math.MaxInt32
)

// LengthSize returns how many octets EncodeLength uses for length.
func LengthSize(length int) int {
	if length <= maxShortLength {
		return 1
	}
	n := 1
	for l := length; l > 0; l >>= 8 {
		n++
	}
	return n
}

// EncodeLength writes the definite length octets for length, using the short
// form up to 127 and the minimal long form above.
//
// http://luca.ntop.org/Teaching/Appunti/asn1.html
//
//   - Short form. One octet. Bit 8 has value "0" and bits 7-1 give the length.
//   - Long form. Two to 127 octets. Bit 8 of first octet has value "1" and bits
//     7-1 give the number of additional length octets. Second and following
//     octets give the length, base 256, most significant digit first.
func EncodeLength(buf *Buffer, length int) {
	if length <= maxShortLength {
		buf.Put(byte(length))
		return
	}
	n := 0
	for l := length; l > 0; l >>= 8 {
		buf.Put(byte(l))
		n++
	}
	buf.Put(lengthLongForm | byte(n))
}

// ParseHeader reads the identifier and length octets at the start of data.
// It returns the tag, the value length and the number of header octets.
// Only the header has to be present in data.
func ParseHeader(data []byte) (Tag, int, int, error) {
	if len(data) == 0 {
		return 0, 0, 0, ErrTruncated
	}
	var h header
	for i, c := range data {
		done, err := h.feed(c, false)
		if err != nil {
			return 0, 0, 0, &DecodeError{Offset: i, Err: err}
		}
		if done {
			return h.tag, h.length, i + 1, nil
		}
	}
	return 0, 0, 0, ErrTruncated
}

// header accumulates one TLV header octet at a time. It is shared by
// ParseHeader and the incremental decoder so both apply the same rules.
type header struct {
	phase     headerPhase
	tag       Tag
	tagNumber uint64
	tagOctets int
	length    int
	lenOctets int // long form octets still to read
	lenTotal  int
	lenFirst  bool
}

type headerPhase int

const (
	phaseTagStart headerPhase = iota
	phaseTagPending
	phaseLengthStart
	phaseLengthPending
)

func (h *header) reset() {
	*h = header{}
}

// feed consumes one octet and reports whether the header is complete.
func (h *header) feed(c byte, lenient bool) (bool, error) {
	switch h.phase {
	case phaseTagStart:
		h.tag = Tag(c)
		if c&numberMask == highTagNumber {
			h.phase = phaseTagPending
			return false, nil
		}
		h.phase = phaseLengthStart
		return false, nil

	case phaseTagPending:
		if h.tagOctets == 0 && c == 0x80 {
			return false, ErrNonMinimalTag
		}
		h.tagOctets++
		h.tagNumber = h.tagNumber<<7 | uint64(c&0x7f)
		if h.tagNumber > math.MaxInt32>>8 {
			return false, ErrTagTooLarge
		}
		if c&0x80 == 0 {
			if h.tagNumber <= maxLowTagNumber {
				return false, ErrNonMinimalTag
			}
			h.tag |= Tag(h.tagNumber) << 8
			h.phase = phaseLengthStart
		}
		return false, nil

	case phaseLengthStart:
		switch {
		case c == lengthReserved:
			return false, ErrReservedLength
		case c == lengthLongForm:
			return false, ErrIndefiniteLength
		case c&lengthLongForm == 0:
			h.length = int(c)
			return true, nil
		}
		h.lenOctets = int(c &^ lengthLongForm)
		h.lenTotal = h.lenOctets
		h.lenFirst = true
		if h.lenOctets > maxLengthOctets {
			return false, ErrLengthTooLarge
		}
		h.phase = phaseLengthPending
		return false, nil

	case phaseLengthPending:
		if h.lenFirst && c == 0 && !lenient {
			return false, ErrNonMinimalLength
		}
		h.lenFirst = false
		h.length = h.length<<8 | int(c)
		h.lenOctets--
		if h.lenOctets > 0 {
			return false, nil
		}
		if h.length > maxEncodedLength {
			return false, ErrLengthTooLarge
		}
		if !lenient && LengthSize(h.length) != h.lenTotal+1 {
			return false, ErrNonMinimalLength
		}
		return true, nil
	}
	return false, ErrTruncated
}

// nonMinimal reports whether a completed long-form header used more octets
// than needed. It is only meaningful in lenient mode, where feed lets such
// headers through.
func (h *header) nonMinimal() bool {
	return h.lenTotal > 0 && LengthSize(h.length) != h.lenTotal+1
}
