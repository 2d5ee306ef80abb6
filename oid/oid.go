// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package oid converts OBJECT IDENTIFIERs between their dotted-decimal form
// and the X.690 base-128 content octets. Arcs are not limited to 64 bits.
package oid

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// oid error modes
var (
	ErrEmpty      = errors.New("oid: empty")
	ErrInvalidOID = errors.New("oid: invalid object identifier")
	ErrTruncated  = errors.New("oid: truncated sub-identifier")
	ErrNonMinimal = errors.New("oid: sub-identifier is not minimally encoded")
)

// The first arc is 0, 1 or 2. Below 2 the second arc is at most 39. No arc
// has leading zeros.
var oidPattern = regexp.MustCompile(`^(?:[01]\.(?:[0-9]|[1-3][0-9])|2\.(?:0|[1-9][0-9]*))(?:\.(?:0|[1-9][0-9]*))*$`)

// OID is an immutable object identifier. Two OIDs are equal (==) when they
// denote the same identifier, so an OID can be used as a map key. The zero
// OID is invalid and renders as "".
type OID struct {
	enc string // content octets
}

// IsOID reports whether s is a dotted-decimal object identifier.
func IsOID(s string) bool {
	return oidPattern.MatchString(s)
}

// FromString parses a dotted-decimal object identifier.
func FromString(s string) (OID, error) {
	if !IsOID(s) {
		return OID{}, fmt.Errorf("%w: %q", ErrInvalidOID, s)
	}
	arcs := strings.Split(s, ".")
	out := make([]byte, 0, len(s))

	// s matched the pattern, so the first two arcs are small enough for an
	// uint64 unless the first is 2.
	first := uint64(arcs[0][0] - '0')
	second, ok := new(big.Int).SetString(arcs[1], 10)
	if !ok {
		return OID{}, fmt.Errorf("%w: %q", ErrInvalidOID, s)
	}
	second.Add(second, new(big.Int).SetUint64(first*40))
	out = appendBase128(out, second)

	for _, arc := range arcs[2:] {
		if v, err := strconv.ParseUint(arc, 10, 64); err == nil {
			out = appendBase128Uint(out, v)
			continue
		}
		v, ok := new(big.Int).SetString(arc, 10)
		if !ok {
			return OID{}, fmt.Errorf("%w: %q", ErrInvalidOID, s)
		}
		out = appendBase128(out, v)
	}
	return OID{enc: string(out)}, nil
}

// MustParse is FromString for identifiers known to be valid. It panics on
// error.
func MustParse(s string) OID {
	o, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return o
}

// FromBytes decodes the content octets of an OBJECT IDENTIFIER.
func FromBytes(b []byte) (OID, error) {
	if len(b) == 0 {
		return OID{}, ErrEmpty
	}
	start := true
	for i, c := range b {
		if start && c == 0x80 {
			return OID{}, fmt.Errorf("%w at offset %d", ErrNonMinimal, i)
		}
		start = c&0x80 == 0
	}
	if !start {
		return OID{}, ErrTruncated
	}
	return OID{enc: string(b)}, nil
}

// Bytes returns the content octets.
func (o OID) Bytes() []byte {
	return []byte(o.enc)
}

// Len returns the length of the content octets.
func (o OID) Len() int {
	return len(o.enc)
}

// IsZero reports whether o is the zero OID.
func (o OID) IsZero() bool {
	return o.enc == ""
}

// Arcs returns the arcs of o.
func (o OID) Arcs() []*big.Int {
	var arcs []*big.Int
	o.walk(func(_ int, v *big.Int) {
		arcs = append(arcs, new(big.Int).Set(v))
	})
	return arcs
}

// String returns the canonical dotted-decimal form.
func (o OID) String() string {
	var sb strings.Builder
	sb.Grow(len(o.enc) * 3)
	o.walk(func(i int, v *big.Int) {
		if i > 0 {
			sb.WriteByte('.')
		}
		if v.IsUint64() {
			sb.WriteString(strconv.FormatUint(v.Uint64(), 10))
		} else {
			sb.WriteString(v.String())
		}
	})
	return sb.String()
}

// walk calls fn with every arc, splitting the first sub-identifier into the
// first two arcs.
func (o OID) walk(fn func(i int, v *big.Int)) {
	v := new(big.Int)
	arc := 0
	var acc uint64
	big64 := false
	for i := 0; i < len(o.enc); i++ {
		c := o.enc[i]
		if !big64 && acc > (1<<57)-1 {
			v.SetUint64(acc)
			big64 = true
		}
		if big64 {
			v.Lsh(v, 7).Or(v, big.NewInt(int64(c&0x7f)))
		} else {
			acc = acc<<7 | uint64(c&0x7f)
		}
		if c&0x80 != 0 {
			continue
		}
		if !big64 {
			v.SetUint64(acc)
		}
		if arc == 0 {
			switch {
			case v.Cmp(big.NewInt(40)) < 0:
				fn(0, big.NewInt(0))
			case v.Cmp(big.NewInt(80)) < 0:
				fn(0, big.NewInt(1))
				v.Sub(v, big.NewInt(40))
			default:
				fn(0, big.NewInt(2))
				v.Sub(v, big.NewInt(80))
			}
			arc++
		}
		fn(arc, v)
		arc++
		acc = 0
		big64 = false
		v.SetInt64(0)
	}
}

// appendBase128Uint appends n as base-128 groups, most significant first,
// with the continuation bit set on all groups but the last.
func appendBase128Uint(dst []byte, n uint64) []byte {
	l := 1
	for i := n >> 7; i > 0; i >>= 7 {
		l++
	}
	for i := l - 1; i >= 0; i-- {
		o := byte(n>>uint(i*7)) & 0x7f
		if i != 0 {
			o |= 0x80
		}
		dst = append(dst, o)
	}
	return dst
}

func appendBase128(dst []byte, n *big.Int) []byte {
	if n.IsUint64() {
		return appendBase128Uint(dst, n.Uint64())
	}
	l := (n.BitLen() + 6) / 7
	for i := l - 1; i >= 0; i-- {
		var o byte
		for bit := 6; bit >= 0; bit-- {
			o = o<<1 | byte(n.Bit(i*7+bit))
		}
		if i != 0 {
			o |= 0x80
		}
		dst = append(dst, o)
	}
	return dst
}
