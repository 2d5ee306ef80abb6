// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ldapwire

import (
	"fmt"
	"strings"

	"github.com/ldapwire/ldapwire/ber"
)

// Filter is a search filter (RFC 4511 4.5.1.7). String renders the RFC 4515
// string form.
type Filter interface {
	fmt.Stringer
	encode(buf *ber.Buffer) int
}

// Filter CHOICE tags.
const (
	tagFilterAnd        ber.Tag = 0xa0
	tagFilterOr         ber.Tag = 0xa1
	tagFilterNot        ber.Tag = 0xa2
	tagFilterEquality   ber.Tag = 0xa3
	tagFilterSubstrings ber.Tag = 0xa4
	tagFilterGreater    ber.Tag = 0xa5
	tagFilterLess       ber.Tag = 0xa6
	tagFilterPresent    ber.Tag = 0x87
	tagFilterApprox     ber.Tag = 0xa8
	tagFilterExtensible ber.Tag = 0xa9

	tagSubInitial ber.Tag = 0x80
	tagSubAny     ber.Tag = 0x81
	tagSubFinal   ber.Tag = 0x82

	tagMatchingRule ber.Tag = 0x81
	tagMatchType    ber.Tag = 0x82
	tagMatchValue   ber.Tag = 0x83
	tagDNAttributes ber.Tag = 0x84
)

type AndFilter []Filter

type OrFilter []Filter

type NotFilter struct {
	Filter Filter
}

type EqualityFilter AttributeValueAssertion

// SubstringsFilter holds at most one initial and one final component. Nil
// Initial or Final means absent.
type SubstringsFilter struct {
	Attribute string
	Initial   []byte
	Any       [][]byte
	Final     []byte
}

type GreaterOrEqualFilter AttributeValueAssertion

type LessOrEqualFilter AttributeValueAssertion

// PresentFilter holds the attribute description.
type PresentFilter string

type ApproxFilter AttributeValueAssertion

// ExtensibleFilter is a MatchingRuleAssertion. Empty MatchingRule or
// Attribute means absent.
type ExtensibleFilter struct {
	MatchingRule string
	Attribute    string
	Value        []byte
	DNAttributes bool
}

func encodeFilterSet(buf *ber.Buffer, tag ber.Tag, filters []Filter) int {
	start := buf.Pos()
	for i := len(filters) - 1; i >= 0; i-- {
		filters[i].encode(buf)
	}
	return ber.EncodeSequence(buf, tag, start)
}

func encodeAVA(buf *ber.Buffer, tag ber.Tag, attr string, value []byte) int {
	start := buf.Pos()
	ber.EncodeOctetString(buf, ber.TagOctetString, value)
	ber.EncodeString(buf, ber.TagOctetString, attr)
	return ber.EncodeSequence(buf, tag, start)
}

func (f AndFilter) encode(buf *ber.Buffer) int {
	return encodeFilterSet(buf, tagFilterAnd, f)
}

func (f OrFilter) encode(buf *ber.Buffer) int {
	return encodeFilterSet(buf, tagFilterOr, f)
}

func (f *NotFilter) encode(buf *ber.Buffer) int {
	start := buf.Pos()
	f.Filter.encode(buf)
	return ber.EncodeSequence(buf, tagFilterNot, start)
}

func (f *EqualityFilter) encode(buf *ber.Buffer) int {
	return encodeAVA(buf, tagFilterEquality, f.Attribute, f.Value)
}

func (f *GreaterOrEqualFilter) encode(buf *ber.Buffer) int {
	return encodeAVA(buf, tagFilterGreater, f.Attribute, f.Value)
}

func (f *LessOrEqualFilter) encode(buf *ber.Buffer) int {
	return encodeAVA(buf, tagFilterLess, f.Attribute, f.Value)
}

func (f *ApproxFilter) encode(buf *ber.Buffer) int {
	return encodeAVA(buf, tagFilterApprox, f.Attribute, f.Value)
}

func (f PresentFilter) encode(buf *ber.Buffer) int {
	return ber.EncodeString(buf, tagFilterPresent, string(f))
}

func (f *SubstringsFilter) encode(buf *ber.Buffer) int {
	start := buf.Pos()
	subs := buf.Pos()
	if f.Final != nil {
		ber.EncodeOctetString(buf, tagSubFinal, f.Final)
	}
	for i := len(f.Any) - 1; i >= 0; i-- {
		ber.EncodeOctetString(buf, tagSubAny, f.Any[i])
	}
	if f.Initial != nil {
		ber.EncodeOctetString(buf, tagSubInitial, f.Initial)
	}
	ber.EncodeSequence(buf, ber.TagSequence, subs)
	ber.EncodeString(buf, ber.TagOctetString, f.Attribute)
	return ber.EncodeSequence(buf, tagFilterSubstrings, start)
}

func (f *ExtensibleFilter) encode(buf *ber.Buffer) int {
	start := buf.Pos()
	if f.DNAttributes {
		ber.EncodeBoolean(buf, tagDNAttributes, true)
	}
	ber.EncodeOctetString(buf, tagMatchValue, f.Value)
	if f.Attribute != "" {
		ber.EncodeString(buf, tagMatchType, f.Attribute)
	}
	if f.MatchingRule != "" {
		ber.EncodeString(buf, tagMatchingRule, f.MatchingRule)
	}
	return ber.EncodeSequence(buf, tagFilterExtensible, start)
}

func (f AndFilter) String() string { return "(&" + joinFilters(f) + ")" }

func (f OrFilter) String() string { return "(|" + joinFilters(f) + ")" }

func (f *NotFilter) String() string { return "(!" + f.Filter.String() + ")" }

func (f *EqualityFilter) String() string {
	return "(" + f.Attribute + "=" + EscapeFilterValue(f.Value) + ")"
}

func (f *GreaterOrEqualFilter) String() string {
	return "(" + f.Attribute + ">=" + EscapeFilterValue(f.Value) + ")"
}

func (f *LessOrEqualFilter) String() string {
	return "(" + f.Attribute + "<=" + EscapeFilterValue(f.Value) + ")"
}

func (f *ApproxFilter) String() string {
	return "(" + f.Attribute + "~=" + EscapeFilterValue(f.Value) + ")"
}

func (f PresentFilter) String() string { return "(" + string(f) + "=*)" }

func (f *SubstringsFilter) String() string {
	var sb strings.Builder
	sb.WriteString("(" + f.Attribute + "=")
	sb.WriteString(EscapeFilterValue(f.Initial))
	sb.WriteByte('*')
	for _, v := range f.Any {
		sb.WriteString(EscapeFilterValue(v))
		sb.WriteByte('*')
	}
	sb.WriteString(EscapeFilterValue(f.Final))
	sb.WriteByte(')')
	return sb.String()
}

func (f *ExtensibleFilter) String() string {
	var sb strings.Builder
	sb.WriteString("(" + f.Attribute)
	if f.DNAttributes {
		sb.WriteString(":dn")
	}
	if f.MatchingRule != "" {
		sb.WriteString(":" + f.MatchingRule)
	}
	sb.WriteString(":=" + EscapeFilterValue(f.Value) + ")")
	return sb.String()
}

func joinFilters(filters []Filter) string {
	var sb strings.Builder
	for _, f := range filters {
		sb.WriteString(f.String())
	}
	return sb.String()
}

// EscapeFilterValue escapes a value for the string form of a filter.
func EscapeFilterValue(v []byte) string {
	var sb strings.Builder
	for _, c := range v {
		switch c {
		case '*', '(', ')', '\\', 0:
			fmt.Fprintf(&sb, `\%02x`, c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
