// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package dn parses and renders distinguished names (RFC 4514) and checks
// attribute descriptions (RFC 4512). Schema knowledge is supplied by the
// caller through the Schema interface.
package dn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/ldapwire/ldapwire/oid"
)

// dn error modes
var (
	ErrInvalidDN                   = errors.New("dn: invalid distinguished name")
	ErrInvalidAttributeDescription = errors.New("dn: invalid attribute description")
	ErrUnknownAttributeType        = errors.New("dn: unknown attribute type")
	ErrInvalidValue                = errors.New("dn: value does not match attribute syntax")
)

// AVA is an attribute value assertion, one type=value pair of an RDN.
type AVA struct {
	Type  string
	Value string
}

// RDN is a relative distinguished name. It holds more than one AVA when the
// name is multi-valued (cn=a+sn=b).
type RDN []AVA

// DN is a distinguished name, most specific RDN first. The empty DN names the
// root DSE.
type DN []RDN

// Parse parses the string representation of a distinguished name. Spaces
// around types, '=' and separators are ignored, and a '#' hex value is the
// BER encoding of the value. The empty string parses to the empty DN.
func Parse(s string) (DN, error) {
	if err := checkUnescaped(s); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidDN, s, err)
	}
	parsed, err := ldap.ParseDN(s)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidDN, s, err)
	}
	if len(parsed.RDNs) == 0 {
		return nil, nil
	}
	d := make(DN, 0, len(parsed.RDNs))
	for _, r := range parsed.RDNs {
		rdn := make(RDN, 0, len(r.Attributes))
		for _, a := range r.Attributes {
			if !validAttributeType(a.Type) {
				return nil, fmt.Errorf("%w %q: bad attribute type %q", ErrInvalidDN, s, a.Type)
			}
			rdn = append(rdn, AVA{Type: a.Type, Value: a.Value})
		}
		d = append(d, rdn)
	}
	return d, nil
}

// checkUnescaped rejects the characters RFC 4514 only allows escaped.
func checkUnescaped(s string) error {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			i++
		case '"', '<', '>', 0:
			return fmt.Errorf("unescaped %q", c)
		}
	}
	return nil
}

// IsValid reports whether s parses as a DN.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String renders d with the escaping of RFC 4514.
func (d DN) String() string {
	var sb strings.Builder
	for i, rdn := range d {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(rdn.String())
	}
	return sb.String()
}

func (r RDN) String() string {
	var sb strings.Builder
	for i, ava := range r {
		if i > 0 {
			sb.WriteByte('+')
		}
		sb.WriteString(ava.Type)
		sb.WriteByte('=')
		sb.WriteString(EscapeValue(ava.Value))
	}
	return sb.String()
}

// IsRoot reports whether d is the empty DN.
func (d DN) IsRoot() bool {
	return len(d) == 0
}

// Parent returns d without its first RDN.
func (d DN) Parent() DN {
	if len(d) == 0 {
		return nil
	}
	return d[1:]
}

// EscapeValue escapes an attribute value for use in a DN string.
func EscapeValue(v string) string {
	var sb strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c == '\\' || c == ',' || c == '+' || c == '"' || c == '<' || c == '>' || c == ';' || c == '=':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == 0:
			sb.WriteString(`\00`)
		case (c == ' ' || c == '#') && i == 0, c == ' ' && i == len(v)-1:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// validAttributeType accepts a descr or a numericoid.
func validAttributeType(s string) bool {
	if s == "" {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return oid.IsOID(s)
	}
	return isKeystring(s)
}

func isKeystring(s string) bool {
	if s == "" || !isAlpha(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isAlpha(c) && !(c >= '0' && c <= '9') && c != '-' {
			return false
		}
	}
	return true
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// ValidAttributeDescription reports whether s is an attribute description:
// an attribute type followed by options, as in "cn;lang-en".
func ValidAttributeDescription(s string) bool {
	typ, options, _ := strings.Cut(s, ";")
	if !validAttributeType(typ) {
		return false
	}
	if options == "" {
		return !strings.HasSuffix(s, ";")
	}
	for _, opt := range strings.Split(options, ";") {
		if opt == "" {
			return false
		}
		for i := 0; i < len(opt); i++ {
			c := opt[i]
			if !isAlpha(c) && !(c >= '0' && c <= '9') && c != '-' {
				return false
			}
		}
	}
	return true
}
