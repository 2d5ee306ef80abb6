// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package dn

import (
	"fmt"
	"strings"
)

//go:generate mockgen -destination=../internal/mocks/mock_schema.go -package=mocks github.com/ldapwire/ldapwire/dn Schema

// Schema is the schema knowledge DN checks need. Implementations must be safe
// for concurrent use.
type Schema interface {
	// AttributeType looks up an attribute type by name or numeric OID.
	AttributeType(name string) (*AttributeType, bool)
	// Normalize returns the normalized form of value.
	Normalize(at *AttributeType, value string) (string, error)
	// ValidateSyntax reports whether value matches the syntax of at.
	ValidateSyntax(at *AttributeType, value string) bool
}

// AttributeType describes an attribute type. It cannot be changed once built.
type AttributeType struct {
	oid    string
	names  []string
	syntax string
}

// NewAttributeType returns an attribute type with the given numeric OID,
// syntax OID and names.
func NewAttributeType(oid, syntax string, names ...string) *AttributeType {
	return &AttributeType{
		oid:    oid,
		names:  append([]string(nil), names...),
		syntax: syntax,
	}
}

// OID returns the numeric OID.
func (at *AttributeType) OID() string { return at.oid }

// Syntax returns the syntax OID.
func (at *AttributeType) Syntax() string { return at.syntax }

// Names returns a copy of the names.
func (at *AttributeType) Names() []string { return append([]string(nil), at.names...) }

// Name returns the first name, or the OID when there is none.
func (at *AttributeType) Name() string {
	if len(at.names) == 0 {
		return at.oid
	}
	return at.names[0]
}

func (at *AttributeType) String() string {
	return fmt.Sprintf("%s (%s)", at.Name(), at.oid)
}

// Validate checks every AVA of d against schema.
func (d DN) Validate(schema Schema) error {
	for _, rdn := range d {
		for _, ava := range rdn {
			at, ok := schema.AttributeType(ava.Type)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownAttributeType, ava.Type)
			}
			if !schema.ValidateSyntax(at, ava.Value) {
				return fmt.Errorf("%w: %s=%s", ErrInvalidValue, ava.Type, ava.Value)
			}
		}
	}
	return nil
}

// Normalize returns the normalized string form of d: attribute types are
// replaced by their OID and values by the schema's normalized form.
func (d DN) Normalize(schema Schema) (string, error) {
	var sb strings.Builder
	for i, rdn := range d {
		if i > 0 {
			sb.WriteByte(',')
		}
		for j, ava := range rdn {
			if j > 0 {
				sb.WriteByte('+')
			}
			at, ok := schema.AttributeType(ava.Type)
			if !ok {
				return "", fmt.Errorf("%w: %s", ErrUnknownAttributeType, ava.Type)
			}
			v, err := schema.Normalize(at, ava.Value)
			if err != nil {
				return "", fmt.Errorf("dn: normalize %s: %w", ava.Type, err)
			}
			sb.WriteString(at.OID())
			sb.WriteByte('=')
			sb.WriteString(EscapeValue(v))
		}
	}
	return sb.String(), nil
}
