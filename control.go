// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ldapwire

import (
	"github.com/ldapwire/ldapwire/ber"
)

// Control is a request or response control.
//
//	Control ::= SEQUENCE {
//	     controlType             LDAPOID,
//	     criticality             BOOLEAN DEFAULT FALSE,
//	     controlValue            OCTET STRING OPTIONAL }
type Control interface {
	OID() string
	Critical() bool
	SetCritical(critical bool)
}

// ControlFactory encodes and decodes the controlValue of one control type.
// Factories are registered on a Codec by OID.
type ControlFactory interface {
	OID() string
	// NewControl returns an empty control for the decoder to fill.
	NewControl() Control
	// EncodeValue writes the contents of the controlValue OCTET STRING, not
	// its tag and length. It returns false when the control has no value.
	EncodeValue(buf *ber.Buffer, c Control) (bool, error)
	// DecodeValue parses the contents of a present controlValue into c.
	DecodeValue(c Control, value []byte) error
}

// ControlBase carries the criticality and is embedded by the control types
// of this package.
type ControlBase struct {
	Criticality bool
}

// Critical returns the criticality.
func (b *ControlBase) Critical() bool { return b.Criticality }

// SetCritical sets the criticality.
func (b *ControlBase) SetCritical(critical bool) { b.Criticality = critical }

// OpaqueControl is a control without a registered factory. Its value is kept
// as raw bytes and written back unchanged.
type OpaqueControl struct {
	ControlBase
	Type string
	// Value is nil when the controlValue is absent.
	Value []byte
}

// OID returns the controlType.
func (c *OpaqueControl) OID() string { return c.Type }

// encodeControl writes one Control SEQUENCE. factory may be nil for an
// OpaqueControl.
func encodeControl(buf *ber.Buffer, ctrl Control, factory ControlFactory) error {
	start := buf.Pos()
	if opaque, ok := ctrl.(*OpaqueControl); ok {
		if opaque.Value != nil {
			ber.EncodeOctetString(buf, ber.TagOctetString, opaque.Value)
		}
	} else {
		if factory == nil {
			return ErrNoFactory
		}
		valueStart := buf.Pos()
		present, err := factory.EncodeValue(buf, ctrl)
		if err != nil {
			return err
		}
		if present {
			ber.EncodeSequence(buf, ber.TagOctetString, valueStart)
		} else if buf.Pos() != valueStart {
			return ErrValueWritten
		}
	}
	if ctrl.Critical() {
		ber.EncodeBoolean(buf, ber.TagBoolean, true)
	}
	ber.EncodeString(buf, ber.TagOctetString, ctrl.OID())
	ber.EncodeSequence(buf, ber.TagSequence, start)
	return nil
}
