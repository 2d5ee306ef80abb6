// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ldapwire

import (
	"errors"
	"fmt"

	"github.com/ldapwire/ldapwire/ber"
)

// LDAPResult and operation field tags.
const (
	tagReferral        ber.Tag = 0xa3
	tagAuthSimple      ber.Tag = 0x80
	tagAuthSASL        ber.Tag = 0xa3
	tagServerSASLCreds ber.Tag = 0x87
	tagNewSuperior     ber.Tag = 0x80
	tagControls        ber.Tag = 0xa0
	tagRequestName     ber.Tag = 0x80
	tagRequestValue    ber.Tag = 0x81
	tagResponseName    ber.Tag = 0x8a
	tagResponseValue   ber.Tag = 0x8b
	tagIntermediateOID ber.Tag = 0x80
	tagIntermediateVal ber.Tag = 0x81
)

// EncodeMessageReverse writes m into buf back to front, in front of whatever
// buf already holds. Several messages can be batched into one buffer by
// encoding them last to first. On error buf is left as it was.
func (c *Codec) EncodeMessageReverse(buf *ber.Buffer, m *Message) error {
	if buf == nil {
		return ErrNilBuffer
	}
	if m.Op == nil {
		return ErrMissingOp
	}
	start := buf.Pos()
	size, err := c.encodeMessage(buf, m)
	if err != nil {
		buf.Rewind(start)
		return err
	}
	if c.OnEncode != nil {
		c.OnEncode(m, size)
	}
	return nil
}

func (c *Codec) encodeMessage(buf *ber.Buffer, m *Message) (int, error) {
	op := m.Op.Type()
	if m.ID < 0 {
		return 0, &EncodeError{Op: op, Err: fmt.Errorf("negative message ID %d", m.ID)}
	}
	start := buf.Pos()

	if m.Controls != nil {
		ctrlStart := buf.Pos()
		for i := len(m.Controls) - 1; i >= 0; i-- {
			ctrl := m.Controls[i]
			if ctrl.OID() == "" {
				return 0, &EncodeError{Op: op, Err: ErrEmptyOID}
			}
			var factory ControlFactory
			if _, ok := ctrl.(*OpaqueControl); !ok {
				factory = c.controlFactory(op, ctrl.OID())
			}
			if err := encodeControl(buf, ctrl, factory); err != nil {
				return 0, &EncodeError{Op: op, Err: fmt.Errorf("control %s: %w", ctrl.OID(), err)}
			}
		}
		ber.EncodeSequence(buf, tagControls, ctrlStart)
	}

	if err := m.Op.encode(buf, c); err != nil {
		var ee *EncodeError
		if errors.As(err, &ee) {
			return 0, err
		}
		return 0, &EncodeError{Op: op, Err: err}
	}
	ber.EncodeInteger(buf, ber.TagInteger, int64(m.ID))
	return ber.EncodeSequence(buf, ber.TagSequence, start), nil
}

// EncodeMessage returns the encoding of m.
func (c *Codec) EncodeMessage(m *Message) ([]byte, error) {
	buf := ber.NewBuffer()
	if err := c.EncodeMessageReverse(buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Marshal encodes m with the Default codec.
func Marshal(m *Message) ([]byte, error) {
	return Default.EncodeMessage(m)
}

func encodeResult(buf *ber.Buffer, r *Result) error {
	if r.Referrals != nil {
		if len(r.Referrals) == 0 {
			return errors.New("empty referral")
		}
		start := buf.Pos()
		for i := len(r.Referrals) - 1; i >= 0; i-- {
			ber.EncodeString(buf, ber.TagOctetString, r.Referrals[i])
		}
		ber.EncodeSequence(buf, tagReferral, start)
	}
	ber.EncodeString(buf, ber.TagOctetString, r.DiagnosticMessage)
	ber.EncodeString(buf, ber.TagOctetString, r.MatchedDN)
	ber.EncodeEnumerated(buf, int64(r.Code))
	return nil
}

// encodeResultOp writes a response that is only an LDAPResult.
func encodeResultOp(buf *ber.Buffer, t OpType, r *Result) error {
	start := buf.Pos()
	if err := encodeResult(buf, r); err != nil {
		return err
	}
	ber.EncodeSequence(buf, t.Tag(), start)
	return nil
}

func encodeStrings(buf *ber.Buffer, tag ber.Tag, values []string) {
	start := buf.Pos()
	for i := len(values) - 1; i >= 0; i-- {
		ber.EncodeString(buf, ber.TagOctetString, values[i])
	}
	ber.EncodeSequence(buf, tag, start)
}

// encodeAttribute writes a PartialAttribute or an Attribute.
func encodeAttribute(buf *ber.Buffer, a *PartialAttribute) {
	start := buf.Pos()
	vals := buf.Pos()
	for i := len(a.Values) - 1; i >= 0; i-- {
		ber.EncodeOctetString(buf, ber.TagOctetString, a.Values[i])
	}
	ber.EncodeSequence(buf, ber.TagSet, vals)
	ber.EncodeString(buf, ber.TagOctetString, a.Type)
	ber.EncodeSequence(buf, ber.TagSequence, start)
}

func encodeAttributes(buf *ber.Buffer, attrs []PartialAttribute) {
	start := buf.Pos()
	for i := len(attrs) - 1; i >= 0; i-- {
		encodeAttribute(buf, &attrs[i])
	}
	ber.EncodeSequence(buf, ber.TagSequence, start)
}

// encodeValue writes the value of an extended operation or intermediate
// response. v takes precedence over raw, but an empty raw value is kept when
// v encodes to nothing.
func encodeValue(buf *ber.Buffer, tag ber.Tag, raw []byte, v ExtendedValue,
	encode func(*ber.Buffer, ExtendedValue) (bool, error)) error {
	if v == nil {
		if raw != nil {
			ber.EncodeOctetString(buf, tag, raw)
		}
		return nil
	}
	if encode == nil {
		return fmt.Errorf("%w %s", ErrNoFactory, v.OID())
	}
	start := buf.Pos()
	present, err := encode(buf, v)
	if err != nil {
		return err
	}
	switch {
	case present:
		ber.EncodeSequence(buf, tag, start)
	case buf.Pos() != start:
		return ErrValueWritten
	case raw != nil && len(raw) == 0:
		// a decoded empty value was on the wire, keep it there
		ber.EncodeOctetString(buf, tag, raw)
	}
	return nil
}

func (r *BindRequest) encode(buf *ber.Buffer, _ *Codec) error {
	if r.Version < 1 || r.Version > 127 {
		return fmt.Errorf("invalid version %d", r.Version)
	}
	start := buf.Pos()
	if r.SASL != nil {
		saslStart := buf.Pos()
		if r.SASL.Credentials != nil {
			ber.EncodeOctetString(buf, ber.TagOctetString, r.SASL.Credentials)
		}
		ber.EncodeString(buf, ber.TagOctetString, r.SASL.Mechanism)
		ber.EncodeSequence(buf, tagAuthSASL, saslStart)
	} else {
		ber.EncodeOctetString(buf, tagAuthSimple, r.Simple)
	}
	ber.EncodeString(buf, ber.TagOctetString, r.Name)
	ber.EncodeInteger(buf, ber.TagInteger, int64(r.Version))
	ber.EncodeSequence(buf, r.Type().Tag(), start)
	return nil
}

func (r *BindResponse) encode(buf *ber.Buffer, _ *Codec) error {
	start := buf.Pos()
	if r.ServerSASLCreds != nil {
		ber.EncodeOctetString(buf, tagServerSASLCreds, r.ServerSASLCreds)
	}
	if err := encodeResult(buf, &r.Result); err != nil {
		return err
	}
	ber.EncodeSequence(buf, r.Type().Tag(), start)
	return nil
}

func (r *UnbindRequest) encode(buf *ber.Buffer, _ *Codec) error {
	ber.EncodeNull(buf, r.Type().Tag())
	return nil
}

func (r *SearchRequest) encode(buf *ber.Buffer, _ *Codec) error {
	if r.Filter == nil {
		return errors.New("search request without filter")
	}
	start := buf.Pos()
	encodeStrings(buf, ber.TagSequence, r.Attributes)
	r.Filter.encode(buf)
	ber.EncodeBoolean(buf, ber.TagBoolean, r.TypesOnly)
	ber.EncodeInteger(buf, ber.TagInteger, int64(r.TimeLimit))
	ber.EncodeInteger(buf, ber.TagInteger, int64(r.SizeLimit))
	ber.EncodeEnumerated(buf, int64(r.DerefAliases))
	ber.EncodeEnumerated(buf, int64(r.Scope))
	ber.EncodeString(buf, ber.TagOctetString, r.BaseDN)
	ber.EncodeSequence(buf, r.Type().Tag(), start)
	return nil
}

func (r *SearchResultEntry) encode(buf *ber.Buffer, _ *Codec) error {
	start := buf.Pos()
	encodeAttributes(buf, r.Attributes)
	ber.EncodeString(buf, ber.TagOctetString, r.DN)
	ber.EncodeSequence(buf, r.Type().Tag(), start)
	return nil
}

func (r *SearchResultDone) encode(buf *ber.Buffer, _ *Codec) error {
	return encodeResultOp(buf, r.Type(), &r.Result)
}

func (r *SearchResultReference) encode(buf *ber.Buffer, _ *Codec) error {
	if len(r.URIs) == 0 {
		return errors.New("search result reference without URIs")
	}
	encodeStrings(buf, r.Type().Tag(), r.URIs)
	return nil
}

func (r *ModifyRequest) encode(buf *ber.Buffer, _ *Codec) error {
	start := buf.Pos()
	changes := buf.Pos()
	for i := len(r.Changes) - 1; i >= 0; i-- {
		ch := &r.Changes[i]
		chStart := buf.Pos()
		encodeAttribute(buf, &ch.Modification)
		ber.EncodeEnumerated(buf, int64(ch.Operation))
		ber.EncodeSequence(buf, ber.TagSequence, chStart)
	}
	ber.EncodeSequence(buf, ber.TagSequence, changes)
	ber.EncodeString(buf, ber.TagOctetString, r.Object)
	ber.EncodeSequence(buf, r.Type().Tag(), start)
	return nil
}

func (r *ModifyResponse) encode(buf *ber.Buffer, _ *Codec) error {
	return encodeResultOp(buf, r.Type(), &r.Result)
}

func (r *AddRequest) encode(buf *ber.Buffer, _ *Codec) error {
	start := buf.Pos()
	encodeAttributes(buf, r.Attributes)
	ber.EncodeString(buf, ber.TagOctetString, r.Entry)
	ber.EncodeSequence(buf, r.Type().Tag(), start)
	return nil
}

func (r *AddResponse) encode(buf *ber.Buffer, _ *Codec) error {
	return encodeResultOp(buf, r.Type(), &r.Result)
}

func (r *DelRequest) encode(buf *ber.Buffer, _ *Codec) error {
	ber.EncodeString(buf, r.Type().Tag(), r.DN)
	return nil
}

func (r *DelResponse) encode(buf *ber.Buffer, _ *Codec) error {
	return encodeResultOp(buf, r.Type(), &r.Result)
}

func (r *ModifyDNRequest) encode(buf *ber.Buffer, _ *Codec) error {
	start := buf.Pos()
	if r.NewSuperior != nil {
		ber.EncodeString(buf, tagNewSuperior, *r.NewSuperior)
	}
	ber.EncodeBoolean(buf, ber.TagBoolean, r.DeleteOldRDN)
	ber.EncodeString(buf, ber.TagOctetString, r.NewRDN)
	ber.EncodeString(buf, ber.TagOctetString, r.Entry)
	ber.EncodeSequence(buf, r.Type().Tag(), start)
	return nil
}

func (r *ModifyDNResponse) encode(buf *ber.Buffer, _ *Codec) error {
	return encodeResultOp(buf, r.Type(), &r.Result)
}

func (r *CompareRequest) encode(buf *ber.Buffer, _ *Codec) error {
	start := buf.Pos()
	encodeAVA(buf, ber.TagSequence, r.Attribute, r.Value)
	ber.EncodeString(buf, ber.TagOctetString, r.Entry)
	ber.EncodeSequence(buf, r.Type().Tag(), start)
	return nil
}

func (r *CompareResponse) encode(buf *ber.Buffer, _ *Codec) error {
	return encodeResultOp(buf, r.Type(), &r.Result)
}

func (r *AbandonRequest) encode(buf *ber.Buffer, _ *Codec) error {
	if r.MessageID < 0 {
		return fmt.Errorf("negative message ID %d", r.MessageID)
	}
	ber.EncodeInteger(buf, r.Type().Tag(), int64(r.MessageID))
	return nil
}

func (r *ExtendedRequest) encode(buf *ber.Buffer, c *Codec) error {
	name := r.Name
	var encode func(*ber.Buffer, ExtendedValue) (bool, error)
	if r.Operation != nil {
		if name == "" {
			name = r.Operation.OID()
		}
		if f := c.ExtendedOperation(r.Operation.OID()); f != nil {
			encode = f.EncodeRequest
		}
	}
	if name == "" {
		return ErrEmptyOID
	}
	start := buf.Pos()
	if err := encodeValue(buf, tagRequestValue, r.Value, r.Operation, encode); err != nil {
		return err
	}
	ber.EncodeString(buf, tagRequestName, name)
	ber.EncodeSequence(buf, r.Type().Tag(), start)
	return nil
}

func (r *ExtendedResponse) encode(buf *ber.Buffer, c *Codec) error {
	var encode func(*ber.Buffer, ExtendedValue) (bool, error)
	if r.Operation != nil {
		if f := c.ExtendedOperation(r.Operation.OID()); f != nil {
			encode = f.EncodeResponse
		}
	}
	start := buf.Pos()
	if err := encodeValue(buf, tagResponseValue, r.Value, r.Operation, encode); err != nil {
		return err
	}
	if r.Name != "" {
		ber.EncodeString(buf, tagResponseName, r.Name)
	}
	if err := encodeResult(buf, &r.Result); err != nil {
		return err
	}
	ber.EncodeSequence(buf, r.Type().Tag(), start)
	return nil
}

func (r *IntermediateResponse) encode(buf *ber.Buffer, c *Codec) error {
	var encode func(*ber.Buffer, ExtendedValue) (bool, error)
	if r.Operation != nil {
		if f := c.IntermediateResponse(r.Operation.OID()); f != nil {
			encode = f.EncodeResponse
		}
	}
	start := buf.Pos()
	if err := encodeValue(buf, tagIntermediateVal, r.Value, r.Operation, encode); err != nil {
		return err
	}
	if r.Name != "" {
		ber.EncodeString(buf, tagIntermediateOID, r.Name)
	}
	ber.EncodeSequence(buf, r.Type().Tag(), start)
	return nil
}
