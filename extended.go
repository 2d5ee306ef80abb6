// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ldapwire

import (
	"fmt"
	"math"

	"github.com/ldapwire/ldapwire/ber"
)

// Extended operations registered by NewCodec.
const (
	OIDStartTLS       = "1.3.6.1.4.1.1466.20037"
	OIDWhoAmI         = "1.3.6.1.4.1.4203.1.11.3"
	OIDPasswordModify = "1.3.6.1.4.1.4203.1.11.1"
	OIDCancel         = "1.3.6.1.1.8"
)

// ExtendedValue is the decoded requestValue or responseValue of an extended
// operation, or the value of an intermediate response.
type ExtendedValue interface {
	OID() string
}

// IntermediateResponseFactory encodes and decodes the responseValue of one
// responseName. Encode methods write the contents of the value OCTET STRING
// and report false when the value is absent. Decode methods are only called
// for a present value.
type IntermediateResponseFactory interface {
	OID() string
	NewResponse() ExtendedValue
	EncodeResponse(buf *ber.Buffer, v ExtendedValue) (bool, error)
	DecodeResponse(v ExtendedValue, value []byte) error
}

// ExtendedOperationFactory handles both halves of an extended operation. The
// response half is used for ExtendedResponses whose responseName matches.
type ExtendedOperationFactory interface {
	IntermediateResponseFactory
	NewRequest() ExtendedValue
	EncodeRequest(buf *ber.Buffer, v ExtendedValue) (bool, error)
	DecodeRequest(v ExtendedValue, value []byte) error
}

func wrongValue(want string, got ExtendedValue) error {
	return fmt.Errorf("%w: want %s, got %T", ErrValueType, want, got)
}

// noValueOp is an extended operation whose request and response carry no
// value.
type noValueOp struct {
	oid         string
	newRequest  func() ExtendedValue
	newResponse func() ExtendedValue
}

func (f noValueOp) OID() string                { return f.oid }
func (f noValueOp) NewRequest() ExtendedValue  { return f.newRequest() }
func (f noValueOp) NewResponse() ExtendedValue { return f.newResponse() }

func (f noValueOp) EncodeRequest(*ber.Buffer, ExtendedValue) (bool, error) {
	return false, nil
}

func (f noValueOp) EncodeResponse(*ber.Buffer, ExtendedValue) (bool, error) {
	return false, nil
}

func (f noValueOp) DecodeRequest(_ ExtendedValue, value []byte) error {
	if len(value) != 0 {
		return fmt.Errorf("%s request takes no value", f.oid)
	}
	return nil
}

func (f noValueOp) DecodeResponse(_ ExtendedValue, value []byte) error {
	if len(value) != 0 {
		return fmt.Errorf("%s response takes no value", f.oid)
	}
	return nil
}

// -- StartTLS (RFC 4511 4.14) -------------------------------------------------

type StartTLSRequest struct{}

func (*StartTLSRequest) OID() string { return OIDStartTLS }

type StartTLSResponse struct{}

func (*StartTLSResponse) OID() string { return OIDStartTLS }

// StartTLSFactory handles the StartTLS operation.
var StartTLSFactory ExtendedOperationFactory = noValueOp{
	oid:         OIDStartTLS,
	newRequest:  func() ExtendedValue { return &StartTLSRequest{} },
	newResponse: func() ExtendedValue { return &StartTLSResponse{} },
}

// -- WhoAmI (RFC 4532) --------------------------------------------------------

type WhoAmIRequest struct{}

func (*WhoAmIRequest) OID() string { return OIDWhoAmI }

// WhoAmIResponse carries the authzId of the bound identity. AuthzID is nil
// when the responseValue is absent; the empty string is the anonymous
// identity.
type WhoAmIResponse struct {
	AuthzID *string
}

func (*WhoAmIResponse) OID() string { return OIDWhoAmI }

type whoAmIFactory struct {
	noValueOp
}

// WhoAmIFactory handles the WhoAmI operation.
var WhoAmIFactory ExtendedOperationFactory = whoAmIFactory{noValueOp{
	oid:         OIDWhoAmI,
	newRequest:  func() ExtendedValue { return &WhoAmIRequest{} },
	newResponse: func() ExtendedValue { return &WhoAmIResponse{} },
}}

func (whoAmIFactory) EncodeResponse(buf *ber.Buffer, v ExtendedValue) (bool, error) {
	r, ok := v.(*WhoAmIResponse)
	if !ok {
		return false, wrongValue("*WhoAmIResponse", v)
	}
	if r.AuthzID == nil {
		return false, nil
	}
	if err := checkAuthzID(*r.AuthzID); err != nil {
		return false, err
	}
	buf.PutString(*r.AuthzID)
	return true, nil
}

func (whoAmIFactory) DecodeResponse(v ExtendedValue, value []byte) error {
	r, ok := v.(*WhoAmIResponse)
	if !ok {
		return wrongValue("*WhoAmIResponse", v)
	}
	id := string(value)
	if err := checkAuthzID(id); err != nil {
		return err
	}
	r.AuthzID = &id
	return nil
}

// -- PasswordModify (RFC 3062) ------------------------------------------------

// PasswordModifyRequest changes a password. Nil fields are absent.
//
//	PasswdModifyRequestValue ::= SEQUENCE {
//	        userIdentity    [0]  OCTET STRING OPTIONAL
//	        oldPasswd       [1]  OCTET STRING OPTIONAL
//	        newPasswd       [2]  OCTET STRING OPTIONAL }
type PasswordModifyRequest struct {
	UserIdentity []byte
	OldPassword  []byte
	NewPassword  []byte
}

func (*PasswordModifyRequest) OID() string { return OIDPasswordModify }

// PasswordModifyResponse carries the generated password, nil when absent.
//
//	PasswdModifyResponseValue ::= SEQUENCE {
//	        genPasswd       [0]     OCTET STRING OPTIONAL }
type PasswordModifyResponse struct {
	GeneratedPassword []byte
}

func (*PasswordModifyResponse) OID() string { return OIDPasswordModify }

const (
	tagPasswdUserIdentity ber.Tag = 0x80
	tagPasswdOld          ber.Tag = 0x81
	tagPasswdNew          ber.Tag = 0x82
	tagPasswdGenerated    ber.Tag = 0x80
)

const (
	pmSeq ber.State = iota + 1
	pmUserIdentity
	pmOldPassword
	pmNewPassword
)

var passwordModifyRequestGrammar = ber.NewGrammar[*PasswordModifyRequest]("passwordModifyRequest").
	NameState(pmSeq, "PM_SEQ").
	NameState(pmUserIdentity, "PM_USER_IDENTITY").
	NameState(pmOldPassword, "PM_OLD_PASSWORD").
	NameState(pmNewPassword, "PM_NEW_PASSWORD").
	Add(ber.StateStart, ber.TagSequence, ber.Transition[*PasswordModifyRequest]{Next: pmSeq, End: true}).
	Add(pmSeq, tagPasswdUserIdentity, ber.Transition[*PasswordModifyRequest]{Next: pmUserIdentity, End: true, Action: func(c *ber.Container[*PasswordModifyRequest]) error {
		c.Value.UserIdentity = c.TLV().Value
		return nil
	}}).
	AddAll([]ber.State{pmSeq, pmUserIdentity}, tagPasswdOld, ber.Transition[*PasswordModifyRequest]{Next: pmOldPassword, End: true, Action: func(c *ber.Container[*PasswordModifyRequest]) error {
		c.Value.OldPassword = c.TLV().Value
		return nil
	}}).
	AddAll([]ber.State{pmSeq, pmUserIdentity, pmOldPassword}, tagPasswdNew, ber.Transition[*PasswordModifyRequest]{Next: pmNewPassword, End: true, Action: func(c *ber.Container[*PasswordModifyRequest]) error {
		c.Value.NewPassword = c.TLV().Value
		return nil
	}})

var passwordModifyResponseGrammar = ber.NewGrammar[*PasswordModifyResponse]("passwordModifyResponse").
	NameState(pmSeq, "PM_SEQ").
	NameState(pmNewPassword, "PM_GEN_PASSWORD").
	Add(ber.StateStart, ber.TagSequence, ber.Transition[*PasswordModifyResponse]{Next: pmSeq, End: true}).
	Add(pmSeq, tagPasswdGenerated, ber.Transition[*PasswordModifyResponse]{Next: pmNewPassword, End: true, Action: func(c *ber.Container[*PasswordModifyResponse]) error {
		c.Value.GeneratedPassword = c.TLV().Value
		return nil
	}})

type passwordModifyFactory struct{}

// PasswordModifyFactory handles the password modify operation.
var PasswordModifyFactory ExtendedOperationFactory = passwordModifyFactory{}

func (passwordModifyFactory) OID() string                { return OIDPasswordModify }
func (passwordModifyFactory) NewRequest() ExtendedValue  { return &PasswordModifyRequest{} }
func (passwordModifyFactory) NewResponse() ExtendedValue { return &PasswordModifyResponse{} }

func (passwordModifyFactory) EncodeRequest(buf *ber.Buffer, v ExtendedValue) (bool, error) {
	r, ok := v.(*PasswordModifyRequest)
	if !ok {
		return false, wrongValue("*PasswordModifyRequest", v)
	}
	start := buf.Pos()
	if r.NewPassword != nil {
		ber.EncodeOctetString(buf, tagPasswdNew, r.NewPassword)
	}
	if r.OldPassword != nil {
		ber.EncodeOctetString(buf, tagPasswdOld, r.OldPassword)
	}
	if r.UserIdentity != nil {
		ber.EncodeOctetString(buf, tagPasswdUserIdentity, r.UserIdentity)
	}
	ber.EncodeSequence(buf, ber.TagSequence, start)
	return true, nil
}

func (passwordModifyFactory) DecodeRequest(v ExtendedValue, value []byte) error {
	r, ok := v.(*PasswordModifyRequest)
	if !ok {
		return wrongValue("*PasswordModifyRequest", v)
	}
	return decodeValue(passwordModifyRequestGrammar, r, value)
}

func (passwordModifyFactory) EncodeResponse(buf *ber.Buffer, v ExtendedValue) (bool, error) {
	r, ok := v.(*PasswordModifyResponse)
	if !ok {
		return false, wrongValue("*PasswordModifyResponse", v)
	}
	if r.GeneratedPassword == nil {
		return false, nil
	}
	start := buf.Pos()
	ber.EncodeOctetString(buf, tagPasswdGenerated, r.GeneratedPassword)
	ber.EncodeSequence(buf, ber.TagSequence, start)
	return true, nil
}

func (passwordModifyFactory) DecodeResponse(v ExtendedValue, value []byte) error {
	r, ok := v.(*PasswordModifyResponse)
	if !ok {
		return wrongValue("*PasswordModifyResponse", v)
	}
	return decodeValue(passwordModifyResponseGrammar, r, value)
}

// -- Cancel (RFC 3909) --------------------------------------------------------

// CancelRequest asks the server to cancel an outstanding operation.
//
//	cancelRequestValue ::= SEQUENCE {
//	        cancelID        MessageID }
type CancelRequest struct {
	MessageID int32
}

func (*CancelRequest) OID() string { return OIDCancel }

type CancelResponse struct{}

func (*CancelResponse) OID() string { return OIDCancel }

const (
	cancelSeq ber.State = iota + 1
	cancelID
)

var cancelGrammar = ber.NewGrammar[*CancelRequest]("cancelRequest").
	NameState(cancelSeq, "CANCEL_SEQ").
	NameState(cancelID, "CANCEL_ID").
	Add(ber.StateStart, ber.TagSequence, ber.Transition[*CancelRequest]{Next: cancelSeq}).
	Add(cancelSeq, ber.TagInteger, ber.Transition[*CancelRequest]{Next: cancelID, End: true, Action: func(c *ber.Container[*CancelRequest]) error {
		id, err := ber.ParseInteger[int32](c.TLV().Value, 0, math.MaxInt32)
		c.Value.MessageID = id
		return err
	}})

type cancelFactory struct {
	noValueOp
}

// CancelFactory handles the cancel operation.
var CancelFactory ExtendedOperationFactory = cancelFactory{noValueOp{
	oid:         OIDCancel,
	newRequest:  func() ExtendedValue { return &CancelRequest{} },
	newResponse: func() ExtendedValue { return &CancelResponse{} },
}}

func (cancelFactory) EncodeRequest(buf *ber.Buffer, v ExtendedValue) (bool, error) {
	r, ok := v.(*CancelRequest)
	if !ok {
		return false, wrongValue("*CancelRequest", v)
	}
	if r.MessageID < 0 {
		return false, fmt.Errorf("cancel: invalid message ID %d", r.MessageID)
	}
	start := buf.Pos()
	ber.EncodeInteger(buf, ber.TagInteger, int64(r.MessageID))
	ber.EncodeSequence(buf, ber.TagSequence, start)
	return true, nil
}

func (cancelFactory) DecodeRequest(v ExtendedValue, value []byte) error {
	r, ok := v.(*CancelRequest)
	if !ok {
		return wrongValue("*CancelRequest", v)
	}
	return decodeValue(cancelGrammar, r, value)
}
