// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ldapwire

import (
	"errors"
	"fmt"
)

// encode and registry error modes
var (
	ErrControlType  = errors.New("control type does not match its factory")
	ErrEmptyOID     = errors.New("empty OID")
	ErrMissingOp    = errors.New("message has no protocolOp")
	ErrNilBuffer    = errors.New("nil buffer")
	ErrNoFactory    = errors.New("no factory registered for control")
	ErrValueType    = errors.New("extended value type does not match its factory")
	ErrValueWritten = errors.New("factory wrote a value it reported absent")
)

// EncodeError is returned when a message cannot be encoded. It only happens
// for messages the caller built wrongly.
type EncodeError struct {
	Op  OpType
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("ldapwire: encoding %s: %v", e.Op, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// ResponseError is a decode failure inside a well framed request. Response
// is the reply a server should send back for it, and is nil when the request
// type has no response (UnbindRequest, AbandonRequest) or the failed PDU was
// itself a response.
type ResponseError struct {
	MessageID int32
	Response  ProtocolOp
	Err       error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("ldapwire: message %d: %v", e.MessageID, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// Message returns the reply to send, or nil.
func (e *ResponseError) Message() *Message {
	if e.Response == nil {
		return nil
	}
	return &Message{ID: e.MessageID, Op: e.Response}
}

// resultCodeError tags a semantic decode failure with the result code the
// server answers it with.
type resultCodeError struct {
	code ResultCode
	err  error
}

func (e *resultCodeError) Error() string {
	return e.err.Error()
}

func (e *resultCodeError) Unwrap() error {
	return e.err
}

func invalidDN(err error) error {
	return &resultCodeError{code: InvalidDNSyntax, err: err}
}

func invalidAttribute(err error) error {
	return &resultCodeError{code: InvalidAttributeSyntax, err: err}
}

func protocolError(format string, args ...interface{}) error {
	return &resultCodeError{code: ProtocolError, err: fmt.Errorf(format, args...)}
}

// ResultCodeOf returns the result code a server answers err with, and false
// when err is not a semantic decode failure.
func ResultCodeOf(err error) (ResultCode, bool) {
	var rc *resultCodeError
	if errors.As(err, &rc) {
		return rc.code, true
	}
	return 0, false
}
