// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ber

import (
	"errors"
	"fmt"
)

// decode error modes
var (
	ErrEmptyInteger      = errors.New("zero length integer")
	ErrIndefiniteLength  = errors.New("indefinite length encoding is not supported")
	ErrIntegerTooLarge   = errors.New("integer too large")
	ErrInvalidBoolean    = errors.New("boolean must be exactly one octet")
	ErrLengthOverflow    = errors.New("value overflows the enclosing TLV")
	ErrLengthTooLarge    = errors.New("length too large")
	ErrNonMinimalInteger = errors.New("integer is not minimally encoded")
	ErrNonMinimalLength  = errors.New("length is not minimally encoded")
	ErrNonMinimalTag     = errors.New("tag number is not minimally encoded")
	ErrPDUTooLarge       = errors.New("PDU exceeds the maximum size")
	ErrReservedLength    = errors.New("length octet 0xff is reserved")
	ErrTagTooLarge       = errors.New("tag number too large")
	ErrTrailingData      = errors.New("trailing data after TLV")
	ErrTruncated         = errors.New("truncated PDU")
	ErrUnexpectedTag     = errors.New("unexpected tag")
)

// DecodeError reports where in the input a decode failed. State is the name
// of the grammar state the container was in, and is empty for errors raised
// outside a grammar.
type DecodeError struct {
	Offset int
	State  string
	Tag    Tag
	Err    error
}

func (e *DecodeError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("ber: offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("ber: offset %d: state %s, tag %s: %v", e.Offset, e.State, e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IntegerError is returned when a decoded INTEGER lies outside the bounds the
// field allows.
type IntegerError struct {
	Value    int64
	Min, Max int64
}

func (e *IntegerError) Error() string {
	return fmt.Sprintf("ber: integer %d out of range [%d, %d]", e.Value, e.Min, e.Max)
}
