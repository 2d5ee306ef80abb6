// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ber

// DecodeOptions tune a Container.
type DecodeOptions struct {
	Logger Logger

	// MaxPDUSize bounds the total size of the outer TLV. Zero means no limit.
	MaxPDUSize int

	// AllowNonMinimalLength accepts long-form lengths with more octets than
	// needed instead of failing. Such lengths are logged.
	AllowNonMinimalLength bool
}

// TLV is the TLV an action is running for.
type TLV struct {
	Tag    Tag
	Length int
	// Value holds the contents of a primitive TLV. It is a copy owned by the
	// container until the next TLV starts, so actions that keep it must not
	// assume anything about the input buffer. Nil for constructed TLVs.
	Value []byte
}

// frame is an open constructed TLV.
type frame[T any] struct {
	tag   Tag
	end   int // offset just past the value
	close Action[T]
}

// Container holds the state of one decode: the grammar position, the stack of
// open constructed TLVs and the value being built. A Container is fed with
// Decode, possibly across several calls as input arrives, and is not safe for
// concurrent use.
type Container[T any] struct {
	// Value is the object actions populate.
	Value T

	Options DecodeOptions

	grammar    *Grammar[T]
	state      State
	endAllowed bool
	stack      []frame[T]

	hdr       header
	tlv       TLV
	pending   Transition[T]
	remaining int  // value bytes of the current primitive still to read
	inValue   bool // reading the value of a primitive TLV

	offset int
	done   bool
}

// NewContainer returns a container positioned at the start of g.
func NewContainer[T any](g *Grammar[T], opts DecodeOptions) *Container[T] {
	return &Container[T]{
		grammar: g,
		Options: opts,
		stack:   make([]frame[T], 0, 8),
	}
}

// Reset prepares the container for the next PDU. Value is set to its zero
// value; callers that keep state in Value across PDUs should copy it first.
func (c *Container[T]) Reset() {
	var zero T
	c.Value = zero
	c.state = StateStart
	c.endAllowed = false
	c.stack = c.stack[:0]
	c.hdr.reset()
	c.tlv = TLV{}
	c.pending = Transition[T]{}
	c.remaining = 0
	c.inValue = false
	c.offset = 0
	c.done = false
}

// Grammar returns the grammar driving c.
func (c *Container[T]) Grammar() *Grammar[T] {
	return c.grammar
}

// State returns the current state.
func (c *Container[T]) State() State {
	return c.state
}

// SetState moves the container to s. Actions use it when the next state
// depends on decoded content rather than on the tag alone.
func (c *Container[T]) SetState(s State) {
	c.state = s
}

// EndAllowed reports whether the PDU may end in the current state.
func (c *Container[T]) EndAllowed() bool {
	return c.endAllowed
}

// SetEndAllowed overrides the End flag of the transition just taken.
func (c *Container[T]) SetEndAllowed(ok bool) {
	c.endAllowed = ok
}

// TLV returns the TLV the running action belongs to.
func (c *Container[T]) TLV() TLV {
	return c.tlv
}

// Depth returns the number of open constructed TLVs.
func (c *Container[T]) Depth() int {
	return len(c.stack)
}

// Offset returns the number of bytes of the PDU consumed so far.
func (c *Container[T]) Offset() int {
	return c.offset
}

// Done reports whether a whole PDU has been decoded.
func (c *Container[T]) Done() bool {
	return c.done
}

// Started reports whether any byte of the current PDU has been consumed.
func (c *Container[T]) Started() bool {
	return c.offset > 0
}

// Errorf wraps err in a *DecodeError positioned at the current TLV.
func (c *Container[T]) Errorf(err error) error {
	if _, ok := err.(*DecodeError); ok {
		return err
	}
	return &DecodeError{
		Offset: c.offset,
		State:  c.grammar.StateName(c.state),
		Tag:    c.tlv.Tag,
		Err:    err,
	}
}
