// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ber

// maxPreallocValue caps the initial allocation for a primitive value, so a
// forged length cannot make the decoder allocate before the bytes arrive.
const maxPreallocValue = 64 * 1024

// Decode feeds data to c and returns how many bytes it consumed. Decoding
// stops at the end of the first complete PDU, so the returned count is less
// than len(data) when data holds the start of another one. When data ends in
// the middle of a PDU, Decode consumes all of it and c.Done stays false; call
// it again with the following bytes.
//
// Once c.Done is true, c.Reset must be called before decoding the next PDU.
func Decode[T any](data []byte, c *Container[T]) (int, error) {
	n := 0
	for n < len(data) && !c.done {
		if c.inValue {
			take := len(data) - n
			if take > c.remaining {
				take = c.remaining
			}
			c.tlv.Value = append(c.tlv.Value, data[n:n+take]...)
			n += take
			c.offset += take
			c.remaining -= take
			if c.remaining == 0 {
				c.inValue = false
				if err := c.primitiveDone(); err != nil {
					return n, err
				}
			}
			continue
		}

		done, err := c.hdr.feed(data[n], c.Options.AllowNonMinimalLength)
		n++
		c.offset++
		if err != nil {
			return n, c.Errorf(err)
		}
		if done {
			if err := c.headerDone(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// DecodeAll decodes exactly one PDU from data. It fails when data is shorter
// than the PDU or holds bytes past its end.
func DecodeAll[T any](data []byte, c *Container[T]) error {
	n, err := Decode(data, c)
	if err != nil {
		return err
	}
	if !c.done {
		return c.Errorf(ErrTruncated)
	}
	if n != len(data) {
		return &DecodeError{Offset: n, Err: ErrTrailingData}
	}
	return nil
}

func (c *Container[T]) headerDone() error {
	h := &c.hdr
	c.tlv = TLV{Tag: h.tag, Length: h.length}
	if h.nonMinimal() {
		c.Options.Logger.Printf("ber: %s: non-minimal length for %s at offset %d", c.grammar.name, h.tag, c.offset)
	}
	h.reset()

	end := c.offset + c.tlv.Length
	if len(c.stack) > 0 {
		if end > c.stack[len(c.stack)-1].end {
			return c.Errorf(ErrLengthOverflow)
		}
	} else if c.Options.MaxPDUSize > 0 && end > c.Options.MaxPDUSize {
		return c.Errorf(ErrPDUTooLarge)
	}

	t, ok := c.grammar.Lookup(c.state, c.tlv.Tag)
	if !ok {
		if c.Options.Logger.Enabled() {
			c.Options.Logger.Printf("ber: %s: no transition from %s on %s", c.grammar.name, c.grammar.StateName(c.state), c.tlv.Tag)
		}
		return c.Errorf(ErrUnexpectedTag)
	}

	if !c.tlv.Tag.Constructed() {
		c.pending = t
		if c.tlv.Length == 0 {
			return c.primitiveDone()
		}
		size := c.tlv.Length
		if size > maxPreallocValue {
			size = maxPreallocValue
		}
		c.tlv.Value = make([]byte, 0, size)
		c.remaining = c.tlv.Length
		c.inValue = true
		return nil
	}

	c.stack = append(c.stack, frame[T]{tag: c.tlv.Tag, end: end, close: t.Close})
	if err := c.apply(t); err != nil {
		return err
	}
	return c.closeFrames()
}

func (c *Container[T]) primitiveDone() error {
	if c.tlv.Value == nil {
		c.tlv.Value = []byte{}
	}
	t := c.pending
	c.pending = Transition[T]{}
	if err := c.apply(t); err != nil {
		return err
	}
	if len(c.stack) == 0 {
		return c.finish()
	}
	return c.closeFrames()
}

func (c *Container[T]) apply(t Transition[T]) error {
	if c.Options.Logger.Enabled() {
		c.Options.Logger.Printf("ber: %s: %s --%s--> %s", c.grammar.name, c.grammar.StateName(c.state), c.tlv.Tag, c.grammar.StateName(t.Next))
	}
	c.state = t.Next
	c.endAllowed = t.End
	if t.Action == nil {
		return nil
	}
	if err := t.Action(c); err != nil {
		return c.Errorf(err)
	}
	return nil
}

// closeFrames pops every constructed TLV whose value has been fully consumed.
func (c *Container[T]) closeFrames() error {
	for len(c.stack) > 0 {
		top := c.stack[len(c.stack)-1]
		if c.offset < top.end {
			return nil
		}
		c.stack = c.stack[:len(c.stack)-1]
		if top.close != nil {
			c.tlv = TLV{Tag: top.tag}
			if err := top.close(c); err != nil {
				return c.Errorf(err)
			}
		}
	}
	return c.finish()
}

func (c *Container[T]) finish() error {
	if !c.endAllowed {
		return c.Errorf(ErrTruncated)
	}
	c.done = true
	return nil
}
