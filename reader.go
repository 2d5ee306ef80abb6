// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ldapwire

import (
	"errors"
	"io"
)

const rxBufSize = 65535

// Reader reads consecutive LDAPMessages from a stream such as a TCP
// connection. Bytes read past the end of a message are kept for the next
// call.
type Reader struct {
	r       io.Reader
	mc      *MessageContainer
	buf     []byte
	pending []byte
}

// NewReader returns a Reader decoding r with codec.
func NewReader(r io.Reader, codec *Codec) *Reader {
	return &Reader{
		r:   r,
		mc:  codec.NewMessageContainer(),
		buf: make([]byte, rxBufSize),
	}
}

// ReadMessage returns the next message. It returns io.EOF when the stream
// ends between two messages and io.ErrUnexpectedEOF when it ends inside one.
// After a decode error the stream cannot be resynchronized and the Reader
// should be discarded; a *ResponseError still carries the reply to send
// before closing.
func (r *Reader) ReadMessage() (*Message, error) {
	r.mc.Reset()
	for {
		if len(r.pending) > 0 {
			n, err := r.mc.Feed(r.pending)
			r.pending = r.pending[n:]
			if err != nil {
				return nil, err
			}
			if r.mc.Done() {
				return r.mc.Message(), nil
			}
		}
		n, err := r.r.Read(r.buf)
		if n > 0 {
			r.pending = r.buf[:n]
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && r.mc.Started() {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// Buffered returns the bytes read from the stream but not decoded yet.
func (r *Reader) Buffered() int {
	return len(r.pending)
}
