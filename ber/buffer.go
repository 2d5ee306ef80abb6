// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ber

// DefaultBufferSize is the initial capacity of a Buffer created by NewBuffer.
const DefaultBufferSize = 1024

// Buffer is a byte buffer that grows from the end toward the beginning.
//
// Every Put places its argument immediately in front of the data written so
// far. An encoder therefore writes the innermost value first and its length
// and tag last, and Bytes returns tag, length, value in wire order without a
// separate length computation pass.
//
// A Buffer is not safe for concurrent use. Use one per in-flight encode, or
// reuse one per connection with Clear between messages.
type Buffer struct {
	data []byte
	pos  int // bytes written, counted from the tail of data
}

// NewBuffer returns an empty Buffer with DefaultBufferSize capacity.
func NewBuffer() *Buffer {
	return NewBufferSize(DefaultBufferSize)
}

// NewBufferSize returns an empty Buffer with the given capacity.
func NewBufferSize(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{data: make([]byte, size)}
}

// Put writes c in front of the previously written bytes.
func (b *Buffer) Put(c byte) {
	b.grow(1)
	b.pos++
	b.data[len(b.data)-b.pos] = c
}

// PutBytes writes p in front of the previously written bytes. The order of
// the bytes within p is preserved.
func (b *Buffer) PutBytes(p []byte) {
	if len(p) == 0 {
		return
	}
	b.grow(len(p))
	b.pos += len(p)
	copy(b.data[len(b.data)-b.pos:], p)
}

// PutString is PutBytes for a string, without an intermediate allocation.
func (b *Buffer) PutString(s string) {
	if len(s) == 0 {
		return
	}
	b.grow(len(s))
	b.pos += len(s)
	copy(b.data[len(b.data)-b.pos:], s)
}

// Pos returns the number of bytes written so far.
func (b *Buffer) Pos() int {
	return b.pos
}

// Size returns the current capacity.
func (b *Buffer) Size() int {
	return len(b.data)
}

// Bytes returns the written region. The slice aliases the buffer and is only
// valid until the next Put or Clear.
func (b *Buffer) Bytes() []byte {
	return b.data[len(b.data)-b.pos:]
}

// Rewind drops everything written since Pos returned pos. It panics if pos
// is not a position of the buffer.
func (b *Buffer) Rewind(pos int) {
	if pos < 0 || pos > b.pos {
		panic("ber: Rewind out of range")
	}
	b.pos = pos
}

// Clear resets the write position without releasing the backing array.
func (b *Buffer) Clear() {
	b.pos = 0
}

// grow makes room for n more bytes. The capacity doubles until it is large
// enough, and the written region is moved to the tail of the new array so the
// position keeps its meaning.
func (b *Buffer) grow(n int) {
	if b.pos+n <= len(b.data) {
		return
	}
	size := len(b.data)
	if size == 0 {
		size = DefaultBufferSize
	}
	for size < b.pos+n {
		size *= 2
	}
	data := make([]byte, size)
	copy(data[size-b.pos:], b.data[len(b.data)-b.pos:])
	b.data = data
}
