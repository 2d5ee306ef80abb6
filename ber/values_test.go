// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ber

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testsEncodeInteger = []struct {
	value     int64
	goodBytes []byte
}{
	{0, []byte{0x02, 0x01, 0x00}},
	{1, []byte{0x02, 0x01, 0x01}},
	{127, []byte{0x02, 0x01, 0x7f}},
	{128, []byte{0x02, 0x02, 0x00, 0x80}},
	{256, []byte{0x02, 0x02, 0x01, 0x00}},
	{-1, []byte{0x02, 0x01, 0xff}},
	{-128, []byte{0x02, 0x01, 0x80}},
	{-129, []byte{0x02, 0x02, 0xff, 0x7f}},
	{math.MaxInt32, []byte{0x02, 0x04, 0x7f, 0xff, 0xff, 0xff}},
	{math.MinInt32, []byte{0x02, 0x04, 0x80, 0x00, 0x00, 0x00}},
	{math.MaxInt64, []byte{0x02, 0x08, 0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
}

func TestEncodeInteger(t *testing.T) {
	for _, test := range testsEncodeInteger {
		buf := NewBuffer()
		n := EncodeInteger(buf, TagInteger, test.value)
		assert.Equal(t, test.goodBytes, buf.Bytes(), "value %d", test.value)
		assert.Equal(t, len(test.goodBytes), n)

		got, err := ParseInt64(buf.Bytes()[2:])
		require.NoError(t, err)
		assert.Equal(t, test.value, got)
	}
}

func TestEncodeBoolean(t *testing.T) {
	buf := NewBuffer()
	EncodeBoolean(buf, TagBoolean, false)
	EncodeBoolean(buf, TagBoolean, true)
	assert.Equal(t, []byte{0x01, 0x01, 0xff, 0x01, 0x01, 0x00}, buf.Bytes())
}

func TestParseBoolean(t *testing.T) {
	for _, c := range []byte{0x01, 0x7f, 0xff} {
		v, err := ParseBoolean([]byte{c})
		require.NoError(t, err)
		assert.True(t, v, "%#x", c)
	}
	v, err := ParseBoolean([]byte{0x00})
	require.NoError(t, err)
	assert.False(t, v)

	_, err = ParseBoolean(nil)
	assert.ErrorIs(t, err, ErrInvalidBoolean)
	_, err = ParseBoolean([]byte{0xff, 0xff})
	assert.ErrorIs(t, err, ErrInvalidBoolean)
}

func TestParseInt64Rejects(t *testing.T) {
	tests := []struct {
		data []byte
		err  error
	}{
		{nil, ErrEmptyInteger},
		{[]byte{0x00, 0x01}, ErrNonMinimalInteger},
		{[]byte{0xff, 0x80}, ErrNonMinimalInteger},
		{[]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}, ErrIntegerTooLarge},
	}
	for _, test := range tests {
		_, err := ParseInt64(test.data)
		assert.True(t, errors.Is(err, test.err), "% x: got %v", test.data, err)
	}
}

func TestParseIntegerBounds(t *testing.T) {
	v, err := ParseInteger[int32]([]byte{0x7f, 0xff, 0xff, 0xff}, 0, math.MaxInt32)
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), v)

	_, err = ParseInteger[int]([]byte{0xff}, 0, math.MaxInt32)
	var ie *IntegerError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, int64(-1), ie.Value)
	assert.Equal(t, int64(0), ie.Min)

	_, err = ParseInteger[int8]([]byte{0x00, 0x80}, math.MinInt8, math.MaxInt8)
	assert.ErrorAs(t, err, &ie)
}

func TestEncodeTagHighNumber(t *testing.T) {
	for _, test := range []struct {
		tag  Tag
		want []byte
	}{
		{ApplicationTag(0, true), []byte{0x60}},
		{ApplicationTag(23, true), []byte{0x77}},
		{ContextTag(7, false), []byte{0x87}},
		{ContextTag(31, false), []byte{0x9f, 0x1f}},
		{ContextTag(200, true), []byte{0xbf, 0x81, 0x48}},
	} {
		buf := NewBuffer()
		EncodeTag(buf, test.tag)
		assert.Equal(t, test.want, buf.Bytes(), "%s", test.tag)

		tag, _, _, err := ParseHeader(append(buf.Bytes(), 0x00))
		require.NoError(t, err)
		assert.Equal(t, test.tag, tag)
		assert.Equal(t, test.tag.Number(), tag.Number())
	}
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "0x30", TagSequence.String())
	assert.Equal(t, "[APPLICATION 14 C]", ApplicationTag(14, true).String())
	assert.Equal(t, "[CONTEXT 7 P]", ContextTag(7, false).String())
}
