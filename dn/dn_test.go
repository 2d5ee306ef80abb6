// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package dn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testsParse = []struct {
	in   string
	want DN
}{
	{"", nil},
	{"cn=testModify,ou=users,ou=system", DN{
		{{"cn", "testModify"}}, {{"ou", "users"}}, {{"ou", "system"}},
	}},
	{" cn = a b , ou=x ", DN{{{"cn", "a b"}}, {{"ou", "x"}}}},
	{"cn=a+sn=b;dc=com", DN{{{"cn", "a"}, {"sn", "b"}}, {{"dc", "com"}}}},
	{`cn=Smith\, John,dc=com`, DN{{{"cn", "Smith, John"}}, {{"dc", "com"}}}},
	{`cn=\23x\20`, DN{{{"cn", "#x "}}}},
	{`cn=caf\c3\a9`, DN{{{"cn", "café"}}}},
	{"2.5.4.3=#04024869", DN{{{"2.5.4.3", "Hi"}}}},
	{"cn=a\\\"b", DN{{{"cn", `a"b`}}}},
	{"uid=a=b", DN{{{"uid", "a=b"}}}},
	{"cn=", DN{{{"cn", ""}}}},
}

func TestParse(t *testing.T) {
	for _, test := range testsParse {
		got, err := Parse(test.in)
		require.NoError(t, err, test.in)
		assert.Equal(t, test.want, got, test.in)
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{
		"cn:testModify,ou=users,ou=system",
		"cn=a,",
		",cn=a",
		"=a",
		"cn=a,,dc=com",
		"1cn=a",
		"1.2.=a",
		`cn=a\`,
		`cn=a\4`,
		`cn=a\q`,
		`cn="quoted"`,
		"cn=a<b",
		"cn=#",
		"cn=#zz",
		"cn=#0402 x",
	} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrInvalidDN, in)
		assert.False(t, IsValid(in), in)
	}
}

func TestDNString(t *testing.T) {
	d := DN{{{"cn", "Smith, John"}, {"sn", " x "}}, {{"dc", "#com"}}}
	s := d.String()
	assert.Equal(t, `cn=Smith\, John+sn=\ x\ ,dc=\#com`, s)

	back, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

func TestParent(t *testing.T) {
	d, err := Parse("cn=a,ou=b,dc=c")
	require.NoError(t, err)
	assert.Equal(t, "ou=b,dc=c", d.Parent().String())
	assert.True(t, DN(nil).IsRoot())
	assert.Nil(t, DN(nil).Parent())
}

func TestValidAttributeDescription(t *testing.T) {
	valid := []string{"cn", "userPassword", "cn;lang-en", "cn;lang-en;binary", "2.5.4.3", "x-attr-1"}
	invalid := []string{"", ";x", "cn;", "cn;;x", "1cn", "c n", "cn;l_x", "2.5.4.", "-cn"}
	for _, s := range valid {
		assert.True(t, ValidAttributeDescription(s), s)
	}
	for _, s := range invalid {
		assert.False(t, ValidAttributeDescription(s), s)
	}
}
