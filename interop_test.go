// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ldapwire

import (
	"testing"

	asn1ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/lor00x/goldap/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// asn1berBind builds a simple BindRequest the way go-ldap does.
func asn1berBind(id int64, name, password string) []byte {
	envelope := asn1ber.Encode(asn1ber.ClassUniversal, asn1ber.TypeConstructed, asn1ber.TagSequence, nil, "LDAP Request")
	envelope.AppendChild(asn1ber.NewInteger(asn1ber.ClassUniversal, asn1ber.TypePrimitive, asn1ber.TagInteger, id, "MessageID"))
	req := asn1ber.Encode(asn1ber.ClassApplication, asn1ber.TypeConstructed, 0, nil, "Bind Request")
	req.AppendChild(asn1ber.NewInteger(asn1ber.ClassUniversal, asn1ber.TypePrimitive, asn1ber.TagInteger, 3, "Version"))
	req.AppendChild(asn1ber.NewString(asn1ber.ClassUniversal, asn1ber.TypePrimitive, asn1ber.TagOctetString, name, "User Name"))
	req.AppendChild(asn1ber.NewString(asn1ber.ClassContext, asn1ber.TypePrimitive, 0, password, "Password"))
	envelope.AppendChild(req)
	return envelope.Bytes()
}

func TestAsn1BerBuiltMessage(t *testing.T) {
	data := asn1berBind(1, "cn=admin,dc=example,dc=com", "secret")
	assert.Equal(t, bindSimpleBytes(), data)

	m, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, &BindRequest{Version: 3, Name: "cn=admin,dc=example,dc=com", Simple: []byte("secret")}, m.Op)
}

func TestAsn1BerReadsEncoded(t *testing.T) {
	for _, test := range testsMessages {
		t.Run(test.name, func(t *testing.T) {
			data, err := Marshal(test.out)
			require.NoError(t, err)
			p, err := asn1ber.DecodePacketErr(data)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(p.Children), 2)
			assert.Equal(t, asn1ber.TagSequence, p.Tag)
			assert.Equal(t, int64(test.out.ID), p.Children[0].Value)
			op := p.Children[1]
			assert.Equal(t, asn1ber.ClassApplication, op.ClassType)
			assert.EqualValues(t, test.out.Op.Type(), op.Tag)
			if test.out.Controls != nil {
				require.Len(t, p.Children, 3)
				assert.Len(t, p.Children[2].Children, len(test.out.Controls))
			}
		})
	}
}

func TestGoLDAPControls(t *testing.T) {
	paging := ldap.NewControlPaging(32).Encode().Bytes()
	manage := ldap.NewControlManageDsaIT(false).Encode().Bytes()
	data := tlv(0x30, integer(0x02, 9), str(0x4a, "cn=Jane,dc=example,dc=com"), tlv(0xa0, paging, manage))

	m, err := Unmarshal(data)
	require.NoError(t, err)
	want := []Control{&PagedResults{Size: 32, Cookie: []byte{}}, &ManageDsaIT{}}
	if diff := cmp.Diff(want, m.Controls); diff != "" {
		t.Errorf("controls mismatch (-want +got):\n%s", diff)
	}

	out, err := Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestGoLDAPDecodesControl(t *testing.T) {
	data, err := Marshal(&Message{
		ID:       4,
		Op:       &SearchResultDone{},
		Controls: []Control{&PagedResults{Size: 32, Cookie: []byte("test")}},
	})
	require.NoError(t, err)
	p, err := asn1ber.DecodePacketErr(data)
	require.NoError(t, err)
	require.Len(t, p.Children, 3)

	ctrl, err := ldap.DecodeControl(p.Children[2].Children[0])
	require.NoError(t, err)
	paging, ok := ctrl.(*ldap.ControlPaging)
	require.True(t, ok, "got %T", ctrl)
	assert.Equal(t, uint32(32), paging.PagingSize)
	assert.Equal(t, []byte("test"), paging.Cookie)
}

var testsGoLDAPFilters = []string{
	"(cn=John)",
	"(cn=a\\2ab)",
	"(mail=*)",
	"(cn=Jo*)",
	"(cn=*ohn)",
	"(cn=Jo*h*n)",
	"(sn<=Smith)",
	"(age>=30)",
	"(sn~=Smyth)",
	"(!(cn=John))",
	"(&(objectClass=person)(|(cn=Jo*h*n)(mail=*))(!(age>=30)))",
	"(cn:caseExactMatch:=John)",
	"(:2.5.13.5:=John)",
}

func TestGoLDAPFilters(t *testing.T) {
	for _, filter := range testsGoLDAPFilters {
		t.Run(filter, func(t *testing.T) {
			compiled, err := ldap.CompileFilter(filter)
			require.NoError(t, err)
			data := tlv(0x30, integer(0x02, 4), tlv(0x63,
				str(0x04, ""), enum(0), enum(0), integer(0x02, 0), integer(0x02, 0), boolean(0x01, false),
				compiled.Bytes(),
				tlv(0x30)))

			m, err := Unmarshal(data)
			require.NoError(t, err)
			f := m.Op.(*SearchRequest).Filter
			assert.Equal(t, filter, f.String())

			out, err := Marshal(m)
			require.NoError(t, err)
			assert.Equal(t, data, out)

			p, err := asn1ber.DecodePacketErr(out)
			require.NoError(t, err)
			decompiled, err := ldap.DecompileFilter(p.Children[1].Children[6])
			require.NoError(t, err)
			assert.Equal(t, filter, decompiled)
		})
	}
}

func TestGoldapReadsEncoded(t *testing.T) {
	for _, in := range []func() []byte{
		bindSimpleBytes, unbindBytes, searchPresentBytes, modifyRequestBytes, addRequestBytes,
		delRequestBytes, modifyDNRequestBytes, compareRequestBytes, abandonRequestBytes,
	} {
		want, err := Unmarshal(in())
		require.NoError(t, err)
		data, err := Marshal(want)
		require.NoError(t, err)

		msg, err := message.ReadLDAPMessage(message.NewBytes(0, data))
		require.NoError(t, err, want.Op.Type().String())
		assert.EqualValues(t, want.ID, msg.MessageID())
		assert.NotNil(t, msg.ProtocolOp())
	}
}

func TestGoldapWrittenDecodes(t *testing.T) {
	for _, in := range []func() []byte{delRequestBytes, compareRequestBytes} {
		want, err := Unmarshal(in())
		require.NoError(t, err)

		msg, err := message.ReadLDAPMessage(message.NewBytes(0, in()))
		require.NoError(t, err)
		written, err := msg.Write()
		require.NoError(t, err)

		got, err := Unmarshal(written.Bytes())
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", want.Op.Type(), diff)
		}
	}
}
