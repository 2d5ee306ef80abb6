// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ldapwire

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldapwire/ldapwire/ber"
)

var testsMessages = []struct {
	name string
	in   func() []byte
	out  *Message
}{
	{"bind simple", bindSimpleBytes, &Message{
		ID: 1,
		Op: &BindRequest{Version: 3, Name: "cn=admin,dc=example,dc=com", Simple: []byte("secret")},
	}},
	{"bind anonymous", bindAnonymousBytes, &Message{
		ID: 1,
		Op: &BindRequest{Version: 3, Simple: []byte{}},
	}},
	{"bind sasl", bindSASLBytes, &Message{
		ID: 2,
		Op: &BindRequest{Version: 3, SASL: &SASLCredentials{Mechanism: "DIGEST-MD5", Credentials: []byte("creds")}},
	}},
	{"bind sasl without credentials", bindSASLNoCredsBytes, &Message{
		ID: 2,
		Op: &BindRequest{Version: 3, SASL: &SASLCredentials{Mechanism: "EXTERNAL"}},
	}},
	{"bind response", bindResponseBytes, &Message{
		ID: 2,
		Op: &BindResponse{Result: Result{Code: SaslBindInProgress}, ServerSASLCreds: []byte("challenge")},
	}},
	{"unbind", unbindBytes, &Message{ID: 3, Op: &UnbindRequest{}}},
	{"search", searchRequestBytes, &Message{
		ID: 4,
		Op: &SearchRequest{
			BaseDN:    "dc=example,dc=com",
			Scope:     ScopeWholeSubtree,
			SizeLimit: 100,
			Filter: AndFilter{
				&EqualityFilter{Attribute: "objectClass", Value: []byte("person")},
				OrFilter{
					&SubstringsFilter{Attribute: "cn", Initial: []byte("Jo"), Any: [][]byte{[]byte("h")}, Final: []byte("n")},
					PresentFilter("mail"),
				},
				&NotFilter{Filter: &GreaterOrEqualFilter{Attribute: "age", Value: []byte("30")}},
				&ExtensibleFilter{MatchingRule: "caseExactMatch", Attribute: "cn", Value: []byte("John"), DNAttributes: true},
			},
			Attributes: []string{"cn", "mail"},
		},
	}},
	{"search no attributes", searchPresentBytes, &Message{
		ID: 4,
		Op: &SearchRequest{
			DerefAliases: DerefAlways,
			TimeLimit:    30,
			TypesOnly:    true,
			Filter:       PresentFilter("objectClass"),
		},
	}},
	{"search result entry", searchResultEntryBytes, &Message{
		ID: 4,
		Op: &SearchResultEntry{
			DN: "cn=John,dc=example,dc=com",
			Attributes: []PartialAttribute{
				{Type: "cn", Values: [][]byte{[]byte("John"), []byte("Johnny")}},
				{Type: "jpegPhoto"},
			},
		},
	}},
	{"search result done", searchResultDoneBytes, &Message{
		ID: 4,
		Op: &SearchResultDone{Result: Result{
			Code:              Referral,
			MatchedDN:         "dc=example,dc=com",
			DiagnosticMessage: "see referral",
			Referrals:         []string{"ldap://other.example.com/"},
		}},
	}},
	{"search result reference", searchResultReferenceBytes, &Message{
		ID: 4,
		Op: &SearchResultReference{URIs: []string{
			"ldap://a.example.com/dc=example,dc=com",
			"ldap://b.example.com/dc=example,dc=com",
		}},
	}},
	{"modify", modifyRequestBytes, &Message{
		ID: 5,
		Op: &ModifyRequest{
			Object: "cn=John,dc=example,dc=com",
			Changes: []Change{
				{Operation: ModifyReplace, Modification: PartialAttribute{Type: "mail", Values: [][]byte{[]byte("john@example.com")}}},
				{Operation: ModifyDelete, Modification: PartialAttribute{Type: "description"}},
			},
		},
	}},
	{"modify response", modifyResponseBytes, &Message{ID: 5, Op: &ModifyResponse{}}},
	{"add", addRequestBytes, &Message{
		ID: 6,
		Op: &AddRequest{
			Entry: "cn=Jane,dc=example,dc=com",
			Attributes: []PartialAttribute{
				{Type: "objectClass", Values: [][]byte{[]byte("top"), []byte("person")}},
				{Type: "cn", Values: [][]byte{[]byte("Jane")}},
			},
		},
	}},
	{"add response", addResponseBytes, &Message{
		ID: 6,
		Op: &AddResponse{Result: Result{Code: EntryAlreadyExists, DiagnosticMessage: "entry exists"}},
	}},
	{"delete", delRequestBytes, &Message{ID: 7, Op: &DelRequest{DN: "cn=Jane,dc=example,dc=com"}}},
	{"delete response", delResponseBytes, &Message{
		ID: 7,
		Op: &DelResponse{Result: Result{Code: NoSuchObject, MatchedDN: "dc=example,dc=com"}},
	}},
	{"modify dn", modifyDNRequestBytes, &Message{
		ID: 8,
		Op: &ModifyDNRequest{
			Entry:        "cn=testModify,ou=users,ou=system",
			NewRDN:       "cn=testDNModify",
			DeleteOldRDN: true,
			NewSuperior:  strptr("ou=system"),
		},
	}},
	{"modify dn response", modifyDNResponseBytes, &Message{ID: 8, Op: &ModifyDNResponse{}}},
	{"compare", compareRequestBytes, &Message{
		ID: 1,
		Op: &CompareRequest{
			Entry:                   "cn=testModify,ou=users,ou=system",
			AttributeValueAssertion: AttributeValueAssertion{Attribute: "test", Value: []byte("value")},
		},
	}},
	{"compare response", compareResponseBytes, &Message{
		ID: 1,
		Op: &CompareResponse{Result: Result{Code: CompareTrue}},
	}},
	{"abandon", abandonRequestBytes, &Message{ID: 10, Op: &AbandonRequest{MessageID: 5}}},
	{"start tls", startTLSRequestBytes, &Message{
		ID: 1,
		Op: &ExtendedRequest{Name: OIDStartTLS, Operation: &StartTLSRequest{}},
	}},
	{"start tls response", startTLSResponseBytes, &Message{
		ID: 1,
		Op: &ExtendedResponse{Name: OIDStartTLS, Operation: &StartTLSResponse{}},
	}},
	{"password modify", passwordModifyRequestBytes, &Message{
		ID: 2,
		Op: &ExtendedRequest{
			Name:  OIDPasswordModify,
			Value: passwordModifyValue(),
			Operation: &PasswordModifyRequest{
				UserIdentity: []byte("uid=john,dc=example,dc=com"),
				OldPassword:  []byte("old"),
				NewPassword:  []byte("new"),
			},
		},
	}},
	{"unknown extended request", unknownExtendedRequestBytes, &Message{
		ID: 2,
		Op: &ExtendedRequest{Name: "1.3.6.1.4.1.99999.1", Value: []byte("payload")},
	}},
	{"intermediate response", intermediateResponseBytes, &Message{
		ID: 3,
		Op: &IntermediateResponse{Name: "1.3.6.1.4.1.4203.1.9.1.4", Value: []byte{0x01, 0x02}},
	}},
	{"controls", delWithControlsBytes, &Message{
		ID: 9,
		Op: &DelRequest{DN: "cn=Jane,dc=example,dc=com"},
		Controls: []Control{
			&ManageDsaIT{},
			&OpaqueControl{ControlBase: ControlBase{Criticality: true}, Type: "1.2.3.4", Value: []byte("raw")},
		},
	}},
	{"empty controls", delWithEmptyControlsBytes, &Message{
		ID:       9,
		Op:       &DelRequest{DN: "cn=Jane,dc=example,dc=com"},
		Controls: []Control{},
	}},
	{"paged results response", pagedSearchDoneBytes, &Message{
		ID:       4,
		Op:       &SearchResultDone{},
		Controls: []Control{&PagedResults{Size: 32, Cookie: []byte("test")}},
	}},
}

func TestMessages(t *testing.T) {
	codec := NewCodec()
	for _, test := range testsMessages {
		t.Run(test.name, func(t *testing.T) {
			in := test.in()
			got, err := codec.Decode(in)
			require.NoError(t, err)
			if diff := cmp.Diff(test.out, got); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}

			out, err := codec.EncodeMessage(test.out)
			require.NoError(t, err)
			savePcap(t, test.name, in, out)
			if diff := cmp.Diff(in, out); diff != "" {
				t.Errorf("EncodeMessage mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeMessageReverse(t *testing.T) {
	m := &Message{ID: 7, Op: &DelRequest{DN: "cn=Jane,dc=example,dc=com"}}
	buf := ber.NewBufferSize(8)
	buf.PutString("tail")
	require.NoError(t, Default.EncodeMessageReverse(buf, m))
	want := append(delRequestBytes(), "tail"...)
	assert.Equal(t, want, buf.Bytes())

	// a second message is prepended in front of the first
	require.NoError(t, Default.EncodeMessageReverse(buf, &Message{ID: 3, Op: &UnbindRequest{}}))
	assert.Equal(t, append(unbindBytes(), want...), buf.Bytes())
}

func TestEncodeMessageReverseFailureLeavesBuffer(t *testing.T) {
	buf := ber.NewBuffer()
	require.NoError(t, Default.EncodeMessageReverse(buf, &Message{ID: 3, Op: &UnbindRequest{}}))

	// the control is written before the search request fails
	bad := &Message{ID: 4, Op: &SearchRequest{}, Controls: []Control{&ManageDsaIT{}}}
	require.Error(t, Default.EncodeMessageReverse(buf, bad))
	assert.Equal(t, unbindBytes(), buf.Bytes())

	bad = &Message{ID: 4, Op: &DelRequest{DN: "cn=x"}, Controls: []Control{&OpaqueControl{}, &ManageDsaIT{}}}
	require.Error(t, Default.EncodeMessageReverse(buf, bad))
	assert.Equal(t, unbindBytes(), buf.Bytes())

	require.NoError(t, Default.EncodeMessageReverse(buf, &Message{ID: 10, Op: &AbandonRequest{MessageID: 5}}))
	assert.Equal(t, append(abandonRequestBytes(), unbindBytes()...), buf.Bytes())
}

var testsEncodeErrors = []struct {
	name string
	in   *Message
	err  error
}{
	{"nil op", &Message{ID: 1}, ErrMissingOp},
	{"bind version", &Message{ID: 1, Op: &BindRequest{Version: 0}}, nil},
	{"search without filter", &Message{ID: 1, Op: &SearchRequest{}}, nil},
	{"reference without uri", &Message{ID: 1, Op: &SearchResultReference{}}, nil},
	{"negative abandon", &Message{ID: 1, Op: &AbandonRequest{MessageID: -1}}, nil},
	{"empty referral", &Message{ID: 1, Op: &SearchResultDone{Result: Result{Code: Referral, Referrals: []string{}}}}, nil},
	{"negative message id", &Message{ID: -1, Op: &UnbindRequest{}}, nil},
	{"control type", &Message{ID: 1, Op: &DelRequest{DN: "cn=x"}, Controls: []Control{
		&OpaqueControl{},
	}}, ErrEmptyOID},
	{"control value", &Message{ID: 1, Op: &SearchRequest{Filter: PresentFilter("cn")}, Controls: []Control{
		&SortRequest{},
	}}, nil},
	{"extended request without name", &Message{ID: 1, Op: &ExtendedRequest{}}, nil},
}

func TestEncodeErrors(t *testing.T) {
	for _, test := range testsEncodeErrors {
		t.Run(test.name, func(t *testing.T) {
			_, err := Marshal(test.in)
			require.Error(t, err)
			if test.err != nil {
				assert.ErrorIs(t, err, test.err)
			}
			var ee *EncodeError
			if test.in.Op != nil && errors.As(err, &ee) {
				assert.Equal(t, test.in.Op.Type(), ee.Op)
			}
		})
	}
}

func TestEncodeOperationPrecedence(t *testing.T) {
	// Operation wins over a stale raw Value.
	m := &Message{ID: 2, Op: &ExtendedRequest{
		Value: []byte("stale"),
		Operation: &PasswordModifyRequest{
			UserIdentity: []byte("uid=john,dc=example,dc=com"),
			OldPassword:  []byte("old"),
			NewPassword:  []byte("new"),
		},
	}}
	got, err := Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, passwordModifyRequestBytes(), got)
}

func BenchmarkEncodeSearchRequest(b *testing.B) {
	m, err := Unmarshal(searchRequestBytes())
	require.NoError(b, err)
	buf := ber.NewBufferSize(512)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Clear()
		if err := Default.EncodeMessageReverse(buf, m); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeSearchRequest(b *testing.B) {
	data := searchRequestBytes()
	mc := Default.NewMessageContainer()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mc.Reset()
		if _, err := mc.Feed(data); err != nil {
			b.Fatal(err)
		}
	}
}

func bindSimpleBytes() []byte {
	return tlv(0x30, integer(0x02, 1), tlv(0x60,
		integer(0x02, 3),
		str(0x04, "cn=admin,dc=example,dc=com"),
		str(0x80, "secret"),
	))
}

func bindAnonymousBytes() []byte {
	return []byte{0x30, 0x0c, 0x02, 0x01, 0x01, 0x60, 0x07, 0x02, 0x01, 0x03, 0x04, 0x00, 0x80, 0x00}
}

func bindSASLBytes() []byte {
	return tlv(0x30, integer(0x02, 2), tlv(0x60,
		integer(0x02, 3),
		str(0x04, ""),
		tlv(0xa3, str(0x04, "DIGEST-MD5"), str(0x04, "creds")),
	))
}

func bindSASLNoCredsBytes() []byte {
	return tlv(0x30, integer(0x02, 2), tlv(0x60,
		integer(0x02, 3),
		str(0x04, ""),
		tlv(0xa3, str(0x04, "EXTERNAL")),
	))
}

func bindResponseBytes() []byte {
	return tlv(0x30, integer(0x02, 2), tlv(0x61,
		enum(14), str(0x04, ""), str(0x04, ""),
		str(0x87, "challenge"),
	))
}

func unbindBytes() []byte {
	return []byte{0x30, 0x05, 0x02, 0x01, 0x03, 0x42, 0x00}
}

func searchFilterBytes() []byte {
	return tlv(0xa0,
		tlv(0xa3, str(0x04, "objectClass"), str(0x04, "person")),
		tlv(0xa1,
			tlv(0xa4, str(0x04, "cn"), tlv(0x30, str(0x80, "Jo"), str(0x81, "h"), str(0x82, "n"))),
			str(0x87, "mail"),
		),
		tlv(0xa2, tlv(0xa5, str(0x04, "age"), str(0x04, "30"))),
		tlv(0xa9, str(0x81, "caseExactMatch"), str(0x82, "cn"), str(0x83, "John"), boolean(0x84, true)),
	)
}

func searchRequestBytes() []byte {
	return tlv(0x30, integer(0x02, 4), tlv(0x63,
		str(0x04, "dc=example,dc=com"),
		enum(2), enum(0),
		integer(0x02, 100), integer(0x02, 0),
		boolean(0x01, false),
		searchFilterBytes(),
		tlv(0x30, str(0x04, "cn"), str(0x04, "mail")),
	))
}

func searchPresentBytes() []byte {
	return tlv(0x30, integer(0x02, 4), tlv(0x63,
		str(0x04, ""),
		enum(0), enum(3),
		integer(0x02, 0), integer(0x02, 30),
		boolean(0x01, true),
		str(0x87, "objectClass"),
		tlv(0x30),
	))
}

func searchResultEntryBytes() []byte {
	return tlv(0x30, integer(0x02, 4), tlv(0x64,
		str(0x04, "cn=John,dc=example,dc=com"),
		tlv(0x30,
			tlv(0x30, str(0x04, "cn"), tlv(0x31, str(0x04, "John"), str(0x04, "Johnny"))),
			tlv(0x30, str(0x04, "jpegPhoto"), tlv(0x31)),
		),
	))
}

func searchResultDoneBytes() []byte {
	return tlv(0x30, integer(0x02, 4), tlv(0x65,
		enum(10), str(0x04, "dc=example,dc=com"), str(0x04, "see referral"),
		tlv(0xa3, str(0x04, "ldap://other.example.com/")),
	))
}

func searchResultReferenceBytes() []byte {
	return tlv(0x30, integer(0x02, 4), tlv(0x73,
		str(0x04, "ldap://a.example.com/dc=example,dc=com"),
		str(0x04, "ldap://b.example.com/dc=example,dc=com"),
	))
}

func modifyRequestBytes() []byte {
	return tlv(0x30, integer(0x02, 5), tlv(0x66,
		str(0x04, "cn=John,dc=example,dc=com"),
		tlv(0x30,
			tlv(0x30, enum(2), tlv(0x30, str(0x04, "mail"), tlv(0x31, str(0x04, "john@example.com")))),
			tlv(0x30, enum(1), tlv(0x30, str(0x04, "description"), tlv(0x31))),
		),
	))
}

func modifyResponseBytes() []byte {
	return []byte{0x30, 0x0c, 0x02, 0x01, 0x05, 0x67, 0x07, 0x0a, 0x01, 0x00, 0x04, 0x00, 0x04, 0x00}
}

func addRequestBytes() []byte {
	return tlv(0x30, integer(0x02, 6), tlv(0x68,
		str(0x04, "cn=Jane,dc=example,dc=com"),
		tlv(0x30,
			tlv(0x30, str(0x04, "objectClass"), tlv(0x31, str(0x04, "top"), str(0x04, "person"))),
			tlv(0x30, str(0x04, "cn"), tlv(0x31, str(0x04, "Jane"))),
		),
	))
}

func addResponseBytes() []byte {
	return tlv(0x30, integer(0x02, 6), tlv(0x69, enum(68), str(0x04, ""), str(0x04, "entry exists")))
}

func delRequestBytes() []byte {
	return tlv(0x30, integer(0x02, 7), str(0x4a, "cn=Jane,dc=example,dc=com"))
}

func delResponseBytes() []byte {
	return tlv(0x30, integer(0x02, 7), tlv(0x6b, enum(32), str(0x04, "dc=example,dc=com"), str(0x04, "")))
}

func modifyDNRequestBytes() []byte {
	return tlv(0x30, integer(0x02, 8), tlv(0x6c,
		str(0x04, "cn=testModify,ou=users,ou=system"),
		str(0x04, "cn=testDNModify"),
		boolean(0x01, true),
		str(0x80, "ou=system"),
	))
}

func modifyDNResponseBytes() []byte {
	return tlv(0x30, integer(0x02, 8), tlv(0x6d, enum(0), str(0x04, ""), str(0x04, "")))
}

// compareRequestBytes is a CompareRequest for test=value on
// cn=testModify,ou=users,ou=system.
func compareRequestBytes() []byte {
	return []byte{
		0x30, 0x36,
		0x02, 0x01, 0x01,
		0x6e, 0x31,
		0x04, 0x20,
		'c', 'n', '=', 't', 'e', 's', 't', 'M', 'o', 'd', 'i', 'f', 'y', ',',
		'o', 'u', '=', 'u', 's', 'e', 'r', 's', ',',
		'o', 'u', '=', 's', 'y', 's', 't', 'e', 'm',
		0x30, 0x0d,
		0x04, 0x04, 't', 'e', 's', 't',
		0x04, 0x05, 'v', 'a', 'l', 'u', 'e',
	}
}

func compareResponseBytes() []byte {
	return tlv(0x30, integer(0x02, 1), tlv(0x6f, enum(6), str(0x04, ""), str(0x04, "")))
}

func abandonRequestBytes() []byte {
	return []byte{0x30, 0x06, 0x02, 0x01, 0x0a, 0x50, 0x01, 0x05}
}

func startTLSRequestBytes() []byte {
	return tlv(0x30, integer(0x02, 1), tlv(0x77, str(0x80, OIDStartTLS)))
}

func startTLSResponseBytes() []byte {
	return tlv(0x30, integer(0x02, 1), tlv(0x78, enum(0), str(0x04, ""), str(0x04, ""), str(0x8a, OIDStartTLS)))
}

func passwordModifyValue() []byte {
	return tlv(0x30, str(0x80, "uid=john,dc=example,dc=com"), str(0x81, "old"), str(0x82, "new"))
}

func passwordModifyRequestBytes() []byte {
	return tlv(0x30, integer(0x02, 2), tlv(0x77,
		str(0x80, OIDPasswordModify),
		tlv(0x81, passwordModifyValue()),
	))
}

func unknownExtendedRequestBytes() []byte {
	return tlv(0x30, integer(0x02, 2), tlv(0x77,
		str(0x80, "1.3.6.1.4.1.99999.1"),
		str(0x81, "payload"),
	))
}

func intermediateResponseBytes() []byte {
	return tlv(0x30, integer(0x02, 3), tlv(0x79,
		str(0x80, "1.3.6.1.4.1.4203.1.9.1.4"),
		tlv(0x81, []byte{0x01, 0x02}),
	))
}

func delWithControlsBytes() []byte {
	return tlv(0x30, integer(0x02, 9), str(0x4a, "cn=Jane,dc=example,dc=com"), tlv(0xa0,
		tlv(0x30, str(0x04, OIDManageDsaIT)),
		tlv(0x30, str(0x04, "1.2.3.4"), boolean(0x01, true), str(0x04, "raw")),
	))
}

func delWithEmptyControlsBytes() []byte {
	return tlv(0x30, integer(0x02, 9), str(0x4a, "cn=Jane,dc=example,dc=com"), tlv(0xa0))
}

func pagedSearchDoneBytes() []byte {
	return tlv(0x30, integer(0x02, 4),
		tlv(0x65, enum(0), str(0x04, ""), str(0x04, "")),
		tlv(0xa0, tlv(0x30,
			str(0x04, OIDPagedResults),
			tlv(0x04, tlv(0x30, integer(0x02, 32), str(0x04, "test"))),
		)),
	)
}
