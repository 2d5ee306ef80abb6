// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ldapwire

import (
	"fmt"

	"github.com/ldapwire/ldapwire/ber"
)

// OpType is the APPLICATION tag number of a protocolOp.
type OpType int

const (
	OpBindRequest           OpType = 0
	OpBindResponse          OpType = 1
	OpUnbindRequest         OpType = 2
	OpSearchRequest         OpType = 3
	OpSearchResultEntry     OpType = 4
	OpSearchResultDone      OpType = 5
	OpModifyRequest         OpType = 6
	OpModifyResponse        OpType = 7
	OpAddRequest            OpType = 8
	OpAddResponse           OpType = 9
	OpDelRequest            OpType = 10
	OpDelResponse           OpType = 11
	OpModifyDNRequest       OpType = 12
	OpModifyDNResponse      OpType = 13
	OpCompareRequest        OpType = 14
	OpCompareResponse       OpType = 15
	OpAbandonRequest        OpType = 16
	OpSearchResultReference OpType = 19
	OpExtendedRequest       OpType = 23
	OpExtendedResponse      OpType = 24
	OpIntermediateResponse  OpType = 25
)

var opTypeNames = map[OpType]string{
	OpBindRequest:           "BindRequest",
	OpBindResponse:          "BindResponse",
	OpUnbindRequest:         "UnbindRequest",
	OpSearchRequest:         "SearchRequest",
	OpSearchResultEntry:     "SearchResultEntry",
	OpSearchResultDone:      "SearchResultDone",
	OpModifyRequest:         "ModifyRequest",
	OpModifyResponse:        "ModifyResponse",
	OpAddRequest:            "AddRequest",
	OpAddResponse:           "AddResponse",
	OpDelRequest:            "DelRequest",
	OpDelResponse:           "DelResponse",
	OpModifyDNRequest:       "ModifyDNRequest",
	OpModifyDNResponse:      "ModifyDNResponse",
	OpCompareRequest:        "CompareRequest",
	OpCompareResponse:       "CompareResponse",
	OpAbandonRequest:        "AbandonRequest",
	OpSearchResultReference: "SearchResultReference",
	OpExtendedRequest:       "ExtendedRequest",
	OpExtendedResponse:      "ExtendedResponse",
	OpIntermediateResponse:  "IntermediateResponse",
}

func (t OpType) String() string {
	if name, ok := opTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("OpType(%d)", int(t))
}

// Tag returns the identifier of the protocolOp on the wire. UnbindRequest,
// DelRequest and AbandonRequest are primitive, all others constructed.
func (t OpType) Tag() ber.Tag {
	switch t {
	case OpUnbindRequest, OpDelRequest, OpAbandonRequest:
		return ber.ApplicationTag(int(t), false)
	}
	return ber.ApplicationTag(int(t), true)
}

// IsRequest reports whether t is sent by clients. Controls of requests are
// looked up among the request controls, all others among the response
// controls.
func (t OpType) IsRequest() bool {
	switch t {
	case OpBindRequest, OpUnbindRequest, OpSearchRequest, OpModifyRequest, OpAddRequest,
		OpDelRequest, OpModifyDNRequest, OpCompareRequest, OpAbandonRequest, OpExtendedRequest:
		return true
	}
	return false
}

// ResponseType returns the type of the response a server sends for the
// request type t. ok is false for requests without a response and for
// responses.
func (t OpType) ResponseType() (OpType, bool) {
	switch t {
	case OpBindRequest:
		return OpBindResponse, true
	case OpSearchRequest:
		return OpSearchResultDone, true
	case OpModifyRequest:
		return OpModifyResponse, true
	case OpAddRequest:
		return OpAddResponse, true
	case OpDelRequest:
		return OpDelResponse, true
	case OpModifyDNRequest:
		return OpModifyDNResponse, true
	case OpCompareRequest:
		return OpCompareResponse, true
	case OpExtendedRequest:
		return OpExtendedResponse, true
	}
	return 0, false
}

// ProtocolOp is one of the operation types below. The set is closed: the
// encoders live in this package.
type ProtocolOp interface {
	Type() OpType
	encode(buf *ber.Buffer, c *Codec) error
}

// Message is an LDAPMessage.
//
//	LDAPMessage ::= SEQUENCE {
//	     messageID       MessageID,
//	     protocolOp      CHOICE { ... },
//	     controls       [0] Controls OPTIONAL }
type Message struct {
	ID int32
	Op ProtocolOp
	// Controls is nil when the message carries no controls. A non-nil empty
	// slice is encoded as an empty [0] Controls.
	Controls []Control
}

func (m *Message) String() string {
	if m.Op == nil {
		return fmt.Sprintf("Message(%d)", m.ID)
	}
	return fmt.Sprintf("Message(%d, %s, %d controls)", m.ID, m.Op.Type(), len(m.Controls))
}

// Result is the LDAPResult shared by most responses.
type Result struct {
	Code              ResultCode
	MatchedDN         string
	DiagnosticMessage string
	// Referrals is nil when the referral field is absent.
	Referrals []string
}

// Err returns nil for Success and a *ResultError otherwise.
func (r *Result) Err() error {
	if r.Code == Success {
		return nil
	}
	return &ResultError{Result: *r}
}

// ResultError turns an unsuccessful Result into an error.
type ResultError struct {
	Result Result
}

func (e *ResultError) Error() string {
	if e.Result.DiagnosticMessage == "" {
		return fmt.Sprintf("ldap: %s", e.Result.Code)
	}
	return fmt.Sprintf("ldap: %s: %s", e.Result.Code, e.Result.DiagnosticMessage)
}

// PartialAttribute is an attribute description with its values. Values is
// nil when decoded from an empty SET, never for present values.
type PartialAttribute struct {
	Type   string
	Values [][]byte
}

// AttributeValueAssertion pairs an attribute description with a value.
type AttributeValueAssertion struct {
	Attribute string
	Value     []byte
}

// BindRequest ::= [APPLICATION 0] SEQUENCE { version, name, authentication }
type BindRequest struct {
	Version int
	Name    string
	// Simple is the password of a simple bind. It is ignored when SASL is
	// set.
	Simple []byte
	SASL   *SASLCredentials
}

// SASLCredentials is the sasl [3] choice of AuthenticationChoice.
type SASLCredentials struct {
	Mechanism string
	// Credentials is nil when absent.
	Credentials []byte
}

type BindResponse struct {
	Result
	// ServerSASLCreds is nil when absent.
	ServerSASLCreds []byte
}

type UnbindRequest struct{}

// SearchScope is the scope of a SearchRequest.
type SearchScope int

const (
	ScopeBaseObject   SearchScope = 0
	ScopeSingleLevel  SearchScope = 1
	ScopeWholeSubtree SearchScope = 2
	// ScopeSubordinateSubtree is defined by draft-sermersheim-ldap-subordinate-scope.
	ScopeSubordinateSubtree SearchScope = 3
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	case ScopeSubordinateSubtree:
		return "subordinate"
	}
	return fmt.Sprintf("SearchScope(%d)", int(s))
}

// DerefAliases is the derefAliases field of a SearchRequest.
type DerefAliases int

const (
	NeverDerefAliases   DerefAliases = 0
	DerefInSearching    DerefAliases = 1
	DerefFindingBaseObj DerefAliases = 2
	DerefAlways         DerefAliases = 3
)

type SearchRequest struct {
	BaseDN       string
	Scope        SearchScope
	DerefAliases DerefAliases
	SizeLimit    int32
	TimeLimit    int32
	TypesOnly    bool
	Filter       Filter
	Attributes   []string
}

type SearchResultEntry struct {
	DN         string
	Attributes []PartialAttribute
}

type SearchResultDone struct {
	Result
}

type SearchResultReference struct {
	URIs []string
}

// ModifyOperation is the operation of a ModifyRequest change.
type ModifyOperation int

const (
	ModifyAdd       ModifyOperation = 0
	ModifyDelete    ModifyOperation = 1
	ModifyReplace   ModifyOperation = 2
	ModifyIncrement ModifyOperation = 3 // RFC 4525
)

func (o ModifyOperation) String() string {
	switch o {
	case ModifyAdd:
		return "add"
	case ModifyDelete:
		return "delete"
	case ModifyReplace:
		return "replace"
	case ModifyIncrement:
		return "increment"
	}
	return fmt.Sprintf("ModifyOperation(%d)", int(o))
}

type Change struct {
	Operation    ModifyOperation
	Modification PartialAttribute
}

type ModifyRequest struct {
	Object  string
	Changes []Change
}

type ModifyResponse struct {
	Result
}

type AddRequest struct {
	Entry      string
	Attributes []PartialAttribute
}

type AddResponse struct {
	Result
}

// DelRequest ::= [APPLICATION 10] LDAPDN
type DelRequest struct {
	DN string
}

type DelResponse struct {
	Result
}

type ModifyDNRequest struct {
	Entry        string
	NewRDN       string
	DeleteOldRDN bool
	// NewSuperior is nil when absent.
	NewSuperior *string
}

type ModifyDNResponse struct {
	Result
}

type CompareRequest struct {
	Entry string
	AttributeValueAssertion
}

type CompareResponse struct {
	Result
}

// AbandonRequest ::= [APPLICATION 16] MessageID
type AbandonRequest struct {
	MessageID int32
}

// ExtendedRequest carries the raw requestValue and, when a factory for Name
// is registered, its decoded form in Operation. When encoding, Operation
// takes precedence over Value.
type ExtendedRequest struct {
	Name string
	// Value is nil when absent.
	Value     []byte
	Operation ExtendedValue
}

type ExtendedResponse struct {
	Result
	// Name is the responseName, empty when absent.
	Name string
	// Value is nil when absent.
	Value     []byte
	Operation ExtendedValue
}

type IntermediateResponse struct {
	// Name is the responseName, empty when absent.
	Name string
	// Value is nil when absent.
	Value     []byte
	Operation ExtendedValue
}

func (*BindRequest) Type() OpType           { return OpBindRequest }
func (*BindResponse) Type() OpType          { return OpBindResponse }
func (*UnbindRequest) Type() OpType         { return OpUnbindRequest }
func (*SearchRequest) Type() OpType         { return OpSearchRequest }
func (*SearchResultEntry) Type() OpType     { return OpSearchResultEntry }
func (*SearchResultDone) Type() OpType      { return OpSearchResultDone }
func (*SearchResultReference) Type() OpType { return OpSearchResultReference }
func (*ModifyRequest) Type() OpType         { return OpModifyRequest }
func (*ModifyResponse) Type() OpType        { return OpModifyResponse }
func (*AddRequest) Type() OpType            { return OpAddRequest }
func (*AddResponse) Type() OpType           { return OpAddResponse }
func (*DelRequest) Type() OpType            { return OpDelRequest }
func (*DelResponse) Type() OpType           { return OpDelResponse }
func (*ModifyDNRequest) Type() OpType       { return OpModifyDNRequest }
func (*ModifyDNResponse) Type() OpType      { return OpModifyDNResponse }
func (*CompareRequest) Type() OpType        { return OpCompareRequest }
func (*CompareResponse) Type() OpType       { return OpCompareResponse }
func (*AbandonRequest) Type() OpType        { return OpAbandonRequest }
func (*ExtendedRequest) Type() OpType       { return OpExtendedRequest }
func (*ExtendedResponse) Type() OpType      { return OpExtendedResponse }
func (*IntermediateResponse) Type() OpType  { return OpIntermediateResponse }

// newResponse returns an empty response of type t carrying r, or nil when t
// is not a response type that carries an LDAPResult.
func newResponse(t OpType, r Result) ProtocolOp {
	switch t {
	case OpBindResponse:
		return &BindResponse{Result: r}
	case OpSearchResultDone:
		return &SearchResultDone{Result: r}
	case OpModifyResponse:
		return &ModifyResponse{Result: r}
	case OpAddResponse:
		return &AddResponse{Result: r}
	case OpDelResponse:
		return &DelResponse{Result: r}
	case OpModifyDNResponse:
		return &ModifyDNResponse{Result: r}
	case OpCompareResponse:
		return &CompareResponse{Result: r}
	case OpExtendedResponse:
		return &ExtendedResponse{Result: r}
	}
	return nil
}

// NewErrorResponse builds the response a server sends for a failed request
// of type t. It returns nil when t has no response.
func NewErrorResponse(t OpType, code ResultCode, diagnostic string) ProtocolOp {
	rt, ok := t.ResponseType()
	if !ok {
		return nil
	}
	return newResponse(rt, Result{Code: code, DiagnosticMessage: diagnostic})
}
