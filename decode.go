// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ldapwire

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ldapwire/ldapwire/ber"
	"github.com/ldapwire/ldapwire/dn"
	"github.com/ldapwire/ldapwire/oid"
)

// decodeState is what the LDAP grammar fills.
type decodeState struct {
	codec *Codec
	msg   *Message
	hasID bool
	op    OpType
	hasOp bool

	// attribute lists of SearchResultEntry and AddRequest
	attrs *[]PartialAttribute
	// attribute being decoded, also the modification of a ModifyRequest change
	attr *PartialAttribute

	filters []filterFrame // open and, or and not filters
	ava     *AttributeValueAssertion
	substr  *SubstringsFilter
	ext     *ExtensibleFilter

	factory ControlFactory
	control Control
}

type filterFrame struct {
	tag      ber.Tag
	children []Filter
}

type (
	ldapAction     = ber.Action[*decodeState]
	ldapContainer  = ber.Container[*decodeState]
	ldapTransition = ber.Transition[*decodeState]
)

// resultCarrier is implemented by every response embedding a Result.
type resultCarrier interface {
	result() *Result
}

func (r *Result) result() *Result { return r }

func opOf[T ProtocolOp](d *decodeState) T {
	return d.msg.Op.(T)
}

const (
	stMessage ber.State = iota + 1
	stMessageID

	stBindRequest
	stBindVersion
	stBindName
	stBindSimple
	stBindSASL
	stBindMechanism
	stBindCredentials

	stResponse
	stResultCode
	stMatchedDN
	stDiagnostic
	stReferral
	stReferralURI
	stServerSASLCreds
	stResponseName
	stResponseValue

	stUnbind

	stSearchRequest
	stSearchBase
	stSearchScope
	stSearchDeref
	stSearchSizeLimit
	stSearchTimeLimit
	stSearchTypesOnly
	stSearchAttributes
	stSearchAttribute

	stFilterComposite
	stFilterDone
	stFilterAVA
	stFilterAVADesc
	stSubstrings
	stSubstringsType
	stSubstringsSeq
	stSubInitial
	stSubAny
	stSubFinal
	stExtensible
	stExtRule
	stExtType
	stExtValue
	stExtDNAttributes

	stSearchResultEntry
	stEntryDN
	stAttrList
	stAttr
	stAttrType
	stAttrVals
	stAttrVal

	stSearchReference
	stSearchReferenceURI

	stModifyRequest
	stModifyObject
	stModifyChanges
	stModChange
	stModOperation
	stModification
	stModType
	stModValues
	stModValue

	stAddRequest
	stAddEntry

	stDelRequest

	stModDNRequest
	stModDNEntry
	stModDNNewRDN
	stModDNDeleteOld
	stModDNNewSuperior

	stCompareRequest
	stCompareEntry
	stCompareAVA
	stCompareAttr
	stCompareValue

	stAbandon

	stExtendedRequest
	stExtReqName
	stExtReqValue

	stIntermediate
	stIntermediateName
	stIntermediateValue

	stControls
	stControl
	stControlOID
	stControlCritical
	stControlValue
)

var stateNames = map[ber.State]string{
	stMessage:            "MESSAGE",
	stMessageID:          "MESSAGE_ID",
	stBindRequest:        "BIND_REQUEST",
	stBindVersion:        "BIND_VERSION",
	stBindName:           "BIND_NAME",
	stBindSimple:         "BIND_SIMPLE",
	stBindSASL:           "BIND_SASL",
	stBindMechanism:      "BIND_MECHANISM",
	stBindCredentials:    "BIND_CREDENTIALS",
	stResponse:           "RESPONSE",
	stResultCode:         "RESULT_CODE",
	stMatchedDN:          "MATCHED_DN",
	stDiagnostic:         "DIAGNOSTIC_MESSAGE",
	stReferral:           "REFERRAL",
	stReferralURI:        "REFERRAL_URI",
	stServerSASLCreds:    "SERVER_SASL_CREDS",
	stResponseName:       "RESPONSE_NAME",
	stResponseValue:      "RESPONSE_VALUE",
	stUnbind:             "UNBIND_REQUEST",
	stSearchRequest:      "SEARCH_REQUEST",
	stSearchBase:         "SEARCH_BASE",
	stSearchScope:        "SEARCH_SCOPE",
	stSearchDeref:        "SEARCH_DEREF_ALIASES",
	stSearchSizeLimit:    "SEARCH_SIZE_LIMIT",
	stSearchTimeLimit:    "SEARCH_TIME_LIMIT",
	stSearchTypesOnly:    "SEARCH_TYPES_ONLY",
	stSearchAttributes:   "SEARCH_ATTRIBUTES",
	stSearchAttribute:    "SEARCH_ATTRIBUTE",
	stFilterComposite:    "FILTER_SET",
	stFilterDone:         "FILTER_DONE",
	stFilterAVA:          "FILTER_AVA",
	stFilterAVADesc:      "FILTER_AVA_DESC",
	stSubstrings:         "SUBSTRINGS",
	stSubstringsType:     "SUBSTRINGS_TYPE",
	stSubstringsSeq:      "SUBSTRINGS_SEQ",
	stSubInitial:         "SUBSTRINGS_INITIAL",
	stSubAny:             "SUBSTRINGS_ANY",
	stSubFinal:           "SUBSTRINGS_FINAL",
	stExtensible:         "EXTENSIBLE_MATCH",
	stExtRule:            "EXTENSIBLE_RULE",
	stExtType:            "EXTENSIBLE_TYPE",
	stExtValue:           "EXTENSIBLE_VALUE",
	stExtDNAttributes:    "EXTENSIBLE_DN_ATTRIBUTES",
	stSearchResultEntry:  "SEARCH_RESULT_ENTRY",
	stEntryDN:            "ENTRY_DN",
	stAttrList:           "ATTRIBUTES",
	stAttr:               "ATTRIBUTE",
	stAttrType:           "ATTRIBUTE_TYPE",
	stAttrVals:           "ATTRIBUTE_VALUES",
	stAttrVal:            "ATTRIBUTE_VALUE",
	stSearchReference:    "SEARCH_RESULT_REFERENCE",
	stSearchReferenceURI: "SEARCH_RESULT_REFERENCE_URI",
	stModifyRequest:      "MODIFY_REQUEST",
	stModifyObject:       "MODIFY_OBJECT",
	stModifyChanges:      "MODIFY_CHANGES",
	stModChange:          "MODIFY_CHANGE",
	stModOperation:       "MODIFY_OPERATION",
	stModification:       "MODIFICATION",
	stModType:            "MODIFICATION_TYPE",
	stModValues:          "MODIFICATION_VALUES",
	stModValue:           "MODIFICATION_VALUE",
	stAddRequest:         "ADD_REQUEST",
	stAddEntry:           "ADD_ENTRY",
	stDelRequest:         "DEL_REQUEST",
	stModDNRequest:       "MODIFY_DN_REQUEST",
	stModDNEntry:         "MODIFY_DN_ENTRY",
	stModDNNewRDN:        "MODIFY_DN_NEW_RDN",
	stModDNDeleteOld:     "MODIFY_DN_DELETE_OLD_RDN",
	stModDNNewSuperior:   "MODIFY_DN_NEW_SUPERIOR",
	stCompareRequest:     "COMPARE_REQUEST",
	stCompareEntry:       "COMPARE_ENTRY",
	stCompareAVA:         "COMPARE_AVA",
	stCompareAttr:        "COMPARE_ATTRIBUTE",
	stCompareValue:       "COMPARE_VALUE",
	stAbandon:            "ABANDON_REQUEST",
	stExtendedRequest:    "EXTENDED_REQUEST",
	stExtReqName:         "EXTENDED_REQUEST_NAME",
	stExtReqValue:        "EXTENDED_REQUEST_VALUE",
	stIntermediate:       "INTERMEDIATE_RESPONSE",
	stIntermediateName:   "INTERMEDIATE_RESPONSE_NAME",
	stIntermediateValue:  "INTERMEDIATE_RESPONSE_VALUE",
	stControls:           "CONTROLS",
	stControl:            "CONTROL",
	stControlOID:         "CONTROL_TYPE",
	stControlCritical:    "CONTROL_CRITICALITY",
	stControlValue:       "CONTROL_VALUE",
}

// states in which the protocolOp may be complete; controls may follow.
var opEndStates = []ber.State{
	stBindSimple, stBindMechanism, stBindCredentials,
	stDiagnostic, stReferralURI, stServerSASLCreds, stResponseName, stResponseValue,
	stUnbind,
	stSearchAttributes, stSearchAttribute,
	stAttrList, stAttrVals, stAttrVal,
	stSearchReferenceURI,
	stModifyChanges, stModValues, stModValue,
	stDelRequest,
	stModDNDeleteOld, stModDNNewSuperior,
	stCompareValue,
	stAbandon,
	stExtReqName, stExtReqValue,
	stIntermediate, stIntermediateName, stIntermediateValue,
}

// states a filter may start in.
var filterStates = []ber.State{stSearchTypesOnly, stFilterComposite, stFilterDone}

var ldapGrammar = newLDAPGrammar()

// parentDepth returns the number of constructed TLVs enclosing the current
// one.
func parentDepth(c *ldapContainer) int {
	d := c.Depth()
	if c.TLV().Tag.Constructed() {
		d--
	}
	return d
}

// in runs a only when the current TLV is nested exactly depth levels deep.
func in(depth int, a ldapAction) ldapAction {
	return func(c *ldapContainer) error {
		if parentDepth(c) != depth {
			return ber.ErrUnexpectedTag
		}
		if a == nil {
			return nil
		}
		return a(c)
	}
}

// inFilter is in for the parts of a filter, whose depth depends on how many
// and/or/not filters are open.
func inFilter(offset int, a ldapAction) ldapAction {
	return func(c *ldapContainer) error {
		if parentDepth(c) != 2+len(c.Value.filters)+offset {
			return ber.ErrUnexpectedTag
		}
		if a == nil {
			return nil
		}
		return a(c)
	}
}

func startOp(newOp func() ProtocolOp) ldapAction {
	return func(c *ldapContainer) error {
		d := c.Value
		d.msg.Op = newOp()
		d.op = d.msg.Op.Type()
		d.hasOp = true
		return nil
	}
}

func value(c *ldapContainer) string {
	return string(c.TLV().Value)
}

func parseEnum(c *ldapContainer, max int) (int, error) {
	v, err := ber.ParseInteger[int](c.TLV().Value, 0, max)
	if err != nil {
		return 0, protocolError("%w", err)
	}
	return v, nil
}

func (d *decodeState) checkDN(s, field string, required bool) error {
	if s == "" {
		if required {
			return protocolError("empty %s", field)
		}
		return nil
	}
	parsed, err := dn.Parse(s)
	if err != nil {
		return invalidDN(err)
	}
	if d.codec.Schema != nil && d.op.IsRequest() {
		if err := parsed.Validate(d.codec.Schema); err != nil {
			return invalidDN(err)
		}
	}
	return nil
}

func checkAttribute(s string) error {
	if !dn.ValidAttributeDescription(s) {
		return invalidAttribute(fmt.Errorf("%w: %q", dn.ErrInvalidAttributeDescription, s))
	}
	return nil
}

// checkSelector accepts the attribute selectors of a SearchRequest.
func checkSelector(s string) error {
	switch {
	case s == "*", s == "+", s == "1.1":
		return nil
	case strings.HasPrefix(s, "@"):
		return checkAttribute(s[1:])
	}
	return checkAttribute(s)
}

func checkOID(s, field string) error {
	if s == "" {
		return protocolError("empty %s", field)
	}
	if !oid.IsOID(s) {
		return protocolError("%s %q: %w", field, s, oid.ErrInvalidOID)
	}
	return nil
}

func (d *decodeState) filterSlot() error {
	if n := len(d.filters); n > 0 {
		if top := d.filters[n-1]; top.tag == tagFilterNot && len(top.children) > 0 {
			return protocolError("not filter with more than one component")
		}
		return nil
	}
	if opOf[*SearchRequest](d).Filter != nil {
		return ber.ErrUnexpectedTag
	}
	return nil
}

func (d *decodeState) addFilter(f Filter) error {
	if err := d.filterSlot(); err != nil {
		return err
	}
	if n := len(d.filters); n > 0 {
		d.filters[n-1].children = append(d.filters[n-1].children, f)
		return nil
	}
	opOf[*SearchRequest](d).Filter = f
	return nil
}

func openFilterSet(c *ldapContainer) error {
	d := c.Value
	if err := d.filterSlot(); err != nil {
		return err
	}
	d.filters = append(d.filters, filterFrame{tag: c.TLV().Tag})
	return nil
}

func closeFilterSet(c *ldapContainer) error {
	d := c.Value
	top := d.filters[len(d.filters)-1]
	d.filters = d.filters[:len(d.filters)-1]
	children := top.children
	if children == nil {
		children = []Filter{}
	}
	var f Filter
	switch top.tag {
	case tagFilterAnd:
		f = AndFilter(children)
	case tagFilterOr:
		f = OrFilter(children)
	default:
		if len(children) != 1 {
			return protocolError("not filter must have exactly one component")
		}
		f = &NotFilter{Filter: children[0]}
	}
	c.SetState(stFilterDone)
	return d.addFilter(f)
}

func closeAVA(c *ldapContainer) error {
	if c.State() != stFilterDone {
		return protocolError("incomplete attribute value assertion")
	}
	return nil
}

func closeSubstrings(c *ldapContainer) error {
	s := c.Value.substr
	switch c.State() {
	case stSubstrings, stSubstringsType:
		return protocolError("incomplete substrings filter")
	}
	if s.Initial == nil && len(s.Any) == 0 && s.Final == nil {
		return protocolError("substrings filter without substrings")
	}
	c.SetState(stFilterDone)
	return nil
}

func closeExtensible(c *ldapContainer) error {
	e := c.Value.ext
	switch c.State() {
	case stExtValue, stExtDNAttributes:
	default:
		return protocolError("extensible match without matchValue")
	}
	if e.MatchingRule == "" && e.Attribute == "" {
		return protocolError("extensible match needs a matchingRule or a type")
	}
	c.SetState(stFilterDone)
	return nil
}

func newAttribute(c *ldapContainer) error {
	d := c.Value
	*d.attrs = append(*d.attrs, PartialAttribute{})
	d.attr = &(*d.attrs)[len(*d.attrs)-1]
	return nil
}

func attributeType(c *ldapContainer) error {
	s := value(c)
	if err := checkAttribute(s); err != nil {
		return err
	}
	c.Value.attr.Type = s
	return nil
}

func attributeValue(c *ldapContainer) error {
	a := c.Value.attr
	a.Values = append(a.Values, c.TLV().Value)
	return nil
}

func closeValues(c *ldapContainer) error {
	d := c.Value
	if d.op == OpAddRequest && len(d.attr.Values) == 0 {
		return protocolError("attribute %s without values", d.attr.Type)
	}
	return nil
}

func closeExtendedRequest(c *ldapContainer) error {
	d := c.Value
	r := opOf[*ExtendedRequest](d)
	if r.Name == "" {
		return protocolError("extended request without requestName")
	}
	f := d.codec.ExtendedOperation(r.Name)
	if f == nil {
		return nil
	}
	v := f.NewRequest()
	if r.Value != nil {
		if err := f.DecodeRequest(v, r.Value); err != nil {
			return protocolError("%s request value: %w", r.Name, err)
		}
	}
	r.Operation = v
	return nil
}

func closeExtendedResponse(c *ldapContainer) error {
	d := c.Value
	r := opOf[*ExtendedResponse](d)
	if r.Name == "" {
		return nil
	}
	f := d.codec.ExtendedOperation(r.Name)
	if f == nil {
		return nil
	}
	v := f.NewResponse()
	if r.Value != nil {
		if err := f.DecodeResponse(v, r.Value); err != nil {
			return fmt.Errorf("%s response value: %w", r.Name, err)
		}
	}
	r.Operation = v
	return nil
}

func closeIntermediate(c *ldapContainer) error {
	d := c.Value
	r := opOf[*IntermediateResponse](d)
	if r.Name == "" {
		return nil
	}
	f := d.codec.IntermediateResponse(r.Name)
	if f == nil {
		return nil
	}
	v := f.NewResponse()
	if r.Value != nil {
		if err := f.DecodeResponse(v, r.Value); err != nil {
			return fmt.Errorf("%s intermediate value: %w", r.Name, err)
		}
	}
	r.Operation = v
	return nil
}

func newLDAPGrammar() *ber.Grammar[*decodeState] {
	g := ber.NewGrammar[*decodeState]("LDAPMessage")
	for s, name := range stateNames {
		g.NameState(s, name)
	}
	type t = ldapTransition

	// LDAPMessage ::= SEQUENCE { messageID, protocolOp, controls [0] OPTIONAL }
	g.Add(ber.StateStart, ber.TagSequence, t{Next: stMessage})
	g.Add(stMessage, ber.TagInteger, t{Next: stMessageID, Action: func(c *ldapContainer) error {
		id, err := ber.ParseInteger[int32](c.TLV().Value, 0, math.MaxInt32)
		if err != nil {
			return err
		}
		c.Value.msg.ID = id
		c.Value.hasID = true
		return nil
	}})

	// BindRequest
	g.Add(stMessageID, OpBindRequest.Tag(), t{Next: stBindRequest, Action: startOp(func() ProtocolOp { return &BindRequest{} })})
	g.Add(stBindRequest, ber.TagInteger, t{Next: stBindVersion, Action: in(2, func(c *ldapContainer) error {
		v, err := ber.ParseInteger[int](c.TLV().Value, 1, 127)
		if err != nil {
			return protocolError("bind version: %w", err)
		}
		opOf[*BindRequest](c.Value).Version = v
		return nil
	})})
	g.Add(stBindVersion, ber.TagOctetString, t{Next: stBindName, Action: in(2, func(c *ldapContainer) error {
		name := value(c)
		if err := c.Value.checkDN(name, "bind name", false); err != nil {
			return err
		}
		opOf[*BindRequest](c.Value).Name = name
		return nil
	})})
	g.Add(stBindName, tagAuthSimple, t{Next: stBindSimple, End: true, Action: in(2, func(c *ldapContainer) error {
		opOf[*BindRequest](c.Value).Simple = c.TLV().Value
		return nil
	})})
	g.Add(stBindName, tagAuthSASL, t{Next: stBindSASL, Action: in(2, func(c *ldapContainer) error {
		opOf[*BindRequest](c.Value).SASL = &SASLCredentials{}
		return nil
	})})
	g.Add(stBindSASL, ber.TagOctetString, t{Next: stBindMechanism, End: true, Action: in(3, func(c *ldapContainer) error {
		opOf[*BindRequest](c.Value).SASL.Mechanism = value(c)
		return nil
	})})
	g.Add(stBindMechanism, ber.TagOctetString, t{Next: stBindCredentials, End: true, Action: in(3, func(c *ldapContainer) error {
		opOf[*BindRequest](c.Value).SASL.Credentials = c.TLV().Value
		return nil
	})})

	// LDAPResult responses
	for _, op := range []OpType{
		OpBindResponse, OpSearchResultDone, OpModifyResponse, OpAddResponse,
		OpDelResponse, OpModifyDNResponse, OpCompareResponse, OpExtendedResponse,
	} {
		tr := t{Next: stResponse, Action: startOp(func() ProtocolOp { return newResponse(op, Result{}) })}
		if op == OpExtendedResponse {
			tr.Close = closeExtendedResponse
		}
		g.Add(stMessageID, op.Tag(), tr)
	}
	g.Add(stResponse, ber.TagEnumerated, t{Next: stResultCode, Action: in(2, func(c *ldapContainer) error {
		code, err := ber.ParseInteger[int](c.TLV().Value, 0, math.MaxInt32)
		if err != nil {
			return err
		}
		c.Value.msg.Op.(resultCarrier).result().Code = ResultCode(code)
		return nil
	})})
	g.Add(stResultCode, ber.TagOctetString, t{Next: stMatchedDN, Action: in(2, func(c *ldapContainer) error {
		c.Value.msg.Op.(resultCarrier).result().MatchedDN = value(c)
		return nil
	})})
	g.Add(stMatchedDN, ber.TagOctetString, t{Next: stDiagnostic, End: true, Action: in(2, func(c *ldapContainer) error {
		c.Value.msg.Op.(resultCarrier).result().DiagnosticMessage = value(c)
		return nil
	})})
	g.Add(stDiagnostic, tagReferral, t{Next: stReferral, Action: in(2, func(c *ldapContainer) error {
		c.Value.msg.Op.(resultCarrier).result().Referrals = []string{}
		return nil
	})})
	g.AddAll([]ber.State{stReferral, stReferralURI}, ber.TagOctetString, t{Next: stReferralURI, End: true, Action: in(3, func(c *ldapContainer) error {
		r := c.Value.msg.Op.(resultCarrier).result()
		r.Referrals = append(r.Referrals, value(c))
		return nil
	})})
	g.AddAll([]ber.State{stDiagnostic, stReferralURI}, tagServerSASLCreds, t{Next: stServerSASLCreds, End: true, Action: in(2, func(c *ldapContainer) error {
		r, ok := c.Value.msg.Op.(*BindResponse)
		if !ok {
			return ber.ErrUnexpectedTag
		}
		r.ServerSASLCreds = c.TLV().Value
		return nil
	})})
	g.AddAll([]ber.State{stDiagnostic, stReferralURI}, tagResponseName, t{Next: stResponseName, End: true, Action: in(2, func(c *ldapContainer) error {
		r, ok := c.Value.msg.Op.(*ExtendedResponse)
		if !ok {
			return ber.ErrUnexpectedTag
		}
		name := value(c)
		if err := checkOID(name, "responseName"); err != nil {
			return err
		}
		r.Name = name
		return nil
	})})
	g.AddAll([]ber.State{stDiagnostic, stReferralURI, stResponseName}, tagResponseValue, t{Next: stResponseValue, End: true, Action: in(2, func(c *ldapContainer) error {
		r, ok := c.Value.msg.Op.(*ExtendedResponse)
		if !ok {
			return ber.ErrUnexpectedTag
		}
		r.Value = c.TLV().Value
		return nil
	})})

	// UnbindRequest ::= [APPLICATION 2] NULL
	g.Add(stMessageID, OpUnbindRequest.Tag(), t{Next: stUnbind, End: true, Action: func(c *ldapContainer) error {
		startOp(func() ProtocolOp { return &UnbindRequest{} })(c)
		if len(c.TLV().Value) != 0 {
			return errors.New("unbind request with a value")
		}
		return nil
	}})

	// SearchRequest
	g.Add(stMessageID, OpSearchRequest.Tag(), t{Next: stSearchRequest, Action: startOp(func() ProtocolOp { return &SearchRequest{} })})
	g.Add(stSearchRequest, ber.TagOctetString, t{Next: stSearchBase, Action: in(2, func(c *ldapContainer) error {
		base := value(c)
		if err := c.Value.checkDN(base, "baseObject", false); err != nil {
			return err
		}
		opOf[*SearchRequest](c.Value).BaseDN = base
		return nil
	})})
	g.Add(stSearchBase, ber.TagEnumerated, t{Next: stSearchScope, Action: in(2, func(c *ldapContainer) error {
		v, err := parseEnum(c, int(ScopeSubordinateSubtree))
		opOf[*SearchRequest](c.Value).Scope = SearchScope(v)
		return err
	})})
	g.Add(stSearchScope, ber.TagEnumerated, t{Next: stSearchDeref, Action: in(2, func(c *ldapContainer) error {
		v, err := parseEnum(c, int(DerefAlways))
		opOf[*SearchRequest](c.Value).DerefAliases = DerefAliases(v)
		return err
	})})
	g.Add(stSearchDeref, ber.TagInteger, t{Next: stSearchSizeLimit, Action: in(2, func(c *ldapContainer) error {
		v, err := ber.ParseInteger[int32](c.TLV().Value, 0, math.MaxInt32)
		if err != nil {
			return protocolError("sizeLimit: %w", err)
		}
		opOf[*SearchRequest](c.Value).SizeLimit = v
		return nil
	})})
	g.Add(stSearchSizeLimit, ber.TagInteger, t{Next: stSearchTimeLimit, Action: in(2, func(c *ldapContainer) error {
		v, err := ber.ParseInteger[int32](c.TLV().Value, 0, math.MaxInt32)
		if err != nil {
			return protocolError("timeLimit: %w", err)
		}
		opOf[*SearchRequest](c.Value).TimeLimit = v
		return nil
	})})
	g.Add(stSearchTimeLimit, ber.TagBoolean, t{Next: stSearchTypesOnly, Action: in(2, func(c *ldapContainer) error {
		v, err := ber.ParseBoolean(c.TLV().Value)
		opOf[*SearchRequest](c.Value).TypesOnly = v
		return err
	})})

	// Filter
	for _, tag := range []ber.Tag{tagFilterAnd, tagFilterOr, tagFilterNot} {
		g.AddAll(filterStates, tag, t{Next: stFilterComposite, Action: inFilter(0, openFilterSet), Close: closeFilterSet})
	}
	avaFilters := map[ber.Tag]func() (Filter, *AttributeValueAssertion){
		tagFilterEquality: func() (Filter, *AttributeValueAssertion) {
			f := &EqualityFilter{}
			return f, (*AttributeValueAssertion)(f)
		},
		tagFilterGreater: func() (Filter, *AttributeValueAssertion) {
			f := &GreaterOrEqualFilter{}
			return f, (*AttributeValueAssertion)(f)
		},
		tagFilterLess: func() (Filter, *AttributeValueAssertion) {
			f := &LessOrEqualFilter{}
			return f, (*AttributeValueAssertion)(f)
		},
		tagFilterApprox: func() (Filter, *AttributeValueAssertion) {
			f := &ApproxFilter{}
			return f, (*AttributeValueAssertion)(f)
		},
	}
	for tag, newFilter := range avaFilters {
		g.AddAll(filterStates, tag, t{Next: stFilterAVA, Close: closeAVA, Action: inFilter(0, func(c *ldapContainer) error {
			f, ava := newFilter()
			c.Value.ava = ava
			return c.Value.addFilter(f)
		})})
	}
	g.Add(stFilterAVA, ber.TagOctetString, t{Next: stFilterAVADesc, Action: inFilter(1, func(c *ldapContainer) error {
		s := value(c)
		if err := checkAttribute(s); err != nil {
			return err
		}
		c.Value.ava.Attribute = s
		return nil
	})})
	g.Add(stFilterAVADesc, ber.TagOctetString, t{Next: stFilterDone, Action: inFilter(1, func(c *ldapContainer) error {
		c.Value.ava.Value = c.TLV().Value
		return nil
	})})
	g.AddAll(filterStates, tagFilterPresent, t{Next: stFilterDone, Action: inFilter(0, func(c *ldapContainer) error {
		s := value(c)
		if err := checkAttribute(s); err != nil {
			return err
		}
		return c.Value.addFilter(PresentFilter(s))
	})})
	g.AddAll(filterStates, tagFilterSubstrings, t{Next: stSubstrings, Close: closeSubstrings, Action: inFilter(0, func(c *ldapContainer) error {
		c.Value.substr = &SubstringsFilter{}
		return c.Value.addFilter(c.Value.substr)
	})})
	g.Add(stSubstrings, ber.TagOctetString, t{Next: stSubstringsType, Action: inFilter(1, func(c *ldapContainer) error {
		s := value(c)
		if err := checkAttribute(s); err != nil {
			return err
		}
		c.Value.substr.Attribute = s
		return nil
	})})
	g.Add(stSubstringsType, ber.TagSequence, t{Next: stSubstringsSeq, Action: inFilter(1, nil)})
	g.Add(stSubstringsSeq, tagSubInitial, t{Next: stSubInitial, Action: inFilter(2, func(c *ldapContainer) error {
		c.Value.substr.Initial = c.TLV().Value
		return nil
	})})
	g.AddAll([]ber.State{stSubstringsSeq, stSubInitial, stSubAny}, tagSubAny, t{Next: stSubAny, Action: inFilter(2, func(c *ldapContainer) error {
		s := c.Value.substr
		s.Any = append(s.Any, c.TLV().Value)
		return nil
	})})
	g.AddAll([]ber.State{stSubstringsSeq, stSubInitial, stSubAny}, tagSubFinal, t{Next: stSubFinal, Action: inFilter(2, func(c *ldapContainer) error {
		c.Value.substr.Final = c.TLV().Value
		return nil
	})})
	g.AddAll(filterStates, tagFilterExtensible, t{Next: stExtensible, Close: closeExtensible, Action: inFilter(0, func(c *ldapContainer) error {
		c.Value.ext = &ExtensibleFilter{}
		return c.Value.addFilter(c.Value.ext)
	})})
	g.Add(stExtensible, tagMatchingRule, t{Next: stExtRule, Action: inFilter(1, func(c *ldapContainer) error {
		if err := checkOIDOrDescr(value(c)); err != nil {
			return err
		}
		c.Value.ext.MatchingRule = value(c)
		return nil
	})})
	g.AddAll([]ber.State{stExtensible, stExtRule}, tagMatchType, t{Next: stExtType, Action: inFilter(1, func(c *ldapContainer) error {
		s := value(c)
		if err := checkAttribute(s); err != nil {
			return err
		}
		c.Value.ext.Attribute = s
		return nil
	})})
	g.AddAll([]ber.State{stExtensible, stExtRule, stExtType}, tagMatchValue, t{Next: stExtValue, Action: inFilter(1, func(c *ldapContainer) error {
		c.Value.ext.Value = c.TLV().Value
		return nil
	})})
	g.Add(stExtValue, tagDNAttributes, t{Next: stExtDNAttributes, Action: inFilter(1, func(c *ldapContainer) error {
		v, err := ber.ParseBoolean(c.TLV().Value)
		c.Value.ext.DNAttributes = v
		return err
	})})

	// AttributeSelection
	g.Add(stFilterDone, ber.TagSequence, t{Next: stSearchAttributes, End: true, Action: in(2, func(c *ldapContainer) error {
		if len(c.Value.filters) != 0 || opOf[*SearchRequest](c.Value).Filter == nil {
			return ber.ErrUnexpectedTag
		}
		return nil
	})})
	g.AddAll([]ber.State{stSearchAttributes, stSearchAttribute}, ber.TagOctetString, t{Next: stSearchAttribute, End: true, Action: in(3, func(c *ldapContainer) error {
		s := value(c)
		if err := checkSelector(s); err != nil {
			return err
		}
		r := opOf[*SearchRequest](c.Value)
		r.Attributes = append(r.Attributes, s)
		return nil
	})})

	// SearchResultEntry
	g.Add(stMessageID, OpSearchResultEntry.Tag(), t{Next: stSearchResultEntry, Action: func(c *ldapContainer) error {
		e := &SearchResultEntry{}
		startOp(func() ProtocolOp { return e })(c)
		c.Value.attrs = &e.Attributes
		return nil
	}})
	g.Add(stSearchResultEntry, ber.TagOctetString, t{Next: stEntryDN, Action: in(2, func(c *ldapContainer) error {
		name := value(c)
		if err := c.Value.checkDN(name, "objectName", false); err != nil {
			return err
		}
		opOf[*SearchResultEntry](c.Value).DN = name
		return nil
	})})
	g.Add(stEntryDN, ber.TagSequence, t{Next: stAttrList, End: true, Action: in(2, nil)})

	// AttributeList and PartialAttributeList
	g.AddAll([]ber.State{stAttrList, stAttrVals, stAttrVal}, ber.TagSequence, t{Next: stAttr, Action: in(3, newAttribute)})
	g.Add(stAttr, ber.TagOctetString, t{Next: stAttrType, Action: in(4, attributeType)})
	g.Add(stAttrType, ber.TagSet, t{Next: stAttrVals, End: true, Action: in(4, nil), Close: closeValues})
	g.AddAll([]ber.State{stAttrVals, stAttrVal}, ber.TagOctetString, t{Next: stAttrVal, End: true, Action: in(5, attributeValue)})

	// SearchResultReference ::= [APPLICATION 19] SEQUENCE SIZE (1..MAX) OF uri URI
	g.Add(stMessageID, OpSearchResultReference.Tag(), t{Next: stSearchReference, Action: startOp(func() ProtocolOp { return &SearchResultReference{} })})
	g.AddAll([]ber.State{stSearchReference, stSearchReferenceURI}, ber.TagOctetString, t{Next: stSearchReferenceURI, End: true, Action: in(2, func(c *ldapContainer) error {
		r := opOf[*SearchResultReference](c.Value)
		r.URIs = append(r.URIs, value(c))
		return nil
	})})

	// ModifyRequest
	g.Add(stMessageID, OpModifyRequest.Tag(), t{Next: stModifyRequest, Action: startOp(func() ProtocolOp { return &ModifyRequest{} })})
	g.Add(stModifyRequest, ber.TagOctetString, t{Next: stModifyObject, Action: in(2, func(c *ldapContainer) error {
		object := value(c)
		if err := c.Value.checkDN(object, "object", true); err != nil {
			return err
		}
		opOf[*ModifyRequest](c.Value).Object = object
		return nil
	})})
	g.Add(stModifyObject, ber.TagSequence, t{Next: stModifyChanges, End: true, Action: in(2, nil)})
	g.AddAll([]ber.State{stModifyChanges, stModValues, stModValue}, ber.TagSequence, t{Next: stModChange, Action: in(3, func(c *ldapContainer) error {
		r := opOf[*ModifyRequest](c.Value)
		r.Changes = append(r.Changes, Change{})
		c.Value.attr = &r.Changes[len(r.Changes)-1].Modification
		return nil
	})})
	g.Add(stModChange, ber.TagEnumerated, t{Next: stModOperation, Action: in(4, func(c *ldapContainer) error {
		v, err := parseEnum(c, int(ModifyIncrement))
		r := opOf[*ModifyRequest](c.Value)
		r.Changes[len(r.Changes)-1].Operation = ModifyOperation(v)
		return err
	})})
	g.Add(stModOperation, ber.TagSequence, t{Next: stModification, Action: in(4, nil)})
	g.Add(stModification, ber.TagOctetString, t{Next: stModType, Action: in(5, attributeType)})
	g.Add(stModType, ber.TagSet, t{Next: stModValues, End: true, Action: in(5, nil)})
	g.AddAll([]ber.State{stModValues, stModValue}, ber.TagOctetString, t{Next: stModValue, End: true, Action: in(6, attributeValue)})

	// AddRequest
	g.Add(stMessageID, OpAddRequest.Tag(), t{Next: stAddRequest, Action: func(c *ldapContainer) error {
		r := &AddRequest{}
		startOp(func() ProtocolOp { return r })(c)
		c.Value.attrs = &r.Attributes
		return nil
	}})
	g.Add(stAddRequest, ber.TagOctetString, t{Next: stAddEntry, Action: in(2, func(c *ldapContainer) error {
		entry := value(c)
		if err := c.Value.checkDN(entry, "entry", true); err != nil {
			return err
		}
		opOf[*AddRequest](c.Value).Entry = entry
		return nil
	})})
	g.Add(stAddEntry, ber.TagSequence, t{Next: stAttrList, End: true, Action: in(2, nil)})

	// DelRequest ::= [APPLICATION 10] LDAPDN
	g.Add(stMessageID, OpDelRequest.Tag(), t{Next: stDelRequest, End: true, Action: func(c *ldapContainer) error {
		r := &DelRequest{}
		startOp(func() ProtocolOp { return r })(c)
		entry := value(c)
		if err := c.Value.checkDN(entry, "entry", true); err != nil {
			return err
		}
		r.DN = entry
		return nil
	}})

	// ModifyDNRequest
	g.Add(stMessageID, OpModifyDNRequest.Tag(), t{Next: stModDNRequest, Action: startOp(func() ProtocolOp { return &ModifyDNRequest{} })})
	g.Add(stModDNRequest, ber.TagOctetString, t{Next: stModDNEntry, Action: in(2, func(c *ldapContainer) error {
		entry := value(c)
		if err := c.Value.checkDN(entry, "entry", true); err != nil {
			return err
		}
		opOf[*ModifyDNRequest](c.Value).Entry = entry
		return nil
	})})
	g.Add(stModDNEntry, ber.TagOctetString, t{Next: stModDNNewRDN, Action: in(2, func(c *ldapContainer) error {
		rdn := value(c)
		if err := c.Value.checkDN(rdn, "newrdn", true); err != nil {
			return err
		}
		if parsed, _ := dn.Parse(rdn); len(parsed) != 1 {
			return invalidDN(fmt.Errorf("%w: %q is not an RDN", dn.ErrInvalidDN, rdn))
		}
		opOf[*ModifyDNRequest](c.Value).NewRDN = rdn
		return nil
	})})
	g.Add(stModDNNewRDN, ber.TagBoolean, t{Next: stModDNDeleteOld, End: true, Action: in(2, func(c *ldapContainer) error {
		v, err := ber.ParseBoolean(c.TLV().Value)
		opOf[*ModifyDNRequest](c.Value).DeleteOldRDN = v
		return err
	})})
	g.Add(stModDNDeleteOld, tagNewSuperior, t{Next: stModDNNewSuperior, End: true, Action: in(2, func(c *ldapContainer) error {
		sup := value(c)
		if err := c.Value.checkDN(sup, "newSuperior", false); err != nil {
			return err
		}
		opOf[*ModifyDNRequest](c.Value).NewSuperior = &sup
		return nil
	})})

	// CompareRequest
	g.Add(stMessageID, OpCompareRequest.Tag(), t{Next: stCompareRequest, Action: startOp(func() ProtocolOp { return &CompareRequest{} })})
	g.Add(stCompareRequest, ber.TagOctetString, t{Next: stCompareEntry, Action: in(2, func(c *ldapContainer) error {
		entry := value(c)
		if err := c.Value.checkDN(entry, "entry", true); err != nil {
			return err
		}
		opOf[*CompareRequest](c.Value).Entry = entry
		return nil
	})})
	g.Add(stCompareEntry, ber.TagSequence, t{Next: stCompareAVA, Action: in(2, nil)})
	g.Add(stCompareAVA, ber.TagOctetString, t{Next: stCompareAttr, Action: in(3, func(c *ldapContainer) error {
		s := value(c)
		if err := checkAttribute(s); err != nil {
			return err
		}
		if schema := c.Value.codec.Schema; schema != nil {
			typ, _, _ := strings.Cut(s, ";")
			if _, ok := schema.AttributeType(typ); !ok {
				return invalidAttribute(fmt.Errorf("%w: %s", dn.ErrUnknownAttributeType, typ))
			}
		}
		opOf[*CompareRequest](c.Value).Attribute = s
		return nil
	})})
	g.Add(stCompareAttr, ber.TagOctetString, t{Next: stCompareValue, End: true, Action: in(3, func(c *ldapContainer) error {
		opOf[*CompareRequest](c.Value).Value = c.TLV().Value
		return nil
	})})

	// AbandonRequest ::= [APPLICATION 16] MessageID
	g.Add(stMessageID, OpAbandonRequest.Tag(), t{Next: stAbandon, End: true, Action: func(c *ldapContainer) error {
		r := &AbandonRequest{}
		startOp(func() ProtocolOp { return r })(c)
		id, err := ber.ParseInteger[int32](c.TLV().Value, 0, math.MaxInt32)
		r.MessageID = id
		return err
	}})

	// ExtendedRequest
	g.Add(stMessageID, OpExtendedRequest.Tag(), t{Next: stExtendedRequest, Close: closeExtendedRequest, Action: startOp(func() ProtocolOp { return &ExtendedRequest{} })})
	g.Add(stExtendedRequest, tagRequestName, t{Next: stExtReqName, End: true, Action: in(2, func(c *ldapContainer) error {
		name := value(c)
		if err := checkOID(name, "requestName"); err != nil {
			return err
		}
		opOf[*ExtendedRequest](c.Value).Name = name
		return nil
	})})
	g.Add(stExtReqName, tagRequestValue, t{Next: stExtReqValue, End: true, Action: in(2, func(c *ldapContainer) error {
		opOf[*ExtendedRequest](c.Value).Value = c.TLV().Value
		return nil
	})})

	// IntermediateResponse
	g.Add(stMessageID, OpIntermediateResponse.Tag(), t{Next: stIntermediate, End: true, Close: closeIntermediate, Action: startOp(func() ProtocolOp { return &IntermediateResponse{} })})
	g.Add(stIntermediate, tagIntermediateOID, t{Next: stIntermediateName, End: true, Action: in(2, func(c *ldapContainer) error {
		name := value(c)
		if err := checkOID(name, "responseName"); err != nil {
			return err
		}
		opOf[*IntermediateResponse](c.Value).Name = name
		return nil
	})})
	g.AddAll([]ber.State{stIntermediate, stIntermediateName}, tagIntermediateVal, t{Next: stIntermediateValue, End: true, Action: in(2, func(c *ldapContainer) error {
		opOf[*IntermediateResponse](c.Value).Value = c.TLV().Value
		return nil
	})})

	// Controls ::= SEQUENCE OF control Control
	g.AddAll(opEndStates, tagControls, t{Next: stControls, End: true, Action: in(1, func(c *ldapContainer) error {
		c.Value.msg.Controls = []Control{}
		return nil
	})})
	g.AddAll([]ber.State{stControls, stControlOID, stControlCritical, stControlValue}, ber.TagSequence, t{Next: stControl, Action: in(2, nil)})
	g.Add(stControl, ber.TagOctetString, t{Next: stControlOID, End: true, Action: in(3, func(c *ldapContainer) error {
		d := c.Value
		name := value(c)
		if err := checkOID(name, "controlType"); err != nil {
			return err
		}
		d.factory = d.codec.controlFactory(d.op, name)
		if d.factory != nil {
			d.control = d.factory.NewControl()
		} else {
			d.control = &OpaqueControl{Type: name}
		}
		d.msg.Controls = append(d.msg.Controls, d.control)
		return nil
	})})
	g.Add(stControlOID, ber.TagBoolean, t{Next: stControlCritical, End: true, Action: in(3, func(c *ldapContainer) error {
		v, err := ber.ParseBoolean(c.TLV().Value)
		if err != nil {
			return err
		}
		c.Value.control.SetCritical(v)
		return nil
	})})
	g.AddAll([]ber.State{stControlOID, stControlCritical}, ber.TagOctetString, t{Next: stControlValue, End: true, Action: in(3, func(c *ldapContainer) error {
		d := c.Value
		if opaque, ok := d.control.(*OpaqueControl); ok {
			opaque.Value = c.TLV().Value
			return nil
		}
		if err := d.factory.DecodeValue(d.control, c.TLV().Value); err != nil {
			return protocolError("control %s: %w", d.control.OID(), err)
		}
		return nil
	})})

	return g
}

// checkOIDOrDescr accepts a matching rule given by name or by OID.
func checkOIDOrDescr(s string) error {
	if s == "" {
		return protocolError("empty matchingRule")
	}
	if s[0] >= '0' && s[0] <= '9' {
		return checkOID(s, "matchingRule")
	}
	if !dn.ValidAttributeDescription(s) || strings.Contains(s, ";") {
		return protocolError("invalid matchingRule %q", s)
	}
	return nil
}

// MessageContainer decodes LDAPMessages incrementally. Bytes are fed as they
// arrive; once Done reports true the message is available and Reset must be
// called before feeding the next one. A MessageContainer is not safe for
// concurrent use.
type MessageContainer struct {
	codec *Codec
	state decodeState
	c     *ldapContainer
}

// NewMessageContainer returns an empty container decoding with c.
func (c *Codec) NewMessageContainer() *MessageContainer {
	mc := &MessageContainer{
		codec: c,
		c:     ber.NewContainer(ldapGrammar, c.decodeOptions()),
	}
	mc.Reset()
	return mc
}

// Reset drops the decoded message and any partial input.
func (mc *MessageContainer) Reset() {
	mc.c.Reset()
	mc.state = decodeState{
		codec:   mc.codec,
		msg:     &Message{},
		filters: mc.state.filters[:0],
	}
	mc.c.Value = &mc.state
}

// Feed decodes data and returns how many bytes it consumed. It stops at the
// end of a message, so fewer than len(data) bytes are consumed when data also
// holds the start of the next one.
func (mc *MessageContainer) Feed(data []byte) (int, error) {
	n, err := ber.Decode(data, mc.c)
	if err != nil {
		return n, mc.fail(err)
	}
	if mc.c.Done() {
		mc.codec.decoded(mc.state.msg)
	}
	return n, nil
}

// Done reports whether a whole message has been decoded.
func (mc *MessageContainer) Done() bool {
	return mc.c.Done()
}

// Started reports whether part of a message has been fed.
func (mc *MessageContainer) Started() bool {
	return mc.c.Started()
}

// Message returns the decoded message, or nil before Done.
func (mc *MessageContainer) Message() *Message {
	if !mc.c.Done() {
		return nil
	}
	return mc.state.msg
}

// fail turns semantic failures in requests into a *ResponseError.
func (mc *MessageContainer) fail(err error) error {
	d := &mc.state
	var rc *resultCodeError
	if errors.As(err, &rc) && d.hasID && d.hasOp && d.op.IsRequest() {
		err = &ResponseError{
			MessageID: d.msg.ID,
			Response:  NewErrorResponse(d.op, rc.code, rc.err.Error()),
			Err:       err,
		}
	}
	mc.codec.Logger.Printf("ldapwire: decode failed: %v", err)
	if mc.codec.OnDecodeError != nil {
		mc.codec.OnDecodeError(err)
	}
	return err
}

func (c *Codec) decoded(m *Message) {
	if c.Logger.Enabled() {
		c.Logger.Printf("ldapwire: decoded %s", m)
	}
	if c.OnDecode != nil {
		c.OnDecode(m)
	}
}

// Decode decodes exactly one LDAPMessage from data.
func (c *Codec) Decode(data []byte) (*Message, error) {
	mc := c.NewMessageContainer()
	if err := ber.DecodeAll(data, mc.c); err != nil {
		return nil, mc.fail(err)
	}
	c.decoded(mc.state.msg)
	return mc.state.msg, nil
}

// Unmarshal decodes one LDAPMessage with the Default codec.
func Unmarshal(data []byte) (*Message, error) {
	return Default.Decode(data)
}

// DecodeExtendedResponse decodes the value of r with the factory registered
// for requestOID. Servers may leave out the responseName, in which case only
// the caller knows which operation r answers.
func (c *Codec) DecodeExtendedResponse(r *ExtendedResponse, requestOID string) error {
	if r.Operation != nil {
		return nil
	}
	f := c.ExtendedOperation(requestOID)
	if f == nil {
		return fmt.Errorf("%w %s", ErrNoFactory, requestOID)
	}
	v := f.NewResponse()
	if r.Value != nil {
		if err := f.DecodeResponse(v, r.Value); err != nil {
			return err
		}
	}
	r.Operation = v
	return nil
}
