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
)

// Control types registered by NewCodec.
const (
	OIDCascade          = "1.3.6.1.4.1.18060.0.0.1"
	OIDEntryChange      = "2.16.840.1.113730.3.4.7"
	OIDManageDsaIT      = "2.16.840.1.113730.3.4.2"
	OIDPagedResults     = "1.2.840.113556.1.4.319"
	OIDPersistentSearch = "2.16.840.1.113730.3.4.3"
	OIDProxiedAuthz     = "2.16.840.1.113730.3.4.18"
	OIDSortRequest      = "1.2.840.113556.1.4.473"
	OIDSortResponse     = "1.2.840.113556.1.4.474"
	OIDSubentries       = "1.3.6.1.4.1.4203.1.10.1"
)

// decodeValue runs g over a control or extended operation value.
func decodeValue[T any](g *ber.Grammar[T], v T, value []byte) error {
	c := ber.NewContainer(g, ber.DecodeOptions{})
	c.Value = v
	return ber.DecodeAll(value, c)
}

func wrongControl(want string, got Control) error {
	return fmt.Errorf("%w: want %s, got %T", ErrControlType, want, got)
}

// -- value-less controls ------------------------------------------------------

// ManageDsaIT (RFC 3296) has no value.
type ManageDsaIT struct{ ControlBase }

func (*ManageDsaIT) OID() string { return OIDManageDsaIT }

// Cascade asks the server to delete a whole subtree. It has no value.
type Cascade struct{ ControlBase }

func (*Cascade) OID() string { return OIDCascade }

type emptyControlFactory struct {
	oid string
	new func() Control
}

func (f emptyControlFactory) OID() string         { return f.oid }
func (f emptyControlFactory) NewControl() Control { return f.new() }

func (f emptyControlFactory) EncodeValue(*ber.Buffer, Control) (bool, error) {
	return false, nil
}

func (f emptyControlFactory) DecodeValue(_ Control, value []byte) error {
	if len(value) != 0 {
		return fmt.Errorf("control %s takes no value", f.oid)
	}
	return nil
}

// ManageDsaITFactory encodes the ManageDsaIT control.
var ManageDsaITFactory ControlFactory = emptyControlFactory{OIDManageDsaIT, func() Control { return &ManageDsaIT{} }}

// CascadeFactory encodes the Cascade control.
var CascadeFactory ControlFactory = emptyControlFactory{OIDCascade, func() Control { return &Cascade{} }}

// -- Subentries (RFC 3672) ----------------------------------------------------

// Subentries controls the visibility of subentries in a search.
type Subentries struct {
	ControlBase
	Visibility bool
}

func (*Subentries) OID() string { return OIDSubentries }

var subentriesGrammar = ber.NewGrammar[*Subentries]("subentries").
	Add(ber.StateStart, ber.TagBoolean, ber.Transition[*Subentries]{Next: 1, End: true, Action: func(c *ber.Container[*Subentries]) error {
		v, err := ber.ParseBoolean(c.TLV().Value)
		c.Value.Visibility = v
		return err
	}})

type subentriesFactory struct{}

// SubentriesFactory encodes the Subentries control.
var SubentriesFactory ControlFactory = subentriesFactory{}

func (subentriesFactory) OID() string         { return OIDSubentries }
func (subentriesFactory) NewControl() Control { return &Subentries{} }

func (subentriesFactory) EncodeValue(buf *ber.Buffer, c Control) (bool, error) {
	s, ok := c.(*Subentries)
	if !ok {
		return false, wrongControl("*Subentries", c)
	}
	ber.EncodeBoolean(buf, ber.TagBoolean, s.Visibility)
	return true, nil
}

func (subentriesFactory) DecodeValue(c Control, value []byte) error {
	s, ok := c.(*Subentries)
	if !ok {
		return wrongControl("*Subentries", c)
	}
	return decodeValue(subentriesGrammar, s, value)
}

// -- ProxiedAuthz (RFC 4370) --------------------------------------------------

// ProxiedAuthz carries the authorization identity, "dn:..." or "u:...", or
// the empty string for the anonymous identity. The value is not BER encoded.
type ProxiedAuthz struct {
	ControlBase
	AuthzID string
}

func (*ProxiedAuthz) OID() string { return OIDProxiedAuthz }

// ErrInvalidAuthzID is returned for a malformed authorization identity.
var ErrInvalidAuthzID = errors.New("invalid authzId")

// checkAuthzID validates an authzId (RFC 4513 5.2.1.8).
func checkAuthzID(id string) error {
	switch {
	case id == "", strings.HasPrefix(id, "u:"):
		return nil
	case strings.HasPrefix(id, "dn:"):
		if !dn.IsValid(id[3:]) {
			return fmt.Errorf("%w: %q", ErrInvalidAuthzID, id)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidAuthzID, id)
}

type proxiedAuthzFactory struct{}

// ProxiedAuthzFactory encodes the ProxiedAuthz control.
var ProxiedAuthzFactory ControlFactory = proxiedAuthzFactory{}

func (proxiedAuthzFactory) OID() string         { return OIDProxiedAuthz }
func (proxiedAuthzFactory) NewControl() Control { return &ProxiedAuthz{} }

func (proxiedAuthzFactory) EncodeValue(buf *ber.Buffer, c Control) (bool, error) {
	p, ok := c.(*ProxiedAuthz)
	if !ok {
		return false, wrongControl("*ProxiedAuthz", c)
	}
	if err := checkAuthzID(p.AuthzID); err != nil {
		return false, err
	}
	buf.PutString(p.AuthzID)
	return true, nil
}

func (proxiedAuthzFactory) DecodeValue(c Control, value []byte) error {
	p, ok := c.(*ProxiedAuthz)
	if !ok {
		return wrongControl("*ProxiedAuthz", c)
	}
	if err := checkAuthzID(string(value)); err != nil {
		return err
	}
	p.AuthzID = string(value)
	return nil
}

// -- PagedResults (RFC 2696) --------------------------------------------------

// PagedResults is the simple paged results control, used both in requests and
// in responses.
//
//	realSearchControlValue ::= SEQUENCE {
//	        size            INTEGER (0..maxInt),
//	        cookie          OCTET STRING }
type PagedResults struct {
	ControlBase
	Size int32
	// Cookie is empty on the first request and on the last response.
	Cookie []byte
}

func (*PagedResults) OID() string { return OIDPagedResults }

const (
	pagedSeq ber.State = iota + 1
	pagedSize
	pagedCookie
)

var pagedResultsGrammar = ber.NewGrammar[*PagedResults]("pagedResults").
	NameState(pagedSeq, "PAGED_SEQ").
	NameState(pagedSize, "PAGED_SIZE").
	NameState(pagedCookie, "PAGED_COOKIE").
	Add(ber.StateStart, ber.TagSequence, ber.Transition[*PagedResults]{Next: pagedSeq}).
	Add(pagedSeq, ber.TagInteger, ber.Transition[*PagedResults]{Next: pagedSize, Action: func(c *ber.Container[*PagedResults]) error {
		size, err := ber.ParseInteger[int32](c.TLV().Value, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		// Some clients send a negative size. Treat it as no limit.
		if size < 0 {
			size = math.MaxInt32
		}
		c.Value.Size = size
		return nil
	}}).
	Add(pagedSize, ber.TagOctetString, ber.Transition[*PagedResults]{Next: pagedCookie, End: true, Action: func(c *ber.Container[*PagedResults]) error {
		c.Value.Cookie = c.TLV().Value
		return nil
	}})

type pagedResultsFactory struct{}

// PagedResultsFactory encodes the PagedResults control.
var PagedResultsFactory ControlFactory = pagedResultsFactory{}

func (pagedResultsFactory) OID() string         { return OIDPagedResults }
func (pagedResultsFactory) NewControl() Control { return &PagedResults{} }

func (pagedResultsFactory) EncodeValue(buf *ber.Buffer, c Control) (bool, error) {
	p, ok := c.(*PagedResults)
	if !ok {
		return false, wrongControl("*PagedResults", c)
	}
	start := buf.Pos()
	ber.EncodeOctetString(buf, ber.TagOctetString, p.Cookie)
	ber.EncodeInteger(buf, ber.TagInteger, int64(p.Size))
	ber.EncodeSequence(buf, ber.TagSequence, start)
	return true, nil
}

func (pagedResultsFactory) DecodeValue(c Control, value []byte) error {
	p, ok := c.(*PagedResults)
	if !ok {
		return wrongControl("*PagedResults", c)
	}
	return decodeValue(pagedResultsGrammar, p, value)
}

// -- PersistentSearch (draft-ietf-ldapext-psearch) ----------------------------

// Change types of PersistentSearch and EntryChange.
const (
	ChangeTypeAdd    = 1
	ChangeTypeDelete = 2
	ChangeTypeModify = 4
	ChangeTypeModDN  = 8
	changeTypesAll   = ChangeTypeAdd | ChangeTypeDelete | ChangeTypeModify | ChangeTypeModDN
)

// PersistentSearch turns a search into a notification stream.
//
//	PersistentSearch ::= SEQUENCE {
//	        changeTypes INTEGER,
//	        changesOnly BOOLEAN,
//	        returnECs BOOLEAN }
type PersistentSearch struct {
	ControlBase
	ChangeTypes int
	ChangesOnly bool
	ReturnECs   bool
}

func (*PersistentSearch) OID() string { return OIDPersistentSearch }

const (
	psSeq ber.State = iota + 1
	psChangeTypes
	psChangesOnly
	psReturnECs
)

var persistentSearchGrammar = ber.NewGrammar[*PersistentSearch]("persistentSearch").
	NameState(psSeq, "PS_SEQ").
	NameState(psChangeTypes, "PS_CHANGE_TYPES").
	NameState(psChangesOnly, "PS_CHANGES_ONLY").
	NameState(psReturnECs, "PS_RETURN_ECS").
	Add(ber.StateStart, ber.TagSequence, ber.Transition[*PersistentSearch]{Next: psSeq}).
	Add(psSeq, ber.TagInteger, ber.Transition[*PersistentSearch]{Next: psChangeTypes, Action: func(c *ber.Container[*PersistentSearch]) error {
		v, err := ber.ParseInteger[int](c.TLV().Value, 1, changeTypesAll)
		c.Value.ChangeTypes = v
		return err
	}}).
	Add(psChangeTypes, ber.TagBoolean, ber.Transition[*PersistentSearch]{Next: psChangesOnly, Action: func(c *ber.Container[*PersistentSearch]) error {
		v, err := ber.ParseBoolean(c.TLV().Value)
		c.Value.ChangesOnly = v
		return err
	}}).
	Add(psChangesOnly, ber.TagBoolean, ber.Transition[*PersistentSearch]{Next: psReturnECs, End: true, Action: func(c *ber.Container[*PersistentSearch]) error {
		v, err := ber.ParseBoolean(c.TLV().Value)
		c.Value.ReturnECs = v
		return err
	}})

type persistentSearchFactory struct{}

// PersistentSearchFactory encodes the PersistentSearch control.
var PersistentSearchFactory ControlFactory = persistentSearchFactory{}

func (persistentSearchFactory) OID() string         { return OIDPersistentSearch }
func (persistentSearchFactory) NewControl() Control { return &PersistentSearch{} }

func (persistentSearchFactory) EncodeValue(buf *ber.Buffer, c Control) (bool, error) {
	p, ok := c.(*PersistentSearch)
	if !ok {
		return false, wrongControl("*PersistentSearch", c)
	}
	if p.ChangeTypes < 1 || p.ChangeTypes > changeTypesAll {
		return false, fmt.Errorf("persistent search: invalid change types %d", p.ChangeTypes)
	}
	start := buf.Pos()
	ber.EncodeBoolean(buf, ber.TagBoolean, p.ReturnECs)
	ber.EncodeBoolean(buf, ber.TagBoolean, p.ChangesOnly)
	ber.EncodeInteger(buf, ber.TagInteger, int64(p.ChangeTypes))
	ber.EncodeSequence(buf, ber.TagSequence, start)
	return true, nil
}

func (persistentSearchFactory) DecodeValue(c Control, value []byte) error {
	p, ok := c.(*PersistentSearch)
	if !ok {
		return wrongControl("*PersistentSearch", c)
	}
	return decodeValue(persistentSearchGrammar, p, value)
}

// -- EntryChange --------------------------------------------------------------

// EntryChange accompanies entries returned by a persistent search.
//
//	EntryChangeNotification ::= SEQUENCE {
//	        changeType ENUMERATED { add(1), delete(2), modify(4), modDN(8) },
//	        previousDN   LDAPDN OPTIONAL,     -- modifyDN ops. only
//	        changeNumber INTEGER OPTIONAL }   -- if supported
type EntryChange struct {
	ControlBase
	ChangeType int
	// PreviousDN is only set for ChangeTypeModDN. Nil when absent.
	PreviousDN *string
	// ChangeNumber is -1 when absent.
	ChangeNumber int64
}

func (*EntryChange) OID() string { return OIDEntryChange }

const (
	ecSeq ber.State = iota + 1
	ecType
	ecPreviousDN
	ecNumber
)

var entryChangeGrammar = ber.NewGrammar[*EntryChange]("entryChange").
	NameState(ecSeq, "EC_SEQ").
	NameState(ecType, "EC_TYPE").
	NameState(ecPreviousDN, "EC_PREVIOUS_DN").
	NameState(ecNumber, "EC_NUMBER").
	Add(ber.StateStart, ber.TagSequence, ber.Transition[*EntryChange]{Next: ecSeq}).
	Add(ecSeq, ber.TagEnumerated, ber.Transition[*EntryChange]{Next: ecType, End: true, Action: func(c *ber.Container[*EntryChange]) error {
		v, err := ber.ParseInteger[int](c.TLV().Value, 1, ChangeTypeModDN)
		if err != nil {
			return err
		}
		switch v {
		case ChangeTypeAdd, ChangeTypeDelete, ChangeTypeModify, ChangeTypeModDN:
		default:
			return fmt.Errorf("entry change: invalid change type %d", v)
		}
		c.Value.ChangeType = v
		c.Value.ChangeNumber = -1
		return nil
	}}).
	Add(ecType, ber.TagOctetString, ber.Transition[*EntryChange]{Next: ecPreviousDN, End: true, Action: func(c *ber.Container[*EntryChange]) error {
		if c.Value.ChangeType != ChangeTypeModDN {
			return errors.New("entry change: previousDN is only allowed for modDN")
		}
		prev := string(c.TLV().Value)
		if !dn.IsValid(prev) {
			return fmt.Errorf("%w: %q", dn.ErrInvalidDN, prev)
		}
		c.Value.PreviousDN = &prev
		return nil
	}}).
	AddAll([]ber.State{ecType, ecPreviousDN}, ber.TagInteger, ber.Transition[*EntryChange]{Next: ecNumber, End: true, Action: func(c *ber.Container[*EntryChange]) error {
		v, err := ber.ParseInteger[int64](c.TLV().Value, 0, math.MaxInt64)
		c.Value.ChangeNumber = v
		return err
	}})

type entryChangeFactory struct{}

// EntryChangeFactory encodes the EntryChange control.
var EntryChangeFactory ControlFactory = entryChangeFactory{}

func (entryChangeFactory) OID() string { return OIDEntryChange }

func (entryChangeFactory) NewControl() Control { return &EntryChange{ChangeNumber: -1} }

func (entryChangeFactory) EncodeValue(buf *ber.Buffer, c Control) (bool, error) {
	e, ok := c.(*EntryChange)
	if !ok {
		return false, wrongControl("*EntryChange", c)
	}
	if e.PreviousDN != nil && e.ChangeType != ChangeTypeModDN {
		return false, errors.New("entry change: previousDN is only allowed for modDN")
	}
	start := buf.Pos()
	if e.ChangeNumber >= 0 {
		ber.EncodeInteger(buf, ber.TagInteger, e.ChangeNumber)
	}
	if e.PreviousDN != nil {
		ber.EncodeString(buf, ber.TagOctetString, *e.PreviousDN)
	}
	ber.EncodeEnumerated(buf, int64(e.ChangeType))
	ber.EncodeSequence(buf, ber.TagSequence, start)
	return true, nil
}

func (entryChangeFactory) DecodeValue(c Control, value []byte) error {
	e, ok := c.(*EntryChange)
	if !ok {
		return wrongControl("*EntryChange", c)
	}
	return decodeValue(entryChangeGrammar, e, value)
}

// -- Server side sorting (RFC 2891) -------------------------------------------

// SortKey is one key of a SortRequest.
type SortKey struct {
	Attribute string
	// OrderingRule is empty when absent.
	OrderingRule string
	Reverse      bool
}

// SortRequest asks for sorted search results.
//
//	SortKeyList ::= SEQUENCE OF SEQUENCE {
//	        attributeType   AttributeDescription,
//	        orderingRule    [0] MatchingRuleId OPTIONAL,
//	        reverseOrder    [1] BOOLEAN DEFAULT FALSE }
type SortRequest struct {
	ControlBase
	Keys []SortKey
}

func (*SortRequest) OID() string { return OIDSortRequest }

const (
	sortList ber.State = iota + 1
	sortKey
	sortAttribute
	sortOrderingRule
	sortReverse
)

const (
	tagSortOrderingRule ber.Tag = 0x80
	tagSortReverse      ber.Tag = 0x81
	tagSortAttribute    ber.Tag = 0x80
)

var sortRequestGrammar = ber.NewGrammar[*SortRequest]("sortRequest").
	NameState(sortList, "SORT_LIST").
	NameState(sortKey, "SORT_KEY").
	NameState(sortAttribute, "SORT_ATTRIBUTE").
	NameState(sortOrderingRule, "SORT_ORDERING_RULE").
	NameState(sortReverse, "SORT_REVERSE").
	Add(ber.StateStart, ber.TagSequence, ber.Transition[*SortRequest]{Next: sortList}).
	AddAll([]ber.State{sortList, sortAttribute, sortOrderingRule, sortReverse}, ber.TagSequence, ber.Transition[*SortRequest]{Next: sortKey, Action: func(c *ber.Container[*SortRequest]) error {
		if c.Depth() != 2 {
			return ber.ErrUnexpectedTag
		}
		c.Value.Keys = append(c.Value.Keys, SortKey{})
		return nil
	}}).
	Add(sortKey, ber.TagOctetString, ber.Transition[*SortRequest]{Next: sortAttribute, End: true, Action: inSortKey(func(c *ber.Container[*SortRequest]) error {
		attr := string(c.TLV().Value)
		if !dn.ValidAttributeDescription(attr) {
			return fmt.Errorf("%w: %q", dn.ErrInvalidAttributeDescription, attr)
		}
		c.Value.Keys[len(c.Value.Keys)-1].Attribute = attr
		return nil
	})}).
	Add(sortAttribute, tagSortOrderingRule, ber.Transition[*SortRequest]{Next: sortOrderingRule, End: true, Action: inSortKey(func(c *ber.Container[*SortRequest]) error {
		if len(c.TLV().Value) == 0 {
			return errors.New("sort request: empty ordering rule")
		}
		c.Value.Keys[len(c.Value.Keys)-1].OrderingRule = string(c.TLV().Value)
		return nil
	})}).
	AddAll([]ber.State{sortAttribute, sortOrderingRule}, tagSortReverse, ber.Transition[*SortRequest]{Next: sortReverse, End: true, Action: inSortKey(func(c *ber.Container[*SortRequest]) error {
		v, err := ber.ParseBoolean(c.TLV().Value)
		c.Value.Keys[len(c.Value.Keys)-1].Reverse = v
		return err
	})})

// inSortKey rejects key fields that are not inside a SortKey SEQUENCE.
func inSortKey(a func(c *ber.Container[*SortRequest]) error) func(c *ber.Container[*SortRequest]) error {
	return func(c *ber.Container[*SortRequest]) error {
		if c.Depth() != 2 {
			return ber.ErrUnexpectedTag
		}
		return a(c)
	}
}

type sortRequestFactory struct{}

// SortRequestFactory encodes the SortRequest control.
var SortRequestFactory ControlFactory = sortRequestFactory{}

func (sortRequestFactory) OID() string         { return OIDSortRequest }
func (sortRequestFactory) NewControl() Control { return &SortRequest{} }

func (sortRequestFactory) EncodeValue(buf *ber.Buffer, c Control) (bool, error) {
	s, ok := c.(*SortRequest)
	if !ok {
		return false, wrongControl("*SortRequest", c)
	}
	if len(s.Keys) == 0 {
		return false, errors.New("sort request: no sort keys")
	}
	start := buf.Pos()
	for i := len(s.Keys) - 1; i >= 0; i-- {
		key := s.Keys[i]
		keyStart := buf.Pos()
		if key.Reverse {
			ber.EncodeBoolean(buf, tagSortReverse, true)
		}
		if key.OrderingRule != "" {
			ber.EncodeString(buf, tagSortOrderingRule, key.OrderingRule)
		}
		ber.EncodeString(buf, ber.TagOctetString, key.Attribute)
		ber.EncodeSequence(buf, ber.TagSequence, keyStart)
	}
	ber.EncodeSequence(buf, ber.TagSequence, start)
	return true, nil
}

func (sortRequestFactory) DecodeValue(c Control, value []byte) error {
	s, ok := c.(*SortRequest)
	if !ok {
		return wrongControl("*SortRequest", c)
	}
	return decodeValue(sortRequestGrammar, s, value)
}

// SortResult is the sortResult of a SortResponse. It uses the LDAP result
// codes.
type SortResult = ResultCode

// SortResponse reports the outcome of server side sorting.
//
//	SortResult ::= SEQUENCE {
//	        sortResult  ENUMERATED { ... },
//	        attributeType [0] AttributeDescription OPTIONAL }
type SortResponse struct {
	ControlBase
	Result SortResult
	// Attribute is empty when absent.
	Attribute string
}

func (*SortResponse) OID() string { return OIDSortResponse }

const (
	sortResSeq ber.State = iota + 1
	sortResResult
	sortResAttribute
)

var sortResponseGrammar = ber.NewGrammar[*SortResponse]("sortResponse").
	NameState(sortResSeq, "SORT_RES_SEQ").
	NameState(sortResResult, "SORT_RES_RESULT").
	NameState(sortResAttribute, "SORT_RES_ATTRIBUTE").
	Add(ber.StateStart, ber.TagSequence, ber.Transition[*SortResponse]{Next: sortResSeq}).
	Add(sortResSeq, ber.TagEnumerated, ber.Transition[*SortResponse]{Next: sortResResult, End: true, Action: func(c *ber.Container[*SortResponse]) error {
		v, err := ber.ParseInteger[int](c.TLV().Value, 0, math.MaxInt32)
		c.Value.Result = SortResult(v)
		return err
	}}).
	Add(sortResResult, tagSortAttribute, ber.Transition[*SortResponse]{Next: sortResAttribute, End: true, Action: func(c *ber.Container[*SortResponse]) error {
		attr := string(c.TLV().Value)
		if !dn.ValidAttributeDescription(attr) {
			return fmt.Errorf("%w: %q", dn.ErrInvalidAttributeDescription, attr)
		}
		c.Value.Attribute = attr
		return nil
	}})

type sortResponseFactory struct{}

// SortResponseFactory encodes the SortResponse control.
var SortResponseFactory ControlFactory = sortResponseFactory{}

func (sortResponseFactory) OID() string         { return OIDSortResponse }
func (sortResponseFactory) NewControl() Control { return &SortResponse{} }

func (sortResponseFactory) EncodeValue(buf *ber.Buffer, c Control) (bool, error) {
	s, ok := c.(*SortResponse)
	if !ok {
		return false, wrongControl("*SortResponse", c)
	}
	start := buf.Pos()
	if s.Attribute != "" {
		ber.EncodeString(buf, tagSortAttribute, s.Attribute)
	}
	ber.EncodeEnumerated(buf, int64(s.Result))
	ber.EncodeSequence(buf, ber.TagSequence, start)
	return true, nil
}

func (sortResponseFactory) DecodeValue(c Control, value []byte) error {
	s, ok := c.(*SortResponse)
	if !ok {
		return wrongControl("*SortResponse", c)
	}
	return decodeValue(sortResponseGrammar, s, value)
}
