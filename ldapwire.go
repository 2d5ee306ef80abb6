// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package ldapwire encodes and decodes LDAPv3 messages (RFC 4511).
//
// Encoding writes back to front into a ber.Buffer so every length is known
// when its header is written. Decoding is driven by a table of
// (state, tag) transitions and can be fed incrementally.
package ldapwire

import (
	"sync"

	"github.com/ldapwire/ldapwire/ber"
	"github.com/ldapwire/ldapwire/dn"
)

// LoggerInterface and Logger are the logging surface of the codec.
type (
	LoggerInterface = ber.LoggerInterface
	Logger          = ber.Logger
)

// NewLogger returns a Logger writing to logger.
func NewLogger(logger LoggerInterface) Logger {
	return ber.NewLogger(logger)
}

// Codec holds the control and extended operation factories and the decode
// settings. Registration is safe while other goroutines encode and decode.
type Codec struct {
	// Logger is the Logger to use for debugging. The zero Logger discards
	// everything. For verbose logging to stdout:
	// c.Logger = ldapwire.NewLogger(log.New(os.Stdout, "", 0))
	Logger Logger

	// MaxPDUSize bounds the size of a decoded LDAPMessage. Zero means no
	// limit.
	MaxPDUSize int

	// AllowNonMinimalLength accepts long-form lengths with superfluous
	// octets.
	AllowNonMinimalLength bool

	// Schema, when set, is used to check the DNs and attribute types of
	// decoded requests.
	Schema dn.Schema

	// OnDecode is called with every successfully decoded message.
	OnDecode func(m *Message)

	// OnDecodeError is called with every decode failure.
	OnDecodeError func(err error)

	// OnEncode is called with every encoded message and its size.
	OnEncode func(m *Message, size int)

	mu               sync.RWMutex
	requestControls  map[string]ControlFactory
	responseControls map[string]ControlFactory
	extended         map[string]ExtendedOperationFactory
	intermediate     map[string]IntermediateResponseFactory
}

// Default is the codec used by the package level functions.
var Default = NewCodec()

// NewCodec returns a Codec with the stock controls and extended operations
// registered.
func NewCodec() *Codec {
	c := &Codec{
		requestControls:  make(map[string]ControlFactory),
		responseControls: make(map[string]ControlFactory),
		extended:         make(map[string]ExtendedOperationFactory),
		intermediate:     make(map[string]IntermediateResponseFactory),
	}
	for _, f := range []ControlFactory{
		CascadeFactory,
		ManageDsaITFactory,
		PagedResultsFactory,
		PersistentSearchFactory,
		ProxiedAuthzFactory,
		SortRequestFactory,
		SubentriesFactory,
	} {
		c.RegisterRequestControl(f)
	}
	for _, f := range []ControlFactory{
		EntryChangeFactory,
		PagedResultsFactory,
		SortResponseFactory,
	} {
		c.RegisterResponseControl(f)
	}
	for _, f := range []ExtendedOperationFactory{
		CancelFactory,
		PasswordModifyFactory,
		StartTLSFactory,
		WhoAmIFactory,
	} {
		c.RegisterExtendedOperation(f)
	}
	return c
}

func register[F any](c *Codec, m map[string]F, kind, oid string, f F) F {
	c.mu.Lock()
	prev, ok := m[oid]
	m[oid] = f
	c.mu.Unlock()
	if ok {
		c.Logger.Printf("ldapwire: replacing %s factory for OID %s", kind, oid)
	}
	return prev
}

func unregister[F any](c *Codec, m map[string]F, oid string) {
	c.mu.Lock()
	delete(m, oid)
	c.mu.Unlock()
}

func lookup[F any](c *Codec, m map[string]F, oid string) F {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return m[oid]
}

// RegisterRequestControl registers f for controls attached to requests. It
// returns the factory previously registered for the OID, or nil.
func (c *Codec) RegisterRequestControl(f ControlFactory) ControlFactory {
	return register(c, c.requestControls, "request control", f.OID(), f)
}

// RegisterResponseControl registers f for controls attached to responses. It
// returns the factory previously registered for the OID, or nil.
func (c *Codec) RegisterResponseControl(f ControlFactory) ControlFactory {
	return register(c, c.responseControls, "response control", f.OID(), f)
}

// RegisterExtendedOperation registers f for extended requests and for
// extended responses carrying its OID as responseName. It returns the factory
// previously registered for the OID, or nil.
func (c *Codec) RegisterExtendedOperation(f ExtendedOperationFactory) ExtendedOperationFactory {
	return register(c, c.extended, "extended operation", f.OID(), f)
}

// RegisterIntermediateResponse registers f for intermediate responses. It
// returns the factory previously registered for the OID, or nil.
func (c *Codec) RegisterIntermediateResponse(f IntermediateResponseFactory) IntermediateResponseFactory {
	return register(c, c.intermediate, "intermediate response", f.OID(), f)
}

// UnregisterRequestControl removes the request control factory for oid, if any.
func (c *Codec) UnregisterRequestControl(oid string) {
	unregister(c, c.requestControls, oid)
}

// UnregisterResponseControl removes the response control factory for oid, if any.
func (c *Codec) UnregisterResponseControl(oid string) {
	unregister(c, c.responseControls, oid)
}

// UnregisterExtendedOperation removes the extended operation factory for oid, if any.
func (c *Codec) UnregisterExtendedOperation(oid string) {
	unregister(c, c.extended, oid)
}

// UnregisterIntermediateResponse removes the intermediate response factory for oid, if any.
func (c *Codec) UnregisterIntermediateResponse(oid string) {
	unregister(c, c.intermediate, oid)
}

// RequestControl returns the factory for oid, or nil. Unknown controls are
// decoded as *OpaqueControl.
func (c *Codec) RequestControl(oid string) ControlFactory {
	return lookup(c, c.requestControls, oid)
}

// ResponseControl returns the factory for oid, or nil.
func (c *Codec) ResponseControl(oid string) ControlFactory {
	return lookup(c, c.responseControls, oid)
}

// ExtendedOperation returns the factory for oid, or nil. Unknown extended
// operations keep their raw value.
func (c *Codec) ExtendedOperation(oid string) ExtendedOperationFactory {
	return lookup(c, c.extended, oid)
}

// IntermediateResponse returns the factory for oid, or nil.
func (c *Codec) IntermediateResponse(oid string) IntermediateResponseFactory {
	return lookup(c, c.intermediate, oid)
}

// controlFactory picks the request or response map by the type of the
// operation the control is attached to.
func (c *Codec) controlFactory(op OpType, oid string) ControlFactory {
	if op.IsRequest() {
		return c.RequestControl(oid)
	}
	return c.ResponseControl(oid)
}

func (c *Codec) decodeOptions() ber.DecodeOptions {
	return ber.DecodeOptions{
		Logger:                c.Logger,
		MaxPDUSize:            c.MaxPDUSize,
		AllowNonMinimalLength: c.AllowNonMinimalLength,
	}
}
