// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ber

import (
	"fmt"
	"strconv"
)

// State is a position in a Grammar. Every grammar starts in StateStart.
type State int

const StateStart State = 0

// Action mutates the value being decoded. It runs when the TLV that selected
// its transition is complete: for a primitive TLV once its value has been
// read (available through Container.TLV), for a constructed TLV as soon as
// its header has been read.
type Action[T any] func(c *Container[T]) error

// Transition is the entry of the state table selected by the current state
// and the tag of the next TLV.
type Transition[T any] struct {
	// Next is the state the container moves to.
	Next State
	// End marks Next as a valid point for the PDU to finish. An action can
	// override it with Container.SetEndAllowed.
	End bool
	// Action runs after the state change.
	Action Action[T]
	// Close runs when a constructed TLV selected by this transition has been
	// fully consumed. It is ignored for primitive TLVs.
	Close Action[T]
}

type transitionKey struct {
	state State
	tag   Tag
}

// Grammar is a state x tag transition table for decoding values of type T.
// Grammars are built once, usually in a package-level var, and are safe for
// concurrent use by any number of containers afterwards.
type Grammar[T any] struct {
	name        string
	states      map[State]string
	transitions map[transitionKey]Transition[T]
}

// NewGrammar returns an empty grammar. The name shows up in logs and errors.
func NewGrammar[T any](name string) *Grammar[T] {
	return &Grammar[T]{
		name:        name,
		states:      map[State]string{StateStart: "START"},
		transitions: make(map[transitionKey]Transition[T]),
	}
}

// Name returns the grammar name.
func (g *Grammar[T]) Name() string {
	return g.name
}

// NameState sets the name used for s in logs and errors.
func (g *Grammar[T]) NameState(s State, name string) *Grammar[T] {
	g.states[s] = name
	return g
}

// Add registers the transition taken in state from on a TLV tagged tag. It
// panics when the pair is already present, since that is a bug in the table.
func (g *Grammar[T]) Add(from State, tag Tag, t Transition[T]) *Grammar[T] {
	k := transitionKey{from, tag}
	if _, ok := g.transitions[k]; ok {
		panic(fmt.Sprintf("ber: grammar %s: duplicate transition %s / %s", g.name, g.StateName(from), tag))
	}
	g.transitions[k] = t
	return g
}

// AddAll registers the same transition for each of the given states.
func (g *Grammar[T]) AddAll(from []State, tag Tag, t Transition[T]) *Grammar[T] {
	for _, s := range from {
		g.Add(s, tag, t)
	}
	return g
}

// Lookup returns the transition for (s, tag).
func (g *Grammar[T]) Lookup(s State, tag Tag) (Transition[T], bool) {
	t, ok := g.transitions[transitionKey{s, tag}]
	return t, ok
}

// StateName returns the name registered for s, or its number.
func (g *Grammar[T]) StateName(s State) string {
	if name, ok := g.states[s]; ok {
		return name
	}
	return strconv.Itoa(int(s))
}
