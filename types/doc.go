// Package types provides the core value model shared across the loom engine.
// This package has ZERO dependencies on other loom packages to avoid circular
// imports. All other packages import types from here.
//
// The central type is Value, a closed tagged union over the wire value kinds
// a workflow can carry: Text, Integer, Number, Json, Model, Agent, Tools,
// Chat, Message, Failure, and the list variants of the scalar kinds. Values
// are immutable once produced; list and conversation contents are copied on
// construction and never mutated in place.
package types
