// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package asyncstub implements the IsAsync detection of spec section 4.E:
// recognising a call through a generated workflow/activity stub so it can
// be dispatched as a promise instead of blocking, while a plain closure or
// top-level function fails the check. The original engine's reflection
// trick — inspecting a Java method reference's synthetic receiver — has no
// Go equivalent (a Go method value carries no runtime-inspectable receiver
// type once bound), so this package uses the idiomatic Go substitute: stubs
// implement a marker interface, and callers invoke them through
// ExecuteAsync rather than via a bare method reference.
package asyncstub

import (
	"fmt"
	"reflect"
)

// Stub is implemented by every generated workflow/activity stub and by
// nothing else. A plain closure or a reference to a static/top-level
// function never satisfies this interface, so IsAsync correctly rejects it.
type Stub interface {
	// IsWorkflowStub is never called; its only purpose is to make Stub an
	// interface nothing can satisfy by accident.
	IsWorkflowStub()
}

// IsAsync reports whether receiver is a generated stub eligible for
// asynchronous dispatch.
func IsAsync(receiver any) bool {
	_, ok := receiver.(Stub)
	return ok
}

// Invoke calls methodName on stub with args using reflection, returning its
// results. It is used by the coordinator's async dispatch path once
// IsAsync has confirmed stub is eligible; calling Invoke on anything else
// is a programmer error since the method set is unconstrained.
func Invoke(stub Stub, methodName string, args ...any) ([]reflect.Value, error) {
	v := reflect.ValueOf(stub)
	m := v.MethodByName(methodName)
	if !m.IsValid() {
		return nil, fmt.Errorf("asyncstub: stub %T has no method %q", stub, methodName)
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = reflect.ValueOf(a)
	}
	return m.Call(in), nil
}
