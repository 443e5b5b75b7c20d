// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package asyncstub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorkflowStub struct {
	calls int
}

func (s *fakeWorkflowStub) IsWorkflowStub() {}

func (s *fakeWorkflowStub) Process(input string) string {
	s.calls++
	return "processed:" + input
}

func TestIsAsyncAcceptsOnlyStubs(t *testing.T) {
	assert.True(t, IsAsync(&fakeWorkflowStub{}))

	// plain closures and top-level function values must fail the check
	assert.False(t, IsAsync(func() {}))
	assert.False(t, IsAsync("not a stub"))
	assert.False(t, IsAsync(nil))
}

func TestInvokeCallsStubMethod(t *testing.T) {
	stub := &fakeWorkflowStub{}
	results, err := Invoke(stub, "Process", "payload")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "processed:payload", results[0].String())
	assert.Equal(t, 1, stub.calls)
}

func TestInvokeUnknownMethod(t *testing.T) {
	_, err := Invoke(&fakeWorkflowStub{}, "NoSuchMethod")
	assert.Error(t, err)
}
