// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package coroutine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromiseSettleOnce(t *testing.T) {
	p := NewPromise()
	assert.False(t, p.IsSettled())
	p.Settle("first", nil)
	p.Settle("second", errors.New("late"))
	assert.True(t, p.IsSettled())

	d := NewDispatcher()
	var got any
	d.Go("waiter", func(th *WorkflowThread) {
		got, _ = p.Get(th)
	})
	require.NoError(t, d.ExecuteUntilAllBlocked())
	assert.Equal(t, "first", got)
}

func TestPromiseGetBlocksUntilSettled(t *testing.T) {
	p := NewPromise()
	d := NewDispatcher()
	var got any
	done := false
	d.Go("waiter", func(th *WorkflowThread) {
		got, _ = p.Get(th)
		done = true
	})
	require.NoError(t, d.ExecuteUntilAllBlocked())
	assert.False(t, done)

	p.Settle(42, nil)
	require.NoError(t, d.ExecuteUntilAllBlocked())
	assert.True(t, done)
	assert.Equal(t, 42, got)
	assert.True(t, d.IsDone())
}

func TestPromiseThenCatch(t *testing.T) {
	p := NewPromise()
	doubled := p.Then(func(v any) (any, error) {
		return v.(int) * 2, nil
	})
	p.Settle(21, nil)
	assert.True(t, doubled.IsSettled())

	d := NewDispatcher()
	var got any
	d.Go("waiter", func(th *WorkflowThread) {
		got, _ = doubled.Get(th)
	})
	require.NoError(t, d.ExecuteUntilAllBlocked())
	assert.Equal(t, 42, got)

	failed := NewPromise()
	recovered := failed.Catch(func(err error) (any, error) {
		return "recovered", nil
	})
	failed.Settle(nil, errors.New("boom"))
	d2 := NewDispatcher()
	d2.Go("waiter", func(th *WorkflowThread) {
		got, _ = recovered.Get(th)
	})
	require.NoError(t, d2.ExecuteUntilAllBlocked())
	assert.Equal(t, "recovered", got)
}

func TestPromiseAll(t *testing.T) {
	a, b := NewPromise(), NewPromise()
	all := All(a, b)
	a.Settle(1, nil)
	assert.False(t, all.IsSettled())
	b.Settle(2, nil)
	require.True(t, all.IsSettled())

	d := NewDispatcher()
	var got any
	d.Go("waiter", func(th *WorkflowThread) {
		got, _ = all.Get(th)
	})
	require.NoError(t, d.ExecuteUntilAllBlocked())
	assert.Equal(t, []any{1, 2}, got)
}

func TestPromiseAllFailsFast(t *testing.T) {
	a, b := NewPromise(), NewPromise()
	all := All(a, b)
	a.Settle(nil, errors.New("boom"))
	assert.True(t, all.IsSettled())
}

func TestPromiseAny(t *testing.T) {
	a, b := NewPromise(), NewPromise()
	combined := Any(a, b)
	b.Settle("fast", nil)
	require.True(t, combined.IsSettled())

	d := NewDispatcher()
	var got any
	d.Go("waiter", func(th *WorkflowThread) {
		got, _ = combined.Get(th)
	})
	require.NoError(t, d.ExecuteUntilAllBlocked())
	assert.Equal(t, "fast", got)
}

func TestPromiseCancelPropagatesToOwner(t *testing.T) {
	cancelled := 0
	p := NewPromise()
	p.SetCancelCallback(func() { cancelled++ })
	p.Cancel()
	p.Cancel()
	assert.Equal(t, 2, cancelled)

	settled := NewPromise()
	settled.SetCancelCallback(func() { cancelled++ })
	settled.Settle(nil, nil)
	settled.Cancel()
	assert.Equal(t, 2, cancelled)
}

func TestCancellationScopeCascade(t *testing.T) {
	scope := NewCancellationScope()
	fired := 0
	for i := 0; i < 3; i++ {
		p := NewPromise()
		p.SetCancelCallback(func() { fired++ })
		scope.Register(p)
	}
	child := scope.NewChild()
	childPromise := NewPromise()
	childPromise.SetCancelCallback(func() { fired++ })
	child.Register(childPromise)

	scope.Cancel()
	assert.Equal(t, 4, fired)
	assert.True(t, scope.IsCancelled())

	// repeat cancels are no-ops
	scope.Cancel()
	assert.Equal(t, 4, fired)

	// registering into a cancelled scope cancels immediately
	late := NewPromise()
	late.SetCancelCallback(func() { fired++ })
	scope.Register(late)
	assert.Equal(t, 5, fired)
}

func TestDispatcherRunsThreadsCooperatively(t *testing.T) {
	d := NewDispatcher()
	var order []string
	gate := NewPromise()
	d.Go("first", func(th *WorkflowThread) {
		order = append(order, "first-start")
		_, _ = gate.Get(th)
		order = append(order, "first-resume")
	})
	d.Go("second", func(th *WorkflowThread) {
		order = append(order, "second")
	})
	require.NoError(t, d.ExecuteUntilAllBlocked())
	assert.Equal(t, []string{"first-start", "second"}, order)

	gate.Settle(nil, nil)
	require.NoError(t, d.ExecuteUntilAllBlocked())
	assert.Equal(t, []string{"first-start", "second", "first-resume"}, order)
	assert.True(t, d.IsDone())
}
