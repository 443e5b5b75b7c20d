// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package coroutine

// Promise is a write-once container of either a value or a failure. It is
// the only suspension point workflow code may use (spec section 4.E):
// Get blocks the calling WorkflowThread, via Yield, until Settle has been
// called. Zero value is unusable; use NewPromise.
type Promise struct {
	settled  bool
	value    any
	err      error
	onSettle []func()

	// cancelCallback is invoked by Cancel; set by the entity machine that
	// owns this promise (activity, timer, child workflow, ...) so that
	// cancelling the promise propagates to the durable operation behind it
	// instead of just silently detaching the waiter.
	cancelCallback func()
}

// NewPromise constructs an unsettled Promise.
func NewPromise() *Promise {
	return &Promise{}
}

// Settle resolves the promise exactly once. Later calls are no-ops, which
// is what lets a machine's fireCompletion-style callback be wired to both
// Settle and a cancellation path without double-firing.
func (p *Promise) Settle(value any, err error) {
	if p.settled {
		return
	}
	p.settled = true
	p.value, p.err = value, err
	callbacks := p.onSettle
	p.onSettle = nil
	for _, cb := range callbacks {
		cb()
	}
}

// IsSettled reports whether Settle has been called.
func (p *Promise) IsSettled() bool { return p.settled }

// Get blocks thread until the promise settles, then returns its value and
// error. This is the engine's only suspension point; calling it from
// outside a WorkflowThread (e.g. from the coordinator's own goroutine) is a
// programmer error, since there is no dispatcher to hand control back to.
func (p *Promise) Get(thread *WorkflowThread) (any, error) {
	thread.Yield(func() bool { return p.settled })
	return p.value, p.err
}

// SetCancelCallback wires what happens when workflow code cancels this
// promise before it settles. Only the owning entity machine should call
// this, once, right after creating the promise.
func (p *Promise) SetCancelCallback(cb func()) {
	p.cancelCallback = cb
}

// Cancel propagates a cancellation request to whatever owns this promise.
// It is a no-op if the promise already settled or carries no cancel
// callback (several entity machines, e.g. SideEffect, resolve synchronously
// and are never cancellable).
func (p *Promise) Cancel() {
	if p.settled || p.cancelCallback == nil {
		return
	}
	p.cancelCallback()
}

// Then registers fn to run with this promise's value once it settles
// successfully; it is skipped if the promise settles with an error. Then
// returns a new Promise chaining fn's result, so calls compose:
// p.Then(f).Then(g).Get(thread).
func (p *Promise) Then(fn func(value any) (any, error)) *Promise {
	chained := NewPromise()
	settle := func() {
		if p.err != nil {
			chained.Settle(nil, p.err)
			return
		}
		v, err := fn(p.value)
		chained.Settle(v, err)
	}
	if p.settled {
		settle()
	} else {
		p.onSettle = append(p.onSettle, settle)
	}
	return chained
}

// Catch registers fn to run with this promise's error once it settles with
// one; success passes through untouched.
func (p *Promise) Catch(fn func(err error) (any, error)) *Promise {
	chained := NewPromise()
	settle := func() {
		if p.err == nil {
			chained.Settle(p.value, nil)
			return
		}
		v, err := fn(p.err)
		chained.Settle(v, err)
	}
	if p.settled {
		settle()
	} else {
		p.onSettle = append(p.onSettle, settle)
	}
	return chained
}

// All returns a Promise that settles once every input promise has settled
// successfully, with its value the slice of their values in order, or
// settles with the first error encountered.
func All(promises ...*Promise) *Promise {
	combined := NewPromise()
	if len(promises) == 0 {
		combined.Settle([]any{}, nil)
		return combined
	}
	values := make([]any, len(promises))
	remaining := len(promises)
	failed := false
	for i, p := range promises {
		i, p := i, p
		onOne := func() {
			if failed || combined.IsSettled() {
				return
			}
			if p.err != nil {
				failed = true
				combined.Settle(nil, p.err)
				return
			}
			values[i] = p.value
			remaining--
			if remaining == 0 {
				combined.Settle(values, nil)
			}
		}
		if p.settled {
			onOne()
		} else {
			p.onSettle = append(p.onSettle, onOne)
		}
	}
	return combined
}

// Any returns a Promise that settles with the value/error of whichever
// input promise settles first.
func Any(promises ...*Promise) *Promise {
	combined := NewPromise()
	for _, p := range promises {
		p := p
		onOne := func() {
			combined.Settle(p.value, p.err)
		}
		if p.settled {
			onOne()
		} else {
			p.onSettle = append(p.onSettle, onOne)
		}
	}
	return combined
}
