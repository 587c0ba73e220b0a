//go:build linux

// File: internal/ioctx/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package ioctx is the thin owner of one reactor (spec.md §4.B). Its
// Scheduler, when used as the target of async.On/async.Transfer,
// submits a non-I/O operation to the reactor, so the continuation runs
// on the reactor thread.
package ioctx

import (
	"github.com/corvid-labs/reactorhttp/internal/async"
	"github.com/corvid-labs/reactorhttp/internal/reactor"
)

// Context owns a single Reactor and exposes it to the async I/O
// primitives (internal/ioops).
type Context struct {
	reactor *reactor.Reactor
}

// New wraps an already-constructed reactor.
func New(r *reactor.Reactor) *Context {
	return &Context{reactor: r}
}

// Reactor returns the underlying reactor, for the async I/O primitives
// that need to call SubmitIO directly.
func (c *Context) Reactor() *reactor.Reactor { return c.reactor }

// Scheduler returns a scheduler whose continuations run on the reactor
// thread.
func (c *Context) Scheduler() async.Scheduler { return reactorScheduler{c.reactor} }

type reactorScheduler struct {
	reactor *reactor.Reactor
}

// inlineOp adapts a plain func() into the reactor.Op interface for a
// non-I/O submission: TryRun invokes it once and reports completion;
// SetStopped also invokes it, since a scheduled continuation has no
// distinct "cancelled" behavior of its own (the cancellation semantics
// live in the async combinators further up the chain, which must see a
// stopped completion delivered by *their* receiver, not suppressed
// here).
type inlineOp struct {
	fn func()
}

func (o inlineOp) TryRun() bool  { o.fn(); return true }
func (o inlineOp) SetStopped()   { o.fn() }

func (s reactorScheduler) Schedule(fn func()) {
	s.reactor.SubmitInline(inlineOp{fn: fn})
}
