// File: internal/async/combinators.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
package async

import "sync"

// Scheduler requests that a continuation resume on a particular
// execution context (the reactor thread, or a worker-pool thread).
// Implementations: internal/ioctx (reactor scheduler) and
// internal/workerpool (pool scheduler).
type Scheduler interface {
	// Schedule arranges for fn to run on this scheduler's execution
	// context, then returns immediately (the call does not block on
	// fn's completion).
	Schedule(fn func())
}

// Then runs fn on a value completion and value-completes with its
// result. Error and stopped pass through unchanged.
func Then[T, U any](op Operation[T], fn func(T) U) Operation[U] {
	return func(r Receiver[U]) {
		op.Start(Receiver[T]{
			OnValue: func(v T) {
				defer recoverAsError(r.OnError)
				r.OnValue(fn(v))
			},
			OnError:   r.OnError,
			OnStopped: r.OnStopped,
		})
	}
}

// LetValue runs fn on a value completion; fn returns a new operation
// that is started, and its completion becomes the final completion.
func LetValue[T, U any](op Operation[T], fn func(T) Operation[U]) Operation[U] {
	return func(r Receiver[U]) {
		op.Start(Receiver[T]{
			OnValue: func(v T) {
				var next Operation[U]
				func() {
					defer recoverAsError(r.OnError)
					next = fn(v)
				}()
				if next != nil {
					next.Start(r)
				}
			},
			OnError:   r.OnError,
			OnStopped: r.OnStopped,
		})
	}
}

// LetError converts an error completion into a new operation (e.g. a
// fallback value), started in place of the error completion.
func LetError[T any](op Operation[T], fn func(error) Operation[T]) Operation[T] {
	return func(r Receiver[T]) {
		op.Start(Receiver[T]{
			OnValue: r.OnValue,
			OnError: func(err error) {
				var next Operation[T]
				func() {
					defer recoverAsError(r.OnError)
					next = fn(err)
				}()
				if next != nil {
					next.Start(r)
				}
			},
			OnStopped: r.OnStopped,
		})
	}
}

// LetStopped converts a stopped completion into a new operation (e.g. a
// defined fallback value such as a 500 response).
func LetStopped[T any](op Operation[T], fn func() Operation[T]) Operation[T] {
	return func(r Receiver[T]) {
		op.Start(Receiver[T]{
			OnValue: r.OnValue,
			OnError: r.OnError,
			OnStopped: func() {
				var next Operation[T]
				func() {
					defer recoverAsError(r.OnError)
					next = fn()
				}()
				if next != nil {
					next.Start(r)
				}
			},
		})
	}
}

// Pair is the value tuple produced by WhenAll2.
type Pair[A, B any] struct {
	First  A
	Second B
}

// WhenAll2 starts both children concurrently (no ordering guaranteed
// between them). It value-completes with both results only if both
// succeed; the first error completes error and the first stopped
// completes stopped. The sibling is not cancelled in either case: it
// keeps running and its later completion is discarded. "Concurrently" means unordered, not
// necessarily parallel — it becomes parallel when the children are
// themselves scheduled onto different worker-pool threads (e.g. via
// Transfer).
func WhenAll2[A, B any](opA Operation[A], opB Operation[B]) Operation[Pair[A, B]] {
	return func(r Receiver[Pair[A, B]]) {
		var (
			mu       sync.Mutex
			done     int
			hasA     bool
			hasB     bool
			valA     A
			valB     B
			settled  bool
			stopSibA func()
			stopSibB func()
		)
		stopSibA = func() {}
		stopSibB = func() {}

		complete := func() {
			if settled {
				return
			}
			if hasA && hasB {
				settled = true
				if r.OnValue != nil {
					r.OnValue(Pair[A, B]{First: valA, Second: valB})
				}
			}
		}
		fail := func(err error) {
			if settled {
				return
			}
			settled = true
			stopSibA()
			stopSibB()
			if r.OnError != nil {
				r.OnError(err)
			}
		}
		stop := func() {
			if settled {
				return
			}
			settled = true
			stopSibA()
			stopSibB()
			if r.OnStopped != nil {
				r.OnStopped()
			}
		}

		opA.Start(Receiver[A]{
			OnValue: func(v A) {
				mu.Lock()
				defer mu.Unlock()
				valA, hasA = v, true
				done++
				complete()
			},
			OnError: func(err error) {
				mu.Lock()
				defer mu.Unlock()
				fail(err)
			},
			OnStopped: func() {
				mu.Lock()
				defer mu.Unlock()
				stop()
			},
		})
		opB.Start(Receiver[B]{
			OnValue: func(v B) {
				mu.Lock()
				defer mu.Unlock()
				valB, hasB = v, true
				done++
				complete()
			},
			OnError: func(err error) {
				mu.Lock()
				defer mu.Unlock()
				fail(err)
			},
			OnStopped: func() {
				mu.Lock()
				defer mu.Unlock()
				stop()
			},
		})
	}
}

// WhenAllSlice starts a homogeneous slice of children concurrently and
// value-completes with all their results (index-preserving) only if all
// succeed. Semantics otherwise match WhenAll2.
func WhenAllSlice[T any](ops []Operation[T]) Operation[[]T] {
	return func(r Receiver[[]T]) {
		n := len(ops)
		if n == 0 {
			if r.OnValue != nil {
				r.OnValue(nil)
			}
			return
		}

		var (
			mu       sync.Mutex
			results  = make([]T, n)
			remain   = n
			settled  bool
		)

		complete := func() {
			if settled || remain != 0 {
				return
			}
			settled = true
			if r.OnValue != nil {
				r.OnValue(results)
			}
		}
		fail := func(err error) {
			if settled {
				return
			}
			settled = true
			if r.OnError != nil {
				r.OnError(err)
			}
		}
		stop := func() {
			if settled {
				return
			}
			settled = true
			if r.OnStopped != nil {
				r.OnStopped()
			}
		}

		for i, op := range ops {
			i := i
			op.Start(Receiver[T]{
				OnValue: func(v T) {
					mu.Lock()
					defer mu.Unlock()
					results[i] = v
					remain--
					complete()
				},
				OnError: func(err error) {
					mu.Lock()
					defer mu.Unlock()
					fail(err)
				},
				OnStopped: func() {
					mu.Lock()
					defer mu.Unlock()
					stop()
				},
			})
		}
	}
}

// StopAwareScheduler is an optional upgrade of Scheduler: a scheduler
// that can detect a continuation will never run (e.g. a worker pool
// shutting down with the continuation still queued) and deliver a
// stopped completion instead, so that On/Transfer preserve the
// three-channel invariant even across a scheduler hop. Schedulers that
// cannot lose work (e.g. the reactor thread, which always eventually
// drains and stops its own registrations) need not implement it.
type StopAwareScheduler interface {
	Scheduler
	// ScheduleOrStop arranges for fn to run on this scheduler, or for
	// onStopped to run instead if fn will never run.
	ScheduleOrStop(fn func(), onStopped func())
}

// On starts op such that its first resumption happens on sched: a
// schedule-hop is prepended to op's execution.
func On[T any](sched Scheduler, op Operation[T]) Operation[T] {
	return func(r Receiver[T]) {
		run := func() { op.Start(r) }
		if sa, ok := sched.(StopAwareScheduler); ok {
			sa.ScheduleOrStop(run, func() {
				if r.OnStopped != nil {
					r.OnStopped()
				}
			})
			return
		}
		sched.Schedule(run)
	}
}

// TransferJust is shorthand for On(sched, Just(v)).
func TransferJust[T any](sched Scheduler, v T) Operation[T] {
	return On(sched, Just(v))
}

// Transfer arranges for op's downstream continuations to run on sched:
// implemented as LetValue(op, v => On(sched, Just(v))).
func Transfer[T any](op Operation[T], sched Scheduler) Operation[T] {
	return LetValue(op, func(v T) Operation[T] {
		return TransferJust(sched, v)
	})
}

// StartDetached heap-allocates op with a trivial receiver that discards
// completions. Used for fire-and-forget pipelines (e.g. one per accepted
// connection) where nothing awaits the result.
func StartDetached[T any](op Operation[T]) {
	op.Start(Receiver[T]{
		OnValue:   func(T) {},
		OnError:   func(error) {},
		OnStopped: func() {},
	})
}

// StoppedMarker is an empty value standing for a stopped completion,
// which carries no value. SyncWait does not return it: SyncWait reports
// a stopped completion as ok=false with a nil error.
type StoppedMarker struct{}

// SyncWait blocks the calling goroutine until op completes, then returns
// its value with ok=true, or its error with ok=false, or ok=false with
// no error for a stopped completion.
func SyncWait[T any](op Operation[T]) (T, error, bool) {
	var (
		wg    sync.WaitGroup
		value T
		err   error
		ok    = true
	)
	wg.Add(1)
	op.Start(Receiver[T]{
		OnValue: func(v T) {
			value = v
			wg.Done()
		},
		OnError: func(e error) {
			err = e
			ok = false
			wg.Done()
		},
		OnStopped: func() {
			ok = false
			wg.Done()
		},
	})
	wg.Wait()
	return value, err, ok
}
