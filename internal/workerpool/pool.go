// File: internal/workerpool/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package workerpool implements the fixed-size, work-stealing-free
// thread pool that CPU-bound continuations (route handlers, image
// transforms) run on, per spec.md §4.E.
//
// Grounded on the teacher's core/concurrency/executor.go: a fixed
// number of worker goroutines, each with its own FIFO, submissions
// round-robin across workers unless the caller is already running on a
// worker (in which case it is thread-affine and stays there). The
// teacher's hand-rolled lock-free queue is replaced with
// github.com/eapache/queue.Queue (a plain ring-buffer FIFO) behind a
// mutex/condition-variable pair, matching the condition-variable wakeup
// spec.md §4.E specifies in place of the teacher's busy-sleep poll.
package workerpool

import (
	"context"
	"log"
	"sync"

	"github.com/eapache/queue"

	"github.com/corvid-labs/reactorhttp/internal/async"
)

// Op is the unit of work a Pool runs: TryRun executes it exactly once
// and always reports true (pool work is never partial/retryable the
// way reactor I/O is); SetStopped is delivered instead, at most once,
// to an Op submitted after its worker has begun shutting down. Ops
// already queued at that point are run, not stopped.
type Op interface {
	TryRun() bool
	SetStopped()
}

type funcOp struct {
	run     func()
	stopped func()
}

func (o funcOp) TryRun() bool {
	o.run()
	return true
}

func (o funcOp) SetStopped() {
	if o.stopped != nil {
		o.stopped()
	}
}

// ctxKey is the context.Context key under which a worker publishes its
// own Scheduler, so that a task running on worker N can resubmit work
// that is thread-affine to worker N by pulling this value back out.
type ctxKey struct{}

// SchedulerFromContext returns the calling worker's own scheduler, if
// ctx was handed down by a Pool (i.e. the caller is running inside a
// pool task). ok is false outside the pool, in which case callers
// should fall back to Pool.Schedule, which round-robins.
func SchedulerFromContext(ctx context.Context) (async.Scheduler, bool) {
	s, ok := ctx.Value(ctxKey{}).(async.Scheduler)
	return s, ok
}

// TaskFunc is a unit of pool work. ctx carries the running worker's own
// scheduler (see SchedulerFromContext) for thread-affine resubmission.
type TaskFunc func(ctx context.Context)

// Pool is a fixed set of worker goroutines, each owning an unbounded
// FIFO. It implements async.StopAwareScheduler so that On/Transfer can
// deliver a stopped completion to a continuation that never gets to
// run because the pool shut down first.
type Pool struct {
	workers []*worker
	rr      uint64
	rrMu    sync.Mutex

	closedMu sync.Mutex
	closed   bool

	wg sync.WaitGroup
}

// New starts n worker goroutines. n must be >= 1; the default per
// spec.md §4.E is 8.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{workers: make([]*worker, n)}
	for i := 0; i < n; i++ {
		w := newWorker(i)
		p.workers[i] = w
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run()
		}()
	}
	return p
}

// Submit enqueues task. If ctx was produced by this same pool (the
// caller is running inside one of its own worker tasks), the task is
// thread-affine: it lands back on the submitting worker's own queue.
// Otherwise it round-robins across all workers.
func (p *Pool) Submit(ctx context.Context, task TaskFunc) {
	if sched, ok := SchedulerFromContext(ctx); ok {
		if w, ok := sched.(workerScheduler); ok {
			w.worker.enqueue(funcOp{run: func() { task(ctx) }})
			return
		}
	}
	p.submitRoundRobin(task)
}

func (p *Pool) submitRoundRobin(task TaskFunc) {
	p.rrMu.Lock()
	idx := int(p.rr % uint64(len(p.workers)))
	p.rr++
	p.rrMu.Unlock()
	w := p.workers[idx]
	w.enqueue(funcOp{run: func() { task(p.contextFor(w)) }})
}

func (p *Pool) contextFor(w *worker) context.Context {
	return context.WithValue(context.Background(), ctxKey{}, workerScheduler{worker: w})
}

// Schedule implements async.Scheduler: fn runs on some pool thread,
// round-robin, with no stop-awareness (use ScheduleOrStop via On/
// Transfer for that).
func (p *Pool) Schedule(fn func()) {
	p.submitRoundRobin(func(context.Context) { fn() })
}

// ScheduleOrStop implements async.StopAwareScheduler: fn runs on some
// pool thread, or onStopped runs instead if the pool shuts down before
// reaching it.
func (p *Pool) ScheduleOrStop(fn func(), onStopped func()) {
	p.rrMu.Lock()
	idx := int(p.rr % uint64(len(p.workers)))
	p.rr++
	p.rrMu.Unlock()
	p.workers[idx].enqueue(funcOp{run: fn, stopped: onStopped})
}

// Close stops accepting new submissions, wakes every worker, lets each
// drain its own queued ops to completion first, then delivers a
// stopped completion to anything left (nothing will be left, since
// workers fully drain before exiting — Close blocks until all workers
// have exited).
func (p *Pool) Close() {
	p.closedMu.Lock()
	if p.closed {
		p.closedMu.Unlock()
		return
	}
	p.closed = true
	p.closedMu.Unlock()

	for _, w := range p.workers {
		w.stop()
	}
	p.wg.Wait()
}

type workerScheduler struct {
	worker *worker
}

func (s workerScheduler) Schedule(fn func()) {
	s.worker.enqueue(funcOp{run: fn})
}

func (s workerScheduler) ScheduleOrStop(fn func(), onStopped func()) {
	s.worker.enqueue(funcOp{run: fn, stopped: onStopped})
}

type worker struct {
	idx int

	mu       sync.Mutex
	cond     *sync.Cond
	q        *queue.Queue
	stopping bool
}

func newWorker(idx int) *worker {
	w := &worker{idx: idx, q: queue.New()}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *worker) enqueue(op Op) {
	w.mu.Lock()
	if w.stopping {
		w.mu.Unlock()
		op.SetStopped()
		return
	}
	w.q.Add(op)
	w.cond.Signal()
	w.mu.Unlock()
}

func (w *worker) stop() {
	w.mu.Lock()
	w.stopping = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

// run is the worker's main loop: pop local queue; if empty, sleep on
// the condition variable until woken by a submission or shutdown; on
// wake, run the op, loop. On shutdown it drains its remaining queue
// (running every op queued before the stop request) before exiting.
func (w *worker) run() {
	for {
		w.mu.Lock()
		for w.q.Length() == 0 && !w.stopping {
			w.cond.Wait()
		}
		if w.q.Length() == 0 {
			w.mu.Unlock()
			return
		}
		op := w.q.Remove().(Op)
		w.mu.Unlock()

		w.runOne(op)
	}
}

// runOne executes a single op, converting a runaway panic into a log
// line rather than letting it kill the worker goroutine. A panic in a
// function passed to Then/LetValue/LetError/LetStopped is already
// recovered there into an error completion; a panic in an operation
// body started by On (e.g. a handler run by runSync) reaches here.
func (w *worker) runOne(op Op) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("workerpool: worker %d: recovered panic: %v", w.idx, rec)
		}
	}()
	op.TryRun()
}
