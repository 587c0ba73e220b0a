//go:build linux

// File: internal/reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package reactor implements the core's single-threaded, poll(2)-based
// readiness I/O dispatcher.
//
// Grounded on the teacher's reactor/epoll_reactor.go (sync.Map-free
// registration bookkeeping, Register/Poll/Close shape) and
// reactor/reactor_linux.go (golang.org/x/sys/unix usage), adapted from
// epoll to poll(2) per spec.md §4.A, and on
// original_source/src/io/detail/poll_io_loop.cpp for the exact
// run_one/run/stop algorithm (parallel poll-data/ops vectors, a
// start_index fairness cursor, and a self-pipe wakeup drained before
// each poll). The wakeup mechanism uses an eventfd rather than a pipe,
// per spec.md §9's "on Linux, prefer eventfd", grounded on the pack's
// joeycumines-go-utilpkg/eventloop/wakeup_linux.go createWakeFd pattern.
package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Interest is the readiness condition an I/O operation is registered
// for.
type Interest int16

const (
	InterestRead Interest = Interest(unix.POLLIN)
	InterestWrite Interest = Interest(unix.POLLOUT)
)

// Op is the interface an asynchronous I/O or inline operation presents
// to the reactor. TryRun attempts the underlying syscall (or runs the
// inline continuation) and reports whether the operation reached a
// value or error completion. SetStopped is called instead, during
// shutdown drain, for any operation still registered when Stop() takes
// effect.
type Op interface {
	// TryRun returns true iff the operation completed (value or error
	// channel already signalled). False means "try again once this fd
	// is next ready" (EAGAIN/EWOULDBLOCK/EINTR).
	TryRun() bool
	// SetStopped delivers a stopped completion. Called at most once,
	// only for operations never completed by TryRun.
	SetStopped()
}

type submission struct {
	fd       int
	interest Interest
	op       Op
}

// Reactor is a single-threaded readiness dispatcher for nonblocking file
// descriptors. All public methods other than SubmitIO/SubmitInline/Stop
// are intended to be called only from the reactor's own goroutine (the
// one running Run).
type Reactor struct {
	submitMu sync.Mutex
	submitCv *sync.Cond
	pending  []submission

	owned []submission

	pollSet []unix.PollFd
	ops     []Op

	startIndex int

	wakeFD int

	stopped bool
}

// New creates a Reactor with its self-pipe (eventfd) wakeup already
// installed at poll-set index 0, per spec.md §4.A: "index 0 is reserved
// for a self-pipe read end whose op slot is the sentinel null."
func New() (*Reactor, error) {
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		wakeFD: wakeFD,
	}
	r.submitCv = sync.NewCond(&r.submitMu)
	r.pollSet = append(r.pollSet, unix.PollFd{Fd: int32(wakeFD), Events: int16(InterestRead)})
	r.ops = append(r.ops, nil)
	return r, nil
}

// Close releases the self-pipe eventfd. Call only after Run has
// returned.
func (r *Reactor) Close() error {
	return unix.Close(r.wakeFD)
}

// SubmitIO enqueues a pending registration for fd/interest. When fd
// becomes ready, the reactor calls op.TryRun(); a false return means
// "still not ready, keep registered." Thread-safe; wakes the reactor.
func (r *Reactor) SubmitIO(fd int, interest Interest, op Op) {
	r.submit(submission{fd: fd, interest: interest, op: op})
}

// SubmitInline enqueues a non-I/O continuation. The reactor invokes
// op.TryRun() exactly once, on the reactor thread; its return value is
// ignored.
func (r *Reactor) SubmitInline(op Op) {
	r.submit(submission{fd: -1, op: op})
}

func (r *Reactor) submit(s submission) {
	r.submitMu.Lock()
	r.pending = append(r.pending, s)
	r.submitCv.Signal()
	r.submitMu.Unlock()
	r.wake()
}

func (r *Reactor) wake() {
	var buf [8]byte
	buf[0] = 1
	_, _ = unix.Write(r.wakeFD, buf[:])
}

func (r *Reactor) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(r.wakeFD, buf[:])
		if err != nil {
			return
		}
	}
}

// Stop sets the stop flag (guarded by the submission mutex) and wakes the loop. Every still-pending
// operation receives a stopped signal once Run observes the flag and
// drains.
func (r *Reactor) Stop() {
	r.submitMu.Lock()
	r.stopped = true
	r.submitCv.Broadcast()
	r.submitMu.Unlock()
	r.wake()
}

func (r *Reactor) isStopped() bool {
	r.submitMu.Lock()
	defer r.submitMu.Unlock()
	return r.stopped
}

// checkInOps drains the submission queue into the reactor-owned vectors,
// running non-I/O ops inline and opportunistically attempting I/O ops
// once before registering them for polling.
func (r *Reactor) checkInOps() {
	for {
		r.submitMu.Lock()
		r.owned, r.pending = r.pending, r.owned[:0]
		r.submitMu.Unlock()

		if len(r.owned) == 0 {
			return
		}

		for _, s := range r.owned {
			if s.fd < 0 {
				s.op.TryRun()
				continue
			}
			if !s.op.TryRun() {
				r.pollSet = append(r.pollSet, unix.PollFd{Fd: int32(s.fd), Events: int16(s.interest)})
				r.ops = append(r.ops, s.op)
			}
		}
	}
}

// checkForOneCompletion scans pollSet[startIndex:] for a ready entry and
// runs it; returns true iff an operation completed this call.
func (r *Reactor) checkForOneCompletion() bool {
	r.drainWake()

	for i := r.startIndex; i < len(r.pollSet); i++ {
		p := &r.pollSet[i]
		if p.Revents&p.Events == 0 {
			continue
		}
		op := r.ops[i]
		if op != nil && op.TryRun() {
			r.pollSet = append(r.pollSet[:i], r.pollSet[i+1:]...)
			r.ops = append(r.ops[:i], r.ops[i+1:]...)
			r.startIndex = i
			return true
		}
	}
	r.startIndex = len(r.pollSet)
	return false
}

// doPoll blocks in poll(2) until some registered fd is ready (or
// forever, since the core provides no core-level timeouts per spec.md
// §5). Returns false only on an unrecoverable poll(2) error.
func (r *Reactor) doPoll() bool {
	for i := range r.pollSet {
		r.pollSet[i].Revents = 0
	}
	for {
		_, err := unix.Poll(r.pollSet, -1)
		if err == nil {
			r.startIndex = 0
			return true
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EINVAL {
			continue
		}
		return false
	}
}

// RunOne performs one unit of progress. It first runs every pending
// non-I/O op, then returns true once it completes one ready I/O op.
// While I/O ops are registered and none is ready it blocks in poll(2).
// It returns false when no I/O op is registered, once Stop has been
// called, or on an unrecoverable poll(2) error.
func (r *Reactor) RunOne() bool {
	for {
		r.checkInOps()
		if len(r.pollSet) <= 1 {
			return false
		}
		if r.checkForOneCompletion() {
			return true
		}
		if r.isStopped() {
			return false
		}
		if !r.doPoll() {
			return false
		}
	}
}

// Run drives the loop until Stop() is observed and the submission queue
// is empty. On exit, every still-pending operation receives a stopped
// signal.
func (r *Reactor) Run() int {
	completed := 0
	for !r.isStopped() {
		if r.RunOne() {
			completed++
			continue
		}
		r.submitMu.Lock()
		if len(r.pending) == 0 && !r.stopped {
			r.submitCv.Wait()
		}
		r.submitMu.Unlock()
	}

	// A stopped completion may submit follow-up work (a scheduler hop, a
	// write), so keep draining until nothing is pending or registered.
	for r.checkInOps(); len(r.ops) > 1; r.checkInOps() {
		stopping := r.ops
		r.pollSet = r.pollSet[:1]
		r.ops = []Op{nil}
		for i, op := range stopping {
			if i == 0 || op == nil {
				continue
			}
			op.SetStopped()
			completed++
		}
	}
	return completed
}
