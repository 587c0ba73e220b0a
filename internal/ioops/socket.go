//go:build linux

// File: internal/ioops/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package ioops provides the three async I/O primitives the spec
// names — accept, read, write — plus the non-copyable connection and
// listening-socket handles they operate on.
//
// Grounded on original_source/src/io/listening_socket.cpp (socket,
// fcntl O_NONBLOCK, SO_REUSEADDR, bind, listen) and
// original_source/src/io/connection.cpp (single-owner fd, double-close
// forbidden, zeroed on move) for the handle types; on
// original_source/src/io/async_accept.hpp, async_read.hpp and
// async_write.hpp for the try_run/EAGAIN-retry/error-classification
// shape of the three primitives, translated from the C++ sender/oper
// pair into Go closures implementing reactor.Op.
package ioops

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/corvid-labs/reactorhttp/internal/async"
	"github.com/corvid-labs/reactorhttp/internal/ioctx"
	"github.com/corvid-labs/reactorhttp/internal/reactor"
)

// Connection is a single, non-shareable ownership of a connected
// socket. It may be closed exactly once; a second Close is a no-op.
type Connection struct {
	mu     sync.Mutex
	fd     int
	closed bool
}

// NewConnection wraps an already-accepted, already-nonblocking fd.
func NewConnection(fd int) *Connection {
	return &Connection{fd: fd}
}

// FD returns the underlying file descriptor. Valid only until Close.
func (c *Connection) FD() int { return c.fd }

// Close releases the socket. Safe to call more than once; only the
// first call actually closes the fd.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}

// ListeningSocket is a bound, listening, nonblocking IPv4 TCP socket.
type ListeningSocket struct {
	mu     sync.Mutex
	fd     int
	closed bool
}

// NewListeningSocket creates a nonblocking TCP socket with
// SO_REUSEADDR set, per original_source/src/io/listening_socket.cpp.
func NewListeningSocket() (*ListeningSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &ListeningSocket{fd: fd}, nil
}

// FD returns the underlying file descriptor.
func (l *ListeningSocket) FD() int { return l.fd }

// Bind binds to INADDR_ANY:port.
func (l *ListeningSocket) Bind(port int) error {
	addr := &unix.SockaddrInet4{Port: port}
	return unix.Bind(l.fd, addr)
}

// Listen marks the socket as passive with a SOMAXCONN-ish backlog.
func (l *ListeningSocket) Listen(backlog int) error {
	return unix.Listen(l.fd, backlog)
}

// Close releases the listening socket. Safe to call more than once.
func (l *ListeningSocket) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return unix.Close(l.fd)
}

func syscallError(cause error) error {
	return &async.Error{Kind: async.KindSyscallFailure, Message: "syscall failed", Cause: cause}
}

func retryable(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

type acceptOp struct {
	sockFD int
	onDone func(fd int, err error)
	stop   func()
}

func (o acceptOp) TryRun() bool {
	fd, _, err := unix.Accept4(o.sockFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err == nil {
		o.onDone(fd, nil)
		return true
	}
	if retryable(err) {
		return false
	}
	o.onDone(-1, err)
	return true
}

func (o acceptOp) SetStopped() { o.stop() }

// AsyncAccept completes with a freshly accepted, already-nonblocking
// Connection once sock has a pending client, per spec.md §4.D.
func AsyncAccept(ctx *ioctx.Context, sock *ListeningSocket) async.Operation[*Connection] {
	return func(r async.Receiver[*Connection]) {
		ctx.Reactor().SubmitIO(sock.FD(), reactor.InterestRead, acceptOp{
			sockFD: sock.FD(),
			onDone: func(fd int, err error) {
				if err != nil {
					if r.OnError != nil {
						r.OnError(syscallError(err))
					}
					return
				}
				if r.OnValue != nil {
					r.OnValue(NewConnection(fd))
				}
			},
			stop: func() {
				if r.OnStopped != nil {
					r.OnStopped()
				}
			},
		})
	}
}

type readOp struct {
	fd     int
	buf    []byte
	onDone func(n int, err error)
	stop   func()
}

func (o readOp) TryRun() bool {
	n, err := unix.Read(o.fd, o.buf)
	if err == nil {
		o.onDone(n, nil)
		return true
	}
	if retryable(err) {
		return false
	}
	o.onDone(0, err)
	return true
}

func (o readOp) SetStopped() { o.stop() }

// AsyncRead completes with the number of bytes read into buf (0 means
// the peer closed its write side), per spec.md §4.D.
func AsyncRead(ctx *ioctx.Context, c *Connection, buf []byte) async.Operation[int] {
	return func(r async.Receiver[int]) {
		ctx.Reactor().SubmitIO(c.FD(), reactor.InterestRead, readOp{
			fd:  c.FD(),
			buf: buf,
			onDone: func(n int, err error) {
				if err != nil {
					if r.OnError != nil {
						r.OnError(syscallError(err))
					}
					return
				}
				if r.OnValue != nil {
					r.OnValue(n)
				}
			},
			stop: func() {
				if r.OnStopped != nil {
					r.OnStopped()
				}
			},
		})
	}
}

type writeOp struct {
	fd     int
	buf    []byte
	onDone func(n int, err error)
	stop   func()
}

func (o writeOp) TryRun() bool {
	n, err := unix.Write(o.fd, o.buf)
	if err == nil {
		o.onDone(n, nil)
		return true
	}
	if retryable(err) {
		return false
	}
	o.onDone(0, err)
	return true
}

func (o writeOp) SetStopped() { o.stop() }

// AsyncWrite completes with the number of bytes written from buf. The
// caller is responsible for resubmitting for any remainder: this
// primitive, like the original it is grounded on, performs a single
// underlying write(2) per completion rather than looping to a full
// write.
func AsyncWrite(ctx *ioctx.Context, c *Connection, buf []byte) async.Operation[int] {
	return func(r async.Receiver[int]) {
		ctx.Reactor().SubmitIO(c.FD(), reactor.InterestWrite, writeOp{
			fd:  c.FD(),
			buf: buf,
			onDone: func(n int, err error) {
				if err != nil {
					if r.OnError != nil {
						r.OnError(syscallError(err))
					}
					return
				}
				if r.OnValue != nil {
					r.OnValue(n)
				}
			},
			stop: func() {
				if r.OnStopped != nil {
					r.OnStopped()
				}
			},
		})
	}
}
