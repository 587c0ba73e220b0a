// File: internal/httpserver/pipeline.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on the per-connection orchestration spec.md §4.I describes:
// read | transfer(pool) | let_value(route_and_handle) | let_error(500)
// | let_stopped(500) | let_value(write) | close. There is no direct
// original_source analogue for this exact composition (the C++ source
// drives its loop through coroutine co_await rather than combinators),
// so the shape here follows spec.md directly, built from the
// internal/async primitives.
package httpserver

import (
	"github.com/corvid-labs/reactorhttp/internal/async"
	"github.com/corvid-labs/reactorhttp/internal/bufpool"
	"github.com/corvid-labs/reactorhttp/internal/ioctx"
	"github.com/corvid-labs/reactorhttp/internal/ioops"
)

// parserPool recycles *Parser instances across connections, per
// bufpool's adaptation of the teacher's pool/objpool.go SyncPool[T]:
// a connection acquires one in HandleConnection and returns it (after
// Reset) once the pipeline completes, on every completion channel.
var parserPool = bufpool.NewSyncPool(NewParser)

// readRequest loops AsyncRead into buf, feeding each chunk to parser,
// until a complete Request is parsed or an I/O/parse failure occurs.
func readRequest(ctx *ioctx.Context, conn *ioops.Connection, buf []byte, parser *Parser) async.Operation[*Request] {
	var step func() async.Operation[*Request]
	step = func() async.Operation[*Request] {
		return async.LetValue(ioops.AsyncRead(ctx, conn, buf), func(n int) async.Operation[*Request] {
			if n == 0 {
				return async.JustError[*Request](&async.Error{
					Kind:    async.KindParseFailure,
					Message: "peer closed the connection before a complete request arrived",
				})
			}
			req, err := parser.Feed(buf[:n])
			if err != nil {
				return async.JustError[*Request](err)
			}
			if req != nil {
				return async.Just(req)
			}
			return step()
		})
	}
	return step()
}

// fallback500 converts any error or stopped completion reaching it
// into a well-formed 500 response, per spec.md §7's requirement that
// every connection yields a response or a clean close, never an
// unhandled failure.
func fallback500(op async.Operation[Response]) async.Operation[Response] {
	withErr := async.LetError(op, func(error) async.Operation[Response] {
		return async.Just(NewResponse(StatusInternalServerError))
	})
	return async.LetStopped(withErr, func() async.Operation[Response] {
		return async.Just(NewResponse(StatusInternalServerError))
	})
}

// HandleConnection runs the full per-connection pipeline: read a
// request (on the reactor thread), transfer to the pool, route and
// handle it, fall back to 500 on error/stopped, write the response,
// then release the read buffer and close the connection — on every
// completion path, not just the success one.
func HandleConnection(ctx *ioctx.Context, pool async.Scheduler, buffers bufpool.BytePool, conn *ioops.Connection) async.Operation[struct{}] {
	buf := buffers.Get()
	parser := parserPool.Get()

	onPool := async.Transfer(readRequest(ctx, conn, buf, parser), pool)
	routed := async.LetValue(onPool, func(req *Request) async.Operation[Response] {
		return Route(pool, req)
	})
	withResponse := fallback500(routed)
	// Hop back onto the reactor thread via the I/O context's own
	// scheduler before touching the connection again, per spec.md
	// §4.B: the write that follows is I/O owned by the reactor, not
	// the pool that computed the response.
	onReactor := async.Transfer(withResponse, ctx.Scheduler())
	written := async.LetValue(onReactor, func(resp Response) async.Operation[int] {
		raw := Serialize(&resp)
		return ioops.WriteAll(ctx, conn, raw)
	})

	return func(r async.Receiver[struct{}]) {
		cleanup := func() {
			parser.Reset()
			parserPool.Put(parser)
			buffers.Put(buf)
			conn.Close()
		}
		written.Start(async.Receiver[int]{
			OnValue: func(int) {
				cleanup()
				if r.OnValue != nil {
					r.OnValue(struct{}{})
				}
			},
			OnError: func(err error) {
				cleanup()
				if r.OnError != nil {
					r.OnError(err)
				}
			},
			OnStopped: func() {
				cleanup()
				if r.OnStopped != nil {
					r.OnStopped()
				}
			},
		})
	}
}
