//go:build linux

// File: internal/ioops/writeall.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
package ioops

import (
	"github.com/corvid-labs/reactorhttp/internal/async"
	"github.com/corvid-labs/reactorhttp/internal/ioctx"
)

// WriteAll issues AsyncWrite repeatedly, advancing past however many
// bytes each underlying write(2) accepts, until buf is fully written.
// It value-completes with len(buf) once done; a short write is never
// visible to the caller, matching the response serializer's no-copy
// scatter/gather contract, which expects "the buffers" to simply be
// written in full.
func WriteAll(ctx *ioctx.Context, c *Connection, buf []byte) async.Operation[int] {
	var step func(written int) async.Operation[int]
	step = func(written int) async.Operation[int] {
		if written >= len(buf) {
			return async.Just(written)
		}
		return async.LetValue(AsyncWrite(ctx, c, buf[written:]), func(n int) async.Operation[int] {
			if n == 0 {
				return async.JustError[int](&async.Error{
					Kind:    async.KindSyscallFailure,
					Message: "write returned 0 before buffer fully sent",
				})
			}
			return step(written + n)
		})
	}
	return step(0)
}
