// File: internal/httpserver/router.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on original_source/src/handle_request.hpp (the routing
// decision point) and handle_transform_requests.hpp (the six
// transform-route names). Per-handler query-parameter defaults follow
// spec.md's external-interface table (3/3,5,5/5/3,1/3,5,5,3,1), not
// the original's own call sites verbatim: handle_contourpaint's
// get_param_int(puri, "dyn_ratio", 5) and handle_oilpainting's "size"
// default of 10 both diverge from the distilled spec, and the spec's
// stated defaults win in both places.
package httpserver

import (
	"strings"

	"github.com/corvid-labs/reactorhttp/internal/async"
	"github.com/corvid-labs/reactorhttp/internal/imaging"
)

const transformPrefix = "/transform/"

// Route dispatches a parsed request to the matching image-transform
// handler, running the CPU-bound work on sched. An unrecognized path
// value-completes with a 404 response rather than erroring, since 404
// is itself a well-formed response, not a pipeline failure.
func Route(sched async.Scheduler, req *Request) async.Operation[Response] {
	if !strings.HasPrefix(req.URI, transformPrefix) {
		return async.Just(NewResponse(StatusNotFound))
	}

	puri := ParseURI(req.URI)
	name := strings.TrimPrefix(puri.Path, transformPrefix)

	switch name {
	case "blur":
		return runSync(sched, func() ([]byte, error) {
			return imaging.Blur(req.Body, puri.IntParam("size", 3))
		})
	case "adaptthresh":
		return runSync(sched, func() ([]byte, error) {
			return imaging.AdaptThresh(req.Body,
				puri.IntParam("blur_size", 3),
				puri.IntParam("block_size", 5),
				puri.IntParam("diff", 5))
		})
	case "reducecolors":
		return runSync(sched, func() ([]byte, error) {
			return imaging.ReduceColors(req.Body, puri.IntParam("num_colors", 5))
		})
	case "cartoonify":
		return toResponse(imaging.Cartoonify(sched, req.Body,
			puri.IntParam("blur_size", 3),
			puri.IntParam("num_colors", 5),
			puri.IntParam("block_size", 5),
			puri.IntParam("diff", 5)))
	case "oilpainting":
		return runSync(sched, func() ([]byte, error) {
			return imaging.OilPainting(req.Body,
				puri.IntParam("size", 3),
				puri.IntParam("dyn_ratio", 1))
		})
	case "contourpaint":
		return toResponse(imaging.ContourPaint(sched, req.Body,
			puri.IntParam("blur_size", 3),
			puri.IntParam("block_size", 5),
			puri.IntParam("diff", 5),
			puri.IntParam("oil_size", 3),
			puri.IntParam("dyn_ratio", 1)))
	default:
		return async.Just(NewResponse(StatusNotFound))
	}
}

// runSync wraps a blocking (img, err) computation as an
// Operation[Response] scheduled onto sched (the worker pool), turning
// a transform error into a well-formed 500 response rather than an
// error completion, matching create_response's no-body error variant.
func runSync(sched async.Scheduler, fn func() ([]byte, error)) async.Operation[Response] {
	return async.On(sched, async.Operation[Response](func(r async.Receiver[Response]) {
		body, err := fn()
		if err != nil {
			r.OnValue(NewResponse(StatusInternalServerError))
			return
		}
		r.OnValue(NewResponseWithBody(StatusOK, "application/jpeg", body))
	}))
}

func toResponse(op async.Operation[[]byte]) async.Operation[Response] {
	return async.LetError(async.Then(op, func(body []byte) Response {
		return NewResponseWithBody(StatusOK, "application/jpeg", body)
	}), func(error) async.Operation[Response] {
		return async.Just(NewResponse(StatusInternalServerError))
	})
}
