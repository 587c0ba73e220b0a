// File: internal/httpserver/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on original_source/src/http_server/http_response.hpp (the
// closed set of 16 status codes) and create_response.cpp (the
// with-body / with-headers / headers-and-body constructor variants).
package httpserver

// StatusCode is one of the 16 codes the serializer knows a reason
// phrase for.
type StatusCode int

const (
	StatusOK                  StatusCode = 200
	StatusCreated             StatusCode = 201
	StatusAccepted            StatusCode = 202
	StatusNoContent           StatusCode = 204
	StatusMultipleChoices     StatusCode = 300
	StatusMovedPermanently    StatusCode = 301
	StatusMovedTemporarily    StatusCode = 302
	StatusNotModified         StatusCode = 304
	StatusBadRequest          StatusCode = 400
	StatusUnauthorized        StatusCode = 401
	StatusForbidden           StatusCode = 403
	StatusNotFound            StatusCode = 404
	StatusInternalServerError StatusCode = 500
	StatusNotImplemented      StatusCode = 501
	StatusBadGateway          StatusCode = 502
	StatusServiceUnavailable  StatusCode = 503
)

var reasonPhrases = map[StatusCode]string{
	StatusOK:                  "OK",
	StatusCreated:             "Created",
	StatusAccepted:            "Accepted",
	StatusNoContent:           "No Content",
	StatusMultipleChoices:     "Multiple Choices",
	StatusMovedPermanently:    "Moved Permanently",
	StatusMovedTemporarily:    "Moved Temporarily",
	StatusNotModified:         "Not Modified",
	StatusBadRequest:          "Bad Request",
	StatusUnauthorized:        "Unauthorized",
	StatusForbidden:           "Forbidden",
	StatusNotFound:            "Not Found",
	StatusInternalServerError: "Internal Server Error",
	StatusNotImplemented:      "Not Implemented",
	StatusBadGateway:          "Bad Gateway",
	StatusServiceUnavailable:  "Service Unavailable",
}

// ReasonPhrase returns the fixed reason phrase for sc, or "" if sc is
// outside the supported set.
func ReasonPhrase(sc StatusCode) string { return reasonPhrases[sc] }

// Response is a fully built HTTP/1.1 response awaiting serialization.
type Response struct {
	Status  StatusCode
	Headers []Header
	Body    []byte
}

// NewResponse builds a response with no body.
func NewResponse(sc StatusCode) Response {
	return Response{Status: sc}
}

// NewResponseWithBody builds a response with a body and a
// Content-type header.
func NewResponseWithBody(sc StatusCode, contentType string, body []byte) Response {
	return Response{
		Status:  sc,
		Headers: []Header{{Name: "Content-type", Value: contentType}},
		Body:    body,
	}
}

// NewResponseWithHeaders builds a response with no body but caller-
// supplied headers.
func NewResponseWithHeaders(sc StatusCode, headers []Header) Response {
	return Response{Status: sc, Headers: headers}
}

// NewResponseFull builds a response with both caller-supplied headers
// and a body, appending a Content-type header for the body.
func NewResponseFull(sc StatusCode, headers []Header, contentType string, body []byte) Response {
	hs := append(append([]Header(nil), headers...), Header{Name: "Content-type", Value: contentType})
	return Response{Status: sc, Headers: hs, Body: body}
}
