// File: internal/httpserver/parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on original_source/src/http_server/request_parser.cpp: a
// push-driven FSM over FirstLine -> HeaderLines -> Body -> Done,
// accumulating a partial line across Feed calls until a full "\r\n" is
// seen. Content-Length drives the body byte count; its absence means
// a zero-length body (spec.md's recommended resolution of the
// source's inconsistent absent-body behaviour).
package httpserver

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/corvid-labs/reactorhttp/internal/async"
)

var crlfBytes = []byte("\r\n")

type parseState int

const (
	stateFirstLine parseState = iota
	stateHeaderLines
	stateBody
	stateDone
)

// Parser is a single-shot, push-driven HTTP/1.1 request parser. Feed it
// until it returns a non-nil Request, then either discard it or call
// Reset and hand it to the next connection (see parserPool in
// pipeline.go).
type Parser struct {
	state parseState

	lineBuf []byte

	method  Method
	uri     string
	headers []Header

	bodyRemaining int
	body          []byte
}

// NewParser returns a parser positioned at the start of a request.
func NewParser() *Parser {
	return &Parser{}
}

// Reset returns p to its start-of-request state so it can be reused
// for a new connection. It does not reuse the previous request's
// backing arrays (headers/body may still be referenced by a Request
// value the caller returned earlier), only the *Parser allocation
// itself.
func (p *Parser) Reset() {
	p.state = stateFirstLine
	p.lineBuf = nil
	p.method = MethodGet
	p.uri = ""
	p.headers = nil
	p.bodyRemaining = 0
	p.body = nil
}

func badRequest(msg string) error {
	return &async.Error{Kind: async.KindBadRequest, Message: msg}
}

// Feed pushes another chunk of bytes read off the wire. It returns a
// completed Request once the FSM reaches Done, or nil while more data
// is needed. A non-nil error means the request is malformed; the
// parser must not be fed further once it returns an error.
//
// Property 6 (chunk-split resilience): the result for a given request
// byte stream is independent of how it is partitioned across Feed
// calls. Unparsed bytes (including a "\r\n" split exactly across two
// Feed calls) are buffered in lineBuf and the search for the next line
// terminator always runs over the full accumulated buffer, never just
// the newly arrived fragment.
func (p *Parser) Feed(data []byte) (*Request, error) {
	if p.state == stateDone {
		return nil, nil
	}

	if p.state != stateBody {
		p.lineBuf = append(p.lineBuf, data...)
		for p.state != stateBody {
			idx := bytes.Index(p.lineBuf, crlfBytes)
			if idx < 0 {
				return nil, nil
			}
			line := string(p.lineBuf[:idx])
			p.lineBuf = p.lineBuf[idx+2:]
			if err := p.addLine(line); err != nil {
				return nil, err
			}
		}
		// Whatever is left in lineBuf once headers end is already body.
		data = p.lineBuf
		p.lineBuf = nil
	}

	if p.bodyRemaining >= len(data) {
		p.body = append(p.body, data...)
		p.bodyRemaining -= len(data)
	} else {
		p.body = append(p.body, data[:p.bodyRemaining]...)
		p.bodyRemaining = 0
	}
	if p.bodyRemaining == 0 {
		p.state = stateDone
		return &Request{
			Method:  p.method,
			URI:     p.uri,
			Headers: p.headers,
			Body:    p.body,
		}, nil
	}
	return nil, nil
}

func (p *Parser) addLine(line string) error {
	if p.state == stateFirstLine {
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			sp = len(line)
		}
		method, ok := parseMethod(line[:sp])
		if !ok {
			return badRequest("unrecognized HTTP method")
		}
		p.method = method

		rest := line[min(sp+1, len(line)):]
		uriEnd := strings.Index(rest, " HTTP/")
		if uriEnd < 0 {
			uriEnd = len(rest)
		}
		p.uri = rest[:uriEnd]
		p.state = stateHeaderLines
		return nil
	}

	if line == "" {
		p.state = stateBody
		return nil
	}

	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return badRequest("header line missing ':'")
	}
	name := line[:colon]
	value := strings.TrimLeft(line[colon+1:], " \t")
	if name == "" || value == "" {
		return badRequest("empty header name or value")
	}
	name = strings.ToLower(name)

	if name == "content-length" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return badRequest("non-decimal content-length")
		}
		p.bodyRemaining = n
		p.body = make([]byte, 0, n)
	}

	p.headers = append(p.headers, Header{Name: name, Value: value})
	return nil
}
