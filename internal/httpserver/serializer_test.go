package httpserver_test

import (
	"strings"
	"testing"

	"github.com/corvid-labs/reactorhttp/internal/httpserver"
)

func TestToBuffersOrderAndContent(t *testing.T) {
	resp := httpserver.NewResponseWithBody(httpserver.StatusOK, "text/plain", []byte("hi"))
	var parts []string
	httpserver.ToBuffers(&resp, &parts)

	if parts[0] != "HTTP/1.1 200 OK\r\n" {
		t.Fatalf("unexpected status line: %q", parts[0])
	}
	if parts[1] != "Content-type" || parts[2] != ": " || parts[3] != "text/plain" || parts[4] != "\r\n" {
		t.Fatalf("unexpected header fields: %v", parts[1:5])
	}
	if parts[5] != "\r\n" {
		t.Fatalf("expected blank line after headers, got %q", parts[5])
	}
	if parts[6] != "hi" {
		t.Fatalf("expected body last, got %q", parts[6])
	}
}

func TestToBuffersOmitsBodyWhenEmpty(t *testing.T) {
	resp := httpserver.NewResponse(httpserver.StatusNoContent)
	var parts []string
	httpserver.ToBuffers(&resp, &parts)
	if parts[len(parts)-1] != "\r\n" {
		t.Fatalf("expected no body element after the blank line, got %q", parts[len(parts)-1])
	}
}

func TestSerializeMatchesToBuffersConcatenation(t *testing.T) {
	resp := httpserver.NewResponseWithBody(httpserver.StatusNotFound, "text/plain", []byte("nope"))
	var parts []string
	httpserver.ToBuffers(&resp, &parts)
	want := strings.Join(parts, "")
	if got := string(httpserver.Serialize(&resp)); got != want {
		t.Fatalf("Serialize/ToBuffers mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

// Property 7: round-trip of the fields through the wire format. We
// hand-parse the status line and headers here (mirroring, not reusing,
// the request parser's line-splitting) since the production parser
// only understands requests, not responses.
func TestSerializeRoundTripsFields(t *testing.T) {
	resp := httpserver.NewResponseFull(
		httpserver.StatusOK,
		[]httpserver.Header{{Name: "X-Trace", Value: "abc123"}},
		"application/jpeg",
		[]byte{0xFF, 0xD8, 0xFF},
	)
	raw := httpserver.Serialize(&resp)

	headEnd := strings.Index(string(raw), "\r\n\r\n")
	if headEnd < 0 {
		t.Fatalf("no blank line found in serialized response")
	}
	head := string(raw[:headEnd])
	body := raw[headEnd+4:]

	lines := strings.Split(head, "\r\n")
	statusLine := lines[0]
	if statusLine != "HTTP/1.1 200 OK" {
		t.Fatalf("unexpected status line: %q", statusLine)
	}

	gotHeaders := map[string]string{}
	for _, l := range lines[1:] {
		idx := strings.Index(l, ": ")
		if idx < 0 {
			t.Fatalf("malformed header line: %q", l)
		}
		gotHeaders[l[:idx]] = l[idx+2:]
	}
	if gotHeaders["X-Trace"] != "abc123" {
		t.Fatalf("X-Trace header lost in round trip: %v", gotHeaders)
	}
	if gotHeaders["Content-type"] != "application/jpeg" {
		t.Fatalf("Content-type header lost in round trip: %v", gotHeaders)
	}
	if string(body) != string([]byte{0xFF, 0xD8, 0xFF}) {
		t.Fatalf("body lost in round trip: %v", body)
	}
}

func TestReasonPhrasesCoverAllSixteenCodes(t *testing.T) {
	codes := []httpserver.StatusCode{
		200, 201, 202, 204, 300, 301, 302, 304,
		400, 401, 403, 404, 500, 501, 502, 503,
	}
	for _, c := range codes {
		if httpserver.ReasonPhrase(c) == "" {
			t.Fatalf("missing reason phrase for status %d", c)
		}
	}
	if len(codes) != 16 {
		t.Fatalf("expected exactly 16 supported codes, got %d", len(codes))
	}
}
