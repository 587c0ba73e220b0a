// File: internal/httpserver/serializer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on original_source/src/http_server/to_buffers.cpp: a fixed
// per-status-code status-line table, and a gather list built from the
// response's header strings plus two constant separators. The body is
// the one element copied (into a string).
package httpserver

const headerSeparator = ": "
const crlf = "\r\n"

var statusLines = func() map[StatusCode]string {
	m := make(map[StatusCode]string, len(reasonPhrases))
	for sc, reason := range reasonPhrases {
		m[sc] = "HTTP/1.1 " + itoa(int(sc)) + " " + reason + "\r\n"
	}
	return m
}()

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ToBuffers appends the gather list for resp to *out: the status
// line, then "name", ": ", "value", "\r\n" for each header, then a
// blank line, then the body if nonempty. Every appended element except
// the body is one of resp's header strings or an entry of the fixed
// statusLines/separator tables; the body is appended as
// string(resp.Body), which copies it.
// Callers that want zero reallocation of *out should pre-size its
// capacity to 1+4*len(resp.Headers)+2.
func ToBuffers(resp *Response, out *[]string) {
	line, ok := statusLines[resp.Status]
	if !ok {
		line = statusLines[StatusInternalServerError]
	}
	*out = append(*out, line)
	for _, h := range resp.Headers {
		*out = append(*out, h.Name, headerSeparator, h.Value, crlf)
	}
	*out = append(*out, crlf)
	if len(resp.Body) > 0 {
		*out = append(*out, string(resp.Body))
	}
}

// Serialize concatenates ToBuffers' gather list into one contiguous
// byte slice, for callers (e.g. AsyncWrite) that need a single
// write(2) buffer rather than a true scatter/gather syscall.
func Serialize(resp *Response) []byte {
	var parts []string
	ToBuffers(resp, &parts)
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	buf := make([]byte, 0, total)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}
