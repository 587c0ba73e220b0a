// File: internal/httpserver/uri.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on original_source/src/parsed_uri.cpp: split on the first
// '?' into path and a raw params string, then split the params string
// on '&' into name=value pairs (split on the first '=' within each),
// dropping any parameter whose name is empty. No percent-decoding.
package httpserver

import "strings"

// Param is one name=value (or bare name) query parameter.
type Param struct {
	Name  string
	Value string
}

// ParsedURI is a request URI split into its path and ordered query
// parameters, without percent-decoding.
type ParsedURI struct {
	Path         string
	ParamsString string
	Params       []Param
}

// ParseURI splits uri on the first '?'; everything after it is split
// on '&' into parameters, each split on its first '='. A parameter
// with an empty name is dropped; one with no '=' keeps an empty value.
func ParseURI(uri string) ParsedURI {
	idx := strings.IndexByte(uri, '?')
	if idx < 0 {
		return ParsedURI{Path: uri}
	}
	path := uri[:idx]
	paramsString := uri[idx+1:]

	var params []Param
	for _, raw := range strings.Split(paramsString, "&") {
		name, value := raw, ""
		if eq := strings.IndexByte(raw, '='); eq >= 0 {
			name, value = raw[:eq], raw[eq+1:]
		}
		if name == "" {
			continue
		}
		params = append(params, Param{Name: name, Value: value})
	}
	return ParsedURI{Path: path, ParamsString: paramsString, Params: params}
}

// IntParam returns the decimal value of the first parameter named
// name, or def if absent or non-decimal. Per spec, query integers are
// base-10, unsigned, no sign character.
func (p ParsedURI) IntParam(name string, def int) int {
	for _, param := range p.Params {
		if param.Name != name {
			continue
		}
		if param.Value == "" {
			return def
		}
		n := 0
		for _, c := range param.Value {
			if c < '0' || c > '9' {
				return def
			}
			n = n*10 + int(c-'0')
		}
		return n
	}
	return def
}
