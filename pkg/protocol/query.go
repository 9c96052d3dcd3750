// Package protocol implements the external data source exchange: a flat
// string-to-string JSON object read from stdin and another written to
// stdout.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Fixed query keys.
const (
	KeyPath      = "path"
	KeyClasses   = "classes"
	KeyDebugDump = "debug_dump"
	ArgPrefix    = "arg_"
)

// Query is the string map handed to the external program.
type Query map[string]string

// Request is a generation call carried by a Query.
type Request struct {
	Path      []string
	Classes   []string
	Args      map[string]any
	DebugDump string
}

// templateEscaper rewrites the two template introducers of the
// orchestrator's string syntax as JSON unicode escapes. The result is
// still valid JSON that decodes to the same value.
var templateEscaper = strings.NewReplacer("${", `\u0024{`, "%{", `\u0025{`)

// ToQuery encodes req. Every argument becomes an "arg_<name>" key whose
// value is the argument's JSON text, escaped so that string interpolation
// leaves it untouched.
func ToQuery(req Request) (Query, error) {
	q := Query{
		KeyPath:    strings.Join(req.Path, string(os.PathListSeparator)),
		KeyClasses: strings.Join(req.Classes, ","),
	}
	if req.DebugDump != "" {
		q[KeyDebugDump] = req.DebugDump
	}

	for name, arg := range req.Args {
		data, err := encodeArg(arg)
		if err != nil {
			return nil, fmt.Errorf("encode arg %q: %w", name, err)
		}
		q[ArgPrefix+name] = templateEscaper.Replace(data)
	}
	return q, nil
}

func encodeArg(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// FromQuery decodes a Query back into a Request. Numbers are kept as
// json.Number so large integers survive.
func FromQuery(q Query) (Request, error) {
	path, ok := q[KeyPath]
	if !ok {
		return Request{}, fmt.Errorf("query: missing %q", KeyPath)
	}
	classes, ok := q[KeyClasses]
	if !ok {
		return Request{}, fmt.Errorf("query: missing %q", KeyClasses)
	}

	req := Request{
		Path:      splitNonEmpty(path, string(os.PathListSeparator)),
		Classes:   splitNonEmpty(classes, ","),
		Args:      make(map[string]any),
		DebugDump: q[KeyDebugDump],
	}

	for key, raw := range q {
		name, ok := strings.CutPrefix(key, ArgPrefix)
		if !ok {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return Request{}, fmt.Errorf("query: decode %s: %w", key, err)
		}
		if dec.More() {
			return Request{}, fmt.Errorf("query: decode %s: unexpected trailing data", key)
		}
		req.Args[name] = v
	}
	return req, nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}

// ReadQuery reads and validates one query object.
func ReadQuery(r io.Reader) (Query, error) {
	var raw any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("read query: %w", err)
	}
	if err := ValidateQuery(raw); err != nil {
		return nil, err
	}

	obj := raw.(map[string]any)
	q := make(Query, len(obj))
	for k, v := range obj {
		q[k] = v.(string)
	}
	return q, nil
}

// Keys returns the query keys, sorted.
func (q Query) Keys() []string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
