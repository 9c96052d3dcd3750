// Package value models the result tree produced by a generation engine.
//
// A Value is a tagged variant: null, bool, number, string, sequence,
// mapping or named template result. Consumers switch on Kind instead of
// reflecting over arbitrary Go data, so every consumption site (files,
// $shars, text) states exactly which shapes it accepts.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSeq
	KindMap
	KindTemplate
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSeq:
		return "sequence"
	case KindMap:
		return "mapping"
	case KindTemplate:
		return "template result"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TemplateResult is the text produced by expanding a named template.
// It behaves like a string everywhere except where a file name has to be
// derived from it.
type TemplateResult struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Value is one node of a result tree. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	str  string // string payload or number literal
	seq  []Value
	m    *Map
	tmpl TemplateResult
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a JSON number literal.
func Number(n json.Number) Value { return Value{kind: KindNumber, str: string(n)} }

// Int wraps an integer.
func Int(n int64) Value { return Number(json.Number(fmt.Sprintf("%d", n))) }

// String wraps a plain string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Seq wraps a sequence of values.
func Seq(items ...Value) Value { return Value{kind: KindSeq, seq: items} }

// FromMap wraps a mapping. A nil map becomes an empty mapping.
func FromMap(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

// Template wraps the result of expanding the template called name.
func Template(name, text string) Value {
	return Value{kind: KindTemplate, tmpl: TemplateResult{Name: name, Text: text}}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string held by v. Template results count as strings.
func (v Value) Str() (string, bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindTemplate:
		return v.tmpl.Text, true
	}
	return "", false
}

// Template returns the template result held by v.
func (v Value) Template() (TemplateResult, bool) {
	if v.kind != KindTemplate {
		return TemplateResult{}, false
	}
	return v.tmpl, true
}

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Number returns the number literal held by v.
func (v Value) Number() (json.Number, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return json.Number(v.str), true
}

// Seq returns the items of a sequence.
func (v Value) Seq() ([]Value, bool) {
	if v.kind != KindSeq {
		return nil, false
	}
	return v.seq, true
}

// Map returns the mapping held by v.
func (v Value) Map() (*Map, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// Truthy follows the generator's notion of truth: null, false, zero,
// empty strings and empty containers are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		f, err := json.Number(v.str).Float64()
		return err != nil || f != 0
	case KindString:
		return v.str != ""
	case KindTemplate:
		return v.tmpl.Text != ""
	case KindSeq:
		return len(v.seq) > 0
	case KindMap:
		return v.m.Len() > 0
	}
	return false
}

// Interface converts v into plain Go data: map[string]any, []any, string,
// json.Number, bool or nil. Template results become their text.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return json.Number(v.str)
	case KindString:
		return v.str
	case KindTemplate:
		return v.tmpl.Text
	case KindSeq:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, v.m.Len())
		for _, k := range v.m.keys {
			out[k] = v.m.items[k].Interface()
		}
		return out
	}
	return nil
}

// FromAny converts plain Go data into a Value. Map keys are sorted since
// Go maps carry no order.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case TemplateResult:
		return Template(t.Name, t.Text), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		return floatValue(t)
	case float32:
		return floatValue(float64(t))
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case int32:
		return Int(int64(t)), nil
	case uint64:
		return Number(json.Number(fmt.Sprintf("%d", t))), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = iv
		}
		return Seq(items...), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Seq(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			iv, err := FromAny(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			m.Set(k, iv)
		}
		return FromMap(m), nil
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, String(t[k]))
		}
		return FromMap(m), nil
	case *Map:
		return FromMap(t), nil
	}
	return Value{}, fmt.Errorf("unsupported type %s", reflect.TypeOf(x))
}

func floatValue(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("number %v is not representable", f)
	}
	b, err := json.Marshal(f)
	if err != nil {
		return Value{}, err
	}
	return Number(json.Number(b)), nil
}

// Equal reports deep equality. Numbers compare by their numeric value and
// mapping key order is ignored.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		if a.str == b.str {
			return true
		}
		fa, errA := json.Number(a.str).Float64()
		fb, errB := json.Number(b.str).Float64()
		return errA == nil && errB == nil && fa == fb
	case KindString:
		return a.str == b.str
	case KindTemplate:
		return a.tmpl == b.tmpl
	case KindSeq:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if a.m.Len() != b.m.Len() {
			return false
		}
		for _, k := range a.m.keys {
			bv, ok := b.m.items[k]
			if !ok || !Equal(a.m.items[k], bv) {
				return false
			}
		}
		return true
	}
	return false
}
