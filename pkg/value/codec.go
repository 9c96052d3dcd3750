package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TemplateKey marks a named template result on the wire:
//
//	{"$template": {"name": "app.sh", "text": "#!/bin/sh\n..."}}
const TemplateKey = "$template"

// Decode reads one JSON document from r, keeping mapping order.
func Decode(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("decode result: unexpected data after top-level value")
	}
	return v, nil
}

// Unmarshal decodes a JSON document, keeping mapping order.
func Unmarshal(data []byte) (Value, error) {
	return Decode(bytes.NewReader(data))
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("decode result: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("decode result: %w", err)
			}
			return Seq(items...), nil
		}
		return Value{}, fmt.Errorf("decode result: unexpected delimiter %q", t)
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	}
	return Value{}, fmt.Errorf("decode result: unexpected token %v", tok)
}

func decodeObject(dec *json.Decoder) (Value, error) {
	m := NewMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("decode result: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("decode result: object key %v is not a string", tok)
		}
		item, err := decodeValue(dec)
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", key, err)
		}
		m.Set(key, item)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, fmt.Errorf("decode result: %w", err)
	}

	if m.Len() == 1 && m.Has(TemplateKey) {
		return decodeTemplate(m)
	}
	return FromMap(m), nil
}

func decodeTemplate(m *Map) (Value, error) {
	raw, _ := m.Get(TemplateKey)
	inner, ok := raw.Map()
	if !ok || inner.Len() != 2 {
		return Value{}, fmt.Errorf("decode result: %s must be a mapping with 'name' and 'text'", TemplateKey)
	}
	nameV, _ := inner.Get("name")
	textV, _ := inner.Get("text")
	name, okName := nameV.Str()
	text, okText := textV.Str()
	if !okName || !okText {
		return Value{}, fmt.Errorf("decode result: %s 'name' and 'text' must be strings", TemplateKey)
	}
	return Template(name, text), nil
}

// MarshalJSON implements json.Marshaler. Template results keep their name
// using the TemplateKey wire form; use Interface for plain data.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler, keeping key order.
func (m *Map) MarshalJSON() ([]byte, error) {
	return FromMap(m).MarshalJSON()
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(v.str)
	case KindString:
		return encodeString(buf, v.str)
	case KindTemplate:
		buf.WriteString(`{"` + TemplateKey + `":{"name":`)
		if err := encodeString(buf, v.tmpl.Name); err != nil {
			return err
		}
		buf.WriteString(`,"text":`)
		if err := encodeString(buf, v.tmpl.Text); err != nil {
			return err
		}
		buf.WriteString("}}")
	case KindSeq:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, k := range v.m.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeValue(buf, v.m.items[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("encode result: unknown kind %s", v.kind)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// MarshalYAML implements yaml.Marshaler. Mapping order is kept and template
// results are written as strings annotated with the template name.
func (v Value) MarshalYAML() (any, error) {
	return yamlNode(v), nil
}

func yamlNode(v Value) *yaml.Node {
	switch v.kind {
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.b)}
	case KindNumber:
		tag := "!!int"
		if strings.ContainsAny(v.str, ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.str}
	case KindString:
		return stringNode(v.str)
	case KindTemplate:
		n := stringNode(v.tmpl.Text)
		n.LineComment = "template " + v.tmpl.Name
		return n
	case KindSeq:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.seq {
			n.Content = append(n.Content, yamlNode(item))
		}
		return n
	case KindMap:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.m.keys {
			n.Content = append(n.Content, stringNode(k), yamlNode(v.m.items[k]))
		}
		return n
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

func stringNode(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.Contains(s, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}
