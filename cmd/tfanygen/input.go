package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}

// defList is the repeatable -D/--def flag. Each occurrence contributes a
// mapping of generator arguments.
type defList []map[string]any

func (l *defList) String() string { return fmt.Sprintf("%d definitions", len(*l)) }

func (l *defList) Set(s string) error {
	m, err := parseDef(s)
	if err != nil {
		return err
	}
	*l = append(*l, m)
	return nil
}

// merged folds all definitions into one argument map; later keys win.
func (l defList) merged() map[string]any {
	out := map[string]any{}
	for _, m := range l {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// parseDef accepts "@file.json", "@file.yaml", "key=value" where value is
// JSON or else a plain string, and a bare "key" meaning true.
func parseDef(s string) (map[string]any, error) {
	if file, ok := strings.CutPrefix(s, "@"); ok {
		return readDefFile(file)
	}

	key, raw, ok := strings.Cut(s, "=")
	if !ok {
		return map[string]any{s: true}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]any{key: raw}, nil
	}
	return map[string]any{key: v}, nil
}

func readDefFile(path string) (map[string]any, error) {
	var decode func([]byte, any) error
	switch {
	case strings.HasSuffix(path, ".json"):
		decode = json.Unmarshal
	case strings.HasSuffix(path, ".yml"), strings.HasSuffix(path, ".yaml"):
		decode = yaml.Unmarshal
	default:
		return nil, fmt.Errorf("don't know how to read %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := decode(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
