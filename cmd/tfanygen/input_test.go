package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseDef(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]any
	}{
		{"flag", map[string]any{"flag": true}},
		{"name=demo", map[string]any{"name": "demo"}},
		{"count=3", map[string]any{"count": float64(3)}},
		{`list=["a","b"]`, map[string]any{"list": []any{"a", "b"}}},
		{"expr=a=b", map[string]any{"expr": "a=b"}},
		{"empty=", map[string]any{"empty": ""}},
		{`quoted="x"`, map[string]any{"quoted": "x"}},
	}
	for _, tt := range tests {
		got, err := parseDef(tt.in)
		if err != nil {
			t.Errorf("parseDef(%q): %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseDef(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestParseDefFiles(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "vars.json")
	yamlPath := filepath.Join(dir, "vars.yaml")
	if err := os.WriteFile(jsonPath, []byte(`{"region": "eu-west-1", "size": 2}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("region: us-east-1\ntags:\n  env: prod\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := parseDef("@" + jsonPath)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if got["region"] != "eu-west-1" || got["size"] != float64(2) {
		t.Errorf("json defs = %#v", got)
	}

	got, err = parseDef("@" + yamlPath)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	tags, _ := got["tags"].(map[string]any)
	if got["region"] != "us-east-1" || tags["env"] != "prod" {
		t.Errorf("yaml defs = %#v", got)
	}

	if _, err := parseDef("@" + filepath.Join(dir, "vars.toml")); err == nil {
		t.Error("expected error for unknown extension")
	}
	if _, err := parseDef("@" + filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefListMerged(t *testing.T) {
	var defs defList
	for _, s := range []string{"a=1", "b", "a=2"} {
		if err := defs.Set(s); err != nil {
			t.Fatal(err)
		}
	}
	got := defs.merged()
	want := map[string]any{"a": float64(2), "b": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("merged = %#v, want %#v", got, want)
	}
}
