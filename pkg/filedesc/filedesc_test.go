package filedesc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cgast/tfanygen/pkg/value"
)

func mustParse(t *testing.T, doc string) Descriptor {
	t.Helper()
	v, err := value.Unmarshal([]byte(doc))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	d, err := Parse(v)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return d
}

func TestIsDirectoryStyle(t *testing.T) {
	tests := []struct {
		dest string
		want bool
	}{
		{"", true},
		{".", true},
		{"out/", true},
		{"out/.", true},
		{"out", false},
		{"out/file.", false},
		{"bin/run", false},
	}
	for _, tt := range tests {
		if got := IsDirectoryStyle(tt.dest); got != tt.want {
			t.Errorf("IsDirectoryStyle(%q) = %v, want %v", tt.dest, got, tt.want)
		}
	}
}

func TestResolveExactDestination(t *testing.T) {
	d := mustParse(t, `{"destination": "./etc/app.conf", "content": "key=1", "tags": "cfg"}`)

	r, err := Resolve(d, "/model")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Destination != "etc/app.conf" {
		t.Errorf("Destination = %q, want etc/app.conf", r.Destination)
	}
	if len(r.Tags) != 1 || r.Tags[0] != "cfg" {
		t.Errorf("Tags = %v, want [cfg]", r.Tags)
	}
	data, err := ReadAll(r.Content)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "key=1" {
		t.Errorf("content = %q", data)
	}
}

func TestResolveKeepsParentSegments(t *testing.T) {
	tests := []struct {
		dest string
		want string
	}{
		{"a/../b", "a/../b"},
		{"a//./b", "a/b"},
		{"./x", "x"},
		{"../up", "../up"},
		{"/abs//dir/./f", "/abs/dir/f"},
		{"-x", "-x"},
		{"lib/../", "lib/../run.sh"},
		{"/", "/run.sh"},
	}
	for _, tt := range tests {
		d := mustParse(t, `{"destination": "`+tt.dest+`", "source": "src/run.sh"}`)
		r, err := Resolve(d, "/model")
		if err != nil {
			t.Errorf("Resolve(%q): %v", tt.dest, err)
			continue
		}
		if r.Destination != tt.want {
			t.Errorf("Resolve(%q) destination = %q, want %q", tt.dest, r.Destination, tt.want)
		}
	}
}

func TestResolveDirectoryWithTemplate(t *testing.T) {
	d := mustParse(t, `{"destination": "bin/", "content": {"$template": {"name": "scripts/run.sh", "text": "echo"}}}`)

	r, err := Resolve(d, "/model")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Destination != "bin/run.sh" {
		t.Errorf("Destination = %q, want bin/run.sh", r.Destination)
	}
}

func TestResolveDirectoryWithPlainContent(t *testing.T) {
	d := mustParse(t, `{"destination": "out/", "content": "no name"}`)

	_, err := Resolve(d, "/model")
	var invalid *InvalidDescriptorError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidDescriptorError, got %v", err)
	}
	if invalid.Destination != "out/" {
		t.Errorf("Destination = %q", invalid.Destination)
	}
}

func TestResolveDirectoryWithSource(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "tmpl.sh"), []byte("#!/bin/sh\n"), 0644); err != nil {
		t.Fatal(err)
	}
	d := mustParse(t, `{"destination": "out/", "source": "tmpl.sh", "tags": ["exec", "bin"]}`)

	r, err := Resolve(d, root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Destination != "out/tmpl.sh" {
		t.Errorf("Destination = %q, want out/tmpl.sh", r.Destination)
	}
	src, ok := r.Content.(SourceFile)
	if !ok {
		t.Fatalf("Content = %T, want SourceFile", r.Content)
	}
	if src.Path != filepath.Join(root, "tmpl.sh") {
		t.Errorf("source path = %q", src.Path)
	}
	data, err := ReadAll(r.Content)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "#!/bin/sh\n" {
		t.Errorf("content = %q", data)
	}
}

func TestResolveSourceIsLazy(t *testing.T) {
	d := mustParse(t, `{"destination": "x", "source": "does-not-exist"}`)

	r, err := Resolve(d, t.TempDir())
	if err != nil {
		t.Fatalf("Resolve should not touch the filesystem: %v", err)
	}
	if _, err := ReadAll(r.Content); err == nil {
		t.Error("expected error when opening missing source")
	}
}

func TestResolveEmptyDestination(t *testing.T) {
	d := mustParse(t, `{"destination": "", "source": "sub/tool"}`)

	r, err := Resolve(d, "/model")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Destination != "tool" {
		t.Errorf("Destination = %q, want tool", r.Destination)
	}
}

func TestResolveContentSourceExclusive(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"neither", `{"destination": "x"}`},
		{"both", `{"destination": "x", "content": "a", "source": "b"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustParse(t, tt.doc)
			_, err := Resolve(d, "/model")
			var invalid *InvalidDescriptorError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected *InvalidDescriptorError, got %v", err)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name         string
		doc          string
		unrecognized bool
	}{
		{"not a mapping", `"x"`, false},
		{"missing destination", `{"content": "x"}`, false},
		{"destination not string", `{"destination": 3, "content": "x"}`, false},
		{"bad tags", `{"destination": "x", "content": "a", "tags": {"a": 1}}`, false},
		{"bad tag item", `{"destination": "x", "content": "a", "tags": ["a", 2]}`, false},
		{"typo", `{"destination": "x", "content": "a", "tag": "t"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := value.Unmarshal([]byte(tt.doc))
			if err != nil {
				t.Fatal(err)
			}
			_, err = Parse(v)
			if err == nil {
				t.Fatal("expected error")
			}
			var unrecognized *UnrecognizedFieldError
			if errors.As(err, &unrecognized) != tt.unrecognized {
				t.Errorf("UnrecognizedFieldError = %v, got %v", tt.unrecognized, err)
			}
		})
	}
}

func TestParseDoesNotMutateInput(t *testing.T) {
	v, _ := value.Unmarshal([]byte(`{"destination": "x", "content": "a"}`))
	if _, err := Parse(v); err != nil {
		t.Fatal(err)
	}
	m, _ := v.Map()
	if m.Len() != 2 {
		t.Errorf("input mapping modified: %v", m.Keys())
	}
}
