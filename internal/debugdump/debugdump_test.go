package debugdump

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cgast/tfanygen/pkg/generate"
	"github.com/cgast/tfanygen/pkg/value"
)

func TestWrapEmptyBase(t *testing.T) {
	inner := generate.FuncEngine(func(context.Context, generate.Request) (value.Value, error) {
		return value.Null(), nil
	})
	if got := Wrap(inner, ""); got == nil {
		t.Fatal("Wrap returned nil")
	} else if _, ok := got.(*engine); ok {
		t.Error("empty base should return the engine unchanged")
	}
}

func TestWrapWritesDumps(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "anygen.web")

	inner := generate.FuncEngine(func(context.Context, generate.Request) (value.Value, error) {
		return value.Unmarshal([]byte(`{"zeta": "z", "alpha": {"$template": {"name": "t.j2", "text": "a\nb\n"}}}`))
	})

	_, err := Wrap(inner, base).Produce(context.Background(), generate.Request{
		Path:    []string{"/models"},
		Classes: []string{"web"},
		Args:    map[string]any{"name": "demo"},
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	in, err := os.ReadFile(base + ".in.yaml")
	if err != nil {
		t.Fatalf("read in dump: %v", err)
	}
	for _, want := range []string{"classes:", "- web", "name: demo"} {
		if !strings.Contains(string(in), want) {
			t.Errorf("in dump missing %q:\n%s", want, in)
		}
	}

	out, err := os.ReadFile(base + ".out.yaml")
	if err != nil {
		t.Fatalf("read out dump: %v", err)
	}
	text := string(out)
	if strings.Index(text, "zeta") > strings.Index(text, "alpha") {
		t.Errorf("out dump lost key order:\n%s", text)
	}
	if !strings.Contains(text, "template t.j2") {
		t.Errorf("out dump missing template annotation:\n%s", text)
	}
}

func TestWrapSkipsOutDumpOnError(t *testing.T) {
	base := filepath.Join(t.TempDir(), "terraform")
	boom := errors.New("boom")
	inner := generate.FuncEngine(func(context.Context, generate.Request) (value.Value, error) {
		return value.Value{}, boom
	})

	_, err := Wrap(inner, base).Produce(context.Background(), generate.Request{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := os.Stat(base + ".in.yaml"); err != nil {
		t.Errorf("in dump missing: %v", err)
	}
	if _, err := os.Stat(base + ".out.yaml"); !os.IsNotExist(err) {
		t.Errorf("out dump should not exist, stat err = %v", err)
	}
}

func TestWrapUnwritableBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "missing", "terraform")
	inner := generate.FuncEngine(func(context.Context, generate.Request) (value.Value, error) {
		t.Error("inner engine should not run")
		return value.Null(), nil
	})
	if _, err := Wrap(inner, base).Produce(context.Background(), generate.Request{}); err == nil {
		t.Error("expected error")
	}
}
