package sandbox

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestValidateRelative(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"single component", "a", false},
		{"nested", "a/b", false},
		{"dot prefix", "./a", false},
		{"inner dot", "a/./b", false},
		{"absolute", "/etc/x", true},
		{"parent traversal", "a/../b", true},
		{"leading parent", "../x", true},
		{"empty", "", true},
		{"dot only", ".", true},
		{"slashes only", "./", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRelative(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateRelative(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil {
				var unsafe *UnsafePathError
				if !errors.As(err, &unsafe) {
					t.Fatalf("expected *UnsafePathError, got %T", err)
				}
				if unsafe.Path != tt.path {
					t.Errorf("UnsafePathError.Path = %q, want %q", unsafe.Path, tt.path)
				}
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("root made absolute", func(t *testing.T) {
		s, err := New(Config{Root: "out"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !filepath.IsAbs(s.Root()) {
			t.Errorf("Root() = %q, want absolute path", s.Root())
		}
		if s.MaxFileSize() != 0 {
			t.Errorf("expected no max file size, got %d", s.MaxFileSize())
		}
	})

	t.Run("with file size", func(t *testing.T) {
		s, err := New(Config{Root: t.TempDir(), MaxFileSize: "10MB"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.maxFileSize != 10*1024*1024 {
			t.Errorf("expected 10MB = %d bytes, got %d", 10*1024*1024, s.maxFileSize)
		}
	})

	t.Run("invalid file size", func(t *testing.T) {
		if _, err := New(Config{Root: t.TempDir(), MaxFileSize: "notasize"}); err == nil {
			t.Fatal("expected error for invalid file size")
		}
	})

	t.Run("missing root", func(t *testing.T) {
		if _, err := New(Config{}); err == nil {
			t.Fatal("expected error for missing root")
		}
	})
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{Root: root})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Resolve("conf/app.ini")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join(s.Root(), "conf", "app.ini"); got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}

	if _, err := s.Resolve("../escape"); err == nil {
		t.Error("expected error for traversal")
	}
}

func TestCheckFileSize(t *testing.T) {
	s, err := New(Config{Root: t.TempDir(), MaxFileSize: "1KB"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		size    int64
		wantErr bool
	}{
		{"zero bytes", 0, false},
		{"within limit", 512, false},
		{"exactly at limit", 1024, false},
		{"over limit", 1025, true},
		{"way over limit", 1024 * 1024, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CheckFileSize(tt.size)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckFileSize(%d) error = %v, wantErr %v", tt.size, err, tt.wantErr)
			}
		})
	}
}

func TestCheckFileSize_NoLimit(t *testing.T) {
	s, err := New(Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CheckFileSize(1024 * 1024 * 1024); err != nil {
		t.Errorf("expected no error with no limit, got: %v", err)
	}
}

func TestParseFileSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"100", 100, false},
		{"100B", 100, false},
		{"1KB", 1024, false},
		{"10MB", 10 * 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"0.5MB", 512 * 1024, false},
		{"  5MB  ", 5 * 1024 * 1024, false},
		{"1mb", 1024 * 1024, false},
		{"", 0, true},
		{"abc", 0, true},
		{"MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := parseFileSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseFileSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && result != tt.expected {
				t.Errorf("parseFileSize(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}
