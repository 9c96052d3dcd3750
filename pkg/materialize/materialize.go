// Package materialize writes generated files into a sandboxed output root.
package materialize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cgast/tfanygen/internal/sandbox"
	"github.com/cgast/tfanygen/pkg/filedesc"
	"github.com/cgast/tfanygen/pkg/value"
)

// Entry is one file to write, named relative to the output root.
type Entry struct {
	Name    string
	Content string
	Mode    *os.FileMode
}

// Written describes a file that was materialized.
type Written struct {
	Name   string      `json:"name"`
	Path   string      `json:"path"`
	Size   int64       `json:"size"`
	SHA256 string      `json:"sha256"`
	Mode   os.FileMode `json:"mode,omitempty"`
}

// ProducedRecorder is notified of every entry processed.
type ProducedRecorder interface {
	RecordProduced(name string)
}

// ParseEntries reads the "files" mapping of a result tree. Each value is
// either the file content or a mapping with "content" and optional "chmod".
func ParseEntries(files value.Value) ([]Entry, error) {
	if files.IsNull() {
		return nil, nil
	}
	m, ok := files.Map()
	if !ok {
		return nil, fmt.Errorf("files: must be a mapping, got %s", files.Kind())
	}

	entries := make([]Entry, 0, m.Len())
	for _, name := range m.Keys() {
		v, _ := m.Get(name)
		entry, err := parseEntry(name, v)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseEntry(name string, v value.Value) (Entry, error) {
	if s, ok := v.Str(); ok {
		return Entry{Name: name, Content: s}, nil
	}
	src, ok := v.Map()
	if !ok {
		return Entry{}, fmt.Errorf("files.%s: must be a string or a mapping, got %s", name, v.Kind())
	}
	m := src.Clone()

	entry := Entry{Name: name}
	contentV, ok := m.Pop("content")
	if !ok {
		return Entry{}, fmt.Errorf("files.%s: 'content' is required", name)
	}
	if entry.Content, ok = contentV.Str(); !ok {
		return Entry{}, fmt.Errorf("files.%s: 'content' must be a string, got %s", name, contentV.Kind())
	}

	if modeV, ok := m.Pop("chmod"); ok && !modeV.IsNull() {
		mode, err := ParseMode(modeV)
		if err != nil {
			return Entry{}, fmt.Errorf("files.%s: %w", name, err)
		}
		entry.Mode = &mode
	}

	if err := filedesc.Leftover("files."+name, m); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// ParseMode accepts an integer mode (493) or an octal string ("755",
// "0755", "0o755").
func ParseMode(v value.Value) (os.FileMode, error) {
	var n uint64
	if num, ok := v.Number(); ok {
		i, err := num.Int64()
		if err != nil || i < 0 {
			return 0, fmt.Errorf("invalid chmod %s", num)
		}
		n = uint64(i)
	} else if s, ok := v.Str(); ok {
		digits := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0o")
		parsed, err := strconv.ParseUint(digits, 8, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid chmod %q", s)
		}
		n = parsed
	} else {
		return 0, fmt.Errorf("chmod must be a number or an octal string, got %s", v.Kind())
	}
	if n > 0o7777 {
		return 0, fmt.Errorf("invalid chmod %o", n)
	}
	return toFileMode(uint32(n)), nil
}

// toFileMode maps POSIX setuid/setgid/sticky bits onto os.FileMode.
func toFileMode(n uint32) os.FileMode {
	mode := os.FileMode(n & 0o777)
	if n&0o4000 != 0 {
		mode |= os.ModeSetuid
	}
	if n&0o2000 != 0 {
		mode |= os.ModeSetgid
	}
	if n&0o1000 != 0 {
		mode |= os.ModeSticky
	}
	return mode
}

// Materializer writes entries under the sandbox root.
type Materializer struct {
	Sandbox  *sandbox.Sandbox
	Recorder ProducedRecorder // optional
	Logger   *slog.Logger
}

// Materialize writes every entry in order. The first failure aborts the
// batch; files written before it stay on disk.
func (m *Materializer) Materialize(entries []Entry) ([]Written, error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	written := make([]Written, 0, len(entries))
	for _, e := range entries {
		if m.Recorder != nil {
			m.Recorder.RecordProduced(e.Name)
		}

		path, err := m.Sandbox.Resolve(e.Name)
		if err != nil {
			return written, err
		}
		if err := m.Sandbox.CheckFileSize(int64(len(e.Content))); err != nil {
			return written, fmt.Errorf("materialize %s: %w", e.Name, err)
		}

		// Creates the output root on first use.
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return written, fmt.Errorf("materialize %s: create dir: %w", e.Name, err)
		}
		if err := os.WriteFile(path, []byte(e.Content), 0644); err != nil {
			return written, fmt.Errorf("materialize %s: %w", e.Name, err)
		}

		w := Written{
			Name: e.Name,
			Path: path,
			Size: int64(len(e.Content)),
		}
		sum := sha256.Sum256([]byte(e.Content))
		w.SHA256 = hex.EncodeToString(sum[:])

		if e.Mode != nil {
			if err := os.Chmod(path, *e.Mode); err != nil {
				return written, fmt.Errorf("materialize %s: chmod: %w", e.Name, err)
			}
			w.Mode = *e.Mode
		}

		logger.Debug("materialized file", "name", e.Name, "bytes", w.Size)
		written = append(written, w)
	}
	return written, nil
}
