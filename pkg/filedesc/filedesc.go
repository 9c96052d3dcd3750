// Package filedesc resolves declared file entries into a destination path
// and a content supplier.
//
// A descriptor carries exactly one of inline content or a source file.
// Its destination is either an exact path or directory-style, in which
// case the file name comes from the template result's name or from the
// source file's base name.
package filedesc

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cgast/tfanygen/pkg/value"
)

// InvalidDescriptorError reports a descriptor that cannot be resolved.
type InvalidDescriptorError struct {
	Destination string
	Reason      string
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("file %q: %s", e.Destination, e.Reason)
}

// UnrecognizedFieldError reports keys left over after structured parsing.
type UnrecognizedFieldError struct {
	Context string
	Fields  []string
}

func (e *UnrecognizedFieldError) Error() string {
	return fmt.Sprintf("%s: unrecognized fields: %s", e.Context, strings.Join(e.Fields, ", "))
}

// Leftover returns an *UnrecognizedFieldError if m still holds keys, or nil.
func Leftover(context string, m *value.Map) error {
	if m.Len() == 0 {
		return nil
	}
	fields := m.Keys()
	sort.Strings(fields)
	return &UnrecognizedFieldError{Context: context, Fields: fields}
}

// Descriptor is one declared file before resolution.
type Descriptor struct {
	Destination string
	Content     value.Value
	HasContent  bool
	Source      string
	HasSource   bool
	Tags        []string
}

// Resolved is a descriptor with its final destination and content supplier.
type Resolved struct {
	Destination string // POSIX-style
	Content     Content
	Tags        []string
}

// Parse reads a descriptor mapping with the keys destination, content,
// source and tags. Any other key is an error.
func Parse(v value.Value) (Descriptor, error) {
	src, ok := v.Map()
	if !ok {
		return Descriptor{}, &InvalidDescriptorError{Reason: fmt.Sprintf("descriptor must be a mapping, got %s", v.Kind())}
	}
	m := src.Clone()

	var d Descriptor
	destV, ok := m.Pop("destination")
	if !ok {
		return Descriptor{}, &InvalidDescriptorError{Reason: "'destination' is required"}
	}
	if d.Destination, ok = destV.Str(); !ok {
		return Descriptor{}, &InvalidDescriptorError{Reason: fmt.Sprintf("'destination' must be a string, got %s", destV.Kind())}
	}

	d.Content, d.HasContent = m.Pop("content")

	if srcV, ok := m.Pop("source"); ok {
		if d.Source, ok = srcV.Str(); !ok {
			return Descriptor{}, &InvalidDescriptorError{Destination: d.Destination, Reason: "'source' must be a string"}
		}
		d.HasSource = true
	}

	if tagsV, ok := m.Pop("tags"); ok {
		tags, err := parseTags(tagsV)
		if err != nil {
			return Descriptor{}, &InvalidDescriptorError{Destination: d.Destination, Reason: err.Error()}
		}
		d.Tags = tags
	}

	if err := Leftover(fmt.Sprintf("file %q", d.Destination), m); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// parseTags accepts a single string or a sequence of strings.
func parseTags(v value.Value) ([]string, error) {
	if s, ok := v.Str(); ok {
		return []string{s}, nil
	}
	items, ok := v.Seq()
	if !ok {
		if v.IsNull() {
			return nil, nil
		}
		return nil, fmt.Errorf("'tags' must be a string or a list of strings, got %s", v.Kind())
	}
	tags := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.Str()
		if !ok {
			return nil, fmt.Errorf("'tags[%d]' must be a string, got %s", i, item.Kind())
		}
		tags = append(tags, s)
	}
	return tags, nil
}

// IsDirectoryStyle reports whether dest names a directory rather than a file.
func IsDirectoryStyle(dest string) bool {
	return dest == "" || dest == "." || strings.HasSuffix(dest, "/") || strings.HasSuffix(dest, "/.")
}

// Resolve computes the final destination and content supplier of d.
// Source files are resolved against searchRoot but not opened.
func Resolve(d Descriptor, searchRoot string) (Resolved, error) {
	invalid := func(reason string) error {
		return &InvalidDescriptorError{Destination: d.Destination, Reason: reason}
	}

	if d.HasContent == d.HasSource {
		return Resolved{}, invalid("exactly one of 'content' or 'source' must be present")
	}

	dirStyle := IsDirectoryStyle(d.Destination)
	var (
		content Content
		name    string
	)

	if d.HasContent {
		text, ok := d.Content.Str()
		if !ok {
			return Resolved{}, invalid(fmt.Sprintf("'content' must be a string, got %s", d.Content.Kind()))
		}
		content = Inline(text)
		if dirStyle {
			tmpl, ok := d.Content.Template()
			if !ok {
				return Resolved{}, invalid("'content' must be result of named template expansion if 'destination' is a directory")
			}
			name = path.Base(filepath.ToSlash(tmpl.Name))
		}
	} else {
		src := d.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(searchRoot, filepath.FromSlash(src))
		}
		content = SourceFile{Path: src}
		if dirStyle {
			name = path.Base(filepath.ToSlash(src))
		}
	}

	dest := d.Destination
	if dirStyle {
		if name == "" || name == "." || name == "/" {
			return Resolved{}, invalid("cannot derive a file name for directory destination")
		}
		switch dir := normalizeDest(dest); dir {
		case ".":
			dest = name
		case "/":
			dest = "/" + name
		default:
			dest = dir + "/" + name
		}
	} else {
		dest = normalizeDest(dest)
	}

	return Resolved{Destination: dest, Content: content, Tags: d.Tags}, nil
}

// normalizeDest drops empty and "." segments from a slash-separated
// destination. Unlike path.Clean it leaves ".." segments in place.
func normalizeDest(dest string) string {
	var parts []string
	for _, seg := range strings.Split(dest, "/") {
		if seg == "" || seg == "." {
			continue
		}
		parts = append(parts, seg)
	}
	out := strings.Join(parts, "/")
	switch {
	case strings.HasPrefix(dest, "/"):
		return "/" + out
	case out == "":
		return "."
	}
	return out
}
