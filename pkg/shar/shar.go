// Package shar assembles self-extracting shell archives.
//
// The rendered script runs, in order: the pre commands, the extraction of
// every registered file, one chmod per tag with files, and the post
// commands. File payloads are gzip compressed and base64 encoded inline,
// so the target only needs a POSIX shell, base64 and gzip.
package shar

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/cgast/tfanygen/pkg/filedesc"
)

const (
	payloadMarker = "__SHAR_EOF__"
	lineWidth     = 76
)

type file struct {
	dest    string
	content filedesc.Content
	tags    []string
}

// Builder accumulates files and install commands for one archive.
type Builder struct {
	files []file
	pre   []string
	post  []string
}

// NewBuilder creates an empty archive builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddFile registers content to be extracted at dest. Destinations are not
// de-duplicated; a later file with the same destination overwrites an
// earlier one at install time.
func (b *Builder) AddFile(dest string, content filedesc.Content, tags ...string) {
	b.files = append(b.files, file{dest: dest, content: content, tags: tags})
}

// AddPre appends a command that runs before extraction.
func (b *Builder) AddPre(cmd string) {
	b.pre = append(b.pre, cmd)
}

// AddPost appends a command that runs after extraction.
func (b *Builder) AddPost(cmd string) {
	b.post = append(b.post, cmd)
}

// FilesByTag returns the destinations registered under tag, in order.
func (b *Builder) FilesByTag(tag string) []string {
	var out []string
	for _, f := range b.files {
		for _, t := range f.tags {
			if t == tag {
				out = append(out, f.dest)
				break
			}
		}
	}
	return out
}

// QuotedFilesByTag returns the shell-quoted, space-joined destinations
// registered under tag, or "" when there are none.
func (b *Builder) QuotedFilesByTag(tag string) string {
	return shellescape.QuoteCommand(b.FilesByTag(tag))
}

// Render writes the archive script to w.
func (b *Builder) Render(w io.Writer, shebang string) error {
	if shebang == "" {
		shebang = DefaultShebang
	}

	var buf bytes.Buffer
	if !strings.HasPrefix(shebang, "#!") {
		buf.WriteString("#!")
	}
	buf.WriteString(shebang)
	buf.WriteString("\nset -e\n")

	for _, cmd := range b.pre {
		buf.WriteString(cmd)
		buf.WriteByte('\n')
	}

	for _, f := range b.files {
		if err := writeFile(&buf, f); err != nil {
			return err
		}
	}

	for _, cmd := range b.post {
		buf.WriteString(cmd)
		buf.WriteByte('\n')
	}
	buf.WriteString("exit 0\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// Bytes renders the archive into memory.
func (b *Builder) Bytes(shebang string) ([]byte, error) {
	var buf bytes.Buffer
	if err := b.Render(&buf, shebang); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFile(buf *bytes.Buffer, f file) error {
	data, err := filedesc.ReadAll(f.content)
	if err != nil {
		return fmt.Errorf("archive file %s: %w", f.dest, err)
	}

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("compress %s: %w", f.dest, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress %s: %w", f.dest, err)
	}

	if dir := path.Dir(f.dest); dir != "." && dir != "/" {
		fmt.Fprintf(buf, "mkdir -p -- %s\n", shellescape.Quote(dir))
	}
	fmt.Fprintf(buf, "base64 -d <<'%s' | gzip -dc > %s\n", payloadMarker, shellescape.Quote(f.dest))

	encoded := base64.StdEncoding.EncodeToString(gz.Bytes())
	for len(encoded) > lineWidth {
		buf.WriteString(encoded[:lineWidth])
		buf.WriteByte('\n')
		encoded = encoded[lineWidth:]
	}
	if encoded != "" {
		buf.WriteString(encoded)
		buf.WriteByte('\n')
	}
	buf.WriteString(payloadMarker)
	buf.WriteByte('\n')
	return nil
}

// Render resolves every file of spec against searchRoot and renders the
// archive. Files are registered first so chmod directives can see their
// tags; chmod commands precede the archive's own post commands.
func Render(spec Spec, searchRoot string) ([]byte, error) {
	b := NewBuilder()

	for i, d := range spec.Files {
		r, err := filedesc.Resolve(d, searchRoot)
		if err != nil {
			return nil, fmt.Errorf("files[%d]: %w", i, err)
		}
		b.AddFile(r.Destination, r.Content, r.Tags...)
	}

	for _, tm := range spec.Chmod {
		if files := b.QuotedFilesByTag(tm.Tag); files != "" {
			b.AddPost("chmod " + tm.Mode + " -- " + files)
		}
	}

	for _, cmd := range spec.Pre {
		b.AddPre(cmd)
	}
	for _, cmd := range spec.Post {
		b.AddPost(cmd)
	}

	return b.Bytes(spec.Shebang)
}
