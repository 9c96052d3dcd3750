package filedesc

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Content supplies the bytes of a file. Open is called once, the stream
// read to the end and closed.
type Content interface {
	Open() (io.ReadCloser, error)
}

// Inline is content held in memory.
type Inline string

func (c Inline) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(c))), nil
}

// SourceFile is content read from disk on demand.
type SourceFile struct {
	Path string
}

func (c SourceFile) Open() (io.ReadCloser, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	return f, nil
}

// ReadAll opens c, reads it fully and releases it.
func ReadAll(c Content) ([]byte, error) {
	rc, err := c.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return data, nil
}
