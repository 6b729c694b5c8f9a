package asset

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// Content is the buffer-or-stream union backing an asset's bytes.
// Exactly one of the in-memory buffer or the re-openable stream handle is
// populated; size is tracked separately so stream-backed content never has
// to be materialized just to report it.
type Content struct {
	buf  []byte
	fs   afero.Fs
	path string
	size int64
}

// BufferContent wraps in-memory bytes as content.
func BufferContent(b []byte) *Content {
	return &Content{buf: b, size: int64(len(b))}
}

// StreamContent wraps a re-openable file handle as content. Each Reader call
// re-opens the file; the content hash computed at load time stays
// authoritative for the life of the request.
func StreamContent(fs afero.Fs, path string, size int64) *Content {
	return &Content{fs: fs, path: path, size: size}
}

// IsStream reports whether the content is stream-backed.
func (c *Content) IsStream() bool {
	return c.buf == nil && c.path != ""
}

// Size returns the content size in bytes.
func (c *Content) Size() int64 {
	return c.size
}

// Reader returns a reader over the content. Stream-backed content re-opens
// the underlying file.
func (c *Content) Reader() (io.ReadCloser, error) {
	if !c.IsStream() {
		return io.NopCloser(bytes.NewReader(c.buf)), nil
	}
	f, err := c.fs.Open(c.path)
	if err != nil {
		return nil, &ContentReadError{Path: c.path, Err: err}
	}
	return f, nil
}

// Bytes materializes the full content in memory. For stream-backed content
// this reads the file once; the Content itself is not converted.
func (c *Content) Bytes() ([]byte, error) {
	if !c.IsStream() {
		return c.buf, nil
	}
	r, err := c.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, &ContentReadError{Path: c.path, Err: err}
	}
	return b, nil
}

// ContentReadError indicates the source behind an asset could not be read.
type ContentReadError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ContentReadError) Error() string {
	return fmt.Sprintf("reading content %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ContentReadError) Unwrap() error {
	return e.Err
}
