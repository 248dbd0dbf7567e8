// Package inputfile loads a whole input file into one read-only byte slice.
package inputfile

import (
	"fmt"
	"io"
	"os"
)

// File is an input file held in memory. The slice returned by Bytes must not be modified and
// is invalid after Close.
type File struct {
	Path   string
	data   []byte
	unmap  func([]byte) error
	closed bool
}

// Open loads path. Regular files are memory-mapped where the platform allows it, anything else
// (pipes, character devices) is read into a buffer.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat input %q: %w", path, err)
	}

	if info.Mode().IsRegular() && info.Size() > 0 {
		data, unmap, err := mapFile(f, info.Size())
		if err == nil {
			return &File{Path: path, data: data, unmap: unmap}, nil
		}
		// fall back to reading, some filesystems do not support mmap
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read input %q: %w", path, err)
	}
	return &File{Path: path, data: data}, nil
}

// Bytes returns the file content.
func (f *File) Bytes() []byte {
	return f.data
}

// Mapped reports whether the content is memory-mapped.
func (f *File) Mapped() bool {
	return f.unmap != nil
}

// Close releases the mapping. It is safe to call more than once.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	data := f.data
	f.data = nil
	if f.unmap == nil {
		return nil
	}
	if err := f.unmap(data); err != nil {
		return fmt.Errorf("unmap input %q: %w", f.Path, err)
	}
	return nil
}
