// Package outputfile writes a file so that it appears under its final name only once it is
// complete.
//
// Data goes to a hidden temp file ".<name>" in the target directory. Commit hard-links the temp
// file to the final name and removes the temp file. Linking never replaces an existing file, so
// a Commit onto an existing name fails with an error matching fs.ErrExist and leaves the temp
// file in place.
package outputfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File is an in-progress output file.
type File struct {
	Path     string // final name
	TempPath string // name while writing

	file     *os.File
	buf      *bufio.Writer
	finished bool
}

// TempPathFor returns the temp file name used for path.
func TempPathFor(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, "."+base)
}

// Create opens the temp file for path, truncating a stale one left by an earlier run.
func Create(path string) (*File, error) {
	tempPath := TempPathFor(path)
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &File{
		Path:     path,
		TempPath: tempPath,
		file:     f,
		buf:      bufio.NewWriterSize(f, 64*1024),
	}, nil
}

func (f *File) Write(p []byte) (int, error) {
	if f.finished {
		return 0, os.ErrClosed
	}
	return f.buf.Write(p)
}

// Commit flushes and closes the temp file, then links it to the final name. If the link fails
// the temp file is kept so the output is not lost.
func (f *File) Commit() error {
	if f.finished {
		return os.ErrClosed
	}
	f.finished = true

	if err := f.closeFile(); err != nil {
		_ = os.Remove(f.TempPath)
		return err
	}

	if err := os.Link(f.TempPath, f.Path); err != nil {
		return fmt.Errorf("link %q to %q: %w", f.TempPath, f.Path, err)
	}

	if err := os.Remove(f.TempPath); err != nil {
		return fmt.Errorf("remove temp file %q: %w", f.TempPath, err)
	}
	return nil
}

// Abort closes and removes the temp file. It does nothing after Commit, so it can be deferred.
func (f *File) Abort() error {
	if f.finished {
		return nil
	}
	f.finished = true

	closeErr := f.file.Close()
	if err := os.Remove(f.TempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(closeErr, fmt.Errorf("remove temp file %q: %w", f.TempPath, err))
	}
	if closeErr != nil {
		return fmt.Errorf("close temp file %q: %w", f.TempPath, closeErr)
	}
	return nil
}

func (f *File) closeFile() error {
	if err := f.buf.Flush(); err != nil {
		f.file.Close()
		return fmt.Errorf("write %q: %w", f.TempPath, err)
	}
	if err := f.file.Sync(); err != nil {
		f.file.Close()
		return fmt.Errorf("sync %q: %w", f.TempPath, err)
	}
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("close %q: %w", f.TempPath, err)
	}
	return nil
}
