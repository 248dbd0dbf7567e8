// Package follow converts lines as they are appended to a log file.
//
// A file that shrinks, or whose last bytes before the read position change, is read again from
// the start. A removed file is picked up again once it is recreated under the same name.
package follow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"log2json/internal/convert"
)

const (
	readBufferSize = 64 * 1024
	tailSize       = 64
)

// Follower tails one file and feeds appended bytes into a convert.Stream.
type Follower struct {
	Path      string
	Stream    *convert.Stream
	Logger    *slog.Logger
	FromStart bool // convert existing content first instead of starting at the end

	// ready is closed once the watch is in place; used by tests
	ready chan struct{}

	file   *os.File
	offset int64
	tail   []byte // last bytes before offset, to notice a rewritten file
	buf    []byte
}

// New returns a Follower for path.
func New(path string, stream *convert.Stream, logger *slog.Logger) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{
		Path:   path,
		Stream: stream,
		Logger: logger,
		ready:  make(chan struct{}),
		buf:    make([]byte, readBufferSize),
	}
}

// Run follows the file until ctx is cancelled or a line fails under the abort policy. On
// cancellation the held-back partial line is converted and the stream is closed, so Run
// returns the stream's collected failures, if any.
func (f *Follower) Run(ctx context.Context) error {
	path, err := filepath.Abs(f.Path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", f.Path, err)
	}

	if err := f.open(path, !f.FromStart); err != nil {
		return err
	}
	defer f.closeFile()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so a rotated (removed and recreated) file is picked up again.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %q: %w", filepath.Dir(path), err)
	}
	close(f.ready)

	if err := f.readNew(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			// pick up writes whose events have not been delivered yet
			if err := f.readNew(); err != nil {
				return err
			}
			return f.Stream.Close()

		case ev, ok := <-watcher.Events:
			if !ok {
				return f.Stream.Close()
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if err := f.handle(path, ev); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return f.Stream.Close()
			}
			f.Logger.Warn("Watcher error", "path", path, "error", err)
		}
	}
}

func (f *Follower) handle(path string, ev fsnotify.Event) error {
	switch {
	case ev.Op&fsnotify.Create != 0:
		f.Logger.Info("Input file recreated, reading from start", "path", path)
		f.closeFile()
		f.Stream.Reset()
		if err := f.open(path, false); err != nil {
			return err
		}
		return f.readNew()

	case ev.Op&fsnotify.Write != 0:
		return f.readNew()

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		f.Logger.Info("Input file removed, waiting for it to reappear", "path", path)
		f.closeFile()
	}
	return nil
}

// open opens path and positions at the end (atEnd) or the start.
func (f *Follower) open(path string, atEnd bool) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	var offset int64
	if atEnd {
		offset, err = file.Seek(0, io.SeekEnd)
		if err != nil {
			file.Close()
			return fmt.Errorf("seek %q: %w", path, err)
		}
	}
	f.file = file
	f.offset = offset
	f.tail = f.tail[:0]
	if offset > 0 {
		n := min(offset, tailSize)
		f.tail = append(f.tail, make([]byte, n)...)
		if read, err := file.ReadAt(f.tail, offset-n); read < len(f.tail) {
			file.Close()
			f.file = nil
			return fmt.Errorf("read %q: %w", path, err)
		}
	}
	return nil
}

func (f *Follower) closeFile() {
	if f.file != nil {
		f.file.Close()
		f.file = nil
	}
}

// truncated reports whether the file no longer holds what was read up to offset: it is
// shorter, or the bytes just before offset changed because it was truncated and written again.
// A rewrite that reproduces those bytes exactly is read as an append.
func (f *Follower) truncated(info os.FileInfo) (bool, error) {
	if info.Size() < f.offset {
		return true, nil
	}
	if len(f.tail) == 0 {
		return false, nil
	}
	current := make([]byte, len(f.tail))
	n, err := f.file.ReadAt(current, f.offset-int64(len(f.tail)))
	switch {
	case n == len(current):
		return !bytes.Equal(current, f.tail), nil
	case errors.Is(err, io.EOF):
		// shrunk since Stat
		return true, nil
	default:
		return false, fmt.Errorf("read %q: %w", f.Path, err)
	}
}

// remember keeps the last tailSize bytes read.
func (f *Follower) remember(data []byte) {
	if len(data) >= tailSize {
		f.tail = append(f.tail[:0], data[len(data)-tailSize:]...)
		return
	}
	f.tail = append(f.tail, data...)
	if extra := len(f.tail) - tailSize; extra > 0 {
		f.tail = append(f.tail[:0], f.tail[extra:]...)
	}
}

// readNew feeds everything between the last offset and the end of file.
func (f *Follower) readNew() error {
	if f.file == nil {
		return nil
	}

	info, err := f.file.Stat()
	if err != nil {
		return fmt.Errorf("stat %q: %w", f.Path, err)
	}
	truncated, err := f.truncated(info)
	if err != nil {
		return err
	}
	if truncated {
		f.Logger.Info("Input file truncated, reading from start", "path", f.Path)
		f.Stream.Reset()
		f.offset = 0
		f.tail = f.tail[:0]
	}

	for {
		n, err := f.file.ReadAt(f.buf, f.offset)
		if n > 0 {
			f.offset += int64(n)
			f.remember(f.buf[:n])
			if ferr := f.Stream.Feed(f.buf[:n]); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %q: %w", f.Path, err)
		}
	}
}
