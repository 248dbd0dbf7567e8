// Package convert turns a buffer of key=value log lines into JSON lines.
package convert

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"log2json/pkg/kvline"
)

// Policy decides what happens to a line that fails to parse.
type Policy string

const (
	// PolicySkip logs the failure and continues. The run succeeds.
	PolicySkip Policy = "skip"
	// PolicyAbort stops at the first failing line.
	PolicyAbort Policy = "abort"
	// PolicyCollect continues, records every failure and fails the run at the end.
	PolicyCollect Policy = "collect"
)

// Policies lists the valid policies.
var Policies = []Policy{PolicySkip, PolicyAbort, PolicyCollect}

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range Policies {
		if string(p) == strings.ToLower(s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown error policy %q (valid: skip, abort, collect)", s)
}

// ErrLinesFailed is returned by a collect run that saw at least one failing line.
var ErrLinesFailed = errors.New("some lines failed to parse")

// LineError is a parse failure with its position in the input.
type LineError struct {
	Number int   // 1-based line number
	Offset int64 // byte offset of the line start in the input
	Err    *kvline.ParseError
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (input offset %d): %v", e.Number, e.Offset, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Stats summarizes a run.
type Stats struct {
	Lines    int // lines seen
	Written  int // JSON objects written
	Skipped  int // lines that failed to parse
	Bytes    int64
	Failures []*LineError // only filled by PolicyCollect
}

// Converter parses lines and writes them as JSON.
type Converter struct {
	Parser *kvline.Parser
	Policy Policy
	Logger *slog.Logger
}

// New returns a Converter. A nil logger uses slog.Default() and an empty policy PolicyCollect.
func New(parser *kvline.Parser, policy Policy, logger *slog.Logger) *Converter {
	if parser == nil {
		parser = kvline.NewParser(kvline.Options{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = PolicyCollect
	}
	return &Converter{Parser: parser, Policy: policy, Logger: logger}
}

// Convert writes one JSON object per line of input to w. Lines are separated by '\n'; a final
// line without trailing newline counts, an empty segment after the last newline does not.
//
// A write error is returned immediately. Parse errors are handled according to the policy:
// PolicyAbort returns the *LineError, PolicyCollect returns an error matching ErrLinesFailed
// after the whole input has been converted.
func (c *Converter) Convert(input []byte, w io.Writer) (Stats, error) {
	s := c.NewStream(w)
	if err := s.Feed(input); err != nil {
		return s.Stats, err
	}
	err := s.Close()
	return s.Stats, err
}

// Stream converts input that arrives in pieces. A trailing partial line is held back until
// its newline arrives or the stream is closed.
type Stream struct {
	Stats Stats

	c       *Converter
	jw      *kvline.Writer
	pending []byte
	number  int
	offset  int64 // input offset of pending[0]
	closed  bool
}

// NewStream returns a Stream writing to w.
func (c *Converter) NewStream(w io.Writer) *Stream {
	return &Stream{c: c, jw: kvline.NewWriter(w)}
}

// Feed converts every complete line available after appending data.
func (s *Stream) Feed(data []byte) error {
	if s.closed {
		return errors.New("feed on closed stream")
	}
	if len(s.pending) > 0 {
		s.pending = append(s.pending, data...)
		data = s.pending
	}

	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		s.keep(data)
		return nil
	}

	err := s.lines(data[:last+1])
	s.keep(data[last+1:])
	return err
}

// Close converts the held-back partial line, if any, and reports collected failures.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if len(s.pending) > 0 {
		if err := s.lines(s.pending); err != nil {
			return err
		}
		s.pending = nil
	}
	return s.collected()
}

// Reset drops any held-back partial line and restarts offsets at zero, keeping line numbers
// and stats. Used when the input file was truncated.
func (s *Stream) Reset() {
	s.pending = s.pending[:0]
	s.offset = 0
}

func (s *Stream) keep(tail []byte) {
	s.pending = append(s.pending[:0], tail...)
}

func (s *Stream) lines(input []byte) error {
	start := 0
	for start < len(input) {
		end := bytes.IndexByte(input[start:], '\n')
		if end < 0 {
			end = len(input)
		} else {
			end += start
		}
		s.number++
		raw := input[start:end:end]
		s.Stats.Lines++
		s.Stats.Bytes += int64(len(raw))
		if err := s.convertLine(s.number, s.offset+int64(start), raw); err != nil {
			s.offset += int64(end + 1)
			return err
		}
		start = end + 1
	}
	s.offset += int64(len(input))
	return nil
}

func (s *Stream) convertLine(number int, offset int64, raw []byte) error {
	line, err := s.c.Parser.Parse(raw)
	if err != nil {
		var perr *kvline.ParseError
		if !errors.As(err, &perr) {
			return err
		}
		s.Stats.Skipped++
		return s.handleFailure(&LineError{Number: number, Offset: offset, Err: perr})
	}

	if err := s.jw.Write(line); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	s.Stats.Written++
	return nil
}

func (s *Stream) handleFailure(lerr *LineError) error {
	logger := s.c.Logger
	switch s.c.Policy {
	case PolicyAbort:
		return lerr
	case PolicySkip:
		logger.Warn("Skipping malformed line", "line", lerr.Number, "offset", lerr.Offset, "column", lerr.Err.Offset, "error", lerr.Err.Kind.String())
	default:
		logger.Error("Failed to parse line", "line", lerr.Number, "offset", lerr.Offset, "column", lerr.Err.Offset, "error", lerr.Err.Kind.String())
		s.Stats.Failures = append(s.Stats.Failures, lerr)
	}
	return nil
}

func (s *Stream) collected() error {
	if len(s.Stats.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(s.Stats.Failures)+1)
	errs = append(errs, fmt.Errorf("%w: %d of %d", ErrLinesFailed, len(s.Stats.Failures), s.Stats.Lines))
	for _, f := range s.Stats.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}
