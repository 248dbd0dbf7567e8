// Package kvline parses key=value log lines and encodes them as JSON objects. See doc.go for
// docs.
package kvline

import (
	"bytes"
	"fmt"
)

// Pair is a single key=value pair. Key and Value point into the parsed line unless the value
// had to be unescaped.
type Pair struct {
	Key   []byte
	Value []byte
}

// Line is the ordered list of pairs of one log line. It may be empty.
type Line []Pair

// Get returns the value of the first pair with the given key.
func (l Line) Get(key string) ([]byte, bool) {
	for _, p := range l {
		if string(p.Key) == key {
			return p.Value, true
		}
	}
	return nil, false
}

// index returns the position of the first pair with the given key, or -1
func (l Line) index(key []byte) int {
	for i, p := range l {
		if bytes.Equal(p.Key, key) {
			return i
		}
	}
	return -1
}

// ErrorKind classifies why a line could not be parsed.
type ErrorKind int

const (
	MissingEquals ErrorKind = iota + 1
	EmptyValue
	UnterminatedQuote
	MalformedSeparator
	EmptyKey
	UnexpectedCharacter
)

var kindNames = map[ErrorKind]string{
	MissingEquals:       "missing equals",
	EmptyValue:          "empty value",
	UnterminatedQuote:   "unterminated quote",
	MalformedSeparator:  "malformed separator",
	EmptyKey:            "empty key",
	UnexpectedCharacter: "unexpected character",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseError reports a malformed line. Offset is the byte offset within the line of the byte
// that made it invalid. For UnterminatedQuote that is the opening quote, for MissingEquals the
// space or line end that ended the key.
type ParseError struct {
	Kind   ErrorKind
	Offset int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at byte %d", e.Kind, e.Offset)
}

// Is matches another *ParseError with the same Kind, so errors.Is(err, &ParseError{Kind: k})
// works regardless of the offset.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}
