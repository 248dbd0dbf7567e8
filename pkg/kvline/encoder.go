package kvline

import (
	"io"
)

const hex = "0123456789abcdef"

// AppendJSON appends line as a single-line JSON object to dst. Every key and value becomes a
// JSON string. Bytes outside the control range pass through unchanged, so the output is valid
// JSON text as long as the input is valid UTF-8.
func AppendJSON(dst []byte, line Line) []byte {
	dst = append(dst, '{')
	for i, p := range line {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendString(dst, p.Key)
		dst = append(dst, ':')
		dst = appendString(dst, p.Value)
	}
	return append(dst, '}')
}

// Encode returns line as a JSON object.
func Encode(line Line) []byte {
	return AppendJSON(nil, line)
}

func appendString(dst, s []byte) []byte {
	dst = append(dst, '"')
	start := 0
	for i, c := range s {
		if c >= 0x20 && c != '"' && c != '\\' {
			continue
		}
		dst = append(dst, s[start:i]...)
		switch c {
		case '"', '\\':
			dst = append(dst, '\\', c)
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			dst = append(dst, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xF])
		}
		start = i + 1
	}
	dst = append(dst, s[start:]...)
	return append(dst, '"')
}

// Writer writes lines as newline-terminated JSON objects. A line is written with a single
// Write call on the underlying writer.
type Writer struct {
	w   io.Writer
	buf []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes line and writes it followed by '\n'.
func (w *Writer) Write(line Line) error {
	w.buf = AppendJSON(w.buf[:0], line)
	w.buf = append(w.buf, '\n')
	_, err := w.w.Write(w.buf)
	return err
}
