package kvline

import (
	"bytes"
	"encoding/json"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode_Empty(t *testing.T) {
	require.Equal(t, "{}", string(Encode(Line{})))
	require.Equal(t, "{}", string(Encode(nil)))
}

func TestEncode_ControlCharacters(t *testing.T) {
	line := Line{{Key: []byte("k"), Value: []byte{0x00, 0x01, '\n', '\t', '\r', '\b', '\f', 0x1f}}}

	result := Encode(line)

	require.Equal(t, `{"k":"\u0000\u0001\n\t\r\b\f\u001f"}`, string(result))
}

func TestEncode_QuotesAndBackslashes(t *testing.T) {
	line := Line{{Key: []byte(`we"ird\key`), Value: []byte(`"\`)}}

	result := Encode(line)

	require.Equal(t, `{"we\"ird\\key":"\"\\"}`, string(result))
}

func TestEncode_PassesThroughHighBytes(t *testing.T) {
	line := Line{
		{Key: []byte("utf8"), Value: []byte("héllo ✓")},
		{Key: []byte("del"), Value: []byte{0x7f}},
		{Key: []byte("raw"), Value: []byte{0xff}},
	}

	result := Encode(line)

	require.Equal(t, "{\"utf8\":\"héllo ✓\",\"del\":\"\x7f\",\"raw\":\"\xff\"}", string(result))
}

func TestEncode_ValidJSONForAllASCII(t *testing.T) {
	value := make([]byte, 128)
	for i := range value {
		value[i] = byte(i)
	}

	result := Encode(Line{{Key: []byte("all"), Value: value}})

	require.True(t, json.Valid(result))
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(result, &decoded))
	require.Equal(t, string(value), decoded["all"])
}

func TestAppendJSON_ReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 64)
	buf = append(buf, "prefix "...)

	result := AppendJSON(buf, Line{{Key: []byte("a"), Value: []byte("1")}})

	require.Equal(t, `prefix {"a":"1"}`, string(result))
}

func TestWriter_OneWritePerLine(t *testing.T) {
	var rec recordingWriter
	w := NewWriter(&rec)

	require.NoError(t, w.Write(Line{{Key: []byte("a"), Value: []byte("1")}}))
	require.NoError(t, w.Write(Line{}))

	require.Equal(t, []string{"{\"a\":\"1\"}\n", "{}\n"}, rec.writes)
}

func TestWriter_PropagatesError(t *testing.T) {
	w := NewWriter(failingWriter{})

	err := w.Write(Line{})

	require.ErrorIs(t, err, io.ErrClosedPipe)
}

// quote renders value as a quoted value in the line format
func quote(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(value) + `"`
}

func TestRoundTrip_EscapedValues(t *testing.T) {
	values := []string{
		`she said "hi"`,
		`C:\path\to\file`,
		`\"`,
		`""`,
		`\\\\`,
		`trailing \`,
	}

	for _, v := range values {
		t.Run(v, func(t *testing.T) {
			quoted := quote(v)

			line, err := Parse([]byte("k=" + quoted))
			require.NoError(t, err)
			require.Equal(t, v, string(line[0].Value))

			// unescape then escape is the identity on the quoted form
			require.Equal(t, `{"k":`+quoted+`}`, string(Encode(line)))
		})
	}
}

// decodeOrdered decodes a flat JSON object of strings keeping key order
func decodeOrdered(t *testing.T, data []byte) []string {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	require.NoError(t, err)
	require.Equal(t, json.Delim('{'), tok)

	var out []string
	for dec.More() {
		tok, err := dec.Token()
		require.NoError(t, err)
		s, ok := tok.(string)
		require.True(t, ok, "expected string token, got %v", tok)
		out = append(out, s)
	}
	return out
}

func TestRoundTrip_RandomLines(t *testing.T) {
	const keyChars = "abcdefghijklmnopqrstuvwxyz0123456789_.-/:"
	const valueChars = keyChars + ` "\=	`
	rng := rand.New(rand.NewSource(1))

	randString := func(chars string, lo, hi int) string {
		n := lo + rng.Intn(hi-lo+1)
		b := make([]byte, n)
		for i := range b {
			b[i] = chars[rng.Intn(len(chars))]
		}
		return string(b)
	}

	for i := 0; i < 500; i++ {
		var parts, expected []string
		n := 1 + rng.Intn(6)
		for j := 0; j < n; j++ {
			key := randString(keyChars, 1, 8)
			var value, rendered string
			if rng.Intn(2) == 0 {
				value = randString(keyChars, 1, 8)
				rendered = value
			} else {
				value = randString(valueChars, 0, 12)
				rendered = quote(value)
			}
			parts = append(parts, key+"="+rendered)
			expected = append(expected, key, value)
		}
		input := strings.Join(parts, " ")

		line, err := Parse([]byte(input))
		require.NoError(t, err, "input %q", input)
		require.Equal(t, expected, pairs(line), "input %q", input)

		out := Encode(line)
		require.True(t, json.Valid(out), "output %q", out)
		require.Equal(t, expected, decodeOrdered(t, out), "input %q", input)
	}
}

type recordingWriter struct {
	writes []string
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	r.writes = append(r.writes, string(p))
	return len(p), nil
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, io.ErrClosedPipe
}
