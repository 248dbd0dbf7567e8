package kvline

// DuplicatePolicy decides what happens when a key occurs more than once in a line.
type DuplicatePolicy int

const (
	// KeepAll retains every pair in input order.
	KeepAll DuplicatePolicy = iota
	// LastWins replaces the value of the first occurrence, keeping its position.
	LastWins
)

// Options tune how strict the parser is. The zero value is the strict grammar.
type Options struct {
	// LenientSpaces accepts runs of spaces between pairs. Leading and trailing spaces are
	// still rejected.
	LenientSpaces bool
	Duplicates    DuplicatePolicy
}

// Parser splits lines into pairs. It holds no state between calls and is safe for
// concurrent use.
type Parser struct {
	opts Options
}

func NewParser(opts Options) *Parser {
	return &Parser{opts: opts}
}

var strict = NewParser(Options{})

// Parse parses one line (without the trailing newline) using the strict grammar.
func Parse(line []byte) (Line, error) {
	return strict.Parse(line)
}

// Parse parses one line (without the trailing newline). An empty line yields an empty Line.
func (p *Parser) Parse(line []byte) (Line, error) {
	out := Line{}
	i := 0
	for i < len(line) {
		pair, next, err := readPair(line, i)
		if err != nil {
			return nil, err
		}
		out = p.add(out, pair)

		if next == len(line) {
			break
		}
		i, err = p.skipSeparator(line, next)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Parser) add(line Line, pair Pair) Line {
	if p.opts.Duplicates == LastWins {
		if idx := line.index(pair.Key); idx >= 0 {
			line[idx].Value = pair.Value
			return line
		}
	}
	return append(line, pair)
}

// skipSeparator consumes the space at line[i] and returns the start of the next pair.
func (p *Parser) skipSeparator(line []byte, i int) (int, error) {
	i++
	if p.opts.LenientSpaces {
		for i < len(line) && line[i] == ' ' {
			i++
		}
	} else if i < len(line) && line[i] == ' ' {
		return 0, &ParseError{Kind: MalformedSeparator, Offset: i}
	}
	if i == len(line) {
		// trailing separator without a following pair
		return 0, &ParseError{Kind: MalformedSeparator, Offset: i - 1}
	}
	return i, nil
}

// readPair reads KEY '=' VALUE starting at start. It returns the index just after the value,
// which is either len(line) or a space.
func readPair(line []byte, start int) (Pair, int, error) {
	if line[start] == ' ' {
		return Pair{}, 0, &ParseError{Kind: MalformedSeparator, Offset: start}
	}

	// Key
	eq := start
	for ; eq < len(line) && line[eq] != '='; eq++ {
		switch line[eq] {
		case ' ':
			return Pair{}, 0, &ParseError{Kind: MissingEquals, Offset: eq}
		case '"', '\t', '\n', '\v', '\f', '\r':
			return Pair{}, 0, &ParseError{Kind: UnexpectedCharacter, Offset: eq}
		}
	}
	if eq == len(line) {
		return Pair{}, 0, &ParseError{Kind: MissingEquals, Offset: eq}
	}
	if eq == start {
		return Pair{}, 0, &ParseError{Kind: EmptyKey, Offset: eq}
	}
	key := line[start:eq:eq]

	v := eq + 1
	if v == len(line) || line[v] == ' ' {
		return Pair{}, 0, &ParseError{Kind: EmptyValue, Offset: v}
	}

	if line[v] == '"' {
		value, end, err := readQuoted(line, v)
		if err != nil {
			return Pair{}, 0, err
		}
		if end < len(line) && line[end] != ' ' {
			return Pair{}, 0, &ParseError{Kind: MalformedSeparator, Offset: end}
		}
		return Pair{Key: key, Value: value}, end, nil
	}

	// Bare value
	end := v
	for ; end < len(line) && line[end] != ' '; end++ {
		switch line[end] {
		case '=', '"', '\n':
			return Pair{}, 0, &ParseError{Kind: UnexpectedCharacter, Offset: end}
		}
	}
	return Pair{Key: key, Value: line[v:end:end]}, end, nil
}

// readQuoted reads a quoted value whose opening quote is at line[q]. It returns the unescaped
// value and the index after the closing quote. Values without escapes are not copied.
func readQuoted(line []byte, q int) ([]byte, int, error) {
	start := q + 1
	var buf []byte // allocated on the first escape
	for i := start; i < len(line); i++ {
		switch line[i] {
		case '"':
			if buf == nil {
				return line[start:i:i], i + 1, nil
			}
			return buf, i + 1, nil
		case '\\':
			if buf == nil {
				buf = make([]byte, 0, len(line)-start)
				buf = append(buf, line[start:i]...)
			}
			i++
			if i == len(line) {
				return nil, 0, &ParseError{Kind: UnterminatedQuote, Offset: q}
			}
			buf = append(buf, line[i])
		default:
			if buf != nil {
				buf = append(buf, line[i])
			}
		}
	}
	return nil, 0, &ParseError{Kind: UnterminatedQuote, Offset: q}
}
