package directive

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LiteralError reports where a literal failed to parse.
type LiteralError struct {
	Pos int
	Msg string
}

func (e *LiteralError) Error() string {
	return fmt.Sprintf("literal: %s at offset %d", e.Msg, e.Pos)
}

// ParseLiteral parses a scalar/collection literal: quoted strings, numbers,
// True/False/None (or true/false/null), lists, tuples and string-keyed dicts.
// Nothing is evaluated. Tuples decode to []any.
func ParseLiteral(src string) (any, error) {
	p := &literalParser{src: src}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected trailing %q", p.rest(10))
	}
	return v, nil
}

// parseKeyValues parses the body of a directive block as the inside of a dict.
func parseKeyValues(body string) (map[string]any, error) {
	v, err := ParseLiteral("{" + body + "}")
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &LiteralError{Msg: "directive block is not a mapping"}
	}
	return m, nil
}

type literalParser struct {
	src   string
	pos   int
	depth int
}

const maxLiteralDepth = 32

func (p *literalParser) errorf(format string, args ...any) error {
	return &LiteralError{Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *literalParser) rest(n int) string {
	r := p.src[p.pos:]
	if len(r) > n {
		r = r[:n]
	}
	return r
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

func (p *literalParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) value() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of input")
	}
	switch c := p.peek(); {
	case c == '{':
		return p.collection('{', '}')
	case c == '[':
		return p.collection('[', ']')
	case c == '(':
		return p.collection('(', ')')
	case c == '"' || c == '\'':
		return p.str()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	case isIdentStart(c):
		return p.keyword()
	default:
		return nil, p.errorf("unexpected character %q", c)
	}
}

func (p *literalParser) collection(open, close byte) (any, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxLiteralDepth {
		return nil, p.errorf("nesting too deep")
	}
	p.pos++ // open

	var (
		list []any
		dict map[string]any
	)
	if open == '{' {
		dict = make(map[string]any)
	} else {
		list = []any{}
	}

	for {
		p.skipSpace()
		if p.peek() == close {
			p.pos++
			break
		}
		if open == '{' {
			keyPos := p.pos
			k, err := p.value()
			if err != nil {
				return nil, err
			}
			key, ok := k.(string)
			if !ok {
				return nil, &LiteralError{Pos: keyPos, Msg: "dict keys must be strings"}
			}
			p.skipSpace()
			if p.peek() != ':' {
				return nil, p.errorf("expected ':' after key %q", key)
			}
			p.pos++
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			dict[key] = v
		} else {
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case close:
			// closed on the next iteration
		case 0:
			return nil, p.errorf("unterminated %q", open)
		default:
			return nil, p.errorf("expected ',' or %q", close)
		}
	}

	if open == '{' {
		return dict, nil
	}
	return list, nil
}

func (p *literalParser) str() (string, error) {
	quote := p.src[p.pos]
	start := p.pos
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\n':
			return "", &LiteralError{Pos: start, Msg: "newline in string"}
		case c == '\\':
			if p.pos+1 >= len(p.src) {
				return "", &LiteralError{Pos: start, Msg: "unterminated string"}
			}
			esc := p.src[p.pos+1]
			p.pos += 2
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case '\\', '\'', '"':
				b.WriteByte(esc)
			case '\n':
				// line continuation
			case 'u':
				if p.pos+4 > len(p.src) {
					return "", p.errorf("short \\u escape")
				}
				n, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 32)
				if err != nil {
					return "", p.errorf("bad \\u escape")
				}
				b.WriteRune(rune(n))
				p.pos += 4
			default:
				b.WriteByte('\\')
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", &LiteralError{Pos: start, Msg: "unterminated string"}
}

func (p *literalParser) number() (any, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	if p.pos+1 < len(p.src) && p.src[p.pos] == '0' && strings.IndexByte("xXoObB", p.src[p.pos+1]) >= 0 {
		return p.radixInt(start)
	}
	isFloat := false
scan:
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c >= '0' && c <= '9', c == '_':
		case c == '.' || c == 'e' || c == 'E':
			isFloat = true
		case (c == '-' || c == '+') && (p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E'):
		default:
			break scan
		}
		p.pos++
	}
	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, &LiteralError{Pos: start, Msg: fmt.Sprintf("bad number %q", text)}
	}
	return f, nil
}

// radixInt reads a 0x, 0o or 0b prefixed integer starting at start.
func (p *literalParser) radixInt(start int) (any, error) {
	p.pos += 2
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	text := p.src[start:p.pos]
	n, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return nil, &LiteralError{Pos: start, Msg: fmt.Sprintf("bad number %q", text)}
	}
	return n, nil
}

func (p *literalParser) keyword() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	switch word := p.src[start:p.pos]; word {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null":
		return nil, nil
	default:
		return nil, &LiteralError{Pos: start, Msg: fmt.Sprintf("unknown name %q", word)}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
