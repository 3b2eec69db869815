// Package literal parses the small literal grammar used for typed metadata
// input and for OCR service payloads: quoted strings, integers, floats,
// booleans, null/None, and nested lists or tuples.
//
// Both JSON (`["a", 1.5, true, null]`) and Python-style reprs
// (`[('a', 0.98), [[1, 2], [3, 4]]]`) are accepted. Values decode to
// string, int64, float64, bool, nil and []any.
package literal

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Parse parses s as a single literal. Surrounding whitespace is ignored;
// anything after the literal is an error.
func Parse(s string) (any, error) {
	p := &parser{src: s}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("literal: unexpected %q at offset %d", p.src[p.pos:], p.pos)
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) value() (any, error) {
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("literal: unexpected end of input")
	}
	switch c := p.src[p.pos]; {
	case c == '[':
		return p.sequence('[', ']')
	case c == '(':
		return p.sequence('(', ')')
	case c == '\'' || c == '"':
		return p.str(c)
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return p.word()
	}
}

func (p *parser) sequence(open, close byte) (any, error) {
	p.pos++ // open
	out := []any{}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("literal: unterminated %c", open)
		}
		if p.src[p.pos] == close {
			p.pos++
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("literal: unterminated %c", open)
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case close:
		default:
			return nil, fmt.Errorf("literal: expected ',' or %q at offset %d", close, p.pos)
		}
	}
}

func (p *parser) str(quote byte) (any, error) {
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\':
			if p.pos+1 >= len(p.src) {
				return nil, fmt.Errorf("literal: dangling escape")
			}
			n, err := p.escape(&b)
			if err != nil {
				return nil, err
			}
			p.pos += n
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
	return nil, fmt.Errorf("literal: unterminated string")
}

// escape decodes the escape at p.pos and returns how many bytes it used.
func (p *parser) escape(b *strings.Builder) (int, error) {
	e := p.src[p.pos+1]
	switch e {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case '0':
		b.WriteByte(0)
	case '\\', '\'', '"', '/':
		b.WriteByte(e)
	case 'x':
		return p.codePoint(b, 2)
	case 'u':
		return p.codePoint(b, 4)
	case 'U':
		return p.codePoint(b, 8)
	default:
		b.WriteByte('\\')
		b.WriteByte(e)
	}
	return 2, nil
}

func (p *parser) codePoint(b *strings.Builder, digits int) (int, error) {
	start := p.pos + 2
	if start+digits > len(p.src) {
		return 0, fmt.Errorf("literal: short escape at offset %d", p.pos)
	}
	n, err := strconv.ParseUint(p.src[start:start+digits], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("literal: bad escape at offset %d: %w", p.pos, err)
	}
	b.WriteRune(rune(n))
	return 2 + digits, nil
}

func (p *parser) number() (any, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' || c == '_' {
			p.pos++
			continue
		}
		break
	}
	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("literal: bad number %q", text)
	}
	return f, nil
}

func (p *parser) word() (any, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p.pos++
			continue
		}
		break
	}
	switch w := p.src[start:p.pos]; w {
	case "true", "True":
		return true, nil
	case "false", "False":
		return false, nil
	case "null", "None":
		return nil, nil
	case "":
		return nil, fmt.Errorf("literal: unexpected %q at offset %d", p.src[start:start+1], start)
	default:
		return nil, fmt.Errorf("literal: unknown word %q", w)
	}
}

// Float converts a decoded numeric literal to float64.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
