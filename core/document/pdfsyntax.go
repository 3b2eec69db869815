package document

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ─── PDF object syntax ───────────────────────────────────────────────────────
// Enough of ISO 32000 section 7.3 to read and write the trailer, the
// document catalog, and the Info dictionary.

type pdfName string

type pdfRef struct{ num, gen int }

type pdfNumber string

type pdfKeyword string // true, false, null

type pdfString struct {
	b   []byte
	hex bool
}

type pdfArray []any

// pdfDict keeps key order so rewritten dictionaries diff cleanly.
type pdfDict struct {
	keys []pdfName
	vals map[pdfName]any
}

func newDict() *pdfDict { return &pdfDict{vals: map[pdfName]any{}} }

func (d *pdfDict) get(k pdfName) (any, bool) {
	v, ok := d.vals[k]
	return v, ok
}

func (d *pdfDict) set(k pdfName, v any) {
	if _, ok := d.vals[k]; !ok {
		d.keys = append(d.keys, k)
	}
	d.vals[k] = v
}

func (d *pdfDict) del(k pdfName) {
	if _, ok := d.vals[k]; !ok {
		return
	}
	delete(d.vals, k)
	for i, key := range d.keys {
		if key == k {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

func (d *pdfDict) ref(k pdfName) (pdfRef, bool) {
	r, ok := d.vals[k].(pdfRef)
	return r, ok
}

func (d *pdfDict) int(k pdfName) (int64, bool) {
	n, ok := d.vals[k].(pdfNumber)
	if !ok {
		return 0, false
	}
	i, err := strconv.ParseInt(string(n), 10, 64)
	return i, err == nil
}

func (d *pdfDict) clone() *pdfDict {
	c := newDict()
	for _, k := range d.keys {
		c.set(k, d.vals[k])
	}
	return c
}

// ─── Lexer ───────────────────────────────────────────────────────────────────

type pdfLexer struct {
	b   []byte
	pos int
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *pdfLexer) skipSpace() {
	for l.pos < len(l.b) {
		c := l.b[l.pos]
		if c == '%' {
			for l.pos < len(l.b) && l.b[l.pos] != '\n' && l.b[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		if !isPDFSpace(c) {
			return
		}
		l.pos++
	}
}

func (l *pdfLexer) errorf(format string, args ...any) error {
	return fmt.Errorf("pdf syntax at offset %d: %s", l.pos, fmt.Sprintf(format, args...))
}

// keyword reads a bare token such as obj, R, true.
func (l *pdfLexer) keyword() string {
	start := l.pos
	for l.pos < len(l.b) && !isPDFSpace(l.b[l.pos]) && !isPDFDelim(l.b[l.pos]) {
		l.pos++
	}
	return string(l.b[start:l.pos])
}

func (l *pdfLexer) object() (any, error) {
	l.skipSpace()
	if l.pos >= len(l.b) {
		return nil, l.errorf("unexpected end of data")
	}
	switch c := l.b[l.pos]; {
	case c == '<' && l.pos+1 < len(l.b) && l.b[l.pos+1] == '<':
		return l.dict()
	case c == '<':
		return l.hexString()
	case c == '[':
		return l.array()
	case c == '(':
		return l.literalString()
	case c == '/':
		return l.name(), nil
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return l.numberOrRef(), nil
	default:
		kw := l.keyword()
		switch kw {
		case "true", "false", "null":
			return pdfKeyword(kw), nil
		case "":
			return nil, l.errorf("unexpected %q", c)
		}
		return nil, l.errorf("unexpected keyword %q", kw)
	}
}

func (l *pdfLexer) dict() (*pdfDict, error) {
	l.pos += 2
	d := newDict()
	for {
		l.skipSpace()
		if l.pos+1 < len(l.b) && l.b[l.pos] == '>' && l.b[l.pos+1] == '>' {
			l.pos += 2
			return d, nil
		}
		if l.pos >= len(l.b) {
			return nil, l.errorf("unterminated dictionary")
		}
		if l.b[l.pos] != '/' {
			return nil, l.errorf("dictionary key is not a name")
		}
		k := l.name()
		v, err := l.object()
		if err != nil {
			return nil, err
		}
		d.set(k, v)
	}
}

func (l *pdfLexer) array() (pdfArray, error) {
	l.pos++
	var a pdfArray
	for {
		l.skipSpace()
		if l.pos >= len(l.b) {
			return nil, l.errorf("unterminated array")
		}
		if l.b[l.pos] == ']' {
			l.pos++
			return a, nil
		}
		v, err := l.object()
		if err != nil {
			return nil, err
		}
		a = append(a, v)
	}
}

func (l *pdfLexer) name() pdfName {
	l.pos++ // '/'
	var b strings.Builder
	for l.pos < len(l.b) && !isPDFSpace(l.b[l.pos]) && !isPDFDelim(l.b[l.pos]) {
		c := l.b[l.pos]
		if c == '#' && l.pos+2 < len(l.b) {
			if v, err := strconv.ParseUint(string(l.b[l.pos+1:l.pos+3]), 16, 8); err == nil {
				b.WriteByte(byte(v))
				l.pos += 3
				continue
			}
		}
		b.WriteByte(c)
		l.pos++
	}
	return pdfName(b.String())
}

func (l *pdfLexer) numberOrRef() any {
	first := l.keyword()
	if _, err := strconv.Atoi(first); err != nil {
		return pdfNumber(first)
	}
	save := l.pos
	l.skipSpace()
	gen := l.keyword()
	if _, err := strconv.Atoi(gen); err == nil {
		l.skipSpace()
		if l.pos < len(l.b) && l.b[l.pos] == 'R' && (l.pos+1 == len(l.b) || isPDFSpace(l.b[l.pos+1]) || isPDFDelim(l.b[l.pos+1])) {
			l.pos++
			n, _ := strconv.Atoi(first)
			g, _ := strconv.Atoi(gen)
			return pdfRef{n, g}
		}
	}
	l.pos = save
	return pdfNumber(first)
}

func (l *pdfLexer) hexString() (pdfString, error) {
	l.pos++
	end := bytes.IndexByte(l.b[l.pos:], '>')
	if end < 0 {
		return pdfString{}, l.errorf("unterminated hex string")
	}
	var digits []byte
	for _, c := range l.b[l.pos : l.pos+end] {
		if !isPDFSpace(c) {
			digits = append(digits, c)
		}
	}
	l.pos += end + 1
	if len(digits)%2 != 0 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		v, err := strconv.ParseUint(string(digits[2*i:2*i+2]), 16, 8)
		if err != nil {
			return pdfString{}, l.errorf("bad hex digit")
		}
		out[i] = byte(v)
	}
	return pdfString{b: out, hex: true}, nil
}

func (l *pdfLexer) literalString() (pdfString, error) {
	l.pos++
	var out []byte
	depth := 1
	for l.pos < len(l.b) {
		c := l.b[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return pdfString{b: out}, nil
			}
		case '\\':
			if l.pos >= len(l.b) {
				return pdfString{}, l.errorf("dangling escape")
			}
			e := l.b[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.b) && l.b[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.b) && l.b[l.pos] >= '0' && l.b[l.pos] <= '7'; i++ {
						v = v*8 + int(l.b[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
					continue
				}
				out = append(out, e)
			}
			continue
		}
		out = append(out, c)
	}
	return pdfString{}, l.errorf("unterminated string")
}

// ─── Writer ──────────────────────────────────────────────────────────────────

func writeObject(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case *pdfDict:
		buf.WriteString("<<")
		for _, k := range t.keys {
			buf.WriteByte(' ')
			writeName(buf, k)
			buf.WriteByte(' ')
			writeObject(buf, t.vals[k])
		}
		buf.WriteString(" >>")
	case pdfArray:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, item)
		}
		buf.WriteByte(']')
	case pdfName:
		writeName(buf, t)
	case pdfRef:
		fmt.Fprintf(buf, "%d %d R", t.num, t.gen)
	case pdfNumber:
		buf.WriteString(string(t))
	case pdfKeyword:
		buf.WriteString(string(t))
	case pdfString:
		writeString(buf, t)
	default:
		buf.WriteString("null")
	}
}

func writeName(buf *bytes.Buffer, n pdfName) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < '!' || c > '~' || c == '#' || isPDFDelim(c) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func writeString(buf *bytes.Buffer, s pdfString) {
	if s.hex {
		fmt.Fprintf(buf, "<%X>", s.b)
		return
	}
	buf.WriteByte('(')
	for _, c := range s.b {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			if c < 0x20 || c > 0x7E {
				fmt.Fprintf(buf, "\\%03o", c)
				continue
			}
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}
