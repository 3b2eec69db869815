package core

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/ankit-chaubey/privacy-surgery/core/literal"
)

// ValueKind is the type of a metadata value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
	KindRational
	KindBytes
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindRational:
		return "rational"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Rational is a numerator/denominator pair as stored by EXIF.
type Rational struct {
	Num, Den int64
}

// Value is a typed metadata value.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Rat   Rational
	Bytes []byte
	List  []Value
}

func String(s string) Value        { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value            { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value        { return Value{Kind: KindFloat, Float: f} }
func Rat(num, den int64) Value     { return Value{Kind: KindRational, Rat: Rational{num, den}} }
func Bytes(b []byte) Value         { return Value{Kind: KindBytes, Bytes: b} }
func List(items ...Value) Value    { return Value{Kind: KindList, List: items} }
func Strings(items []string) Value { return List(stringValues(items)...) }

func stringValues(items []string) []Value {
	out := make([]Value, len(items))
	for i, s := range items {
		out[i] = String(s)
	}
	return out
}

// String renders the value for display.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindRational:
		return fmt.Sprintf("%d/%d", v.Rat.Num, v.Rat.Den)
	case KindBytes:
		if printable(v.Bytes) {
			return string(v.Bytes)
		}
		return "0x" + hex.EncodeToString(v.Bytes)
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.String()
		}
		return strings.Join(parts, "; ")
	default:
		return v.Str
	}
}

// Strings returns the display form of each list item, or the value itself
// as a one-element slice.
func (v Value) Strings() []string {
	if v.Kind != KindList {
		return []string{v.String()}
	}
	out := make([]string, len(v.List))
	for i, item := range v.List {
		out[i] = item.String()
	}
	return out
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindRational:
		return v.Rat == o.Rat
	case KindBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	default:
		return v.Str == o.Str
	}
}

func printable(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	for _, c := range b {
		if c > unicode.MaxASCII || (c < 0x20 && c != '\n' && c != '\t') {
			return false
		}
	}
	return true
}

// Coerce converts user input to the type of the current value.
func Coerce(current Value, input string) (Value, error) {
	s := strings.TrimSpace(input)
	switch current.Kind {
	case KindString:
		return String(input), nil
	case KindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// "3.0" for an integer field is still an integer
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != math.Trunc(f) {
				return Value{}, err
			}
			i = int64(f)
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case KindRational:
		return parseRational(s)
	case KindBytes:
		if strings.HasPrefix(s, "0x") {
			b, err := hex.DecodeString(s[2:])
			if err != nil {
				return Value{}, err
			}
			return Bytes(b), nil
		}
		return Bytes([]byte(input)), nil
	case KindList:
		if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "(") {
			lit, err := literal.Parse(s)
			if err != nil {
				return Value{}, err
			}
			return fromLiteral(lit), nil
		}
		if s == "" {
			return List(), nil
		}
		parts := strings.Split(s, ";")
		items := make([]Value, 0, len(parts))
		var elem Value
		if len(current.List) > 0 {
			elem = current.List[0]
		}
		for _, part := range parts {
			item, err := Coerce(elem, strings.TrimSpace(part))
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return List(items...), nil
	}
	return Value{}, fmt.Errorf("unknown value kind %d", current.Kind)
}

func parseRational(s string) (Value, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
		if err != nil {
			return Value{}, err
		}
		d, err := strconv.ParseInt(strings.TrimSpace(den), 10, 64)
		if err != nil {
			return Value{}, err
		}
		if d == 0 {
			return Value{}, fmt.Errorf("zero denominator")
		}
		return Rat(n, d), nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Rat(i, 1), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, err
	}
	// Keep four decimal places, the precision EXIF GPS tools emit.
	return Rat(int64(math.Round(f*10000)), 10000), nil
}

// ParseLiteral interprets input for a key that has no current value.
// Literal scalars and lists become typed values; anything else is a string.
func ParseLiteral(input string) Value {
	lit, err := literal.Parse(input)
	if err != nil {
		return String(input)
	}
	return fromLiteral(lit)
}

func fromLiteral(lit any) Value {
	switch t := lit.(type) {
	case string:
		return String(t)
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case bool:
		if t {
			return Int(1)
		}
		return Int(0)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = fromLiteral(item)
		}
		return List(items...)
	}
	return String("")
}
