// Package partialjson parses JSON documents that may be cut off at any byte,
// as happens while tool call arguments stream in.
//
// A value is surfaced only once it is syntactically complete. For the
// outermost object the complete members are returned even while the object
// itself is still open; nested objects and arrays stay absent until closed.
// Numbers and literals at the very end of the buffer count as incomplete
// because more bytes may extend them.
package partialjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrSyntax reports input that is invalid rather than merely truncated.
var ErrSyntax = errors.New("partialjson: syntax error")

// Parse parses a possibly truncated document. It returns the value built so
// far, whether the document is complete, and an error only for input that
// can never become valid JSON.
func Parse(data []byte) (any, bool, error) {
	return parse(data, false)
}

// ParsePrefix is Parse for a document followed by arbitrary text, such as
// the closing fence of a markdown code block. Parsing stops after the first
// complete top-level value.
func ParsePrefix(data []byte) (any, bool, error) {
	return parse(data, true)
}

func parse(data []byte, allowTrailing bool) (any, bool, error) {
	p := &parser{data: data}
	p.skipSpace()
	if p.eof() {
		return nil, false, nil
	}
	v, complete, err := p.value(true)
	if err != nil {
		return nil, false, err
	}
	if !complete {
		// a bare scalar ending exactly at the buffer end is complete if valid
		if _, isObj := v.(map[string]any); !isObj && json.Valid(data) {
			var full any
			if err := json.Unmarshal(data, &full); err != nil {
				return nil, false, p.errorf("%v", err)
			}
			return full, true, nil
		}
		return v, false, nil
	}
	p.skipSpace()
	if !p.eof() && !allowTrailing {
		return nil, false, p.errorf("unexpected trailing data")
	}
	return v, true, nil
}

// ParseObject is Parse restricted to objects. A document that has not yet
// produced its opening brace yields an empty map.
func ParseObject(data []byte) (map[string]any, bool, error) {
	return object(Parse(data))
}

// ParseObjectPrefix is ParsePrefix restricted to objects.
func ParseObjectPrefix(data []byte) (map[string]any, bool, error) {
	return object(ParsePrefix(data))
}

func object(v any, complete bool, err error) (map[string]any, bool, error) {
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return map[string]any{}, false, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("%w: top-level value is %T, not an object", ErrSyntax, v)
	}
	return obj, complete, nil
}

type parser struct {
	data []byte
	pos  int
}

func (p *parser) eof() bool { return p.pos >= len(p.data) }

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.data[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

// value parses one value. keepPartial controls whether an open object
// returns the members completed so far.
func (p *parser) value(keepPartial bool) (any, bool, error) {
	p.skipSpace()
	if p.eof() {
		return nil, false, nil
	}
	switch c := p.data[p.pos]; {
	case c == '{':
		return p.object(keepPartial)
	case c == '[':
		return p.array()
	case c == '"':
		return p.str()
	case c == 't':
		return p.literal("true", true)
	case c == 'f':
		return p.literal("false", false)
	case c == 'n':
		return p.literal("null", nil)
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return nil, false, p.errorf("unexpected character %q", c)
	}
}

func (p *parser) object(keepPartial bool) (any, bool, error) {
	p.pos++ // '{'
	obj := map[string]any{}
	partial := func() (any, bool, error) {
		if keepPartial {
			return obj, false, nil
		}
		return nil, false, nil
	}

	p.skipSpace()
	if p.eof() {
		return partial()
	}
	if p.data[p.pos] == '}' {
		p.pos++
		return obj, true, nil
	}

	for {
		p.skipSpace()
		if p.eof() {
			return partial()
		}
		if p.data[p.pos] != '"' {
			return nil, false, p.errorf("expected object key")
		}
		k, complete, err := p.str()
		if err != nil {
			return nil, false, err
		}
		if !complete {
			return partial()
		}
		p.skipSpace()
		if p.eof() {
			return partial()
		}
		if p.data[p.pos] != ':' {
			return nil, false, p.errorf("expected ':' after object key")
		}
		p.pos++

		v, complete, err := p.value(false)
		if err != nil {
			return nil, false, err
		}
		if !complete {
			return partial()
		}
		obj[k.(string)] = v

		p.skipSpace()
		if p.eof() {
			return partial()
		}
		switch p.data[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return obj, true, nil
		default:
			return nil, false, p.errorf("expected ',' or '}' in object")
		}
	}
}

func (p *parser) array() (any, bool, error) {
	p.pos++ // '['
	arr := []any{}

	p.skipSpace()
	if p.eof() {
		return nil, false, nil
	}
	if p.data[p.pos] == ']' {
		p.pos++
		return arr, true, nil
	}

	for {
		v, complete, err := p.value(false)
		if err != nil {
			return nil, false, err
		}
		if !complete {
			return nil, false, nil
		}
		arr = append(arr, v)

		p.skipSpace()
		if p.eof() {
			return nil, false, nil
		}
		switch p.data[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return arr, true, nil
		default:
			return nil, false, p.errorf("expected ',' or ']' in array")
		}
	}
}

func (p *parser) str() (any, bool, error) {
	start := p.pos
	p.pos++ // opening quote
	for !p.eof() {
		switch p.data[p.pos] {
		case '\\':
			p.pos += 2
		case '"':
			p.pos++
			var s string
			if err := json.Unmarshal(p.data[start:p.pos], &s); err != nil {
				return nil, false, p.errorf("invalid string: %v", err)
			}
			return s, true, nil
		default:
			p.pos++
		}
	}
	p.pos = len(p.data)
	return nil, false, nil
}

func (p *parser) literal(word string, v any) (any, bool, error) {
	rest := p.data[p.pos:]
	n := len(word)
	if len(rest) < n {
		if string(rest) == word[:len(rest)] {
			p.pos = len(p.data)
			return nil, false, nil
		}
		return nil, false, p.errorf("invalid literal")
	}
	if string(rest[:n]) != word {
		return nil, false, p.errorf("invalid literal")
	}
	p.pos += n
	if p.eof() {
		// final only once a delimiter follows
		return nil, false, nil
	}
	return v, true, nil
}

func (p *parser) number() (any, bool, error) {
	start := p.pos
	for !p.eof() {
		c := p.data[p.pos]
		if (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		break
	}
	if p.eof() {
		return nil, false, nil
	}
	f, err := strconv.ParseFloat(string(p.data[start:p.pos]), 64)
	if err != nil {
		return nil, false, p.errorf("invalid number %q", p.data[start:p.pos])
	}
	return f, true, nil
}
