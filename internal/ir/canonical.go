package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical encodes v as RFC 8785 canonical JSON. Script hashes and
// record digests are computed over this encoding and nothing else.
//
// Compared with json.Marshal:
//   - object keys are ordered by UTF-16 code units
//   - strings are NFC normalized and only quote, backslash and control
//     characters are escaped
//   - null and floats are errors
//
// v may be an IRValue or anything FromAny accepts.
func MarshalCanonical(v any) ([]byte, error) {
	irv, ok := v.(IRValue)
	if !ok {
		var err error
		if irv, err = FromAny(v); err != nil {
			return nil, fmt.Errorf("canonical JSON: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := (encoder{buf: &buf, canonical: true}).value(irv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encoder writes IR values as JSON. The canonical flag switches between
// MarshalCanonical and MarshalIRValue rules.
type encoder struct {
	buf       *bytes.Buffer
	canonical bool
}

func (e encoder) value(v IRValue) error {
	switch val := v.(type) {
	case IRNull:
		if e.canonical {
			return fmt.Errorf("null is forbidden in canonical JSON")
		}
		e.buf.WriteString("null")
	case IRString:
		return e.str(string(val))
	case IRInt:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case IRBool:
		e.buf.WriteString(strconv.FormatBool(bool(val)))
	case IRArray:
		e.buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if err := e.value(elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		e.buf.WriteByte(']')
	case IRObject:
		e.buf.WriteByte('{')
		for i, k := range e.keys(val) {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if err := e.str(k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			e.buf.WriteByte(':')
			if err := e.value(val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		e.buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported IRValue type %T", v)
	}
	return nil
}

// keys orders object keys. Canonical keys are compared after NFC
// normalization, the form they are written in.
func (e encoder) keys(obj IRObject) []string {
	if !e.canonical {
		return obj.SortedKeys()
	}
	normalized := make(IRObject, len(obj))
	original := make(map[string]string, len(obj))
	for k := range obj {
		n := norm.NFC.String(k)
		normalized[n] = nil
		original[n] = k
	}
	keys := normalized.SortedKeys()
	for i, n := range keys {
		keys[i] = original[n]
	}
	return keys
}

func (e encoder) str(s string) error {
	if !e.canonical {
		b, err := json.Marshal(s)
		if err != nil {
			return err
		}
		e.buf.Write(b)
		return nil
	}
	writeCanonicalString(e.buf, norm.NFC.String(s))
	return nil
}

// writeCanonicalString quotes s per RFC 8785: the two-character escapes
// for \b \t \n \f \r, \u00xx for other control characters, and every other
// character literal. Invalid UTF-8 is replaced with U+FFFD.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	const hex = "0123456789abcdef"
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hex[r>>4])
			buf.WriteByte(hex[r&0xF])
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}
