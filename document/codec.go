package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ErrNotObject is returned when a payload is valid JSON but not an object.
var ErrNotObject = errors.New("document must be a JSON object")

// Parse decodes a JSON object into a Document, keeping field order.
func Parse(data []byte) (Document, error) {
	var d Document
	if err := d.UnmarshalJSON(data); err != nil {
		return Document{}, err
	}
	return d, nil
}

// UnmarshalJSON implements json.Unmarshaler. A literal null leaves the
// document empty.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*d = Document{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotObject
	}
	parsed, err := decodeObject(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after document")
	}
	*d = parsed
	return nil
}

// decodeObject reads fields until the closing brace. The opening brace has
// already been consumed.
func decodeObject(dec *json.Decoder) (Document, error) {
	var d Document
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Document{}, err
		}
		name, ok := tok.(string)
		if !ok {
			return Document{}, fmt.Errorf("expected field name, got %v", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return Document{}, fmt.Errorf("field %q: %w", name, err)
		}
		d.Set(name, v)
	}
	if _, err := dec.Token(); err != nil {
		return Document{}, err
	}
	return d, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return parseNumber(string(t))
	case json.Delim:
		switch t {
		case '{':
			obj, err := decodeObject(dec)
			if err != nil {
				return Value{}, err
			}
			return Object(obj), nil
		case '[':
			elems := []Value{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				elems = append(elems, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Array(elems...), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// parseNumber keeps integer literals as integers at any magnitude; only
// literals with a fraction or exponent become floats.
func parseNumber(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
		if i, ok := new(big.Int).SetString(s, 10); ok {
			return BigInt(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Float(f), nil
}

// MarshalJSON implements json.Marshaler, writing fields in document order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d Document) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, f := range d.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if err := f.Value.encode(buf); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		s, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(s)
	case KindInteger:
		buf.WriteString(v.intText())
	case KindFloat:
		if math.IsNaN(v.flt) || math.IsInf(v.flt, 0) {
			return fmt.Errorf("unsupported float value %v", v.flt)
		}
		buf.WriteString(formatFloat(v.flt))
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindObject:
		obj, _ := v.Object()
		return obj.encode(buf)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("unknown value kind %d", v.kind)
	}
	return nil
}
