// Package document models schema-free JSON documents as a tagged union of
// values, and provides the field access, classification and ordering rules the
// query engines are built on.
package document

import (
	"math"
	"math/big"
	"strconv"
)

// Kind is the coarse type of a JSON value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// IsNumber reports whether the kind is integer or float.
func (k Kind) IsNumber() bool {
	return k == KindInteger || k == KindFloat
}

// Value is a single JSON value. The zero Value is null.
type Value struct {
	kind   Kind
	str    string
	num    int64
	bigNum *big.Int // integers outside the int64 range
	flt    float64
	b      bool
	obj    *Document
	arr    []Value
}

func Null() Value             { return Value{} }
func String(s string) Value   { return Value{kind: KindString, str: s} }
func Int(i int64) Value       { return Value{kind: KindInteger, num: i} }
func Float(f float64) Value   { return Value{kind: KindFloat, flt: f} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func Array(vs ...Value) Value { return Value{kind: KindArray, arr: vs} }

// BigInt returns an integer value of any magnitude. Values that fit in int64
// are stored as Int.
func BigInt(i *big.Int) Value {
	if i.IsInt64() {
		return Int(i.Int64())
	}
	return Value{kind: KindInteger, bigNum: new(big.Int).Set(i)}
}

// Object wraps a nested document.
func Object(d Document) Value {
	return Value{kind: KindObject, obj: &d}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload; ok is false for any other kind.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Int returns the integer payload; ok is false for any other kind and for
// integers that do not fit in int64.
func (v Value) Int() (int64, bool) {
	return v.num, v.kind == KindInteger && v.bigNum == nil
}

// BigInt returns the integer payload at full precision.
func (v Value) BigInt() (*big.Int, bool) {
	if v.kind != KindInteger {
		return nil, false
	}
	return v.bigInt(), true
}

func (v Value) bigInt() *big.Int {
	if v.bigNum != nil {
		return new(big.Int).Set(v.bigNum)
	}
	return big.NewInt(v.num)
}

// intText renders an integer value in base 10.
func (v Value) intText() string {
	if v.bigNum != nil {
		return v.bigNum.String()
	}
	return strconv.FormatInt(v.num, 10)
}

// Float returns the numeric payload as float64 for both integer and float
// values.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInteger:
		if v.bigNum != nil {
			f, _ := new(big.Float).SetInt(v.bigNum).Float64()
			return f, true
		}
		return float64(v.num), true
	case KindFloat:
		return v.flt, true
	}
	return 0, false
}

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Object returns the nested document; ok is false for any other kind.
func (v Value) Object() (Document, bool) {
	if v.kind != KindObject || v.obj == nil {
		return Document{}, v.kind == KindObject
	}
	return *v.obj, true
}

// Array returns the elements of an array value.
func (v Value) Array() ([]Value, bool) {
	return v.arr, v.kind == KindArray
}

// Equal reports deep structural equality. Integer and float values are never
// equal to each other, even when numerically identical.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindInteger:
		if v.bigNum == nil && o.bigNum == nil {
			return v.num == o.num
		}
		return v.bigInt().Cmp(o.bigInt()) == 0
	case KindFloat:
		return v.flt == o.flt || (math.IsNaN(v.flt) && math.IsNaN(o.flt))
	case KindBool:
		return v.b == o.b
	case KindObject:
		a, _ := v.Object()
		b, _ := o.Object()
		return a.Equal(b)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// formatFloat renders f in its shortest round-trip form and guarantees the
// text still reads back as a float.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', 'e', 'E', 'N', 'I':
			return s
		}
	}
	return s + ".0"
}
