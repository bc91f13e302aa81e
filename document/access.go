package document

import (
	"cmp"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Get looks up a top-level field by exact name. There is no path syntax and no
// case-insensitive matching.
func Get(d Document, field string) (Value, bool) {
	return d.Get(field)
}

// IsPresentForGrouping reports whether field exists in d. An explicit null
// counts as present and is bucketed under the "null" group key.
func IsPresentForGrouping(d Document, field string) bool {
	_, ok := d.Get(field)
	return ok
}

// IsPresentForOrdering reports whether field exists in d with a non-null
// value. Sorting treats null the same as absent.
func IsPresentForOrdering(d Document, field string) bool {
	v, ok := d.Get(field)
	return ok && !v.IsNull()
}

// Classify returns the kind of v.
func Classify(v Value) Kind {
	switch v.kind {
	case KindString, KindInteger, KindFloat, KindBool, KindObject, KindArray:
		return v.kind
	default:
		return KindNull
	}
}

// GroupKey renders v as the string used to bucket documents when grouping.
func GroupKey(v Value) string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.str
	case KindInteger:
		return v.intText()
	case KindFloat:
		return formatFloat(v.flt)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindObject, KindArray:
		b, err := v.MarshalJSON()
		if err != nil {
			return v.kind.String()
		}
		return string(b)
	}
	return ""
}

// Orderable reports whether v can take part in a sort. Null, objects and
// arrays have no order.
func Orderable(v Value) bool {
	switch v.kind {
	case KindInteger, KindFloat, KindString, KindBool:
		return true
	default:
		return false
	}
}

// rank places orderable kinds relative to each other: numbers, then strings,
// then booleans.
func rank(k Kind) int {
	switch k {
	case KindInteger, KindFloat:
		return 0
	case KindString:
		return 1
	case KindBool:
		return 2
	default:
		return 3
	}
}

// Compare orders two orderable values. Numbers compare numerically, strings by
// codepoint and false sorts before true. Callers filter with Orderable first.
func Compare(a, b Value) int {
	if c := cmp.Compare(rank(a.kind), rank(b.kind)); c != 0 {
		return c
	}
	switch a.kind {
	case KindInteger, KindFloat:
		return compareNumbers(a, b)
	case KindString:
		return strings.Compare(a.str, b.str)
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	}
	return 0
}

func compareNumbers(a, b Value) int {
	if a.kind == KindInteger && b.kind == KindInteger {
		if a.bigNum == nil && b.bigNum == nil {
			return cmp.Compare(a.num, b.num)
		}
		return a.bigInt().Cmp(b.bigInt())
	}
	if a.bigNum == nil && b.bigNum == nil {
		af, _ := a.Float()
		bf, _ := b.Float()
		return cmp.Compare(af, bf)
	}
	// An integer beyond int64 against a float compares exactly. NaN sorts
	// first, as in cmp.Compare.
	aNaN, bNaN := a.isNaN(), b.isNaN()
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	case bNaN:
		return 1
	}
	return a.bigFloat().Cmp(b.bigFloat())
}

func (v Value) isNaN() bool {
	return v.kind == KindFloat && math.IsNaN(v.flt)
}

func (v Value) bigFloat() *big.Float {
	if v.kind == KindFloat {
		return big.NewFloat(v.flt)
	}
	return new(big.Float).SetInt(v.bigInt())
}
