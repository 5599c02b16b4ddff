//  _
// | |_ ___  ___ ___  ___ _ __ __ _
// | __/ _ \/ __/ __|/ _ \ '__/ _` |
// | ||  __/\__ \__ \  __/ | | (_| |
//  \__\___||___/___/\___|_|  \__,_|
//
//  Copyright © 2019 - 2026 Tessera Labs B.V. All rights reserved.
//
//  CONTACT: hello@tesseradb.io
//

// Package value implements the tagged variant that carries every scalar and
// compound key through the query pipeline: index keys, filter operands,
// aggregation accumulators and sort keys are all Values.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tesseradb/tessera/entities/terrors"
)

type Type int8

const (
	TypeNull Type = iota
	TypeBool
	TypeInt
	TypeInt64
	TypeDouble
	TypeString
	TypeTuple
	TypeComposite
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeInt64:
		return "int64"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeTuple:
		return "tuple"
	case TypeComposite:
		return "composite"
	default:
		return fmt.Sprintf("type(%d)", int8(t))
	}
}

func (t Type) IsNumeric() bool {
	return t == TypeInt || t == TypeInt64 || t == TypeDouble
}

// CollateMode affects string ordering and equality.
type CollateMode int8

const (
	CollateNone CollateMode = iota
	CollateASCII
	CollateUTF8
	CollateNumeric
)

// Value is a small tagged variant. Scalars are stored inline; tuples and
// composites share the arr slot. The zero Value is Null.
type Value struct {
	typ Type
	num int64 // bool, int, int64; double as Float64bits
	str string
	arr []Value
}

func Null() Value { return Value{} }

func Bool(b bool) Value {
	var n int64
	if b {
		n = 1
	}
	return Value{typ: TypeBool, num: n}
}

func Int(i int) Value { return Value{typ: TypeInt, num: int64(i)} }

func Int64(i int64) Value { return Value{typ: TypeInt64, num: i} }

func Double(f float64) Value {
	return Value{typ: TypeDouble, num: int64(math.Float64bits(f))}
}

func String(s string) Value { return Value{typ: TypeString, str: s} }

func Tuple(vals ...Value) Value { return Value{typ: TypeTuple, arr: vals} }

// Composite builds a compound key from per-field sub-values. Sub-value order
// must follow the index's fields-set order.
func Composite(subs ...Value) Value { return Value{typ: TypeComposite, arr: subs} }

func (v Value) Type() Type { return v.typ }
func (v Value) IsNull() bool { return v.typ == TypeNull }

func (v Value) AsBool() bool { return v.num != 0 }

func (v Value) AsInt64() int64 {
	if v.typ == TypeDouble {
		return int64(math.Float64frombits(uint64(v.num)))
	}
	return v.num
}

func (v Value) AsDouble() float64 {
	if v.typ == TypeDouble {
		return math.Float64frombits(uint64(v.num))
	}
	return float64(v.num)
}

func (v Value) AsString() string { return v.str }

func (v Value) Subs() []Value { return v.arr }

func (v Value) String() string {
	switch v.typ {
	case TypeNull:
		return "null"
	case TypeBool:
		return strconv.FormatBool(v.AsBool())
	case TypeInt, TypeInt64:
		return strconv.FormatInt(v.num, 10)
	case TypeDouble:
		return strconv.FormatFloat(v.AsDouble(), 'g', -1, 64)
	case TypeString:
		return v.str
	case TypeTuple, TypeComposite:
		parts := make([]string, len(v.arr))
		for i, s := range v.arr {
			parts[i] = s.String()
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return "?"
	}
}

// ConvertTo coerces v to the target scalar type. Conversions follow what a
// where-clause literal may legally become: numeric widening/narrowing,
// string<->numeric parsing and bool<->int. Anything else is
// InvalidArgument.
func (v Value) ConvertTo(t Type) (Value, error) {
	if v.typ == t || t == TypeNull || v.typ == TypeNull {
		return v, nil
	}
	switch t {
	case TypeBool:
		switch v.typ {
		case TypeInt, TypeInt64:
			return Bool(v.num != 0), nil
		case TypeString:
			b, err := strconv.ParseBool(v.str)
			if err != nil {
				return Value{}, terrors.Errorf(terrors.InvalidArgument, "can't convert '%s' to bool", v.str)
			}
			return Bool(b), nil
		}
	case TypeInt, TypeInt64:
		switch v.typ {
		case TypeBool:
			return Value{typ: t, num: v.num}, nil
		case TypeInt, TypeInt64:
			return Value{typ: t, num: v.num}, nil
		case TypeDouble:
			return Value{typ: t, num: int64(v.AsDouble())}, nil
		case TypeString:
			i, err := strconv.ParseInt(strings.TrimSpace(v.str), 10, 64)
			if err != nil {
				f, ferr := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
				if ferr != nil {
					return Value{}, terrors.Errorf(terrors.InvalidArgument, "can't convert '%s' to int", v.str)
				}
				i = int64(f)
			}
			return Value{typ: t, num: i}, nil
		}
	case TypeDouble:
		switch v.typ {
		case TypeBool, TypeInt, TypeInt64:
			return Double(float64(v.num)), nil
		case TypeString:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
			if err != nil {
				return Value{}, terrors.Errorf(terrors.InvalidArgument, "can't convert '%s' to double", v.str)
			}
			return Double(f), nil
		}
	case TypeString:
		return String(v.String()), nil
	}
	return Value{}, terrors.Errorf(terrors.InvalidArgument, "can't convert %s to %s", v.typ, t)
}

// Key is a comparable form of a Value usable as a Go map key. Compound
// values fold their sub-keys into the string slot.
type Key struct {
	T Type
	N int64
	S string
}

func (v Value) Key() Key {
	switch v.typ {
	case TypeTuple, TypeComposite:
		var sb strings.Builder
		for _, s := range v.arr {
			k := s.Key()
			fmt.Fprintf(&sb, "%d:%d:%s;", k.T, k.N, k.S)
		}
		return Key{T: v.typ, S: sb.String()}
	default:
		return Key{T: v.typ, N: v.num, S: v.str}
	}
}
