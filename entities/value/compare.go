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

package value

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// typeRank orders values of different kinds for the total order: null <
// bool < numerics < string < tuple < composite. Numerics share a rank and
// compare by value across Int/Int64/Double.
func typeRank(t Type) int {
	switch t {
	case TypeNull:
		return 0
	case TypeBool:
		return 1
	case TypeInt, TypeInt64, TypeDouble:
		return 2
	case TypeString:
		return 3
	case TypeTuple:
		return 4
	case TypeComposite:
		return 5
	}
	return 6
}

// Compare implements the total order over Values. Strings honor the collate
// mode; everything else ignores it.
func (v Value) Compare(other Value, collate CollateMode) int {
	lr, rr := typeRank(v.typ), typeRank(other.typ)
	if lr != rr {
		if lr < rr {
			return -1
		}
		return 1
	}
	switch {
	case v.typ == TypeNull:
		return 0
	case v.typ == TypeBool:
		return cmpInt64(v.num, other.num)
	case v.typ.IsNumeric():
		if v.typ == TypeDouble || other.typ == TypeDouble {
			return cmpFloat64(v.AsDouble(), other.AsDouble())
		}
		return cmpInt64(v.num, other.num)
	case v.typ == TypeString:
		return compareStrings(v.str, other.str, collate)
	default: // tuple, composite
		n := len(v.arr)
		if len(other.arr) < n {
			n = len(other.arr)
		}
		for i := 0; i < n; i++ {
			if c := v.arr[i].Compare(other.arr[i], collate); c != 0 {
				return c
			}
		}
		return cmpInt64(int64(len(v.arr)), int64(len(other.arr)))
	}
}

func compareStrings(a, b string, collate CollateMode) int {
	switch collate {
	case CollateASCII:
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	case CollateUTF8:
		return strings.Compare(
			strings.ToLower(norm.NFC.String(a)),
			strings.ToLower(norm.NFC.String(b)))
	case CollateNumeric:
		fa, ea := strconv.ParseFloat(strings.TrimSpace(a), 64)
		fb, eb := strconv.ParseFloat(strings.TrimSpace(b), 64)
		if ea == nil && eb == nil {
			return cmpFloat64(fa, fb)
		}
		return strings.Compare(a, b)
	default:
		return strings.Compare(a, b)
	}
}

// RelaxEqual is the equality used by Distinct and Facet accumulators:
// numerics compare by value across Int/Int64/Double, everything else
// requires the same kind. Strings never equal numerics.
func RelaxEqual(a, b Value) bool {
	if a.typ.IsNumeric() && b.typ.IsNumeric() {
		if a.typ == TypeDouble || b.typ == TypeDouble {
			return a.AsDouble() == b.AsDouble()
		}
		return a.num == b.num
	}
	if a.typ != b.typ {
		return false
	}
	return a.Compare(b, CollateNone) == 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
