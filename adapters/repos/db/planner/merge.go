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

package planner

import (
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/value"
)

// mergeLevel folds compatible condition entries over the same scalar field
// joined by And at one bracket level. Merges never cross an Or boundary and
// never touch array or distinct entries.
func mergeLevel(entries []*queries.Entry, ns Namespace) []*queries.Entry {
	for _, e := range entries {
		if e.Kind == queries.KindBracket {
			e.Children = mergeLevel(e.Children, ns)
		}
	}
	pt := ns.PayloadType()
	changed := true
	for changed {
		changed = false
		for i := 0; i < len(entries) && !changed; i++ {
			lhs := entries[i]
			// an Or-connected lhs folds against its left siblings first;
			// merging it with a later And conjunct would change semantics
			if !mergeable(lhs) || lhs.Op == queries.OpOr {
				continue
			}
			if lhs.FieldID >= 0 && pt.Field(lhs.FieldID).IsArray {
				continue
			}
			for j := i + 1; j < len(entries); j++ {
				rhs := entries[j]
				if rhs.Op == queries.OpOr {
					// an Or boundary: nothing right of it merges with lhs
					break
				}
				if rhs.Op != queries.OpAnd || !mergeable(rhs) ||
					rhs.FieldID != lhs.FieldID || rhs.Field != lhs.Field ||
					rhs.Collate != lhs.Collate {
					continue
				}
				merged, ok := mergeEntries(lhs, rhs)
				if !ok {
					continue
				}
				entries[i] = merged
				entries = append(entries[:j], entries[j+1:]...)
				changed = true
				break
			}
		}
	}
	return entries
}

func mergeable(e *queries.Entry) bool {
	return e.Kind == queries.KindCondition && !e.Distinct &&
		(e.Op == queries.OpAnd || e.Op == queries.OpOr)
}

// mergeEntries applies the conjunction merge table. The result keeps the
// lhs operator. ok=false means the pair stays as-is.
func mergeEntries(lhs, rhs *queries.Entry) (*queries.Entry, bool) {
	col := lhs.Collate
	mk := func(cond queries.Condition, vals ...value.Value) *queries.Entry {
		e := queries.NewCondEntry(lhs.Op, lhs.Field, cond, vals...)
		e.FieldID = lhs.FieldID
		e.Collate = col
		return e
	}
	annihilate := func() *queries.Entry {
		e := queries.AlwaysFalse(lhs.Op)
		return e
	}

	lc, rc := lhs.Cond, rhs.Cond
	// Any{} only asserts presence: X wins
	if lc == queries.CondAny && rc != queries.CondEmpty {
		return mk(rc, rhs.Values...), true
	}
	if rc == queries.CondAny && lc != queries.CondEmpty {
		return mk(lc, lhs.Values...), true
	}

	switch {
	case isSetLike(lc) && isSetLike(rc):
		inter := intersectValues(lhs.Values, rhs.Values, col)
		if len(inter) == 0 {
			return annihilate(), true
		}
		if len(inter) == 1 {
			return mk(queries.CondEq, inter[0]), true
		}
		return mk(queries.CondSet, inter...), true

	case lc == queries.CondAllSet && rc == queries.CondAllSet:
		union := unionValues(lhs.Values, rhs.Values, col)
		return mk(queries.CondAllSet, union...), true

	case isSetLike(lc) && rc == queries.CondAllSet:
		return mergeSetAllSet(mk, annihilate, lhs.Values, rhs.Values, col)
	case lc == queries.CondAllSet && isSetLike(rc):
		return mergeSetAllSet(mk, annihilate, rhs.Values, lhs.Values, col)

	case (lc == queries.CondLt || lc == queries.CondLe) && lc == rc:
		return mk(lc, minValue(lhs.Values[0], rhs.Values[0], col)), true
	case (lc == queries.CondGt || lc == queries.CondGe) && lc == rc:
		return mk(lc, maxValue(lhs.Values[0], rhs.Values[0], col)), true

	case lc == queries.CondGe && rc == queries.CondLe:
		return mergeGeLe(mk, annihilate, lhs.Values[0], rhs.Values[0], col)
	case lc == queries.CondLe && rc == queries.CondGe:
		return mergeGeLe(mk, annihilate, rhs.Values[0], lhs.Values[0], col)

	case lc == queries.CondRange && rc == queries.CondGe:
		return mergeRangeGe(mk, annihilate, lhs.Values, rhs.Values[0], col)
	case lc == queries.CondGe && rc == queries.CondRange:
		return mergeRangeGe(mk, annihilate, rhs.Values, lhs.Values[0], col)
	case lc == queries.CondRange && rc == queries.CondLe:
		return mergeRangeLe(mk, annihilate, lhs.Values, rhs.Values[0], col)
	case lc == queries.CondLe && rc == queries.CondRange:
		return mergeRangeLe(mk, annihilate, rhs.Values, lhs.Values[0], col)
	case lc == queries.CondRange && rc == queries.CondRange:
		lo := maxValue(lhs.Values[0], rhs.Values[0], col)
		hi := minValue(lhs.Values[1], rhs.Values[1], col)
		if lo.Compare(hi, col) > 0 {
			return annihilate(), true
		}
		return mk(queries.CondRange, lo, hi), true

	case isSetLike(lc) && isOrd(rc):
		kept := filterByOrd(lhs.Values, rc, rhs.Values, col)
		return setResult(mk, annihilate, kept)
	case isOrd(lc) && isSetLike(rc):
		kept := filterByOrd(rhs.Values, lc, lhs.Values, col)
		return setResult(mk, annihilate, kept)
	}
	return nil, false
}

func isSetLike(c queries.Condition) bool {
	return c == queries.CondEq || c == queries.CondSet
}

func isOrd(c queries.Condition) bool {
	switch c {
	case queries.CondLt, queries.CondLe, queries.CondGt, queries.CondGe, queries.CondRange:
		return true
	}
	return false
}

func mergeSetAllSet(mk func(queries.Condition, ...value.Value) *queries.Entry,
	annihilate func() *queries.Entry, set, all []value.Value, col value.CollateMode,
) (*queries.Entry, bool) {
	// scalar field: AllSet of more than one value can never hold
	if len(all) > 1 {
		return annihilate(), true
	}
	if len(all) == 0 {
		return setResult(mk, annihilate, set)
	}
	for _, v := range set {
		if v.Compare(all[0], col) == 0 {
			return mk(queries.CondEq, all[0]), true
		}
	}
	return annihilate(), true
}

func mergeGeLe(mk func(queries.Condition, ...value.Value) *queries.Entry,
	annihilate func() *queries.Entry, lo, hi value.Value, col value.CollateMode,
) (*queries.Entry, bool) {
	if lo.Compare(hi, col) > 0 {
		return annihilate(), true
	}
	return mk(queries.CondRange, lo, hi), true
}

func mergeRangeGe(mk func(queries.Condition, ...value.Value) *queries.Entry,
	annihilate func() *queries.Entry, rng []value.Value, lo value.Value, col value.CollateMode,
) (*queries.Entry, bool) {
	nlo := maxValue(rng[0], lo, col)
	if nlo.Compare(rng[1], col) > 0 {
		return annihilate(), true
	}
	return mk(queries.CondRange, nlo, rng[1]), true
}

func mergeRangeLe(mk func(queries.Condition, ...value.Value) *queries.Entry,
	annihilate func() *queries.Entry, rng []value.Value, hi value.Value, col value.CollateMode,
) (*queries.Entry, bool) {
	nhi := minValue(rng[1], hi, col)
	if rng[0].Compare(nhi, col) > 0 {
		return annihilate(), true
	}
	return mk(queries.CondRange, rng[0], nhi), true
}

func setResult(mk func(queries.Condition, ...value.Value) *queries.Entry,
	annihilate func() *queries.Entry, vals []value.Value,
) (*queries.Entry, bool) {
	switch len(vals) {
	case 0:
		return annihilate(), true
	case 1:
		return mk(queries.CondEq, vals[0]), true
	default:
		return mk(queries.CondSet, vals...), true
	}
}

func filterByOrd(vals []value.Value, cond queries.Condition, bounds []value.Value, col value.CollateMode) []value.Value {
	var out []value.Value
	for _, v := range vals {
		ok := false
		switch cond {
		case queries.CondLt:
			ok = v.Compare(bounds[0], col) < 0
		case queries.CondLe:
			ok = v.Compare(bounds[0], col) <= 0
		case queries.CondGt:
			ok = v.Compare(bounds[0], col) > 0
		case queries.CondGe:
			ok = v.Compare(bounds[0], col) >= 0
		case queries.CondRange:
			ok = v.Compare(bounds[0], col) >= 0 && v.Compare(bounds[1], col) <= 0
		}
		if ok {
			out = append(out, v)
		}
	}
	return out
}

func intersectValues(a, b []value.Value, col value.CollateMode) []value.Value {
	var out []value.Value
	for _, v := range a {
		for _, w := range b {
			if v.Compare(w, col) == 0 {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

func unionValues(a, b []value.Value, col value.CollateMode) []value.Value {
	out := append([]value.Value(nil), a...)
	for _, w := range b {
		dup := false
		for _, v := range out {
			if v.Compare(w, col) == 0 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, w)
		}
	}
	return out
}

func minValue(a, b value.Value, col value.CollateMode) value.Value {
	if a.Compare(b, col) <= 0 {
		return a
	}
	return b
}

func maxValue(a, b value.Value, col value.CollateMode) value.Value {
	if a.Compare(b, col) >= 0 {
		return a
	}
	return b
}
