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

// Package queries defines the parsed query shape consumed by the execution
// core: the filter entry tree, sorting, aggregation and join descriptors,
// and the JSON DSL decoder. The SQL/DSL text parsers live outside the core
// and hand over this model.
package queries

import "fmt"

type Condition int8

const (
	CondAny Condition = iota
	CondEq
	CondLt
	CondLe
	CondGt
	CondGe
	CondRange
	CondSet
	CondAllSet
	CondEmpty
	CondLike
	CondDWithin
)

func (c Condition) String() string {
	switch c {
	case CondAny:
		return "ANY"
	case CondEq:
		return "="
	case CondLt:
		return "<"
	case CondLe:
		return "<="
	case CondGt:
		return ">"
	case CondGe:
		return ">="
	case CondRange:
		return "RANGE"
	case CondSet:
		return "IN"
	case CondAllSet:
		return "ALLSET"
	case CondEmpty:
		return "EMPTY"
	case CondLike:
		return "LIKE"
	case CondDWithin:
		return "DWITHIN"
	default:
		return fmt.Sprintf("cond(%d)", int8(c))
	}
}

// CondFromDSL maps the DSL's cond strings.
func CondFromDSL(s string) (Condition, bool) {
	switch s {
	case "any":
		return CondAny, true
	case "eq":
		return CondEq, true
	case "lt":
		return CondLt, true
	case "le":
		return CondLe, true
	case "gt":
		return CondGt, true
	case "ge":
		return CondGe, true
	case "range":
		return CondRange, true
	case "set", "in":
		return CondSet, true
	case "allset":
		return CondAllSet, true
	case "empty":
		return CondEmpty, true
	case "like":
		return CondLike, true
	case "dwithin":
		return CondDWithin, true
	default:
		return CondAny, false
	}
}

type Op int8

const (
	OpAnd Op = iota
	OpOr
	OpNot
)

func (o Op) String() string {
	switch o {
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpNot:
		return "NOT"
	default:
		return fmt.Sprintf("op(%d)", int8(o))
	}
}

type StrictMode int8

const (
	StrictModeNone StrictMode = iota
	StrictModeNames
	StrictModeIndexes
)

type JoinType int8

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinOrInner
	JoinMerge
)

func (jt JoinType) String() string {
	switch jt {
	case JoinInner:
		return "inner"
	case JoinLeft:
		return "left"
	case JoinOrInner:
		return "orinner"
	case JoinMerge:
		return "merge"
	default:
		return fmt.Sprintf("join(%d)", int8(jt))
	}
}

type AggType int8

const (
	AggSum AggType = iota
	AggAvg
	AggMin
	AggMax
	AggFacet
	AggDistinct
	AggCount
	AggCountCached
)

func (a AggType) String() string {
	switch a {
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggFacet:
		return "facet"
	case AggDistinct:
		return "distinct"
	case AggCount:
		return "count"
	case AggCountCached:
		return "count_cached"
	default:
		return fmt.Sprintf("agg(%d)", int8(a))
	}
}
