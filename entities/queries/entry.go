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

package queries

import (
	"strconv"
	"strings"

	"github.com/tesseradb/tessera/entities/value"
)

// EntryKind discriminates the filter tree node variants.
type EntryKind int8

const (
	KindCondition EntryKind = iota
	KindTwoFields
	KindBracket
	KindJoinRef
	KindAlwaysTrue
	KindAlwaysFalse
)

// Entry is one node of the filter tree. Op relates the node to its left
// sibling at the same bracket level (the first child's Op is And by
// convention).
type Entry struct {
	Op   Op
	Kind EntryKind

	// KindCondition
	Field   string
	FieldID int // resolved by the preprocessor; -1 = non-indexed path
	Cond    Condition
	Values  []value.Value
	Collate value.CollateMode
	// Distinct marks entries injected for distinct aggregation.
	Distinct bool

	// KindTwoFields
	RightFieldName string
	RightFieldID   int

	// KindBracket
	Children []*Entry

	// KindJoinRef
	JoinIndex int
}

func NewCondEntry(op Op, field string, cond Condition, vals ...value.Value) *Entry {
	return &Entry{Op: op, Kind: KindCondition, Field: field, FieldID: -1, Cond: cond, Values: vals}
}

func NewBracket(op Op, children ...*Entry) *Entry {
	return &Entry{Op: op, Kind: KindBracket, Children: children}
}

func NewJoinRef(op Op, joinIndex int) *Entry {
	return &Entry{Op: op, Kind: KindJoinRef, JoinIndex: joinIndex}
}

func NewTwoFields(op Op, left string, cond Condition, right string) *Entry {
	return &Entry{
		Op: op, Kind: KindTwoFields, Field: left, FieldID: -1,
		Cond: cond, RightFieldName: right, RightFieldID: -1,
	}
}

func AlwaysTrue(op Op) *Entry { return &Entry{Op: op, Kind: KindAlwaysTrue} }
func AlwaysFalse(op Op) *Entry { return &Entry{Op: op, Kind: KindAlwaysFalse} }

func (e *Entry) IsLeaf() bool {
	return e.Kind != KindBracket
}

// ContainsJoin reports whether the subtree references any join.
func (e *Entry) ContainsJoin() bool {
	if e.Kind == KindJoinRef {
		return true
	}
	for _, c := range e.Children {
		if c.ContainsJoin() {
			return true
		}
	}
	return false
}

// Clone deep-copies the subtree. Values slices are shared (they are
// immutable after parsing).
func (e *Entry) Clone() *Entry {
	cp := *e
	if len(e.Children) > 0 {
		cp.Children = make([]*Entry, len(e.Children))
		for i, c := range e.Children {
			cp.Children[i] = c.Clone()
		}
	}
	return &cp
}

func (e *Entry) dump(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(e.Op.String())
	sb.WriteByte(' ')
	switch e.Kind {
	case KindCondition:
		sb.WriteString(e.Field)
		sb.WriteByte(' ')
		sb.WriteString(e.Cond.String())
		sb.WriteString(" [")
		for i, v := range e.Values {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(v.String())
		}
		sb.WriteString("]\n")
	case KindTwoFields:
		sb.WriteString(e.Field + " " + e.Cond.String() + " " + e.RightFieldName + "\n")
	case KindBracket:
		sb.WriteString("(\n")
		for _, c := range e.Children {
			c.dump(sb, depth+1)
		}
		sb.WriteString(strings.Repeat("  ", depth) + ")\n")
	case KindJoinRef:
		sb.WriteString("join#" + strconv.Itoa(e.JoinIndex) + "\n")
	case KindAlwaysTrue:
		sb.WriteString("true\n")
	case KindAlwaysFalse:
		sb.WriteString("false\n")
	}
}

// Dump renders the subtree for explain output and tests.
func (e *Entry) Dump() string {
	var sb strings.Builder
	e.dump(&sb, 0)
	return sb.String()
}
