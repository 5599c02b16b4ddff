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

// Package planner rewrites the parsed filter tree into the reduced, typed
// form the selector executes: field resolution, strict-mode checks, literal
// coercion, entry merging, composite index substitution, bracket removal
// and full-text extraction. Every step is idempotent.
package planner

import (
	"github.com/tesseradb/tessera/adapters/repos/db/index"
	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

// CompositeInfo describes one composite index available for substitution.
type CompositeInfo struct {
	Name   string
	Fields payload.FieldsSet
}

// Namespace is the schema view the preprocessor needs.
type Namespace interface {
	PayloadType() *payload.Type
	// IndexForField returns the index serving a fixed field, nil when the
	// field is unindexed.
	IndexForField(fieldID int) index.Index
	Composites() []CompositeInfo
}

// Prepared is the preprocessed query ready for the selector.
type Prepared struct {
	Entries []*queries.Entry
	// FtEntry is the extracted full-text predicate; when set, the
	// full-text selector drives and Entries become post-filters.
	FtEntry *queries.Entry

	SortFieldID  int
	SortDesc     bool
	SortCollate  value.CollateMode
	Forced       []value.Value
	OrderedIndex index.OrderedWalker

	Limit  int
	Offset int
}

// Preprocess runs all rewrite steps in order.
func Preprocess(q *queries.Query, ns Namespace) (*Prepared, error) {
	entries := make([]*queries.Entry, len(q.Entries))
	for i, e := range q.Entries {
		entries[i] = e.Clone()
	}

	if err := resolveFields(entries, ns, q.StrictMode); err != nil {
		return nil, err
	}
	if err := convertValues(entries, ns); err != nil {
		return nil, err
	}
	entries = mergeLevel(entries, ns)
	entries = substituteComposites(entries, ns)
	entries = removeBrackets(entries)
	entries = reduceAlways(entries)

	p := &Prepared{Entries: entries, SortFieldID: -1, Limit: q.Limit, Offset: q.Offset}
	if err := p.extractFulltext(ns); err != nil {
		return nil, err
	}
	if err := p.resolveSort(q, ns); err != nil {
		return nil, err
	}
	return p, nil
}

func resolveFields(entries []*queries.Entry, ns Namespace, strict queries.StrictMode) error {
	pt := ns.PayloadType()
	for _, e := range entries {
		switch e.Kind {
		case queries.KindBracket:
			if err := resolveFields(e.Children, ns, strict); err != nil {
				return err
			}
		case queries.KindCondition, queries.KindTwoFields:
			e.FieldID = pt.FieldByName(e.Field)
			if e.FieldID >= 0 {
				e.Collate = pt.Field(e.FieldID).Collate
			}
			if e.FieldID < 0 && !isCompositeName(e.Field, ns) {
				if strict == queries.StrictModeNames {
					return terrors.Errorf(terrors.StrictMode,
						"unknown field '%s' in namespace '%s' under strict mode", e.Field, pt.Name())
				}
			}
			if strict == queries.StrictModeIndexes && e.FieldID >= 0 &&
				ns.IndexForField(e.FieldID) == nil && !pt.Field(e.FieldID).IsSparse {
				return terrors.Errorf(terrors.StrictMode,
					"field '%s' of namespace '%s' is not indexed under strict mode", e.Field, pt.Name())
			}
			if e.Kind == queries.KindTwoFields {
				e.RightFieldID = pt.FieldByName(e.RightFieldName)
				if e.RightFieldID < 0 && strict == queries.StrictModeNames {
					return terrors.Errorf(terrors.StrictMode,
						"unknown field '%s' in namespace '%s' under strict mode", e.RightFieldName, pt.Name())
				}
			}
		}
	}
	return nil
}

func isCompositeName(name string, ns Namespace) bool {
	for _, c := range ns.Composites() {
		if c.Name == name {
			return true
		}
	}
	return false
}

func convertValues(entries []*queries.Entry, ns Namespace) error {
	pt := ns.PayloadType()
	for _, e := range entries {
		if e.Kind == queries.KindBracket {
			if err := convertValues(e.Children, ns); err != nil {
				return err
			}
			continue
		}
		if e.Kind != queries.KindCondition || e.FieldID < 0 {
			continue
		}
		want := pt.Field(e.FieldID).Type
		for i, v := range e.Values {
			conv, err := v.ConvertTo(want)
			if err != nil {
				return err
			}
			e.Values[i] = conv
		}
	}
	return nil
}

// substituteComposites replaces a conjunction of equality predicates
// covering every field of a composite index with a single predicate on the
// composite key.
func substituteComposites(entries []*queries.Entry, ns Namespace) []*queries.Entry {
	for _, e := range entries {
		if e.Kind == queries.KindBracket {
			e.Children = substituteComposites(e.Children, ns)
		}
	}
	for _, comp := range ns.Composites() {
		byField := map[int]int{} // fieldID -> entry position
		covered := payload.FieldsSet{}
		for i, e := range entries {
			if e.Kind != queries.KindCondition || e.Op != queries.OpAnd || e.Distinct {
				continue
			}
			if e.Cond != queries.CondEq || len(e.Values) != 1 || e.FieldID < 0 {
				continue
			}
			if comp.Fields.Contains(e.FieldID) {
				if _, dup := byField[e.FieldID]; !dup {
					byField[e.FieldID] = i
					covered.Push(e.FieldID)
				}
			}
		}
		if covered.Len() != comp.Fields.Len() {
			continue
		}
		subs := make([]value.Value, 0, comp.Fields.Len())
		for _, f := range comp.Fields.Fields() {
			subs = append(subs, entries[byField[f]].Values[0])
		}
		repl := queries.NewCondEntry(queries.OpAnd, comp.Name, queries.CondEq, value.Composite(subs...))
		out := make([]*queries.Entry, 0, len(entries))
		replaced := false
		for i, e := range entries {
			drop := false
			for _, pos := range byField {
				if pos == i {
					drop = true
					break
				}
			}
			if drop {
				if !replaced {
					out = append(out, repl)
					replaced = true
				}
				continue
			}
			out = append(out, e)
		}
		entries = out
	}
	return entries
}

// removeBrackets flattens structurally redundant brackets: a bracket with a
// single child, or an And-bracket standing in an And position. Brackets
// enclosing a join reference are preserved.
func removeBrackets(entries []*queries.Entry) []*queries.Entry {
	out := make([]*queries.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Kind != queries.KindBracket {
			out = append(out, e)
			continue
		}
		e.Children = removeBrackets(e.Children)
		if e.ContainsJoin() {
			out = append(out, e)
			continue
		}
		if len(e.Children) == 1 {
			child := e.Children[0]
			if child.Op == queries.OpAnd {
				child.Op = e.Op
				out = append(out, child)
				continue
			}
		}
		if e.Op == queries.OpAnd && allOpsAnd(e.Children) {
			out = append(out, e.Children...)
			continue
		}
		out = append(out, e)
	}
	return out
}

func allOpsAnd(entries []*queries.Entry) bool {
	for _, e := range entries {
		if e.Op != queries.OpAnd {
			return false
		}
	}
	return true
}

// reduceAlways applies the algebraic identities for always-true and
// always-false nodes.
func reduceAlways(entries []*queries.Entry) []*queries.Entry {
	out := make([]*queries.Entry, 0, len(entries))
	orAfter := func(i int) bool {
		for _, n := range entries[i+1:] {
			if n.Op == queries.OpOr {
				return true
			}
		}
		return false
	}
	for i, e := range entries {
		if e.Kind == queries.KindBracket {
			e.Children = reduceAlways(e.Children)
			if len(e.Children) == 1 && e.Children[0].IsLeaf() &&
				(e.Children[0].Kind == queries.KindAlwaysTrue || e.Children[0].Kind == queries.KindAlwaysFalse) {
				kind := e.Children[0].Kind
				e = &queries.Entry{Op: e.Op, Kind: kind}
			}
		}
		switch {
		case e.Kind == queries.KindAlwaysTrue && e.Op == queries.OpAnd:
			// x AND true = x
			continue
		case e.Kind == queries.KindAlwaysFalse && e.Op == queries.OpOr:
			// x OR false = x
			continue
		case e.Kind == queries.KindAlwaysFalse && e.Op == queries.OpNot:
			// x AND NOT false = x
			continue
		case e.Kind == queries.KindAlwaysFalse && e.Op == queries.OpAnd && !orAfter(i):
			// annihilates the whole level; with a later Or the entry stays
			// and the fold empties only the conjunction before that Or
			return []*queries.Entry{queries.AlwaysFalse(queries.OpAnd)}
		default:
			out = append(out, e)
		}
	}
	return out
}

// extractFulltext finds the full-text predicate, validates its position and
// pulls it out of the tree; the remaining entries become post-filters.
func (p *Prepared) extractFulltext(ns Namespace) error {
	var ft *queries.Entry
	rest := make([]*queries.Entry, 0, len(p.Entries))
	for _, e := range p.Entries {
		if e.Kind == queries.KindCondition && e.FieldID >= 0 {
			if idx := ns.IndexForField(e.FieldID); idx != nil && idx.IsFulltext() {
				if ft != nil {
					return terrors.New(terrors.InvalidQuery, "query can have at most one fulltext condition")
				}
				if e.Op == queries.OpNot {
					return terrors.New(terrors.InvalidQuery, "NOT is not allowed directly on a fulltext condition")
				}
				ft = e
				continue
			}
		}
		if e.Kind == queries.KindBracket && containsFulltext(e, ns) {
			return terrors.New(terrors.InvalidQuery, "fulltext condition cannot be nested in brackets")
		}
		rest = append(rest, e)
	}
	p.FtEntry = ft
	if ft != nil {
		p.Entries = rest
	}
	return nil
}

func containsFulltext(e *queries.Entry, ns Namespace) bool {
	if e.Kind == queries.KindCondition && e.FieldID >= 0 {
		if idx := ns.IndexForField(e.FieldID); idx != nil && idx.IsFulltext() {
			return true
		}
	}
	for _, c := range e.Children {
		if containsFulltext(c, ns) {
			return true
		}
	}
	return false
}

// resolveSort types the first sort entry and picks the ordered index that
// can drive the walk, when one exists.
func (p *Prepared) resolveSort(q *queries.Query, ns Namespace) error {
	if len(q.Sort) == 0 {
		return nil
	}
	s := q.Sort[0]
	pt := ns.PayloadType()
	fid := pt.FieldByName(s.Expr)
	if fid < 0 {
		if q.StrictMode != queries.StrictModeNone {
			return terrors.Errorf(terrors.StrictMode, "unknown sort field '%s'", s.Expr)
		}
		return nil
	}
	p.SortFieldID = fid
	p.SortDesc = s.Desc
	p.SortCollate = pt.Field(fid).Collate
	p.Forced = make([]value.Value, 0, len(s.ForcedValues))
	want := pt.Field(fid).Type
	for _, v := range s.ForcedValues {
		conv, err := v.ConvertTo(want)
		if err != nil {
			return err
		}
		p.Forced = append(p.Forced, conv)
	}
	if idx := ns.IndexForField(fid); idx != nil && idx.IsOrdered() && len(p.Forced) == 0 {
		if w, ok := idx.(index.OrderedWalker); ok {
			p.OrderedIndex = w
		}
	}
	return nil
}

// InjectCondition appends a derived conjunct (used by the join engine to
// push right-side key sets into the outer filter).
func (p *Prepared) InjectCondition(field string, fieldID int, cond queries.Condition, vals []value.Value, collate value.CollateMode) {
	e := queries.NewCondEntry(queries.OpAnd, field, cond, vals...)
	e.FieldID = fieldID
	e.Collate = collate
	p.Entries = append(p.Entries, e)
}
