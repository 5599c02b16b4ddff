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

// Package payload holds the namespace schema (payload type), the binary row
// representation and the tags matcher. Access to row data always goes
// through the payload type.
package payload

import (
	"strings"

	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

// Field describes one fixed field of a namespace schema.
type Field struct {
	Name     string
	Type     value.Type
	IsArray  bool
	IsSparse bool
	IsPK     bool
	// JSONPath locates sparse fields inside the serialized tuple.
	JSONPath string
	Collate  value.CollateMode
}

// TupleFieldName is the implicit field holding the serialized document for
// all non-indexed paths.
const TupleFieldName = "-tuple"

// Type is the schema of a namespace. Field ids are the positional indexes
// into fields and stay stable for the namespace's lifetime: the schema may
// be extended append-only but never reordered.
type Type struct {
	name    string
	fields  []Field
	byName  map[string]int
	pkField int
}

func NewType(name string, fields ...Field) (*Type, error) {
	t := &Type{name: name, byName: make(map[string]int, len(fields)), pkField: -1}
	for _, f := range fields {
		if err := t.AddField(f); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Type) Name() string { return t.name }

// AddField appends a field. Appending is the only legal schema mutation.
func (t *Type) AddField(f Field) error {
	lname := strings.ToLower(f.Name)
	if _, ok := t.byName[lname]; ok {
		return terrors.Errorf(terrors.Conflict, "field '%s' already exists in namespace '%s'", f.Name, t.name)
	}
	if f.IsPK {
		if t.pkField >= 0 {
			return terrors.Errorf(terrors.Conflict, "namespace '%s' already has PK field '%s'", t.name, t.fields[t.pkField].Name)
		}
		t.pkField = len(t.fields)
	}
	t.byName[lname] = len(t.fields)
	t.fields = append(t.fields, f)
	return nil
}

func (t *Type) NumFields() int { return len(t.fields) }

func (t *Type) Field(id int) Field { return t.fields[id] }

func (t *Type) PKField() int { return t.pkField }

// FieldByName resolves a field name to its id, case-insensitively. Returns
// -1 when the name is unknown (the caller decides whether that is a strict
// mode violation or a tuple path).
func (t *Type) FieldByName(name string) int {
	if id, ok := t.byName[strings.ToLower(name)]; ok {
		return id
	}
	return -1
}

// Clone returns a copy safe for append-only extension while readers keep
// the original.
func (t *Type) Clone() *Type {
	cp := &Type{
		name:    t.name,
		fields:  append([]Field(nil), t.fields...),
		byName:  make(map[string]int, len(t.byName)),
		pkField: t.pkField,
	}
	for k, v := range t.byName {
		cp.byName[k] = v
	}
	return cp
}

// WithName returns a shallow renamed view of the type. Used when a
// temporary namespace is renamed over a live one.
func (t *Type) WithName(name string) *Type {
	cp := t.Clone()
	cp.name = name
	return cp
}
