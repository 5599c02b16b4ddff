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

package payload

// FieldsSet is an ordered list of field ids, used for composite keys,
// projections and distinct/facet groupings. Order matters for compound key
// assembly; Contains is a membership test.
type FieldsSet struct {
	fields []int
}

func NewFieldsSet(fields ...int) FieldsSet {
	return FieldsSet{fields: fields}
}

func (fs FieldsSet) Len() int { return len(fs.fields) }

func (fs FieldsSet) Fields() []int { return fs.fields }

func (fs FieldsSet) Contains(field int) bool {
	for _, f := range fs.fields {
		if f == field {
			return true
		}
	}
	return false
}

func (fs *FieldsSet) Push(field int) {
	if !fs.Contains(field) {
		fs.fields = append(fs.fields, field)
	}
}

// ContainsAll reports whether every field of other is in fs.
func (fs FieldsSet) ContainsAll(other FieldsSet) bool {
	for _, f := range other.fields {
		if !fs.Contains(f) {
			return false
		}
	}
	return true
}
