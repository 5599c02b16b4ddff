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

import (
	"strings"

	"github.com/buger/jsonparser"

	"github.com/tesseradb/tessera/entities/value"
)

// JSONScalar converts one parsed JSON scalar into the wanted value type.
func JSONScalar(raw []byte, dt jsonparser.ValueType, want value.Type) (value.Value, bool) {
	switch dt {
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return value.Value{}, false
		}
		v, err := value.String(s).ConvertTo(want)
		return v, err == nil
	case jsonparser.Number:
		f, err := jsonparser.ParseFloat(raw)
		if err != nil {
			return value.Value{}, false
		}
		var v value.Value
		if want.IsNumeric() || want == value.TypeBool || want == value.TypeString {
			var cerr error
			v, cerr = value.Double(f).ConvertTo(want)
			if cerr != nil {
				return value.Value{}, false
			}
			return v, true
		}
		return value.Double(f), true
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return value.Value{}, false
		}
		v, err := value.Bool(b).ConvertTo(want)
		return v, err == nil
	default:
		return value.Value{}, false
	}
}

// JSONPathValues extracts the values at a dotted path inside a serialized
// document, flattening one array level.
func JSONPathValues(doc []byte, path string, want value.Type) []value.Value {
	if len(doc) == 0 || path == "" {
		return nil
	}
	keys := strings.Split(path, ".")
	raw, dt, _, err := jsonparser.Get(doc, keys...)
	if err != nil {
		return nil
	}
	if dt == jsonparser.Array {
		var out []value.Value
		jsonparser.ArrayEach(raw, func(item []byte, idt jsonparser.ValueType, _ int, _ error) {
			if v, ok := JSONScalar(item, idt, want); ok {
				out = append(out, v)
			}
		})
		return out
	}
	if v, ok := JSONScalar(raw, dt, want); ok {
		return []value.Value{v}
	}
	return nil
}

// JSONFieldValues reads a schema field's values from a document.
func JSONFieldValues(doc []byte, f Field) []value.Value {
	path := f.JSONPath
	if path == "" {
		path = f.Name
	}
	return JSONPathValues(doc, path, f.Type)
}
