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
	"encoding/binary"
	"math"

	"github.com/spaolacci/murmur3"
)

// RelaxHash is consistent with RelaxEqual: an Int, an Int64 and an integral
// Double holding the same number hash identically. Compound values hash over
// their sub-values.
func (v Value) RelaxHash() uint64 {
	var buf [9]byte
	switch {
	case v.typ == TypeNull:
		return 0
	case v.typ == TypeBool:
		buf[0] = byte(TypeBool)
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.num))
		return murmur3.Sum64(buf[:])
	case v.typ.IsNumeric():
		// canonical numeric form: integral values hash as int64
		f := v.AsDouble()
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			buf[0] = byte(TypeInt64)
			binary.LittleEndian.PutUint64(buf[1:], uint64(int64(f)))
		} else {
			buf[0] = byte(TypeDouble)
			binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(f))
		}
		return murmur3.Sum64(buf[:])
	case v.typ == TypeString:
		return murmur3.Sum64([]byte(v.str))
	default:
		h := murmur3.New64()
		for _, s := range v.arr {
			binary.LittleEndian.PutUint64(buf[:8], s.RelaxHash())
			h.Write(buf[:8])
		}
		return h.Sum64()
	}
}
