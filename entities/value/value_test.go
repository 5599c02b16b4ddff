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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareTotalOrder(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"null below bool", Null(), Bool(false), -1},
		{"bool below numeric", Bool(true), Int(0), -1},
		{"numeric below string", Int(5), String("a"), -1},
		{"int vs int64 by value", Int(5), Int64(5), 0},
		{"int vs double by value", Int(5), Double(5.5), -1},
		{"double vs int by value", Double(7.0), Int(6), 1},
		{"strings", String("abc"), String("abd"), -1},
		{"tuples lexicographic", Tuple(Int(1), Int(2)), Tuple(Int(1), Int(3)), -1},
		{"tuple length break", Tuple(Int(1)), Tuple(Int(1), Int(0)), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b, CollateNone))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a, CollateNone))
		})
	}
}

func TestCollateModes(t *testing.T) {
	assert.Equal(t, 0, String("ABC").Compare(String("abc"), CollateASCII))
	assert.Equal(t, -1, String("9").Compare(String("10"), CollateNumeric))
	assert.Equal(t, 1, String("9").Compare(String("10"), CollateNone))
}

func TestConvertTo(t *testing.T) {
	v, err := String("42").ConvertTo(TypeInt)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.AsInt64())

	v, err = Double(3.9).ConvertTo(TypeInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.AsInt64())

	v, err = Int(1).ConvertTo(TypeBool)
	require.NoError(t, err)
	assert.True(t, v.AsBool())

	_, err = String("not-a-number").ConvertTo(TypeInt)
	require.Error(t, err)
}

func TestRelaxEqualAndHash(t *testing.T) {
	assert.True(t, RelaxEqual(Int(7), Int64(7)))
	assert.True(t, RelaxEqual(Int(7), Double(7.0)))
	assert.False(t, RelaxEqual(Int(7), String("7")))
	assert.False(t, RelaxEqual(Double(7.5), Int(7)))

	assert.Equal(t, Int(7).RelaxHash(), Int64(7).RelaxHash())
	assert.Equal(t, Int(7).RelaxHash(), Double(7.0).RelaxHash())
	assert.NotEqual(t, Double(7.5).RelaxHash(), Int(7).RelaxHash())
}

func TestKeyComparable(t *testing.T) {
	m := map[Key]int{}
	m[Int(1).Key()] = 1
	m[Int64(1).Key()] = 2
	m[String("1").Key()] = 3
	// Int and Int64 are distinct key kinds, strings distinct from both
	assert.Len(t, m, 3)

	assert.Equal(t, Composite(Int(1), String("x")).Key(), Composite(Int(1), String("x")).Key())
	assert.NotEqual(t, Composite(Int(1), String("x")).Key(), Composite(Int(2), String("x")).Key())
}
