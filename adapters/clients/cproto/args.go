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

package cproto

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/tesseradb/tessera/entities/terrors"
)

// Argument tag bytes.
const (
	tagVarint byte = iota
	tagDouble
	tagString
	tagBool
	tagNull
)

// Args is one argument list of a frame body. Supported element types:
// int64, float64, string, []byte, bool, nil.
type Args []interface{}

// Pack appends the tagged encoding of every argument.
func (a Args) Pack(buf *bytes.Buffer) error {
	var scratch [binary.MaxVarintLen64]byte
	for _, arg := range a {
		switch v := arg.(type) {
		case nil:
			buf.WriteByte(tagNull)
		case bool:
			buf.WriteByte(tagBool)
			if v {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case int:
			buf.WriteByte(tagVarint)
			n := binary.PutVarint(scratch[:], int64(v))
			buf.Write(scratch[:n])
		case int64:
			buf.WriteByte(tagVarint)
			n := binary.PutVarint(scratch[:], v)
			buf.Write(scratch[:n])
		case uint64:
			buf.WriteByte(tagVarint)
			n := binary.PutVarint(scratch[:], int64(v))
			buf.Write(scratch[:n])
		case float64:
			buf.WriteByte(tagDouble)
			var d [8]byte
			binary.LittleEndian.PutUint64(d[:], math.Float64bits(v))
			buf.Write(d[:])
		case string:
			buf.WriteByte(tagString)
			n := binary.PutUvarint(scratch[:], uint64(len(v)))
			buf.Write(scratch[:n])
			buf.WriteString(v)
		case []byte:
			buf.WriteByte(tagString)
			n := binary.PutUvarint(scratch[:], uint64(len(v)))
			buf.Write(scratch[:n])
			buf.Write(v)
		default:
			return terrors.Errorf(terrors.Internal, "unsupported RPC argument type %T", arg)
		}
	}
	return nil
}

// Unpack reads every remaining argument from the reader.
func Unpack(r *bytes.Reader) (Args, error) {
	var out Args
	for r.Len() > 0 {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, terrors.New(terrors.Network, "truncated argument list")
		}
		switch tag {
		case tagNull:
			out = append(out, nil)
		case tagBool:
			b, err := r.ReadByte()
			if err != nil {
				return nil, terrors.New(terrors.Network, "truncated bool argument")
			}
			out = append(out, b != 0)
		case tagVarint:
			v, err := binary.ReadVarint(r)
			if err != nil {
				return nil, terrors.New(terrors.Network, "truncated varint argument")
			}
			out = append(out, v)
		case tagDouble:
			var d [8]byte
			if _, err := r.Read(d[:]); err != nil {
				return nil, terrors.New(terrors.Network, "truncated double argument")
			}
			out = append(out, math.Float64frombits(binary.LittleEndian.Uint64(d[:])))
		case tagString:
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, terrors.New(terrors.Network, "truncated string length")
			}
			s := make([]byte, n)
			if _, err := r.Read(s); err != nil {
				return nil, terrors.New(terrors.Network, "truncated string argument")
			}
			out = append(out, string(s))
		default:
			return nil, terrors.Errorf(terrors.Network, "unknown argument tag %d", tag)
		}
	}
	return out, nil
}

// Int reads an int64 argument at position i.
func (a Args) Int(i int) (int64, error) {
	if i >= len(a) {
		return 0, terrors.Errorf(terrors.Network, "argument %d missing", i)
	}
	v, ok := a[i].(int64)
	if !ok {
		return 0, terrors.Errorf(terrors.Network, "argument %d is not an int", i)
	}
	return v, nil
}

// String reads a string argument at position i.
func (a Args) String(i int) (string, error) {
	if i >= len(a) {
		return "", terrors.Errorf(terrors.Network, "argument %d missing", i)
	}
	v, ok := a[i].(string)
	if !ok {
		return "", terrors.Errorf(terrors.Network, "argument %d is not a string", i)
	}
	return v, nil
}

// Bool reads a bool argument at position i.
func (a Args) Bool(i int) (bool, error) {
	if i >= len(a) {
		return false, terrors.Errorf(terrors.Network, "argument %d missing", i)
	}
	v, ok := a[i].(bool)
	if !ok {
		return false, terrors.Errorf(terrors.Network, "argument %d is not a bool", i)
	}
	return v, nil
}
