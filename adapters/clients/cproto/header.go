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

// Package cproto implements the binary RPC protocol: length-prefixed
// frames with snappy-compressed bodies, a tagged argument codec, and the
// cooperative client used by replication (bounded call slots, batched
// writer, deadline and keep-alive routines).
package cproto

import (
	"encoding/binary"

	"github.com/tesseradb/tessera/entities/terrors"
)

const (
	Magic            uint32 = 0xEEDD1132
	Version          uint16 = 0x103
	MinCompatVersion uint16 = 0x101

	HeaderSize = 16
)

// CmdCode identifies the RPC command.
type CmdCode uint8

const (
	CmdPing CmdCode = iota
	CmdLogin
	CmdSelect
	CmdFetchResults
	CmdGetReplState
	CmdGetSnapshot
	CmdApplySnapshotChunk
)

func (c CmdCode) String() string {
	switch c {
	case CmdPing:
		return "Ping"
	case CmdLogin:
		return "Login"
	case CmdSelect:
		return "Select"
	case CmdFetchResults:
		return "FetchResults"
	case CmdGetReplState:
		return "GetReplState"
	case CmdGetSnapshot:
		return "GetSnapshot"
	case CmdApplySnapshotChunk:
		return "ApplySnapshotChunk"
	default:
		return "Unknown"
	}
}

// Header is the fixed frame prefix. Len counts the payload bytes that
// follow the header; when Compressed is set the payload is
// snappy-compressed.
type Header struct {
	Magic      uint32
	Version    uint16
	Compressed bool
	Cmd        CmdCode
	Seq        uint32
	Len        uint32
}

func (h Header) Marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:], h.Version)
	if h.Compressed {
		buf[6] = 1
	} else {
		buf[6] = 0
	}
	buf[7] = byte(h.Cmd)
	binary.LittleEndian.PutUint32(buf[8:], h.Seq)
	binary.LittleEndian.PutUint32(buf[12:], h.Len)
}

func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, terrors.New(terrors.Network, "short cproto header")
	}
	h := Header{
		Magic:      binary.LittleEndian.Uint32(buf[0:]),
		Version:    binary.LittleEndian.Uint16(buf[4:]),
		Compressed: buf[6] != 0,
		Cmd:        CmdCode(buf[7]),
		Seq:        binary.LittleEndian.Uint32(buf[8:]),
		Len:        binary.LittleEndian.Uint32(buf[12:]),
	}
	if h.Magic != Magic {
		return h, terrors.Errorf(terrors.Network, "invalid cproto magic %08x", h.Magic)
	}
	if h.Version < MinCompatVersion {
		return h, terrors.Errorf(terrors.ProtocolMismatch,
			"unsupported cproto version %04x, expected at least %04x", h.Version, MinCompatVersion)
	}
	return h, nil
}
