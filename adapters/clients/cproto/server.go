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
	"encoding/json"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/tesseradb/tessera/adapters/repos/db"
	"github.com/tesseradb/tessera/adapters/repos/db/wal"
	"github.com/tesseradb/tessera/entities/terrors"
)

// Server answers the subset of the protocol replication needs: login,
// ping, replication state and snapshot streaming. The full query surface
// lives in the outer RPC server.
type Server struct {
	db        *db.DB
	clusterID int
	log       logrus.FieldLogger

	ln     net.Listener
	closed atomic.Bool
}

func NewServer(database *db.DB, clusterID int, log logrus.FieldLogger) *Server {
	return &Server{db: database, clusterID: clusterID, log: log}
}

// Serve accepts connections until the listener closes.
func (s *Server) Serve(ln net.Listener) {
	s.ln = ln
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.closed.Load() {
				s.log.WithError(err).Warn("cproto accept failed")
			}
			return
		}
		c := conn
		terrors.GoWrapper(func() { s.handleConn(c) }, s.log)
	}
}

func (s *Server) Close() {
	s.closed.Store(true)
	if s.ln != nil {
		s.ln.Close()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	loggedIn := false
	for {
		hdr, body, err := readFrame(conn)
		if err != nil {
			return
		}
		r := bytes.NewReader(body)
		args, err := Unpack(r)
		if err != nil {
			s.writeAnswer(conn, hdr, err, nil)
			continue
		}

		if !loggedIn && hdr.Cmd != CmdLogin {
			s.writeAnswer(conn, hdr, terrors.New(terrors.Network, "not logged in"), nil)
			continue
		}

		switch hdr.Cmd {
		case CmdLogin:
			if err := s.handleLogin(args); err != nil {
				s.writeAnswer(conn, hdr, err, nil)
				return
			}
			loggedIn = true
			s.writeAnswer(conn, hdr, nil, nil)
		case CmdPing:
			s.writeAnswer(conn, hdr, nil, nil)
		case CmdGetReplState:
			s.handleGetReplState(conn, hdr, args)
		case CmdGetSnapshot:
			s.handleGetSnapshot(conn, hdr, args)
		default:
			s.writeAnswer(conn, hdr, terrors.Errorf(terrors.Network, "unsupported command %s", hdr.Cmd), nil)
		}
	}
}

func (s *Server) handleLogin(args Args) error {
	// {user, password, db, createDB, hasExpectedClusterID, expectedClusterID, version, appName}
	hasExpected, err := args.Bool(4)
	if err != nil {
		return err
	}
	if hasExpected {
		expected, err := args.Int(5)
		if err != nil {
			return err
		}
		if int(expected) != s.clusterID {
			return terrors.Errorf(terrors.ProtocolMismatch,
				"expected cluster id %d, but this node is in cluster %d", expected, s.clusterID)
		}
	}
	return nil
}

func (s *Server) handleGetReplState(conn net.Conn, hdr Header, args Args) {
	nsName, err := args.String(0)
	if err != nil {
		s.writeAnswer(conn, hdr, err, nil)
		return
	}
	state, err := s.db.GetReplState(nsName)
	if err != nil {
		s.writeAnswer(conn, hdr, err, nil)
		return
	}
	s.writeAnswer(conn, hdr, nil, Args{state.NsVersion, state.LastLSN, int64(state.DataHash)})
}

func (s *Server) handleGetSnapshot(conn net.Conn, hdr Header, args Args) {
	nsName, err := args.String(0)
	if err != nil {
		s.writeAnswer(conn, hdr, err, nil)
		return
	}
	nsVersion, err := args.Int(1)
	if err != nil {
		s.writeAnswer(conn, hdr, err, nil)
		return
	}
	lsn, err := args.Int(2)
	if err != nil {
		s.writeAnswer(conn, hdr, err, nil)
		return
	}
	maxDepth, err := args.Int(3)
	if err != nil {
		s.writeAnswer(conn, hdr, err, nil)
		return
	}
	snap, err := s.db.GetSnapshot(nsName, wal.SnapshotOpts{
		From:                   wal.ExtendedLSN{NsVersion: nsVersion, LSN: lsn},
		MaxWALDepthOnForceSync: int(maxDepth),
	})
	if err != nil {
		s.writeAnswer(conn, hdr, err, nil)
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		s.writeAnswer(conn, hdr, terrors.Errorf(terrors.Internal, "marshal snapshot: %v", err), nil)
		return
	}
	s.writeAnswer(conn, hdr, nil, Args{string(raw)})
}

func (s *Server) writeAnswer(conn net.Conn, req Header, status error, args Args) {
	var body bytes.Buffer
	var scratch [binary.MaxVarintLen64]byte

	code := terrors.CodeOf(status)
	msg := ""
	if status != nil {
		msg = status.Error()
	}
	n := binary.PutVarint(scratch[:], int64(code))
	body.Write(scratch[:n])
	n = binary.PutUvarint(scratch[:], uint64(len(msg)))
	body.Write(scratch[:n])
	body.WriteString(msg)
	if args != nil {
		if err := args.Pack(&body); err != nil {
			s.log.WithError(err).Error("pack answer args")
			return
		}
	}

	frame := make([]byte, HeaderSize+body.Len())
	Header{
		Magic: Magic, Version: Version, Cmd: req.Cmd,
		Seq: req.Seq, Len: uint32(body.Len()),
	}.Marshal(frame)
	copy(frame[HeaderSize:], body.Bytes())
	if _, err := conn.Write(frame); err != nil {
		s.log.WithError(err).Debug("write answer failed")
	}
}
