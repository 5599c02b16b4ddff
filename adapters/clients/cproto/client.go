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
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/snappy"
	"github.com/sirupsen/logrus"

	"github.com/tesseradb/tessera/adapters/repos/db/wal"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/usecases/monitoring"
)

const (
	maxParallelRPCCalls   = 512
	wrChannelSize         = 20
	cntToSendNow          = 30
	dataToSendNow         = 2048
	deadlineCheckInterval = 100 * time.Millisecond
	keepAliveInterval     = 30 * time.Second
)

// ClientVersion travels in the login arguments.
const ClientVersion = "tessera/1.9"

// ConnectOpts parameterizes a client connection.
type ConnectOpts struct {
	User     string
	Password string
	DB       string
	AppName  string
	CreateDB bool

	HasExpectedClusterID bool
	ExpectedClusterID    int

	EnableCompression bool
	NetTimeout        time.Duration
	KeepAliveTimeout  time.Duration
	LoginTimeout      time.Duration
}

// WithExpectedClusterID pins the peer's cluster id so cross-cluster
// accidents fail at login.
func (o ConnectOpts) WithExpectedClusterID(id int) ConnectOpts {
	o.HasExpectedClusterID = true
	o.ExpectedClusterID = id
	return o
}

// Answer is one RPC response.
type Answer struct {
	Args Args
	Err  error
}

type callSlot struct {
	mu       sync.Mutex
	used     bool
	seq      uint32
	system   bool
	deadline time.Time
	cancel   <-chan struct{}
	rspCh    chan Answer
}

// push delivers an answer without blocking; a slot holds at most one
// pending answer and late duplicates are dropped.
func (c *callSlot) push(seq uint32, a Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.used || c.seq != seq || c.rspCh == nil {
		return
	}
	select {
	case c.rspCh <- a:
	default:
	}
}

type wrChunk struct {
	seq  uint32
	data []byte
}

// Client is the binary RPC client: one connection, a bounded ring of call
// slots, a batched writer and deadline/keep-alive routines.
type Client struct {
	log     logrus.FieldLogger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	conn    net.Conn
	running bool
	opts    ConnectOpts

	terminate chan struct{}
	wg        sync.WaitGroup

	calls []callSlot
	seqCh chan uint32
	wrCh  chan wrChunk
	pool  *chunkPool

	loggedIn atomic.Bool
	onState  func(error)
}

func NewClient(log logrus.FieldLogger, metrics *monitoring.Metrics) *Client {
	if metrics == nil {
		metrics = monitoring.Noop()
	}
	return &Client{
		log:     log,
		metrics: metrics,
		calls:   make([]callSlot, maxParallelRPCCalls),
		pool:    newChunkPool(),
	}
}

// OnConnectionState registers a handler invoked on login success (nil
// error) and on fatal connection errors.
func (c *Client) OnConnectionState(fn func(error)) { c.onState = fn }

// Start dials the peer, logs in with seq 0 and spawns the connection
// routines.
func (c *Client) Start(ctx context.Context, addr string, opts ConnectOpts) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	loginTimeout := opts.LoginTimeout
	if loginTimeout == 0 {
		loginTimeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: loginTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return terrors.Errorf(terrors.Network, "connect to %s: %v", addr, err)
	}

	c.conn = conn
	c.opts = opts
	c.terminate = make(chan struct{})
	c.wrCh = make(chan wrChunk, wrChannelSize)
	c.seqCh = make(chan uint32, maxParallelRPCCalls)
	// seq 0 is reserved for login
	for i := uint32(1); i < maxParallelRPCCalls; i++ {
		c.seqCh <- i
	}

	if err := c.login(conn, loginTimeout); err != nil {
		conn.Close()
		return err
	}
	c.loggedIn.Store(true)
	c.running = true

	terrors.GoWrapper(c.writerRoutine, c.log)
	terrors.GoWrapper(c.readerRoutine, c.log)
	terrors.GoWrapper(c.deadlineRoutine, c.log)
	terrors.GoWrapper(c.pingerRoutine, c.log)

	if c.onState != nil {
		c.onState(nil)
	}
	return nil
}

func (c *Client) login(conn net.Conn, timeout time.Duration) error {
	args := Args{
		c.opts.User, c.opts.Password, c.opts.DB, c.opts.CreateDB,
		c.opts.HasExpectedClusterID, int64(c.opts.ExpectedClusterID),
		ClientVersion, c.opts.AppName,
	}
	frame, err := c.packRPC(CmdLogin, 0, args)
	if err != nil {
		return err
	}
	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})
	if _, err := conn.Write(frame); err != nil {
		return terrors.Errorf(terrors.Network, "write login: %v", err)
	}
	hdr, body, err := readFrame(conn)
	if err != nil {
		return err
	}
	if hdr.Cmd != CmdLogin {
		return terrors.Errorf(terrors.Network, "unexpected %s answer to login", hdr.Cmd)
	}
	ans := parseAnswer(hdr, body)
	return ans.Err
}

// Stop closes the connection and resolves every pending call: a waiting
// caller gets either a Terminated error or the network error fanned out
// to its slot, whichever it observes first.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.terminate)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.fanOut(terrors.New(terrors.Network, "connection closed"))
	c.loggedIn.Store(false)
}

// Call issues one RPC and waits for its answer, the deadline, or
// cancellation.
func (c *Client) Call(ctx context.Context, cmd CmdCode, args ...interface{}) Answer {
	if err := ctx.Err(); err != nil {
		return Answer{Err: ctxError(err)}
	}
	c.mu.Lock()
	running := c.running
	term := c.terminate
	c.mu.Unlock()
	if !running {
		return Answer{Err: terrors.New(terrors.Network, "client is not running")}
	}

	var seq uint32
	select {
	case seq = <-c.seqCh:
	case <-ctx.Done():
		return Answer{Err: ctxError(ctx.Err())}
	case <-term:
		return Answer{Err: terrors.New(terrors.Terminated, "client stopped")}
	}

	slot := &c.calls[seq%maxParallelRPCCalls]
	slot.mu.Lock()
	slot.used = true
	slot.seq = seq
	slot.system = cmd == CmdPing || cmd == CmdLogin
	slot.cancel = ctx.Done()
	slot.rspCh = make(chan Answer, 1)
	if c.opts.NetTimeout > 0 {
		slot.deadline = time.Now().Add(c.opts.NetTimeout)
	} else {
		slot.deadline = time.Time{}
	}
	rspCh := slot.rspCh
	slot.mu.Unlock()

	c.metrics.RPCInflight.Inc()
	defer c.metrics.RPCInflight.Dec()

	ans := c.send(ctx, term, cmd, seq, Args(args), rspCh)

	slot.mu.Lock()
	slot.used = false
	slot.rspCh = nil
	slot.mu.Unlock()
	// recycle the sequence number shifted by one ring turn
	select {
	case c.seqCh <- seq + maxParallelRPCCalls:
	default:
	}
	return ans
}

func (c *Client) send(ctx context.Context, term chan struct{}, cmd CmdCode, seq uint32, args Args, rspCh chan Answer) Answer {
	frame, err := c.packRPC(cmd, seq, args)
	if err != nil {
		return Answer{Err: err}
	}
	select {
	case c.wrCh <- wrChunk{seq: seq, data: frame}:
	case <-ctx.Done():
		return Answer{Err: ctxError(ctx.Err())}
	case <-term:
		return Answer{Err: terrors.New(terrors.Terminated, "client stopped")}
	}
	select {
	case ans := <-rspCh:
		if terrors.IsCode(ans.Err, terrors.Timeout) {
			c.metrics.RPCTimeouts.Inc()
		}
		return ans
	case <-term:
		return Answer{Err: terrors.New(terrors.Terminated, "client stopped")}
	}
}

// packRPC builds one frame: header, request args, then the context args
// {exec timeout, lsn, server id, shard id}.
func (c *Client) packRPC(cmd CmdCode, seq uint32, args Args) ([]byte, error) {
	body := bytes.NewBuffer(c.pool.get())
	if err := args.Pack(body); err != nil {
		return nil, err
	}
	ctxArgs := Args{int64(c.opts.NetTimeout / time.Millisecond), int64(wal.EmptyLSN), int64(-1), int64(-1)}
	if err := ctxArgs.Pack(body); err != nil {
		return nil, err
	}

	payload := body.Bytes()
	compressed := c.opts.EnableCompression
	if compressed {
		payload = snappy.Encode(nil, payload)
	}
	frame := make([]byte, HeaderSize+len(payload))
	Header{
		Magic: Magic, Version: Version, Compressed: compressed,
		Cmd: cmd, Seq: seq, Len: uint32(len(payload)),
	}.Marshal(frame)
	copy(frame[HeaderSize:], payload)
	c.pool.put(body.Bytes())
	return frame, nil
}

func (c *Client) writerRoutine() {
	buf := make([]byte, 0, 0x800)
	for {
		var first wrChunk
		select {
		case first = <-c.wrCh:
		case <-c.terminate:
			return
		}
		buf = append(buf[:0], first.data...)
		cnt := 1
		for cnt < cntToSendNow && len(buf) < dataToSendNow {
			select {
			case ch := <-c.wrCh:
				buf = append(buf, ch.data...)
				cnt++
			default:
				cnt = cntToSendNow
			}
		}
		if _, err := c.conn.Write(buf); err != nil {
			c.fatal(terrors.Errorf(terrors.Network, "write error: %v", err))
			return
		}
	}
}

func (c *Client) readerRoutine() {
	for {
		hdr, body, err := readFrame(c.conn)
		if err != nil {
			select {
			case <-c.terminate:
			default:
				c.fatal(err)
			}
			return
		}
		ans := parseAnswer(hdr, body)
		slot := &c.calls[hdr.Seq%maxParallelRPCCalls]
		slot.push(hdr.Seq, ans)
	}
}

func (c *Client) deadlineRoutine() {
	ticker := time.NewTicker(deadlineCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-c.terminate:
			return
		}
		now := time.Now()
		for i := range c.calls {
			slot := &c.calls[i]
			slot.mu.Lock()
			if !slot.used {
				slot.mu.Unlock()
				continue
			}
			expired := !slot.deadline.IsZero() && !slot.deadline.After(now)
			cancelled := false
			if slot.cancel != nil {
				select {
				case <-slot.cancel:
					cancelled = true
				default:
				}
			}
			seq := slot.seq
			rspCh := slot.rspCh
			slot.mu.Unlock()
			if rspCh == nil {
				continue
			}
			if expired {
				slot.push(seq, Answer{Err: terrors.New(terrors.Timeout, "request deadline exceeded")})
			} else if cancelled {
				slot.push(seq, Answer{Err: terrors.New(terrors.Cancelled, "cancelled")})
			}
		}
	}
}

func (c *Client) pingerRoutine() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-c.terminate:
			return
		}
		if c.loggedIn.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), keepAliveInterval)
			c.Call(ctx, CmdPing)
			cancel()
		}
	}
}

// fatal closes the connection and resolves every pending call.
func (c *Client) fatal(err error) {
	c.loggedIn.Store(false)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	c.fanOut(err)
	if c.onState != nil {
		c.onState(err)
	}
}

func (c *Client) fanOut(err error) {
	for i := range c.calls {
		slot := &c.calls[i]
		slot.mu.Lock()
		seq := slot.seq
		used := slot.used
		slot.mu.Unlock()
		if used {
			slot.push(seq, Answer{Err: err})
		}
	}
}

func readFrame(conn net.Conn) (Header, []byte, error) {
	hdrBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(conn, hdrBuf); err != nil {
		return Header{}, nil, terrors.Errorf(terrors.Network, "read header: %v", err)
	}
	hdr, err := ParseHeader(hdrBuf)
	if err != nil {
		return hdr, nil, err
	}
	body := make([]byte, hdr.Len)
	if _, err := io.ReadFull(conn, body); err != nil {
		return hdr, nil, terrors.Errorf(terrors.Network, "read body: %v", err)
	}
	if hdr.Compressed {
		body, err = snappy.Decode(nil, body)
		if err != nil {
			return hdr, nil, terrors.Errorf(terrors.Network, "decompress body: %v", err)
		}
	}
	return hdr, body, nil
}

// parseAnswer splits the response payload: error code, error message, then
// the result arguments.
func parseAnswer(hdr Header, body []byte) Answer {
	r := bytes.NewReader(body)
	code, err := binary.ReadVarint(r)
	if err != nil {
		return Answer{Err: terrors.New(terrors.Network, "truncated answer status")}
	}
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return Answer{Err: terrors.New(terrors.Network, "truncated answer message")}
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		return Answer{Err: terrors.New(terrors.Network, "truncated answer message")}
	}
	args, err := Unpack(r)
	if err != nil {
		return Answer{Err: err}
	}
	if code != int64(terrors.OK) {
		return Answer{Args: args, Err: terrors.New(terrors.Code(code), string(msg))}
	}
	return Answer{Args: args}
}

func ctxError(err error) error {
	if err == context.DeadlineExceeded {
		return terrors.New(terrors.Timeout, "cancelled by timeout")
	}
	return terrors.New(terrors.Cancelled, "cancelled by context")
}

// GetSnapshot requests a namespace snapshot starting at the given LSN.
func (c *Client) GetSnapshot(ctx context.Context, nsName string, opts wal.SnapshotOpts) (*wal.Snapshot, error) {
	ans := c.Call(ctx, CmdGetSnapshot, nsName,
		opts.From.NsVersion, opts.From.LSN, int64(opts.MaxWALDepthOnForceSync))
	if ans.Err != nil {
		return nil, ans.Err
	}
	raw, err := ans.Args.String(0)
	if err != nil {
		return nil, err
	}
	var snap wal.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, terrors.Errorf(terrors.Network, "malformed snapshot payload: %v", err)
	}
	return &snap, nil
}

// GetReplState reads a namespace's replication position from the peer.
func (c *Client) GetReplState(ctx context.Context, nsName string) (nsVersion, lastLSN int64, dataHash uint64, err error) {
	ans := c.Call(ctx, CmdGetReplState, nsName)
	if ans.Err != nil {
		return 0, 0, 0, ans.Err
	}
	if nsVersion, err = ans.Args.Int(0); err != nil {
		return 0, 0, 0, err
	}
	if lastLSN, err = ans.Args.Int(1); err != nil {
		return 0, 0, 0, err
	}
	h, err := ans.Args.Int(2)
	if err != nil {
		return 0, 0, 0, err
	}
	return nsVersion, lastLSN, uint64(h), nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, CmdPing).Err
}
