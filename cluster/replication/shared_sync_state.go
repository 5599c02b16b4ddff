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

// Package replication implements the leader-side initial sync machinery: a
// shared sync state readers block on until their namespace caught up, a
// work queue of namespaces to reconcile, and the syncer pulling snapshots
// and WAL tails from peers after a leadership transition.
package replication

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tesseradb/tessera/entities/terrors"
)

// Role is the node's raft role as seen by replication.
type Role int8

const (
	RoleNone Role = iota
	RoleLeader
	RoleFollower
	RoleCandidate
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleLeader:
		return "leader"
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	default:
		return "unknown"
	}
}

// RaftInfo is one observed raft state: the role and its leader's id.
type RaftInfo struct {
	Role     Role
	LeaderID int64
}

// SharedSyncState is the registry of initially synchronized namespaces.
// Readers that must observe a caught-up namespace block in
// AwaitInitialSync until a sync worker marks it, the role moves away from
// leader, or the whole state terminates. All waits are cancellable through
// the caller's context.
type SharedSyncState struct {
	mu sync.Mutex
	// broadcast closes on every state change; waiters re-check and re-arm
	broadcast chan struct{}

	required     map[string]bool
	synchronized map[string]bool
	current      RaftInfo
	next         RaftInfo
	enabled      bool
	terminated   bool

	initialSyncDone int
	replThreads     int

	log logrus.FieldLogger
}

func NewSharedSyncState(log logrus.FieldLogger) *SharedSyncState {
	return &SharedSyncState{
		broadcast:    make(chan struct{}),
		required:     map[string]bool{},
		synchronized: map[string]bool{},
		log:          log,
	}
}

func (s *SharedSyncState) notifyLocked() {
	close(s.broadcast)
	s.broadcast = make(chan struct{})
}

// Reset wipes the state for a new leadership term.
func (s *SharedSyncState) Reset(required []string, replThreads int, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.required = make(map[string]bool, len(required))
	for _, name := range required {
		s.required[strings.ToLower(name)] = true
	}
	s.synchronized = map[string]bool{}
	s.enabled = enabled
	s.terminated = false
	s.initialSyncDone = 0
	s.replThreads = replThreads
	s.current = RaftInfo{}
	s.next = RaftInfo{}
	s.log.Debug("sync state reset")
	s.notifyLocked()
}

// MarkSynchronized records one namespace as initially synchronized and
// wakes the waiters. Marks arriving after the role moved away from leader
// are dropped.
func (s *SharedSyncState) MarkSynchronized(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Role != RoleLeader {
		s.log.WithField("namespace", name).Debug("dropping synchronized mark, not a leader")
		return
	}
	key := strings.ToLower(name)
	if !s.synchronized[key] {
		s.synchronized[key] = true
		s.log.WithField("namespace", name).Debug("namespace marked synchronized")
		s.notifyLocked()
	}
}

// MarkAllSynchronized counts one finished sync thread; the whole DB is
// done when every thread reported.
func (s *SharedSyncState) MarkAllSynchronized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Role != RoleLeader {
		s.log.Debug("dropping whole-DB synchronized mark, not a leader")
		return
	}
	s.initialSyncDone++
	s.notifyLocked()
}

// SetRole stages the next role; TryTransitRole publishes it.
func (s *SharedSyncState) SetRole(info RaftInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = info
}

// TryTransitRole publishes the staged role when it matches expected and
// returns the now-current info; otherwise it returns the staged role. A
// transition away from leader clears the synchronized set.
func (s *SharedSyncState) TryTransitRole(expected RaftInfo) RaftInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expected != s.next {
		return s.next
	}
	if s.current.Role == RoleLeader && s.next.Role != RoleLeader {
		s.log.Debug("clearing synchronized set on role switch")
		s.synchronized = map[string]bool{}
		s.initialSyncDone = 0
	}
	s.current = s.next
	s.notifyLocked()
	return expected
}

// CurrentRole reads the published role.
func (s *SharedSyncState) CurrentRole() RaftInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// RolesPair reads (current, next).
func (s *SharedSyncState) RolesPair() (RaftInfo, RaftInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.next
}

// SetTerminated wakes and fails every waiter; the state stays dead until
// the next Reset.
func (s *SharedSyncState) SetTerminated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = true
	s.current = RaftInfo{}
	s.next = RaftInfo{}
	s.notifyLocked()
}

// IsInitialSyncDone reports whether the namespace needs no further wait.
func (s *SharedSyncState) IsInitialSyncDone(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isInitialSyncDoneLocked(strings.ToLower(name))
}

// IsWholeDBSyncDone reports whether every sync thread finished.
func (s *SharedSyncState) IsWholeDBSyncDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isWholeDBSyncDoneLocked()
}

func (s *SharedSyncState) isInitialSyncDoneLocked(key string) bool {
	if !s.enabled {
		return true
	}
	if len(s.required) > 0 && !s.required[key] {
		return true
	}
	return s.current.Role == RoleLeader && s.synchronized[key]
}

func (s *SharedSyncState) isWholeDBSyncDoneLocked() bool {
	if !s.enabled {
		return true
	}
	return s.next.Role == RoleLeader && s.initialSyncDone == s.replThreads
}

// AwaitInitialSync blocks until the namespace is synchronized. It fails
// with Terminated when the state shuts down and with ReplicationState when
// the role moves away from leader while waiting.
func (s *SharedSyncState) AwaitInitialSync(ctx context.Context, name string) error {
	key := strings.ToLower(name)
	return s.await(ctx, func() bool { return s.isInitialSyncDoneLocked(key) })
}

// AwaitWholeDBSync blocks until every sync thread finished.
func (s *SharedSyncState) AwaitWholeDBSync(ctx context.Context) error {
	return s.await(ctx, s.isWholeDBSyncDoneLocked)
}

func (s *SharedSyncState) await(ctx context.Context, done func() bool) error {
	for {
		s.mu.Lock()
		if done() {
			s.mu.Unlock()
			return nil
		}
		if s.terminated {
			s.mu.Unlock()
			return terrors.New(terrors.Terminated, "cluster was terminated")
		}
		if s.next.Role == RoleFollower {
			s.mu.Unlock()
			return terrors.New(terrors.ReplicationState, "node role was changed to follower")
		}
		ch := s.broadcast
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return terrors.New(terrors.Timeout, "await initial sync timed out")
			}
			return terrors.New(terrors.Cancelled, "await initial sync cancelled")
		}
	}
}
