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

package replication

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/entities/terrors"
)

func newState() *SharedSyncState {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return NewSharedSyncState(l)
}

func leaderState(names ...string) *SharedSyncState {
	s := newState()
	s.Reset(names, 1, true)
	info := RaftInfo{Role: RoleLeader, LeaderID: 1}
	s.SetRole(info)
	s.TryTransitRole(info)
	return s
}

func TestAwaitUnblocksOnMark(t *testing.T) {
	s := leaderState("ns1")
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- s.AwaitInitialSync(ctx, "ns1")
	}()

	time.Sleep(20 * time.Millisecond)
	s.MarkSynchronized("ns1")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not unblock")
	}
	assert.True(t, s.IsInitialSyncDone("ns1"))
	// names are matched case-insensitively
	assert.True(t, s.IsInitialSyncDone("NS1"))
}

func TestAwaitFailsOnTerminate(t *testing.T) {
	s := leaderState("ns1")
	done := make(chan error, 1)
	go func() {
		done <- s.AwaitInitialSync(context.Background(), "ns1")
	}()
	time.Sleep(20 * time.Millisecond)
	s.SetTerminated()
	err := <-done
	require.Error(t, err)
	assert.Equal(t, terrors.Terminated, terrors.CodeOf(err))
}

func TestAwaitFailsOnRoleSwitch(t *testing.T) {
	s := leaderState("ns1")
	done := make(chan error, 1)
	go func() {
		done <- s.AwaitInitialSync(context.Background(), "ns1")
	}()
	time.Sleep(20 * time.Millisecond)
	s.SetRole(RaftInfo{Role: RoleFollower})
	s.TryTransitRole(RaftInfo{Role: RoleFollower})
	err := <-done
	require.Error(t, err)
	assert.Equal(t, terrors.ReplicationState, terrors.CodeOf(err))
}

func TestAwaitCancellable(t *testing.T) {
	s := leaderState("ns1")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.AwaitInitialSync(ctx, "ns1")
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	err := <-done
	require.Error(t, err)
	assert.Equal(t, terrors.Cancelled, terrors.CodeOf(err))
}

func TestRoleSwitchClearsSynchronized(t *testing.T) {
	s := leaderState("ns1", "ns2")
	s.MarkSynchronized("ns1")
	require.True(t, s.IsInitialSyncDone("ns1"))

	s.SetRole(RaftInfo{Role: RoleFollower})
	s.TryTransitRole(RaftInfo{Role: RoleFollower})

	s.SetRole(RaftInfo{Role: RoleLeader})
	s.TryTransitRole(RaftInfo{Role: RoleLeader})
	assert.False(t, s.IsInitialSyncDone("ns1"), "synchronized set must clear on demotion")
}

func TestTryTransitRoleMismatch(t *testing.T) {
	s := newState()
	s.Reset(nil, 1, true)
	s.SetRole(RaftInfo{Role: RoleCandidate})
	got := s.TryTransitRole(RaftInfo{Role: RoleLeader})
	assert.Equal(t, RoleCandidate, got.Role)
	cur, next := s.RolesPair()
	assert.Equal(t, RoleNone, cur.Role)
	assert.Equal(t, RoleCandidate, next.Role)
}

func TestNotRequiredNamespaceNeedsNoSync(t *testing.T) {
	s := leaderState("ns1")
	assert.True(t, s.IsInitialSyncDone("other"))
}

func TestDisabledStateIsAlwaysDone(t *testing.T) {
	s := newState()
	s.Reset([]string{"ns1"}, 1, false)
	assert.True(t, s.IsInitialSyncDone("ns1"))
	assert.True(t, s.IsWholeDBSyncDone())
}

func TestMarkDroppedWhenNotLeader(t *testing.T) {
	s := newState()
	s.Reset([]string{"ns1"}, 1, true)
	s.MarkSynchronized("ns1")
	assert.False(t, s.IsInitialSyncDone("ns1"))
}

func TestWholeDBSync(t *testing.T) {
	s := newState()
	s.Reset(nil, 2, true)
	info := RaftInfo{Role: RoleLeader}
	s.SetRole(info)
	s.TryTransitRole(info)

	require.False(t, s.IsWholeDBSyncDone())
	s.MarkAllSynchronized()
	require.False(t, s.IsWholeDBSyncDone())
	s.MarkAllSynchronized()
	assert.True(t, s.IsWholeDBSyncDone())
	require.NoError(t, s.AwaitWholeDBSync(context.Background()))
}
