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

package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndTail(t *testing.T) {
	w := New(0)
	for i := 0; i < 5; i++ {
		w.Add(RecUpsert, "pk", []byte(`{}`))
	}
	assert.Equal(t, int64(5), w.LastLSN())

	tail, ok := w.TailFrom(3)
	require.True(t, ok)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(4), tail[0].LSN)
	assert.Equal(t, int64(5), tail[1].LSN)

	tail, ok = w.TailFrom(5)
	require.True(t, ok)
	assert.Empty(t, tail)
}

func TestTailFromCompactedPosition(t *testing.T) {
	w := New(3)
	for i := 0; i < 10; i++ {
		w.Add(RecUpsert, "pk", nil)
	}
	// only LSNs 8..10 are retained
	_, ok := w.TailFrom(2)
	assert.False(t, ok)
	tail, ok := w.TailFrom(8)
	require.True(t, ok)
	assert.Len(t, tail, 2)

	_, ok = w.TailFrom(EmptyLSN)
	assert.False(t, ok)
}

func TestExtendedLSNCompare(t *testing.T) {
	a := ExtendedLSN{NsVersion: 1, LSN: 5}
	b := ExtendedLSN{NsVersion: 1, LSN: 7}
	c := ExtendedLSN{NsVersion: 2, LSN: 1}
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, -1, b.Compare(c), "a newer epoch outranks any LSN")
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, ExtendedLSN{LSN: EmptyLSN}.IsEmpty())
	assert.False(t, b.IsEmpty())
}

func TestBuildRawChunking(t *testing.T) {
	docs := make([]Record, 1200)
	for i := range docs {
		docs[i] = Record{Type: RecUpsert, PK: "x"}
	}
	tail := []Record{{LSN: 7, Type: RecDelete, PK: "y"}}
	s := BuildRaw(docs, tail, ExtendedLSN{NsVersion: 1, LSN: 7}, 100)
	require.True(t, s.HasRawData)
	// 1200 docs split into three raw chunks plus one WAL tail chunk
	require.Len(t, s.Chunks, 4)
	assert.Equal(t, ChunkRaw, s.Chunks[0].Type)
	assert.Equal(t, ChunkWAL, s.Chunks[3].Type)

	s = BuildTail(tail, ExtendedLSN{NsVersion: 1, LSN: 7})
	assert.False(t, s.HasRawData)
	require.Len(t, s.Chunks, 1)
}

func TestAddApplied(t *testing.T) {
	w := New(0)
	w.AddApplied(Record{LSN: 10, Type: RecUpsert, PK: "a"})
	assert.Equal(t, int64(10), w.LastLSN())
	tail, ok := w.TailFrom(9)
	require.True(t, ok)
	require.Len(t, tail, 1)
}
