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

// ChunkType separates raw-data chunks (full documents from the namespace
// state) from WAL tail chunks replayed after them.
type ChunkType int8

const (
	ChunkRaw ChunkType = iota
	ChunkWAL
)

// Chunk is one application unit of a snapshot stream. Chunks are applied
// strictly in stream order.
type Chunk struct {
	Type    ChunkType `json:"type"`
	Records []Record  `json:"records"`
}

// SnapshotOpts parameterizes a snapshot request.
type SnapshotOpts struct {
	// From is the requester's position; empty forces a full read.
	From ExtendedLSN
	// MaxWALDepthOnForceSync caps the tail appended after raw data.
	MaxWALDepthOnForceSync int
}

// Snapshot is a fully built snapshot stream. HasRawData tells the receiver
// to apply into a fresh temporary namespace instead of the live one.
type Snapshot struct {
	Chunks     []Chunk     `json:"chunks"`
	HasRawData bool        `json:"has_raw_data"`
	LatestLSN  ExtendedLSN `json:"latest_lsn"`
}

// rawChunkSize bounds documents per raw chunk so appliers can poll
// termination between chunks.
const rawChunkSize = 512

// BuildRaw splits document records into raw chunks followed by a WAL tail.
func BuildRaw(docs []Record, tail []Record, latest ExtendedLSN, maxTail int) Snapshot {
	s := Snapshot{HasRawData: true, LatestLSN: latest}
	for off := 0; off < len(docs); off += rawChunkSize {
		end := off + rawChunkSize
		if end > len(docs) {
			end = len(docs)
		}
		s.Chunks = append(s.Chunks, Chunk{Type: ChunkRaw, Records: docs[off:end]})
	}
	if maxTail > 0 && len(tail) > maxTail {
		tail = tail[len(tail)-maxTail:]
	}
	if len(tail) > 0 {
		s.Chunks = append(s.Chunks, Chunk{Type: ChunkWAL, Records: tail})
	}
	return s
}

// BuildTail wraps a WAL tail into a snapshot without raw data.
func BuildTail(tail []Record, latest ExtendedLSN) Snapshot {
	s := Snapshot{LatestLSN: latest}
	if len(tail) > 0 {
		s.Chunks = append(s.Chunks, Chunk{Type: ChunkWAL, Records: tail})
	}
	return s
}
