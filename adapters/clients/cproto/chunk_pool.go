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

import "sync"

const (
	// chunks above this size are released to the allocator instead of
	// recycled, bounding the pool's memory
	maxChunkSizeToRecycle = 2048
	maxRecycledChunks     = 1500
)

// chunkPool recycles small write buffers to bound allocator pressure on
// the hot call path.
type chunkPool struct {
	mu     sync.Mutex
	chunks [][]byte
}

func newChunkPool() *chunkPool {
	return &chunkPool{chunks: make([][]byte, 0, maxRecycledChunks)}
}

func (p *chunkPool) get() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.chunks); n > 0 {
		ch := p.chunks[n-1]
		p.chunks = p.chunks[:n-1]
		return ch[:0]
	}
	return make([]byte, 0, 512)
}

func (p *chunkPool) put(ch []byte) {
	if cap(ch) > maxChunkSizeToRecycle {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.chunks) < maxRecycledChunks {
		p.chunks = append(p.chunks, ch)
	}
}
