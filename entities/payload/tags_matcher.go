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

package payload

import (
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

// TagsMatcher maps document tag names to small integer tag numbers.
// Invariants: a tag number is never reused; new versions only add
// mappings. The read path is lock-free: every update builds a copy and
// publishes it with an atomic swap, readers load a consistent snapshot.
type TagsMatcher struct {
	state atomic.Pointer[tagsState]
}

type tagsState struct {
	version    int32
	stateToken int32
	name2tag   map[string]int
	tag2name   []string
}

func NewTagsMatcher() *TagsMatcher {
	tm := &TagsMatcher{}
	tm.state.Store(&tagsState{
		stateToken: int32(murmur3.Sum32([]byte("tags-seed"))),
		name2tag:   map[string]int{},
	})
	return tm
}

func (tm *TagsMatcher) Version() int32 { return tm.state.Load().version }

func (tm *TagsMatcher) StateToken() int32 { return tm.state.Load().stateToken }

// Tag resolves an existing tag name; -1 when unknown.
func (tm *TagsMatcher) Tag(name string) int {
	if t, ok := tm.state.Load().name2tag[name]; ok {
		return t
	}
	return -1
}

func (tm *TagsMatcher) Name(tag int) string {
	st := tm.state.Load()
	if tag < 0 || tag >= len(st.tag2name) {
		return ""
	}
	return st.tag2name[tag]
}

func (tm *TagsMatcher) Size() int { return len(tm.state.Load().tag2name) }

// TagOrAdd resolves the name, assigning the next free tag number when it is
// new. Concurrent adders race on the swap; the loser retries over the
// winner's state so no assigned number is ever lost.
func (tm *TagsMatcher) TagOrAdd(name string) int {
	for {
		st := tm.state.Load()
		if t, ok := st.name2tag[name]; ok {
			return t
		}
		next := &tagsState{
			version:    st.version + 1,
			stateToken: st.stateToken,
			name2tag:   make(map[string]int, len(st.name2tag)+1),
			tag2name:   append(append([]string(nil), st.tag2name...), name),
		}
		for k, v := range st.name2tag {
			next.name2tag[k] = v
		}
		tag := len(st.tag2name)
		next.name2tag[name] = tag
		if tm.state.CompareAndSwap(st, next) {
			return tag
		}
	}
}
