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

package fulltext

import (
	"sort"
	"strings"
)

// posFieldStride packs (field, position) into one int so that distances
// across different fields come out larger than any realistic in-field
// distance.
const posFieldStride = 100000

// Posting relates one word to one document.
type Posting struct {
	ID uint64
	// Positions holds field*posFieldStride+pos, ascending.
	Positions  []int
	fieldsMask uint64
}

func (p *Posting) addPos(field, pos int) {
	p.Positions = append(p.Positions, field*posFieldStride+pos)
	p.fieldsMask |= 1 << uint(field)
}

func (p *Posting) UsedFieldsMask() uint64 { return p.fieldsMask }

func (p *Posting) WordsInField(field int) int {
	n := 0
	for _, pp := range p.Positions {
		if pp/posFieldStride == field {
			n++
		}
	}
	return n
}

func (p *Posting) MinPositionInField(field int) int {
	min := -1
	for _, pp := range p.Positions {
		if pp/posFieldStride == field {
			pos := pp % posFieldStride
			if min < 0 || pos < min {
				min = pos
			}
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// Distance is the minimal absolute distance between any position pair of
// the two postings.
func (p *Posting) Distance(other *Posting, max int) int {
	best := max
	for _, a := range p.Positions {
		for _, b := range other.Positions {
			d := a - b
			if d < 0 {
				d = -d
			}
			if d < best {
				best = d
			}
		}
	}
	return best
}

type wordEntry struct {
	text string
	vids []Posting
}

// vdoc carries per-document word statistics per field.
type vdoc struct {
	exists     bool
	wordsCount []int
	mostFreq   []int
}

type suffixEntry struct {
	suffix string
	wordID int32
	offset int32 // rune offset of the suffix within the word
}

// commitStep is one incrementally built chunk of the lookup structures:
// the suffix array and typo maps over the words added since the previous
// commit.
type commitStep struct {
	firstWord int32
	lastWord  int32
	suffixes  []suffixEntry
	typosHalf map[string][]int32
	typosMax  map[string][]int32
}

// DataHolder is the per-index text search state.
type DataHolder struct {
	cfg *Config
	tok *tokenizer
	syn *synonymTable

	numFields int
	words     []wordEntry
	wordIDs   map[string]int32
	vdocs     map[uint64]*vdoc
	docWords  map[uint64][]int32

	steps         []commitStep
	committedWord int32

	totalWordsPerField []int64
}

func NewDataHolder(cfg *Config, numFields int) *DataHolder {
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	return &DataHolder{
		cfg:                cfg,
		tok:                newTokenizer(cfg),
		syn:                newSynonymTable(cfg.Synonyms),
		numFields:          numFields,
		wordIDs:            map[string]int32{},
		vdocs:              map[uint64]*vdoc{},
		docWords:           map[uint64][]int32{},
		totalWordsPerField: make([]int64, numFields),
	}
}

func (h *DataHolder) Config() *Config { return h.cfg }

func (h *DataHolder) TotalDocs() int { return len(h.vdocs) }

// IndexDocument (re)indexes one document's text fields. The previous
// version, if any, is removed first.
func (h *DataHolder) IndexDocument(id uint64, fields []string) {
	if _, ok := h.vdocs[id]; ok {
		h.RemoveDocument(id)
	}
	vd := &vdoc{
		exists:     true,
		wordsCount: make([]int, h.numFields),
		mostFreq:   make([]int, h.numFields),
	}
	freq := map[int32]map[int]int{}
	for f := 0; f < h.numFields && f < len(fields); f++ {
		toks := h.tok.Tokenize(fields[f])
		vd.wordsCount[f] = len(toks)
		h.totalWordsPerField[f] += int64(len(toks))
		for _, t := range toks {
			wid := h.wordOrAdd(t.Text)
			w := &h.words[wid]
			if len(w.vids) == 0 || w.vids[len(w.vids)-1].ID != id {
				w.vids = append(w.vids, Posting{ID: id})
				h.docWords[id] = append(h.docWords[id], wid)
			}
			w.vids[len(w.vids)-1].addPos(f, t.Pos)
			if freq[wid] == nil {
				freq[wid] = map[int]int{}
			}
			freq[wid][f]++
			if freq[wid][f] > vd.mostFreq[f] {
				vd.mostFreq[f] = freq[wid][f]
			}
		}
	}
	h.vdocs[id] = vd
}

// RemoveDocument drops the document from every posting list. Removal
// invalidates the committed steps, forcing a rebuild on the next commit.
func (h *DataHolder) RemoveDocument(id uint64) {
	vd, ok := h.vdocs[id]
	if !ok {
		return
	}
	for f, n := range vd.wordsCount {
		h.totalWordsPerField[f] -= int64(n)
	}
	for _, wid := range h.docWords[id] {
		w := &h.words[wid]
		for i := range w.vids {
			if w.vids[i].ID == id {
				w.vids = append(w.vids[:i], w.vids[i+1:]...)
				break
			}
		}
	}
	delete(h.docWords, id)
	delete(h.vdocs, id)
	// committed suffix entries may now point at empty words; rebuild
	h.steps = nil
	h.committedWord = 0
}

func (h *DataHolder) Truncate() {
	h.words = nil
	h.wordIDs = map[string]int32{}
	h.vdocs = map[uint64]*vdoc{}
	h.docWords = map[uint64][]int32{}
	h.steps = nil
	h.committedWord = 0
	h.totalWordsPerField = make([]int64, h.numFields)
}

func (h *DataHolder) wordOrAdd(text string) int32 {
	if id, ok := h.wordIDs[text]; ok {
		return id
	}
	id := int32(len(h.words))
	h.words = append(h.words, wordEntry{text: text})
	h.wordIDs[text] = id
	return id
}

// Commit builds the lookup structures for words added since the last
// commit. Steps accumulate; a full rebuild collapses them into one.
func (h *DataHolder) Commit() {
	if h.committedWord == int32(len(h.words)) {
		return
	}
	step := commitStep{
		firstWord: h.committedWord,
		lastWord:  int32(len(h.words)),
		typosHalf: map[string][]int32{},
		typosMax:  map[string][]int32{},
	}
	halfTypos := (h.cfg.maxTypos() + 1) / 2
	for wid := step.firstWord; wid < step.lastWord; wid++ {
		runes := []rune(h.words[wid].text)
		for off := 0; off < len(runes); off++ {
			step.suffixes = append(step.suffixes, suffixEntry{
				suffix: string(runes[off:]),
				wordID: wid,
				offset: int32(off),
			})
		}
		if h.cfg.MaxTyposInWord > 0 {
			for typo, level := range typoVariants(h.words[wid].text, h.cfg.MaxTyposInWord, h.cfg.MaxTypoLen) {
				deletions := h.cfg.MaxTyposInWord - level
				if deletions <= halfTypos {
					step.typosHalf[typo] = append(step.typosHalf[typo], wid)
				} else {
					step.typosMax[typo] = append(step.typosMax[typo], wid)
				}
			}
		}
	}
	sort.Slice(step.suffixes, func(i, j int) bool {
		return step.suffixes[i].suffix < step.suffixes[j].suffix
	})
	h.steps = append(h.steps, step)
	h.committedWord = int32(len(h.words))
}

func (h *DataHolder) avgWordsInField(field int) float64 {
	if len(h.vdocs) == 0 {
		return 0
	}
	return float64(h.totalWordsPerField[field]) / float64(len(h.vdocs))
}

// suffixWalk visits every suffix entry whose suffix starts with pattern.
func (s *commitStep) suffixWalk(pattern string, fn func(e *suffixEntry) bool) {
	i := sort.Search(len(s.suffixes), func(i int) bool {
		return s.suffixes[i].suffix >= pattern
	})
	for ; i < len(s.suffixes); i++ {
		if !strings.HasPrefix(s.suffixes[i].suffix, pattern) {
			return
		}
		if !fn(&s.suffixes[i]) {
			return
		}
	}
}
