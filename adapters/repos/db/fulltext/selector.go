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
	"context"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
)

// MergeInfo is one ranked document of a text search.
type MergeInfo struct {
	ID      uint64
	Proc    float64
	Matched int
	Field   int
}

// MergeData is the ranked result set, sorted descending by rank with id
// ascending tie-break.
type MergeData struct {
	Items   []MergeInfo
	MaxRank float64
}

// Selector runs parsed text queries against a DataHolder.
type Selector struct {
	holder *DataHolder
	log    logrus.FieldLogger
}

func NewSelector(holder *DataHolder, log logrus.FieldLogger) *Selector {
	return &Selector{holder: holder, log: log}
}

type baseVariant struct {
	pattern string
	proc    int
}

type variantEntry struct {
	pattern string
	opts    TermOpts
	proc    int
}

type textSearchResult struct {
	word    *wordEntry
	pattern string
	proc    int
}

type textSearchResults struct {
	term    Term
	results []textSearchResult
	idsCnt  int
}

type foundWordRef struct {
	termIdx   int
	resultIdx int
}

// Process evaluates the parsed terms and returns the ranked merge.
func (s *Selector) Process(ctx context.Context, terms []Term) (MergeData, error) {
	h := s.holder
	h.Commit()

	rawResults := make([]textSearchResults, 0, len(terms))
	foundWords := map[int32]foundWordRef{}
	for i, term := range terms {
		if err := ctx.Err(); err != nil {
			return MergeData{}, terrors.New(terrors.Cancelled, "fulltext select cancelled")
		}
		rawResults = append(rawResults, textSearchResults{term: term})
		res := &rawResults[len(rawResults)-1]

		variants := s.prepareVariants(term)
		if s.log != nil {
			pats := make([]string, len(variants))
			for vi, v := range variants {
				pats[vi] = v.pattern
			}
			s.log.WithFields(logrus.Fields{"term": term.Pattern, "variants": pats}).Debug("fulltext variants")
		}
		for _, variant := range variants {
			s.processStepVariants(&variant, res, i, foundWords)
		}
		if term.Opts.Typos {
			s.processTypos(term, res, i, foundWords)
		}
	}
	return s.mergeResults(ctx, rawResults)
}

// prepareVariants expands one term into the candidate set: the original
// pattern, transliteration, keyboard-layout swap, synonyms, and stems of
// each. Stemmed variants allow prefixes but not suffixes (except for the
// first variant), exact terms skip expansion entirely.
func (s *Selector) prepareVariants(term Term) []variantEntry {
	cfg := s.holder.cfg
	base := []baseVariant{{term.Pattern, fullMatchProc}}

	if !cfg.EnableNumbersSearch || !term.Opts.Number {
		if cfg.EnableTranslit && !term.Opts.Exact {
			if tv := translitVariant(term.Pattern); tv != "" && tv != term.Pattern {
				base = append(base, baseVariant{tv, fullMatchProc - stemProcDecr})
			}
		}
		if cfg.EnableKbLayout && !term.Opts.Exact {
			if kv := kbLayoutVariant(term.Pattern); kv != "" && kv != term.Pattern {
				base = append(base, baseVariant{kv, fullMatchProc - stemProcDecr})
			}
		}
		if term.Opts.Op != queries.OpNot {
			for _, alt := range s.holder.syn.Variants(term.Pattern) {
				base = append(base, baseVariant{normWord(alt), fullMatchProc - stemProcDecr})
			}
		}
	}

	variants := make([]variantEntry, 0, len(base)*2)
	for bi, b := range base {
		if b.pattern == "" {
			continue
		}
		variants = append(variants, variantEntry{pattern: b.pattern, opts: term.Opts, proc: b.proc})
		if !term.Opts.Exact {
			for _, lang := range cfg.Stemmers {
				st := stem(lang, b.pattern)
				if st != "" && st != b.pattern {
					opts := term.Opts
					opts.Pref = true
					if bi != 0 {
						opts.Suff = false
					}
					variants = append(variants, variantEntry{pattern: st, opts: opts, proc: b.proc - stemProcDecr})
				}
			}
		}
	}
	return variants
}

// processStepVariants walks the suffix arrays for one variant and collects
// matched words with their match percent.
func (s *Selector) processStepVariants(variant *variantEntry, res *textSearchResults, termIdx int, foundWords map[int32]foundWordRef) {
	h := s.holder
	patLen := len([]rune(variant.pattern))
	for si := range h.steps {
		step := &h.steps[si]
		step.suffixWalk(variant.pattern, func(e *suffixEntry) bool {
			word := &h.words[e.wordID]
			if len(word.vids) == 0 {
				return true
			}
			wordLen := len([]rune(word.text))
			suffixLen := int(e.offset)
			if !variant.opts.Suff && suffixLen > 0 {
				return true
			}
			if !variant.opts.Pref && wordLen != patLen+suffixLen {
				return true
			}
			matchDif := wordLen - patLen + suffixLen
			if matchDif < 0 {
				matchDif = -matchDif
			}
			minProc := prefixMinProc
			if suffixLen > 0 {
				minProc = suffixMinProc
			}
			den := patLen
			if den < 3 {
				den = 3
			}
			proc := variant.proc - h.cfg.PartialMatchDecr*matchDif/den
			if proc < minProc {
				proc = minProc
			}
			if ref, ok := foundWords[e.wordID]; ok && ref.termIdx == termIdx {
				if res.results[ref.resultIdx].proc < proc {
					res.results[ref.resultIdx].proc = proc
				}
				return true
			}
			res.results = append(res.results, textSearchResult{word: word, pattern: variant.pattern, proc: proc})
			res.idsCnt += len(word.vids)
			foundWords[e.wordID] = foundWordRef{termIdx: termIdx, resultIdx: len(res.results) - 1}
			return true
		})
	}
}

// processTypos looks the term's deletion typos up in both typo maps.
func (s *Selector) processTypos(term Term, res *textSearchResults, termIdx int, foundWords map[int32]foundWordRef) {
	h := s.holder
	maxTyposInWord := h.cfg.MaxTyposInWord
	dontUseMaxTyposForBoth := maxTyposInWord != h.cfg.maxTypos()/2
	patternSize := len([]rune(term.Pattern))
	for si := range h.steps {
		step := &h.steps[si]
		mktypos(term.Pattern, maxTyposInWord, h.cfg.MaxTypoLen, func(typo string, level int) {
			tcount := maxTyposInWord - level
			for ti, typos := range []map[string][]int32{step.typosHalf, step.typosMax} {
				for _, wid := range typos[typo] {
					word := &h.words[wid]
					if len(word.vids) == 0 {
						continue
					}
					wordLen := len([]rune(word.text))
					den := (wordLen - tcount) / 3
					if den < 1 {
						den = 1
					}
					proc := typoProc - tcount*typoStepProc/den
					if ref, ok := foundWords[wid]; ok && ref.termIdx == termIdx {
						if res.results[ref.resultIdx].proc < proc {
							res.results[ref.resultIdx].proc = proc
						}
						continue
					}
					res.results = append(res.results, textSearchResult{word: word, pattern: typo, proc: proc})
					res.idsCnt += len(word.vids)
					foundWords[wid] = foundWordRef{termIdx: termIdx, resultIdx: len(res.results) - 1}
				}
				// skip the second typo map when the level-1 typo can't be a
				// full-length pattern: avoids double counting
				if ti == 0 && dontUseMaxTyposForBoth && level == 1 && len([]rune(typo)) != patternSize {
					return
				}
			}
		})
	}
}

type mergedIdRel struct {
	cur  Posting
	next Posting
	rank float64
	qpos int
}

const statusExcluded = int32(-1)

func (s *Selector) mergeResults(ctx context.Context, rawResults []textSearchResults) (MergeData, error) {
	h := s.holder
	var out MergeData
	if len(rawResults) == 0 || len(h.vdocs) == 0 {
		return out, nil
	}

	for i := range rawResults {
		rr := rawResults[i].results
		sort.SliceStable(rr, func(a, b int) bool { return rr[a].proc > rr[b].proc })
	}

	merged := make([]MergeInfo, 0, 64)
	mergedRd := make([]mergedIdRel, 0, 64)
	mergeStatuses := map[uint64]int32{}
	idoffsets := map[uint64]int{}
	simple := len(rawResults) == 1
	hasBeenAnd := false

	for i := range rawResults {
		if err := ctx.Err(); err != nil {
			return out, terrors.New(terrors.Cancelled, "fulltext merge cancelled")
		}
		curExists := map[uint64]bool{}
		s.mergeIteration(&rawResults[i], int32(i), mergeStatuses, &merged, &mergedRd, idoffsets, curExists, hasBeenAnd, simple)

		if rawResults[i].term.Opts.Op == queries.OpAnd {
			hasBeenAnd = true
			for mi := range merged {
				vid := merged[mi].ID
				status := mergeStatuses[vid]
				if curExists[vid] || status == statusExcluded || merged[mi].Proc == 0 {
					continue
				}
				merged[mi].Proc = 0
				mergeStatuses[vid] = 0
			}
		}
	}

	// full-match bonus: the driving field holds exactly as many words as
	// the query has terms
	for mi := range merged {
		m := &merged[mi]
		vd := h.vdocs[m.ID]
		if vd != nil && m.Field < len(vd.wordsCount) && vd.wordsCount[m.Field] == len(rawResults) {
			m.Proc *= h.cfg.FullMatchBoost
		}
		if m.Proc > out.MaxRank {
			out.MaxRank = m.Proc
		}
	}

	minRank := h.cfg.MinRelevancy * fullMatchProc
	for _, m := range merged {
		if m.Proc > 0 && m.Proc >= minRank {
			out.Items = append(out.Items, m)
		}
	}
	sort.Slice(out.Items, func(a, b int) bool {
		if out.Items[a].Proc != out.Items[b].Proc {
			return out.Items[a].Proc > out.Items[b].Proc
		}
		return out.Items[a].ID < out.Items[b].ID
	})
	return out, nil
}

func (s *Selector) mergeIteration(rawRes *textSearchResults, rawResIndex int32,
	mergeStatuses map[uint64]int32, merged *[]MergeInfo, mergedRd *[]mergedIdRel,
	idoffsets map[uint64]int, curExists map[uint64]bool, hasBeenAnd, simple bool,
) {
	h := s.holder
	cfg := h.cfg
	op := rawRes.term.Opts.Op
	totalDocs := len(h.vdocs)

	for ri := range *mergedRd {
		if len((*mergedRd)[ri].next.Positions) > 0 {
			(*mergedRd)[ri].cur = (*mergedRd)[ri].next
			(*mergedRd)[ri].next = Posting{}
		}
	}

	for _, r := range rawRes.results {
		idfv := idf(totalDocs, len(r.word.vids))
		for vi := range r.word.vids {
			relid := &r.word.vids[vi]
			vid := relid.ID
			status := mergeStatuses[vid]

			if status == statusExcluded || (hasBeenAnd && status == 0) {
				continue
			}
			if op == queries.OpNot {
				if status != 0 {
					(*merged)[idoffsets[vid]].Proc = 0
				}
				mergeStatuses[vid] = statusExcluded
				continue
			}
			vd := h.vdocs[vid]
			if vd == nil || !vd.exists {
				continue
			}

			// find the field with the best term rank
			field := 0
			termRank := 0.0
			var ranksInFields []float64
			dontSkipCurTermRank := false
			for f := 0; f < h.numFields; f++ {
				if relid.fieldsMask&(1<<uint(f)) == 0 {
					continue
				}
				fboost := 1.0
				needSumRank := false
				if f < len(rawRes.term.Opts.FieldOpts) {
					fboost = rawRes.term.Opts.FieldOpts[f].Boost
					needSumRank = rawRes.term.Opts.FieldOpts[f].NeedSumRank
				}
				if fboost == 0 {
					continue
				}
				fldCfg := cfg.fieldCfg(f)
				bm25 := idfv * bm25score(relid.WordsInField(f), vd.mostFreq[f], vd.wordsCount[f], h.avgWordsInField(f))
				normBm25 := bound(bm25, fldCfg.Bm25Weight, fldCfg.Bm25Boost)
				positionRank := bound(pos2rank(relid.MinPositionInField(f)), fldCfg.PositionWeight, fldCfg.PositionBoost)
				termLenBoost := bound(rawRes.term.Opts.TermLenBoost, fldCfg.TermLenWeight, fldCfg.TermLenBoost)
				termRankTmp := fboost * float64(r.proc) * normBm25 * rawRes.term.Opts.Boost * termLenBoost * positionRank
				switch {
				case termRankTmp > termRank:
					if dontSkipCurTermRank {
						ranksInFields = append(ranksInFields, termRank)
					}
					field = f
					termRank = termRankTmp
					dontSkipCurTermRank = needSumRank
				case !dontSkipCurTermRank && needSumRank && termRank == termRankTmp:
					field = f
					dontSkipCurTermRank = true
				case termRankTmp > 0 && needSumRank:
					ranksInFields = append(ranksInFields, termRankTmp)
				}
			}
			if termRank == 0 {
				continue
			}
			if cfg.SumRanksByFieldsK > 0 {
				sort.Float64s(ranksInFields)
				k := cfg.SumRanksByFieldsK
				for _, fr := range ranksInFields {
					termRank += k * fr
					k *= cfg.SumRanksByFieldsK
				}
			}

			// 2nd and later terms intersect with the merged state
			if !simple && status != 0 {
				curMerged := &(*merged)[idoffsets[vid]]
				curMrd := &(*mergedRd)[idoffsets[vid]]
				distance := 0
				normDist := 1.0
				if curMrd.qpos != rawRes.term.Opts.Qpos {
					distance = curMrd.cur.Distance(relid, math.MaxInt32)
					normDist = bound(1.0/float64(maxInt(distance, 1)), cfg.DistanceWeight, cfg.DistanceBoost)
				}
				finalRank := normDist * termRank
				if distance <= rawRes.term.Opts.Distance && (!curExists[vid] || finalRank > curMrd.rank) {
					if curExists[vid] {
						curMerged.Proc -= curMrd.rank
					} else {
						curMerged.Matched++
					}
					curMerged.Proc += finalRank
					curMrd.rank = finalRank
					curMrd.next = *relid
					curExists[vid] = true
				}
			}

			if len(*merged) < cfg.MergeLimit && !hasBeenAnd {
				currentlyAddedLessRanked := curExists[vid] && (*merged)[idoffsets[vid]].Proc < termRank
				if !(simple && currentlyAddedLessRanked) && status != 0 {
					continue
				}
				info := MergeInfo{ID: vid, Proc: termRank, Matched: 1, Field: field}
				if status != 0 {
					(*merged)[idoffsets[vid]] = info
				} else {
					*merged = append(*merged, info)
					mergeStatuses[vid] = rawResIndex + 1
					curExists[vid] = true
					idoffsets[vid] = len(*merged) - 1
				}
				if simple {
					continue
				}
				*mergedRd = append(*mergedRd, mergedIdRel{cur: *relid, rank: termRank, qpos: rawRes.term.Opts.Qpos})
			}
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
