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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHolder(t *testing.T, docs map[uint64]string) *DataHolder {
	t.Helper()
	cfg := DefaultConfig()
	h := NewDataHolder(&cfg, 1)
	for id, text := range docs {
		h.IndexDocument(id, []string{text})
	}
	h.Commit()
	return h
}

func search(t *testing.T, h *DataHolder, query string) MergeData {
	t.Helper()
	terms, err := ParseQuery(h.Config(), 1, query)
	require.NoError(t, err)
	md, err := NewSelector(h, nil).Process(context.Background(), terms)
	require.NoError(t, err)
	return md
}

func ids(md MergeData) []uint64 {
	out := make([]uint64, len(md.Items))
	for i, m := range md.Items {
		out[i] = m.ID
	}
	return out
}

func TestPhraseOrderRanking(t *testing.T) {
	h := newTestHolder(t, map[uint64]string{
		1: "fast red car",
		2: "red car fast",
		3: "slow blue bike",
	})
	md := search(t, h, "fast red car")
	require.Len(t, md.Items, 2, "doc 3 shares no words and must not match")
	// both docs match every term, but doc 1 matches in phrase order and
	// wins on distance and position
	assert.Equal(t, []uint64{1, 2}, ids(md))
	assert.Greater(t, md.Items[0].Proc, md.Items[1].Proc)
}

func TestFullMatchBoost(t *testing.T) {
	h := newTestHolder(t, map[uint64]string{
		1: "red car",
		2: "red car with extra words inside",
	})
	md := search(t, h, "red car")
	require.Len(t, md.Items, 2)
	assert.Equal(t, uint64(1), md.Items[0].ID, "exact-length doc gets the full match boost")
}

func TestPrefixAndExactTerms(t *testing.T) {
	h := newTestHolder(t, map[uint64]string{
		1: "running",
		2: "runway",
		3: "jump",
	})
	md := search(t, h, "run*")
	assert.ElementsMatch(t, []uint64{1, 2}, ids(md))

	md = search(t, h, "=running")
	assert.Equal(t, []uint64{1}, ids(md))
}

func TestNotTermExcludes(t *testing.T) {
	h := newTestHolder(t, map[uint64]string{
		1: "red car",
		2: "red bike",
	})
	md := search(t, h, "red -car")
	assert.Equal(t, []uint64{2}, ids(md))
}

func TestAndTermRequired(t *testing.T) {
	h := newTestHolder(t, map[uint64]string{
		1: "red car",
		2: "red bike",
		3: "green car",
	})
	// the required term prunes docs without it; optional terms only rank
	md := search(t, h, "red +car")
	assert.ElementsMatch(t, []uint64{1, 3}, ids(md))
	assert.Equal(t, uint64(1), md.Items[0].ID, "matching both terms ranks first")
}

func TestTypoLookup(t *testing.T) {
	h := newTestHolder(t, map[uint64]string{
		1: "elephant walks",
	})
	// one dropped letter still matches through the typo maps
	md := search(t, h, "elephnt")
	assert.Equal(t, []uint64{1}, ids(md))
}

func TestStemmedVariant(t *testing.T) {
	h := newTestHolder(t, map[uint64]string{
		1: "running fast",
	})
	// "runs" stems to "run", which prefix-matches "running"
	md := search(t, h, "runs")
	assert.Equal(t, []uint64{1}, ids(md))
}

func TestSynonyms(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Synonyms = []Synonym{{Tokens: []string{"auto"}, Alternatives: []string{"car"}}}
	h := NewDataHolder(&cfg, 1)
	h.IndexDocument(1, []string{"red car"})
	h.Commit()

	terms, err := ParseQuery(h.Config(), 1, "auto")
	require.NoError(t, err)
	md, err := NewSelector(h, nil).Process(context.Background(), terms)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids(md))
}

func TestRemoveDocument(t *testing.T) {
	h := newTestHolder(t, map[uint64]string{
		1: "red car",
		2: "red bike",
	})
	h.RemoveDocument(1)
	h.Commit()
	md := search(t, h, "red")
	assert.Equal(t, []uint64{2}, ids(md))
}

func TestStopWordsIgnored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopWords = []string{"the"}
	h := NewDataHolder(&cfg, 1)
	h.IndexDocument(1, []string{"the red car"})
	h.Commit()

	terms, err := ParseQuery(h.Config(), 1, "red")
	require.NoError(t, err)
	md, err := NewSelector(h, nil).Process(context.Background(), terms)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids(md))
}

func TestMkTypos(t *testing.T) {
	var typos []string
	levels := map[string]int{}
	mktypos("cat", 1, 15, func(typo string, level int) {
		typos = append(typos, typo)
		levels[typo] = level
	})
	assert.ElementsMatch(t, []string{"cat", "at", "ct", "ca"}, typos)
	assert.Equal(t, 1, levels["cat"])
	assert.Equal(t, 0, levels["at"])
}
